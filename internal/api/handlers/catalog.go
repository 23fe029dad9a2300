package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/postgres"
	"github.com/clinidesk/go-rxpad/internal/session"
)

// StockSearcher exposes inventory lookups for the medicine picker.
type StockSearcher interface {
	SearchStock(ctx context.Context, query string) ([]*postgres.StockItem, error)
}

// ProcedureSearcher exposes the procedure catalog.
type ProcedureSearcher interface {
	SearchProcedures(ctx context.Context, query string) ([]draft.Procedure, error)
}

// CatalogHandler serves patient, stock and procedure lookups plus
// prescription history and attachments.
type CatalogHandler struct {
	patients      session.PatientDirectory
	prescriptions session.PrescriptionStore
	stock         StockSearcher
	procedures    ProcedureSearcher
	logger        *zap.Logger
}

// NewCatalogHandler wires the lookup endpoints.
func NewCatalogHandler(patients session.PatientDirectory, prescriptions session.PrescriptionStore, stock StockSearcher, procedures ProcedureSearcher, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{
		patients:      patients,
		prescriptions: prescriptions,
		stock:         stock,
		procedures:    procedures,
		logger:        logger,
	}
}

// Routes returns the catalog routes.
func (h *CatalogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/patients", h.SearchPatients)
	r.Get("/patients/{patientID}", h.GetPatient)
	r.Put("/patients/{patientID}", h.UpdatePatient)
	r.Get("/patients/{patientID}/prescriptions", h.PatientHistory)
	r.Get("/stock", h.SearchStock)
	r.Get("/procedures", h.SearchProcedures)
	r.Put("/prescriptions/{prescriptionID}/images", h.UpdateImages)
	r.Delete("/prescriptions/{prescriptionID}/images/{imageID}", h.RemoveImage)
	return r
}

// SearchPatients handles GET /patients?q=.
func (h *CatalogHandler) SearchPatients(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	patients, err := h.patients.SearchPatients(r.Context(), q)
	if err != nil {
		h.logger.Error("patient search failed", zap.Error(err))
		h.jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"patients": patients})
}

// GetPatient handles GET /patients/{patientID}.
func (h *CatalogHandler) GetPatient(w http.ResponseWriter, r *http.Request) {
	p, err := h.patients.GetPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("get patient failed", zap.Error(err))
		h.jsonError(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

type updatePatientRequest struct {
	Name    *string  `json:"name,omitempty"`
	Contact *string  `json:"contact,omitempty"`
	Weight  *float64 `json:"weight,omitempty"`
	Allergy *string  `json:"allergy,omitempty"`
}

// UpdatePatient handles PUT /patients/{patientID}.
func (h *CatalogHandler) UpdatePatient(w http.ResponseWriter, r *http.Request) {
	var req updatePatientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := h.patients.UpdatePatient(r.Context(), chi.URLParam(r, "patientID"), session.PatientUpdate{
		Name:    req.Name,
		Contact: req.Contact,
		Weight:  req.Weight,
		Allergy: req.Allergy,
	})
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "patient not found", http.StatusNotFound)
			return
		}
		h.logger.Error("update patient failed", zap.Error(err))
		h.jsonError(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PatientHistory handles GET /patients/{patientID}/prescriptions.
func (h *CatalogHandler) PatientHistory(w http.ResponseWriter, r *http.Request) {
	rxs, err := h.prescriptions.ByPatient(r.Context(), chi.URLParam(r, "patientID"))
	if err != nil {
		h.logger.Error("patient history failed", zap.Error(err))
		h.jsonError(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"prescriptions": rxs})
}

// SearchStock handles GET /stock?q=.
func (h *CatalogHandler) SearchStock(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.jsonError(w, "q is required", http.StatusBadRequest)
		return
	}
	items, err := h.stock.SearchStock(r.Context(), q)
	if err != nil {
		h.logger.Error("stock search failed", zap.Error(err))
		h.jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// SearchProcedures handles GET /procedures?q=.
func (h *CatalogHandler) SearchProcedures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	procedures, err := h.procedures.SearchProcedures(r.Context(), q)
	if err != nil {
		h.logger.Error("procedure search failed", zap.Error(err))
		h.jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"procedures": procedures})
}

type updateImagesRequest struct {
	Images []session.Image `json:"images"`
}

// UpdateImages handles PUT /prescriptions/{prescriptionID}/images.
func (h *CatalogHandler) UpdateImages(w http.ResponseWriter, r *http.Request) {
	var req updateImagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	err := h.prescriptions.UpdateImages(r.Context(), chi.URLParam(r, "prescriptionID"), req.Images)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "prescription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("update images failed", zap.Error(err))
		h.jsonError(w, "update failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveImage handles DELETE /prescriptions/{prescriptionID}/images/{imageID}.
func (h *CatalogHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	err := h.prescriptions.RemoveImage(r.Context(),
		chi.URLParam(r, "prescriptionID"), chi.URLParam(r, "imageID"))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "prescription not found", http.StatusNotFound)
			return
		}
		h.logger.Error("remove image failed", zap.Error(err))
		h.jsonError(w, "remove failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CatalogHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *CatalogHandler) jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
