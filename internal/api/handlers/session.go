// Package handlers provides HTTP handlers for the prescription pad API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/dosage"
	"github.com/clinidesk/go-rxpad/internal/domain/draft"
	"github.com/clinidesk/go-rxpad/internal/observability/metrics"
	"github.com/clinidesk/go-rxpad/internal/session"
	"github.com/clinidesk/go-rxpad/pkg/idempotency"
)

// AppointmentResolver looks up the patient an appointment was booked for.
type AppointmentResolver interface {
	GetOriginalPatientID(ctx context.Context, appointmentID string) (string, error)
}

// SessionHandler exposes the draft-editing session API.
type SessionHandler struct {
	manager      *session.Manager
	service      *session.Service
	appointments AppointmentResolver
	inbox        *idempotency.Inbox
	metrics      *metrics.Metrics
	logger       *zap.Logger
}

// NewSessionHandler wires the session endpoints.
func NewSessionHandler(manager *session.Manager, service *session.Service, appointments AppointmentResolver, inbox *idempotency.Inbox, m *metrics.Metrics, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		manager:      manager,
		service:      service,
		appointments: appointments,
		inbox:        inbox,
		metrics:      m,
		logger:       logger,
	}
}

// Routes returns the session routes.
func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Open)
	r.Route("/{sessionID}", func(r chi.Router) {
		r.Delete("/", h.Close)
		r.Get("/draft", h.GetDraft)
		r.Put("/draft", h.UpdateDraft)
		r.Post("/medicines", h.AddMedicine)
		r.Put("/medicines/{medicineID}", h.UpdateMedicine)
		r.Delete("/medicines/{medicineID}", h.RemoveMedicine)
		r.Post("/switch", h.Switch)
		r.Post("/patients/new", h.BeginAddPatient)
		r.Delete("/patients/new", h.CancelAddPatient)
		r.Post("/flush", h.Flush)
	})
	return r
}

// keyPayload is the wire form of a slot key.
type keyPayload struct {
	Kind           string `json:"kind"`
	PatientID      string `json:"patient_id,omitempty"`
	Name           string `json:"name,omitempty"`
	PrescriptionID string `json:"prescription_id,omitempty"`
}

func (k keyPayload) toSlotKey() (draft.SlotKey, error) {
	switch k.Kind {
	case "original":
		if k.PatientID == "" {
			return draft.SlotKey{}, errors.New("patient_id is required for original keys")
		}
		return draft.OriginalKey(k.PatientID), nil
	case "temporary":
		if k.Name == "" {
			return draft.UnnamedTemporaryKey(), nil
		}
		return draft.TemporaryKey(k.Name), nil
	case "persisted":
		if k.PrescriptionID == "" {
			return draft.SlotKey{}, errors.New("prescription_id is required for persisted keys")
		}
		return draft.PersistedKey(k.PrescriptionID), nil
	default:
		return draft.SlotKey{}, errors.New("kind must be original, temporary or persisted")
	}
}

func encodeKey(key draft.SlotKey) keyPayload {
	switch key.Kind {
	case draft.KindOriginal:
		return keyPayload{Kind: "original", PatientID: key.PatientID}
	case draft.KindTemporary:
		return keyPayload{Kind: "temporary", Name: key.Name}
	default:
		return keyPayload{Kind: "persisted", PrescriptionID: key.PrescriptionID}
	}
}

type openRequest struct {
	AppointmentID string `json:"appointment_id"`
	PatientID     string `json:"patient_id,omitempty"`
}

type openResponse struct {
	SessionID string           `json:"session_id"`
	ActiveKey keyPayload       `json:"active_key"`
	Form      *draft.Form      `json:"form"`
	Patient   *session.Patient `json:"patient,omitempty"`
}

// Open handles POST /sessions.
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.AppointmentID == "" {
		h.jsonError(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	patientID := req.PatientID
	if patientID == "" {
		resolved, err := h.appointments.GetOriginalPatientID(ctx, req.AppointmentID)
		if err != nil {
			h.logger.Error("resolve appointment failed", zap.Error(err))
			h.jsonError(w, "appointment not found", http.StatusNotFound)
			return
		}
		patientID = resolved
	}

	sess := h.manager.Open(req.AppointmentID, patientID)
	h.metrics.ActiveSessions.Inc()

	// Seed the active form from the appointment's persisted prescription,
	// when one exists.
	res, err := h.service.Switch(ctx, sess, draft.OriginalKey(patientID))
	if err != nil {
		h.manager.Close(sess.ID)
		h.metrics.ActiveSessions.Dec()
		h.logger.Error("seed session failed", zap.Error(err))
		h.jsonError(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, openResponse{
		SessionID: sess.ID,
		ActiveKey: encodeKey(sess.ActiveKey()),
		Form:      res.Form,
		Patient:   res.Patient,
	})
}

// Close handles DELETE /sessions/{sessionID}.
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if _, ok := h.manager.Get(id); !ok {
		h.jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	h.manager.Close(id)
	h.metrics.ActiveSessions.Dec()
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) sessionFrom(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := h.manager.Get(chi.URLParam(r, "sessionID"))
	if !ok {
		h.jsonError(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// GetDraft handles GET /sessions/{sessionID}/draft.
func (h *SessionHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"active_key": encodeKey(sess.ActiveKey()),
		"form":       sess.Form(),
	})
}

// UpdateDraft handles PUT /sessions/{sessionID}/draft. The body replaces
// the form's fields wholesale; medicine lines keep their derived values.
func (h *SessionHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	incoming := draft.NewForm()
	if err := json.NewDecoder(r.Body).Decode(incoming); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	form := sess.Form()
	*form = *incoming
	sess.SaveActive()
	h.metrics.DraftsSaved.Inc()

	h.writeJSON(w, http.StatusOK, map[string]any{"form": form})
}

type addMedicineRequest struct {
	Source draft.Source `json:"source"`
}

// AddMedicine handles POST /sessions/{sessionID}/medicines.
func (h *SessionHandler) AddMedicine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	var req addMedicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Source != draft.SourceInventory && req.Source != draft.SourceWritten {
		h.jsonError(w, "source must be inventory or written", http.StatusBadRequest)
		return
	}

	m := draft.NewMedicine(req.Source)
	form := sess.Form()
	if req.Source == draft.SourceInventory {
		form.InventoryMedicines = append(form.InventoryMedicines, m)
	} else {
		form.WrittenMedicines = append(form.WrittenMedicines, m)
	}

	h.writeJSON(w, http.StatusCreated, m)
}

type updateMedicineRequest struct {
	Name        *string  `json:"name,omitempty"`
	Dose        *string  `json:"dose,omitempty"`
	CustomML    *float64 `json:"custom_ml,omitempty"`
	Frequency   *string  `json:"frequency,omitempty"`
	Days        *int     `json:"days,omitempty"`
	Quantity    *int     `json:"quantity,omitempty"`
	Instruction *string  `json:"instruction,omitempty"`
	StockItemID *string  `json:"stock_item_id,omitempty"`
}

// UpdateMedicine handles PUT /sessions/{sessionID}/medicines/{medicineID}.
// Dose, frequency, days and custom volume changes re-derive the quantity;
// an explicit quantity marks the line manually quantified.
func (h *SessionHandler) UpdateMedicine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	var req updateMedicineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m := sess.Form().Medicine(chi.URLParam(r, "medicineID"))
	if m == nil {
		h.jsonError(w, "medicine not found", http.StatusNotFound)
		return
	}

	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Instruction != nil {
		m.Instruction = *req.Instruction
	}
	if req.StockItemID != nil {
		m.StockItemID = *req.StockItemID
	}

	recalc := false
	if req.Dose != nil {
		m.Dose = *req.Dose
		recalc = true
	}
	if req.CustomML != nil {
		m.CustomML = *req.CustomML
		recalc = true
	}
	if req.Frequency != nil {
		m.Frequency = *req.Frequency
		recalc = true
	}
	if req.Days != nil {
		m.Days = *req.Days
		recalc = true
	}
	if recalc {
		m.Recalculate()
	}
	if req.Quantity != nil {
		m.SetQuantity(*req.Quantity)
	}

	h.writeJSON(w, http.StatusOK, m)
}

// RemoveMedicine handles DELETE /sessions/{sessionID}/medicines/{medicineID}.
func (h *SessionHandler) RemoveMedicine(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	if !sess.Form().RemoveMedicine(chi.URLParam(r, "medicineID")) {
		h.jsonError(w, "medicine not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type switchRequest struct {
	Key keyPayload `json:"key"`
}

// Switch handles POST /sessions/{sessionID}/switch.
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}

	var req switchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	key, err := req.Key.toSlotKey()
	if err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Switch(r.Context(), sess, key)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			h.jsonError(w, "target draft not found", http.StatusNotFound)
			return
		}
		h.logger.Error("switch failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		h.jsonError(w, "switch failed", http.StatusInternalServerError)
		return
	}

	h.metrics.PatientSwitches.Inc()
	h.metrics.DraftsSaved.Inc()
	if res.Restored {
		h.metrics.DraftsRestored.Inc()
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"active_key": encodeKey(sess.ActiveKey()),
		"form":       res.Form,
		"patient":    res.Patient,
		"restored":   res.Restored,
	})
}

// BeginAddPatient handles POST /sessions/{sessionID}/patients/new.
func (h *SessionHandler) BeginAddPatient(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	form := sess.BeginAddPatient()
	h.metrics.DraftsSaved.Inc()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"active_key": encodeKey(sess.ActiveKey()),
		"form":       form,
	})
}

// CancelAddPatient handles DELETE /sessions/{sessionID}/patients/new.
func (h *SessionHandler) CancelAddPatient(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	sess.CancelAddPatient()

	res, err := h.service.Switch(r.Context(), sess, draft.OriginalKey(sess.OriginalPatientID))
	if err != nil {
		h.logger.Error("restore after cancel failed", zap.Error(err))
		h.jsonError(w, "failed to restore original draft", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"active_key": encodeKey(sess.ActiveKey()),
		"form":       res.Form,
	})
}

type flushResponse struct {
	Persisted  map[string]string `json:"persisted"`
	Failed     []keyPayload      `json:"failed,omitempty"`
	Skipped    []keyPayload      `json:"skipped,omitempty"`
	Duplicates []keyPayload      `json:"duplicates,omitempty"`
	Replayed   bool              `json:"replayed,omitempty"`
}

// Flush handles POST /sessions/{sessionID}/flush. An Idempotency-Key header
// makes retried requests replay the recorded outcome instead of persisting
// drafts twice.
func (h *SessionHandler) Flush(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessionFrom(w, r)
	if !ok {
		return
	}
	opts := session.FlushOptions{Quiet: r.URL.Query().Get("quiet") == "true"}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		resp, status := h.runFlush(r.Context(), sess, opts)
		if status >= http.StatusBadRequest {
			h.jsonError(w, resp.errorMessage, status)
			return
		}
		h.writeJSON(w, status, resp.flushResponse)
		return
	}

	outcome, err := h.inbox.Process(r.Context(), key, "session_flush", nil,
		func(ctx context.Context, _ json.RawMessage) (json.RawMessage, error) {
			resp, status := h.runFlush(ctx, sess, opts)
			if status >= http.StatusBadRequest {
				return nil, errors.New(resp.errorMessage)
			}
			return json.Marshal(resp.flushResponse)
		})
	if err != nil {
		if errors.Is(err, idempotency.ErrInProgress) {
			h.jsonError(w, "flush already in progress", http.StatusConflict)
			return
		}
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var resp flushResponse
	if err := json.Unmarshal(outcome.Result, &resp); err != nil {
		h.jsonError(w, "corrupt replay record", http.StatusInternalServerError)
		return
	}
	resp.Replayed = outcome.Replayed
	h.writeJSON(w, http.StatusOK, resp)
}

type flushResult struct {
	flushResponse
	errorMessage string
}

func (h *SessionHandler) runFlush(ctx context.Context, sess *session.Session, opts session.FlushOptions) (*flushResult, int) {
	start := time.Now()

	report, ledger, err := h.service.FlushAll(ctx, sess, h.manager.Ledger(sess.ID), opts)
	h.manager.SetLedger(sess.ID, ledger)
	if err != nil {
		if errors.Is(err, session.ErrFlushInProgress) {
			return &flushResult{errorMessage: "flush already in progress"}, http.StatusConflict
		}
		h.logger.Error("flush failed",
			zap.String("session_id", sess.ID),
			zap.Error(err))
		return &flushResult{errorMessage: err.Error()}, http.StatusUnprocessableEntity
	}

	h.metrics.FlushesTotal.Inc()
	h.metrics.FlushDuration.Observe(time.Since(start).Seconds())
	h.metrics.FlushSlotFailures.Add(float64(len(report.Failed)))
	h.metrics.DuplicateSuppressed.Add(float64(len(report.Duplicates)))

	return &flushResult{flushResponse: flushResponse{
		Persisted:  report.Persisted,
		Failed:     encodeKeys(report.Failed),
		Skipped:    encodeKeys(report.Skipped),
		Duplicates: encodeKeys(report.Duplicates),
	}}, http.StatusOK
}

func encodeKeys(keys []draft.SlotKey) []keyPayload {
	if len(keys) == 0 {
		return nil
	}
	out := make([]keyPayload, len(keys))
	for i, k := range keys {
		out[i] = encodeKey(k)
	}
	return out
}

// DosageHandler exposes the dosage calculator for form previews.
type DosageHandler struct{}

// Routes returns the dosage routes.
func (h *DosageHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/derive", h.Derive)
	return r
}

type deriveRequest struct {
	Dose      string  `json:"dose"`
	Frequency string  `json:"frequency"`
	Days      int     `json:"days"`
	CustomML  float64 `json:"custom_ml,omitempty"`
}

// Derive handles POST /dosage/derive.
func (h *DosageHandler) Derive(w http.ResponseWriter, r *http.Request) {
	var req deriveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	d := dosage.Derive(req.Dose, req.Frequency, req.Days, req.CustomML)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"class":        dosage.Classify(req.Dose).String(),
		"per_day":      dosage.PerDay(req.Frequency),
		"quantity":     d.Quantity,
		"total_ml":     d.TotalML,
		"has_total_ml": d.HasTotalML,
		"manual":       d.Manual,
	})
}

func (h *SessionHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *SessionHandler) jsonError(w http.ResponseWriter, msg string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
