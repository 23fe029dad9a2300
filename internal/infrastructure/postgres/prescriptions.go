package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
	"github.com/clinidesk/go-rxpad/internal/infrastructure/redpanda"
	"github.com/clinidesk/go-rxpad/internal/session"
)

// PrescriptionRepo persists prescriptions with the draft form as a JSONB
// document. Saves record prescription.saved and inventory.reserve events in
// the same transaction.
type PrescriptionRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPrescriptionRepo creates the repository.
func NewPrescriptionRepo(pool *pgxpool.Pool, logger *zap.Logger) *PrescriptionRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PrescriptionRepo{pool: pool, logger: logger}
}

var _ session.PrescriptionStore = (*PrescriptionRepo)(nil)

// ByAppointment lists prescriptions saved under an appointment.
func (r *PrescriptionRepo) ByAppointment(ctx context.Context, appointmentID string) ([]*session.Prescription, error) {
	query := `
		SELECT id, appointment_id, patient_id, patient_name, patient_age, content, images
		FROM prescriptions
		WHERE appointment_id = $1
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, appointmentID)
}

// ByPatient lists a patient's prescription history, newest first.
func (r *PrescriptionRepo) ByPatient(ctx context.Context, patientID string) ([]*session.Prescription, error) {
	query := `
		SELECT id, appointment_id, patient_id, patient_name, patient_age, content, images
		FROM prescriptions
		WHERE patient_id = $1
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, patientID)
}

func (r *PrescriptionRepo) list(ctx context.Context, query, arg string) ([]*session.Prescription, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query prescriptions: %w", err)
	}
	defer rows.Close()

	var out []*session.Prescription
	for rows.Next() {
		rx, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rx)
	}
	return out, rows.Err()
}

func scanPrescription(row pgx.Row) (*session.Prescription, error) {
	rx := &session.Prescription{}
	var content, images []byte
	if err := row.Scan(&rx.ID, &rx.AppointmentID, &rx.PatientID,
		&rx.PatientName, &rx.PatientAge, &content, &images); err != nil {
		return nil, fmt.Errorf("scan prescription: %w", err)
	}
	if len(content) > 0 {
		form := &draft.Form{}
		if err := json.Unmarshal(content, form); err != nil {
			return nil, fmt.Errorf("decode prescription content: %w", err)
		}
		rx.Form = form
	}
	if len(images) > 0 {
		if err := json.Unmarshal(images, &rx.Images); err != nil {
			return nil, fmt.Errorf("decode prescription images: %w", err)
		}
	}
	return rx, nil
}

// Create inserts a prescription and its save events atomically.
func (r *PrescriptionRepo) Create(ctx context.Context, rx *session.Prescription) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	id := rx.ID
	if id == "" {
		id = uuid.New().String()
	}
	content, err := json.Marshal(rx.Form)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}
	query := `
		INSERT INTO prescriptions (id, appointment_id, patient_id, patient_name, patient_age, content)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, query, id, rx.AppointmentID, rx.PatientID,
		rx.PatientName, rx.PatientAge, content); err != nil {
		return "", fmt.Errorf("insert prescription: %w", err)
	}

	if err := r.writeSaveEvents(ctx, tx, id, rx); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("prescription created",
		zap.String("prescription_id", id),
		zap.String("appointment_id", rx.AppointmentID))
	return id, nil
}

// Update replaces the form document and records fresh save events.
func (r *PrescriptionRepo) Update(ctx context.Context, id string, rx *session.Prescription) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	content, err := json.Marshal(rx.Form)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}
	tag, err := tx.Exec(ctx,
		`UPDATE prescriptions SET content = $2, updated_at = NOW() WHERE id = $1`, id, content)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}

	if err := r.writeSaveEvents(ctx, tx, id, rx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// writeSaveEvents appends prescription.saved and, when inventory medicines
// are present, inventory.reserve to the outbox.
func (r *PrescriptionRepo) writeSaveEvents(ctx context.Context, tx pgx.Tx, id string, rx *session.Prescription) error {
	now := time.Now().UTC()

	count := 0
	if rx.Form != nil {
		count = len(rx.Form.InventoryMedicines) + len(rx.Form.WrittenMedicines)
	}
	saved, err := json.Marshal(redpanda.PrescriptionSavedEvent{
		PrescriptionID: id,
		AppointmentID:  rx.AppointmentID,
		PatientID:      rx.PatientID,
		MedicineCount:  count,
		SavedAt:        now,
	})
	if err != nil {
		return fmt.Errorf("marshal saved event: %w", err)
	}
	if err := WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   id,
		AggregateType: "prescription",
		EventType:     "prescription.saved",
		Payload:       saved,
		Topic:         redpanda.TopicPrescriptionSaved,
		Key:           id,
	}); err != nil {
		return err
	}

	if rx.Form == nil {
		return nil
	}
	var items []redpanda.ReserveItem
	for _, m := range rx.Form.InventoryMedicines {
		if m.StockItemID == "" || m.Quantity <= 0 {
			continue
		}
		items = append(items, redpanda.ReserveItem{
			StockItemID: m.StockItemID,
			Quantity:    m.Quantity,
		})
	}
	if len(items) == 0 {
		return nil
	}
	reserve, err := json.Marshal(redpanda.InventoryReserveEvent{
		PrescriptionID: id,
		Items:          items,
		RequestedAt:    now,
	})
	if err != nil {
		return fmt.Errorf("marshal reserve event: %w", err)
	}
	return WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   id,
		AggregateType: "prescription",
		EventType:     "inventory.reserve",
		Payload:       reserve,
		Topic:         redpanda.TopicInventoryReserve,
		Key:           id,
	})
}

// UpdateImages replaces the attachment list.
func (r *PrescriptionRepo) UpdateImages(ctx context.Context, id string, images []session.Image) error {
	encoded, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE prescriptions SET images = $2, updated_at = NOW() WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("update images: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// RemoveImage deletes one attachment by ID.
func (r *PrescriptionRepo) RemoveImage(ctx context.Context, id, imageID string) error {
	var encoded []byte
	err := r.pool.QueryRow(ctx, `SELECT images FROM prescriptions WHERE id = $1`, id).Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load images: %w", err)
	}

	var images []session.Image
	if len(encoded) > 0 {
		if err := json.Unmarshal(encoded, &images); err != nil {
			return fmt.Errorf("decode images: %w", err)
		}
	}
	kept := images[:0]
	for _, img := range images {
		if img.ID != imageID {
			kept = append(kept, img)
		}
	}
	return r.UpdateImages(ctx, id, kept)
}
