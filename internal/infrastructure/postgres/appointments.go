package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
	"github.com/clinidesk/go-rxpad/internal/session"
)

// AppointmentRepo updates the appointment row a session belongs to.
type AppointmentRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewAppointmentRepo creates the repository.
func NewAppointmentRepo(pool *pgxpool.Pool, logger *zap.Logger) *AppointmentRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentRepo{pool: pool, logger: logger}
}

var _ session.AppointmentBook = (*AppointmentRepo)(nil)

// UpdateCharge sets the consultation charge.
func (r *AppointmentRepo) UpdateCharge(ctx context.Context, appointmentID string, amount float64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET charge = $2, updated_at = NOW() WHERE id = $1`,
		appointmentID, amount)
	if err != nil {
		return fmt.Errorf("update charge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// UpdateProcedures replaces the procedure list document.
func (r *AppointmentRepo) UpdateProcedures(ctx context.Context, appointmentID string, procedures []draft.Procedure) error {
	encoded, err := json.Marshal(procedures)
	if err != nil {
		return fmt.Errorf("encode procedures: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET procedures = $2, updated_at = NOW() WHERE id = $1`,
		appointmentID, encoded)
	if err != nil {
		return fmt.Errorf("update procedures: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// SyncPatientName mirrors a renamed walk-in patient onto the appointment.
func (r *AppointmentRepo) SyncPatientName(ctx context.Context, appointmentID, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE appointments SET patient_name = $2, updated_at = NOW() WHERE id = $1`,
		appointmentID, name)
	if err != nil {
		return fmt.Errorf("sync patient name: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// GetOriginalPatientID resolves the patient the appointment was booked for.
func (r *AppointmentRepo) GetOriginalPatientID(ctx context.Context, appointmentID string) (string, error) {
	var patientID string
	err := r.pool.QueryRow(ctx,
		`SELECT patient_id FROM appointments WHERE id = $1`, appointmentID).Scan(&patientID)
	if err != nil {
		return "", fmt.Errorf("get appointment patient: %w", err)
	}
	return patientID, nil
}
