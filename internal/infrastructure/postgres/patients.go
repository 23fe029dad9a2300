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

	"github.com/clinidesk/go-rxpad/internal/infrastructure/redpanda"
	"github.com/clinidesk/go-rxpad/internal/session"
)

// PatientRepo persists patient records.
type PatientRepo struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPatientRepo creates the repository.
func NewPatientRepo(pool *pgxpool.Pool, logger *zap.Logger) *PatientRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatientRepo{pool: pool, logger: logger}
}

var _ session.PatientDirectory = (*PatientRepo)(nil)

// GetPatient loads one patient by ID.
func (r *PatientRepo) GetPatient(ctx context.Context, id string) (*session.Patient, error) {
	query := `
		SELECT id, name, contact, date_of_birth, gender, weight, allergy
		FROM patients
		WHERE id = $1
	`
	p := &session.Patient{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Contact, &p.DateOfBirth, &p.Gender, &p.Weight, &p.Allergy,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// CreatePatient inserts a patient and records a patient.created event in
// the same transaction.
func (r *PatientRepo) CreatePatient(ctx context.Context, p *session.Patient) (*session.Patient, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	created := *p
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	query := `
		INSERT INTO patients (id, name, contact, date_of_birth, gender, weight, allergy)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := tx.Exec(ctx, query,
		created.ID, created.Name, created.Contact, created.DateOfBirth,
		created.Gender, created.Weight, created.Allergy); err != nil {
		return nil, fmt.Errorf("insert patient: %w", err)
	}

	payload, err := json.Marshal(redpanda.PatientCreatedEvent{
		PatientID:   created.ID,
		Name:        created.Name,
		DateOfBirth: created.DateOfBirth,
		Contact:     created.Contact,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	if err := WriteEntry(ctx, tx, &OutboxEntry{
		AggregateID:   created.ID,
		AggregateType: "patient",
		EventType:     "patient.created",
		Payload:       payload,
		Topic:         redpanda.TopicPatientCreated,
		Key:           created.ID,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	r.logger.Info("patient created", zap.String("patient_id", created.ID))
	return &created, nil
}

// UpdatePatient applies a partial update; nil fields are untouched.
func (r *PatientRepo) UpdatePatient(ctx context.Context, id string, update session.PatientUpdate) error {
	query := `
		UPDATE patients
		SET name = COALESCE($2, name),
		    contact = COALESCE($3, contact),
		    weight = COALESCE($4, weight),
		    allergy = COALESCE($5, allergy),
		    updated_at = NOW()
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, id, update.Name, update.Contact, update.Weight, update.Allergy)
	if err != nil {
		return fmt.Errorf("update patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrNotFound
	}
	return nil
}

// SearchPatients matches name or contact, newest first.
func (r *PatientRepo) SearchPatients(ctx context.Context, query string) ([]*session.Patient, error) {
	sql := `
		SELECT id, name, contact, date_of_birth, gender, weight, allergy
		FROM patients
		WHERE name ILIKE '%' || $1 || '%' OR contact LIKE '%' || $1 || '%'
		ORDER BY created_at DESC
		LIMIT 25
	`
	rows, err := r.pool.Query(ctx, sql, query)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var out []*session.Patient
	for rows.Next() {
		p := &session.Patient{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Contact, &p.DateOfBirth, &p.Gender, &p.Weight, &p.Allergy); err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
