// Package session maintains per-patient prescription drafts across an
// editing session: saving and restoring slots when the active patient
// switches, and flushing every dirty slot to the persistence collaborators
// in one save operation.
package session

import (
	"context"
	"errors"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
)

// ErrNotFound is returned by collaborators when the requested record does
// not exist. Callers handle it with an explicit fallback path.
var ErrNotFound = errors.New("record not found")

// Patient is the persisted patient identity.
type Patient struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Contact     string  `json:"contact"`
	DateOfBirth string  `json:"date_of_birth"`
	Gender      string  `json:"gender"`
	Weight      float64 `json:"weight,omitempty"`
	Allergy     string  `json:"allergy,omitempty"`
}

// PatientUpdate carries partial patient fields; nil members are untouched.
type PatientUpdate struct {
	Name    *string
	Contact *string
	Weight  *float64
	Allergy *string
}

// Image is one attachment on a persisted prescription.
type Image struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Prescription is the persisted form of one patient's draft.
type Prescription struct {
	ID            string      `json:"id"`
	AppointmentID string      `json:"appointment_id"`
	PatientID     string      `json:"patient_id"`
	PatientName   string      `json:"patient_name"`
	PatientAge    string      `json:"patient_age,omitempty"`
	Form          *draft.Form `json:"form"`
	Images        []Image     `json:"images,omitempty"`
}

// PatientDirectory is the patient lookup/update/create collaborator.
type PatientDirectory interface {
	GetPatient(ctx context.Context, id string) (*Patient, error)
	CreatePatient(ctx context.Context, p *Patient) (*Patient, error)
	UpdatePatient(ctx context.Context, id string, update PatientUpdate) error
	SearchPatients(ctx context.Context, query string) ([]*Patient, error)
}

// PrescriptionStore is the prescription persistence collaborator.
type PrescriptionStore interface {
	ByAppointment(ctx context.Context, appointmentID string) ([]*Prescription, error)
	ByPatient(ctx context.Context, patientID string) ([]*Prescription, error)
	Create(ctx context.Context, rx *Prescription) (string, error)
	Update(ctx context.Context, id string, rx *Prescription) error
	UpdateImages(ctx context.Context, id string, images []Image) error
	RemoveImage(ctx context.Context, id, imageID string) error
}

// AppointmentBook mutates the appointment record the session belongs to.
type AppointmentBook interface {
	UpdateCharge(ctx context.Context, appointmentID string, amount float64) error
	UpdateProcedures(ctx context.Context, appointmentID string, procedures []draft.Procedure) error
	SyncPatientName(ctx context.Context, appointmentID, name string) error
}
