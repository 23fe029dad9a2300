package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
	"github.com/clinidesk/go-rxpad/pkg/agefmt"
	"github.com/clinidesk/go-rxpad/pkg/idempotency"
)

// ErrFlushInProgress is returned when a flush is already running for the
// session; the caller retries after the current pass completes.
var ErrFlushInProgress = errors.New("flush already in progress")

// Ledger maps identity fingerprints to the slot key that already persisted
// that identity. It is threaded through flush passes so a patient entered
// twice under different temporary slots is only created once.
type Ledger map[string]draft.SlotKey

// NewLedger returns an empty fingerprint ledger.
func NewLedger() Ledger {
	return make(Ledger)
}

// Service reconciles session drafts against the persistence collaborators.
type Service struct {
	patients      PatientDirectory
	prescriptions PrescriptionStore
	appointments  AppointmentBook
	logger        *zap.Logger

	now func() time.Time
}

// NewService wires the reconciliation service.
func NewService(patients PatientDirectory, prescriptions PrescriptionStore, appointments AppointmentBook, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		patients:      patients,
		prescriptions: prescriptions,
		appointments:  appointments,
		logger:        logger,
		now:           time.Now,
	}
}

// SwitchResult describes the draft bound after a patient switch.
type SwitchResult struct {
	Form *draft.Form
	// Patient is set when the target resolved to a known patient record.
	Patient *Patient
	// Restored is true when the draft came from the in-session store rather
	// than persistence or a fresh form.
	Restored bool
}

// Switch saves the active slot and binds the target slot's draft: the
// in-session snapshot when one exists, otherwise the persisted prescription,
// otherwise an empty form.
func (s *Service) Switch(ctx context.Context, sess *Session, target draft.SlotKey) (*SwitchResult, error) {
	sess.SaveActive()

	if form, ok := sess.Restore(target); ok {
		res := &SwitchResult{Form: form, Restored: true}
		if target.Kind == draft.KindOriginal {
			if p, err := s.patients.GetPatient(ctx, target.PatientID); err == nil {
				res.Patient = s.verifiedPatient(target.PatientID, p)
			}
		}
		return res, nil
	}

	switch target.Kind {
	case draft.KindOriginal:
		return s.bindOriginal(ctx, sess, target)
	case draft.KindPersisted:
		return s.bindPersisted(ctx, sess, target)
	default:
		form := draft.NewForm()
		form.NewPatient = &draft.NewPatient{Name: target.Name}
		return &SwitchResult{Form: sess.Bind(target, form, "", "")}, nil
	}
}

// bindOriginal loads the original patient's slot. An existing prescription
// for this appointment wins; otherwise the patient record seeds an empty
// form. A missing patient record is logged and still yields an empty form so
// the session stays usable.
func (s *Service) bindOriginal(ctx context.Context, sess *Session, target draft.SlotKey) (*SwitchResult, error) {
	rxs, err := s.prescriptions.ByAppointment(ctx, sess.AppointmentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("load appointment prescriptions: %w", err)
	}
	for _, rx := range rxs {
		if rx.PatientID == target.PatientID && rx.Form != nil {
			form := sess.Bind(target, rx.Form.Clone(), rx.ID, rx.PatientID)
			res := &SwitchResult{Form: form}
			if p, perr := s.patients.GetPatient(ctx, target.PatientID); perr == nil {
				res.Patient = s.verifiedPatient(target.PatientID, p)
			}
			return res, nil
		}
	}

	p, err := s.patients.GetPatient(ctx, target.PatientID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load patient %s: %w", target.PatientID, err)
		}
		s.logger.Warn("original patient missing, binding empty draft",
			zap.String("patient_id", target.PatientID),
			zap.String("appointment_id", sess.AppointmentID))
	}
	return &SwitchResult{
		Form:    sess.Bind(target, draft.NewForm(), "", ""),
		Patient: s.verifiedPatient(target.PatientID, p),
	}, nil
}

// verifiedPatient guards against a directory lookup handing back a record for
// a different patient than the one asked for. The mismatch is logged and the
// expected identifier substituted on a copy, so the slot and any subsequent
// writes stay bound to the patient the caller resolved.
func (s *Service) verifiedPatient(expectedID string, p *Patient) *Patient {
	if p == nil || p.ID == expectedID {
		return p
	}
	s.logger.Warn("patient lookup returned mismatched record",
		zap.String("expected_patient_id", expectedID),
		zap.String("returned_patient_id", p.ID))
	c := *p
	c.ID = expectedID
	return &c
}

func (s *Service) bindPersisted(ctx context.Context, sess *Session, target draft.SlotKey) (*SwitchResult, error) {
	rxs, err := s.prescriptions.ByAppointment(ctx, sess.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("load appointment prescriptions: %w", err)
	}
	for _, rx := range rxs {
		if rx.ID == target.PrescriptionID {
			form := rx.Form
			if form == nil {
				form = draft.NewForm()
			}
			res := &SwitchResult{Form: sess.Bind(target, form.Clone(), rx.ID, rx.PatientID)}
			if p, perr := s.patients.GetPatient(ctx, rx.PatientID); perr == nil {
				res.Patient = s.verifiedPatient(rx.PatientID, p)
			}
			return res, nil
		}
	}
	return nil, fmt.Errorf("prescription %s: %w", target.PrescriptionID, ErrNotFound)
}

// FlushOptions tunes one flush pass.
type FlushOptions struct {
	// Quiet suppresses the per-slot info logging; failures are always logged.
	Quiet bool
}

// FlushReport summarizes one flush pass.
type FlushReport struct {
	// Persisted maps each flushed slot key (stringified) to the prescription
	// ID it was written as.
	Persisted map[string]string
	// Failed lists slots whose persistence failed; they stay in the store
	// for the next pass.
	Failed []draft.SlotKey
	// Skipped lists temporary slots dropped for incomplete identity.
	Skipped []draft.SlotKey
	// Duplicates lists temporary slots suppressed by the fingerprint ledger.
	Duplicates []draft.SlotKey
}

// FlushAll persists every stored slot plus the active draft. The active slot
// goes first; remaining slots flush in stable key order, each isolated so one
// failure does not abort the pass. Temporary slots with incomplete identity
// are skipped, and identities already in the ledger are suppressed as
// duplicates. Returns the updated ledger alongside the report.
func (s *Service) FlushAll(ctx context.Context, sess *Session, ledger Ledger, opts FlushOptions) (*FlushReport, Ledger, error) {
	if !sess.beginFlush() {
		return nil, ledger, ErrFlushInProgress
	}
	defer sess.endFlush()

	if ledger == nil {
		ledger = NewLedger()
	}

	if err := validateForm(sess.Form()); err != nil {
		return nil, ledger, err
	}

	activeKey := sess.SaveActive()

	keys := sess.Keys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	// Active slot first: its failure aborts the pass, secondary slots don't.
	ordered := make([]draft.SlotKey, 0, len(keys))
	ordered = append(ordered, activeKey)
	for _, k := range keys {
		if k != activeKey {
			ordered = append(ordered, k)
		}
	}

	report := &FlushReport{Persisted: make(map[string]string)}
	for _, key := range ordered {
		form, ok := sess.Slot(key)
		if !ok {
			continue
		}
		rxID, err := s.persistSlot(ctx, sess, key, form, ledger, report)
		if err != nil {
			if key == activeKey {
				return nil, ledger, fmt.Errorf("persist active draft: %w", err)
			}
			s.logger.Error("slot flush failed",
				zap.String("slot", key.String()),
				zap.String("appointment_id", sess.AppointmentID),
				zap.Error(err))
			report.Failed = append(report.Failed, key)
			continue
		}
		if rxID != "" {
			report.Persisted[key.String()] = rxID
			if !opts.Quiet {
				s.logger.Info("slot flushed",
					zap.String("slot", key.String()),
					zap.String("prescription_id", rxID))
			}
		}
		sess.Remove(key)
	}

	s.syncAppointment(ctx, sess, activeKey)
	return report, ledger, nil
}

// persistSlot writes one slot. Temporary slots create the patient first;
// persisted slots update in place; the original slot updates its loaded
// prescription or creates the appointment's first one.
func (s *Service) persistSlot(ctx context.Context, sess *Session, key draft.SlotKey, form *draft.Form, ledger Ledger, report *FlushReport) (string, error) {
	switch key.Kind {
	case draft.KindPersisted:
		rx := &Prescription{
			ID:            key.PrescriptionID,
			AppointmentID: sess.AppointmentID,
			Form:          form,
		}
		if err := s.prescriptions.Update(ctx, key.PrescriptionID, rx); err != nil {
			return "", err
		}
		return key.PrescriptionID, nil

	case draft.KindTemporary:
		np := form.NewPatient
		if np == nil || !np.Complete() {
			report.Skipped = append(report.Skipped, key)
			return "", nil
		}
		fp := idempotency.FingerprintIdentity(np.Name, np.DateOfBirth, np.Contact)
		if prior, dup := ledger[fp]; dup {
			s.logger.Info("duplicate identity suppressed",
				zap.String("slot", key.String()),
				zap.String("matches", prior.String()))
			report.Duplicates = append(report.Duplicates, key)
			return "", nil
		}
		created, err := s.patients.CreatePatient(ctx, &Patient{
			Name:        np.Name,
			DateOfBirth: np.DateOfBirth,
			Gender:      np.Gender,
			Contact:     np.Contact,
		})
		if err != nil {
			return "", fmt.Errorf("create patient: %w", err)
		}
		rxID, err := s.prescriptions.Create(ctx, &Prescription{
			AppointmentID: sess.AppointmentID,
			PatientID:     created.ID,
			PatientName:   created.Name,
			PatientAge:    agefmt.FormatDOB(np.DateOfBirth, s.now()),
			Form:          form,
		})
		if err != nil {
			return "", fmt.Errorf("create prescription: %w", err)
		}
		ledger[fp] = key
		return rxID, nil

	default: // original patient
		return s.persistOriginal(ctx, sess, key, form)
	}
}

func (s *Service) persistOriginal(ctx context.Context, sess *Session, key draft.SlotKey, form *draft.Form) (string, error) {
	rxs, err := s.prescriptions.ByAppointment(ctx, sess.AppointmentID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("load appointment prescriptions: %w", err)
	}
	for _, rx := range rxs {
		if rx.PatientID == key.PatientID {
			rx.Form = form
			if err := s.prescriptions.Update(ctx, rx.ID, rx); err != nil {
				return "", err
			}
			return rx.ID, nil
		}
	}

	var name, age string
	if p, perr := s.patients.GetPatient(ctx, key.PatientID); perr == nil {
		p = s.verifiedPatient(key.PatientID, p)
		name = p.Name
		age = agefmt.FormatDOB(p.DateOfBirth, s.now())
	}
	rxID, err := s.prescriptions.Create(ctx, &Prescription{
		AppointmentID: sess.AppointmentID,
		PatientID:     key.PatientID,
		PatientName:   name,
		PatientAge:    age,
		Form:          form,
	})
	if err != nil {
		return "", err
	}
	return rxID, nil
}

// syncAppointment pushes the active draft's charge, procedures and patient
// name to the appointment record. Best-effort: failures are logged, the
// flush already succeeded.
func (s *Service) syncAppointment(ctx context.Context, sess *Session, activeKey draft.SlotKey) {
	form, ok := sess.Slot(activeKey)
	if !ok {
		form = sess.Form()
	}
	if form.Charge > 0 {
		if err := s.appointments.UpdateCharge(ctx, sess.AppointmentID, form.Charge); err != nil {
			s.logger.Warn("appointment charge sync failed",
				zap.String("appointment_id", sess.AppointmentID), zap.Error(err))
		}
	}
	if len(form.Procedures) > 0 {
		if err := s.appointments.UpdateProcedures(ctx, sess.AppointmentID, form.Procedures); err != nil {
			s.logger.Warn("appointment procedures sync failed",
				zap.String("appointment_id", sess.AppointmentID), zap.Error(err))
		}
	}
	if form.NewPatient != nil && form.NewPatient.Name != "" {
		if err := s.appointments.SyncPatientName(ctx, sess.AppointmentID, form.NewPatient.Name); err != nil {
			s.logger.Warn("appointment name sync failed",
				zap.String("appointment_id", sess.AppointmentID), zap.Error(err))
		}
	}
}

// validateForm rejects drafts a flush must not persist: unnamed medicines
// and zero-charge procedures.
func validateForm(form *draft.Form) error {
	for _, m := range form.InventoryMedicines {
		if m.Name == "" {
			return errors.New("inventory medicine missing name")
		}
	}
	for _, m := range form.WrittenMedicines {
		if m.Name == "" {
			return errors.New("written medicine missing name")
		}
	}
	for _, p := range form.Procedures {
		if p.Name != "" && p.Charge <= 0 {
			return fmt.Errorf("procedure %q has no charge", p.Name)
		}
	}
	return nil
}
