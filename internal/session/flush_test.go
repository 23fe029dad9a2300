package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
)

type mockDirectory struct {
	patients map[string]*Patient
	created  []*Patient
	nextID   int
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{patients: make(map[string]*Patient)}
}

func (m *mockDirectory) GetPatient(_ context.Context, id string) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (m *mockDirectory) CreatePatient(_ context.Context, p *Patient) (*Patient, error) {
	m.nextID++
	created := *p
	created.ID = fmt.Sprintf("new-pat-%d", m.nextID)
	m.patients[created.ID] = &created
	m.created = append(m.created, &created)
	return &created, nil
}

func (m *mockDirectory) UpdatePatient(_ context.Context, id string, _ PatientUpdate) error {
	if _, ok := m.patients[id]; !ok {
		return ErrNotFound
	}
	return nil
}

func (m *mockDirectory) SearchPatients(_ context.Context, _ string) ([]*Patient, error) {
	return nil, nil
}

type mockRxStore struct {
	byID     map[string]*Prescription
	nextID   int
	failID   string // Update on this ID fails
	creates  int
	updates  int
}

func newMockRxStore() *mockRxStore {
	return &mockRxStore{byID: make(map[string]*Prescription)}
}

func (m *mockRxStore) ByAppointment(_ context.Context, appointmentID string) ([]*Prescription, error) {
	var out []*Prescription
	for _, rx := range m.byID {
		if rx.AppointmentID == appointmentID {
			out = append(out, rx)
		}
	}
	return out, nil
}

func (m *mockRxStore) ByPatient(_ context.Context, patientID string) ([]*Prescription, error) {
	var out []*Prescription
	for _, rx := range m.byID {
		if rx.PatientID == patientID {
			out = append(out, rx)
		}
	}
	return out, nil
}

func (m *mockRxStore) Create(_ context.Context, rx *Prescription) (string, error) {
	m.nextID++
	m.creates++
	id := fmt.Sprintf("rx-%d", m.nextID)
	stored := *rx
	stored.ID = id
	m.byID[id] = &stored
	return id, nil
}

func (m *mockRxStore) Update(_ context.Context, id string, rx *Prescription) error {
	if id == m.failID {
		return errors.New("storage unavailable")
	}
	existing, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	m.updates++
	existing.Form = rx.Form
	return nil
}

func (m *mockRxStore) UpdateImages(_ context.Context, id string, images []Image) error {
	rx, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	rx.Images = images
	return nil
}

func (m *mockRxStore) RemoveImage(_ context.Context, id, imageID string) error {
	rx, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	kept := rx.Images[:0]
	for _, img := range rx.Images {
		if img.ID != imageID {
			kept = append(kept, img)
		}
	}
	rx.Images = kept
	return nil
}

type mockBook struct {
	charge     float64
	procedures []draft.Procedure
	name       string
}

func (m *mockBook) UpdateCharge(_ context.Context, _ string, amount float64) error {
	m.charge = amount
	return nil
}

func (m *mockBook) UpdateProcedures(_ context.Context, _ string, procedures []draft.Procedure) error {
	m.procedures = procedures
	return nil
}

func (m *mockBook) SyncPatientName(_ context.Context, _ string, name string) error {
	m.name = name
	return nil
}

func fixture() (*Service, *mockDirectory, *mockRxStore, *mockBook) {
	dir := newMockDirectory()
	rx := newMockRxStore()
	book := &mockBook{}
	return NewService(dir, rx, book, zap.NewNop()), dir, rx, book
}

func TestSwitchBackRestoresEdits(t *testing.T) {
	svc, dir, store, _ := fixture()
	ctx := context.Background()
	dir.patients["pat-1"] = &Patient{ID: "pat-1", Name: "Jane Perera", DateOfBirth: "1990-01-01"}
	store.byID["rx-7"] = &Prescription{ID: "rx-7", AppointmentID: "appt-1", PatientID: "pat-2", Form: draft.NewForm()}

	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Complaint = "chest pain"

	res, err := svc.Switch(ctx, sess, draft.PersistedKey("rx-7"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Restored {
		t.Error("first switch should load from persistence")
	}
	res.Form.Complaint = "follow-up"

	res, err = svc.Switch(ctx, sess, draft.OriginalKey("pat-1"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Restored || res.Form.Complaint != "chest pain" {
		t.Fatalf("original draft lost: restored=%v complaint=%q", res.Restored, res.Form.Complaint)
	}

	res, err = svc.Switch(ctx, sess, draft.PersistedKey("rx-7"))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Restored || res.Form.Complaint != "follow-up" {
		t.Fatalf("secondary draft lost: restored=%v complaint=%q", res.Restored, res.Form.Complaint)
	}
}

func TestSwitchMissingOriginalPatientBindsEmpty(t *testing.T) {
	svc, _, _, _ := fixture()
	sess := New("s1", "appt-1", "pat-gone")
	sess.Form().Complaint = "x"
	sess.Bind(draft.PersistedKey("rx-0"), draft.NewForm(), "rx-0", "pat-2")

	res, err := svc.Switch(context.Background(), sess, draft.OriginalKey("pat-gone"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Patient != nil {
		t.Error("expected no patient record")
	}
	if res.Form.Complaint != "" {
		t.Errorf("expected empty form, got complaint %q", res.Form.Complaint)
	}
}

func TestSwitchSubstitutesMismatchedPatientID(t *testing.T) {
	svc, dir, store, _ := fixture()
	ctx := context.Background()
	// The directory answers the pat-2 lookup with a record claiming a
	// different identifier.
	dir.patients["pat-2"] = &Patient{ID: "pat-999", Name: "Kamal Fernando"}
	store.byID["rx-7"] = &Prescription{ID: "rx-7", AppointmentID: "appt-1", PatientID: "pat-2", Form: draft.NewForm()}

	sess := New("s1", "appt-1", "pat-1")
	res, err := svc.Switch(ctx, sess, draft.PersistedKey("rx-7"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Patient == nil {
		t.Fatal("expected a patient record despite the mismatch")
	}
	if res.Patient.ID != "pat-2" {
		t.Errorf("patient ID = %q, want the expected pat-2", res.Patient.ID)
	}
	if res.Patient.Name != "Kamal Fernando" {
		t.Errorf("patient name = %q, record data should survive substitution", res.Patient.Name)
	}
	// The directory's own record must not be rewritten.
	if dir.patients["pat-2"].ID != "pat-999" {
		t.Error("substitution mutated the directory record")
	}
}

func TestFlushAllPersistsEverySlot(t *testing.T) {
	svc, dir, store, book := fixture()
	ctx := context.Background()
	dir.patients["pat-1"] = &Patient{ID: "pat-1", Name: "Jane Perera", DateOfBirth: "1990-01-01"}

	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Complaint = "fever"
	sess.Form().Charge = 1500

	form := sess.BeginAddPatient()
	*form.NewPatient = draft.NewPatient{Name: "Nimal Silva", DateOfBirth: "2015-03-10", Contact: "0771234567"}
	form.Diagnosis = "tonsillitis"
	sess.SaveActive()

	report, ledger, err := svc.FlushAll(ctx, sess, NewLedger(), FlushOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Persisted) != 2 {
		t.Fatalf("persisted %d slots, want 2: %v", len(report.Persisted), report.Persisted)
	}
	if len(dir.created) != 1 || dir.created[0].Name != "Nimal Silva" {
		t.Fatalf("created patients = %+v", dir.created)
	}
	if store.creates != 2 {
		t.Errorf("prescription creates = %d, want 2", store.creates)
	}
	if len(ledger) != 1 {
		t.Errorf("ledger size = %d, want 1", len(ledger))
	}
	if len(sess.Keys()) != 0 {
		t.Errorf("store not cleaned up: %v", sess.Keys())
	}
	if book.charge != 0 {
		// active slot at flush time is the temp slot, which carries no charge
		t.Errorf("charge = %v", book.charge)
	}
	if book.name != "Nimal Silva" {
		t.Errorf("appointment name = %q", book.name)
	}
}

func TestFlushAllSuppressesDuplicateIdentity(t *testing.T) {
	svc, dir, store, _ := fixture()
	ctx := context.Background()
	dir.patients["pat-1"] = &Patient{ID: "pat-1", Name: "Jane Perera"}

	sess := New("s1", "appt-1", "pat-1")
	identity := draft.NewPatient{Name: "Saman Kumara", DateOfBirth: "1980-06-01", Contact: "0712223334"}

	form := sess.BeginAddPatient()
	*form.NewPatient = identity
	sess.SaveActive()

	// Same person entered again under a differently-spelled temporary slot.
	second := draft.NewForm()
	again := identity
	second.NewPatient = &again
	sess.Bind(draft.TemporaryKey("saman  KUMARA x"), second, "", "")
	sess.SaveActive()

	report, _, err := svc.FlushAll(ctx, sess, NewLedger(), FlushOptions{Quiet: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(dir.created) != 1 {
		t.Fatalf("created %d patients, want 1", len(dir.created))
	}
	if len(report.Duplicates) != 1 {
		t.Fatalf("duplicates = %v, want 1", report.Duplicates)
	}
	_ = store
}

func TestFlushAllSkipsIncompleteIdentity(t *testing.T) {
	svc, dir, _, _ := fixture()
	sess := New("s1", "appt-1", "pat-1")

	form := sess.BeginAddPatient()
	form.NewPatient.Name = "No Contact"
	sess.SaveActive()

	report, _, err := svc.FlushAll(context.Background(), sess, NewLedger(), FlushOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Skipped) != 1 {
		t.Fatalf("skipped = %v, want 1", report.Skipped)
	}
	if len(dir.created) != 0 {
		t.Fatalf("created patients for incomplete identity: %+v", dir.created)
	}
}

func TestFlushAllIsolatesSlotFailure(t *testing.T) {
	svc, dir, store, _ := fixture()
	ctx := context.Background()
	dir.patients["pat-1"] = &Patient{ID: "pat-1", Name: "Jane Perera"}
	store.byID["rx-bad"] = &Prescription{ID: "rx-bad", AppointmentID: "appt-1", PatientID: "pat-2", Form: draft.NewForm()}
	store.failID = "rx-bad"

	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Complaint = "fever"
	sess.SaveActive()
	sess.Bind(draft.PersistedKey("rx-bad"), draft.NewForm(), "rx-bad", "pat-2")
	sess.Form().Complaint = "broken"

	// Make the original slot active again so the failing slot is secondary.
	if _, err := svc.Switch(ctx, sess, draft.OriginalKey("pat-1")); err != nil {
		t.Fatal(err)
	}

	report, _, err := svc.FlushAll(ctx, sess, NewLedger(), FlushOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Failed) != 1 || report.Failed[0] != draft.PersistedKey("rx-bad") {
		t.Fatalf("failed = %v", report.Failed)
	}
	if len(report.Persisted) != 1 {
		t.Fatalf("persisted = %v, want the original slot only", report.Persisted)
	}
	// Failed slot stays queued for the next pass.
	if _, ok := sess.Slot(draft.PersistedKey("rx-bad")); !ok {
		t.Fatal("failed slot was dropped from the store")
	}
}

func TestFlushAllRejectsInvalidActiveForm(t *testing.T) {
	svc, _, _, _ := fixture()
	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Procedures = append(sess.Form().Procedures, draft.Procedure{Name: "Dressing"})

	_, _, err := svc.FlushAll(context.Background(), sess, NewLedger(), FlushOptions{})
	if err == nil {
		t.Fatal("expected validation error for zero-charge procedure")
	}
}

func TestFlushGuard(t *testing.T) {
	svc, _, _, _ := fixture()
	sess := New("s1", "appt-1", "pat-1")
	if !sess.beginFlush() {
		t.Fatal("first claim should succeed")
	}
	_, _, err := svc.FlushAll(context.Background(), sess, NewLedger(), FlushOptions{})
	if !errors.Is(err, ErrFlushInProgress) {
		t.Fatalf("err = %v, want ErrFlushInProgress", err)
	}
	sess.endFlush()
	if _, _, err := svc.FlushAll(context.Background(), sess, NewLedger(), FlushOptions{}); err != nil {
		t.Fatalf("flush after release failed: %v", err)
	}
}
