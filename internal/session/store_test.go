package session

import (
	"testing"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
)

func TestSaveActiveRestoreRoundTrip(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")

	form := sess.Form()
	form.Complaint = "fever"
	m := draft.NewMedicine(draft.SourceWritten)
	m.Name = "Paracetamol 500mg"
	form.WrittenMedicines = append(form.WrittenMedicines, m)

	key := sess.SaveActive()
	if key != draft.OriginalKey("pat-1") {
		t.Fatalf("active key = %v, want original key", key)
	}

	// Mutating the live form must not leak into the snapshot.
	form.Complaint = "mutated"
	form.WrittenMedicines[0].Name = "mutated"

	restored, ok := sess.Restore(key)
	if !ok {
		t.Fatal("expected stored draft")
	}
	if restored.Complaint != "fever" {
		t.Errorf("Complaint = %q, want %q", restored.Complaint, "fever")
	}
	if restored.WrittenMedicines[0].Name != "Paracetamol 500mg" {
		t.Errorf("medicine name = %q", restored.WrittenMedicines[0].Name)
	}
}

func TestSaveActiveIdempotent(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Diagnosis = "viral fever"

	k1 := sess.SaveActive()
	k2 := sess.SaveActive()
	if k1 != k2 {
		t.Fatalf("repeated save changed key: %v vs %v", k1, k2)
	}
	if got := len(sess.Keys()); got != 1 {
		t.Fatalf("slot count = %d, want 1", got)
	}
	f, _ := sess.Slot(k1)
	if f.Diagnosis != "viral fever" {
		t.Errorf("Diagnosis = %q", f.Diagnosis)
	}
}

func TestDeriveKeyAddingMode(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")
	form := sess.BeginAddPatient()

	if got := sess.ActiveKey(); got != draft.UnnamedTemporaryKey() {
		t.Fatalf("unnamed key = %v", got)
	}

	form.NewPatient.Name = "Nimal Silva"
	if got := sess.ActiveKey(); got != draft.TemporaryKey("Nimal Silva") {
		t.Fatalf("named key = %v", got)
	}

	// Once saved, the key is pinned: renaming must not fork the slot.
	sess.SaveActive()
	form.NewPatient.Name = "Nimal  Silva Jr"
	if got := sess.ActiveKey(); got != draft.TemporaryKey("Nimal Silva") {
		t.Fatalf("pinned key = %v, want original temp key", got)
	}
	sess.SaveActive()
	if got := len(sess.Keys()); got != 2 { // original slot + one temp slot
		t.Fatalf("slot count = %d, want 2", got)
	}
}

func TestDeriveKeyLoadedPrescription(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")

	// Prescription loaded for a secondary patient keys by its ID.
	sess.Bind(draft.PersistedKey("rx-9"), draft.NewForm(), "rx-9", "pat-2")
	if got := sess.ActiveKey(); got != draft.PersistedKey("rx-9") {
		t.Fatalf("key = %v, want persisted key", got)
	}

	// The original patient's own loaded prescription keys by patient.
	sess.Bind(draft.OriginalKey("pat-1"), draft.NewForm(), "rx-1", "pat-1")
	if got := sess.ActiveKey(); got != draft.OriginalKey("pat-1") {
		t.Fatalf("key = %v, want original key", got)
	}
}

func TestCancelAddPatient(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Complaint = "headache"

	form := sess.BeginAddPatient()
	form.NewPatient.Name = "Kamala"
	sess.SaveActive()

	sess.CancelAddPatient()
	for _, k := range sess.Keys() {
		if k.IsTemporary() {
			t.Fatalf("temporary slot %v survived cancel", k)
		}
	}

	restored, ok := sess.Restore(draft.OriginalKey("pat-1"))
	if !ok {
		t.Fatal("original slot lost")
	}
	if restored.Complaint != "headache" {
		t.Errorf("Complaint = %q", restored.Complaint)
	}
}

func TestSwitchPreservesBothSlots(t *testing.T) {
	sess := New("s1", "appt-1", "pat-1")
	sess.Form().Complaint = "cough"
	sess.SaveActive()

	sess.Bind(draft.PersistedKey("rx-2"), draft.NewForm(), "rx-2", "pat-2")
	sess.Form().Complaint = "rash"
	sess.SaveActive()

	a, ok := sess.Restore(draft.OriginalKey("pat-1"))
	if !ok || a.Complaint != "cough" {
		t.Fatalf("original slot: ok=%v complaint=%q", ok, a.Complaint)
	}
	b, ok := sess.Restore(draft.PersistedKey("rx-2"))
	if !ok || b.Complaint != "rash" {
		t.Fatalf("persisted slot: ok=%v complaint=%q", ok, b.Complaint)
	}
}
