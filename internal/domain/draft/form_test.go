package draft

import (
	"reflect"
	"testing"
	"time"
)

func TestNewMedicineDefaults(t *testing.T) {
	m := NewMedicine(SourceInventory)
	if m.ID == "" {
		t.Fatal("expected generated ID")
	}
	if m.Dose != "1 tab" || m.Frequency != "bd" || m.Days != 4 {
		t.Fatalf("unexpected defaults: %+v", m)
	}
	if m.Quantity != 8 {
		t.Fatalf("default quantity = %d, want 8", m.Quantity)
	}
}

func TestRecalculateOnFieldChange(t *testing.T) {
	m := NewMedicine(SourceWritten)
	m.Dose = "½ tab"
	m.Frequency = "tds"
	m.Days = 5
	m.Recalculate()
	if m.Quantity != 8 {
		t.Fatalf("quantity = %d, want 8", m.Quantity)
	}

	m.Dose = "5ml"
	m.Frequency = "tds"
	m.Days = 7
	m.Recalculate()
	if !m.HasTotalML || m.TotalML != 105 || m.Quantity != 2 {
		t.Fatalf("ml line = %+v", m)
	}
}

func TestManualQuantityPreserved(t *testing.T) {
	m := NewMedicine(SourceWritten)
	m.Frequency = "sos"
	m.Recalculate()
	if m.Quantity != 0 {
		t.Fatalf("first manual derivation should zero the quantity, got %d", m.Quantity)
	}

	m.SetQuantity(12)
	m.Days = 10
	m.Recalculate()
	if m.Quantity != 12 {
		t.Fatalf("human-entered quantity overwritten: %d", m.Quantity)
	}

	// Leaving manual mode re-derives.
	m.Frequency = "bd"
	m.Dose = "1 tab"
	m.Recalculate()
	if m.Quantity != 20 {
		t.Fatalf("quantity = %d, want 20", m.Quantity)
	}
}

func TestFormCloneDeep(t *testing.T) {
	visit := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)
	f := &Form{
		InventoryMedicines: []Medicine{NewMedicine(SourceInventory)},
		WrittenMedicines:   []Medicine{NewMedicine(SourceWritten)},
		Notes:              "review in two weeks",
		Diagnosis:          "acute bronchitis",
		Charge:             1500,
		Tests:              []string{"FBC", "CRP"},
		NextVisit:          &visit,
		Procedures:         []Procedure{{Name: "Nebulization", Charge: 500, SearchTerm: "neb"}},
		NewPatient:         &NewPatient{Name: "Jane Perera", DateOfBirth: "1991-04-02", Gender: "female", Contact: "0771234567"},
	}
	f.Labs.Hemoglobin = "11.2"
	f.Labs.Custom = []LabPair{{Name: "Vitamin D", Value: "22"}}

	c := f.Clone()
	if !reflect.DeepEqual(f, c) {
		t.Fatal("clone differs from original")
	}

	c.InventoryMedicines[0].Days = 99
	c.Tests[0] = "changed"
	c.Labs.Custom[0].Value = "40"
	c.Procedures[0].Charge = 0
	c.NewPatient.Name = "someone else"
	*c.NextVisit = visit.AddDate(0, 1, 0)

	if f.InventoryMedicines[0].Days == 99 || f.Tests[0] == "changed" ||
		f.Labs.Custom[0].Value == "40" || f.Procedures[0].Charge == 0 ||
		f.NewPatient.Name == "someone else" || !f.NextVisit.Equal(visit) {
		t.Fatal("mutating the clone leaked into the original")
	}
}

func TestMedicineLookupAndRemove(t *testing.T) {
	f := NewForm()
	inv := NewMedicine(SourceInventory)
	wrt := NewMedicine(SourceWritten)
	f.InventoryMedicines = append(f.InventoryMedicines, inv)
	f.WrittenMedicines = append(f.WrittenMedicines, wrt)

	if got := f.Medicine(wrt.ID); got == nil || got.ID != wrt.ID {
		t.Fatal("written line not found")
	}
	if !f.RemoveMedicine(inv.ID) {
		t.Fatal("remove failed")
	}
	if f.Medicine(inv.ID) != nil {
		t.Fatal("line still present after remove")
	}
	if f.RemoveMedicine("missing") {
		t.Fatal("remove of unknown ID reported success")
	}
}

func TestNewPatientComplete(t *testing.T) {
	p := NewPatient{Name: "A", DateOfBirth: "2000-01-01", Gender: "male", Contact: "071"}
	if !p.Complete() {
		t.Fatal("expected complete")
	}
	p.Contact = ""
	if p.Complete() {
		t.Fatal("expected incomplete without contact")
	}
}
