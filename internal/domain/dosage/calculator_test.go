package dosage

import (
	"math"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		dose string
		want Class
	}{
		{"1 tab", ClassTablet},
		{"½ tab", ClassTablet},
		{"2 tab", ClassTablet},
		{"5ml", ClassML},
		{"10 ml", ClassML},
		{"Custom ml", ClassML},
		{"1 puff", ClassPuff},
		{"2 puffs", ClassPuff},
		{"LA", ClassLACapsule},
		{"la", ClassLACapsule},
		{"Capsules", ClassLACapsule},
		{"Tubes", ClassTube},
		{"1 tube", ClassTube},
		{"", ClassTablet},
	}
	for _, c := range cases {
		if got := Classify(c.dose); got != c.want {
			t.Errorf("Classify(%q) = %v, want %v", c.dose, got, c.want)
		}
	}
}

func TestPerDay(t *testing.T) {
	cases := []struct {
		frequency string
		want      float64
	}{
		{"bd", 2},
		{"BD", 2},
		{"tds", 3},
		{"4 hourly", 6},
		{"6 hourly", 4},
		{"8 hourly", 3},
		{"mane", 1},
		{"nocte", 1},
		{"eve", 1},
		{"EOD (each other day)", 0.5},
		{"Weekly", 1.0 / 7},
		{"stat", 0},
		{"SOS", 0},
		{"whenever", 1},
	}
	for _, c := range cases {
		if got := PerDay(c.frequency); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("PerDay(%q) = %v, want %v", c.frequency, got, c.want)
		}
	}
}

func TestQuantityTablet(t *testing.T) {
	cases := []struct {
		name            string
		dose, frequency string
		days            int
		want            int
	}{
		{"default line", "1 tab", "bd", 4, 8},
		{"half tab tds", "½ tab", "tds", 5, 8},
		{"quarter tab", "¼ tab", "bd", 10, 5},
		{"two tabs", "2 tab", "tds", 3, 18},
		{"weekly", "1 tab", "Weekly", 28, 4},
		{"eod", "1 tab", "eod (each other day)", 7, 4},
		{"zero days", "1 tab", "bd", 0, 0},
		{"malformed dose", "tab", "bd", 4, 0},
	}
	for _, c := range cases {
		if got := Quantity(c.dose, c.frequency, c.days, 0); got != c.want {
			t.Errorf("%s: Quantity(%q, %q, %d) = %d, want %d", c.name, c.dose, c.frequency, c.days, got, c.want)
		}
	}
}

func TestQuantityManualFrequencies(t *testing.T) {
	for _, freq := range []string{"stat", "sos", "Stat", "SOS"} {
		if got := Quantity("2 tab", freq, 30, 0); got != 0 {
			t.Errorf("Quantity with %q = %d, want 0", freq, got)
		}
	}
}

func TestQuantityNonTabletClasses(t *testing.T) {
	for _, dose := range []string{"1 puff", "LA", "Capsules", "Tubes"} {
		if got := Quantity(dose, "bd", 10, 0); got != 1 {
			t.Errorf("Quantity(%q) = %d, want 1", dose, got)
		}
	}
}

func TestTotalML(t *testing.T) {
	// 5ml x 3/day x 7 days = 105ml, dispensed as 2 bottles of 100.
	if got := TotalML("5ml", 0, "tds", 7); got != 105 {
		t.Fatalf("TotalML = %d, want 105", got)
	}
	if got := Quantity("5ml", "tds", 7, 0); got != 2 {
		t.Fatalf("bottle count = %d, want 2", got)
	}

	// Custom ml uses the supplied volume.
	if got := TotalML(CustomMLDose, 7.5, "bd", 4); got != 60 {
		t.Errorf("custom TotalML = %d, want 60", got)
	}
	// Absent custom volume degrades to zero.
	if got := TotalML(CustomMLDose, 0, "bd", 4); got != 0 {
		t.Errorf("custom TotalML without value = %d, want 0", got)
	}
}

func TestTotalMLMonotonic(t *testing.T) {
	prev := 0
	for days := 1; days <= 30; days++ {
		got := TotalML("5ml", 0, "tds", days)
		if got < prev {
			t.Fatalf("TotalML decreased at %d days: %d < %d", days, got, prev)
		}
		if got < 0 {
			t.Fatalf("TotalML negative at %d days", days)
		}
		prev = got
	}
}

func TestDerivedValuesMonotonicInFrequency(t *testing.T) {
	// Ascending administrations per day: 1/7, 0.5, 1, 2, 3, 4, 6.
	frequencies := []string{"weekly", "eod (each other day)", "mane", "bd", "tds", "6 hourly", "4 hourly"}

	prevML, prevQty := 0, 0
	for _, f := range frequencies {
		ml := TotalML("5ml", 0, f, 10)
		if ml < prevML {
			t.Fatalf("TotalML decreased at %q: %d < %d", f, ml, prevML)
		}
		qty := Quantity("1 tab", f, 10, 0)
		if qty < prevQty {
			t.Fatalf("Quantity decreased at %q: %d < %d", f, qty, prevQty)
		}
		prevML, prevQty = ml, qty
	}
}

func TestBottleCountFloor(t *testing.T) {
	// Tiny volumes still dispense at least one bottle.
	if got := Quantity("1ml", "mane", 1, 0); got != 1 {
		t.Errorf("bottle count = %d, want 1", got)
	}
}

func TestDerive(t *testing.T) {
	d := Derive("1 tab", "bd", 4, 0)
	if d.Manual || d.HasTotalML || d.Quantity != 8 {
		t.Fatalf("tablet derive = %+v", d)
	}

	d = Derive("5ml", "tds", 7, 0)
	if !d.HasTotalML || d.TotalML != 105 || d.Quantity != 2 {
		t.Fatalf("ml derive = %+v", d)
	}

	d = Derive("5ml", "sos", 7, 0)
	if !d.Manual || d.HasTotalML || d.Quantity != 0 {
		t.Fatalf("manual derive = %+v", d)
	}
}

func TestLeadingNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"5ml", 5},
		{"2 tab", 2},
		{"2.5 tab", 2.5},
		{"10 ml", 10},
		{"tab", 0},
		{"", 0},
		{".5", 0},
	}
	for _, c := range cases {
		if got := leadingNumber(c.in); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("leadingNumber(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
