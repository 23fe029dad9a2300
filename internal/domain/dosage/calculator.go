// Package dosage derives dispense quantities from dose, frequency and
// duration descriptors. All functions are pure and never fail: the inputs
// come from constrained UI pickers, so malformed fragments degrade to a safe
// default instead of returning an error.
package dosage

import (
	"math"
	"strings"
)

// Class is the dose class a descriptor resolves to.
type Class int

const (
	ClassTablet Class = iota
	ClassML
	ClassPuff
	ClassLACapsule
	ClassTube
)

// BottleSizeML is the dispensed bottle volume for ML-class doses.
const BottleSizeML = 100

// CustomMLDose is the descriptor that defers the per-dose volume to a
// user-supplied value.
const CustomMLDose = "Custom ml"

// Default medicine line values: 1 tab twice a day for 4 days dispenses 8.
const (
	DefaultDose      = "1 tab"
	DefaultFrequency = "bd"
	DefaultDays      = 4
)

func (c Class) String() string {
	switch c {
	case ClassML:
		return "ml"
	case ClassPuff:
		return "puff"
	case ClassLACapsule:
		return "la_or_capsule"
	case ClassTube:
		return "tube"
	default:
		return "tablet"
	}
}

// Classify resolves a dose descriptor to its class. Matching is by substring
// or equality on the lower-cased descriptor.
func Classify(dose string) Class {
	d := strings.ToLower(strings.TrimSpace(dose))
	switch {
	case strings.Contains(d, "ml"):
		return ClassML
	case strings.Contains(d, "puff"):
		return ClassPuff
	case d == "la" || d == "capsules":
		return ClassLACapsule
	case strings.Contains(d, "tube"):
		return ClassTube
	default:
		return ClassTablet
	}
}

// perDay maps frequency descriptors to administrations per day.
var perDay = map[string]float64{
	"bd":                   2,
	"tds":                  3,
	"4 hourly":             6,
	"6 hourly":             4,
	"8 hourly":             3,
	"mane":                 1,
	"nocte":                1,
	"eve":                  1,
	"eod (each other day)": 0.5,
	"weekly":               1.0 / 7,
}

// PerDay returns the number of administrations per day for a frequency
// descriptor, case-insensitively. Manual frequencies (stat, sos) return 0;
// unrecognized descriptors default to 1.
func PerDay(frequency string) float64 {
	f := strings.ToLower(strings.TrimSpace(frequency))
	if f == "stat" || f == "sos" {
		return 0
	}
	if n, ok := perDay[f]; ok {
		return n
	}
	return 1
}

// Manual reports whether a frequency requires a human-entered quantity.
func Manual(frequency string) bool {
	f := strings.ToLower(strings.TrimSpace(frequency))
	return f == "stat" || f == "sos"
}

// doseValue extracts the numeric strength of a tablet-class descriptor.
// Unicode fractions resolve before numeric parsing; anything unparseable is 0.
func doseValue(dose string) float64 {
	d := strings.TrimSpace(dose)
	if strings.HasPrefix(d, "½") {
		return 0.5
	}
	if strings.HasPrefix(d, "¼") {
		return 0.25
	}
	return leadingNumber(d)
}

// leadingNumber parses the leading numeric portion of a descriptor ("5ml"
// yields 5, "2.5 tab" yields 2.5). Malformed input parses to 0.
func leadingNumber(s string) float64 {
	var n float64
	var frac float64
	seenDigit := false
	inFrac := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			if inFrac {
				frac /= 10
				n += float64(r-'0') * frac
			} else {
				n = n*10 + float64(r-'0')
			}
		case r == '.' && !inFrac && seenDigit:
			inFrac = true
			frac = 1
		default:
			if seenDigit {
				return n
			}
			return 0
		}
	}
	if !seenDigit {
		return 0
	}
	return n
}

// Quantity computes the dispensed unit count for a dose/frequency/duration
// tuple. Manual frequencies return 0 to signal that the caller must keep any
// previously entered value. ML doses count bottles; puff, LA/capsule and tube
// doses default to a single unit the user may override.
func Quantity(dose, frequency string, days int, customML float64) int {
	if Manual(frequency) {
		return 0
	}
	switch Classify(dose) {
	case ClassML:
		bottles := int(math.Ceil(float64(TotalML(dose, customML, frequency, days)) / BottleSizeML))
		if bottles < 1 {
			bottles = 1
		}
		return bottles
	case ClassPuff, ClassLACapsule, ClassTube:
		return 1
	default:
		return int(math.Ceil(doseValue(dose) * PerDay(frequency) * float64(days)))
	}
}

// TotalML computes the total dispensed volume for an ML-class dose. The
// "Custom ml" descriptor uses the supplied per-dose volume (0 if absent);
// any other descriptor contributes its leading numeric portion.
func TotalML(dose string, customML float64, frequency string, days int) int {
	var per float64
	if strings.EqualFold(strings.TrimSpace(dose), CustomMLDose) {
		per = customML
	} else {
		per = leadingNumber(strings.TrimSpace(dose))
	}
	return int(math.Ceil(per * PerDay(frequency) * float64(days)))
}

// Derived holds the recomputed derived fields for a medicine line.
type Derived struct {
	// Quantity is the dispensed unit count; 0 when Manual is set.
	Quantity int
	// TotalML is the total dispensed volume; valid only when HasTotalML.
	TotalML    int
	HasTotalML bool
	// Manual marks stat/sos frequencies: the caller must preserve any
	// previously user-entered quantity and clear the total volume.
	Manual bool
}

// Derive recomputes the derived fields for a medicine line. Callers invoke it
// whenever dose, frequency, days or the custom volume changes, regardless of
// how the change was delivered.
func Derive(dose, frequency string, days int, customML float64) Derived {
	if Manual(frequency) {
		return Derived{Manual: true}
	}
	d := Derived{Quantity: Quantity(dose, frequency, days, customML)}
	if Classify(dose) == ClassML {
		d.TotalML = TotalML(dose, customML, frequency, days)
		d.HasTotalML = true
	}
	return d
}
