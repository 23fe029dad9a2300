package draft

import "strings"

// KeyKind discriminates the three slot-key shapes.
type KeyKind int

const (
	// KindOriginal identifies the appointment's original patient.
	KindOriginal KeyKind = iota
	// KindTemporary identifies a patient named in this session but not yet
	// persisted. The key derives from the normalized name; an empty name is
	// the single "unnamed" slot.
	KindTemporary
	// KindPersisted identifies an already-persisted prescription belonging
	// to a secondary patient.
	KindPersisted
)

// SlotKey identifies one patient draft slot. It is a comparable value and is
// used directly as the store's map key, replacing prefix-encoded strings.
type SlotKey struct {
	Kind KeyKind

	// PatientID is set for KindOriginal.
	PatientID string
	// Name is the normalized patient name for KindTemporary ("" = unnamed).
	Name string
	// PrescriptionID is set for KindPersisted.
	PrescriptionID string
}

// OriginalKey returns the key for the appointment's original patient.
func OriginalKey(patientID string) SlotKey {
	return SlotKey{Kind: KindOriginal, PatientID: patientID}
}

// TemporaryKey returns the key for a not-yet-persisted patient. The name is
// normalized so the key stays stable across case and whitespace edits.
func TemporaryKey(name string) SlotKey {
	return SlotKey{Kind: KindTemporary, Name: NormalizeName(name)}
}

// UnnamedTemporaryKey returns the fallback key used before a name is entered.
func UnnamedTemporaryKey() SlotKey {
	return SlotKey{Kind: KindTemporary}
}

// PersistedKey returns the key for a persisted secondary prescription.
func PersistedKey(prescriptionID string) SlotKey {
	return SlotKey{Kind: KindPersisted, PrescriptionID: prescriptionID}
}

// NormalizeName lower-cases a name and collapses interior whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// String renders the key for logs.
func (k SlotKey) String() string {
	switch k.Kind {
	case KindTemporary:
		if k.Name == "" {
			return "temp:unnamed"
		}
		return "temp:" + k.Name
	case KindPersisted:
		return "rx:" + k.PrescriptionID
	default:
		return "original:" + k.PatientID
	}
}

// IsTemporary reports whether the key denotes a not-yet-persisted patient.
func (k SlotKey) IsTemporary() bool { return k.Kind == KindTemporary }

// IsOriginal reports whether the key denotes the appointment's original
// patient.
func (k SlotKey) IsOriginal() bool { return k.Kind == KindOriginal }
