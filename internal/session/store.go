package session

import (
	"sync"

	"github.com/clinidesk/go-rxpad/internal/domain/draft"
)

// Session owns the slot-key → draft mapping for one appointment-editing
// session. Exactly one slot is active (bound to the live form) at a time.
type Session struct {
	ID                string
	AppointmentID     string
	OriginalPatientID string

	mu    sync.Mutex
	slots map[draft.SlotKey]*draft.Form

	form   *draft.Form
	active draft.SlotKey

	// adding marks "adding a new patient" mode; activeTemp pins the
	// temporary key for the slot being added so name edits cannot fork it.
	adding     bool
	activeTemp *draft.SlotKey

	// loadedRxID/loadedPatientID describe the prescription currently bound
	// to the form, when one was loaded from persistence.
	loadedRxID      string
	loadedPatientID string

	flushing bool
}

// New creates a session with an empty active form bound to the
// appointment's original patient.
func New(id, appointmentID, originalPatientID string) *Session {
	return &Session{
		ID:                id,
		AppointmentID:     appointmentID,
		OriginalPatientID: originalPatientID,
		slots:             make(map[draft.SlotKey]*draft.Form),
		form:              draft.NewForm(),
		active:            draft.OriginalKey(originalPatientID),
		loadedPatientID:   originalPatientID,
	}
}

// Form returns the live active form. Callers on the request path mutate it
// directly; snapshots are taken only by SaveActive.
func (s *Session) Form() *draft.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.form
}

// ActiveKey derives the key the active form would be stored under.
func (s *Session) ActiveKey() draft.SlotKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deriveKey()
}

// deriveKey applies the key-derivation rule. Callers hold s.mu.
func (s *Session) deriveKey() draft.SlotKey {
	// A loaded prescription for a secondary patient keys by its ID.
	if s.loadedRxID != "" && s.loadedPatientID != s.OriginalPatientID {
		return draft.PersistedKey(s.loadedRxID)
	}
	if s.adding {
		if s.activeTemp != nil {
			return *s.activeTemp
		}
		if s.form.NewPatient != nil && s.form.NewPatient.Name != "" {
			return draft.TemporaryKey(s.form.NewPatient.Name)
		}
		return draft.UnnamedTemporaryKey()
	}
	return draft.OriginalKey(s.OriginalPatientID)
}

// SaveActive snapshots the live form into the store under its derived key,
// overwriting any prior content. The snapshot reads current values at the
// moment of the call, never a stale copy.
func (s *Session) SaveActive() draft.SlotKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := s.deriveKey()
	s.slots[key] = s.form.Clone()
	if key.IsTemporary() {
		k := key
		s.activeTemp = &k
	}
	return key
}

// Restore binds the stored snapshot for key to the live form. The second
// return is false when the key has no stored draft; callers must then fall
// back to loading from persistence.
func (s *Session) Restore(key draft.SlotKey) (*draft.Form, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.slots[key]
	if !ok {
		return nil, false
	}
	s.bind(key, stored.Clone(), "", "")
	return s.form, true
}

// Bind attaches a form loaded from persistence (or a seeded empty form) to
// the session as the active draft.
func (s *Session) Bind(key draft.SlotKey, form *draft.Form, loadedRxID, loadedPatientID string) *draft.Form {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bind(key, form, loadedRxID, loadedPatientID)
	return s.form
}

func (s *Session) bind(key draft.SlotKey, form *draft.Form, loadedRxID, loadedPatientID string) {
	s.form = form
	s.active = key
	s.adding = key.IsTemporary()
	if key.IsTemporary() {
		k := key
		s.activeTemp = &k
	} else {
		s.activeTemp = nil
	}
	switch key.Kind {
	case draft.KindOriginal:
		s.loadedRxID = loadedRxID
		s.loadedPatientID = s.OriginalPatientID
	case draft.KindPersisted:
		s.loadedRxID = key.PrescriptionID
		s.loadedPatientID = loadedPatientID
	default:
		s.loadedRxID = ""
		s.loadedPatientID = ""
	}
}

// BeginAddPatient saves the outgoing slot and binds a blank form carrying an
// empty new-patient identity.
func (s *Session) BeginAddPatient() *draft.Form {
	s.SaveActive()
	s.mu.Lock()
	defer s.mu.Unlock()
	form := draft.NewForm()
	form.NewPatient = &draft.NewPatient{}
	s.form = form
	s.active = draft.UnnamedTemporaryKey()
	s.adding = true
	s.activeTemp = nil
	s.loadedRxID = ""
	s.loadedPatientID = ""
	return form
}

// CancelAddPatient discards the active temporary slot. The caller switches
// back to another slot afterwards.
func (s *Session) CancelAddPatient() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.adding {
		return
	}
	delete(s.slots, s.deriveKey())
	if s.activeTemp != nil {
		delete(s.slots, *s.activeTemp)
	}
	s.adding = false
	s.activeTemp = nil
	s.form = draft.NewForm()
	s.active = draft.OriginalKey(s.OriginalPatientID)
	s.loadedPatientID = s.OriginalPatientID
}

// Keys returns a stable snapshot of the stored slot keys.
func (s *Session) Keys() []draft.SlotKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]draft.SlotKey, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	return keys
}

// Slot returns a deep copy of the stored draft for key.
func (s *Session) Slot(key draft.SlotKey) (*draft.Form, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.slots[key]
	if !ok {
		return nil, false
	}
	return f.Clone(), true
}

// Remove deletes a slot from the store.
func (s *Session) Remove(key draft.SlotKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
}

// beginFlush claims the per-session flush guard.
func (s *Session) beginFlush() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushing {
		return false
	}
	s.flushing = true
	return true
}

func (s *Session) endFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushing = false
}
