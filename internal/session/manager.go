package session

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager tracks open editing sessions and their fingerprint ledgers.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ledgers  map[string]Ledger
	logger   *zap.Logger
}

// NewManager creates an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		ledgers:  make(map[string]Ledger),
		logger:   logger,
	}
}

// Open starts a session for an appointment.
func (m *Manager) Open(appointmentID, originalPatientID string) *Session {
	sess := New(uuid.New().String(), appointmentID, originalPatientID)

	m.mu.Lock()
	m.sessions[sess.ID] = sess
	m.ledgers[sess.ID] = NewLedger()
	m.mu.Unlock()

	m.logger.Info("session opened",
		zap.String("session_id", sess.ID),
		zap.String("appointment_id", appointmentID),
		zap.String("patient_id", originalPatientID))
	return sess
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Ledger returns the session's fingerprint ledger.
func (m *Manager) Ledger(id string) Ledger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledgers[id]
}

// SetLedger stores the ledger returned by a flush pass.
func (m *Manager) SetLedger(id string, ledger Ledger) {
	m.mu.Lock()
	m.ledgers[id] = ledger
	m.mu.Unlock()
}

// Close discards a session and its ledger.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.ledgers, id)
	m.mu.Unlock()
	m.logger.Info("session closed", zap.String("session_id", id))
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
