package storage

import (
	"context"
	"strings"
	"sync"

	"alertbridge/internal/alert"
)

// memoryStore keeps everything in process memory. It honors the same
// per-call atomicity contract as the sqlite driver but survives nothing.
type memoryStore struct {
	mu       sync.RWMutex
	alerts   map[string]alert.Record
	mappings map[string]string
	lastSent map[string]int64
}

// NewMemory returns a volatile store, for tests.
func NewMemory() Store {
	return &memoryStore{
		alerts:   map[string]alert.Record{},
		mappings: map[string]string{},
		lastSent: map[string]int64{},
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) ListActiveAlerts(_ context.Context) ([]alert.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]alert.Record, 0, len(m.alerts))
	for _, rec := range m.alerts {
		out = append(out, cloneRecord(rec))
	}
	return out, nil
}

func (m *memoryStore) GetActiveAlert(_ context.Context, fingerprint string) (alert.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.alerts[fingerprint]
	if !ok {
		return alert.Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (m *memoryStore) HasActiveAlert(_ context.Context, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.alerts[fingerprint]
	return ok, nil
}

func (m *memoryStore) PutActiveAlert(_ context.Context, rec alert.Record) error {
	if strings.TrimSpace(rec.Fingerprint) == "" {
		return ErrEmptyFingerprint
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts[rec.Fingerprint] = cloneRecord(rec)
	return nil
}

func (m *memoryStore) RemoveActiveAlert(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, fingerprint)
	return nil
}

func (m *memoryStore) GetMappedAlertID(_ context.Context, eventID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.mappings[eventID]
	return id, ok, nil
}

func (m *memoryStore) HasMapping(_ context.Context, eventID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.mappings[eventID]
	return ok, nil
}

func (m *memoryStore) PutMapping(_ context.Context, eventID, alertID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mappings[eventID] = alertID
	return nil
}

func (m *memoryStore) GetLastSent(_ context.Context, severity string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.lastSent[severity]
	if !ok {
		return NeverSent, nil
	}
	return ms, nil
}

func (m *memoryStore) PutLastSent(_ context.Context, severity string, unixMilli int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastSent[severity] = unixMilli
	return nil
}

func cloneRecord(rec alert.Record) alert.Record {
	cp := rec
	if rec.Payload != nil {
		cp.Payload = append([]byte(nil), rec.Payload...)
	}
	return cp
}
