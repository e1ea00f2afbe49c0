package storage

import (
	"context"
	"errors"
	"time"

	"alertbridge/internal/alert"
)

// NeverSent is the schedule sentinel for "no digest ever emitted".
const NeverSent int64 = -1

var ErrEmptyFingerprint = errors.New("storage: empty fingerprint")

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
//   - "memory": volatile in-process store, for tests
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API used by the tracker and the digest scheduler.
//
// All operations are atomic per call. Concurrent calls for different keys
// need no external locking; read-modify-write sequences across calls for the
// same key must be serialized by the caller.
type Store interface {
	// Active alerts, keyed by fingerprint.
	ListActiveAlerts(ctx context.Context) ([]alert.Record, error)
	GetActiveAlert(ctx context.Context, fingerprint string) (alert.Record, bool, error)
	HasActiveAlert(ctx context.Context, fingerprint string) (bool, error)
	PutActiveAlert(ctx context.Context, rec alert.Record) error
	RemoveActiveAlert(ctx context.Context, fingerprint string) error

	// Message map, keyed by outbound event id. Rows are never deleted;
	// resolved alerts keep their mapping for edit-to-resolved history.
	GetMappedAlertID(ctx context.Context, eventID string) (string, bool, error)
	HasMapping(ctx context.Context, eventID string) (bool, error)
	PutMapping(ctx context.Context, eventID, alertID string) error

	// Digest bookkeeping, keyed by severity tier. GetLastSent returns
	// NeverSent when no row exists.
	GetLastSent(ctx context.Context, severity string) (int64, error)
	PutLastSent(ctx context.Context, severity string, unixMilli int64) error

	Close() error
}
