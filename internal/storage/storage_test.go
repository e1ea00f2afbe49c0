package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"alertbridge/internal/alert"
	logx "alertbridge/pkg/logx"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "alerts.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestActiveAlerts(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec := alert.Record{
				Fingerprint: "abc123",
				Severity:    "CRITICAL",
				Payload:     json.RawMessage(`{"labels":{"alertname":"DiskFull"}}`),
			}

			if ok, _ := st.HasActiveAlert(ctx, "abc123"); ok {
				t.Fatal("alert present before put")
			}
			if err := st.PutActiveAlert(ctx, rec); err != nil {
				t.Fatalf("put: %v", err)
			}
			got, ok, err := st.GetActiveAlert(ctx, "abc123")
			if err != nil || !ok {
				t.Fatalf("get: ok=%v err=%v", ok, err)
			}
			if got.Fingerprint != rec.Fingerprint || got.Severity != rec.Severity {
				t.Fatalf("round-trip mismatch: %+v", got)
			}
			if string(got.Payload) != string(rec.Payload) {
				t.Fatalf("payload mismatch: %s", got.Payload)
			}

			// Replace in place keeps identity.
			rec.Severity = "WARNING"
			if err := st.PutActiveAlert(ctx, rec); err != nil {
				t.Fatalf("replace: %v", err)
			}
			all, err := st.ListActiveAlerts(ctx)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 1 || all[0].Severity != "WARNING" {
				t.Fatalf("list after replace: %+v", all)
			}

			if err := st.RemoveActiveAlert(ctx, "abc123"); err != nil {
				t.Fatalf("remove: %v", err)
			}
			if ok, _ := st.HasActiveAlert(ctx, "abc123"); ok {
				t.Fatal("alert present after remove")
			}
			// Removing an absent key is a no-op.
			if err := st.RemoveActiveAlert(ctx, "abc123"); err != nil {
				t.Fatalf("remove absent: %v", err)
			}
		})
	}
}

func TestPutActiveAlertRejectsEmptyFingerprint(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			err := st.PutActiveAlert(ctx, alert.Record{Severity: "WARNING"})
			if err != ErrEmptyFingerprint {
				t.Fatalf("expected ErrEmptyFingerprint, got %v", err)
			}
		})
	}
}

func TestMessageMap(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			if ok, _ := st.HasMapping(ctx, "$ev1"); ok {
				t.Fatal("mapping present before put")
			}
			if err := st.PutMapping(ctx, "$ev1", "abc123"); err != nil {
				t.Fatalf("put: %v", err)
			}
			id, ok, err := st.GetMappedAlertID(ctx, "$ev1")
			if err != nil || !ok || id != "abc123" {
				t.Fatalf("get: id=%q ok=%v err=%v", id, ok, err)
			}
			// Insert-or-replace semantics.
			if err := st.PutMapping(ctx, "$ev1", "def456"); err != nil {
				t.Fatalf("replace: %v", err)
			}
			id, _, _ = st.GetMappedAlertID(ctx, "$ev1")
			if id != "def456" {
				t.Fatalf("id after replace = %q", id)
			}
		})
	}
}

func TestSchedules(t *testing.T) {
	ctx := context.Background()
	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ms, err := st.GetLastSent(ctx, "CRITICAL")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if ms != NeverSent {
				t.Fatalf("expected NeverSent sentinel, got %d", ms)
			}
			if err := st.PutLastSent(ctx, "CRITICAL", 1700000000000); err != nil {
				t.Fatalf("put: %v", err)
			}
			ms, _ = st.GetLastSent(ctx, "CRITICAL")
			if ms != 1700000000000 {
				t.Fatalf("last sent = %d", ms)
			}
			// Other tiers remain untouched.
			ms, _ = st.GetLastSent(ctx, "WARNING")
			if ms != NeverSent {
				t.Fatalf("WARNING last sent = %d, want sentinel", ms)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "alerts.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	rec := alert.Record{Fingerprint: "fp1", Severity: "WARNING", Payload: json.RawMessage(`{"a":1}`)}
	if err := st.PutActiveAlert(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := st.PutMapping(ctx, "$ev", "fp1"); err != nil {
		t.Fatalf("put mapping: %v", err)
	}
	if err := st.PutLastSent(ctx, "WARNING", 42); err != nil {
		t.Fatalf("put last sent: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()

	got, ok, err := st.GetActiveAlert(ctx, "fp1")
	if err != nil || !ok {
		t.Fatalf("get after reopen: ok=%v err=%v", ok, err)
	}
	if got.Fingerprint != "fp1" || string(got.Payload) != `{"a":1}` {
		t.Fatalf("record after reopen: %+v", got)
	}
	if id, ok, _ := st.GetMappedAlertID(ctx, "$ev"); !ok || id != "fp1" {
		t.Fatalf("mapping after reopen: %q ok=%v", id, ok)
	}
	if ms, _ := st.GetLastSent(ctx, "WARNING"); ms != 42 {
		t.Fatalf("last sent after reopen: %d", ms)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
