package grafana

import (
	"context"

	"alertbridge/internal/alert"
	"alertbridge/internal/storage"
	"alertbridge/internal/tracker"
	logx "alertbridge/pkg/logx"
)

// Source lists the alerts the monitoring side considers active.
type Source interface {
	ActiveFingerprints(ctx context.Context) (map[string]bool, error)
}

// Processor applies one normalized event; implemented by tracker.Tracker.
type Processor interface {
	Process(ctx context.Context, ev alert.Event) (tracker.Transition, error)
}

// Reconciler resolves locally-active alerts the source has stopped
// reporting. Resolutions go through the regular tracker path so the usual
// notifications and mapping retention apply.
type Reconciler struct {
	source Source
	store  storage.Store
	proc   Processor
	log    logx.Logger
}

func NewReconciler(source Source, store storage.Store, proc Processor, log logx.Logger) *Reconciler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reconciler{source: source, store: store, proc: proc, log: log}
}

// Run performs one reconciliation pass and returns how many alerts were
// resolved. A fetch failure aborts the pass without touching local state.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	upstream, err := r.source.ActiveFingerprints(ctx)
	if err != nil {
		return 0, err
	}
	local, err := r.store.ListActiveAlerts(ctx)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, rec := range local {
		if upstream[rec.Fingerprint] {
			continue
		}
		ev := alert.Event{
			Fingerprint: rec.Fingerprint,
			Severity:    rec.Severity,
			Status:      alert.StatusResolved,
		}
		if _, err := r.proc.Process(ctx, ev); err != nil {
			// Keep going; the next pass retries the remainder.
			r.log.Warn("reconcile resolution failed",
				logx.String("fingerprint", rec.Fingerprint), logx.Err(err))
			continue
		}
		resolved++
		r.log.Info("alert cleared by source", logx.String("fingerprint", rec.Fingerprint))
	}
	return resolved, nil
}
