// Package digest decides, per severity tier, whether a summary covering all
// currently active alerts of that tier is due.
package digest

import (
	"context"
	"sync"
	"time"

	"alertbridge/internal/alert"
	"alertbridge/internal/storage"
	logx "alertbridge/pkg/logx"
)

// Decision is the outcome of one digest check. Alerts is populated only when
// Due is true; a due digest with zero alerts is still a legitimate
// opportunity and callers decide whether to suppress the empty message.
type Decision struct {
	Due    bool
	Alerts []alert.Record
}

type Scheduler struct {
	store storage.Store
	log   logx.Logger

	mu    sync.Mutex
	tiers map[alert.Tier]*sync.Mutex
}

func NewScheduler(store storage.Store, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		store: store,
		log:   log,
		tiers: map[alert.Tier]*sync.Mutex{},
	}
}

func (s *Scheduler) tierLock(tier alert.Tier) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tiers[tier]
	if !ok {
		l = &sync.Mutex{}
		s.tiers[tier] = l
	}
	return l
}

// MaybeDigest checks whether minInterval has elapsed since the tier's last
// digest. When due it returns the tier's active alerts and records now as the
// new lastSent in the same critical section, so two near-simultaneous checks
// for one tier can never both come up due. A never-sent tier counts as
// infinitely elapsed. When not due, nothing is written.
func (s *Scheduler) MaybeDigest(ctx context.Context, tier alert.Tier, now time.Time, minInterval time.Duration) (Decision, error) {
	l := s.tierLock(tier)
	l.Lock()
	defer l.Unlock()

	last, err := s.store.GetLastSent(ctx, string(tier))
	if err != nil {
		return Decision{}, err
	}
	nowMS := now.UnixMilli()
	if last != storage.NeverSent && nowMS-last < minInterval.Milliseconds() {
		return Decision{}, nil
	}

	all, err := s.store.ListActiveAlerts(ctx)
	if err != nil {
		return Decision{}, err
	}
	matched := make([]alert.Record, 0, len(all))
	for _, rec := range all {
		if tier.Matches(rec.Severity) {
			matched = append(matched, rec)
		}
	}

	if err := s.store.PutLastSent(ctx, string(tier), nowMS); err != nil {
		return Decision{}, err
	}

	s.log.Debug("digest due",
		logx.String("tier", string(tier)),
		logx.Int("alerts", len(matched)),
		logx.Int64("last_sent", last),
	)
	return Decision{Due: true, Alerts: matched}, nil
}
