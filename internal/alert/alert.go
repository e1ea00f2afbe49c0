package alert

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrMissingFingerprint marks an inbound event that cannot be tracked.
// Such events are rejected at the boundary and never touch the store.
var ErrMissingFingerprint = errors.New("alert event missing fingerprint")

type Status string

const (
	StatusFiring   Status = "firing"
	StatusResolved Status = "resolved"
)

// Event is one normalized inbound alert event, as produced by the ingress.
type Event struct {
	Fingerprint string          `json:"fingerprint"`
	Severity    string          `json:"severity"`
	Status      Status          `json:"status"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Record is one alert as currently known. The payload is carried verbatim
// for message rendering; nothing in this repo destructures it.
//
// EventID is the outbound chat event announcing this alert, kept inline so
// updates and resolutions can address it without a reverse scan of the
// message map.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Severity    string          `json:"severity"`
	EventID     string          `json:"eventId,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Record converts the event into its stored form, dropping the status.
// Presence in the active table is tracked separately by the lifecycle state.
func (e Event) Record() Record {
	return Record{
		Fingerprint: e.Fingerprint,
		Severity:    e.Severity,
		Payload:     e.Payload,
	}
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Fingerprint) == "" {
		return ErrMissingFingerprint
	}
	return nil
}

// Tier is a normalized severity bucket. CRITICAL and WARNING have dedicated
// spellings; any other severity is its own tier under its upper-cased name.
type Tier string

const (
	TierCritical Tier = "CRITICAL"
	TierWarning  Tier = "WARNING"
)

// Classify maps free-text severities onto tiers, case-insensitively.
func Classify(severity string) Tier {
	switch strings.ToUpper(strings.TrimSpace(severity)) {
	case "CRITICAL", "CRIT":
		return TierCritical
	case "WARNING", "WARN":
		return TierWarning
	default:
		return Tier(strings.ToUpper(strings.TrimSpace(severity)))
	}
}

// Matches reports whether a severity string classifies into this tier.
func (t Tier) Matches(severity string) bool {
	return Classify(severity) == t
}

func (t Tier) String() string { return string(t) }
