package ingress

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"strconv"

	"alertbridge/internal/alert"
)

// webhookPayload is the Alertmanager-compatible body Grafana posts to
// webhook contact points. Each alert is kept raw so its labels, annotations
// and timestamps survive verbatim into the stored record.
type webhookPayload struct {
	Status string            `json:"status"`
	Alerts []json.RawMessage `json:"alerts"`
}

// webhookAlert is the typed view of one alert, used only to pull out
// identity, severity and status.
type webhookAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	StartsAt    string            `json:"startsAt"`
	EndsAt      string            `json:"endsAt"`
	Fingerprint string            `json:"fingerprint"`
}

// normalizeAlert converts one raw webhook alert into the event shape the
// tracker consumes. Alerts without a fingerprint get one derived from their
// label set, which is stable across repeats of the same alert.
func normalizeAlert(raw json.RawMessage) (alert.Event, error) {
	var wa webhookAlert
	if err := json.Unmarshal(raw, &wa); err != nil {
		return alert.Event{}, fmt.Errorf("decode alert: %w", err)
	}

	fp := wa.Fingerprint
	if fp == "" {
		fp = fingerprintFromLabels(wa.Labels)
	}
	if fp == "" {
		return alert.Event{}, alert.ErrMissingFingerprint
	}

	status := alert.StatusFiring
	if wa.Status == "resolved" {
		status = alert.StatusResolved
	}

	return alert.Event{
		Fingerprint: fp,
		Severity:    wa.Labels["severity"],
		Status:      status,
		Payload:     raw,
	}, nil
}

func fingerprintFromLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte{0xff})
		_, _ = h.Write([]byte(labels[k]))
		_, _ = h.Write([]byte{0xff})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}
