package matrix

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"alertbridge/internal/alert"
)

// payloadHints is the best-effort view into the opaque alert payload used
// only for message rendering. Unknown shapes fall back to the fingerprint.
type payloadHints struct {
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
}

func hints(rec alert.Record) payloadHints {
	var h payloadHints
	if len(rec.Payload) > 0 {
		_ = json.Unmarshal(rec.Payload, &h)
	}
	return h
}

func title(rec alert.Record) string {
	h := hints(rec)
	if name := h.Labels["alertname"]; name != "" {
		return name
	}
	return rec.Fingerprint
}

func summary(rec alert.Record) string {
	h := hints(rec)
	if s := h.Annotations["summary"]; s != "" {
		return s
	}
	return h.Annotations["description"]
}

func statusEmoji(status string) string {
	switch status {
	case "firing":
		return "🔥"
	case "resolved":
		return "✅"
	default:
		return "🔁"
	}
}

func formatAlert(rec alert.Record, status string) (body, htmlBody string) {
	sev := strings.ToUpper(strings.TrimSpace(rec.Severity))
	head := fmt.Sprintf("%s [%s] %s: %s", statusEmoji(status), sev, status, title(rec))
	body = head
	if s := summary(rec); s != "" {
		body += "\n" + s
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>[%s]</b> %s: <b>%s</b>",
		statusEmoji(status), html.EscapeString(sev), status, html.EscapeString(title(rec)))
	if s := summary(rec); s != "" {
		b.WriteString("<br/>")
		b.WriteString(html.EscapeString(s))
	}
	return body, b.String()
}

func formatDigest(tier alert.Tier, alerts []alert.Record, mentionToken string) (body, htmlBody string) {
	var plain, rich strings.Builder

	if mentionToken != "" {
		plain.WriteString(mentionToken + " ")
		rich.WriteString(html.EscapeString(mentionToken) + " ")
	}
	fmt.Fprintf(&plain, "%d active %s alert(s)", len(alerts), tier)
	fmt.Fprintf(&rich, "<b>%d active %s alert(s)</b>", len(alerts), html.EscapeString(string(tier)))

	for _, rec := range alerts {
		line := title(rec)
		if s := summary(rec); s != "" {
			line += " - " + s
		}
		plain.WriteString("\n• " + line)
		rich.WriteString("<br/>• " + html.EscapeString(line))
	}
	return plain.String(), rich.String()
}
