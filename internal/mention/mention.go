// Package mention decides whether a notification should ping a person or
// group, based on per-severity directives and a quiet-hours window.
//
// Directive files are optional. A missing or malformed file degrades to "no
// mentions ever" with a one-line diagnostic; it never halts alert processing.
package mention

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"alertbridge/internal/alert"
	logx "alertbridge/pkg/logx"
)

// Directive configures mentions for one severity.
// Quiet bounds are wall-clock "HH:mm"; the local clock is authoritative.
type Directive struct {
	Token      string `json:"mention" yaml:"mention"`
	QuietStart string `json:"quietStart" yaml:"quietStart"`
	QuietEnd   string `json:"quietEnd" yaml:"quietEnd"`
}

// Policy loads directives from an optional file and answers mention queries.
// The file is re-parsed only when its mtime or size changes, so callers can
// query per decision and still pick up edits without a restart.
type Policy struct {
	path string
	log  logx.Logger

	mu      sync.Mutex
	modTime time.Time
	size    int64
	loaded  bool
	byTier  map[alert.Tier]Directive
}

func NewPolicy(path string, log logx.Logger) *Policy {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Policy{path: path, log: log}
}

// Load returns the current directive set keyed by tier. Empty path, missing
// file and parse failures all yield an empty set.
func (p *Policy) Load() map[alert.Tier]Directive {
	if p == nil || strings.TrimSpace(p.path) == "" {
		return map[alert.Tier]Directive{}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	fi, err := os.Stat(p.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			p.log.Warn("mention config unreadable", logx.String("path", p.path), logx.Err(err))
		}
		p.cache(time.Time{}, 0, map[alert.Tier]Directive{})
		return p.byTier
	}
	if p.loaded && fi.ModTime().Equal(p.modTime) && fi.Size() == p.size {
		return p.byTier
	}

	raw, err := os.ReadFile(p.path)
	if err != nil {
		p.log.Warn("mention config unreadable", logx.String("path", p.path), logx.Err(err))
		p.cache(fi.ModTime(), fi.Size(), map[alert.Tier]Directive{})
		return p.byTier
	}

	bySeverity, err := parseDirectives(p.path, raw)
	if err != nil {
		p.log.Warn("mention config malformed; mentions disabled", logx.String("path", p.path), logx.Err(err))
		p.cache(fi.ModTime(), fi.Size(), map[alert.Tier]Directive{})
		return p.byTier
	}

	byTier := make(map[alert.Tier]Directive, len(bySeverity))
	for sev, d := range bySeverity {
		byTier[alert.Classify(sev)] = d
	}
	p.cache(fi.ModTime(), fi.Size(), byTier)
	return p.byTier
}

func (p *Policy) cache(mod time.Time, size int64, byTier map[alert.Tier]Directive) {
	p.modTime = mod
	p.size = size
	p.loaded = true
	p.byTier = byTier
}

func parseDirectives(path string, raw []byte) (map[string]Directive, error) {
	out := map[string]Directive{}
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// IsQuietNow reports whether now falls inside the severity's quiet window.
//
// The window is [quietStart, quietEnd); quietEnd <= quietStart wraps past
// midnight, except equal bounds which mean "never quiet". Unparsable bounds
// disable the window (never quiet) and log once per reload.
func (p *Policy) IsQuietNow(severity string, now time.Time) bool {
	d, ok := p.Load()[alert.Classify(severity)]
	if !ok {
		return false
	}
	start, err1 := parseHHMM(d.QuietStart)
	end, err2 := parseHHMM(d.QuietEnd)
	if err1 != nil || err2 != nil {
		p.log.Warn("quiet window unparsable; treating as never quiet",
			logx.String("severity", string(alert.Classify(severity))),
			logx.String("quiet_start", d.QuietStart),
			logx.String("quiet_end", d.QuietEnd),
		)
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	switch {
	case start == end:
		return false
	case end > start:
		return cur >= start && cur < end
	default:
		return cur >= start || cur < end
	}
}

// ShouldMention reports whether a mention token is configured for the
// severity and the current time is outside its quiet window.
func (p *Policy) ShouldMention(severity string, now time.Time) bool {
	d, ok := p.Load()[alert.Classify(severity)]
	if !ok || strings.TrimSpace(d.Token) == "" {
		return false
	}
	return !p.IsQuietNow(severity, now)
}

// Token returns the configured mention token for the severity, or "".
func (p *Policy) Token(severity string) string {
	return p.Load()[alert.Classify(severity)].Token
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	h, m, ok := strings.Cut(s, ":")
	if !ok || len(h) == 0 || len(m) != 2 {
		return 0, errors.New("expected HH:mm")
	}
	hh, err := atoi2(h)
	if err != nil || hh > 23 {
		return 0, errors.New("invalid hour")
	}
	mm, err := atoi2(m)
	if err != nil || mm > 59 {
		return 0, errors.New("invalid minute")
	}
	return hh*60 + mm, nil
}

func atoi2(s string) (int, error) {
	n := 0
	if len(s) == 0 || len(s) > 2 {
		return 0, errors.New("bad number")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, errors.New("bad digit")
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
