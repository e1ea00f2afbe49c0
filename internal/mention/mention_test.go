package mention

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	logx "alertbridge/pkg/logx"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 14, hour, min, 0, 0, time.Local)
}

func TestQuietWindowWrapsMidnight(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mentions.json",
		`{"CRITICAL": {"mention": "@oncall", "quietStart": "22:00", "quietEnd": "06:00"}}`)
	p := NewPolicy(path, logx.Nop())

	tests := []struct {
		hour, min int
		quiet     bool
	}{
		{23, 30, true},
		{5, 30, true},
		{12, 0, false},
		{6, 0, false}, // end bound is exclusive
		{22, 0, true}, // start bound is inclusive
	}
	for _, tt := range tests {
		if got := p.IsQuietNow("critical", at(tt.hour, tt.min)); got != tt.quiet {
			t.Fatalf("IsQuietNow at %02d:%02d = %v, want %v", tt.hour, tt.min, got, tt.quiet)
		}
	}
}

func TestDegenerateWindowNeverQuiet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mentions.json",
		`{"CRITICAL": {"mention": "@oncall", "quietStart": "00:00", "quietEnd": "00:00"}}`)
	p := NewPolicy(path, logx.Nop())

	for _, h := range []int{0, 3, 12, 23} {
		if p.IsQuietNow("CRITICAL", at(h, 0)) {
			t.Fatalf("degenerate window quiet at %02d:00", h)
		}
		if !p.ShouldMention("CRITICAL", at(h, 0)) {
			t.Fatalf("mention suppressed at %02d:00", h)
		}
	}
}

func TestShouldMention(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mentions.json", `{
		"crit": {"mention": "@oncall", "quietStart": "22:00", "quietEnd": "06:00"},
		"WARNING": {"quietStart": "00:00", "quietEnd": "08:00"}
	}`)
	p := NewPolicy(path, logx.Nop())

	// Directive key "crit" classifies into the CRITICAL tier.
	if !p.ShouldMention("CRITICAL", at(12, 0)) {
		t.Fatal("expected mention at noon")
	}
	if p.ShouldMention("CRITICAL", at(23, 0)) {
		t.Fatal("mention during quiet hours")
	}
	// No token configured for WARNING.
	if p.ShouldMention("warning", at(12, 0)) {
		t.Fatal("mention without a token")
	}
	// Unconfigured tier.
	if p.ShouldMention("info", at(12, 0)) {
		t.Fatal("mention for unconfigured tier")
	}
	if p.Token("crit") != "@oncall" {
		t.Fatalf("Token = %q", p.Token("crit"))
	}
}

func TestUnparsableBoundsNeverQuiet(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mentions.json",
		`{"CRITICAL": {"mention": "@oncall", "quietStart": "ten pm", "quietEnd": "06:00"}}`)
	p := NewPolicy(path, logx.Nop())

	if p.IsQuietNow("CRITICAL", at(23, 0)) {
		t.Fatal("broken window should never be quiet")
	}
	if !p.ShouldMention("CRITICAL", at(23, 0)) {
		t.Fatal("broken window should not suppress mentions")
	}
}

func TestMissingOrMalformedConfig(t *testing.T) {
	t.Parallel()
	// No path configured.
	p := NewPolicy("", logx.Nop())
	if len(p.Load()) != 0 || p.ShouldMention("CRITICAL", at(12, 0)) {
		t.Fatal("empty path should disable mentions")
	}

	// Path does not exist.
	p = NewPolicy(filepath.Join(t.TempDir(), "nope.json"), logx.Nop())
	if len(p.Load()) != 0 {
		t.Fatal("missing file should disable mentions")
	}

	// Malformed JSON.
	path := writeFile(t, "mentions.json", `{not json`)
	p = NewPolicy(path, logx.Nop())
	if len(p.Load()) != 0 {
		t.Fatal("malformed file should disable mentions")
	}
}

func TestYAMLDirectives(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "mentions.yaml", "warning:\n  mention: \"@team\"\n  quietStart: \"01:00\"\n  quietEnd: \"05:00\"\n")
	p := NewPolicy(path, logx.Nop())

	if !p.ShouldMention("WARN", at(12, 0)) {
		t.Fatal("expected mention from yaml directive")
	}
	if !p.IsQuietNow("WARN", at(3, 0)) {
		t.Fatal("expected quiet at 03:00")
	}
}

func TestParseHHMM(t *testing.T) {
	t.Parallel()
	if v, err := parseHHMM("23:15"); err != nil || v != 23*60+15 {
		t.Fatalf("parseHHMM(23:15) = %d, %v", v, err)
	}
	for _, bad := range []string{"24:00", "12:60", "1200", "12:0", "", "aa:bb"} {
		if _, err := parseHHMM(bad); err == nil {
			t.Fatalf("parseHHMM(%q) should fail", bad)
		}
	}
}
