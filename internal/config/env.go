package config

import (
	"net"
	"os"
	"strings"
)

// applyEnv overlays environment variables onto a file-loaded config.
// Environment always wins over the file (and the file over defaults), so a
// container deployment can run without any config file at all.
func applyEnv(cfg *Config) {
	if v, ok := lookup("PORT"); ok {
		host := ""
		if h, _, err := net.SplitHostPort(cfg.ListenAddr); err == nil {
			host = h
		}
		cfg.ListenAddr = net.JoinHostPort(host, v)
	}
	if v, ok := lookup("DB_FILE"); ok {
		cfg.Storage.Path = v
	}
	if v, ok := lookup("MATRIX_HOMESERVER_URL"); ok {
		cfg.Matrix.HomeserverURL = v
	}
	if v, ok := lookup("MATRIX_ACCESS_TOKEN"); ok {
		cfg.Matrix.AccessToken = v
	}
	if v, ok := lookup("MATRIX_ROOM_ID"); ok {
		cfg.Matrix.RoomID = v
	}
	if v, ok := lookup("GRAFANA_URL"); ok {
		cfg.Grafana.URL = v
	}
	if v, ok := lookup("GRAFANA_API_KEY"); ok {
		cfg.Grafana.APIKey = v
	}
	if v, ok := lookup("SUMMARY_SCHEDULE_CRIT"); ok {
		cfg.Summary.ScheduleCrit = v
	}
	if v, ok := lookup("SUMMARY_SCHEDULE_WARN"); ok {
		cfg.Summary.ScheduleWarn = v
	}
	if v, ok := lookup("MENTION_CONFIG_PATH"); ok {
		cfg.MentionConfigPath = v
	}
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
