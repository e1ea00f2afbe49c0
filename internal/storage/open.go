package storage

import (
	"errors"
	"strings"

	logx "alertbridge/pkg/logx"
)

// Open initializes the configured store. The sqlite driver is the default;
// "memory" exists for tests and deliberately provides no durability.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}
