package publish

import (
	"errors"
	"strings"

	logx "autopost/pkg/logx"
)

// Open builds the configured gateway.
func Open(cfg Config, log logx.Logger) (Gateway, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "dryrun", "dry-run":
		return NewDryRun(log), nil
	case "http":
		return NewHTTP(cfg, log)
	default:
		return nil, errors.New("unknown publish driver: " + cfg.Driver)
	}
}

// ValidDriver reports whether Open understands driver.
func ValidDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "dryrun", "dry-run", "http":
		return true
	default:
		return false
	}
}
