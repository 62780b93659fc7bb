// Package history records the outcome of every delivery attempt so missed
// or failed fires can be audited after the fact. It is best-effort: history
// errors never affect deliveries.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"planbot/pkg/logx"
)

type Config struct {
	Driver string // "none", "file" or "sqlite"
	Path   string
}

// Entry is one fired (or skipped) delivery.
type Entry struct {
	PostID  string    `json:"post_id"`
	ChatID  int64     `json:"chat_id"`
	OwnerID int64     `json:"owner_id"`
	Items   int       `json:"items"`
	Sent    int       `json:"sent"`
	Skipped bool      `json:"skipped,omitempty"`
	Error   string    `json:"error,omitempty"`
	FiredAt time.Time `json:"fired_at"`
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Prune(ctx context.Context, olderThan time.Time) (int, error)
	Close() error
}

// Open initializes the configured store. Returns (nil, nil) when history is
// disabled; callers treat a nil Store as "do not record".
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}
