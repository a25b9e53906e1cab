package history

import (
	"fmt"

	"github.com/phenodx-server/internal/domain"
)

// Open creates the store selected by cfg.Driver.
func Open(cfg domain.HistoryConfig) (Store, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return NewSQLiteStore(cfg.SQLitePath, cfg.MaxEntries)
	case "postgres":
		return NewPostgresStoreFromURL(cfg.PostgresURL, cfg.MaxEntries)
	default:
		return nil, fmt.Errorf("unsupported history driver: %s", cfg.Driver)
	}
}
