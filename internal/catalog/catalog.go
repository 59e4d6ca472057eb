package catalog

import (
	"context"
	"fmt"
	"path/filepath"

	"matchvault/internal/archive"
)

// Store is an archive catalog backed by a database
type Store interface {
	archive.Catalog
	Count(ctx context.Context) (int, error)
	Close() error
}

// Open returns the catalog selected by driver. The sqlite catalog lives next
// to the archive in outDir; dsn is used by postgres. Driver "none" returns a
// nil Store.
func Open(ctx context.Context, driver, dsn, outDir string) (Store, error) {
	switch driver {
	case "sqlite":
		s, err := NewSQLite(filepath.Join(outDir, "catalog.db"))
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		p, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}
