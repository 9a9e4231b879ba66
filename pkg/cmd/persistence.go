// Package cmd wires shared infrastructure for the pushgate binaries.
package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pushgate/pushgate/pkg/persistence"
	"github.com/pushgate/pushgate/pkg/persistence/file"
	"github.com/pushgate/pushgate/pkg/persistence/postgresql"

	_ "github.com/lib/pq"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence creates a persistence layer from a database URL. A
// postgres:// URL selects PostgreSQL; anything else is treated as a file
// path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
