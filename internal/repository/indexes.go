package repository

import (
	"context"
	"fmt"

	"github.com/go-kivik/kivik/v4"
)

// EnsureIndexes creates the Mango indexes the revision history and conflict
// purge queries sort and filter on. Creating an existing index is a no-op
// in CouchDB.
func EnsureIndexes(ctx context.Context, client *kivik.Client, dbName string) error {
	db := client.DB(dbName)

	indexes := []struct {
		ddoc, name string
		fields     []string
	}{
		{revisionIndexDDoc, revisionIndexName, []string{"document_id", "version"}},
		{conflictIndexDDoc, conflictIndexName, []string{"doc_type", "expires_at"}},
	}

	for _, idx := range indexes {
		if err := db.CreateIndex(ctx, idx.ddoc, idx.name, map[string]interface{}{"fields": idx.fields}); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}
