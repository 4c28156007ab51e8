// Package sqlite implements the repository.Store contract on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"lodestone/internal/domain"
	"lodestone/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Store backed by a SQLite database. Each
// registered schema gets its own table; fields the schema does not declare
// spill into a JSON data column.
type Repository struct {
	db       *sql.DB
	registry *domain.Registry
	store
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an ephemeral database in tests.
func New(dbPath string, registry *domain.Registry) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	repo := &Repository{db: db, registry: registry}
	repo.store = store{q: db, registry: registry}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := repo.seedStatuses(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed statuses: %w", err)
	}

	return repo, nil
}

// Close closes the underlying database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Registry returns the schema registry this repository was opened with.
func (r *Repository) Registry() *domain.Registry {
	return r.registry
}

func (r *Repository) migrate() error {
	var ddl strings.Builder
	for _, schema := range r.registry.Schemas() {
		fmt.Fprintf(&ddl, "CREATE TABLE IF NOT EXISTS %s (\n", schema.Table)
		ddl.WriteString("\tid TEXT PRIMARY KEY,\n")
		for _, field := range schema.Fields {
			if field.Kind == domain.FieldRefList {
				continue
			}
			colType := field.Type
			if colType == "" {
				colType = "TEXT"
			}
			fmt.Fprintf(&ddl, "\t%s %s,\n", quoteIdent(field.Column()), colType)
		}
		ddl.WriteString("\tdata TEXT NOT NULL DEFAULT '{}',\n")
		ddl.WriteString("\tcreated_at DATETIME DEFAULT CURRENT_TIMESTAMP,\n")
		ddl.WriteString("\tupdated_at DATETIME DEFAULT CURRENT_TIMESTAMP\n);\n")

		for _, field := range schema.Fields {
			if field.Kind == domain.FieldRef {
				fmt.Fprintf(&ddl, "CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s);\n",
					schema.Table, field.Column(), schema.Table, quoteIdent(field.Column()))
			}
		}
	}

	_, err := r.db.Exec(ddl.String())
	return err
}

// seedStatuses inserts the default status set on a fresh database. Designs
// reference statuses by name, so they must exist before any design runs.
func (r *Repository) seedStatuses() error {
	ctx := context.Background()
	count, err := r.Count(ctx, domain.ModelStatus, nil)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, s := range domain.DefaultStatuses {
		if _, err := r.Insert(ctx, domain.ModelStatus, domain.Record{
			"name":  s.Name,
			"color": s.Color,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Transact runs fn inside a transaction. Design application uses this so a
// failed or dry-run design leaves no trace.
func (r *Repository) Transact(ctx context.Context, fn func(repository.Store) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(store{q: tx, registry: r.registry}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

var _ repository.Store = (*Repository)(nil)
var _ repository.Transactor = (*Repository)(nil)
