package storage

import (
	"context"
	"database/sql"
	"fmt"

	"snapdiff/internal/catalog"
	"snapdiff/internal/narrate"
	"snapdiff/internal/version"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

var _ HistoryStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates or opens a SQLite database and recreates the export
// tables, so every run starts from an empty history.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`DROP TABLE IF EXISTS sources;`,
		`DROP TABLE IF EXISTS versions;`,
		`DROP TABLE IF EXISTS changes;`,
		`CREATE TABLE sources (
			seq INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);`,
		`CREATE TABLE versions (
			seq INTEGER NOT NULL,
			entity TEXT NOT NULL,
			node INTEGER NOT NULL,
			path TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value TEXT NOT NULL,
			previous TEXT
		);`,
		`CREATE TABLE changes (
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			entity TEXT NOT NULL,
			path TEXT NOT NULL,
			attribute TEXT NOT NULL,
			value TEXT NOT NULL,
			line TEXT NOT NULL
		);`,
		`CREATE INDEX idx_versions_entity ON versions(entity);`,
		`CREATE INDEX idx_changes_seq ON changes(seq);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) SaveCatalog(ctx context.Context, cat *catalog.Catalog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// 1. Save Sources
	srcStmt, err := tx.PrepareContext(ctx, `INSERT INTO sources (seq, name) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer srcStmt.Close()

	for _, src := range cat.Sources() {
		if _, err := srcStmt.ExecContext(ctx, src.Seq, src.Name); err != nil {
			return fmt.Errorf("failed to save source %s: %w", src.Name, err)
		}
	}

	// 2. Save Versions, entity by entity
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO versions (seq, entity, node, path, attribute, value, previous)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, publicID := range cat.EntityIDs() {
		root, _ := cat.Root(publicID)
		var saveErr error
		cat.Walk(root, func(id catalog.NodeID, _ int) bool {
			path := cat.Path(id)
			cat.Node(id).Fields(func(attr string, h version.History) bool {
				for _, v := range h.Versions() {
					var prev sql.NullString
					if p := v.Previous(); p != nil {
						prev = sql.NullString{String: p.Value(), Valid: true}
					}
					if _, err := stmt.ExecContext(ctx, v.Source().Seq, publicID, int64(id), path, attr, v.Value(), prev); err != nil {
						saveErr = err
						return false
					}
				}
				return true
			})
			return saveErr == nil
		})
		if saveErr != nil {
			return fmt.Errorf("failed to save versions of %s: %w", publicID, saveErr)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) SaveChanges(ctx context.Context, sections []narrate.Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO changes (seq, kind, entity, path, attribute, value, line)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, section := range sections {
		for _, c := range section.Changes {
			if _, err := stmt.ExecContext(ctx, c.Source.Seq, string(c.Kind), c.EntityID, c.Path, c.Attribute, c.Value, c.Line); err != nil {
				return fmt.Errorf("failed to save change %q: %w", c.Line, err)
			}
		}
	}

	return tx.Commit()
}
