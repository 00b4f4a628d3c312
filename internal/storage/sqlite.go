package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 2

// SQLiteBackend stores collections in a SQLite database.
type SQLiteBackend struct {
	db   *sqlx.DB
	path string
}

type recordRow struct {
	ID       string `db:"id"`
	Position int64  `db:"position"`
	Data     string `db:"data"`
}

// NewSQLiteBackend opens or creates the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps the pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	b := &SQLiteBackend{db: db, path: path}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// migrate runs database migrations.
func (b *SQLiteBackend) migrate() error {
	var version int
	if err := b.db.Get(&version, "SELECT version FROM schema_version LIMIT 1"); err != nil {
		version = 0
	}

	if version < 1 {
		if err := b.migrateV1(); err != nil {
			return err
		}
	}

	if version < 2 {
		if err := b.migrateV2(); err != nil {
			return err
		}
	}

	return nil
}

// migrateV1 creates the initial schema.
func (b *SQLiteBackend) migrateV1() error {
	schema := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY
		);

		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY NOT NULL,
			version INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS records (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			data TEXT NOT NULL,
			PRIMARY KEY (collection, id),
			FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_records_position ON records(collection, position);

		INSERT OR REPLACE INTO schema_version (version) VALUES (1);
	`
	_, err := b.db.Exec(schema)
	return err
}

// migrateV2 adds modification timestamps.
func (b *SQLiteBackend) migrateV2() error {
	migration := `
		ALTER TABLE collections ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';
		ALTER TABLE records ADD COLUMN updated_at TEXT NOT NULL DEFAULT '';
		UPDATE schema_version SET version = 2;
	`
	_, err := b.db.Exec(migration)
	return err
}

// Load reads a collection ordered by position.
func (b *SQLiteBackend) Load(ctx context.Context, key string) (Snapshot, error) {
	snap := Snapshot{Key: key, Records: []Record{}}
	if err := ValidateKey(key); err != nil {
		return snap, err
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return snap, err
	}
	defer tx.Rollback()

	if err := tx.GetContext(ctx, &snap.Version, "SELECT version FROM collections WHERE name = ?", key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snap, ErrNotFound
		}
		return snap, err
	}

	var rows []recordRow
	if err := tx.SelectContext(ctx, &rows,
		"SELECT id, position, data FROM records WHERE collection = ? ORDER BY position", key); err != nil {
		return snap, err
	}
	for _, r := range rows {
		snap.Records = append(snap.Records, Record{ID: r.ID, Data: []byte(r.Data)})
	}

	return snap, nil
}

// Apply runs every op in one transaction.
func (b *SQLiteBackend) Apply(ctx context.Context, ops ...Op) (map[string]int64, error) {
	if err := checkOps(ops); err != nil {
		return nil, err
	}

	tx, err := b.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Versions as of the start of the transaction.
	versions := make(map[string]int64)
	var order []string
	for _, op := range ops {
		v, seen := versions[op.Key]
		if !seen {
			err := tx.GetContext(ctx, &v, "SELECT version FROM collections WHERE name = ?", op.Key)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, err
			}
			versions[op.Key] = v
			order = append(order, op.Key)
		}
		if op.Expected != AnyVersion && op.Expected != v {
			return nil, conflictError(op.Key, op.Expected, v)
		}
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	dropped := make(map[string]bool)
	for _, op := range ops {
		if err := b.ensureCollection(ctx, tx, op.Key, versions[op.Key], now); err != nil {
			return nil, err
		}
		if err := b.applyOp(ctx, tx, op, now); err != nil {
			return nil, err
		}
		dropped[op.Key] = op.Kind == OpDrop
	}

	result := make(map[string]int64, len(order))
	for _, key := range order {
		if dropped[key] {
			result[key] = 0
			continue
		}
		next := versions[key] + 1
		if _, err := tx.ExecContext(ctx,
			"UPDATE collections SET version = ?, updated_at = ? WHERE name = ?", next, now, key); err != nil {
			return nil, err
		}
		result[key] = next
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (b *SQLiteBackend) ensureCollection(ctx context.Context, tx *sqlx.Tx, key string, version int64, now string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (name, version, updated_at) VALUES (?, ?, ?)", key, version, now)
	return err
}

func (b *SQLiteBackend) applyOp(ctx context.Context, tx *sqlx.Tx, op Op, now string) error {
	switch op.Kind {
	case OpReplace:
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", op.Key); err != nil {
			return err
		}
		for i, rec := range op.Records {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO records (collection, id, position, data, updated_at) VALUES (?, ?, ?, ?, ?)",
				op.Key, rec.ID, i, string(rec.Data), now); err != nil {
				return err
			}
		}
		return nil

	case OpUpsert:
		res, err := tx.ExecContext(ctx,
			"UPDATE records SET data = ?, updated_at = ? WHERE collection = ? AND id = ?",
			string(op.Record.Data), now, op.Key, op.Record.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
		edge := "SELECT COALESCE(MAX(position) + 1, 0) FROM records WHERE collection = ?"
		if op.Place == Front {
			edge = "SELECT COALESCE(MIN(position) - 1, 0) FROM records WHERE collection = ?"
		}
		var pos int64
		if err := tx.GetContext(ctx, &pos, edge, op.Key); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			"INSERT INTO records (collection, id, position, data, updated_at) VALUES (?, ?, ?, ?, ?)",
			op.Key, op.Record.ID, pos, string(op.Record.Data), now)
		return err

	case OpRemove:
		_, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection = ? AND id = ?", op.Key, op.ID)
		return err

	case OpDrop:
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE collection = ?", op.Key); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM collections WHERE name = ?", op.Key)
		return err
	}
	return nil
}

// Keys lists every stored key.
func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	if err := b.db.SelectContext(ctx, &keys, "SELECT name FROM collections ORDER BY name"); err != nil {
		return nil, err
	}
	return keys, nil
}
