package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tevino/abool"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/ainotebook/notebase/database/storage"
	"github.com/ainotebook/notebase/utils"
)

const fileName = "db.sqlite"

var metaTables = []string{
	`CREATE TABLE IF NOT EXISTS _meta (
		key TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS _indexes (
		collection TEXT NOT NULL,
		name TEXT NOT NULL,
		is_unique INTEGER NOT NULL,
		PRIMARY KEY (collection, name)
	)`,
}

// SQLite database made pluggable for the storage layer. Every collection is
// a table with an auto-incrementing primary key, indexes are columns.
type SQLite struct {
	name string
	db   *sql.DB

	closed    *abool.AtomicBool
	closeOnce sync.Once
}

func init() {
	_ = storage.Register("sqlite", NewSQLite, DestroySQLite)
}

// NewSQLite opens/creates a sqlite database.
func NewSQLite(name, location string) (storage.Interface, error) {
	err := utils.EnsureDirectory(location, utils.AdminOnlyPermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbPath := filepath.Join(location, fileName)
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// serialize writers
	db.SetMaxOpenConns(1)

	for _, stmt := range metaTables {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create meta tables: %w", err)
		}
	}

	return &SQLite{
		name:   name,
		db:     db,
		closed: abool.New(),
	}, nil
}

// DestroySQLite removes a sqlite database.
func DestroySQLite(_, location string) error {
	return os.RemoveAll(location)
}

func tableName(collection string) string {
	return `"c_` + collection + `"`
}

func columnName(index string) string {
	return `"ix_` + index + `"`
}

func wrapErr(collection string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("%w: %s", storage.ErrNoCollection, collection)
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %s", storage.ErrConstraint, msg)
	case strings.Contains(msg, "database is closed"):
		return storage.ErrClosed
	}
	return err
}

type querier interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

func indexes(q querier, collection string) (map[string]bool, error) {
	rows, err := q.Query(`SELECT name, is_unique FROM _indexes WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make(map[string]bool)
	for rows.Next() {
		var (
			name   string
			unique bool
		)
		if err := rows.Scan(&name, &unique); err != nil {
			return nil, err
		}
		result[name] = unique
	}
	return result, rows.Err()
}

// Version returns the schema version of the database.
func (s *SQLite) Version() (uint64, error) {
	if s.closed.IsSet() {
		return 0, storage.ErrClosed
	}

	var version uint64
	err := s.db.QueryRow(`SELECT value FROM _meta WHERE key = 'version'`).Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, wrapErr("", err)
	}
	return version, nil
}

// Upgrade runs a schema upgrade and sets the new version.
func (s *SQLite) Upgrade(version uint64, fn func(storage.Schema) error) error {
	if s.closed.IsSet() {
		return storage.ErrClosed
	}

	tx, err := s.db.Begin()
	if err != nil {
		return wrapErr("", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = fn(&schema{tx: tx})
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO _meta (key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, version)
	if err != nil {
		return wrapErr("", err)
	}
	return wrapErr("", tx.Commit())
}

// Add stores a new entry.
func (s *SQLite) Add(collection string, entry *storage.Entry) (uint64, error) {
	if entry.ID != 0 {
		return 0, storage.ErrIDAssigned
	}
	return s.Put(collection, entry)
}

// Put stores an entry.
func (s *SQLite) Put(collection string, entry *storage.Entry) (uint64, error) {
	if s.closed.IsSet() {
		return 0, storage.ErrClosed
	}
	if err := storage.CheckName(collection); err != nil {
		return 0, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, wrapErr(collection, err)
	}
	defer func() { _ = tx.Rollback() }()

	if entry.ID == 0 {
		seq, err := sequence(tx, collection)
		if err != nil {
			return 0, wrapErr(collection, err)
		}
		if _, err := storage.AssignID(0, seq); err != nil {
			return 0, err
		}
	} else if _, err := storage.AssignID(entry.ID, 0); err != nil {
		return 0, err
	}

	idx, err := indexes(tx, collection)
	if err != nil {
		return 0, wrapErr(collection, err)
	}

	refs, err := storage.EncodeIndexValues(entry.Index)
	if err != nil {
		return 0, err
	}

	columns := []string{"data", "refs"}
	args := []interface{}{entry.Data, string(refs)}
	for index := range idx {
		columns = append(columns, columnName(index))
		if value, ok := entry.Index[index]; ok {
			args = append(args, value)
		} else {
			args = append(args, nil)
		}
	}

	id := entry.ID
	if id != 0 {
		updates := make([]string, 0, len(columns))
		for _, column := range columns {
			updates = append(updates, column+" = ?")
		}
		result, err := tx.Exec(
			fmt.Sprintf(`UPDATE %s SET %s WHERE id = ?`, tableName(collection), strings.Join(updates, ", ")),
			append(args, id)...,
		)
		if err != nil {
			return 0, wrapErr(collection, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			return id, wrapErr(collection, tx.Commit())
		}

		columns = append([]string{"id"}, columns...)
		args = append([]interface{}{id}, args...)
	}

	result, err := tx.Exec(
		fmt.Sprintf(
			`INSERT INTO %s (%s) VALUES (%s)`,
			tableName(collection),
			strings.Join(columns, ", "),
			placeholders(len(columns)),
		),
		args...,
	)
	if err != nil {
		return 0, wrapErr(collection, err)
	}
	if id == 0 {
		lastID, err := result.LastInsertId()
		if err != nil {
			return 0, err
		}
		id = uint64(lastID)
	}
	return id, wrapErr(collection, tx.Commit())
}

// sequence returns the last id handed out by the autoincrement of the
// collection table.
func sequence(tx *sql.Tx, collection string) (uint64, error) {
	var seq int64
	err := tx.QueryRow(`SELECT seq FROM sqlite_sequence WHERE name = ?`, "c_"+collection).Scan(&seq)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return uint64(seq), nil
}

// outOfRange handles ids that cannot be stored at all. Like for any other
// missing id, the collection must exist.
func (s *SQLite) outOfRange(collection string, err error) error {
	exists, hasErr := hasTable(s.db, collection)
	switch {
	case hasErr != nil:
		return wrapErr(collection, hasErr)
	case !exists:
		return fmt.Errorf("%w: %s", storage.ErrNoCollection, collection)
	}
	return err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Get returns the data of an entry.
func (s *SQLite) Get(collection string, id uint64) ([]byte, error) {
	if s.closed.IsSet() {
		return nil, storage.ErrClosed
	}
	if err := storage.CheckName(collection); err != nil {
		return nil, err
	}

	if id > storage.MaxID {
		return nil, s.outOfRange(collection, storage.ErrNotFound)
	}

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM `+tableName(collection)+` WHERE id = ?`, id).Scan(&data)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, storage.ErrNotFound
	case err != nil:
		return nil, wrapErr(collection, err)
	}
	return data, nil
}

// Scan iterates over all entries of a collection.
func (s *SQLite) Scan(collection string, fn func(id uint64, data []byte) error) error {
	if err := storage.CheckName(collection); err != nil {
		return err
	}
	return s.scan(collection, `SELECT id, data FROM `+tableName(collection)+` ORDER BY id`, fn)
}

// ScanIndex iterates over all entries with the given index value.
func (s *SQLite) ScanIndex(collection, index, value string, fn func(id uint64, data []byte) error) error {
	if s.closed.IsSet() {
		return storage.ErrClosed
	}
	if err := storage.CheckName(collection); err != nil {
		return err
	}

	var unique bool
	err := s.db.QueryRow(
		`SELECT is_unique FROM _indexes WHERE collection = ? AND name = ?`,
		collection, index,
	).Scan(&unique)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists, err := hasTable(s.db, collection)
		if err != nil {
			return wrapErr(collection, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", storage.ErrNoCollection, collection)
		}
		return fmt.Errorf("%w: %s.%s", storage.ErrNoIndex, collection, index)
	case err != nil:
		return wrapErr(collection, err)
	}

	return s.scan(
		collection,
		`SELECT id, data FROM `+tableName(collection)+` WHERE `+columnName(index)+` = ? ORDER BY id`,
		fn, value,
	)
}

// scan reads all rows before calling fn, so that fn may use the database.
func (s *SQLite) scan(collection, query string, fn func(id uint64, data []byte) error, args ...interface{}) error {
	if s.closed.IsSet() {
		return storage.ErrClosed
	}

	type row struct {
		id   uint64
		data []byte
	}
	var result []row

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return wrapErr(collection, err)
	}
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.data); err != nil {
			_ = rows.Close()
			return err
		}
		result = append(result, r)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return wrapErr(collection, err)
	}

	for _, r := range result {
		if err := fn(r.id, r.data); err != nil {
			return err
		}
	}
	return nil
}

// Delete deletes an entry.
func (s *SQLite) Delete(collection string, id uint64) error {
	if s.closed.IsSet() {
		return storage.ErrClosed
	}
	if err := storage.CheckName(collection); err != nil {
		return err
	}

	if id > storage.MaxID {
		return s.outOfRange(collection, nil)
	}

	_, err := s.db.Exec(`DELETE FROM `+tableName(collection)+` WHERE id = ?`, id)
	return wrapErr(collection, err)
}

// Clear deletes all entries of a collection. The autoincrement sequence is
// kept in sqlite_sequence.
func (s *SQLite) Clear(collection string) error {
	if s.closed.IsSet() {
		return storage.ErrClosed
	}
	if err := storage.CheckName(collection); err != nil {
		return err
	}

	_, err := s.db.Exec(`DELETE FROM ` + tableName(collection))
	return wrapErr(collection, err)
}

// Close closes the database.
func (s *SQLite) Close() (err error) {
	s.closeOnce.Do(func() {
		s.closed.Set()
		err = s.db.Close()
	})
	return err
}

type execQuerier interface {
	querier
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

func hasTable(q interface {
	QueryRow(query string, args ...interface{}) *sql.Row
}, collection string,
) (bool, error) {
	var count int
	err := q.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		"c_"+collection,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

type schema struct {
	tx execQuerier
}

func (s *schema) HasCollection(name string) (bool, error) {
	if err := storage.CheckName(name); err != nil {
		return false, err
	}
	return hasTable(s.tx, name)
}

func (s *schema) CreateCollection(name string) error {
	exists, err := s.HasCollection(name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", storage.ErrCollectionExists, name)
	}

	_, err = s.tx.Exec(`CREATE TABLE ` + tableName(name) + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data BLOB NOT NULL,
		refs TEXT NOT NULL DEFAULT '{}'
	)`)
	return err
}

func (s *schema) CreateIndex(collection, index string, unique bool) error {
	if err := storage.CheckName(index); err != nil {
		return err
	}
	exists, err := s.HasCollection(collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", storage.ErrNoCollection, collection)
	}
	idx, err := indexes(s.tx, collection)
	if err != nil {
		return err
	}
	if _, ok := idx[index]; ok {
		return fmt.Errorf("%w: %s.%s", storage.ErrIndexExists, collection, index)
	}

	_, err = s.tx.Exec(`ALTER TABLE ` + tableName(collection) + ` ADD COLUMN ` + columnName(index) + ` TEXT`)
	if err != nil {
		return err
	}

	// index existing entries
	_, err = s.tx.Exec(
		`UPDATE `+tableName(collection)+` SET `+columnName(index)+` = json_extract(refs, ?)`,
		`$."`+index+`"`,
	)
	if err != nil {
		return err
	}

	createIndex := "CREATE INDEX"
	if unique {
		createIndex = "CREATE UNIQUE INDEX"
	}
	_, err = s.tx.Exec(fmt.Sprintf(
		`%s "c_%s_ix_%s" ON %s (%s)`,
		createIndex, collection, index, tableName(collection), columnName(index),
	))
	if err != nil {
		return wrapErr(collection, err)
	}

	_, err = s.tx.Exec(
		`INSERT INTO _indexes (collection, name, is_unique) VALUES (?, ?, ?)`,
		collection, index, boolToInt(unique),
	)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
