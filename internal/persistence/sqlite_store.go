package persistence

import (
	"database/sql"
	"errors"

	"github.com/dataproduct/journeys/pkg/api"
)

// SQLiteDefinitionStore is a DefinitionStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteDefinitionStore struct {
	db *sql.DB
}

// Ensure SQLiteDefinitionStore implements DefinitionStore.
var _ DefinitionStore = (*SQLiteDefinitionStore)(nil)

// NewSQLiteDefinitionStore initializes the required schema in the given
// database and returns a new SQLiteDefinitionStore.
func NewSQLiteDefinitionStore(db *sql.DB) (*SQLiteDefinitionStore, error) {
	s := &SQLiteDefinitionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDefinitionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS journey_definitions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			document BLOB NOT NULL,
			UNIQUE (name, version)
		);`,
	)
	return err
}

func (s *SQLiteDefinitionStore) SaveDefinition(doc api.Document) error {
	doc.Version = versionOrDefault(doc.Version)
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Delete + insert gives the row a fresh seq, making it the latest.
	if _, err := tx.Exec(`DELETE FROM journey_definitions WHERE name = ? AND version = ?`, doc.Name, doc.Version); err != nil {
		return err
	}
	if _, err := tx.Exec(`
		INSERT INTO journey_definitions (name, version, fingerprint, document)
		VALUES (?, ?, ?, ?)`,
		doc.Name, doc.Version, doc.Fingerprint, data,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteDefinitionStore) GetDefinition(name, version string) (api.Document, error) {
	row := s.db.QueryRow(`
		SELECT document FROM journey_definitions WHERE name = ? AND version = ?`,
		name, versionOrDefault(version),
	)
	return scanDocument(row)
}

func (s *SQLiteDefinitionStore) GetLatestDefinition(name string) (api.Document, error) {
	row := s.db.QueryRow(`
		SELECT document FROM journey_definitions WHERE name = ? ORDER BY seq DESC LIMIT 1`,
		name,
	)
	return scanDocument(row)
}

func (s *SQLiteDefinitionStore) ListDefinitionVersions(name string) ([]string, error) {
	rows, err := s.db.Query(`SELECT version FROM journey_definitions WHERE name = ? ORDER BY seq`, name)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *SQLiteDefinitionStore) ListDefinitionNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT name FROM journey_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func scanDocument(row *sql.Row) (api.Document, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.Document{}, ErrDefinitionNotFound
		}
		return api.Document{}, err
	}
	return DecodeDocument(data)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
