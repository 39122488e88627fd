package persistence

import (
	"database/sql"

	"github.com/dataproduct/journeys/pkg/api"
)

// PostgresDefinitionStore is a DefinitionStore backed by PostgreSQL.
//
// It expects an *sql.DB opened with the pgx stdlib driver:
//
//	import _ "github.com/jackc/pgx/v5/stdlib"
//	db, err := sql.Open("pgx", dsn)
type PostgresDefinitionStore struct {
	db *sql.DB
}

// Ensure PostgresDefinitionStore implements DefinitionStore.
var _ DefinitionStore = (*PostgresDefinitionStore)(nil)

// NewPostgresDefinitionStore initializes the required schema in the given
// database and returns a new PostgresDefinitionStore.
func NewPostgresDefinitionStore(db *sql.DB) (*PostgresDefinitionStore, error) {
	s := &PostgresDefinitionStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PostgresDefinitionStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS journey_definitions (
			seq BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			document JSONB NOT NULL,
			saved_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (name, version)
		);`,
	)
	return err
}

func (s *PostgresDefinitionStore) SaveDefinition(doc api.Document) error {
	doc.Version = versionOrDefault(doc.Version)
	data, err := EncodeDocument(doc)
	if err != nil {
		return err
	}

	// The upsert draws a new seq so that the saved version becomes the latest.
	_, err = s.db.Exec(`
		INSERT INTO journey_definitions (name, version, fingerprint, document)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name, version) DO UPDATE SET
			seq = nextval(pg_get_serial_sequence('journey_definitions', 'seq')),
			fingerprint = EXCLUDED.fingerprint,
			document = EXCLUDED.document,
			saved_at = now()`,
		doc.Name, doc.Version, doc.Fingerprint, string(data),
	)
	return err
}

func (s *PostgresDefinitionStore) GetDefinition(name, version string) (api.Document, error) {
	row := s.db.QueryRow(`
		SELECT document::text FROM journey_definitions WHERE name = $1 AND version = $2`,
		name, versionOrDefault(version),
	)
	return scanDocument(row)
}

func (s *PostgresDefinitionStore) GetLatestDefinition(name string) (api.Document, error) {
	row := s.db.QueryRow(`
		SELECT document::text FROM journey_definitions WHERE name = $1 ORDER BY seq DESC LIMIT 1`,
		name,
	)
	return scanDocument(row)
}

func (s *PostgresDefinitionStore) ListDefinitionVersions(name string) ([]string, error) {
	rows, err := s.db.Query(`SELECT version FROM journey_definitions WHERE name = $1 ORDER BY seq`, name)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (s *PostgresDefinitionStore) ListDefinitionNames() ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT name FROM journey_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}
