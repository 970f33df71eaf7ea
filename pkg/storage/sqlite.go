package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/transport"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	address          TEXT PRIMARY KEY,
	pairing_id       BLOB NOT NULL,
	pairing_key      BLOB NOT NULL,
	button_uuid      TEXT,
	name             TEXT,
	serial_number    TEXT,
	firmware_version INTEGER,
	last_boot_id     INTEGER,
	last_event_count INTEGER,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
)`

// SQLiteStore persists credentials in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) a credential database at
// the given path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// The sqlite driver does not tolerate concurrent writers on one
	// connection pool handle.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load returns the credentials for an address.
func (s *SQLiteStore) Load(address transport.Address) (*Credentials, error) {
	row := s.db.QueryRow(`
		SELECT pairing_id, pairing_key, button_uuid, name, serial_number,
		       firmware_version, last_boot_id, last_event_count,
		       created_at, updated_at
		FROM credentials WHERE address = ?`, address.String())

	var (
		pairingID, pairingKey []byte
		c                     = &Credentials{Address: address}
	)
	err := row.Scan(
		&pairingID, &pairingKey, &c.ButtonUUID, &c.Name, &c.SerialNumber,
		&c.FirmwareVersion, &c.LastBootID, &c.LastEventCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	if len(pairingID) != crypto.PairingIDSize || len(pairingKey) != crypto.PairingKeySize {
		return nil, fmt.Errorf("%w: stored secrets have wrong size", ErrInvalidCredentials)
	}
	copy(c.PairingID[:], pairingID)
	copy(c.PairingKey[:], pairingKey)
	return c, nil
}

// Save inserts or replaces credentials.
func (s *SQLiteStore) Save(credentials *Credentials) error {
	if !credentials.Valid() {
		return ErrInvalidCredentials
	}

	now := time.Now().UTC()
	createdAt := credentials.CreatedAt
	if existing, err := s.Load(credentials.Address); err == nil {
		createdAt = existing.CreatedAt
	} else if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO credentials
		(address, pairing_id, pairing_key, button_uuid, name, serial_number,
		 firmware_version, last_boot_id, last_event_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		credentials.Address.String(),
		credentials.PairingID[:], credentials.PairingKey[:],
		credentials.ButtonUUID, credentials.Name, credentials.SerialNumber,
		credentials.FirmwareVersion, credentials.LastBootID, credentials.LastEventCount,
		createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Delete removes the credentials for an address.
func (s *SQLiteStore) Delete(address transport.Address) error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE address = ?`, address.String()); err != nil {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

// List returns all stored credentials.
func (s *SQLiteStore) List() ([]*Credentials, error) {
	rows, err := s.db.Query(`SELECT address FROM credentials ORDER BY address`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	var addresses []transport.Address
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		addr, err := transport.ParseAddress(s)
		if err != nil {
			return nil, fmt.Errorf("list credentials: %w", err)
		}
		addresses = append(addresses, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}

	out := make([]*Credentials, 0, len(addresses))
	for _, addr := range addresses {
		c, err := s.Load(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
