// Package keystore keeps CLI signing keys in a local SQLite file, each seed
// sealed with AES-GCM under a passphrase-derived key.
package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nidhogg/demiurge/internal/signing"
	"golang.org/x/crypto/argon2"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrKeyExists       = errors.New("key already exists")
	ErrWrongPassphrase = errors.New("wrong passphrase")
)

const schema = `CREATE TABLE IF NOT EXISTS keys (
  name       TEXT PRIMARY KEY,
  address    TEXT NOT NULL,
  salt       BLOB NOT NULL,
  nonce      BLOB NOT NULL,
  sealed     BLOB NOT NULL,
  created_at INTEGER NOT NULL
)`

// Entry is a stored key without its secret.
type Entry struct {
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists sealed keys in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) the keystore at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("keystore path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Add seals kp under passphrase and stores it as name.
func (s *Store) Add(ctx context.Context, name string, kp *signing.KeyPair, passphrase string) (Entry, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Entry{}, fmt.Errorf("key name is required")
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return Entry{}, fmt.Errorf("salt: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return Entry{}, fmt.Errorf("cipher: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return Entry{}, fmt.Errorf("nonce: %w", err)
	}
	entry := Entry{Name: name, Address: kp.AddressHex(), CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	sealed := gcm.Seal(nil, nonce, kp.Seed(), []byte(name))

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO keys (name, address, salt, nonce, sealed, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		name, entry.Address, salt, nonce, sealed, entry.CreatedAt.UnixMilli())
	if err != nil {
		if isConstraint(err) {
			return Entry{}, fmt.Errorf("%w: %s", ErrKeyExists, name)
		}
		return Entry{}, fmt.Errorf("insert key: %w", err)
	}
	return entry, nil
}

func isConstraint(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// List returns every key ordered by name.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name, address, created_at FROM keys ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.Name, &e.Address, &ms); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		e.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns the entry for name.
func (s *Store) Get(ctx context.Context, name string) (Entry, error) {
	var e Entry
	var ms int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT name, address, created_at FROM keys WHERE name = ?`, name).Scan(&e.Name, &e.Address, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get key: %w", err)
	}
	e.CreatedAt = time.UnixMilli(ms).UTC()
	return e, nil
}

// Unlock opens the sealed seed for name.
func (s *Store) Unlock(ctx context.Context, name, passphrase string) (*signing.KeyPair, error) {
	var salt, nonce, sealed []byte
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT salt, nonce, sealed FROM keys WHERE name = ?`, name).Scan(&salt, &nonce, &sealed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("get key: %w", err)
	}
	gcm, err := newGCM(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	seed, err := gcm.Open(nil, nonce, sealed, []byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w for %s", ErrWrongPassphrase, name)
	}
	var s32 [32]byte
	copy(s32[:], seed)
	return signing.KeyPairFromSeed(s32), nil
}

// Delete removes name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM keys WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, name)
	}
	return nil
}
