// Package library manages the decryption lifecycle of an uploaded
// Rekordbox database image: materialize into a request-scoped sandbox,
// unlock with the configured cipher parameters, and guarantee that the
// handle is closed and the backing file deleted on every exit path.
package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/jfigueras/rewindbox/internal/apperr"
)

// Cipher parameters Rekordbox uses to encrypt its library database
// (SQLCipher 4). Every value must match the encrypting side, or every
// subsequent read fails.
const (
	cipherPageSize        = 4096
	cipherKDFIterations   = 256000
	cipherHMACAlgorithm   = "HMAC_SHA512"
	cipherKDFAlgorithm    = "PBKDF2_HMAC_SHA512"
	cipherPlaintextHeader = 0
)

// DefaultMaxBytes is the default upload size ceiling. It protects the
// shared sandbox, not the query logic.
const DefaultMaxBytes = 100 << 20

// Options configures a session open.
type Options struct {
	// Passphrase is the server-held decryption secret.
	Passphrase string
	// SandboxDir is where the encrypted image is materialized.
	// Empty means os.TempDir().
	SandboxDir string
}

// Session is an open handle on a decrypted database image. It is valid
// for a single request and must be closed by the caller; Close also
// deletes the backing file.
type Session struct {
	db   *sql.DB
	path string
}

func makeDSN(path, passphrase string) string {
	params := url.Values{}
	params.Set("_busy_timeout", "5000")
	// go-sqlcipher's connection open reads the database before any user
	// statement runs, so the key (and page size, the only other cipher
	// parameter the DSN accepts) must be configured here; a post-open
	// "PRAGMA key" would arrive too late. The remaining Rekordbox
	// parameters documented above are SQLCipher 4's compiled-in defaults.
	params.Set("_pragma_key", passphrase)
	params.Set("_pragma_cipher_page_size", strconv.Itoa(cipherPageSize))
	return path + "?" + params.Encode()
}

// Open materializes the encrypted bytes into the sandbox, opens a
// handle and applies the cipher configuration. On any failure the
// partially created file and handle are cleaned up before returning.
func Open(ctx context.Context, encrypted []byte, opts Options) (*Session, error) {
	if opts.Passphrase == "" {
		return nil, fmt.Errorf("opening session: no passphrase configured")
	}

	dir := opts.SandboxDir
	if dir == "" {
		dir = os.TempDir()
	}

	f, err := os.CreateTemp(dir, "rewindbox-*.db")
	if err != nil {
		return nil, fmt.Errorf("materializing database: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(encrypted); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing database image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("flushing database image: %w", err)
	}

	db, err := sql.Open("sqlite3", makeDSN(path, opts.Passphrase))
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("opening database handle: %w", err)
	}
	// Cipher pragmas are per-connection state; a single connection
	// keeps every query on the keyed handle.
	db.SetMaxOpenConns(1)

	s := &Session{db: db, path: path}
	if err := s.probe(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// probe reads the schema through the keyed connection. A failing probe
// means the key or a cipher parameter does not match the encrypting
// side.
func (s *Session) probe(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_master",
	).Scan(&count); err != nil {
		return apperr.Wrap(apperr.CodeDecryptFailed,
			"database could not be unlocked", err)
	}
	return nil
}

// DB returns the decrypted read handle.
func (s *Session) DB() *sql.DB {
	return s.db
}

// Path returns the sandboxed file location, for tests and logging.
func (s *Session) Path() string {
	return s.path
}

// Close releases the handle and deletes the sandboxed file. Leaking the
// file across requests would exhaust the shared sandbox, so removal is
// attempted even when the handle fails to close.
func (s *Session) Close() error {
	return errors.Join(s.db.Close(), os.Remove(s.path))
}
