package rewind_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jfigueras/rewindbox/internal/apperr"
	"github.com/jfigueras/rewindbox/internal/library"
	"github.com/jfigueras/rewindbox/internal/rewind"
)

const testPassphrase = "correct horse battery staple"

// makeEncryptedLibrary builds an encrypted fixture with play history in
// 2024 and 2023.
func makeEncryptedLibrary(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening fixture db: %v", err)
	}
	db.SetMaxOpenConns(1)

	stmts := []string{
		fmt.Sprintf("PRAGMA key = '%s'", testPassphrase),
		`CREATE TABLE djmdContent (
			ID TEXT PRIMARY KEY, Title TEXT, ArtistID TEXT, GenreID TEXT,
			BPM INTEGER, Length INTEGER, created_at TEXT)`,
		"CREATE TABLE djmdArtist (ID TEXT PRIMARY KEY, Name TEXT)",
		"CREATE TABLE djmdGenre (ID TEXT PRIMARY KEY, Name TEXT)",
		"CREATE TABLE djmdHistory (ID TEXT PRIMARY KEY, created_at TEXT)",
		"CREATE TABLE djmdSongHistory (ID TEXT PRIMARY KEY, HistoryID TEXT, ContentID TEXT)",

		"INSERT INTO djmdArtist VALUES ('a1', 'Daft Punk')",
		"INSERT INTO djmdGenre VALUES ('g1', 'House')",
		"INSERT INTO djmdContent VALUES ('c1', 'One More Time', 'a1', 'g1', 12300, 320, '2024-03-10 09:15:00')",
		"INSERT INTO djmdContent VALUES ('c2', 'Aerodynamic', 'a1', 'g1', 12300, 270, '2023-02-01 10:00:00')",

		"INSERT INTO djmdHistory VALUES ('h1', '2024-04-12 20:00:00')",
		"INSERT INTO djmdSongHistory VALUES ('s1', 'h1', 'c1')",
		"INSERT INTO djmdSongHistory VALUES ('s2', 'h1', 'c2')",
		"INSERT INTO djmdHistory VALUES ('h2', '2024-07-04 22:00:00')",
		"INSERT INTO djmdSongHistory VALUES ('s3', 'h2', 'c1')",
		"INSERT INTO djmdHistory VALUES ('h3', '2023-05-01 20:00:00')",
		"INSERT INTO djmdSongHistory VALUES ('s4', 'h3', 'c2')",
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatalf("building fixture: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing fixture db: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}
	return data
}

func TestGenerate(t *testing.T) {
	encrypted := makeEncryptedLibrary(t)
	sandbox := t.TempDir()
	gen := rewind.NewGenerator(testPassphrase, sandbox, 0)

	resp, err := gen.Generate(context.Background(), encrypted, rewind.Request{
		Year:           "2024",
		ComparisonYear: "2023",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if resp.Year != "2024" {
		t.Errorf("Year = %q, want 2024", resp.Year)
	}
	if resp.Stats.TotalTracks != 3 {
		t.Errorf("TotalTracks = %d, want 3", resp.Stats.TotalTracks)
	}
	if resp.Stats.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", resp.Stats.TotalSessions)
	}
	if resp.Stats.TotalPlaytimeSeconds != 910 {
		t.Errorf("TotalPlaytimeSeconds = %d, want 910", resp.Stats.TotalPlaytimeSeconds)
	}

	if resp.Comparison == nil {
		t.Fatal("Comparison missing")
	}
	if resp.Comparison.Year != "2023" {
		t.Errorf("Comparison.Year = %q, want 2023", resp.Comparison.Year)
	}
	if resp.Comparison.Stats.TotalTracks != 1 {
		t.Errorf("Comparison.Stats.TotalTracks = %d, want 1",
			resp.Comparison.Stats.TotalTracks)
	}
	if got := resp.Comparison.Diffs.TracksPercentage; got != 200 {
		t.Errorf("TracksPercentage = %v, want 200", got)
	}
	if got := resp.Comparison.Diffs.TotalSessionsPercentage; got != 100 {
		t.Errorf("TotalSessionsPercentage = %v, want 100", got)
	}

	// The session sandbox must be empty once the request is done.
	entries, err := os.ReadDir(sandbox)
	if err != nil {
		t.Fatalf("reading sandbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("sandbox has %d leftover entries", len(entries))
	}
}

func TestGenerateNoComparison(t *testing.T) {
	encrypted := makeEncryptedLibrary(t)
	gen := rewind.NewGenerator(testPassphrase, t.TempDir(), 0)

	resp, err := gen.Generate(context.Background(), encrypted, rewind.Request{Year: "2024"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Comparison != nil {
		t.Error("Comparison set without a comparison year")
	}
}

func TestGenerateEmptyInput(t *testing.T) {
	gen := rewind.NewGenerator(testPassphrase, t.TempDir(), 0)

	_, err := gen.Generate(context.Background(), nil, rewind.Request{Year: "2024"})
	if code := apperr.CodeOf(err); code != apperr.CodeNoFile {
		t.Errorf("code = %s, want %s", code, apperr.CodeNoFile)
	}
}

func TestGenerateOversized(t *testing.T) {
	sandbox := t.TempDir()
	gen := rewind.NewGenerator(testPassphrase, sandbox, 0)

	oversized := make([]byte, library.DefaultMaxBytes+1)
	_, err := gen.Generate(context.Background(), oversized, rewind.Request{Year: "2024"})
	if code := apperr.CodeOf(err); code != apperr.CodeFileTooLarge {
		t.Fatalf("code = %s, want %s", code, apperr.CodeFileTooLarge)
	}

	msg := apperr.MessageOf(err)
	if !strings.Contains(msg, "100MB limit") {
		t.Errorf("message %q does not name the limit", msg)
	}
	if !strings.Contains(msg, rewind.ManualProcessingContact) {
		t.Errorf("message %q does not name the manual-processing contact", msg)
	}

	// Rejection happens before any sandbox resource is allocated.
	entries, err := os.ReadDir(sandbox)
	if err != nil {
		t.Fatalf("reading sandbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("sandbox has %d entries after size rejection", len(entries))
	}
}

func TestTooLargeMessageRoundsUp(t *testing.T) {
	cases := []struct {
		maxBytes int64
		want     string
	}{
		{0, "100MB limit"}, // default ceiling
		{100 << 20, "100MB limit"},
		{50 << 20, "50MB limit"},
		{1024, "1MB limit"},
		{(1 << 20) + 1, "2MB limit"},
	}
	for _, tc := range cases {
		gen := rewind.NewGenerator(testPassphrase, t.TempDir(), tc.maxBytes)
		msg := gen.TooLargeMessage()
		if !strings.Contains(msg, "the "+tc.want) {
			t.Errorf("maxBytes %d: message %q does not contain %q",
				tc.maxBytes, msg, tc.want)
		}
	}
}

func TestGenerateInvalidYear(t *testing.T) {
	encrypted := makeEncryptedLibrary(t)
	gen := rewind.NewGenerator(testPassphrase, t.TempDir(), 0)

	for _, year := range []string{"", "20", "20245", "twenty"} {
		_, err := gen.Generate(context.Background(), encrypted, rewind.Request{Year: year})
		if code := apperr.CodeOf(err); code != apperr.CodeBadRequest {
			t.Errorf("year %q: code = %s, want %s", year, code, apperr.CodeBadRequest)
		}
	}

	_, err := gen.Generate(context.Background(), encrypted, rewind.Request{
		Year: "2024", ComparisonYear: "x",
	})
	if code := apperr.CodeOf(err); code != apperr.CodeBadRequest {
		t.Errorf("bad comparison year: code = %s, want %s", code, apperr.CodeBadRequest)
	}
}

func TestGenerateWrongPassphrase(t *testing.T) {
	encrypted := makeEncryptedLibrary(t)
	sandbox := t.TempDir()
	gen := rewind.NewGenerator("wrong passphrase", sandbox, 0)

	_, err := gen.Generate(context.Background(), encrypted, rewind.Request{Year: "2024"})
	if code := apperr.CodeOf(err); code != apperr.CodeDecryptFailed {
		t.Fatalf("code = %s, want %s", code, apperr.CodeDecryptFailed)
	}

	entries, err := os.ReadDir(sandbox)
	if err != nil {
		t.Fatalf("reading sandbox: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("sandbox has %d leftover entries after failed decrypt", len(entries))
	}
}

func TestGenerateNotALibrary(t *testing.T) {
	// A database that decrypts fine but lacks the expected schema.
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("opening fixture db: %v", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		fmt.Sprintf("PRAGMA key = '%s'", testPassphrase),
		"CREATE TABLE notes (ID INTEGER PRIMARY KEY, body TEXT)",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			t.Fatalf("building fixture: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("closing fixture db: %v", err)
	}
	encrypted, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading fixture: %v", err)
	}

	gen := rewind.NewGenerator(testPassphrase, t.TempDir(), 0)
	_, err = gen.Generate(context.Background(), encrypted, rewind.Request{Year: "2024"})
	if code := apperr.CodeOf(err); code != apperr.CodeInvalidDB {
		t.Errorf("code = %s, want %s", code, apperr.CodeInvalidDB)
	}
}
