package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jfigueras/rewindbox/internal/apperr"
)

// Placeholder names Rekordbox assigns to unresolved references. The
// exclusion policy is a literal string match against these values, not
// a semantic flag in the schema.
const (
	unknownArtistName = "Unknown Artist"
	unknownGenreName  = "Unknown Genre"
)

// topN caps every ranked list.
const topN = 10

// Aggregator runs the read-only aggregation set against an open
// session. Queries are sequenced, never concurrent: the underlying
// handle holds a single keyed connection.
//
// Year filtering is a string-prefix match on the stored creation-date
// text ("YYYY%"). Rows whose date text does not start with a 4-digit
// year silently drop out of every aggregate.
type Aggregator struct {
	db *sql.DB
}

// NewAggregator wraps an open database handle.
func NewAggregator(db *sql.DB) *Aggregator {
	return &Aggregator{db: db}
}

// YearStats runs the full aggregation set for one year. Each query is
// independently re-runnable; the source is read-only for the request,
// so repeated runs yield identical output.
func (a *Aggregator) YearStats(ctx context.Context, f Filter) (YearStats, error) {
	var s YearStats

	if err := a.totals(ctx, f.Year, &s); err != nil {
		return YearStats{}, err
	}
	if err := a.libraryGrowth(ctx, f.Year, &s); err != nil {
		return YearStats{}, err
	}

	var err error
	if s.TopTracks, err = a.topTracks(ctx, f); err != nil {
		return YearStats{}, err
	}
	if s.TopArtists, err = a.topArtists(ctx, f); err != nil {
		return YearStats{}, err
	}
	if s.TopGenres, err = a.topGenres(ctx, f); err != nil {
		return YearStats{}, err
	}
	if s.TopBPMs, err = a.topBPMs(ctx, f.Year); err != nil {
		return YearStats{}, err
	}
	if s.LongestSession, err = a.longestSession(ctx, f.Year); err != nil {
		return YearStats{}, err
	}
	if s.BusiestMonth, err = a.busiestMonth(ctx, f.Year); err != nil {
		return YearStats{}, err
	}
	return s, nil
}

// totals fills the raw counts. The exclusion filters never apply here.
func (a *Aggregator) totals(ctx context.Context, year string, s *YearStats) error {
	const query = `
		SELECT
			(SELECT COUNT(*)
			   FROM djmdSongHistory sh
			   JOIN djmdHistory h ON h.ID = sh.HistoryID
			  WHERE h.created_at LIKE ?1),
			(SELECT COALESCE(SUM(c.Length), 0)
			   FROM djmdSongHistory sh
			   JOIN djmdHistory h ON h.ID = sh.HistoryID
			   JOIN djmdContent c ON c.ID = sh.ContentID
			  WHERE h.created_at LIKE ?1),
			(SELECT COUNT(*) FROM djmdHistory WHERE created_at LIKE ?1)`

	err := a.db.QueryRowContext(ctx, query, year+"%").Scan(
		&s.TotalTracks,
		&s.TotalPlaytimeSeconds,
		&s.TotalSessions,
	)
	if err != nil {
		return classify(err, "querying totals")
	}
	return nil
}

// libraryGrowth fills the library-size figures: every track created
// strictly before January 1 of the following year, and tracks created
// within the target year.
func (a *Aggregator) libraryGrowth(ctx context.Context, year string, s *YearStats) error {
	next, err := nextYear(year)
	if err != nil {
		return err
	}

	const query = `
		SELECT
			(SELECT COUNT(*) FROM djmdContent WHERE created_at < ?1),
			(SELECT COUNT(*) FROM djmdContent WHERE created_at LIKE ?2)`

	err = a.db.QueryRowContext(ctx, query, next, year+"%").Scan(
		&s.LibraryGrowth.Total,
		&s.LibraryGrowth.Added,
	)
	if err != nil {
		return classify(err, "querying library growth")
	}
	return nil
}

func (a *Aggregator) topTracks(ctx context.Context, f Filter) ([]TrackRank, error) {
	query := `
		SELECT c.Title, COALESCE(a.Name, '') AS Artist, COUNT(*) AS cnt
		FROM djmdSongHistory sh
		JOIN djmdHistory h ON h.ID = sh.HistoryID
		JOIN djmdContent c ON c.ID = sh.ContentID
		LEFT JOIN djmdArtist a ON a.ID = c.ArtistID
		WHERE h.created_at LIKE ?
		  AND c.Title IS NOT NULL AND c.Title != ''` +
		excludeClause("a.Name", unknownArtistName, f.IncludeUnknownArtist) + `
		GROUP BY c.ID, c.Title, a.Name
		ORDER BY cnt DESC, c.Title ASC
		LIMIT ` + strconv.Itoa(topN)

	rows, err := a.db.QueryContext(ctx, query, f.Year+"%")
	if err != nil {
		return nil, classify(err, "querying top tracks")
	}
	defer rows.Close()

	results := []TrackRank{}
	for rows.Next() {
		var r TrackRank
		if err := rows.Scan(&r.Title, &r.Artist, &r.Count); err != nil {
			return nil, classify(err, "scanning top track")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterating top tracks")
	}
	return results, nil
}

func (a *Aggregator) topArtists(ctx context.Context, f Filter) ([]NameRank, error) {
	query := `
		SELECT COALESCE(a.Name, '') AS Name, COUNT(*) AS cnt
		FROM djmdSongHistory sh
		JOIN djmdHistory h ON h.ID = sh.HistoryID
		JOIN djmdContent c ON c.ID = sh.ContentID
		LEFT JOIN djmdArtist a ON a.ID = c.ArtistID
		WHERE h.created_at LIKE ?` +
		excludeClause("a.Name", unknownArtistName, f.IncludeUnknownArtist) + `
		GROUP BY c.ArtistID, a.Name
		ORDER BY cnt DESC, Name ASC
		LIMIT ` + strconv.Itoa(topN)

	return a.queryNameRanks(ctx, query, f.Year+"%", "top artists")
}

func (a *Aggregator) topGenres(ctx context.Context, f Filter) ([]NameRank, error) {
	query := `
		SELECT COALESCE(g.Name, '') AS Name, COUNT(*) AS cnt
		FROM djmdSongHistory sh
		JOIN djmdHistory h ON h.ID = sh.HistoryID
		JOIN djmdContent c ON c.ID = sh.ContentID
		LEFT JOIN djmdGenre g ON g.ID = c.GenreID
		WHERE h.created_at LIKE ?` +
		excludeClause("g.Name", unknownGenreName, f.IncludeUnknownGenre) + `
		GROUP BY c.GenreID, g.Name
		ORDER BY cnt DESC, Name ASC
		LIMIT ` + strconv.Itoa(topN)

	return a.queryNameRanks(ctx, query, f.Year+"%", "top genres")
}

// queryNameRanks executes a name-ranking query and returns a non-nil
// slice.
func (a *Aggregator) queryNameRanks(
	ctx context.Context, query, yearArg, what string,
) ([]NameRank, error) {
	rows, err := a.db.QueryContext(ctx, query, yearArg)
	if err != nil {
		return nil, classify(err, "querying "+what)
	}
	defer rows.Close()

	results := []NameRank{}
	for rows.Next() {
		var r NameRank
		if err := rows.Scan(&r.Name, &r.Count); err != nil {
			return nil, classify(err, "scanning "+what)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterating "+what)
	}
	return results, nil
}

// topBPMs ranks play events by tempo. BPM 0 or NULL means the track
// was never analyzed and is excluded unconditionally; the stored value
// is tempo times 100.
func (a *Aggregator) topBPMs(ctx context.Context, year string) ([]BPMRank, error) {
	query := `
		SELECT CAST(c.BPM AS REAL) / 100.0 AS bpm, COUNT(*) AS cnt
		FROM djmdSongHistory sh
		JOIN djmdHistory h ON h.ID = sh.HistoryID
		JOIN djmdContent c ON c.ID = sh.ContentID
		WHERE h.created_at LIKE ?
		  AND c.BPM IS NOT NULL AND c.BPM != 0
		GROUP BY c.BPM
		ORDER BY cnt DESC, bpm ASC
		LIMIT ` + strconv.Itoa(topN)

	rows, err := a.db.QueryContext(ctx, query, year+"%")
	if err != nil {
		return nil, classify(err, "querying top BPMs")
	}
	defer rows.Close()

	results := []BPMRank{}
	for rows.Next() {
		var r BPMRank
		if err := rows.Scan(&r.BPM, &r.Count); err != nil {
			return nil, classify(err, "scanning top BPM")
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "iterating top BPMs")
	}
	return results, nil
}

// longestSession finds the session with the most play events, then
// sums the durations of the tracks played in that specific session
// with a second lookup keyed by the winning session's ID.
func (a *Aggregator) longestSession(ctx context.Context, year string) (LongestSession, error) {
	const query = `
		SELECT h.ID, substr(h.created_at, 1, 10) AS day, COUNT(*) AS cnt
		FROM djmdHistory h
		JOIN djmdSongHistory sh ON sh.HistoryID = h.ID
		WHERE h.created_at LIKE ?
		GROUP BY h.ID, day
		ORDER BY cnt DESC, day ASC
		LIMIT 1`

	var (
		sessionID string
		ls        LongestSession
	)
	err := a.db.QueryRowContext(ctx, query, year+"%").Scan(
		&sessionID, &ls.Date, &ls.Count,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return LongestSession{}, nil
	}
	if err != nil {
		return LongestSession{}, classify(err, "querying longest session")
	}

	const durationQuery = `
		SELECT COALESCE(SUM(c.Length), 0)
		FROM djmdSongHistory sh
		JOIN djmdContent c ON c.ID = sh.ContentID
		WHERE sh.HistoryID = ?`

	var duration int64
	if err := a.db.QueryRowContext(ctx, durationQuery, sessionID).Scan(&duration); err != nil {
		return LongestSession{}, classify(err, "querying longest session duration")
	}
	ls.DurationSeconds = &duration
	return ls, nil
}

// busiestMonth buckets the year's play events by the first 7 characters
// of the session date ("YYYY-MM") and keeps the top bucket.
func (a *Aggregator) busiestMonth(ctx context.Context, year string) (BusiestMonth, error) {
	const query = `
		SELECT substr(h.created_at, 1, 7) AS month, COUNT(*) AS cnt
		FROM djmdHistory h
		JOIN djmdSongHistory sh ON sh.HistoryID = h.ID
		WHERE h.created_at LIKE ?
		GROUP BY month
		ORDER BY cnt DESC, month ASC
		LIMIT 1`

	var bm BusiestMonth
	err := a.db.QueryRowContext(ctx, query, year+"%").Scan(&bm.Month, &bm.Count)
	if errors.Is(err, sql.ErrNoRows) {
		return BusiestMonth{}, nil
	}
	if err != nil {
		return BusiestMonth{}, classify(err, "querying busiest month")
	}
	return bm, nil
}

// excludeClause appends the placeholder exclusion predicate unless the
// corresponding include flag disables it.
func excludeClause(field, placeholder string, include bool) string {
	if include {
		return ""
	}
	return fmt.Sprintf(
		"\n\t\t  AND %[1]s IS NOT NULL AND %[1]s != '' AND %[1]s != '%[2]s'",
		field, placeholder,
	)
}

// nextYear returns the 4-digit year following the given one, used as
// the exclusive upper bound of the library-growth total.
func nextYear(year string) (string, error) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeBadRequest,
			"year must be a 4-digit number", err)
	}
	return strconv.Itoa(y + 1), nil
}

// classify wraps a query failure with the taxonomy code the boundary
// surfaces: a missing table or column means the file decrypted but is
// not a Rekordbox library.
func classify(err error, context string) error {
	msg := err.Error()
	if strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "file is not a database") {
		return apperr.Wrap(apperr.CodeInvalidDB,
			"database does not look like a Rekordbox library",
			fmt.Errorf("%s: %w", context, err))
	}
	return apperr.Wrap(apperr.CodeQueryFailed,
		"aggregation query failed",
		fmt.Errorf("%s: %w", context, err))
}
