// Package rewind orchestrates one decrypt-and-query cycle: size check,
// session open, aggregation for the target year and optional comparison
// year, diff computation and assembly. The session is torn down on
// every exit path; no partial results are ever returned.
package rewind

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jfigueras/rewindbox/internal/apperr"
	"github.com/jfigueras/rewindbox/internal/library"
	"github.com/jfigueras/rewindbox/internal/stats"
)

// ManualProcessingContact is referenced in the oversized-upload message
// so users with very large libraries have a fallback path.
const ManualProcessingContact = "stats@rewindbox.app"

var yearRE = regexp.MustCompile(`^\d{4}$`)

// Request describes one statistics request.
type Request struct {
	Year                 string
	ComparisonYear       string
	IncludeUnknownArtist bool
	IncludeUnknownGenre  bool
}

// Validate checks the year fields.
func (r Request) Validate() error {
	if !yearRE.MatchString(r.Year) {
		return apperr.New(apperr.CodeBadRequest,
			"year must be a 4-digit number")
	}
	if r.ComparisonYear != "" && !yearRE.MatchString(r.ComparisonYear) {
		return apperr.New(apperr.CodeBadRequest,
			"comparisonYear must be a 4-digit number")
	}
	return nil
}

// Generator holds the injected decryption secret and sandbox policy.
// One Generator serves many requests; each request gets its own
// session, sandbox file and engine instance.
type Generator struct {
	passphrase string
	sandboxDir string
	maxBytes   int64
}

// NewGenerator builds a Generator. A maxBytes of 0 falls back to the
// default 100 MB ceiling.
func NewGenerator(passphrase, sandboxDir string, maxBytes int64) *Generator {
	if maxBytes <= 0 {
		maxBytes = library.DefaultMaxBytes
	}
	return &Generator{
		passphrase: passphrase,
		sandboxDir: sandboxDir,
		maxBytes:   maxBytes,
	}
}

// MaxBytes returns the configured upload ceiling.
func (g *Generator) MaxBytes() int64 {
	return g.maxBytes
}

// TooLargeMessage is the user-facing rejection for oversized uploads.
// The ceiling rounds up to whole megabytes so a sub-MiB configuration
// never reports a 0 MB limit.
func (g *Generator) TooLargeMessage() string {
	mb := (g.maxBytes + (1<<20 - 1)) >> 20
	return fmt.Sprintf(
		"file exceeds the %dMB limit; email %s to have your library processed manually",
		mb, ManualProcessingContact,
	)
}

// Generate runs the full cycle. The encrypted input must already be
// transport-decompressed. The ceiling is enforced before any sandbox
// resource is allocated.
func (g *Generator) Generate(
	ctx context.Context, encrypted []byte, req Request,
) (resp stats.StatsResponse, err error) {
	if len(encrypted) == 0 {
		return resp, apperr.New(apperr.CodeNoFile, "no database file provided")
	}
	if int64(len(encrypted)) > g.maxBytes {
		return resp, apperr.New(apperr.CodeFileTooLarge, g.TooLargeMessage())
	}
	if err := req.Validate(); err != nil {
		return resp, err
	}

	sess, err := library.Open(ctx, encrypted, library.Options{
		Passphrase: g.passphrase,
		SandboxDir: g.sandboxDir,
	})
	if err != nil {
		return resp, err
	}
	defer func() {
		// Teardown runs regardless of outcome. A failed close is a
		// sandbox leak and outranks a successful result.
		if cerr := sess.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing session: %w", cerr)
		}
	}()

	agg := stats.NewAggregator(sess.DB())

	current, err := agg.YearStats(ctx, stats.Filter{
		Year:                 req.Year,
		IncludeUnknownArtist: req.IncludeUnknownArtist,
		IncludeUnknownGenre:  req.IncludeUnknownGenre,
	})
	if err != nil {
		return resp, err
	}

	var comparison *stats.Comparison
	if req.ComparisonYear != "" {
		previous, err := agg.YearStats(ctx, stats.Filter{
			Year:                 req.ComparisonYear,
			IncludeUnknownArtist: req.IncludeUnknownArtist,
			IncludeUnknownGenre:  req.IncludeUnknownGenre,
		})
		if err != nil {
			return resp, err
		}
		comparison = &stats.Comparison{
			Year:  req.ComparisonYear,
			Stats: previous,
			Diffs: stats.ComputeDiffs(current, previous),
		}
	}

	return stats.Assemble(req.Year, current, comparison), nil
}
