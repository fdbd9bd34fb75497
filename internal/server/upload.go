package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/jfigueras/rewindbox/internal/apperr"
	"github.com/jfigueras/rewindbox/internal/metrics"
	"github.com/jfigueras/rewindbox/internal/rewind"
)

// multipart framing overhead allowed on top of the payload ceiling
const multipartOverhead = 1 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// handleStats accepts a multipart upload of an encrypted library
// database plus form fields selecting the year, and responds with the
// aggregated stats document.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	resp, err := s.processStats(r)
	if err != nil {
		code := apperr.CodeOf(err)
		s.log.Error().Err(err).Str("code", string(code)).Msg("stats request failed")
		metrics.RequestsTotal.WithLabelValues(string(code)).Inc()
		writeAppError(w, err)
		return
	}

	metrics.RequestsTotal.WithLabelValues("OK").Inc()
	metrics.RequestDuration.Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) processStats(r *http.Request) (any, error) {
	maxBytes := s.gen.MaxBytes()
	r.Body = http.MaxBytesReader(nil, r.Body, maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		if isTooLarge(err) {
			return nil, apperr.New(apperr.CodeFileTooLarge, s.gen.TooLargeMessage())
		}
		return nil, apperr.Wrap(apperr.CodeNoFile, "no database file provided", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNoFile, "no database file provided", err)
	}
	defer file.Close()

	encrypted, err := readPayload(file, header.Filename, r.Header.Get("Content-Encoding"), maxBytes)
	if err != nil {
		if isTooLarge(err) {
			return nil, apperr.New(apperr.CodeFileTooLarge, s.gen.TooLargeMessage())
		}
		return nil, err
	}
	metrics.UploadBytes.Add(float64(len(encrypted)))

	req := rewind.Request{
		Year:                 r.FormValue("year"),
		ComparisonYear:       r.FormValue("comparisonYear"),
		IncludeUnknownArtist: r.FormValue("includeUnknownArtist") == "true",
		IncludeUnknownGenre:  r.FormValue("includeUnknownGenre") == "true",
	}
	return s.gen.Generate(r.Context(), encrypted, req)
}

// readPayload reads the uploaded file, transparently decompressing
// gzip payloads. The decompressed size is bounded by maxBytes; the
// generator rejects anything over the ceiling.
func readPayload(file io.Reader, filename, contentEncoding string, maxBytes int64) ([]byte, error) {
	head := make([]byte, 2)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, apperr.Wrap(apperr.CodeUnknown, "reading upload", err)
	}
	body := io.MultiReader(bytes.NewReader(head[:n]), file)

	gzipped := bytes.Equal(head[:n], gzipMagic) ||
		strings.HasSuffix(filename, ".gz") ||
		contentEncoding == "gzip"
	if !gzipped {
		return io.ReadAll(body)
	}

	zr, err := gzip.NewReader(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecompression, "invalid gzip payload", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxBytes+1))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecompression, "decompressing upload", err)
	}
	return data, nil
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
