package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/sanitycheck/internal/colconfig"
	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/logging"
	"github.com/JonMunkholm/sanitycheck/internal/service"
)

const (
	// multipartMemory is how much of a check request is kept in memory;
	// larger parts spill to temporary files.
	multipartMemory = 8 << 20

	// formOverhead allows for the layout, metadata and multipart framing on
	// top of the dataset size limit.
	formOverhead = 1 << 20
)

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

type healthResponse struct {
	Status  string              `json:"status"`
	Storage bool                `json:"storage"`
	Columns int                 `json:"columns"`
	Checks  *core.LimiterStatus `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Storage: s.service.StorageEnabled(),
		Columns: s.service.Registry().Len(),
	}
	if l := s.service.Limiter(); l != nil {
		st := l.Status()
		resp.Checks = &st
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// ----------------------------------------------------------------------------
// Column configuration
// ----------------------------------------------------------------------------

// handleColumns returns the column configuration as JSON, or as a
// loadable yaml or toml file with ?format=.
func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	file := colconfig.FromRegistry(s.service.Registry())

	name := r.URL.Query().Get("format")
	if name == "" || strings.EqualFold(name, "json") {
		writeJSON(w, r, http.StatusOK, file)
		return
	}

	format, err := colconfig.ParseFormat(name)
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	var buf bytes.Buffer
	if err := colconfig.Encode(&buf, format, file); err != nil {
		respondError(w, r, fmt.Errorf("encode columns: %w", err))
		return
	}
	w.Header().Set("Content-Type", "application/"+format.String())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleConversions(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0)
	for name := range core.DefaultConversions() {
		names = append(names, name)
	}
	slices.Sort(names)
	writeJSON(w, r, http.StatusOK, map[string][]string{"conversions": names})
}

func (s *Server) handleCodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string][]core.UserMessage{"codes": core.MessageCodes()})
}

// ----------------------------------------------------------------------------
// Checks
// ----------------------------------------------------------------------------

type checkResponse struct {
	Dataset      string       `json:"dataset"`
	Stored       bool         `json:"stored"`
	StorageError string       `json:"storage_error,omitempty"`
	Result       *core.Result `json:"result"`
}

// handleCheck checks one uploaded dataset.
//
// Multipart fields:
//   - data: the CSV file (required)
//   - input: the input layout, as a file or a text value (required)
//   - metadata: dataset metadata as yaml, toml or key=value lines (optional)
//   - input_format, metadata_format: yaml or toml, when the part's file
//     name does not tell
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.limits.MaxFileSize+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, tooBig.Limit))
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	data, header, err := r.FormFile("data")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			respondError(w, r, service.ErrNoData)
			return
		}
		respondError(w, r, fmt.Errorf("%w: %v", errInvalidRequest, err))
		return
	}
	defer data.Close()

	in, err := parseInputPart(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	md, err := parseMetadataPart(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	ctx := logging.WithDataset(r.Context(), header.Filename)
	logging.FromContext(ctx).Info("check requested", "size", header.Size)

	res, err := s.service.Check(ctx, service.CheckRequest{
		Dataset:  header.Filename,
		Origin:   "api",
		Data:     data,
		Input:    in,
		Metadata: md,
	})
	if err != nil && res == nil {
		respondError(w, r.WithContext(ctx), err)
		return
	}

	resp := checkResponse{
		Dataset: header.Filename,
		Stored:  s.service.StorageEnabled() && err == nil,
		Result:  res,
	}
	if err != nil {
		resp.StorageError = core.MapError(err).Code
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func parseInputPart(r *http.Request) (*colconfig.Input, error) {
	raw, filename, err := formPart(r, "input")
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, service.ErrNoInputLayout
	}
	format, err := partFormat(r, "input_format", filename)
	if err != nil {
		return nil, err
	}
	return colconfig.ParseInput(raw, format)
}

func parseMetadataPart(r *http.Request) (core.Metadata, error) {
	raw, filename, err := formPart(r, "metadata")
	if err != nil || raw == nil {
		return nil, err
	}
	format, err := partFormat(r, "metadata_format", filename)
	if err != nil {
		return nil, err
	}
	md, err := colconfig.ParseMetadata(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return md, nil
}

// formPart returns a field sent either as a file or as a plain value, with
// the file name when there is one. A missing field returns nil data.
func formPart(r *http.Request, field string) ([]byte, string, error) {
	f, h, err := r.FormFile(field)
	switch {
	case err == nil:
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, "", fmt.Errorf("%w: read %s: %v", errInvalidRequest, field, err)
		}
		return raw, h.Filename, nil
	case !errors.Is(err, http.ErrMissingFile):
		return nil, "", fmt.Errorf("%w: %s: %v", errInvalidRequest, field, err)
	}

	if v := r.FormValue(field); strings.TrimSpace(v) != "" {
		return []byte(v), "", nil
	}
	return nil, "", nil
}

// partFormat prefers an explicit format field over the file extension.
func partFormat(r *http.Request, field, filename string) (colconfig.Format, error) {
	if name := r.FormValue(field); name != "" {
		format, err := colconfig.ParseFormat(name)
		if err != nil {
			return format, fmt.Errorf("%w: %s: %v", errInvalidRequest, field, err)
		}
		return format, nil
	}
	return colconfig.DetectFormat(filename), nil
}

// ----------------------------------------------------------------------------
// Stored runs
// ----------------------------------------------------------------------------

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		respondError(w, r, err)
		return
	}
	runs, err := s.service.ListRuns(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, r, fmt.Errorf("%w: run ID: %v", errInvalidRequest, err))
		return
	}
	limit, err := intParam(r, "messages")
	if err != nil {
		respondError(w, r, err)
		return
	}
	run, err := s.service.GetRun(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

// intParam reads an optional non-negative query parameter; absent is 0.
func intParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", errInvalidRequest, name)
	}
	return n, nil
}
