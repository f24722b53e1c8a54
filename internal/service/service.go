// Package service runs dataset checks on behalf of the CLI and the HTTP
// API. It owns the column registry, the concurrency limiter and the optional
// result store, so both front ends check datasets the same way.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/sanitycheck/internal/colconfig"
	"github.com/JonMunkholm/sanitycheck/internal/config"
	"github.com/JonMunkholm/sanitycheck/internal/core"
	"github.com/JonMunkholm/sanitycheck/internal/logging"
	"github.com/JonMunkholm/sanitycheck/internal/store"
)

var (
	// ErrNoInputLayout is returned when a check request carries no input layout.
	ErrNoInputLayout = errors.New("invalid request: no input layout provided")

	// ErrNoData is returned when a check request carries no dataset.
	ErrNoData = errors.New("no file provided")
)

// ResultStore persists check results. *store.Store implements it.
type ResultStore interface {
	SaveResult(ctx context.Context, res *core.Result, info store.RunInfo) error
	GetRun(ctx context.Context, id uuid.UUID, messageLimit int) (*store.Run, error)
	ListRuns(ctx context.Context, limit int) ([]*store.Run, error)
}

// Options tunes how checks run.
type Options struct {
	DateFormat  *core.DateFormat // Used when an input layout declares no format
	Workers     int
	MaxMessages int
	MaxFileSize int64         // 0 means unlimited
	Timeout     time.Duration // 0 means no timeout
}

// OptionsFromConfig builds Options from the checker settings.
func OptionsFromConfig(cfg config.CheckerConfig) (Options, error) {
	format, err := core.NewDateFormat(cfg.DateFormat)
	if err != nil {
		return Options{}, fmt.Errorf("SANITY_DATE_FORMAT: %w", err)
	}
	return Options{
		DateFormat:  format,
		Workers:     cfg.Workers,
		MaxMessages: cfg.MaxMessages,
		MaxFileSize: cfg.MaxFileSize,
		Timeout:     cfg.Timeout,
	}, nil
}

// Service checks datasets against one column registry.
type Service struct {
	registry *core.Registry
	limiter  *core.CheckLimiter
	store    ResultStore
	opts     Options
}

// New returns a Service. A nil limiter allows unbounded concurrent checks;
// a nil store disables result persistence.
func New(reg *core.Registry, limiter *core.CheckLimiter, st ResultStore, opts Options) *Service {
	return &Service{registry: reg, limiter: limiter, store: st, opts: opts}
}

// Registry returns the column registry checks run against.
func (s *Service) Registry() *core.Registry {
	return s.registry
}

// Limiter returns the check limiter, or nil.
func (s *Service) Limiter() *core.CheckLimiter {
	return s.limiter
}

// StorageEnabled reports whether results are persisted.
func (s *Service) StorageEnabled() bool {
	return s.store != nil
}

// CheckRequest is one dataset to check.
type CheckRequest struct {
	Dataset  string // Display name, usually the file name
	Origin   string // "cli" or "api"
	Data     io.Reader
	Input    *colconfig.Input
	Metadata core.Metadata
}

// Check reads and checks one dataset, then stores the result when storage
// is enabled. Unreadable data yields an invalid-input result, not an error.
//
// When storing fails the result is still returned together with the error.
func (s *Service) Check(ctx context.Context, req CheckRequest) (*core.Result, error) {
	if req.Input == nil {
		return nil, ErrNoInputLayout
	}
	if req.Data == nil {
		return nil, ErrNoData
	}

	ctx = logging.WithDataset(ctx, req.Dataset)
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	var res *core.Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.run(ctx, req)
		return err
	}

	var err error
	if s.limiter != nil {
		err = s.limiter.Do(ctx, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		info := store.RunInfo{Dataset: req.Dataset, Origin: req.Origin, Metadata: req.Metadata}
		if err := s.store.SaveResult(ctx, res, info); err != nil {
			logging.WithFields(ctx, "run_id", res.RunID.String()).Error("store result", "error", err)
			return res, fmt.Errorf("save result: %w", err)
		}
	}
	return res, nil
}

func (s *Service) run(ctx context.Context, req CheckRequest) (*core.Result, error) {
	in := *req.Input
	in.DefaultDateFormat(s.opts.DateFormat)

	read := in.Read
	read.MaxBytes = s.opts.MaxFileSize

	table, err := core.ReadRows(req.Data, read)
	if err != nil {
		if errors.Is(err, core.ErrFileTooLarge) {
			return nil, err
		}
		logging.FromContext(ctx).Warn("dataset unreadable", "error", err)
		return core.InvalidInputResult(err), nil
	}

	asm, err := core.NewAssembler(s.registry, in.Spec(s.registry, table.HeaderIndex))
	if err != nil {
		return nil, err
	}

	checker := core.NewChecker(asm, core.CheckerOptions{
		Workers:     s.opts.Workers,
		MaxMessages: s.opts.MaxMessages,
	})
	return checker.CheckTable(ctx, table, req.Metadata)
}

// GetRun returns a stored run.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID, messageLimit int) (*store.Run, error) {
	if s.store == nil {
		return nil, store.ErrStorageDisabled
	}
	return s.store.GetRun(ctx, id, messageLimit)
}

// ListRuns returns the most recent stored runs.
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*store.Run, error) {
	if s.store == nil {
		return nil, store.ErrStorageDisabled
	}
	return s.store.ListRuns(ctx, limit)
}
