package core

// checker.go runs the assembler over a whole dataset and aggregates the
// outcome into a single result code and verdict.
//
// Rows are independent, so they are assembled in parallel. Each goroutine
// writes only its own slot of the results slice; messages are then merged
// in row order, which keeps output stable regardless of scheduling.

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/JonMunkholm/sanitycheck/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ResultCode is a bit set summarizing a check run.
type ResultCode uint8

// ResultOK means records were produced without warnings or errors.
const ResultOK ResultCode = 0

const (
	ResultNoOutput ResultCode = 1 << iota
	ResultWarnings
	ResultErrors
	ResultInvalidInput
	ResultInternalError
)

var resultCodeNames = []struct {
	code ResultCode
	name string
}{
	{ResultNoOutput, "no_output"},
	{ResultWarnings, "warnings"},
	{ResultErrors, "errors"},
	{ResultInvalidInput, "invalid_input"},
	{ResultInternalError, "internal_error"},
}

// Has reports whether every bit in flag is set.
func (c ResultCode) Has(flag ResultCode) bool {
	return c&flag == flag
}

func (c ResultCode) String() string {
	if c == ResultOK {
		return "ok"
	}
	var parts []string
	for _, n := range resultCodeNames {
		if c.Has(n.code) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// MarshalText encodes the code as its names joined by "|".
func (c ResultCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Verdict is the dataset-level decision.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictReview Verdict = "review"
	VerdictReject Verdict = "reject"
)

// Verdict maps the result code to accept, review or reject.
func (c ResultCode) Verdict() Verdict {
	switch {
	case c&(ResultNoOutput|ResultErrors|ResultInvalidInput|ResultInternalError) != 0:
		return VerdictReject
	case c.Has(ResultWarnings):
		return VerdictReview
	default:
		return VerdictAccept
	}
}

// FlagCounts counts records by their worst flag.
type FlagCounts struct {
	Good         int `json:"good"`
	Questionable int `json:"questionable"`
	Bad          int `json:"bad"`
}

func (fc *FlagCounts) add(f Flag) {
	switch f {
	case FlagBad:
		fc.Bad++
	case FlagQuestionable:
		fc.Questionable++
	default:
		fc.Good++
	}
}

// Stats summarizes a check run.
type Stats struct {
	Rows            int        `json:"rows"`
	Records         int        `json:"records"`
	Warnings        int        `json:"warnings"`
	Errors          int        `json:"errors"`
	InternalErrors  int        `json:"internal_errors"`
	DroppedMessages int        `json:"dropped_messages"`
	Flags           FlagCounts `json:"flags"`
}

// Result is the outcome of checking one dataset.
type Result struct {
	RunID     uuid.UUID     `json:"run_id"`
	Code      ResultCode    `json:"code"`
	Verdict   Verdict       `json:"verdict"`
	Stats     Stats         `json:"stats"`
	Records   []*Record     `json:"records"`
	Messages  []Message     `json:"messages"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// CheckerOptions tunes a Checker.
type CheckerOptions struct {
	// Workers bounds parallel row assembly. Defaults to GOMAXPROCS.
	Workers int
	// FirstLine is the line number of the first data row. Defaults to 1.
	FirstLine int
	// MaxMessages caps the returned messages; 0 means unlimited. Counts in
	// Stats and the result code always cover every message.
	MaxMessages int
}

// Checker checks whole datasets with one Assembler.
type Checker struct {
	asm  *Assembler
	opts CheckerOptions
}

// NewChecker returns a Checker using asm.
func NewChecker(asm *Assembler, opts CheckerOptions) *Checker {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.FirstLine <= 0 {
		opts.FirstLine = 1
	}
	if opts.MaxMessages < 0 {
		opts.MaxMessages = 0
	}
	return &Checker{asm: asm, opts: opts}
}

// Assembler returns the checker's assembler.
func (c *Checker) Assembler() *Assembler {
	return c.asm
}

type rowResult struct {
	record   *Record
	messages []Message
	err      error
}

// CheckTable assembles every row of table and aggregates the outcome.
// Messages carry the physical line each row was read from; tables built
// without Lines are numbered from FirstLine. Contract faults in individual
// rows are reported as internal-category messages and do not stop the
// run; only context cancellation returns an error.
func (c *Checker) CheckTable(ctx context.Context, table *Table, md Metadata) (*Result, error) {
	rows, lines := table.Rows, table.Lines
	if len(lines) != len(rows) {
		lines = nil
	}

	start := time.Now()
	res := &Result{RunID: uuid.New(), StartedAt: start.UTC()}
	logger := logging.WithFields(ctx, "run_id", res.RunID.String())
	logger.Info("check started", "rows", len(rows), "workers", c.opts.Workers)

	results := make([]rowResult, len(rows))
	if len(rows) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(min(c.opts.Workers, len(rows)))

		for i, row := range rows {
			g.Go(func() error {
				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}
				line := c.opts.FirstLine + i
				if lines != nil {
					line = lines[i]
				}
				rec, msgs, err := c.asm.Assemble(line, row, md)
				// Each goroutine owns results[i].
				results[i] = rowResult{record: rec, messages: msgs, err: err}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("check cancelled: %w", err)
		}
	}

	c.aggregate(res, results)
	res.Duration = time.Since(start)

	for _, rr := range results {
		if rr.err != nil {
			logger.Error("row aborted", "error", rr.err)
		}
	}
	logger.Info("check finished",
		"records", res.Stats.Records,
		"warnings", res.Stats.Warnings,
		"errors", res.Stats.Errors,
		"internal_errors", res.Stats.InternalErrors,
		"verdict", res.Verdict,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// InvalidInputResult builds the result reported when a dataset cannot be read.
func InvalidInputResult(err error) *Result {
	res := &Result{
		RunID:     uuid.New(),
		Code:      ResultInvalidInput | ResultNoOutput,
		StartedAt: time.Now().UTC(),
		Messages: []Message{{
			Severity: SeverityError,
			Category: CategoryData,
			Code:     CodeInvalidInput,
			Text:     err.Error(),
		}},
	}
	res.Stats.Errors = 1
	res.Verdict = res.Code.Verdict()
	return res
}

func (c *Checker) aggregate(res *Result, results []rowResult) {
	res.Stats.Rows = len(results)

	for _, rr := range results {
		if rr.err != nil {
			line := 0
			var ce *ContractError
			if errors.As(rr.err, &ce) {
				line = ce.Line
			}
			res.Messages = append(res.Messages, internalMessage(line, rr.err))
			res.Stats.InternalErrors++
			res.Code |= ResultInternalError
			continue
		}

		res.Records = append(res.Records, rr.record)
		res.Stats.Flags.add(rr.record.WorstFlag())
		for _, m := range rr.messages {
			if m.IsError() {
				res.Stats.Errors++
				res.Code |= ResultErrors
			} else {
				res.Stats.Warnings++
				res.Code |= ResultWarnings
			}
		}
		res.Messages = append(res.Messages, rr.messages...)
	}

	res.Stats.Records = len(res.Records)
	if res.Stats.Records == 0 {
		res.Code |= ResultNoOutput
	}

	if limit := c.opts.MaxMessages; limit > 0 && len(res.Messages) > limit {
		res.Stats.DroppedMessages = len(res.Messages) - limit
		res.Messages = res.Messages[:limit]
	}

	res.Verdict = res.Code.Verdict()
}
