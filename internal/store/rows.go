package store

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/sanitycheck/internal/core"
)

// runRow builds the insertRunSQL arguments.
func runRow(res *core.Result, info RunInfo) ([]any, error) {
	md := info.Metadata
	if md == nil {
		md = core.Metadata{}
	}
	mdJSON, err := sonic.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	st := res.Stats
	counts := []int{
		st.Rows, st.Records, st.Warnings, st.Errors, st.InternalErrors, st.DroppedMessages,
		st.Flags.Good, st.Flags.Questionable, st.Flags.Bad,
	}
	ints := make([]any, len(counts))
	for i, n := range counts {
		v, err := toPgInt4(n)
		if err != nil {
			return nil, err
		}
		ints[i] = v
	}

	origin := info.Origin
	if origin == "" {
		origin = "cli"
	}

	row := []any{
		toPgUUID(res.RunID),
		info.Dataset,
		origin,
		pgtype.Timestamptz{Time: res.StartedAt, Valid: true},
		res.Duration.Milliseconds(),
		res.Code.String(),
		string(res.Verdict),
	}
	row = append(row, ints...)
	return append(row, mdJSON), nil
}

// recordRows builds one sanity_records row per cell. Empty cells store NULL.
func recordRows(res *core.Result) ([][]any, error) {
	id := toPgUUID(res.RunID)
	var rows [][]any
	for _, rec := range res.Records {
		line, err := toPgInt4(rec.Line())
		if err != nil {
			return nil, err
		}
		for _, c := range rec.Cells() {
			rows = append(rows, []any{id, line, c.Name, toPgText(c.Value, !c.Empty), c.Flag.Letter()})
		}
	}
	return rows, nil
}

// messageRows builds one sanity_messages row per kept message, numbered in
// result order.
func messageRows(res *core.Result) ([][]any, error) {
	id := toPgUUID(res.RunID)
	rows := make([][]any, 0, len(res.Messages))
	for i, m := range res.Messages {
		seq, err := toPgInt4(i + 1)
		if err != nil {
			return nil, err
		}
		line, err := toPgInt4(m.Line)
		if err != nil {
			return nil, err
		}
		columns := m.Columns
		if columns == nil {
			columns = []string{}
		}
		rows = append(rows, []any{
			id, seq, line, m.Severity.String(), m.Category.String(), m.Code, columns, m.Text,
		})
	}
	return rows, nil
}

func toPgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

func toPgText(s string, valid bool) pgtype.Text {
	if !valid {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i int) (pgtype.Int4, error) {
	v, err := safecast.Conv[int32](i)
	if err != nil {
		return pgtype.Int4{}, fmt.Errorf("value %d does not fit a database integer: %w", i, err)
	}
	return pgtype.Int4{Int32: v, Valid: true}, nil
}
