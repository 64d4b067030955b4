package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/olekukonko/tablewriter"
)

// Table renders each committed batch as its own table, so a batch is on the
// writer before the run can save its watermark.
type Table struct {
	mu       sync.Mutex
	w        io.Writer
	rendered int
}

func NewTable(w io.Writer) *Table {
	return &Table{w: w}
}

func (s *Table) Commit(_ context.Context, batch []listing.Record) error {
	if len(batch) == 0 {
		return nil
	}
	entries := make(types.EntryList, 0, len(batch))
	for i := range batch {
		e := batch[i].Entry
		entries = append(entries, &e)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rendered > 0 {
		if _, err := fmt.Fprintln(s.w); err != nil {
			return err
		}
	}
	if err := RenderTable(s.w, entries); err != nil {
		return err
	}
	s.rendered += len(entries)
	return nil
}

// Close prints the empty message when no batch was committed.
func (s *Table) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rendered > 0 {
		return nil
	}
	return RenderTable(s.w, types.EntryList{})
}

// RenderTable writes renderer as a borderless, left-aligned table.
func RenderTable(w io.Writer, renderer types.TableRenderer) error {
	rows := renderer.Rows()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, renderer.EmptyMessage())
		return err
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader(renderer.Headers())
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, row := range rows {
		table.Append(row)
	}

	table.Render()
	return nil
}
