package load

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/ALT-F4-LLC/ferry/internal/jira"
)

// csvTimeLayout is the date format the JIRA CSV importer expects.
const csvTimeLayout = "2006-01-02 15:04:05"

// WriteCreationDates writes the creation dates CSV to CSVPath. JIRA cannot
// set an issue's creation date over REST; the file is imported by hand.
func (l *Loader) WriteCreationDates(ctx context.Context) error {
	path := l.CSVPath
	if path == "" {
		path = DefaultCSVPath
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := l.WriteCreationDatesTo(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}

	l.out().Info("wrote %s", path)
	return nil
}

// WriteCreationDatesTo writes one "key,created,summary" row per issue in key
// order. Timestamps keep the offset the source reported; a blank summary is
// written as "Empty".
func (l *Loader) WriteCreationDatesTo(w io.Writer) error {
	issues, err := l.sourceIssues()
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	for _, si := range issues {
		created, err := jira.ParseTimestamp(si.doc.Fields.Created)
		if err != nil {
			return fmt.Errorf("%s: %w", si.row.Key, err)
		}
		summary := si.doc.Fields.SummaryText()
		if summary == "" {
			summary = emptyText
		}
		if err := cw.Write([]string{si.destKey, created.Format(csvTimeLayout), summary}); err != nil {
			return fmt.Errorf("writing csv: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
