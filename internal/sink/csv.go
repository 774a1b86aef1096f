// Package sink provides the outputs subscribed to the crawl event stream:
// the CSV log, the live console table, Prometheus metrics and fan-out.
package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/masahif/dataexplore/internal/crawler"
)

// csvHeader matches the columns read by the charting utility
var csvHeader = []string{"#", "url", "status", "elapsed_s", "n_links_found", "is_allowed_by_robots"}

// CSVSink writes one row per event and flushes after every row
type CSVSink struct {
	cw     *csv.Writer
	closer io.Closer
}

// NewCSVSink writes the header row to w
func NewCSVSink(w io.Writer) (*CSVSink, error) {
	s := &CSVSink{cw: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}

	if err := s.cw.Write(csvHeader); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	s.cw.Flush()
	if err := s.cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return s, nil
}

// CreateCSVFile truncates or creates path and returns a sink writing to it
func CreateCSVFile(path string) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}
	s, err := NewCSVSink(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// Consume appends the event as a CSV row
func (s *CSVSink) Consume(_ context.Context, evt crawler.CrawlEvent) error {
	if err := s.cw.Write(csvRecord(evt)); err != nil {
		return fmt.Errorf("write csv record for %s: %w", evt.URL, err)
	}
	s.cw.Flush()
	if err := s.cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// Close flushes pending output and closes the underlying file, if any
func (s *CSVSink) Close() error {
	s.cw.Flush()
	err := s.cw.Error()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

func csvRecord(evt crawler.CrawlEvent) []string {
	return []string{
		strconv.Itoa(evt.Sequence),
		evt.URL,
		evt.Label(),
		strconv.FormatFloat(evt.ElapsedSeconds(), 'f', 2, 64),
		strconv.Itoa(evt.LinkCount),
		titleBool(evt.Allowed),
	}
}

// titleBool renders booleans as True/False
func titleBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
