package sink

import (
	"context"
	"errors"
	"io"

	"github.com/masahif/dataexplore/internal/crawler"
)

// Multi fans each event out to several sinks in order
type Multi struct {
	sinks []crawler.EventSink
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(sinks ...crawler.EventSink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Add appends s to the fan-out list
func (m *Multi) Add(s crawler.EventSink) {
	if s != nil {
		m.sinks = append(m.sinks, s)
	}
}

// Len returns the number of sinks
func (m *Multi) Len() int {
	return len(m.sinks)
}

// Consume delivers evt to every sink, even after one fails, and joins the errors
func (m *Multi) Consume(ctx context.Context, evt crawler.CrawlEvent) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Consume(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that implements io.Closer
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
