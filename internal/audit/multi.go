package audit

import (
	"context"
	"errors"
)

// MultiSink writes every event to all sinks, continuing past failures.
type MultiSink []Sink

// Write implements Sink and joins the individual errors.
func (m MultiSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
