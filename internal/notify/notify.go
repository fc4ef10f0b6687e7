// Package notify delivers notifications to the user.
package notify

import (
	"context"
	"errors"

	appLog "trashcal/internal/log"
)

// Sink shows one notification. Delivery is fire-and-forget; callers log
// a returned error and do not retry.
type Sink interface {
	Show(ctx context.Context, title, body string) error
}

// LogSink writes notifications to the application log.
type LogSink struct{}

func (LogSink) Show(_ context.Context, title, body string) error {
	appLog.Info("notification", "title", title, "body", body)
	return nil
}

// Multi fans a notification out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Show(ctx context.Context, title, body string) error {
	var errs []error
	for _, s := range m {
		if err := s.Show(ctx, title, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kinds accepted by New.
const (
	KindDesktop = "desktop"
	KindLog     = "log"
)

// New returns the sink for kind. The desktop sink also logs, so a headless
// machine still keeps a record of what would have been shown.
func New(kind string) Sink {
	if kind == KindLog {
		return LogSink{}
	}
	return Multi{NewDesktop(), LogSink{}}
}
