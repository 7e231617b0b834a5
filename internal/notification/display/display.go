// Package display shows received push messages to the operator: through
// shoutrrr services (desktop bridges, ntfy, gotify...) and the log.
package display

import (
	"context"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

// Notification is what gets shown
type Notification struct {
	Title string
	Body  string
	// Link is opened when the notification is clicked, where the service supports it
	Link string
	// Tag groups notifications about the same thing
	Tag string
}

// Displayer shows notifications
type Displayer interface {
	Show(ctx context.Context, n Notification) error
}

// Multi fans out to every displayer. Each displayer is called even when an
// earlier one fails; the failures are joined.
type Multi []Displayer

// Show implements Displayer
func (m Multi) Show(ctx context.Context, n Notification) error {
	var errs []error
	for _, d := range m {
		if err := d.Show(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogDisplayer writes notifications to the structured log
type LogDisplayer struct {
	log logger.Logger
}

// NewLogDisplayer creates a displayer over log
func NewLogDisplayer(log logger.Logger) *LogDisplayer {
	if log == nil {
		log = GetLogger()
	}
	return &LogDisplayer{log: log}
}

// Show implements Displayer
func (d *LogDisplayer) Show(_ context.Context, n Notification) error {
	d.log.Info("notification",
		logger.String("title", n.Title),
		logger.String("body", n.Body),
		logger.String("link", n.Link),
		logger.String("tag", n.Tag))
	return nil
}

// GetLogger returns the display module logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification").Module("display")
}
