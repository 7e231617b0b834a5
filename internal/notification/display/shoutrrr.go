package display

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	"github.com/k3a/html2text"
	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/privacy"
)

const defaultShoutrrrTimeout = 10 * time.Second

// sender is the part of the shoutrrr router used here
type sender interface {
	Send(message string, params *stypes.Params) []error
}

// ShoutrrrDisplayer delivers notifications through shoutrrr service URLs.
// One router serves all URLs.
type ShoutrrrDisplayer struct {
	sender sender
}

// NewShoutrrrDisplayer validates urls and builds the router
func NewShoutrrrDisplayer(urls []string, timeout time.Duration) (*ShoutrrrDisplayer, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one display URL is required").
			Component("notification.display").
			Category(errors.CategoryConfiguration).
			Build()
	}

	r, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		// service URLs carry credentials
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification.display").
			Category(errors.CategoryConfiguration).
			Build()
	}
	configureRouter(r, timeout)

	return &ShoutrrrDisplayer{sender: r}, nil
}

func configureRouter(r *router.ServiceRouter, timeout time.Duration) {
	if timeout <= 0 {
		timeout = defaultShoutrrrTimeout
	}
	r.Timeout = timeout
	r.SetLogger(log.New(io.Discard, "", 0))
}

// Show implements Displayer. HTML bodies are flattened to text.
func (d *ShoutrrrDisplayer) Show(_ context.Context, n Notification) error {
	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	if n.Link != "" {
		// ntfy opens "click"; gotify and others read "url"
		params["click"] = n.Link
		params["url"] = n.Link
	}
	if n.Tag != "" {
		params["tags"] = n.Tag
	}

	for _, err := range d.sender.Send(plainText(n.Body), &params) {
		if err != nil {
			return errors.New(privacy.WrapError(err)).
				Component("notification.display").
				Category(errors.CategoryNetwork).
				Build()
		}
	}
	return nil
}

func plainText(body string) string {
	if !strings.ContainsAny(body, "<&") {
		return body
	}
	return strings.TrimSpace(html2text.HTML2Text(body))
}
