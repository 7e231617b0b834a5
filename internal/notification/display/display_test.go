package display

import (
	"bytes"
	"context"
	"testing"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/errors"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(message string, params *stypes.Params) []error {
	args := m.Called(message, *params)
	errs, _ := args.Get(0).([]error)
	return errs
}

type recordingDisplayer struct {
	shown []Notification
	err   error
}

func (r *recordingDisplayer) Show(_ context.Context, n Notification) error {
	r.shown = append(r.shown, n)
	return r.err
}

func TestShoutrrrDisplayerSendsParams(t *testing.T) {
	s := &mockSender{}
	s.On("Send", "Table for 4 at 20:00", stypes.Params{
		"title": "🔔 New reservation",
		"click": "https://app.tabla.test/reservations/12",
		"url":   "https://app.tabla.test/reservations/12",
	}).Return([]error(nil))

	d := &ShoutrrrDisplayer{sender: s}
	err := d.Show(t.Context(), Notification{
		Title: "🔔 New reservation",
		Body:  "Table for 4 at 20:00",
		Link:  "https://app.tabla.test/reservations/12",
	})
	require.NoError(t, err)
	s.AssertExpectations(t)
}

func TestShoutrrrDisplayerFlattensHTML(t *testing.T) {
	s := &mockSender{}
	s.On("Send", mock.MatchedBy(func(msg string) bool {
		return !bytes.ContainsAny([]byte(msg), "<>") && bytes.Contains([]byte(msg), []byte("Table for 4"))
	}), mock.Anything).Return([]error(nil))

	d := &ShoutrrrDisplayer{sender: s}
	require.NoError(t, d.Show(t.Context(), Notification{Body: "<p><b>Table for 4</b></p>"}))
	s.AssertExpectations(t)
}

func TestShoutrrrDisplayerScrubsErrors(t *testing.T) {
	s := &mockSender{}
	s.On("Send", mock.Anything, mock.Anything).
		Return([]error{nil, errors.NewStd("post https://ntfy.tabla.test/secret-topic: timeout")})

	d := &ShoutrrrDisplayer{sender: s}
	err := d.Show(t.Context(), Notification{Title: "x"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret-topic")
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}

func TestNewShoutrrrDisplayerValidates(t *testing.T) {
	_, err := NewShoutrrrDisplayer(nil, 0)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	_, err = NewShoutrrrDisplayer([]string{"nosuchservice://token@host"}, 0)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "token@host")

	d, err := NewShoutrrrDisplayer([]string{"logger://"}, 0)
	require.NoError(t, err)
	assert.NotNil(t, d)
}

func TestMultiCallsEveryDisplayer(t *testing.T) {
	failing := &recordingDisplayer{err: errors.NewStd("bridge down")}
	ok := &recordingDisplayer{}

	err := Multi{failing, ok}.Show(t.Context(), Notification{Title: "hi"})
	require.Error(t, err)
	assert.Len(t, failing.shown, 1)
	assert.Len(t, ok.shown, 1)

	assert.NoError(t, Multi{ok}.Show(t.Context(), Notification{}))
}

func TestLogDisplayer(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDisplayer(logger.NewSlogLogger(&buf, logger.LogLevelInfo, nil))
	require.NoError(t, d.Show(t.Context(), Notification{Title: "Cancelled", Link: "/reservations/3"}))
	assert.Contains(t, buf.String(), "Cancelled")
	assert.Contains(t, buf.String(), "/reservations/3")
}
