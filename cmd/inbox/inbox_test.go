package inbox

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabladeV/manager.tabla-sub002/internal/backend"
)

func TestPrintPage(t *testing.T) {
	page := &backend.NotificationPage{
		Count: 5,
		Results: []backend.Notification{
			{ID: 9, Title: "New reservation", IsRead: false, CreatedAt: time.Date(2026, 10, 1, 18, 30, 0, 0, time.Local)},
			{ID: 8, Title: "Reservation cancelled", IsRead: true},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printPage(&out, page))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.Regexp(t, `^ID\s+READ\s+CREATED\s+TITLE$`, lines[0])
	assert.Regexp(t, `^9\s+no\s+2026-10-01 18:30\s+New reservation$`, lines[1])
	assert.Regexp(t, `^8\s+yes\s+-\s+Reservation cancelled$`, lines[2])
	assert.Equal(t, "2 of 5", lines[3])
}

func TestReadRejectsInvalidID(t *testing.T) {
	cmd := readCommand(nil)
	cmd.SetArgs([]string{"abc"})
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid notification id "abc"`)
}
