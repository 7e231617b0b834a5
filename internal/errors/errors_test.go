package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	reports []*EnhancedError
}

func (r *countingReporter) ReportError(ee *EnhancedError) {
	r.reports = append(r.reports, ee)
	ee.MarkReported()
}

func (r *countingReporter) IsEnabled() bool { return true }

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.IsReported())
}

func TestBuilderKeepsExplicitFields(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := Newf("register %s", "tok").
		Component("push").
		Category(CategoryRegistration).
		Priority("bogus").
		Context("operation", "register_device_token").
		Timing("register_device_token", 25*time.Millisecond).
		Build()

	assert.Equal(t, "push", ee.GetComponent())
	assert.Equal(t, CategoryRegistration, ee.Category)
	assert.Equal(t, PriorityMedium, ee.GetPriority())

	ctx := ee.GetContext()
	assert.Equal(t, "register_device_token", ctx["operation"])
	assert.Equal(t, int64(25), ctx["duration_ms"])

	// returned context is a copy
	ctx["operation"] = "changed"
	assert.Equal(t, "register_device_token", ee.GetContext()["operation"])
}

func TestCategoryDetection(t *testing.T) {
	SetTelemetryReporter(nil)

	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"timeout", fmt.Errorf("context deadline exceeded"), CategoryTimeout},
		{"connection", fmt.Errorf("dial tcp: connection refused"), CategoryNetwork},
		{"permission", fmt.Errorf("notification permission denied"), CategoryPermission},
		{"wrapped enhanced", New(NewStd("x")).Category(CategoryConflict).Build(), CategoryConflict},
		{"generic", fmt.Errorf("something odd"), CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.err).Build().Category)
		})
	}
}

func TestIsAndUnwrap(t *testing.T) {
	sentinel := NewStd("sentinel")
	ee := New(fmt.Errorf("wrapped: %w", sentinel)).Category(CategoryState).Build()

	assert.True(t, Is(ee, sentinel))
	assert.True(t, IsCategory(ee, CategoryState))
	assert.False(t, IsNotFound(ee))

	outer := fmt.Errorf("outer: %w", ee)
	var target *EnhancedError
	require.True(t, As(outer, &target))
	assert.Same(t, ee, target)
}

func TestReporterReceivesErrorsWhenActive(t *testing.T) {
	reporter := &countingReporter{}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("boom")).Category(CategoryMessaging).Build()

	require.Len(t, reporter.reports, 1)
	assert.Same(t, ee, reporter.reports[0])
	assert.True(t, ee.IsReported())
	assert.Equal(t, ComponentUnknown, ee.GetComponent(), "test frames match no registered component")
}

func TestGenerateErrorTitle(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(NewStd("x")).
		Component("push.web").
		Category(CategoryRegistration).
		Context("operation", "get_token").
		Build()

	assert.Equal(t, "Push.web Token Registration Error Get Token", generateErrorTitle(ee))
}

func TestBasicURLScrub(t *testing.T) {
	scrubbed := basicURLScrub("Error at https://api.example.com?api_key=secret123&token=abc")
	assert.Equal(t, "Error at https://api.example.com?[REDACTED]", scrubbed)

	scrubbed = basicURLScrub("Config error: api_key=secret123 is invalid")
	assert.Contains(t, scrubbed, "[API_KEY_REDACTED]")

	scrubbed = basicURLScrub("request failed with Bearer eyJhbGciOi for restaurant_id=5")
	assert.NotContains(t, scrubbed, "eyJhbGciOi")
	assert.Contains(t, scrubbed, "[ID_REDACTED]")
}
