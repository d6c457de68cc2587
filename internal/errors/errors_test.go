package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFastPathNoTelemetry(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
}

func TestBuilderCarriesMetadata(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("boom")).
		Component("engine").
		Category(CategoryWorker).
		Priority(PriorityHigh).
		Context("load_id", "abc").
		Build()

	assert.Equal(t, "engine", ee.GetComponent())
	assert.Equal(t, CategoryWorker, ee.Category)
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, "abc", ee.GetContext()["load_id"])
	assert.False(t, ee.Timestamp.IsZero())
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ee := New(fmt.Errorf("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.GetPriority())
}

func TestNilErrorUsesCategoryAsMessage(t *testing.T) {
	ee := New(nil).Category(CategoryWorker).Build()
	require.Error(t, ee)
	assert.Equal(t, string(CategoryWorker), ee.Error())
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	sentinel := NewStd("file not found")
	ee := New(fmt.Errorf("%w: track.wav", sentinel)).
		Category(CategoryFileIO).
		Build()

	var err error = ee
	assert.True(t, Is(err, sentinel))
	assert.True(t, IsCategory(err, CategoryFileIO))
	assert.False(t, IsCategory(err, CategoryAudioDecode))
}

func TestFileContextIsAnonymized(t *testing.T) {
	ee := New(fmt.Errorf("bad")).FileContext("/music/Song.FLAC", 5*1024*1024).Build()

	ctx := ee.GetContext()
	assert.Equal(t, "absolute-path", ctx["file_type"])
	assert.Equal(t, "flac", ctx["file_extension"])
	assert.Equal(t, "medium", ctx["file_size_category"])
}

func TestTimingContext(t *testing.T) {
	ee := New(fmt.Errorf("slow")).Timing("analyze", 1500*time.Millisecond).Build()

	ctx := ee.GetContext()
	assert.Equal(t, "analyze", ctx["operation"])
	assert.Equal(t, int64(1500), ctx["duration_ms"])
}

func TestErrorLevel(t *testing.T) {
	tests := []struct {
		name string
		err  *EnhancedError
		want sentry.Level
	}{
		{"critical priority", New(fmt.Errorf("x")).Category(CategoryFileIO).Priority(PriorityCritical).Build(), sentry.LevelFatal},
		{"high priority", New(fmt.Errorf("x")).Category(CategoryFileIO).Priority(PriorityHigh).Build(), sentry.LevelError},
		{"low priority", New(fmt.Errorf("x")).Category(CategoryWorker).Priority(PriorityLow).Build(), sentry.LevelInfo},
		{"decode category", New(fmt.Errorf("x")).Category(CategoryAudioDecode).Build(), sentry.LevelWarning},
		{"worker category", New(fmt.Errorf("x")).Category(CategoryWorker).Build(), sentry.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorLevel(tt.err))
		})
	}
}

func TestReporterReceivesErrorsWhenEnabled(t *testing.T) {
	reporter := &mockReporter{enabled: true}
	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(fmt.Errorf("decode failed")).Component("decoder").Build()

	require.Len(t, reporter.reported, 1)
	assert.Same(t, ee, reporter.reported[0])
	assert.Equal(t, CategoryAudioDecode, ee.Category, "category should be detected from component")
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		component string
		want      ErrorCategory
	}{
		{"cancel message", fmt.Errorf("analysis cancelled"), "analyzer", CategoryCancellation},
		{"file message", fmt.Errorf("cannot open file"), "engine", CategoryFileIO},
		{"invalid message", fmt.Errorf("invalid hop size"), "beattrack", CategoryValidation},
		{"component fallback", fmt.Errorf("boom"), "playback", CategoryAudioOutput},
		{"unknown", fmt.Errorf("boom"), "other", CategoryGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectCategory(tt.err, tt.component))
		})
	}
}

func TestScrubMessageForPrivacy(t *testing.T) {
	scrubbed := scrubMessageForPrivacy("open /home/alice/music/track.wav: denied, see https://example.com/x?token=abc")

	assert.NotContains(t, scrubbed, "alice")
	assert.NotContains(t, scrubbed, "abc")
	assert.Contains(t, scrubbed, "[PATH]")

	assert.NotContains(t, scrubMessageForPrivacy(`C:\Users\bob\track.mp3 unreadable`), "bob")
}
