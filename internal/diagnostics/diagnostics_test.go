package diagnostics

import (
	"bytes"
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCollect(t *testing.T) {
	s := Collect(context.Background(), "test")

	assert.Equal(t, "test", s.Reason)
	assert.Positive(t, s.Goroutines)
	assert.Positive(t, s.HeapAllocBytes)
	assert.GreaterOrEqual(t, s.MemoryUsedPercent, 0.0)
	assert.LessOrEqual(t, s.MemoryUsedPercent, 100.0)
	assert.Len(t, s.Fields(), 9)
}

func TestReporterRateLimit(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(time.Hour, logger.NewSlogLogger(&buf, logger.LogLevelInfo, time.UTC))

	var calls atomic.Int32
	r.collect = func(_ context.Context, reason string) Snapshot {
		calls.Add(1)
		return Snapshot{Reason: reason}
	}

	assert.True(t, r.Report("slow inference"))
	assert.False(t, r.Report("slow inference"), "second report within interval is suppressed")
	r.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, buf.String(), "slow inference")
	assert.False(t, r.Report("after close"))
}

func TestReporterAllowsAfterInterval(t *testing.T) {
	r := NewReporter(20*time.Millisecond, logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelInfo, time.UTC))
	defer r.Close()

	var calls atomic.Int32
	r.collect = func(_ context.Context, reason string) Snapshot {
		calls.Add(1)
		return Snapshot{Reason: reason}
	}

	assert.True(t, r.Report("dropped_chunks"))
	assert.False(t, r.Report("dropped_chunks"))
	time.Sleep(60 * time.Millisecond)
	assert.True(t, r.Report("dropped_chunks"), "interval elapsed")
}

func TestNilReporter(t *testing.T) {
	var r *Reporter
	assert.False(t, r.Report("x"))
	r.Close()
}
