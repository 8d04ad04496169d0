// Package diagnostics captures host resource usage when the pipeline
// falls behind.
package diagnostics

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/time/rate"

	"github.com/deeplyinc/homeaudio-go/internal/logger"
)

// cpuSampleInterval is how long CPU utilization is measured.
const cpuSampleInterval = 250 * time.Millisecond

// Snapshot is a point-in-time view of host and process resources.
// Fields that could not be read are left zero.
type Snapshot struct {
	Time              time.Time
	Reason            string
	CPUPercent        float64
	MemoryUsedPercent float64
	SwapUsedPercent   float64
	ProcessRSSBytes   uint64
	Goroutines        int
	HeapAllocBytes    uint64
	Platform          string
	HostUptime        time.Duration
}

// Collect gathers a snapshot. It blocks for about cpuSampleInterval.
func Collect(ctx context.Context, reason string) Snapshot {
	s := Snapshot{
		Time:       time.Now(),
		Reason:     reason,
		Goroutines: runtime.NumGoroutine(),
	}

	if pct, err := cpu.PercentWithContext(ctx, cpuSampleInterval, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryUsedPercent = vm.UsedPercent
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.SwapUsedPercent = swap.UsedPercent
	}
	if p, err := process.NewProcessWithContext(ctx, int32(os.Getpid())); err == nil { //nolint:gosec // pid fits int32
		if info, err := p.MemoryInfoWithContext(ctx); err == nil {
			s.ProcessRSSBytes = info.RSS
		}
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		s.Platform = info.Platform + " " + info.PlatformVersion
		s.HostUptime = time.Duration(info.Uptime) * time.Second //nolint:gosec // uptime fits int64
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocBytes = ms.HeapAlloc

	return s
}

// Fields returns the snapshot as log fields.
func (s Snapshot) Fields() []logger.Field {
	return []logger.Field{
		logger.String("reason", s.Reason),
		logger.Float64("cpu_percent", s.CPUPercent),
		logger.Float64("memory_used_percent", s.MemoryUsedPercent),
		logger.Float64("swap_used_percent", s.SwapUsedPercent),
		logger.Uint64("process_rss_mb", s.ProcessRSSBytes/1024/1024),
		logger.Uint64("heap_alloc_mb", s.HeapAllocBytes/1024/1024),
		logger.Int("goroutines", s.Goroutines),
		logger.String("platform", s.Platform),
		logger.Duration("host_uptime", s.HostUptime),
	}
}

// Reporter logs snapshots in the background, at most once per interval.
type Reporter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	wg      sync.WaitGroup
	log     logger.Logger
	collect func(ctx context.Context, reason string) Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewReporter creates a reporter that logs to log. A nil log uses the
// package logger.
func NewReporter(minInterval time.Duration, log logger.Logger) *Reporter {
	if log == nil {
		log = GetLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Reporter{
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		log:     log,
		collect: Collect,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Report schedules a snapshot unless one was taken within the interval.
// It never blocks the caller and reports whether a snapshot was scheduled.
func (r *Reporter) Report(reason string) bool {
	if r == nil {
		return false
	}

	r.mu.Lock()
	if r.ctx.Err() != nil || !r.limiter.Allow() {
		r.mu.Unlock()
		return false
	}
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		s := r.collect(r.ctx, reason)
		r.log.Warn("Resource snapshot", s.Fields()...)
	}()
	return true
}

// Close cancels pending collection and waits for it to finish.
func (r *Reporter) Close() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
}
