// Package cpuspec picks an interpreter thread count from the host CPU.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// maxInferenceThreads caps the thread count. The event model is small and
// gains nothing past a handful of threads.
const maxInferenceThreads = 4

// CPUSpec describes the host CPU.
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PhysicalCores    int
	PerformanceCores int // 0 when the CPU is not a known hybrid design
}

// GetCPUSpec inspects the running CPU.
func GetCPUSpec() CPUSpec {
	return CPUSpec{
		BrandName:        cpuid.CPU.BrandName,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		PerformanceCores: performanceCores(cpuid.CPU.BrandName),
	}
}

// OptimalThreadCount returns the number of interpreter threads to use.
// Hybrid CPUs are limited to their performance cores, everything else to
// physical cores, and the result never exceeds the CPUs visible to the process.
func (c CPUSpec) OptimalThreadCount() int {
	threads := c.PhysicalCores
	if c.PerformanceCores > 0 {
		threads = c.PerformanceCores
	}
	if threads <= 0 {
		threads = c.LogicalCores
	}
	if available := runtime.NumCPU(); threads <= 0 || threads > available {
		threads = available
	}
	return min(max(threads, 1), maxInferenceThreads)
}

// ResolveThreads returns requested when it is positive, otherwise the optimal
// thread count for this host.
func ResolveThreads(requested int) int {
	if requested > 0 {
		return requested
	}
	return GetCPUSpec().OptimalThreadCount()
}

var (
	intelHybridRegex = regexp.MustCompile(`core.*(i[3579])-1[234]\d{3}|core.*ultra\s+([579])\s+(?:processor\s+)?\d{3}`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4])\s*(pro|max|ultra)?`)
)

// intelPCores maps hybrid Intel generations and tiers to P-core counts.
var intelPCores = map[string]int{
	"i9": 8, "i7": 8, "i5": 6, "i3": 4,
	"ultra 9": 8, "ultra 7": 8, "ultra 5": 6,
}

var appleCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 6, "m3 max": 12, "m3 ultra": 24,
	"m4": 4, "m4 pro": 10, "m4 max": 12,
}

// performanceCores returns the P-core count of known hybrid CPUs, or 0.
func performanceCores(brandName string) int {
	brand := strings.ToLower(brandName)

	if strings.Contains(brand, "intel") {
		m := intelHybridRegex.FindStringSubmatch(brand)
		switch {
		case m == nil:
			return 0
		case m[1] != "":
			// 12th to 14th generation Core i
			return intelPCores[m[1]]
		default:
			return intelPCores["ultra "+m[2]]
		}
	}

	if m := appleRegex.FindStringSubmatch(brand); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return appleCores[chip]
	}

	return 0
}
