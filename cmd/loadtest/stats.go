package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"
)

// stats accumulates outcomes of one run. Safe for concurrent use.
type stats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int
	errors      int
	empty       int
}

func newStats() *stats {
	return &stats{
		latencies:   make([]time.Duration, 0, 1<<16),
		statusCodes: make(map[int]int),
	}
}

// record stores one request. code 0 means a transport error.
func (s *stats) record(d time.Duration, code int, empty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		s.errors++
		return
	}
	s.statusCodes[code]++
	if code < 200 || code >= 300 {
		s.errors++
		return
	}
	s.latencies = append(s.latencies, d)
	if empty {
		s.empty++
	}
}

type summary struct {
	Total, Succeeded, Errors, Empty int
	RPS                             float64
	Min, Avg, P50, P95, P99, Max    time.Duration
	StatusCodes                     map[int]int
}

func (s *stats) summarize(elapsed time.Duration) summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := slices.Clone(s.latencies)
	slices.Sort(sorted)
	sum := summary{
		Succeeded:   len(sorted),
		Errors:      s.errors,
		Empty:       s.empty,
		StatusCodes: make(map[int]int, len(s.statusCodes)),
	}
	sum.Total = sum.Succeeded + sum.Errors
	for code, n := range s.statusCodes {
		sum.StatusCodes[code] = n
	}
	if elapsed > 0 {
		sum.RPS = float64(sum.Total) / elapsed.Seconds()
	}
	if len(sorted) == 0 {
		return sum
	}
	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	sum.Min = sorted[0]
	sum.Max = sorted[len(sorted)-1]
	sum.Avg = total / time.Duration(len(sorted))
	sum.P50 = percentile(sorted, 50)
	sum.P95 = percentile(sorted, 95)
	sum.P99 = percentile(sorted, 99)
	return sum
}

func (s summary) print(w io.Writer, label string) {
	fmt.Fprintf(w, "=== %s ===\n", label)
	fmt.Fprintf(w, "Requests:    %d (%.1f/s)\n", s.Total, s.RPS)
	fmt.Fprintf(w, "Errors:      %d\n", s.Errors)
	fmt.Fprintf(w, "No results:  %d\n", s.Empty)
	if s.Succeeded > 0 {
		fmt.Fprintf(w, "Latency:     min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s\n",
			s.Min, s.Avg, s.P50, s.P95, s.P99, s.Max)
	}
	codes := make([]int, 0, len(s.StatusCodes))
	for code := range s.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, s.StatusCodes[code])
	}
	fmt.Fprintln(w)
}

// percentile uses the nearest-rank method on an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
