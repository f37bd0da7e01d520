package main

import (
	"testing"
	"time"
)

func TestComputeStatsPercentiles(t *testing.T) {
	samples := make([]time.Duration, 0, 100)
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}

	s := computeStats(time.Second, samples, 3)
	if s.ops != 100 || s.failures != 3 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if s.p50 != 50*time.Millisecond || s.p99 != 99*time.Millisecond {
		t.Fatalf("p50=%s p99=%s", s.p50, s.p99)
	}
	if s.opsPerS != 100 {
		t.Fatalf("ops/sec = %v", s.opsPerS)
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	if s := computeStats(time.Second, nil, 0); s.ops != 0 || s.total != time.Second {
		t.Fatalf("unexpected %+v", s)
	}
}
