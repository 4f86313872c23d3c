package procstat

import (
	"os"
	"testing"
)

func TestSampleSelfReturnsNonZeroMemory(t *testing.T) {
	s := Sample(os.Getpid())
	if s.MemoryRSS == 0 {
		t.Fatal("expected non-zero RSS for the running test process")
	}
}

func TestSampleUnknownPidIsZero(t *testing.T) {
	s := Sample(999999999)
	if s.CPUPercent != 0 || s.MemoryRSS != 0 {
		t.Fatalf("expected zero sample for an unreadable pid, got %+v", s)
	}
}
