package processes

import (
	"fmt"
	"net"
	"testing"
)

func TestNewPortManagerRejectsInvalidRange(t *testing.T) {
	cases := []struct{ min, max int }{
		{0, 100},
		{100, 0},
		{200, 100},
		{-1, -1},
	}
	for _, tc := range cases {
		if _, err := NewPortManager(tc.min, tc.max); err == nil {
			t.Errorf("NewPortManager(%d, %d) should fail", tc.min, tc.max)
		}
	}
}

func TestAllocateNeverReturnsDuplicates(t *testing.T) {
	pm, err := NewPortManager(23000, 23010)
	if err != nil {
		t.Fatalf("NewPortManager: %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 5; i++ {
		port, err := pm.Allocate()
		if err != nil {
			t.Fatalf("Allocate #%d: %v", i, err)
		}
		if port < 23000 || port > 23010 {
			t.Errorf("port %d outside configured range", port)
		}
		if seen[port] {
			t.Errorf("port %d allocated twice", port)
		}
		seen[port] = true
	}
}

func TestAllocateSkipsBusyPorts(t *testing.T) {
	pm, err := NewPortManager(23100, 23105)
	if err != nil {
		t.Fatalf("NewPortManager: %v", err)
	}

	// Hold the first port of the range open.
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", 23100))
	if err != nil {
		t.Skipf("cannot listen on 23100: %v", err)
	}
	defer l.Close()

	port, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if port == 23100 {
		t.Error("allocated a port that is already in use")
	}
}

func TestReleaseMakesPortAvailableAgain(t *testing.T) {
	pm, err := NewPortManager(23200, 23200)
	if err != nil {
		t.Fatalf("NewPortManager: %v", err)
	}

	port, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if _, err := pm.Allocate(); err == nil {
		t.Fatal("expected exhaustion on a single-port range")
	}

	pm.Release(port)
	again, err := pm.Allocate()
	if err != nil {
		t.Fatalf("Allocate after Release: %v", err)
	}
	if again != port {
		t.Errorf("expected port %d again, got %d", port, again)
	}
}
