package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocator_AllocateReturnsPortInRange(t *testing.T) {
	a := NewAllocator()

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, PortRangeStart)
	assert.LessOrEqual(t, port, PortRangeEnd)
}

func TestAllocator_AllocateSkipsOccupiedPort(t *testing.T) {
	l, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer l.Close()

	occupied := l.Addr().(*net.TCPAddr).Port
	a := &Allocator{start: occupied, end: occupied + 5}

	port, err := a.Allocate()
	require.NoError(t, err)
	assert.NotEqual(t, occupied, port)
}

func TestAllocator_NoFreePortsInRange(t *testing.T) {
	tests := []struct {
		name     string
		start    int
		end      int
	}{
		{name: "single port range exhausted", start: 1, end: 1}, // port 1 requires privileges, expect failure or success deterministically unlikely; validated via error path below instead
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &Allocator{start: tt.start, end: tt.end}
			_, err := a.Allocate()
			// Port 1 is privileged and the test runner is unprivileged in CI,
			// so binding should fail and Allocate should report no free port.
			if err == nil {
				t.Skip("test runner has privileges to bind port 1, skipping")
			}
			assert.Contains(t, err.Error(), "no free port found")
		})
	}
}
