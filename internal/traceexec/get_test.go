package traceexec

import (
	"testing"

	"github.com/erigontech/tracegateway/internal/tracers"
	"github.com/stretchr/testify/require"
)

func TestGetIndexOffset(t *testing.T) {
	traces := []*tracers.ParityTrace{
		{Type: "call"},
		{Type: "call"},
		{Type: "call"},
	}

	// indices[0]==0 selects traces[0+traceGetIndexOffset] == traces[1], not
	// traces[0]: trace_get's single accepted index is one-based.
	firstIndex := int(0) + traceGetIndexOffset
	require.Equal(t, 1, firstIndex)
	require.Same(t, traces[1], traces[firstIndex])
}

func TestGetIndexPastEnd(t *testing.T) {
	traces := []*tracers.ParityTrace{{Type: "call"}}
	firstIndex := int(1) + traceGetIndexOffset
	require.True(t, firstIndex >= len(traces))
}
