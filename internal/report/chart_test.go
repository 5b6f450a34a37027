package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpeedHistogram(t *testing.T) {
	speeds := map[string][]float64{
		"car":   {23.5, 54.3, 58.1},
		"truck": {41.0},
	}

	var buf bytes.Buffer
	require.NoError(t, SpeedHistogram(&buf, "Morning run", speeds))

	out := buf.String()
	require.Contains(t, out, "Morning run")
	require.Contains(t, out, "car")
	require.Contains(t, out, "truck")
	// The fastest sample is 58.1 km/h, so the last bin is 50-59.
	require.Contains(t, out, "50-59")
}

func TestSpeedHistogramEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SpeedHistogram(&buf, "No vehicles", map[string][]float64{}))
	require.Contains(t, buf.String(), "No vehicles")
}
