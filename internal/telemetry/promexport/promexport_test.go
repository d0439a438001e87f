package promexport

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExporterAddAccumulates(t *testing.T) {
	exp := New("duelcore")
	exp.Add("admission_dropped_total", 2)
	exp.Add("admission_dropped_total", 3)

	got := testutil.ToFloat64(exp.counters["admission_dropped_total"])
	require.Equal(t, float64(5), got)
}

func TestExporterStoreOverwrites(t *testing.T) {
	exp := New("duelcore")
	exp.Store("command_buffer_occupancy", 4)
	exp.Store("command_buffer_occupancy", 1)

	got := testutil.ToFloat64(exp.gauges["command_buffer_occupancy"])
	require.Equal(t, float64(1), got)
}

func TestExporterNilSafety(t *testing.T) {
	var exp *Exporter
	exp.Add("ignored", 1)
	exp.Store("ignored", 1)
}
