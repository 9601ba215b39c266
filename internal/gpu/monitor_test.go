package gpu

import (
	"math"
	"testing"
)

func TestParseMetrics(t *testing.T) {
	m, err := parseMetrics("65, 42, 2048, 12288\n")
	if err != nil {
		t.Fatal(err)
	}

	if m.Temperature != 65 || m.Utilization != 42 {
		t.Errorf("temp/util = %.0f/%.0f, want 65/42", m.Temperature, m.Utilization)
	}
	if math.Abs(m.MemoryUsedGB-2.0) > 0.001 {
		t.Errorf("used = %.3fGB, want 2.0", m.MemoryUsedGB)
	}
	if math.Abs(m.MemoryTotalGB-12.0) > 0.001 {
		t.Errorf("total = %.3fGB, want 12.0", m.MemoryTotalGB)
	}
	if math.Abs(m.MemoryFreeGB-10.0) > 0.001 {
		t.Errorf("free = %.3fGB, want 10.0", m.MemoryFreeGB)
	}
	if m.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestParseMetricsRejectsBadOutput(t *testing.T) {
	cases := []string{
		"",
		"65, 42, 2048",               // too few fields
		"65, 42, 2048, 12288, 99",    // too many fields
		"N/A, 42, 2048, 12288",       // non-numeric field
		"[Unknown Error]",            // driver fault line
	}
	for _, out := range cases {
		if _, err := parseMetrics(out); err == nil {
			t.Errorf("parseMetrics(%q) should fail", out)
		}
	}
}
