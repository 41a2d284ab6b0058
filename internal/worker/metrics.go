package worker

// Metrics counts tool calls made during one attempt.
type Metrics struct {
	Total     int
	ByTool    map[string]int
	Successes int
	Failures  int
}

func newMetrics() *Metrics {
	return &Metrics{ByTool: map[string]int{}}
}

// Record counts one executed call.
func (m *Metrics) Record(tool string, success bool) {
	if m.ByTool == nil {
		m.ByTool = map[string]int{}
	}
	m.Total++
	m.ByTool[tool]++
	if success {
		m.Successes++
	} else {
		m.Failures++
	}
}

// Reset zeroes all counters.
func (m *Metrics) Reset() {
	m.Total, m.Successes, m.Failures = 0, 0, 0
	m.ByTool = map[string]int{}
}

// Count returns the number of calls made to tool.
func (m *Metrics) Count(tool string) int {
	return m.ByTool[tool]
}

// Snapshot returns an independent copy.
func (m *Metrics) Snapshot() Metrics {
	by := make(map[string]int, len(m.ByTool))
	for k, v := range m.ByTool {
		by[k] = v
	}
	return Metrics{Total: m.Total, ByTool: by, Successes: m.Successes, Failures: m.Failures}
}
