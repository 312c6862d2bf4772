package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionMetrics counts startup session resolutions by the step that won.
type SessionMetrics struct {
	resolutions *prometheus.CounterVec
}

func NewSessionMetrics(reg prometheus.Registerer) *SessionMetrics {
	if reg == nil {
		return &SessionMetrics{}
	}
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "session_resolutions_total",
		Help: "Session resolutions by winning step and resulting mode.",
	}, []string{"step", "mode"})
	reg.MustRegister(resolutions)
	return &SessionMetrics{resolutions: resolutions}
}

// ObserveResolution satisfies sessionstate.Observer.
func (m *SessionMetrics) ObserveResolution(step, mode string) {
	if m == nil || m.resolutions == nil {
		return
	}
	m.resolutions.WithLabelValues(normalizeLabel(step), normalizeLabel(mode)).Inc()
}
