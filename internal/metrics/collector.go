package metrics

import "github.com/prometheus/client_golang/prometheus"

// SessionCounter reports the sessions currently held in memory
type SessionCounter interface {
	ActiveSessions() map[string]int
}

// SessionCollector reads session counts lazily on each scrape
type SessionCollector struct {
	source SessionCounter
	active *prometheus.Desc
}

func NewSessionCollector(source SessionCounter) *SessionCollector {
	return &SessionCollector{
		source: source,
		active: prometheus.NewDesc(
			"humanstudy_sessions_active",
			"Sessions held in memory, by flow.",
			[]string{"flow"}, nil,
		),
	}
}

func (c *SessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
}

func (c *SessionCollector) Collect(ch chan<- prometheus.Metric) {
	for flow, n := range c.source.ActiveSessions() {
		ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(n), flow)
	}
}
