// Package metrics exposes responder counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

const namespace = "linkbeacon"

// Metrics holds the responder collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	PacketsReceived   prometheus.Counter
	DecodeErrors      prometheus.Counter
	QuestionsAnswered *prometheus.CounterVec
	ResponsesSent     prometheus.Counter
	SendErrors        prometheus.Counter
	Announcements     prometheus.Counter
	Goodbyes          prometheus.Counter
	Records           *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. A nil reg skips
// registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "mDNS datagrams received.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decode_errors_total",
			Help:      "Datagrams dropped because they could not be parsed.",
		}),
		QuestionsAnswered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_answered_total",
			Help:      "Questions that produced at least one response, by record type.",
		}, []string{"type"}),
		ResponsesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_sent_total",
			Help:      "Response packets handed to the transport.",
		}),
		SendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Transport send failures.",
		}),
		Announcements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "announcements_total",
			Help:      "Unsolicited announcements sent.",
		}),
		Goodbyes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "goodbyes_total",
			Help:      "Goodbye announcements sent.",
		}),
		Records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Record table slots by state.",
		}, []string{"state"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PacketsReceived,
			m.DecodeErrors,
			m.QuestionsAnswered,
			m.ResponsesSent,
			m.SendErrors,
			m.Announcements,
			m.Goodbyes,
			m.Records,
		)
	}
	return m
}

func (m *Metrics) Received() {
	if m != nil {
		m.PacketsReceived.Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.DecodeErrors.Inc()
	}
}

func (m *Metrics) Answered(rrtype string) {
	if m != nil {
		m.QuestionsAnswered.WithLabelValues(rrtype).Inc()
	}
}

// Sent records the outcome of one transport send.
func (m *Metrics) Sent(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.SendErrors.Inc()
		return
	}
	m.ResponsesSent.Inc()
}

func (m *Metrics) Announced() {
	if m != nil {
		m.Announcements.Inc()
	}
}

func (m *Metrics) SaidGoodbye() {
	if m != nil {
		m.Goodbyes.Inc()
	}
}

// ObserveTable sets the records gauge from per-state slot counts.
func (m *Metrics) ObserveTable(counts map[records.State]int) {
	if m == nil {
		return
	}
	for _, s := range []records.State{
		records.StateRemoved,
		records.StateUpdate,
		records.StateNormal,
		records.StateSuspend,
		records.StateRemove,
	} {
		m.Records.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
}
