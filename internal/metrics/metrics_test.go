package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/joshuafuller/linkbeacon/internal/records"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Received()
	m.Received()
	m.DecodeError()
	m.Answered("PTR")
	m.Sent(nil)
	m.Sent(errors.New("boom"))
	m.Announced()
	m.SaidGoodbye()
	m.ObserveTable(map[records.State]int{records.StateNormal: 2, records.StateRemoved: 6})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PacketsReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DecodeErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuestionsAnswered.WithLabelValues("PTR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ResponsesSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Announcements))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Goodbyes))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Records.WithLabelValues("normal")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Records.WithLabelValues("suspend")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Positive(t, n)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Received()
		m.DecodeError()
		m.Answered("A")
		m.Sent(nil)
		m.Announced()
		m.SaidGoodbye()
		m.ObserveTable(nil)
	})
}
