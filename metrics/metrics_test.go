package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordOperation(t *testing.T) {
	m := New()
	m.RecordOperation("C_Sign", nil, time.Now())
	m.RecordOperation("C_Sign", nil, time.Now())
	m.RecordOperation("C_Sign", errors.New("boom"), time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("C_Sign", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("C_Sign", StatusError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestGauges(t *testing.T) {
	m := New()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionOpened()
	m.SessionsClosed(2)
	m.SetTokens(4)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sessions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.tokens))

	count, err := testutil.GatherAndCount(m.Registry, "keychain_bridge_sessions_open", "keychain_bridge_tokens_present")
	assert.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordOperation("C_Sign", nil, time.Now())
	m.SessionOpened()
	m.SessionsClosed(1)
	m.SetTokens(1)
}
