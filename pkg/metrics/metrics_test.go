package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("chain_test")

	c.RecordIngest("user")
	c.RecordIngest("user")
	c.RecordGeneration(true)
	c.RecordReply(false)
	c.RecordRebuild(12, 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.UtterancesIngested.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Generations.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Replies.WithLabelValues("generated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.TopicRebuilds))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.TopicRows))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordIngest("user")
		c.RecordGeneration(false)
		c.RecordReply(true)
		c.RecordRebuild(1, time.Second)
	})
	assert.Nil(t, c.Registry())
	assert.NotNil(t, c.Handler())
}
