package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error { return nil }

func TestProducer_PublishEncodesJSON(t *testing.T) {
	w := &memWriter{}
	reg := prometheus.NewRegistry()
	p := NewProducerWithWriter(w, "macro.snapshots", "snappy", reg)

	err := p.Publish(context.Background(), []byte("k1"), map[string]float64{"repo_rate": 2})
	require.NoError(t, err)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "k1", string(w.msgs[0].Key))
	assert.JSONEq(t, `{"repo_rate":2}`, string(w.msgs[0].Value))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("macro.snapshots", "snappy", "ok")))
}

func TestProducer_PublishRawBytes(t *testing.T) {
	w := &memWriter{}
	p := NewProducerWithWriter(w, "t", "none", nil)

	require.NoError(t, p.Publish(context.Background(), nil, []byte("raw")))
	require.NoError(t, p.Publish(context.Background(), nil, "text"))

	assert.Equal(t, "raw", string(w.msgs[0].Value))
	assert.Equal(t, "text", string(w.msgs[1].Value))
}

func TestProducer_PublishError(t *testing.T) {
	w := &memWriter{err: errors.New("leader not available")}
	reg := prometheus.NewRegistry()
	p := NewProducerWithWriter(w, "t", "gzip", reg)

	err := p.Publish(context.Background(), nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.msgs.WithLabelValues("t", "gzip", "error")))
}

func TestNewProducer_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewProducer(WithTopic("t"))
	require.Error(t, err)

	_, err = NewProducer(WithBrokers([]string{"localhost:9092"}))
	require.Error(t, err)

	p, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithTopic("t"), WithCompression("lz4"))
	require.NoError(t, err)
	assert.Equal(t, "t", p.Topic())
	require.NoError(t, p.Close())
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Compression(0), parseCompression("none"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Snappy, parseCompression("unknown"))
}
