package mpapp_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/mpapp"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSQS struct {
	mu      sync.Mutex
	batches [][]string
	queues  []string
	err     error
}

func (f *fakeSQS) SendMessageBatch(
	_ context.Context, in *sqs.SendMessageBatchInput, _ ...func(*sqs.Options),
) (*sqs.SendMessageBatchOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	bodies := make([]string, 0, len(in.Entries))
	for _, e := range in.Entries {
		bodies = append(bodies, aws.ToString(e.MessageBody))
	}

	f.batches = append(f.batches, bodies)
	f.queues = append(f.queues, aws.ToString(in.QueueUrl))

	return &sqs.SendMessageBatchOutput{}, nil
}

func (f *fakeSQS) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	sizes := make([]int, 0, len(f.batches))
	for _, b := range f.batches {
		sizes = append(sizes, len(b))
	}

	return sizes
}

func closeSink(t *testing.T, sink *mpapp.SQSSink) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, sink.Close(ctx))
}

func TestSQSSinkBatches(t *testing.T) {
	client := &fakeSQS{}
	sink := mpapp.NewSQSSink(client, "https://queue", zap.NewNop(), 100)
	sink.Start()

	for range 23 {
		sink.LogRequest(mphttp.RequestRecord{Method: mphttp.MethodGet, Path: "/items", Status: 200})
	}

	closeSink(t, sink)

	sizes := client.sizes()
	total := 0
	for _, n := range sizes {
		assert.LessOrEqual(t, n, 10)
		total += n
	}

	assert.Equal(t, 23, total, "close flushes buffered records")
	assert.Zero(t, sink.Dropped())
	assert.Equal(t, "https://queue", client.queues[0])
}

func TestSQSSinkRecordShape(t *testing.T) {
	client := &fakeSQS{}
	sink := mpapp.NewSQSSink(client, "q", zap.NewNop(), 10)
	sink.Start()

	sink.LogRequest(mphttp.RequestRecord{
		Method: mphttp.MethodGet, Path: "/items/x", Pattern: "/items/{id}", Status: 404,
		Fault: mphttp.KindNotFound, Written: 120, Duration: 1500 * time.Microsecond,
	})
	closeSink(t, sink)

	require.Len(t, client.batches, 1)

	var rec mpapp.AccessRecord
	require.NoError(t, json.Unmarshal([]byte(client.batches[0][0]), &rec))
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, "/items/{id}", rec.Pattern)
	assert.Equal(t, 404, rec.Status)
	assert.Equal(t, "NotFound", rec.Fault)
	assert.InDelta(t, 1.5, rec.DurationMS, 0.001)
}

func TestSQSSinkDropsWhenFull(t *testing.T) {
	sink := mpapp.NewSQSSink(&fakeSQS{}, "q", zap.NewNop(), 2)

	for range 5 {
		sink.LogRequest(mphttp.RequestRecord{})
	}

	assert.Equal(t, int64(3), sink.Dropped())

	sink.Start()
	closeSink(t, sink)

	sink.LogRequest(mphttp.RequestRecord{})
	assert.Equal(t, int64(4), sink.Dropped(), "records after close are dropped")
}

func TestSQSSinkSendFailureIsLogged(t *testing.T) {
	client := &fakeSQS{err: errors.New("access denied")}
	sink := mpapp.NewSQSSink(client, "q", zap.NewNop(), 10)
	sink.Start()

	sink.LogRequest(mphttp.RequestRecord{})
	closeSink(t, sink)

	assert.Empty(t, client.sizes())
}
