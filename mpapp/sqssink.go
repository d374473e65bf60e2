package mpapp

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/advdv/mphttp"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// SQSAPI is the part of the SQS client used by [SQSSink].
type SQSAPI interface {
	SendMessageBatch(
		ctx context.Context, in *sqs.SendMessageBatchInput, opts ...func(*sqs.Options),
	) (*sqs.SendMessageBatchOutput, error)
}

const (
	sqsBatchSize     = 10 // SendMessageBatch limit
	sqsFlushInterval = time.Second
)

// AccessRecord is the message body sent for every served request.
type AccessRecord struct {
	Time       time.Time `json:"time"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Pattern    string    `json:"pattern,omitempty"`
	Status     int       `json:"status"`
	Fault      string    `json:"fault,omitempty"`
	Written    int64     `json:"written"`
	DurationMS float64   `json:"duration_ms"`
}

// SQSSink is an [mphttp.Logger] that ships access records to a queue in batches. Recording never
// blocks a request: when the buffer is full records are dropped and counted.
type SQSSink struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger

	records chan AccessRecord
	dropped atomic.Int64
	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

// NewSQSSink inits a sink buffering up to capacity records. Call Start before recording.
func NewSQSSink(client SQSAPI, queueURL string, logger *zap.Logger, capacity int) *SQSSink {
	return &SQSSink{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
		records:  make(chan AccessRecord, capacity),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// LogRequest implements [mphttp.Logger].
func (s *SQSSink) LogRequest(rec mphttp.RequestRecord) {
	ar := AccessRecord{
		Time:       time.Now().UTC(),
		Method:     string(rec.Method),
		Path:       rec.Path,
		Pattern:    rec.Pattern,
		Status:     rec.Status,
		Fault:      string(rec.Fault),
		Written:    rec.Written,
		DurationMS: float64(rec.Duration) / float64(time.Millisecond),
	}

	select {
	case <-s.stop:
		s.dropped.Add(1)
		return
	default:
	}

	select {
	case s.records <- ar:
	default:
		s.dropped.Add(1)
	}
}

// LogUnhandledServeError implements [mphttp.Logger]. Errors are not shipped.
func (s *SQSSink) LogUnhandledServeError(error) {}

// LogWriteError implements [mphttp.Logger]. Errors are not shipped.
func (s *SQSSink) LogWriteError(error) {}

// Dropped returns the number of records that were not shipped because the buffer was full or the
// sink was closed.
func (s *SQSSink) Dropped() int64 { return s.dropped.Load() }

// Start ships records in the background until Close is called.
func (s *SQSSink) Start() {
	go s.run()
}

// Close stops accepting records and waits for the buffered ones to be shipped.
func (s *SQSSink) Close(ctx context.Context) error {
	s.stopped.Do(func() { close(s.stop) })

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SQSSink) run() {
	defer close(s.done)

	ticker := time.NewTicker(sqsFlushInterval)
	defer ticker.Stop()

	batch := make([]AccessRecord, 0, sqsBatchSize)
	for {
		select {
		case ar := <-s.records:
			if batch = append(batch, ar); len(batch) == sqsBatchSize {
				batch = s.send(batch)
			}
		case <-ticker.C:
			batch = s.send(batch)
		case <-s.stop:
			for {
				select {
				case ar := <-s.records:
					if batch = append(batch, ar); len(batch) == sqsBatchSize {
						batch = s.send(batch)
					}
				default:
					s.send(batch)
					return
				}
			}
		}
	}
}

// send ships the batch and returns it emptied for reuse.
func (s *SQSSink) send(batch []AccessRecord) []AccessRecord {
	if len(batch) == 0 {
		return batch
	}

	entries := make([]types.SendMessageBatchRequestEntry, 0, len(batch))
	for i, ar := range batch {
		body, err := json.Marshal(ar)
		if err != nil {
			s.logger.Warn("failed to encode access record", zap.Error(err))
			continue
		}

		entries = append(entries, types.SendMessageBatchRequestEntry{
			Id:          aws.String(strconv.Itoa(i)),
			MessageBody: aws.String(string(body)),
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := s.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(s.queueURL),
		Entries:  entries,
	})

	switch {
	case err != nil:
		s.logger.Warn("failed to ship access records", zap.Error(err), zap.Int("records", len(entries)))
	case len(out.Failed) > 0:
		s.logger.Warn("queue rejected access records", zap.Int("records", len(out.Failed)))
	}

	return batch[:0]
}
