package dispatch

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"

	"github.com/kensaku-io/kensaku/internal/config"
	"github.com/kensaku-io/kensaku/internal/models"
)

// SQSClient is the slice of the SQS API the dispatcher uses.
type SQSClient interface {
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// Dispatcher sends discovered URLs to the crawl queue in bounded batches.
// One message per URL; the message body is the URL itself, and the
// downstream crawler fetches the page from it.
type Dispatcher struct {
	client    SQSClient
	queueURL  string
	batchSize int
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher for the given queue. batchSize is
// capped by the caller's queue backend limit (10 for SQS).
func NewDispatcher(client SQSClient, queueURL string, batchSize int, logger *zap.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		client:    client,
		queueURL:  queueURL,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Dispatch sends every URL to the queue. Each entry gets an ID unique across
// the whole dispatch, not just its batch. A failed batch send counts its
// whole batch as failed and does not block later batches. Returns how many
// were sent and how many failed; the queue being unconfigured is a
// configuration error returned before any send.
func (d *Dispatcher) Dispatch(ctx context.Context, urls []string) (models.DispatchResult, error) {
	var result models.DispatchResult
	if d.queueURL == "" {
		return result, config.ErrMissingQueueURL
	}

	for start := 0; start < len(urls); start += d.batchSize {
		end := start + d.batchSize
		if end > len(urls) {
			end = len(urls)
		}
		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, url := range urls[start:end] {
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(fmt.Sprintf("url-%d", start+i)),
				MessageBody: aws.String(url),
			})
		}

		out, err := d.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(d.queueURL),
			Entries:  entries,
		})
		if err != nil {
			// The whole batch is assumed lost when the call itself fails.
			result.Failed += len(entries)
			d.logger.Error("failed to send batch to queue", zap.Int("batch_size", len(entries)), zap.Error(err))
			continue
		}
		result.Sent += len(out.Successful)
		result.Failed += len(out.Failed)
		for _, f := range out.Failed {
			d.logger.Error("failed to send message to queue",
				zap.String("id", aws.ToString(f.Id)),
				zap.String("code", aws.ToString(f.Code)),
				zap.String("message", aws.ToString(f.Message)),
			)
		}
		d.logger.Info("sent batch to queue",
			zap.Int("sent", len(out.Successful)), zap.Int("failed", len(out.Failed)))
	}

	d.logger.Info("dispatch finished",
		zap.Int("sent", result.Sent), zap.Int("failed", result.Failed))
	return result, nil
}
