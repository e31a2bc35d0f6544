package consumer

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/queue"
)

// HandleSQSEvent processes an event source mapping batch. Only failed items
// are reported back, so the rest of the batch is deleted by the service.
func (p *Poller) HandleSQSEvent(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	items := make([]queue.Item, 0, len(ev.Records))
	for _, rec := range ev.Records {
		items = append(items, queue.ItemFromEvent(rec.MessageId, rec.ReceiptHandle, rec.Body, rec.Attributes))
	}
	p.Logger.Info("received batch", zap.Int("records", len(items)))

	res := p.Processor.ProcessBatch(ctx, items)

	var resp events.SQSEventResponse
	for _, f := range res.Failed {
		if p.deadLetter(ctx, f) {
			continue
		}
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
			ItemIdentifier: f.Item.MessageID,
		})
	}
	return resp, nil
}
