package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/aws"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// SQSQueue wraps an SQS client and a queue URL.
type SQSQueue struct {
	SQS      aws.SQSAPI
	QueueURL string

	// WaitTime is the long-poll duration of ReceiveBatch, in seconds (max 20).
	WaitTime int32
	// Visibility overrides the queue's visibility timeout when non-zero, in seconds.
	Visibility int32
}

// NewSQSQueue returns a queue bound to a queue URL.
func NewSQSQueue(sqsClient aws.SQSAPI, queueURL string, waitTime, visibility time.Duration) *SQSQueue {
	return &SQSQueue{
		SQS:        sqsClient,
		QueueURL:   queueURL,
		WaitTime:   int32(waitTime / time.Second),
		Visibility: int32(visibility / time.Second),
	}
}

// ResolveQueueURL looks a queue URL up by name.
func ResolveQueueURL(ctx context.Context, sqsClient aws.SQSAPI, name string) (string, error) {
	out, err := sqsClient.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: &name})
	if err != nil {
		return "", fmt.Errorf("get queue url %s: %w", name, err)
	}
	return *out.QueueUrl, nil
}

// Enqueue sends the outcome with its condition and request id as message
// attributes so consumers can filter without decoding the body.
func (q *SQSQueue) Enqueue(ctx context.Context, o pipeline.Outcome) (string, error) {
	body, err := encode(o)
	if err != nil {
		return "", err
	}
	return q.send(ctx, string(body), map[string]string{
		"condition":  o.RequestContext.Condition,
		"request_id": o.RequestContext.RequestID,
	})
}

func (q *SQSQueue) EnqueueRaw(ctx context.Context, body []byte) (string, error) {
	return q.send(ctx, string(body), nil)
}

func (q *SQSQueue) send(ctx context.Context, messageBody string, attributes map[string]string) (string, error) {
	input := &sqs.SendMessageInput{
		QueueUrl:    &q.QueueURL,
		MessageBody: &messageBody,
	}
	if len(attributes) > 0 {
		msgAttrs := map[string]sqstypes.MessageAttributeValue{}
		for k, v := range attributes {
			if v == "" {
				continue
			}
			// using string type for all attrs
			msgAttrs[k] = sqstypes.MessageAttributeValue{
				DataType:    awsString("String"),
				StringValue: awsString(v),
			}
		}
		input.MessageAttributes = msgAttrs
	}

	out, err := q.SQS.SendMessage(ctx, input)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if out.MessageId == nil {
		return "", nil
	}
	return *out.MessageId, nil
}

func (q *SQSQueue) ReceiveBatch(ctx context.Context, max int) ([]Item, error) {
	if err := checkBatch(max); err != nil {
		return nil, err
	}
	input := &sqs.ReceiveMessageInput{
		QueueUrl:            &q.QueueURL,
		MaxNumberOfMessages: int32(max),
		WaitTimeSeconds:     q.WaitTime,
		MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{
			sqstypes.MessageSystemAttributeNameApproximateReceiveCount,
			sqstypes.MessageSystemAttributeNameSentTimestamp,
		},
	}
	if q.Visibility > 0 {
		input.VisibilityTimeout = q.Visibility
	}

	out, err := q.SQS.ReceiveMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}

	items := make([]Item, 0, len(out.Messages))
	for _, m := range out.Messages {
		items = append(items, itemFromSQS(m))
	}
	return items, nil
}

func (q *SQSQueue) Acknowledge(ctx context.Context, ackToken string) error {
	_, err := q.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &q.QueueURL,
		ReceiptHandle: &ackToken,
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ReceiptHandleIsInvalid" {
			return fmt.Errorf("%w: %w", ErrUnknownReceipt, err)
		}
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func itemFromSQS(m sqstypes.Message) Item {
	it := Item{
		MessageID:     deref(m.MessageId),
		AckToken:      deref(m.ReceiptHandle),
		DeliveryCount: 1,
		Body:          []byte(deref(m.Body)),
	}
	it.DeliveryCount, it.EnqueuedAt = systemAttributes(m.Attributes)
	return it
}

// systemAttributes reads ApproximateReceiveCount and SentTimestamp, which
// both SQS receives and Lambda SQS events carry as strings.
func systemAttributes(attrs map[string]string) (int, time.Time) {
	count := 1
	if v, err := strconv.Atoi(attrs[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)]); err == nil && v > 0 {
		count = v
	}
	var sent time.Time
	if ms, err := strconv.ParseInt(attrs[string(sqstypes.MessageSystemAttributeNameSentTimestamp)], 10, 64); err == nil {
		sent = time.UnixMilli(ms).UTC()
	}
	return count, sent
}

// ItemFromEvent builds an Item from the fields of a Lambda SQS event record.
func ItemFromEvent(messageID, receiptHandle, body string, attrs map[string]string) Item {
	count, sent := systemAttributes(attrs)
	return Item{
		MessageID:     messageID,
		AckToken:      receiptHandle,
		DeliveryCount: count,
		EnqueuedAt:    sent,
		Body:          []byte(body),
	}
}

// IsPermanent reports errors that retrying cannot fix, such as a missing queue
// or a rejected request.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrBatchSize) {
		return true
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "AWS.SimpleQueueService.NonExistentQueue", "QueueDoesNotExist",
		"InvalidMessageContents", "AccessDenied", "AccessDeniedException":
		return true
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// awsString helper
func awsString(s string) *string { return &s }
