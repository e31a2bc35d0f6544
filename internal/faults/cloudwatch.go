package faults

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"

	"github.com/imrishuroy/go-dispatch-pipeline/internal/aws"
	"github.com/imrishuroy/go-dispatch-pipeline/internal/pipeline"
)

// Metric names published to CloudWatch.
const (
	MetricDataLoss   = "DataLoss"
	MetricDeadLetter = "DeadLetter"
)

// CloudWatchReporter publishes a Count datapoint per fault so alarms can fire
// on lost work. Publish errors are logged and swallowed.
type CloudWatchReporter struct {
	Client    aws.CloudWatchAPI
	Namespace string
	Env       string
	Logger    *zap.Logger
	Timeout   time.Duration
}

// NewCloudWatchReporter returns a reporter with a short publish timeout.
func NewCloudWatchReporter(client aws.CloudWatchAPI, namespace, env string, logger *zap.Logger) *CloudWatchReporter {
	return &CloudWatchReporter{
		Client:    client,
		Namespace: namespace,
		Env:       env,
		Logger:    logger,
		Timeout:   2 * time.Second,
	}
}

func (r *CloudWatchReporter) ReportDataLoss(ctx context.Context, queueName string, o pipeline.Outcome, cause error) {
	r.publish(ctx, MetricDataLoss, queueName)
}

func (r *CloudWatchReporter) ReportDeadLetter(ctx context.Context, queueName string, messageID string, deliveries int, cause error) {
	r.publish(ctx, MetricDeadLetter, queueName)
}

func (r *CloudWatchReporter) publish(ctx context.Context, name, queueName string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.Timeout)
	defer cancel()

	_, err := r.Client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &r.Namespace,
		MetricData: []cwtypes.MetricDatum{{
			MetricName: &name,
			Unit:       cwtypes.StandardUnitCount,
			Value:      float64Ptr(1),
			Timestamp:  timePtr(time.Now()),
			Dimensions: []cwtypes.Dimension{
				{Name: strPtr("Environment"), Value: strPtr(r.Env)},
				{Name: strPtr("Queue"), Value: strPtr(queueName)},
			},
		}},
	})
	if err != nil {
		r.Logger.Warn("publish fault metric", zap.String("metric", name), zap.Error(err))
	}
}

func strPtr(s string) *string { return &s }
func float64Ptr(f float64) *float64 { return &f }
func timePtr(t time.Time) *time.Time { return &t }
