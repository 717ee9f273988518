package notify

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"pawdesk/internal/types"
)

// Metric and dimension names published to CloudWatch.
const (
	metricDeliveryAttempt = "DeliveryAttempt"
	metricDeliveryLatency = "DeliveryLatency"
	dimChannel            = "Channel"
	dimResult             = "Result"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// Compile-time assertion that CloudWatchMetrics implements types.MetricsRecorder.
var _ types.MetricsRecorder = (*CloudWatchMetrics)(nil)

// CloudWatchMetrics publishes delivery metrics to CloudWatch. Failures are
// logged and swallowed: observability must never fail a dispatch.
//
// Metrics emitted per outcome:
//   - DeliveryAttempt (Count), dims {Channel, Result} where Result is
//     success, simulated, or failure
//   - DeliveryLatency (Milliseconds), dims {Channel}
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a recorder publishing to the given namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordDelivery implements types.MetricsRecorder.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, channel types.ChannelType, outcome types.DeliveryOutcome, latency time.Duration) {
	result := "failure"
	switch {
	case outcome.Simulated:
		result = "simulated"
	case outcome.Success:
		result = "success"
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(metricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimChannel), Value: aws.String(string(channel))},
					{Name: aws.String(dimResult), Value: aws.String(result)},
				},
			},
			{
				MetricName: aws.String(metricDeliveryLatency),
				Value:      aws.Float64(float64(latency.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{Name: aws.String(dimChannel), Value: aws.String(string(channel))},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"channel", string(channel),
			"result", result,
		)
	}
}

// NopMetrics is a MetricsRecorder that does nothing, used when metrics are
// disabled or in tests.
type NopMetrics struct{}

// RecordDelivery implements types.MetricsRecorder.
func (NopMetrics) RecordDelivery(context.Context, types.ChannelType, types.DeliveryOutcome, time.Duration) {
}
