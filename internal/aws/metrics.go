package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric names emitted by the purchase workflow.
const (
	MetricIntentsWithoutRecord  = "IntentsWithoutRecord"
	MetricProvisioningFailures  = "ProvisioningFailures"
	MetricPurchasesUnreconciled = "PurchasesUnreconciled"
	MetricRefundFailures        = "RefundFailures"
	MetricRefundsIssued         = "RefundsIssued"
	MetricPurchasesCompleted    = "PurchasesCompleted"
)

// Metrics publishes single-count datapoints to CloudWatch.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics emitter for namespace.
func NewMetrics(client CloudWatchAPI, namespace string) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Count records one occurrence of name. dimensions are optional name/value pairs.
func (m *Metrics) Count(ctx context.Context, name string, dimensions map[string]string) error {
	datum := cwtypes.MetricDatum{
		MetricName: awsString(name),
		Timestamp:  timePtr(m.nowFunc()),
		Unit:       cwtypes.StandardUnitCount,
		Value:      float64Ptr(1),
	}
	for k, v := range dimensions {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
			Name:  awsString(k),
			Value: awsString(v),
		})
	}

	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  awsString(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		return fmt.Errorf("put metric %s: %w", name, err)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

func float64Ptr(f float64) *float64 { return &f }
