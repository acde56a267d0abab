package adapters

import (
	"context"
	"encoding/json"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"

	"github.com/griffin-monitoring/griffin/internal/models"
)

// kinesisAPI is the subset of *kinesis.Client the adapter needs.
type kinesisAPI interface {
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

// Kinesis publishes each event in a batch as its own Kinesis record,
// partitioned by ExecutionID so all events for one execution land on the
// same shard and preserve their seq order for a downstream consumer.
type Kinesis struct {
	client     kinesisAPI
	streamName string
}

// NewKinesis loads the default AWS config for region and constructs a
// Kinesis adapter writing to streamName.
func NewKinesis(ctx context.Context, region, streamName string) (*Kinesis, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("adapters: loading AWS config: %w", err)
	}
	return &Kinesis{client: kinesis.NewFromConfig(cfg), streamName: streamName}, nil
}

func (k *Kinesis) Publish(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]types.PutRecordsRequestEntry, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("adapters: encoding event %s: %w", e.EventID, err)
		}
		partitionKey := e.ExecutionID
		records = append(records, types.PutRecordsRequestEntry{
			Data:         data,
			PartitionKey: &partitionKey,
		})
	}

	out, err := k.client.PutRecords(ctx, &kinesis.PutRecordsInput{
		StreamName: &k.streamName,
		Records:    records,
	})
	if err != nil {
		return fmt.Errorf("adapters: publishing to kinesis stream %q: %w", k.streamName, err)
	}
	if out.FailedRecordCount != nil && *out.FailedRecordCount > 0 {
		return fmt.Errorf("adapters: %d of %d records failed to publish to kinesis stream %q", *out.FailedRecordCount, len(records), k.streamName)
	}
	return nil
}
