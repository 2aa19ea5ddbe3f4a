//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"hie-gateway/internal/audit"
	"hie-gateway/internal/platform/kafka/producer"
	"hie-gateway/pkg/testutil/containers"
)

func TestKafkaStorePublishesLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	kc := containers.GetManager().GetKafka(t)
	topic := "hie.audit.it"
	require.NoError(t, kc.CreateTopic(ctx, topic))

	prod, err := producer.New(producer.DefaultConfig(kc.Brokers), nil)
	require.NoError(t, err)
	defer prod.Close()

	pub := audit.NewPublisher(audit.NewKafkaStore(prod, topic), audit.WithAsyncBuffer(16))
	require.NoError(t, pub.Emit(ctx, audit.Event{Action: audit.ActionTransferDelivered, TransferID: "req-it", From: "READY", To: "DELIVERED"}))
	pub.Close()

	consumer, err := kc.NewConsumer("audit-it", topic)
	require.NoError(t, err)
	defer consumer.Close()

	record := kc.WaitForRecord(ctx, consumer, 15*time.Second, func(r *kgo.Record) bool {
		return string(r.Key) == "req-it"
	})
	require.NotNil(t, record)

	var got audit.Event
	require.NoError(t, json.Unmarshal(record.Value, &got))
	require.Equal(t, audit.ActionTransferDelivered, got.Action)
	require.Equal(t, "DELIVERED", got.To)
}
