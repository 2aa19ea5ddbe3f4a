package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"hie-gateway/internal/audit"
)

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the Kafka audit trail",
	}
	cmd.AddCommand(auditTailCmd())
	cmd.AddCommand(auditEnsureTopicCmd())
	return cmd
}

func kafkaClient(brokers string, opts ...kgo.Opt) (*kgo.Client, error) {
	var seeds []string
	for b := range strings.SplitSeq(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			seeds = append(seeds, b)
		}
	}
	if len(seeds) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	return kgo.NewClient(append([]kgo.Opt{kgo.SeedBrokers(seeds...)}, opts...)...)
}

func auditTailCmd() *cobra.Command {
	var (
		transferFilter string
		fromStart      bool
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream audit events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := loadEnv()
			if err != nil {
				return err
			}

			offset := kgo.NewOffset().AtEnd()
			if fromStart {
				offset = kgo.NewOffset().AtStart()
			}
			client, err := kafkaClient(e.cfg.Kafka.Brokers,
				kgo.ConsumeTopics(e.cfg.Kafka.AuditTopic),
				kgo.ConsumeResetOffset(offset),
			)
			if err != nil {
				return err
			}
			defer client.Close()

			out := json.NewEncoder(cmd.OutOrStdout())
			for {
				fetches := client.PollFetches(ctx)
				if ctx.Err() != nil {
					return nil
				}
				fetches.EachError(func(topic string, partition int32, err error) {
					e.logger.WarnContext(ctx, "fetch failed", "topic", topic, "partition", partition, "error", err)
				})

				var encErr error
				fetches.EachRecord(func(r *kgo.Record) {
					if encErr != nil {
						return
					}
					if transferFilter != "" && string(r.Key) != transferFilter {
						return
					}
					var event audit.Event
					if err := json.Unmarshal(r.Value, &event); err != nil {
						e.logger.WarnContext(ctx, "skipping undecodable audit record",
							"partition", r.Partition, "offset", r.Offset, "error", err)
						return
					}
					encErr = out.Encode(event)
				})
				if encErr != nil {
					return encErr
				}
			}
		},
	}

	cmd.Flags().StringVar(&transferFilter, "transfer", "", "only show events for this transfer id")
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the topic from the earliest offset")
	return cmd
}

func auditEnsureTopicCmd() *cobra.Command {
	var (
		partitions  int32
		replication int16
	)

	cmd := &cobra.Command{
		Use:   "ensure-topic",
		Short: "Create the audit topic if it does not exist",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			e, err := loadEnv()
			if err != nil {
				return err
			}
			client, err := kafkaClient(e.cfg.Kafka.Brokers)
			if err != nil {
				return err
			}
			defer client.Close()

			topic := e.cfg.Kafka.AuditTopic
			resp, err := kadm.NewClient(client).CreateTopic(ctx, partitions, replication, nil, topic)
			if err != nil {
				return fmt.Errorf("create topic %s: %w", topic, err)
			}
			switch {
			case resp.Err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "created %s (%d partitions)\n", topic, resp.NumPartitions)
			case errors.Is(resp.Err, kerr.TopicAlreadyExists):
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", topic)
			default:
				return fmt.Errorf("create topic %s: %w", topic, resp.Err)
			}
			return nil
		},
	}

	cmd.Flags().Int32Var(&partitions, "partitions", 3, "partition count for a new topic")
	cmd.Flags().Int16Var(&replication, "replication", 1, "replication factor for a new topic")
	return cmd
}
