package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"hie-gateway/internal/platform/redis"
	"hie-gateway/internal/transfer/models"
	"hie-gateway/internal/transfer/scheduler"
	"hie-gateway/internal/transfer/service"
	"hie-gateway/internal/transfer/store"
	id "hie-gateway/pkg/domain"
)

type transferView struct {
	ID              id.TransferID `json:"requestId"`
	ConsentID       id.ConsentID  `json:"consentId"`
	SubjectID       id.SubjectID  `json:"subjectId"`
	HolderID        id.EntityID   `json:"hipId"`
	RequesterID     id.EntityID   `json:"hiuId"`
	Status          models.Status `json:"status"`
	DataStored      bool          `json:"dataStored"`
	ItemCount       int           `json:"itemCount"`
	ReceivedCount   int           `json:"receivedCount"`
	RetryCount      int           `json:"retryCount"`
	MaxRetries      int           `json:"maxRetries"`
	WebhookAttempts int           `json:"webhookAttempts"`
	ForwardAttempts int           `json:"forwardAttempts"`
	LastError       *string       `json:"lastError,omitempty"`
	NextActionAt    time.Time     `json:"nextActionAt"`
	ExpiresAt       time.Time     `json:"expiresAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Version         int64         `json:"version"`
}

func viewOf(t *models.Transfer) transferView {
	return transferView{
		ID:              t.ID,
		ConsentID:       t.ConsentID,
		SubjectID:       t.SubjectID,
		HolderID:        t.SourceID,
		RequesterID:     t.DestinationID,
		Status:          t.Status,
		DataStored:      t.HasPayload(),
		ItemCount:       t.ItemCount,
		ReceivedCount:   t.ReceivedCount,
		RetryCount:      t.RetryCount,
		MaxRetries:      t.MaxRetries,
		WebhookAttempts: t.WebhookAttempts,
		ForwardAttempts: t.ForwardAttempts,
		LastError:       t.LastError,
		NextActionAt:    t.NextActionAt,
		ExpiresAt:       t.ExpiresAt,
		UpdatedAt:       t.UpdatedAt,
		Version:         t.Version,
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <transfer-id>",
		Short: "Print a transfer's delivery state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transferID, err := id.ParseTransferID(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			t, err := store.NewPostgres(pool.DB()).Get(cmd.Context(), transferID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), viewOf(t))
		},
	}
}

func redriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redrive <transfer-id>",
		Short: "Give a FAILED transfer a fresh retry budget",
		Long: "Redrive resets a FAILED transfer's retry count and makes it due now. " +
			"When REDIS_URL is set the running gateways are kicked to pick it up immediately.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			transferID, err := id.ParseTransferID(args[0])
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			pool, err := openDatabase(ctx, e.cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			kicker := &remoteKicker{logger: e.logger}
			rc, err := redis.New(ctx, e.cfg.Redis, nil)
			if err != nil {
				return err
			}
			if rc != nil {
				defer rc.Close()
				kicker.bus = scheduler.NewRedisKickBus(rc.Client, e.cfg.Redis.KickChannel)
			}

			svc := service.New(store.NewPostgres(pool.DB()), nil, nil, kicker, e.logger)
			t, err := svc.Redrive(ctx, transferID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), viewOf(t))
		},
	}
}

var errNoLocalScheduler = errors.New("hiectl has no local scheduler")

// remoteKicker forwards kicks to running gateways over Redis.
type remoteKicker struct {
	bus    scheduler.KickBus
	logger *slog.Logger
}

func (k *remoteKicker) ProcessOne(context.Context, id.TransferID) (scheduler.Outcome, error) {
	return scheduler.OutcomeError, errNoLocalScheduler
}

func (k *remoteKicker) Kick(ctx context.Context) {
	if k.bus == nil {
		return
	}
	if err := k.bus.Publish(ctx); err != nil {
		k.logger.WarnContext(ctx, "failed to kick gateways", "error", err)
	}
}
