package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hie-gateway/internal/transfer/dispatch"
	id "hie-gateway/pkg/domain"
	"hie-gateway/pkg/secrets"
)

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token <entity-id> <transfer-id>",
		Short: "Mint a webhook bearer token for testing a receiver",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := id.ParseEntityID(args[0])
			if err != nil {
				return err
			}
			transferID, err := id.ParseTransferID(args[1])
			if err != nil {
				return err
			}
			e, err := loadEnv()
			if err != nil {
				return err
			}
			signer, err := dispatch.NewSigner([]byte(e.cfg.WebhookSecret), nil)
			if err != nil {
				return err
			}
			token, err := signer.Sign(entity, transferID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func secretCmd() *cobra.Command {
	var size int
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Generate a random value for HIE_PAYLOAD_KEY, HIE_WEBHOOK_SECRET or HIE_ADMIN_TOKEN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := secrets.Generate(size)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().IntVar(&size, "bytes", secrets.DefaultSize, "random bytes before encoding")
	return cmd
}
