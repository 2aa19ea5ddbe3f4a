package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hie-gateway/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Up(cmd.Context(), pool.DB())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show which migrations have been applied",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}
			pool, err := openDatabase(cmd.Context(), e.cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, files, err := migrations.Status(cmd.Context(), pool.DB())
			if err != nil {
				return err
			}
			for _, name := range files {
				state := "pending"
				if applied[name] {
					state = "applied"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", state, name)
			}
			return nil
		},
	})

	return cmd
}
