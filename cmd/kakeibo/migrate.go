package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ponpaku/ai-kakeibo-2/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long:  `Create the database if missing and bring its schema up to date.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Database is up to date: %s", cfg.DatabasePath)))
			return nil
		},
	}
}
