package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/userstore/internal/database"
	"github.com/MarcoPoloResearchLab/userstore/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const migrationCreateUsers = "2026-10-19_create_users"

func schemaMigrations() []database.Migration {
	return []database.Migration{
		database.AutoMigrateStep(migrationCreateUsers, &users.User{}),
	}
}

func newSchemaCommand(configViper *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage the users table for local databases",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create or update the users table",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(configViper)
			if err != nil {
				return err
			}
			defer app.Close()

			db, err := app.provider.Acquire(cmd.Context())
			if err != nil {
				return err
			}
			applied, err := database.ApplyMigrations(db, app.logger, schemaMigrations())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", len(applied))
			return nil
		},
	})
	return cmd
}
