package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/userstore/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newUserCommand(configViper *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and update users",
	}
	cmd.AddCommand(newUserUpsertCommand(configViper), newUserGetCommand(configViper))
	return cmd
}

func newUserUpsertCommand(configViper *viper.Viper) *cobra.Command {
	var openID string
	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Insert or update a user; only flags that are set are written",
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := userInputFromFlags(cmd, openID)
			if err != nil {
				return err
			}

			app, err := newApplication(configViper)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.repository.Upsert(cmd.Context(), input); err != nil {
				return err
			}
			if !app.provider.Available(cmd.Context()) {
				fmt.Fprintln(cmd.OutOrStdout(), "database not available; nothing written")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %s\n", input.OpenID)
			return nil
		},
	}
	cmd.Flags().StringVar(&openID, "open-id", "", "External identity identifier (required)")
	cmd.Flags().String("name", "", "Display name")
	cmd.Flags().String("email", "", "Email address")
	cmd.Flags().String("login-method", "", "Identity provider used to sign in")
	cmd.Flags().String("role", "", "Role; defaults to admin for the owner identity")
	cmd.Flags().String("last-signed-in", "", "RFC 3339 sign-in time; defaults to now")
	return cmd
}

func userInputFromFlags(cmd *cobra.Command, openID string) (users.UserInput, error) {
	input := users.UserInput{OpenID: openID}
	optional := map[string]**string{
		"name":         &input.Name,
		"email":        &input.Email,
		"login-method": &input.LoginMethod,
		"role":         &input.Role,
	}
	for flag, target := range optional {
		if !cmd.Flags().Changed(flag) {
			continue
		}
		value, err := cmd.Flags().GetString(flag)
		if err != nil {
			return users.UserInput{}, err
		}
		*target = users.StringValue(value)
	}
	if cmd.Flags().Changed("last-signed-in") {
		raw, err := cmd.Flags().GetString("last-signed-in")
		if err != nil {
			return users.UserInput{}, err
		}
		signedIn, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return users.UserInput{}, fmt.Errorf("invalid --last-signed-in: %w", err)
		}
		input.LastSignedIn = &signedIn
	}
	return input, nil
}

func newUserGetCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "get <open-id>",
		Short: "Print a user as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication(configViper)
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.repository.GetByOpenID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if user == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "not found")
				return nil
			}
			encoded, err := json.MarshalIndent(user, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return nil
		},
	}
}
