package main

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/userstore/internal/auth"
	"github.com/MarcoPoloResearchLab/userstore/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newSessionCommand(configViper *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Session token utilities for local testing",
	}
	mint := &cobra.Command{
		Use:   "mint <open-id>",
		Short: "Print a signed session token for the open id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(configViper)
			if err != nil {
				return err
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			issuer, err := auth.NewSessionIssuer(auth.SessionIssuerConfig{
				SigningSecret: []byte(appConfig.SessionSigningSecret),
				Issuer:        appConfig.SessionIssuer,
				TTL:           ttl,
			})
			if err != nil {
				return err
			}

			profile := auth.SessionProfile{OpenID: args[0]}
			if cmd.Flags().Changed("name") {
				name, _ := cmd.Flags().GetString("name")
				profile.Name = &name
			}
			if cmd.Flags().Changed("email") {
				email, _ := cmd.Flags().GetString("email")
				profile.Email = &email
			}
			if cmd.Flags().Changed("login-method") {
				method, _ := cmd.Flags().GetString("login-method")
				profile.LoginMethod = &method
			}

			token, _, err := issuer.Issue(profile)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	mint.Flags().String("name", "", "Display name claim")
	mint.Flags().String("email", "", "Email claim")
	mint.Flags().String("login-method", "", "Login method claim")
	mint.Flags().Duration("ttl", 0, "Token lifetime (default 24h)")
	cmd.AddCommand(mint)
	return cmd
}
