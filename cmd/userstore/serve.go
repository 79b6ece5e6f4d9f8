package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/userstore/internal/auth"
	"github.com/MarcoPoloResearchLab/userstore/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newServeCommand(configViper *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configViper)
		},
	}
	cmd.Flags().String("http-address", configViper.GetString("http.address"), "HTTP listen address")
	cmd.Flags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.Flags().StringSlice("allowed-origins", nil, "CORS origins allowed to send credentials")
	for key, flag := range map[string]string{
		"http.address":           "http-address",
		"session.signing_secret": "signing-secret",
		"http.allowed_origins":   "allowed-origins",
	} {
		if err := configViper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	return cmd
}

func runServer(ctx context.Context, configViper *viper.Viper) error {
	app, err := newApplication(configViper)
	if err != nil {
		return err
	}
	defer app.Close()

	if err := app.config.ValidateForServer(); err != nil {
		return err
	}
	if app.config.DatabaseURL == "" {
		app.logger.Warn("DATABASE_URL is not set; user operations will be no-ops until it is configured")
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(app.config.SessionSigningSecret),
		Issuer:        app.config.SessionIssuer,
		CookieName:    app.config.SessionCookieName,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		SessionValidator: sessionValidator,
		Users:            app.repository,
		Database:         app.provider,
		AllowedOrigins:   allowedOrigins(configViper),
		Logger:           app.logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              app.config.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server starting", zap.String("address", app.config.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		app.logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func allowedOrigins(configViper *viper.Viper) []string {
	origins := make([]string, 0)
	for _, origin := range configViper.GetStringSlice("http.allowed_origins") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
