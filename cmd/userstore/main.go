package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/MarcoPoloResearchLab/userstore/internal/config"
	"github.com/MarcoPoloResearchLab/userstore/internal/database"
	"github.com/MarcoPoloResearchLab/userstore/internal/logging"
	"github.com/MarcoPoloResearchLab/userstore/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	configViper := config.NewViper()
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:           "userstore",
		Short:         "User directory keyed by external identity",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(configViper, cfgFile)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")
	flags.String("database-url", "", "Database connection string (overrides DATABASE_URL)")
	flags.String("owner-open-id", "", "Open id granted the admin role by default (overrides OWNER_OPEN_ID)")
	flags.String("log-level", configViper.GetString("log.level"), "Log level (debug, info, warn, error)")
	flags.Bool("log-queries", configViper.GetBool("database.log_queries"), "Log every SQL statement")

	bindFlag(configViper, rootCmd, config.KeyDatabaseURL, "database-url")
	bindFlag(configViper, rootCmd, config.KeyOwnerOpenID, "owner-open-id")
	bindFlag(configViper, rootCmd, "log.level", "log-level")
	bindFlag(configViper, rootCmd, "database.log_queries", "log-queries")

	rootCmd.AddCommand(
		newServeCommand(configViper),
		newUserCommand(configViper),
		newSchemaCommand(configViper),
		newSessionCommand(configViper),
	)
	return rootCmd
}

func bindFlag(configViper *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := configViper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig(configViper *viper.Viper, cfgFile string) error {
	if cfgFile == "" {
		return nil
	}
	configViper.SetConfigFile(cfgFile)
	if err := configViper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFound) {
			return err
		}
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

// application bundles the components shared by every subcommand.
type application struct {
	config     config.AppConfig
	logger     *zap.Logger
	provider   *database.Provider
	repository *users.Repository
}

func newApplication(configViper *viper.Viper) (*application, error) {
	appConfig, err := config.Load(configViper)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}
	provider := database.NewProvider(database.ProviderConfig{
		URL:        config.DatabaseURLSource(configViper),
		LogQueries: appConfig.DatabaseLogQueries,
		Logger:     logger,
	})
	repository, err := users.NewRepository(users.RepositoryConfig{
		Connections: provider,
		OwnerOpenID: appConfig.OwnerOpenID,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return &application{
		config:     appConfig,
		logger:     logger,
		provider:   provider,
		repository: repository,
	}, nil
}

func (a *application) Close() {
	if err := a.provider.Close(); err != nil {
		a.logger.Warn("failed to close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}
