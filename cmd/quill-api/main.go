package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"quill/internal/ai"
	"quill/internal/config"
	"quill/internal/database"
	"quill/internal/folderstore"
	"quill/internal/identity"
	"quill/internal/logging"
	"quill/internal/notestore"
	"quill/internal/remote"
	"quill/internal/server"
	"quill/internal/settings"
	"quill/internal/users"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "quill-api",
		Short: "Quill notes backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newTokenCommand mints a session token from the configured signing secret,
// for bootstrapping clients against a fresh instance.
func newTokenCommand() *cobra.Command {
	var userID, email, displayName string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token for a user",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := identity.NewTokenIssuer(identity.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				TokenTTL:      ttl,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueSessionToken(userID, email, displayName)
			if err != nil {
				return err
			}
			cmd.Printf("%s\n", token)
			cmd.PrintErrf("expires in %d seconds\n", expiresIn)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User identifier (required)")
	cmd.Flags().StringVar(&email, "email", "", "User email")
	cmd.Flags().StringVar(&displayName, "display-name", "", "User display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default 720h)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("auth-issuer", defaults.GetString("auth.issuer"), "Expected session token issuer")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("ai-base-url", defaults.GetString("ai.base_url"), "Generative backend base URL")
	cmd.PersistentFlags().String("ai-api-key", "", "Generative backend API key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.issuer", "auth-issuer")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "ai.base_url", "ai-base-url")
	bindFlag(cmd, "ai.api_key", "ai-api-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	remoteService, err := remote.NewSQLiteService(remote.SQLiteConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	session, err := identity.NewSessionProvider(identity.SessionProviderConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
	})
	if err != nil {
		return err
	}

	noteStore, err := notestore.NewStore(notestore.StoreConfig{
		Remote:     remoteService,
		Identity:   session,
		IDProvider: notestore.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	folderStore, err := folderstore.NewStore(folderstore.StoreConfig{
		Remote:     remoteService,
		Identity:   session,
		IDProvider: notestore.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var processor *notestore.Processor
	var chatClient server.ChatClient
	if appConfig.AIBaseURL != "" {
		aiClient, err := ai.NewClient(ai.Config{
			BaseURL: appConfig.AIBaseURL,
			APIKey:  appConfig.AIAPIKey,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		processor, err = notestore.NewProcessor(notestore.ProcessorConfig{
			Store:  noteStore,
			AI:     aiClient,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		chatClient = aiClient
	} else {
		logger.Warn("ai base url not configured; processing and chat endpoints disabled")
	}

	settingsRepo, err := settings.NewSQLiteRepository(db, nil)
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Session:   session,
		Notes:     noteStore,
		Folders:   folderStore,
		Processor: processor,
		Chat:      chatClient,
		Settings:  settingsRepo,
		Users:     userService,
		Realtime:  server.NewRealtimeDispatcher(),
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		noteStore.WaitForWrites()
		folderStore.WaitForWrites()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
