package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/8w6s/profile-api/internal/auth"
	"github.com/8w6s/profile-api/internal/config"
	"github.com/8w6s/profile-api/internal/document"
	"github.com/8w6s/profile-api/internal/integrations"
	"github.com/8w6s/profile-api/internal/logging"
	"github.com/8w6s/profile-api/internal/presence"
	"github.com/8w6s/profile-api/internal/profile"
	"github.com/8w6s/profile-api/internal/server"
	"github.com/8w6s/profile-api/internal/uploads"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "profile-api",
		Short: "Personal profile page backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("document-path", defaults.GetString("document.path"), "Profile document path")
	cmd.PersistentFlags().Bool("document-lock", defaults.GetBool("document.lock"), "Guard the document with a file lock")
	cmd.PersistentFlags().String("assets-dir", defaults.GetString("assets.dir"), "Directory for locally uploaded assets")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Admin token TTL in minutes")
	cmd.PersistentFlags().String("discord-user-id", defaults.GetString("discord.user_id"), "Discord user to mirror presence for")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("admin-password", "", "Admin password (overrides env)")
	cmd.PersistentFlags().String("signing-secret", "", "Admin token signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "document.path", "document-path")
	bindFlag(cmd, "document.lock", "document-lock")
	bindFlag(cmd, "assets.dir", "assets-dir")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "discord.user_id", "discord-user-id")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "admin.password", "admin-password")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	// .env is optional; explicit env vars and flags win over it.
	_ = godotenv.Load()

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

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	record, err := document.NewFile(document.FileConfig{
		Path:    appConfig.DocumentPath,
		UseLock: appConfig.DocumentLock,
	})
	if err != nil {
		return err
	}

	store, err := profile.NewStore(profile.StoreConfig{
		Record: record,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	var tokenManager *auth.TokenIssuer
	if appConfig.AdminPassword != "" {
		tokenManager, err = auth.NewTokenIssuer(auth.TokenIssuerConfig{
			SigningSecret: []byte(appConfig.AuthSigningKey),
			Issuer:        "profile-auth",
			Audience:      "profile-api",
			TokenTTL:      appConfig.TokenTTL,
		})
		if err != nil {
			return err
		}
	}

	integrationsClient := integrations.NewClient(integrations.ClientConfig{
		Logger: logger,
	})

	var presenceSource server.PresenceSource
	if appConfig.DiscordUserID != "" {
		presenceClient, err := presence.NewClient(presence.Config{
			UserID: appConfig.DiscordUserID,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		go presenceClient.Run(signalCtx)
		presenceSource = presenceClient
	}

	var uploadService *uploads.Service
	if appConfig.AssetsDir != "" {
		uploadService, err = uploads.NewService(uploads.ServiceConfig{
			AssetsDir: appConfig.AssetsDir,
			Logger:    logger,
		})
		if err != nil {
			return err
		}
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Store:         store,
		Tokens:        tokenManager,
		AdminPassword: appConfig.AdminPassword,
		Integrations:  integrationsClient,
		Presence:      presenceSource,
		Uploads:       uploadService,
		AssetsDir:     appConfig.AssetsDir,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
