package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/galleria/internal/auth"
	"github.com/MarcoPoloResearchLab/galleria/internal/config"
	"github.com/MarcoPoloResearchLab/galleria/internal/database"
	"github.com/MarcoPoloResearchLab/galleria/internal/images"
	"github.com/MarcoPoloResearchLab/galleria/internal/interactions"
	"github.com/MarcoPoloResearchLab/galleria/internal/logging"
	"github.com/MarcoPoloResearchLab/galleria/internal/server"
	"github.com/MarcoPoloResearchLab/galleria/internal/store"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	cfgFile string
)

func main() {
	config.LoadDotEnv(".env")

	rootCmd := &cobra.Command{
		Use:   "galleria-api",
		Short: "Galleria gallery and live reactions backend",
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

type flagBinding struct {
	key   string
	flag  string
	usage string
}

var stringFlags = []flagBinding{
	{key: "http.address", flag: "http-address", usage: "HTTP listen address"},
	{key: "database.path", flag: "database-path", usage: "SQLite database path"},
	{key: "log.level", flag: "log-level", usage: "Log level (debug, info, warn, error)"},
	{key: "unsplash.base_url", flag: "unsplash-base-url", usage: "Image API base URL"},
}

var intFlags = []flagBinding{
	{key: "unsplash.cache_ttl_seconds", flag: "unsplash-cache-ttl-seconds", usage: "Image metadata cache TTL in seconds"},
	{key: "writes.per_minute", flag: "writes-per-minute", usage: "Per-user write limit (0 disables)"},
}

// secretFlags have no default so an empty flag never shadows the environment.
var secretFlags = []flagBinding{
	{key: "unsplash.access_key", flag: "unsplash-access-key", usage: "Image API access key (overrides env)"},
	{key: "session.signing_secret", flag: "session-signing-secret", usage: "Session cookie signing secret (overrides env)"},
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	flags := cmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Path to configuration file")

	for _, binding := range stringFlags {
		flags.String(binding.flag, defaults.GetString(binding.key), binding.usage)
		bindFlag(cmd, binding)
	}
	for _, binding := range intFlags {
		flags.Int(binding.flag, defaults.GetInt(binding.key), binding.usage)
		bindFlag(cmd, binding)
	}
	for _, binding := range secretFlags {
		flags.String(binding.flag, "", binding.usage)
		bindFlag(cmd, binding)
	}

	origins := flagBinding{key: "http.allowed_origins", flag: "allowed-origins", usage: "Origins allowed for CORS and WebSocket (empty allows all)"}
	flags.StringSlice(origins.flag, nil, origins.usage)
	bindFlag(cmd, origins)

	secure := flagBinding{key: "session.secure_cookie", flag: "session-secure-cookie", usage: "Mark the session cookie Secure"}
	flags.Bool(secure.flag, defaults.GetBool(secure.key), secure.usage)
	bindFlag(cmd, secure)
}

func bindFlag(cmd *cobra.Command, binding flagBinding) {
	if err := viper.BindPFlag(binding.key, cmd.PersistentFlags().Lookup(binding.flag)); err != nil {
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

	imageClient, err := images.NewClient(images.ClientConfig{
		BaseURL:   appConfig.UnsplashBaseURL,
		AccessKey: appConfig.UnsplashAccessKey,
		Timeout:   appConfig.UnsplashTimeout,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	imageSource := images.NewCachingSource(imageClient, appConfig.UnsplashCacheTTL, time.Now)

	realtimeStore, err := store.New(store.Config{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	writer, err := interactions.NewWriter(interactions.WriterConfig{
		Store:      realtimeStore,
		Clock:      time.Now,
		IDProvider: interactions.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	reader, err := interactions.NewReader(realtimeStore)
	if err != nil {
		return err
	}
	live, err := interactions.NewLive(realtimeStore, logger)
	if err != nil {
		return err
	}

	sessions, err := auth.NewSessionManager(auth.SessionManagerConfig{
		SigningSecret: []byte(appConfig.SessionSigningSecret),
		CookieName:    appConfig.SessionCookieName,
		TTL:           appConfig.SessionTTL,
		Secure:        appConfig.SessionSecureCookie,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Images:          imageSource,
		Writer:          writer,
		Reader:          reader,
		Live:            live,
		Sessions:        sessions,
		AllowedOrigins:  appConfig.AllowedOrigins,
		WritesPerMinute: appConfig.WritesPerMinute,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server stopping")
		return httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
