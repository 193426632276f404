// Package main provides the playlog CLI application entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"playlog/internal/auth"
	"playlog/internal/batch"
	"playlog/internal/core"
	"playlog/internal/genre"
	httpserver "playlog/internal/http"
	"playlog/internal/scrobble"
	"playlog/internal/spotify"
	"playlog/internal/store"
	"playlog/internal/tracker"
)

// dedupExpectedPlays sizes the duplicate guard's bloom filter.
const dedupExpectedPlays = 100000

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "playlog",
	Short: "Playlog - Spotify listening history tracker",
	Long: `Playlog polls the Spotify playback state of opted-in users, detects when a
track has been listened to far enough to count as a play, and records the play
with genre metadata in a local history database.`,
	RunE: runPlaylog,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "OAuth redirect URL")
	rootCmd.PersistentFlags().String("db-path", "./playlog.db", "SQLite database path")
	rootCmd.PersistentFlags().Duration("poll-interval", 30*time.Second, "playback polling interval")
	rootCmd.PersistentFlags().Int("batch-size", 50, "users polled concurrently per batch")
	rootCmd.PersistentFlags().Duration("upstream-timeout", 10*time.Second, "per-user Spotify call timeout")
	rootCmd.PersistentFlags().Float64("scrobble-percent", 50, "listened percentage that counts as a play")
	rootCmd.PersistentFlags().Int("seek-back-threshold-ms", 3000, "backward progress jump treated as a seek")
	rootCmd.PersistentFlags().Duration("duplicate-window", 30*time.Second, "window for duplicate play suppression")
	rootCmd.PersistentFlags().Duration("genre-ttl", 24*time.Hour, "genre cache freshness window")
	rootCmd.PersistentFlags().Int("server-port", 8080, "HTTP server port")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
	}

	viper.SetEnvPrefix("PLAYLOG")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
			os.Exit(1)
		}
	}

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	cfg.Spotify.ClientID = viper.GetString("spotify-client-id")
	cfg.Spotify.ClientSecret = viper.GetString("spotify-client-secret")
	if url := viper.GetString("spotify-redirect-url"); url != "" {
		cfg.Spotify.RedirectURL = url
	}

	cfg.Store.Path = viper.GetString("db-path")
	cfg.Store.DuplicateWindow = viper.GetDuration("duplicate-window")

	cfg.Batch.PollInterval = viper.GetDuration("poll-interval")
	cfg.Batch.BatchSize = viper.GetInt("batch-size")
	cfg.Batch.UpstreamTimeout = viper.GetDuration("upstream-timeout")

	cfg.Tracker.ScrobblePercent = viper.GetFloat64("scrobble-percent")
	cfg.Tracker.SeekBackThresholdMs = viper.GetInt("seek-back-threshold-ms")

	cfg.Genre.TTL = viper.GetDuration("genre-ttl")

	cfg.Server.Port = viper.GetInt("server-port")
	if host := viper.GetString("server-host"); host != "" {
		cfg.Server.Host = host
	}

	cfg.Log.Level = viper.GetString("log-level")
	cfg.Log.Format = viper.GetString("log-format")

	return cfg
}

func buildLogger(cfg *core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if strings.ToLower(cfg.Format) == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

func runPlaylog(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("Starting playlog",
		zap.String("version", "1.0.0"),
		zap.Duration("poll_interval", config.Batch.PollInterval),
		zap.String("db_path", config.Store.Path))

	if err := validateConfig(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	db, err := store.Open(config.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	authService := auth.NewService(&config.Spotify, db, logger.Named("auth"))
	spotifyClient := spotify.NewClient(authService, logger.Named("spotify"))

	genreCache := genre.NewCache(db, spotifyClient, &config.Genre, logger.Named("genre"))
	guard := store.NewDuplicateGuard(db, config.Store.DuplicateWindow, dedupExpectedPlays, logger.Named("dedup"))
	recorder := scrobble.NewRecorder(db, genreCache, guard, logger.Named("scrobble"))

	trk := tracker.New(&config.Tracker, logger.Named("tracker"))

	httpServer := httpserver.NewServer(&config.Server, authService, db, logger.Named("http"))

	cycle := batch.NewCycle(
		&config.Batch,
		db,
		spotifyClient,
		trk,
		recorder,
		httpServer,
		logger.Named("batch"),
	)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return cycle.Run(gCtx)
	})

	logger.Info("Playlog started successfully",
		zap.String("http_addr", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)))

	if err := g.Wait(); err != nil {
		logger.Error("Playlog stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Playlog stopped gracefully")
	return nil
}

func validateConfig() error {
	if config.Spotify.ClientID == "" {
		return fmt.Errorf("spotify client ID is required")
	}

	if config.Spotify.ClientSecret == "" {
		return fmt.Errorf("spotify client secret is required")
	}

	if config.Batch.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	if config.Batch.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}

	if config.Tracker.ScrobblePercent <= 0 || config.Tracker.ScrobblePercent > 100 {
		return fmt.Errorf("scrobble percent must be in (0, 100]")
	}

	return nil
}
