package core

import (
	"time"
)

type Config struct {
	Spotify SpotifyConfig
	Tracker TrackerConfig
	Batch   BatchConfig
	Genre   GenreConfig
	Store   StoreConfig
	Server  ServerConfig
	Log     LogConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type TrackerConfig struct {
	// ScrobblePercent is the listened percentage at which a session
	// becomes scrobble-eligible.
	ScrobblePercent float64
	// SeekBackThresholdMs is the backward progress jump, in milliseconds,
	// beyond which a snapshot is treated as a seek/restart.
	SeekBackThresholdMs int
	// IdleSessionTimeout is how long an untouched session survives before
	// the cleanup pass drops it.
	IdleSessionTimeout time.Duration
}

type BatchConfig struct {
	PollInterval    time.Duration
	BatchSize       int
	UpstreamTimeout time.Duration
}

type GenreConfig struct {
	TTL time.Duration
	// HotCacheSize bounds the in-memory LRU in front of the durable rows.
	HotCacheSize int
}

type StoreConfig struct {
	Path string
	// DuplicateWindow is the look-back window for duplicate play suppression.
	DuplicateWindow time.Duration
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			RedirectURL: "http://localhost:8080/callback",
		},
		Tracker: TrackerConfig{
			ScrobblePercent:     50,
			SeekBackThresholdMs: 3000,
			IdleSessionTimeout:  2 * time.Hour,
		},
		Batch: BatchConfig{
			PollInterval:    30 * time.Second,
			BatchSize:       50,
			UpstreamTimeout: 10 * time.Second,
		},
		Genre: GenreConfig{
			TTL:          24 * time.Hour,
			HotCacheSize: 2048,
		},
		Store: StoreConfig{
			Path:            "./playlog.db",
			DuplicateWindow: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
