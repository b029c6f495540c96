package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docmate-health/docmate/internal/reportcache"
	"github.com/docmate-health/docmate/internal/session"
	"github.com/docmate-health/docmate/pkg/client"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Store kinds
const (
	storeMemory = "memory"
	storeFile   = "file"
	storeRedis  = "redis"
)

// cliConfig is the resolved command line configuration
type cliConfig struct {
	APIURL    string
	UserID    string
	Store     string
	StorePath string
	RedisURL  string
	Timeout   time.Duration
	Verbose   bool
}

// app is shared by every subcommand once the root pre-run has resolved the
// configuration
type app struct {
	v      *viper.Viper
	cfg    cliConfig
	logger *zap.Logger
	api    *client.Client
	store  reportcache.Store
	closer io.Closer
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "docmate",
		Short:         "Check symptoms, analyze lab reports and track your health from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.String("api-url", "http://localhost:3000", "DocMate API base URL")
	flags.String("user", "", "user id the history and profile belong to")
	flags.String("store", storeFile, "local store: memory, file or redis")
	flags.String("store-path", "", "file store location (default: user config dir)")
	flags.String("redis-url", "", "Redis URL for the redis store")
	flags.Duration("timeout", client.DefaultTimeout, "request timeout")
	flags.BoolP("verbose", "v", false, "log requests to stderr")

	bindFlags(a.v, root)

	root.AddCommand(
		newHealthCmd(a),
		newCheckCmd(a),
		newAnalyzeCmd(a),
		newRemediesCmd(a),
		newChatCmd(a),
		newReportsCmd(a),
		newDashboardCmd(a),
		newInsightsCmd(a),
		newVitalsCmd(a),
		newProfileCmd(a),
	)
	return root
}

// bindFlags ties each persistent flag to its environment variable. The API
// URL also honors the VITE_API_URL used by the web client.
func bindFlags(v *viper.Viper, root *cobra.Command) {
	flags := root.PersistentFlags()
	_ = v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = v.BindPFlag("user", flags.Lookup("user"))
	_ = v.BindPFlag("store", flags.Lookup("store"))
	_ = v.BindPFlag("store_path", flags.Lookup("store-path"))
	_ = v.BindPFlag("redis_url", flags.Lookup("redis-url"))
	_ = v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = v.BindPFlag("verbose", flags.Lookup("verbose"))

	_ = v.BindEnv("api_url", "DOCMATE_API_URL", "VITE_API_URL")
	_ = v.BindEnv("user", "DOCMATE_USER")
	_ = v.BindEnv("store", "DOCMATE_STORE")
	_ = v.BindEnv("store_path", "DOCMATE_STORE_PATH")
	_ = v.BindEnv("redis_url", "REDIS_URL")
	_ = v.BindEnv("timeout", "DOCMATE_TIMEOUT")
}

// resolveConfig reads the merged flag and environment values
func resolveConfig(v *viper.Viper) (cliConfig, error) {
	cfg := cliConfig{
		APIURL:    strings.TrimSpace(v.GetString("api_url")),
		UserID:    strings.TrimSpace(v.GetString("user")),
		Store:     strings.ToLower(strings.TrimSpace(v.GetString("store"))),
		StorePath: v.GetString("store_path"),
		RedisURL:  v.GetString("redis_url"),
		Timeout:   v.GetDuration("timeout"),
		Verbose:   v.GetBool("verbose"),
	}

	if cfg.UserID == "" {
		cfg.UserID = defaultUserID()
	}

	switch cfg.Store {
	case storeMemory, storeFile:
	case storeRedis:
		if cfg.RedisURL == "" {
			return cfg, fmt.Errorf("redis store requires REDIS_URL or --redis-url")
		}
	default:
		return cfg, fmt.Errorf("unknown store %q", cfg.Store)
	}

	if cfg.Store == storeFile && cfg.StorePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return cfg, fmt.Errorf("failed to locate config dir: %w", err)
		}
		cfg.StorePath = filepath.Join(dir, "docmate", cfg.UserID+".json")
	}

	return cfg, nil
}

func defaultUserID() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}

func (a *app) init() error {
	_ = godotenv.Load()

	cfg, err := resolveConfig(a.v)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.logger = zap.NewNop()
	if cfg.Verbose {
		if a.logger, err = zap.NewDevelopment(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
	}

	a.api, err = client.New(client.Config{BaseURL: cfg.APIURL, Timeout: cfg.Timeout, Logger: a.logger})
	if err != nil {
		return err
	}

	a.store, a.closer, err = openStore(cfg)
	return err
}

func (a *app) close() error {
	_ = a.logger.Sync()
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

func openStore(cfg cliConfig) (reportcache.Store, io.Closer, error) {
	switch cfg.Store {
	case storeMemory:
		return reportcache.NewMemoryStore(), nil, nil
	case storeRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		return reportcache.NewRedisStore(rdb, "docmate:"+cfg.UserID+":"), rdb, nil
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.StorePath), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create store dir: %w", err)
		}
		return reportcache.NewFileStore(cfg.StorePath), nil, nil
	}
}

// session opens the user's session and pulls the stored profile so
// analyses are personalized
func (a *app) session(ctx context.Context, withProfile bool) (*session.Session, error) {
	s, err := session.New(a.cfg.UserID, a.api, a.store, a.logger)
	if err != nil {
		return nil, err
	}
	if withProfile {
		if _, err := s.LoadProfile(ctx); err != nil {
			// Profile storage is optional on the server.
			a.logger.Warn("continuing without stored profile", zap.Error(err))
		}
	}
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
