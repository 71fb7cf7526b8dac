package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/cloud"
	"github.com/weiminghaoo/save-mi-doorbell-video/internal/config"
	"github.com/weiminghaoo/save-mi-doorbell-video/internal/session"
)

var cfgFile string
var jsonOutput bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "midoorbell-cli",
	Short: "Download and archive Mi doorbell/lock videos from the cloud",
	Long: `Synchronizes event videos recorded by Mi smart doorbells and door locks:
discovers new events through the cloud API, downloads and decrypts the
encrypted HLS segments, merges them into playable files, and checkpoints
processed events so reruns never download the same video twice.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(func() { config.InitConfig(cfgFile) })

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.midoorbell-cli.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
}

// newLogger builds the structured logger injected into every component.
func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "01-02 15:04:05"}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// mustLoadConfig resolves configuration and creates the save path, exiting on
// misconfiguration.
func mustLoadConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(cfg.SavePath, 0o755); err != nil {
		fmt.Printf("Error: cannot create save path %s: %v\n", cfg.SavePath, err)
		os.Exit(1)
	}
	return cfg
}

// Both state files live inside the save path, next to the videos.
func cachePath(cfg config.Config) string { return filepath.Join(cfg.SavePath, "auth_cache.json") }
func dataPath(cfg config.Config) string  { return filepath.Join(cfg.SavePath, "data.json") }

func newSession(cfg config.Config, log zerolog.Logger) *cloud.MiCloud {
	return cloud.New(cloud.ClientConfig{
		Username: cfg.Username,
		Password: cfg.Password,
		Server:   cfg.Server,
		Timeout:  cfg.HTTPTimeout(),
	}, log)
}

func newCache(cfg config.Config, log zerolog.Logger) *session.Cache {
	return session.NewCache(cachePath(cfg), log)
}
