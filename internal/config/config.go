package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Server   string `mapstructure:"server"`

	SavePath        string `mapstructure:"save_path"`
	ScheduleMinutes int    `mapstructure:"schedule_minutes"`

	FFmpeg         string `mapstructure:"ffmpeg"`
	Merge          bool   `mapstructure:"merge"`
	CleanupTSFiles bool   `mapstructure:"cleanup_ts_files"`

	// CommitOnMergeFailure keeps an event checkpointed when its segments were
	// retrieved but the merge step failed. Off by default: the event retries
	// from scratch on the next cycle.
	CommitOnMergeFailure bool `mapstructure:"commit_on_merge_failure"`

	PageLimit          int `mapstructure:"page_limit"`
	MaxPages           int `mapstructure:"max_pages"`
	HTTPTimeoutSeconds int `mapstructure:"http_timeout_seconds"`

	MetricsPort int    `mapstructure:"metrics_port"`
	LogLevel    string `mapstructure:"log_level"`
}

// HTTPTimeout returns the configured network timeout.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".midoorbell-cli" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".midoorbell-cli")
	}

	viper.SetEnvPrefix("MI")
	viper.AutomaticEnv() // read in environment variables that match

	viper.SetDefault("server", "cn")
	viper.SetDefault("save_path", "./video")
	viper.SetDefault("schedule_minutes", 10)
	viper.SetDefault("ffmpeg", "ffmpeg")
	viper.SetDefault("merge", true)
	viper.SetDefault("cleanup_ts_files", true)
	viper.SetDefault("commit_on_merge_failure", false)
	viper.SetDefault("page_limit", 10)
	viper.SetDefault("max_pages", 100)
	viper.SetDefault("http_timeout_seconds", 30)
	viper.SetDefault("metrics_port", 9101)
	viper.SetDefault("log_level", "info")

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		// Config loaded successfully
	}
}

// Load resolves the active configuration.
func Load() (Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Username == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("username and password must be set (config file or MI_USERNAME/MI_PASSWORD)")
	}
	return cfg, nil
}
