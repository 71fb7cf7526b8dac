package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var forceRelogin bool

// loginCmd represents the login command
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with the Mi account and cache the session",
	Long: `Logs in with the configured account, validates the session against the
cloud, and caches the credentials next to the video archive so subsequent
runs can skip the live login.

Example:
  midoorbell-cli login
  midoorbell-cli login --force   # ignore the cache and log in fresh`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		sess := newSession(cfg, log)
		cache := newCache(cfg, log)

		fmt.Printf("Authenticating as '%s'...\n", cfg.Username)
		if err := cache.Acquire(sess, cfg.Username, forceRelogin); err != nil {
			log.Error().Err(err).Msg("login failed")
			os.Exit(1)
		}
		fmt.Println("Session ready. You can now run 'midoorbell-cli sync'.")
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().BoolVar(&forceRelogin, "force", false, "Clear the cached session and log in fresh")
}
