package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the cached session",
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show session cache state",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		info, err := newCache(cfg, log).Inspect()
		if err != nil {
			fmt.Printf("Error reading cache: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(info)
			return
		}

		if !info.Present {
			fmt.Println("No cached session.")
			return
		}
		state := "valid"
		if info.Expired {
			state = "expired"
		}
		fmt.Printf("Cached session for '%s': %.1fh old (%s)\n", info.Username, info.AgeHours, state)
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the cached session",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		newCache(cfg, log).Invalidate()
		fmt.Println("Session cache cleared.")
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
