package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List account devices",
	Long:  `Lists every device on the account and marks which ones this tool can sync video from.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		sess := newSession(cfg, log)
		cache := newCache(cfg, log)
		if err := cache.Acquire(sess, cfg.Username, false); err != nil {
			log.Error().Err(err).Msg("login failed")
			os.Exit(1)
		}

		devices, err := sess.ListDevices()
		if err != nil {
			fmt.Printf("Error listing devices: %v\n", err)
			os.Exit(1)
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(devices); err != nil {
				fmt.Printf("Error encoding JSON: %v\n", err)
				os.Exit(1)
			}
			return
		}

		if len(devices) == 0 {
			fmt.Println("No devices found on this account.")
			return
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODEL\tDID\tKIND")
		fmt.Fprintln(w, "----\t-----\t---\t----")
		for _, d := range devices {
			kind := d.Kind()
			if kind == "" {
				kind = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Name, d.Model, d.DID, kind)
		}
		w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(devicesCmd)
}
