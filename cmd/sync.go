package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/config"
	"github.com/weiminghaoo/save-mi-doorbell-video/internal/sync"
	"github.com/weiminghaoo/save-mi-doorbell-video/pkg/models"
)

var syncForce bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle",
	Long: `Discovers new device events from the last 24 hours, downloads and
decrypts their video, optionally merges the segments into a single file, and
records processed events so the next run skips them.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		metrics := sync.NewMetrics(nil)
		if _, err := runCycle(cfg, log, metrics, syncForce); err != nil {
			log.Error().Err(err).Msg("sync failed")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncForce, "force-login", false, "Ignore the session cache and log in fresh")
}

// runCycle establishes a session, discovers supported devices and runs the
// pipeline once. Shared between the sync command and the daemon.
func runCycle(cfg config.Config, log zerolog.Logger, metrics *sync.Metrics, forceLogin bool) (sync.Summary, error) {
	sess := newSession(cfg, log)
	cache := newCache(cfg, log)
	if err := cache.Acquire(sess, cfg.Username, forceLogin); err != nil {
		return sync.Summary{}, err
	}

	devices, err := sess.ListDevices()
	if err != nil {
		return sync.Summary{}, fmt.Errorf("device discovery: %w", err)
	}
	log.Info().Int("devices", len(devices)).Msg("account devices fetched")

	supported := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		if d.Supported() {
			log.Info().Str("name", d.Name).Str("model", d.Model).Str("kind", d.Kind()).
				Msg("matched supported device")
			supported = append(supported, d)
		}
	}
	if len(supported) == 0 {
		return sync.Summary{}, unsupportedAccountError(devices)
	}

	store := sync.NewStore(dataPath(cfg), log)
	ids := make([]string, len(supported))
	for i, d := range supported {
		ids[i] = d.DID
	}
	if err := store.Load(ids); err != nil {
		return sync.Summary{}, err
	}
	primary := supported[0]
	store.SetDeviceInfo(sync.DeviceInfo{
		Name:  primary.Name,
		DID:   primary.DID,
		Model: primary.Model,
		Type:  primary.Kind(),
	})

	driver := &sync.Driver{
		Source:               sync.NewEventSource(sess, cfg.Server, cfg.PageLimit, cfg.MaxPages, log),
		Store:                store,
		Retriever:            sync.NewRetriever(sess, log),
		Allocator:            sync.NewAllocator(cfg.SavePath),
		Merger:               sync.NewMerger(cfg.FFmpeg, cfg.CleanupTSFiles, log),
		Metrics:              metrics,
		Log:                  log,
		MergeEnabled:         cfg.Merge && cfg.FFmpeg != "",
		CommitOnMergeFailure: cfg.CommitOnMergeFailure,
	}
	return driver.Run(supported), nil
}

// unsupportedAccountError builds the hard configuration error shown when no
// supported device exists, listing what was found instead.
func unsupportedAccountError(devices []models.Device) error {
	msg := "no supported device (doorbell/lock) found on this account\nDetected devices:\n"
	for _, d := range devices {
		msg += fmt.Sprintf("  %s (%s)\n", d.Name, d.Model)
	}
	msg += "Supported device families:\n" +
		"  - smart doorbells: madv.cateye.*\n" +
		"  - smart locks: xiaomi.lock.*"
	return fmt.Errorf("%s", msg)
}
