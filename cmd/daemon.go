package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/weiminghaoo/save-mi-doorbell-video/internal/config"
	"github.com/weiminghaoo/save-mi-doorbell-video/internal/sync"
)

var serviceAction string // "install", "uninstall", "start", "stop"

// program implements the kardianos/service interface
type program struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *sync.Metrics
	server  *http.Server
	exit    chan struct{}
}

func (p *program) Start(s service.Service) error {
	// Start should not block. Do the actual work async.
	p.exit = make(chan struct{})
	go p.run()
	return nil
}

func (p *program) run() {
	registry := prometheus.NewRegistry()
	p.metrics = sync.NewMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	p.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", p.cfg.MetricsPort),
		Handler: mux,
	}
	go func() {
		p.log.Info().Str("addr", p.server.Addr).Msg("metrics endpoint listening")
		if err := p.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.log.Error().Err(err).Msg("metrics server error")
		}
	}()

	interval := time.Duration(p.cfg.ScheduleMinutes) * time.Minute
	p.log.Info().Dur("interval", interval).Msg("sync scheduler started")

	// Run once immediately, then on the ticker. The loop itself is the
	// single-flight guard: a new cycle cannot start while one is running.
	p.cycle()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.cycle()
		case <-p.exit:
			return
		}
	}
}

func (p *program) cycle() {
	if _, err := runCycle(p.cfg, p.log, p.metrics, false); err != nil {
		// Auth failures are fatal for a one-shot run but a daemon retries on
		// the next tick; the cache was already cleared.
		p.log.Error().Err(err).Msg("sync cycle failed")
	}
}

func (p *program) Stop(s service.Service) error {
	// Stop should not block. Signal the app to stop.
	p.log.Info().Msg("stopping service")
	close(p.exit)
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.server.Shutdown(ctx); err != nil {
			p.log.Warn().Err(err).Msg("metrics server forced to shut down")
		}
	}
	return nil
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync on a schedule as a service",
	Long: `Runs the sync cycle on a fixed interval and exposes prometheus metrics.
Can be installed as a system service.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := mustLoadConfig()
		log := newLogger(cfg)

		svcConfig := &service.Config{
			Name:        "midoorbell-sync",
			DisplayName: "Mi Doorbell Video Sync",
			Description: "Downloads and archives Mi doorbell/lock event videos",
			Arguments:   []string{"daemon"},
		}
		if cfgFile != "" {
			svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgFile)
		}

		prg := &program{cfg: cfg, log: log}
		s, err := service.New(prg, svcConfig)
		if err != nil {
			log.Fatal().Err(err).Msg("creating service failed")
		}

		if serviceAction != "" {
			if err := service.Control(s, serviceAction); err != nil {
				log.Fatal().Err(err).Str("action", serviceAction).Msg("service control failed")
			}
			fmt.Printf("Service action '%s' completed successfully.\n", serviceAction)
			return
		}

		if err := s.Run(); err != nil {
			log.Error().Err(err).Msg("service run failed")
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().StringVar(&serviceAction, "service", "", "Service action: install, uninstall, start, stop")
}
