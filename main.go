package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/d1nch8g/audiod/config"
	"github.com/d1nch8g/audiod/decoder"
	"github.com/d1nch8g/audiod/engine"
	"github.com/d1nch8g/audiod/logging"
	"github.com/d1nch8g/audiod/server"
	"github.com/d1nch8g/audiod/sound"
)

const usage = `usage:
  audiod serve [flags]          run the playback service
  audiod ctl [flags] <command>  send one command to a running service

commands:
  play | pause | resume | stop | next | prev | clear | shutdown
  seek <ms> | open <path> | add <path>... | select <index> | suffixes
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing subcommand")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "serve":
		return serve(cfg, args[1:])
	case "ctl":
		return ctl(cfg, args[1:])
	case "help", "-h", "--help":
		fmt.Print(usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown subcommand %q", args[0])
	}
}

func serve(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "listen address")
	fs.StringVar(&cfg.Device, "device", cfg.Device, "output device name, \"null\" discards audio")
	fs.IntVar(&cfg.FrameCount, "frames", cfg.FrameCount, "number of frames in the playback pipeline")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve prometheus metrics on this address")
	pretty := fs.Bool("pretty", false, "human readable logs")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel, *pretty)

	registry := decoder.NewRegistry(decoder.NewMP3(), decoder.NewWAV())
	eng := engine.NewEngine(engine.EngineConfig{
		FrameCount: cfg.FrameCount,
		Device:     cfg.Device,
	}, registry, logger)
	defer func() {
		if err := eng.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("engine shutdown failed")
		}
	}()

	renderer := sound.New(cfg.Device, sound.Config{FramesPerBuffer: cfg.FramesPerBuffer})
	if err := eng.SetRenderer(renderer); err != nil {
		return fmt.Errorf("failed to attach renderer: %w", err)
	}

	srv := server.NewServer(server.Config{
		Addr:             cfg.Addr,
		ProgressInterval: cfg.ProgressInterval,
	}, eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info().
		Str("addr", cfg.Addr).
		Str("device", cfg.Device).
		Strs("suffixes", registry.Suffixes()).
		Msg("audiod starting")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// StopService ends Serve, take everything else down with it
		defer cancel()
		return srv.ListenAndServe(gctx)
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server listening")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}
