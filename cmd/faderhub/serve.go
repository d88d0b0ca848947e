package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/faderhub/faderhub/internal/config"
	"github.com/faderhub/faderhub/internal/hub"
	"github.com/faderhub/faderhub/internal/msglog"
	"github.com/faderhub/faderhub/internal/registry"
	"github.com/faderhub/faderhub/internal/sink"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synchronization hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
			if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
				zerolog.SetGlobalLevel(level)
			}
		}

		var presets map[int]registry.Preset
		if cfg.ChannelsFile != "" {
			var err error
			presets, err = config.LoadChannels(cfg.ChannelsFile)
			if err != nil {
				return errors.Wrap(err, "loading channel presets")
			}
			log.Info().Str("file", cfg.ChannelsFile).Int("channels", len(presets)).Msg("loaded channel presets")
		}
		reg, err := registry.New(presets)
		if err != nil {
			return errors.Wrap(err, "initializing channels")
		}

		bridge, err := net.ResolveUDPAddr("udp", net.JoinHostPort(cfg.BridgeHost, strconv.Itoa(cfg.BridgePort)))
		if err != nil {
			return errors.Wrap(err, "resolving bridge address")
		}
		transport, err := sink.NewUDPTransport()
		if err != nil {
			return errors.Wrap(err, "opening output transport")
		}
		dispatcher := sink.NewDispatcher(transport, bridge)
		go dispatcher.Run()

		h := hub.NewHub(reg, msglog.New(), dispatcher)
		srv := hub.NewServer(cfg, h)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Str("bridge", bridge.String()).Msg("output sink ready")
		runErr := srv.Run(ctx)
		if err := dispatcher.Close(); err != nil {
			log.Warn().Err(err).Msg("closing output sink")
		}
		return runErr
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 3000, "TCP port to listen on")
	rootCmd.AddCommand(serveCmd)
}
