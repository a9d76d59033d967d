package main

import (
	"fmt"

	"github.com/fgeck/wakehub/internal/models"
	"github.com/fgeck/wakehub/internal/registry"
	"github.com/fgeck/wakehub/internal/services/shutdown"
	"github.com/fgeck/wakehub/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeCmd = &cobra.Command{
	Use:   "wake <host-id>",
	Short: "Send a magic packet to one host and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runWake,
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown <host-id>",
	Short: "Shut down one host and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runShutdown,
}

func lookupHost(cmd *cobra.Command, id string) (*models.AppConfig, models.Host, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, models.Host{}, err
	}

	reg, err := registry.New(cfg.Hosts)
	if err != nil {
		return nil, models.Host{}, err
	}

	host, err := reg.Host(id)
	if err != nil {
		log.Error().Err(err).Str("host", id).Msg("unknown host")
		return nil, models.Host{}, err
	}

	return cfg, host, nil
}

func runWake(cmd *cobra.Command, args []string) error {
	cfg, host, err := lookupHost(cmd, args[0])
	if err != nil {
		return err
	}

	result, err := wol.New(log.Logger, cfg.WOL).Wake(cmd.Context(), host.MAC)
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Str("host", host.ID).Msg("wake failed")
		return result.Error
	}

	fmt.Printf("Magic packet sent to %s (%s) via %s\n", host.ID, host.MAC, result.Broadcast)
	return nil
}

func runShutdown(cmd *cobra.Command, args []string) error {
	cfg, host, err := lookupHost(cmd, args[0])
	if err != nil {
		return err
	}

	dispatcher := shutdown.New(log.Logger, cfg.Shutdown, cfg.Timing.CommandTimeout)
	result, _ := dispatcher.Shutdown(cmd.Context(), host)
	if result.Error != nil {
		log.Error().Err(result.Error).Str("host", host.ID).Str("strategy", result.Strategy).Msg("shutdown failed")
		return result.Error
	}

	fmt.Printf("Shutdown command sent to %s via %s\n", host.ID, result.Strategy)
	return nil
}
