package main

import (
	"fmt"
	"runtime"

	"github.com/fgeck/wakehub/internal/services/shutdown"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without probing or contacting any host.`,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Print configuration summary
	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Summary:")
	fmt.Printf("  Listen: %s\n", cfg.Server.Listen)
	fmt.Printf("  Poll interval: %s\n", cfg.Timing.PollInterval)
	fmt.Printf("  Wake settle: %s\n", cfg.Timing.WakeSettle)
	fmt.Printf("  Shutdown settle: %s\n", cfg.Timing.ShutdownSettle)
	fmt.Printf("  Command timeout: %s\n", cfg.Timing.CommandTimeout)
	fmt.Printf("  Probe: %s (timeout %s)\n", cfg.Probe.Method, cfg.Timing.ProbeTimeout)
	fmt.Printf("  Broadcast: %s\n", cfg.WOL.BroadcastAddress)
	fmt.Printf("  Shutdown strategy: %s (%s)\n", shutdown.ResolveStrategy(cfg.Shutdown.Strategy, runtime.GOOS), cfg.Shutdown.Strategy)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Println()
	fmt.Printf("Hosts (%d):\n", len(cfg.Hosts))

	for _, h := range cfg.Hosts {
		secret := "no"
		if h.Credentials.HasSecret() {
			secret = "(configured)"
		}
		fmt.Printf("  %s\n", h.ID)
		fmt.Printf("    Name: %s\n", h.Name)
		fmt.Printf("    MAC: %s\n", h.MAC)
		fmt.Printf("    Address: %s\n", h.Address)
		fmt.Printf("    OS: %s\n", h.OS)
		fmt.Printf("    Username: %s\n", h.Credentials.Username)
		fmt.Printf("    Password: %s\n", secret)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}
