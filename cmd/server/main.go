// server runs the ignition gate: camera capture, safety detection, ignition
// decisions and the web dashboard.
//
// Usage:
//
//	server serve [--env-file=<path>] [--config=<path>]
//	server check [--env-file=<path>] [--config=<path>]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ignitiongate/internal/app"
	"ignitiongate/internal/config"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	envFile    string
	configFile string
}

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Camera-gated vehicle ignition controller",
	Long:  "Ignition gate allows a vehicle to start only while the camera confirms\nthe safety condition, and records every decision in an audit log.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server and the detection pipeline",
	RunE:  runServe,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print the effective settings",
	RunE:  runCheck,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.envFile, "env-file", "", "Path to a .env file (default ./.env when present)")
	f.StringVar(&rootFlags.configFile, "config", "", "Path to a YAML config file (default $CONFIG_FILE)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.Version = version
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.envFile, rootFlags.configFile)
	if err != nil {
		return err
	}

	application, err := app.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return application.Run(ctx)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(rootFlags.envFile, rootFlags.configFile)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Port:      %d\n", cfg.Port)
	fmt.Fprintf(out, "Camera:    %s %d (fallback %d) %dx%d@%d\n", cfg.CameraSource, cfg.CameraID, cfg.CameraFallbackID, cfg.FrameWidth, cfg.FrameHeight, cfg.CaptureFPS)
	fmt.Fprintf(out, "Detector:  %s (min score %.2f)\n", cfg.DetectorBackend, cfg.DetectionMinScore)
	fmt.Fprintf(out, "Threshold: %.2f\n", cfg.IgnitionThreshold)
	fmt.Fprintf(out, "Audit:     %s %s\n", cfg.AuditBackend, cfg.AuditPath)
	if cfg.MQTTBroker != "" {
		fmt.Fprintf(out, "MQTT:      %s -> %s\n", cfg.MQTTBroker, cfg.MQTTTopic)
	}
	if cfg.EvidenceDirectory != "" {
		fmt.Fprintf(out, "Evidence:  %s\n", cfg.EvidenceDirectory)
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
