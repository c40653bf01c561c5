// cmd/fleetwatch/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/signalnine/fleetwatch/internal/agent"
	"github.com/signalnine/fleetwatch/internal/checks"
	"github.com/signalnine/fleetwatch/internal/config"
	"github.com/signalnine/fleetwatch/internal/hostinfo"
	"github.com/signalnine/fleetwatch/internal/logging"
	"github.com/signalnine/fleetwatch/internal/server"
)

var version = "dev"

var (
	logLevel  string
	logPretty bool
	cfgPath   string
	envFile   string
	once      bool
	checkKind string
	params    string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "fleetwatch",
	Short:         "Endpoint compliance monitoring for a fleet of hosts",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
		return logging.Setup(logLevel, logPretty)
	},
}

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the endpoint agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadAgentConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := agent.New(cfg, version)
		if once {
			if err := a.Register(ctx); err != nil {
				return err
			}
			a.Tick(ctx)
			return nil
		}
		return a.Run(ctx)
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the central server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadServerConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.AdminToken == "" {
			log.Warn().Msg("FLEETWATCH_ADMIN_TOKEN not set; admin API is disabled")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := server.NewServer(cfg)
		if err != nil {
			return err
		}
		return s.Run(ctx)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Execute one check locally and print the outcome",
	Example: `  fleetwatch check --kind file_exists --params '{"path":"/etc/hosts"}'
  fleetwatch check --kind command_output --params '{"command":"uname","expected_pattern":"Linux"}'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if timeout < 0 {
			return fmt.Errorf("--timeout must be positive, got %s", timeout)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// zero selects the engine default
		engine := checks.NewEngine(hostinfo.New(), timeout)
		out := engine.Execute(ctx, checkKind, json.RawMessage(params))

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "human-readable console logs")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "file of KEY=value environment defaults")

	agentCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config")
	agentCmd.Flags().BoolVar(&once, "once", false, "register, run one cycle and exit")

	serverCmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config")

	checkCmd.Flags().StringVar(&checkKind, "kind", "", "check kind ("+kindList()+")")
	checkCmd.Flags().StringVar(&params, "params", "{}", "check parameters as JSON")
	checkCmd.Flags().DurationVar(&timeout, "timeout", 0, "command timeout (0 uses the 60s default)")
	_ = checkCmd.MarkFlagRequired("kind")

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
