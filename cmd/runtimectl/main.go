// Command runtimectl bootstraps a coordinator, registers a pair of
// demonstration subsystems, and exposes them through a small cobra command
// tree: serve, send, and inspect errors.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"submesh/internal/config"
	"submesh/internal/coordinator"
	"submesh/internal/logger"
	"submesh/internal/message"
	"submesh/internal/subsystem"
)

var (
	cfgFile string
	debug   bool
)

func main() {
	root := &cobra.Command{
		Use:   "runtimectl",
		Short: "Bootstraps and drives a submesh coordinator",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a TOML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.AddCommand(serveCmd(), sendCmd(), inspectCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() config.Configuration {
	cfg, err := config.Load(cfgFile, os.Environ(), nil)
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err)
	}
	cfg.Debug = cfg.Debug || debug
	return cfg
}

// bootstrapDemo registers two demonstration subsystems: a query-only
// "clock" and a command-driven "echo". Both attach the metrics facet so
// queue depth and handler errors are exercised end to end.
func bootstrapDemo(c *coordinator.Coordinator) {
	c.Bootstrap()
	c.Metrics.MustRegister(prometheus.DefaultRegisterer)

	clock := subsystem.New(subsystem.Config{Name: "clock", QueueCapacity: 32, ErrorSink: c.Kernel.Errors})
	_ = clock.Facets().Register(c.Metrics.Hook())
	_ = clock.Router().RegisterRoute("clock://query/now", func(p map[string]string) (any, error) {
		return time.Now().UTC().Format(time.RFC3339), nil
	}, nil, false)
	if _, err := c.RegisterSubsystem(clock, 1, 0); err != nil {
		logger.Fatal("failed to register clock subsystem", "error", err)
	}

	echo := subsystem.New(subsystem.Config{Name: "echo", QueueCapacity: 32, ErrorSink: c.Kernel.Errors})
	_ = echo.Facets().Register(c.Metrics.Hook())
	_ = echo.Router().RegisterRoute("echo://do/say/{word}", func(p map[string]string) (any, error) {
		logger.Info("echo", "word", p["word"])
		return p["word"], nil
	}, nil, false)
	if _, err := c.RegisterSubsystem(echo, 1, 0); err != nil {
		logger.Fatal("failed to register echo subsystem", "error", err)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Bootstrap the coordinator, register demonstration subsystems, and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			c := coordinator.New(cfg, nil)
			bootstrapDemo(c)
			c.StartScheduler()
			logger.Info("runtimectl serving", "strategy", cfg.SchedulingStrategy, "timeSliceMs", cfg.TimeSliceMs)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			<-sigCh

			c.StopScheduler()
			logger.Info("runtimectl shutting down")
			return c.Dispose()
		},
	}
}

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <path> [json-body]",
		Short: "Send one message against a fresh in-process demo registry and print the result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			c := coordinator.New(cfg, nil)
			bootstrapDemo(c)

			var body any
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &body); err != nil {
					return fmt.Errorf("runtimectl: invalid json body: %w", err)
				}
			}

			f := message.NewFactory()
			env, err := f.Create(args[0], body)
			if err != nil {
				return err
			}

			res := c.Send(env, nil)
			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect coordinator state",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "errors",
		Short: "Dump the error manager's bounded history as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			c := coordinator.New(cfg, nil)
			bootstrapDemo(c)

			out, err := json.MarshalIndent(c.Kernel.Errors.All(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	})
	return cmd
}
