// Command theusctl is a reference host for the Theus engine: it loads a
// recipe file, constructs an Engine from it, and serves that engine's
// metrics and readiness endpoints. A real embedder links pkg/engine directly
// and calls Register with actual Go process functions; theusctl exists to
// validate a recipe file and to demonstrate the ambient-stack wiring a host
// is expected to do, the way the teacher's cmd/warren ties manager.NewManager
// to metrics/health HTTP endpoints.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/theus-run/theus/pkg/config"
	"github.com/theus-run/theus/pkg/engine"
	"github.com/theus-run/theus/pkg/health"
	"github.com/theus-run/theus/pkg/log"
	"github.com/theus-run/theus/pkg/metrics"
	"github.com/theus-run/theus/pkg/outbox"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "theusctl",
	Short:   "Operate a Theus recipe file: validate, run, or inspect",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("theusctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics on")
	runCmd.Flags().String("health-addr", "127.0.0.1:9091", "Address to serve /healthz on")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var validateCmd = &cobra.Command{
	Use:   "validate RECIPE",
	Short: "Load a recipe file and report what it would configure",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load recipe: %w", err)
		}

		fmt.Printf("Recipe %s is valid\n", args[0])
		fmt.Printf("  Strict guards: %v\n", cfg.StrictGuards)
		fmt.Printf("  Strict CAS:    %v\n", cfg.StrictCAS)
		fmt.Printf("  Pool size:     %d\n", cfg.PoolSize)
		fmt.Printf("  Max loops:     %d (0 means unbounded)\n", cfg.MaxLoops)
		fmt.Printf("  Namespaces:    %d\n", len(cfg.Namespaces))
		for _, ns := range cfg.Namespaces {
			fmt.Printf("    - %s\n", ns.Name)
		}
		fmt.Printf("  Process rules: %d\n", len(cfg.Processes))
		for name := range cfg.Processes {
			fmt.Printf("    - %s\n", name)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run RECIPE",
	Short: "Construct an engine from a recipe and serve its metrics/health endpoints",
	Long: `Builds an Engine from the recipe file and serves its Prometheus
metrics and readiness endpoints until interrupted. No processes are
registered — a reference host embeds pkg/engine directly and calls Register
with its own process functions before accepting traffic; this command only
proves the recipe loads and the ambient endpoints come up.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return fmt.Errorf("load recipe: %w", err)
		}

		eng, err := engine.New(nil, cfg)
		if err != nil {
			return fmt.Errorf("construct engine: %w", err)
		}

		eng.AttachWorker(func(msg outbox.Message) {
			log.Logger.Info().Str("topic", msg.Topic).Msg("outbox message delivered")
		})

		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		healthAddr, _ := cmd.Flags().GetString("health-addr")

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Errorf("metrics server error: %v", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/healthz", health.Handler(eng.HealthCheckers()...))
			if err := http.ListenAndServe(healthAddr, mux); err != nil {
				log.Errorf("health server error: %v", err)
			}
		}()
		fmt.Printf("✓ Health endpoint:  http://%s/healthz\n", healthAddr)

		fmt.Println("Engine is running with no processes registered. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nShutting down...")
		delivered := eng.ProcessOutbox()
		fmt.Printf("✓ Drained %d outbox message(s)\n", delivered)
		return nil
	},
}
