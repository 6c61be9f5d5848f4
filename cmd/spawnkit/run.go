package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/kahiteam/spawnkit/config"
	"github.com/kahiteam/spawnkit/eventbus"
	"github.com/kahiteam/spawnkit/logging"
	"github.com/kahiteam/spawnkit/manager"
	"github.com/kahiteam/spawnkit/metrics"
	"github.com/kahiteam/spawnkit/process"
)

var (
	configFlag        string
	logLevelFlag      string
	logFormatFlag     string
	logFileFlag       string
	metricsListenFlag string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Supervise the processes declared in a config file",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configFlag, "config", "c", "", "config file path (required)")
	runCmd.Flags().StringVar(&logLevelFlag, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().StringVar(&logFormatFlag, "log-format", "json", "log format (json, text)")
	runCmd.Flags().StringVar(&logFileFlag, "log-file", "", "write logs to a file instead of stderr")
	runCmd.Flags().StringVar(&metricsListenFlag, "metrics-listen", "", "serve Prometheus metrics on this address (e.g. :9130)")
	_ = runCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	entries, warnings, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	if err := logging.ValidateLevel(logLevelFlag); err != nil {
		return err
	}
	logger, cleanup, err := logging.FileLogger(logLevelFlag, logFormatFlag, logFileFlag)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := metrics.New()
	if metricsListenFlag != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		go func() {
			if err := http.ListenAndServe(metricsListenFlag, mux); err != nil {
				logger.Error("metrics listener failed", "addr", metricsListenFlag, "error", err)
			}
		}()
	}

	mgr := manager.New(&process.ExecSpawner{},
		manager.WithLogger(logger),
		manager.WithMetrics(collector),
	)

	echoChildOutput(mgr, os.Stdout)

	if err := mgr.Start(); err != nil {
		return err
	}
	defer mgr.Stop()

	for _, e := range entries {
		if err := mgr.Load(e.Config, e.Autostart); err != nil {
			return fmt.Errorf("load %q: %w", e.Config.Name, err)
		}
		if !e.Autostart {
			if err := mgr.Commit(e.Config.Name, e.GracefulTimeout, nil); err != nil {
				return fmt.Errorf("commit %q: %w", e.Config.Name, err)
			}
		}
		logger.Info("process loaded", "name", e.Config.Name, "autostart", e.Autostart)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("signal received, shutting down")
	return nil
}

// echoChildOutput mirrors every captured child chunk to out, one
// "[name] line" per line, colorizing the prefix when out is a terminal.
func echoChildOutput(mgr *manager.Manager, out *os.File) {
	isTTY := term.IsTerminal(int(out.Fd()))
	mgr.Bus().Subscribe(process.Topic{"proc"}, func(topic eventbus.Topic, payload any) {
		rp, ok := payload.(process.ReadPayload)
		if !ok || rp.Data == nil {
			return
		}
		prefix := "[" + rp.Name + "]"
		if isTTY {
			prefix = "\x1b[36m" + prefix + "\x1b[0m"
		}
		for _, line := range strings.Split(strings.TrimRight(string(rp.Data), "\n"), "\n") {
			fmt.Fprintf(out, "%s %s\n", prefix, line)
		}
	}, false)
}
