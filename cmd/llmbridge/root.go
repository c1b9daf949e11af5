package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lizzyg/llmbridge"
	"github.com/lizzyg/llmbridge/internal/config"
)

var rootCmd = &cobra.Command{
	Use:               "llmbridge",
	Short:             "Talk to Gemini and Workers AI models from the command line",
	SilenceUsage:      true,
	PersistentPreRunE: setupBridge,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !dumpMetricsFlag || bridge == nil {
			return nil
		}
		return bridge.WriteMetrics(cmd.ErrOrStderr())
	},
}

var (
	configFlag      string
	modelFlag       string
	verboseFlag     bool
	metricsAddrFlag string
	dumpMetricsFlag bool

	bridge *llmbridge.Bridge
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "config file (default $LLM_CONFIG_PATH or ./config.yaml)")
	pf.StringVarP(&modelFlag, "model", "m", "", "configured model key (default: first key)")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "log requests at debug level")
	pf.StringVar(&metricsAddrFlag, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	pf.BoolVar(&dumpMetricsFlag, "dump-metrics", false, "print collected metrics to stderr when done")
}

func setupBridge(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var (
		cfg *config.LLMConfig
		err error
	)
	if configFlag != "" {
		cfg, err = config.LoadFrom(configFlag)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	bridge, err = llmbridge.New(*cfg, llmbridge.WithLogger(logger))
	if err != nil {
		return err
	}
	if metricsAddrFlag != "" {
		if err := serveMetrics(cmd.Context(), metricsAddrFlag, logger); err != nil {
			return err
		}
	}
	return nil
}

// serveMetrics listens on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", bridge.MetricsHandler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", slog.Any("error", err))
		}
	}()
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))
	return nil
}

// modelKey returns --model or the first configured key.
func modelKey() string {
	if modelFlag != "" {
		return modelFlag
	}
	if keys := bridge.ModelKeys(); len(keys) > 0 {
		return keys[0]
	}
	return ""
}

// promptArg joins args into a prompt. "-" or no args reads stdin.
func promptArg(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(b))
	if prompt == "" {
		return "", errors.New("no prompt provided")
	}
	return prompt, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
