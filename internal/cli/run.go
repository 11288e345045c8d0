package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/harun/turnstream/internal/logger"
	"github.com/harun/turnstream/internal/observability"
	"github.com/harun/turnstream/internal/tracing"
	"github.com/harun/turnstream/pkg/agent"
	"github.com/harun/turnstream/pkg/modelclient"
	"github.com/harun/turnstream/pkg/protocol"
	"github.com/harun/turnstream/pkg/toolexecutor"
)

var (
	runJSON        bool
	runVerbose     bool
	runModel       string
	runMetricsAddr string
	runAuditLog    string
)

var runCmd = &cobra.Command{
	Use:   "run <prompt>",
	Short: "Run a conversation for a single prompt",
	Long: `Send the prompt to the configured model, run the tool calls it makes with
the built-in echo and time tools (plus the MCP bridge when configured) and
print every notification until the model answers without calling a tool.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print notifications as JSON lines")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "print reasoning summaries and token counts")
	runCmd.Flags().StringVar(&runModel, "model", "", "override the configured model")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	runCmd.Flags().StringVar(&runAuditLog, "audit-log", "", "append audit events to this file instead of stderr")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return fmt.Errorf("prompt cannot be empty")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if runModel != "" {
		cfg.Provider.Model = runModel
	}

	cfg.Logging.Output = cmd.ErrOrStderr()
	logs, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logs.Close()

	if runAuditLog != "" {
		if err := observability.InitAuditLogger(runAuditLog); err != nil {
			return fmt.Errorf("failed to open audit log: %w", err)
		}
		defer observability.GetAuditLogger().Close()
	}

	if err := tracing.InitOpenTelemetry("turnstream"); err != nil {
		logs.Warn().Err(err).Msg("OpenTelemetry disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(shutdownCtx)
	}()

	if runMetricsAddr != "" {
		stop := serveMetrics(runMetricsAddr, logs.Component("metrics"))
		defer stop()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := modelclient.New(cfg.ToClientConfig(), modelclient.WithLogger(logs.Component("modelclient")))
	if err != nil {
		return err
	}

	tools := toolexecutor.New(
		toolexecutor.WithDefaultTimeout(cfg.Tools.Timeout),
		toolexecutor.WithMaxOutputSize(cfg.Tools.MaxOutputSize),
	)
	if err := registerDemoTools(tools, time.Now); err != nil {
		return err
	}
	logs.Debug().
		Int("count", tools.GetToolCount()).
		Strs("tools", tools.ListTools()).
		Msg("Registered tools")

	execLogger := logs.Component("agent")
	execCfg := cfg.ToExecutorConfig()
	execCfg.Client = client
	execCfg.Tools = tools
	execCfg.Logger = &execLogger

	if cfg.Tools.Bridge.Command != "" {
		bridge := toolexecutor.NewMCPServerAdapter("bridge", cfg.Tools.Bridge.Command, cfg.Tools.Bridge.Args)
		defer bridge.Stop()
		execCfg.Bridge = bridge
	}

	executor, err := agent.NewExecutor(execCfg)
	if err != nil {
		return err
	}

	logs.Debug().
		Str("model", cfg.Provider.Model).
		Str("conversation_id", executor.ConversationID()).
		Msg("Starting conversation")

	out := cmd.OutOrStdout()
	result, err := executor.RunConversation(ctx, []protocol.ResponseItem{protocol.UserMessage(prompt)}, newPrinter(out, runJSON, runVerbose))
	if err != nil {
		return err
	}

	if !runJSON && runVerbose && result.Usage != nil {
		fmt.Fprintf(out, "[done] %d turn(s), %d tokens\n", result.Turns, result.Usage.TotalTokens)
	}
	return nil
}

// serveMetrics exposes the Prometheus handler until the returned stop is called
func serveMetrics(addr string, log zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("Serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}
}
