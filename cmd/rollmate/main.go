package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hession/rollmate/internal/agent"
	"github.com/hession/rollmate/internal/cli"
	"github.com/hession/rollmate/internal/config"
	"github.com/hession/rollmate/internal/dice"
	"github.com/hession/rollmate/internal/dicetool"
	"github.com/hession/rollmate/internal/llm"
	"github.com/hession/rollmate/internal/logger"
	"github.com/hession/rollmate/internal/mcphost"
	"github.com/hession/rollmate/internal/random"
	"github.com/hession/rollmate/internal/tools"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds the components every command builds from configuration.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	adapter *dicetool.Adapter
}

func newApp(configDir string) (*app, error) {
	if configDir != "" {
		config.SetConfigDir(configDir)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	lg, err := logger.NewLogger(cfg.LoggerConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	src, err := random.NewRand(cfg.Dice.Seed)
	if err != nil {
		lg.Close()
		return nil, fmt.Errorf("failed to seed dice: %w", err)
	}

	engine := dice.NewEngine(src,
		dice.WithLimits(cfg.DiceLimits()),
		dice.WithLogger(lg.With("dice")),
	)
	adapter := dicetool.New(engine,
		dicetool.WithLogger(lg.With("dicetool")),
		dicetool.WithName(cfg.Tool.Name),
		dicetool.WithDisplayName(cfg.Tool.DisplayName),
		dicetool.WithStealth(cfg.Tool.Stealth),
	)

	return &app{cfg: cfg, log: lg, adapter: adapter}, nil
}

func (a *app) Close() error {
	return a.log.Close()
}

// registry returns an in-process host with the dice tool registered when
// tool calling is enabled.
func (a *app) registry() *tools.Registry {
	reg := tools.NewRegistry()
	reg.SetToolCallingEnabled(a.cfg.Tool.ToolCalling)
	a.adapter.Register(reg)
	return reg
}

func (a *app) agent(reg *tools.Registry, toolOut io.Writer) *agent.Agent {
	client := llm.New(
		a.cfg.Model.APIKey,
		a.cfg.Model.BaseURL,
		a.cfg.Model.Model,
		a.cfg.Model.Temperature,
		a.cfg.Model.MaxTokens,
	)
	a.log.Info("agent using model %s with up to %d attempt(s)", client.Model(), max(a.cfg.Model.MaxRetries, 1))
	return agent.New(client.WithRetry(a.cfg.Model.MaxRetries, time.Second), reg,
		agent.WithLogger(a.log.With("agent")),
		agent.WithToolCallHandler(func(name, notice, result string, err error) {
			switch {
			case err != nil:
				fmt.Fprintf(toolOut, "tool %s failed: %v\n", name, err)
			case notice != "":
				fmt.Fprintf(toolOut, "tool %s: %s\n", name, notice)
			default:
				fmt.Fprintf(toolOut, "tool %s -> %s\n", name, result)
			}
		}),
	)
}

func newRootCmd() *cobra.Command {
	var configDir string

	rootCmd := &cobra.Command{
		Use:   "rollmate",
		Short: "rollmate - dice rolling for LLM agents",
		Long: `rollmate exposes a dice roller to LLM agents as a function tool.

It can:
  • Roll dice formulas like 1d20, 2d6+3 or 4d8-1 locally
  • Serve the roll_dice_formula tool over MCP (stdio or streamable HTTP)
  • Run a one-shot agent that rolls through tool calls
  • Print the function-calling schema for other hosts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ./config)")

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configDir)
			if err != nil {
				return err
			}
			defer a.Close()
			return run(cmd, a, args)
		}
	}

	rollCmd := &cobra.Command{
		Use:   "roll <formula>...",
		Short: "Roll one or more formulas and print the tool result",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			for _, formula := range args {
				fmt.Fprintln(cmd.OutOrStdout(), a.adapter.Handle(cmd.Context(), formula))
			}
			return nil
		}),
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the function-calling schemas as JSON",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			data, err := json.MarshalIndent(a.registry().GetSchemas(), "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode schemas: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}),
	}

	var transport, addr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dice tool over MCP",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if !cmd.Flags().Changed("transport") {
				transport = a.cfg.Server.Transport
			}
			if !cmd.Flags().Changed("addr") {
				addr = a.cfg.Server.Addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			host := mcphost.New(cli.Version, a.log)
			host.SetToolCallingEnabled(a.cfg.Tool.ToolCalling)
			if !a.adapter.Register(host) {
				a.log.Warn("%s not registered, serving without tools", a.cfg.Tool.Name)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "serving %d tool(s) over %s\n", len(host.Registry().List()), transport)

			switch strings.ToLower(transport) {
			case "stdio":
				return host.ServeStdio(ctx)
			case "http":
				fmt.Fprintf(cmd.ErrOrStderr(), "serving MCP on http://%s%s\n", addr, mcphost.MCPPath)
				return host.ListenAndServe(ctx, addr)
			default:
				return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
			}
		}),
	}
	serveCmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport: stdio or http")
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address for the http transport")

	askCmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask the model once; it may roll dice through the tool",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			if !a.cfg.IsAPIKeyConfigured() {
				return fmt.Errorf("API key not configured: set model.api_key in %s or LLM_API_KEY", configPath())
			}
			answer, err := a.agent(a.registry(), cmd.ErrOrStderr()).Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), answer)
			return nil
		}),
	}

	consoleCmd := &cobra.Command{
		Use:   "console",
		Short: "Start the interactive dice console",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			var opts []cli.ConsoleOption
			if a.cfg.IsAPIKeyConfigured() {
				opts = append(opts, cli.WithAsker(a.agent(a.registry(), cmd.OutOrStdout())))
			}
			cli.NewConsole(cmd.Context(), a.adapter, cmd.OutOrStdout(), opts...).Run()
			return nil
		}),
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show configuration",
		RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), a.cfg.String())
			fmt.Fprintf(cmd.OutOrStdout(), "\nConfig file path: %s\n", configPath())
			return nil
		}),
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rollmate v%s\n", cli.Version)
		},
	}

	rootCmd.AddCommand(rollCmd, schemaCmd, serveCmd, askCmd, consoleCmd, configCmd, versionCmd)
	return rootCmd
}

func configPath() string {
	path, err := config.ConfigPath()
	if err != nil {
		return "config.yaml"
	}
	return path
}
