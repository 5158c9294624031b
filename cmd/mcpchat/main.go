package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mcpchat/internal/app"
	"mcpchat/internal/domain"
	"mcpchat/internal/infra/chat"
)

type rootOptions struct {
	configPath string
	promptDir  string
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	root := newRootCmd(logger)
	if err := root.Execute(); err != nil {
		logger.Fatal("command failed", zap.Error(err))
	}
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	opts := rootOptions{
		configPath: "mcpchat.yaml",
	}

	root := &cobra.Command{
		Use:   "mcpchat",
		Short: "Tool-calling chat over MCP servers with deferred tool discovery",
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", opts.configPath, "path to config file")
	root.PersistentFlags().StringVar(&opts.promptDir, "prompts", opts.promptDir, "directory of system prompt templates")

	root.AddCommand(
		newChatCmd(logger, &opts),
		newToolsCmd(logger, &opts),
		newSearchCmd(logger, &opts),
		newValidateCmd(logger, &opts),
	)

	return root
}

func newChatCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var (
		model   string
		toolset string
		system  string
		message string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a model that can call MCP tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := newApp(ctx, logger, opts)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			go func() {
				if err := application.ServeMetrics(ctx); err != nil {
					logger.Error("metrics server failed", zap.Error(err))
				}
			}()

			if message != "" {
				return runOnce(ctx, cmd, application, model, toolset, system, message)
			}
			return runInteractive(ctx, cmd, application, model, toolset, system)
		},
	}

	cmd.Flags().StringVar(&model, "model", "default", "configured model name")
	cmd.Flags().StringVar(&toolset, "toolset", "", "configured toolset restricting available tools")
	cmd.Flags().StringVar(&system, "system", "", "system prompt override")
	cmd.Flags().StringVarP(&message, "message", "m", "", "send a single message and exit")

	return cmd
}

func runOnce(ctx context.Context, cmd *cobra.Command, application *app.App, model, toolset, system, message string) error {
	result, err := application.Chat(ctx, chat.Request{
		Messages: []domain.ChatMessage{domain.UserMessage(message)},
		Model:    model,
		Toolset:  toolset,
		System:   system,
	})
	if err != nil {
		return err
	}
	printResult(cmd, result)
	return nil
}

func runInteractive(ctx context.Context, cmd *cobra.Command, application *app.App, model, toolset, system string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Type a message; /quit exits.")

	var history []domain.ChatMessage
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}

		history = append(history, domain.UserMessage(line))
		result, err := application.Chat(ctx, chat.Request{
			Messages: history,
			Model:    model,
			Toolset:  toolset,
			System:   system,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		history = append(history, result.Messages...)
		printResult(cmd, result)
	}
}

func printResult(cmd *cobra.Command, result *domain.ChatResult) {
	out := cmd.OutOrStdout()
	for _, msg := range result.Messages {
		if msg.Role == domain.RoleAssistant && msg.Content != "" {
			fmt.Fprintln(out, msg.Content)
		}
	}
	fmt.Fprintf(out, "[%d model calls, %d tool calls, %d tokens]\n",
		result.Stats.ModelCalls,
		result.Stats.ToolCalls.Total(),
		result.Stats.Tokens.Total())
	if d := result.Stats.Discovery; d != nil && d.SearchCalls > 0 {
		fmt.Fprintf(out, "[%d search calls, %d tools discovered]\n", d.SearchCalls, d.ToolsDiscovered)
	}
}

func newToolsCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List every tool the configured servers expose",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := newApp(ctx, logger, opts)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			snap, err := application.Tools(ctx)
			if refresh {
				snap, err = application.RefreshTools(ctx)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "catalog version %d, %d tool(s)\n", snap.Version, len(snap.Tools))
			for _, tool := range snap.Tools {
				fmt.Fprintf(out, "  %-40s %s\n", tool.WireName, firstLine(tool.Description))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "force a catalog refresh")
	return cmd
}

func newSearchCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var (
		server string
		max    int
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Rank tools against a query using the discovery index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalAwareContext(cmd.Context())
			defer cancel()

			application, err := newApp(ctx, logger, opts)
			if err != nil {
				return err
			}
			defer func() { _ = application.Close() }()

			results, err := application.SearchTools(ctx, args[0], server, max)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "no tools matched")
				return nil
			}
			for _, tool := range results {
				fmt.Fprintf(out, "  %-40s %s\n", tool.WireName, firstLine(tool.Description))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "restrict results to one server")
	cmd.Flags().IntVar(&max, "max", 0, "maximum results (0 uses the configured default)")
	return cmd
}

func newValidateCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without connecting to anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.Validate(cmd.Context(), opts.configPath, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration valid: %d server(s), %d model(s), %d toolset(s)\n",
				len(cfg.Servers), len(cfg.Models), len(cfg.Toolsets))
			return nil
		},
	}
}

func newApp(ctx context.Context, logger *zap.Logger, opts *rootOptions) (*app.App, error) {
	return app.New(ctx, app.Options{
		ConfigPath: opts.configPath,
		PromptDir:  opts.promptDir,
		Logger:     logger,
	})
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return text[:idx]
	}
	return text
}

func signalAwareContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
