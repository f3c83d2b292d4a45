// Copyright 2026 © The Weft Authors
// SPDX-License-Identifier: Apache-2.0

// Command weft runs the agent runtime from the terminal: one-shot
// prompts, an interactive chat loop, or an MCP server exposing a
// session as a tool.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/weft-ai/weft/pkg/agent"
	"github.com/weft-ai/weft/pkg/config"
	"github.com/weft-ai/weft/pkg/core"
	"github.com/weft-ai/weft/pkg/governance"
	"github.com/weft-ai/weft/pkg/guardrails"
	"github.com/weft-ai/weft/pkg/llm"
	"github.com/weft-ai/weft/pkg/mcp"
	"github.com/weft-ai/weft/pkg/memory"
	ollamaembed "github.com/weft-ai/weft/pkg/memory/ollama"
	"github.com/weft-ai/weft/pkg/memory/qdrant"
	"github.com/weft-ai/weft/pkg/profile"
	"github.com/weft-ai/weft/pkg/telemetry"
)

const version = "0.1.0"

// Default dimensions for nomic-embed-text.
const embeddingDims = 768

type globalFlags struct {
	ConfigPath  string
	ProfilePath string
	Model       string
	SessionID   string
	MCPCommand  string
	JSON        bool
	Help        bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	flags, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if flags.Help || len(args) == 0 {
		printUsage()
		return
	}

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		fatal(err)
	}
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	shutdown, err := telemetry.InitWithConfig("weft", version, telemetry.Config{
		Exporter:     cfg.Telemetry.Exporter,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure: cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		fatal(err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	switch args[0] {
	case "run":
		if len(args) < 2 {
			fatal(fmt.Errorf("usage: weft run \"<prompt>\""))
		}
		runOnce(ctx, cfg, flags, strings.Join(args[1:], " "))
	case "chat":
		runChat(ctx, cfg, flags)
	case "serve-mcp":
		serveMCP(ctx, cfg, flags)
	case "version":
		fmt.Println("weft", version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{
		ConfigPath: os.Getenv("WEFT_CONFIG"),
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		value := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("missing value for %s", arg)
			}
			i++
			return args[i], nil
		}
		var err error
		switch arg {
		case "-h", "--help":
			flags.Help = true
			return flags, nil, nil
		case "--json":
			flags.JSON = true
		case "--config":
			flags.ConfigPath, err = value()
		case "--profile":
			flags.ProfilePath, err = value()
		case "--model":
			flags.Model, err = value()
		case "--session":
			flags.SessionID, err = value()
		case "--mcp":
			flags.MCPCommand, err = value()
		default:
			return flags, nil, fmt.Errorf("unknown flag %q", arg)
		}
		if err != nil {
			return flags, nil, err
		}
	}
	return flags, nil, nil
}

func runOnce(ctx context.Context, cfg *config.Config, flags globalFlags, input string) {
	session, cleanup, err := buildSession(ctx, cfg, flags)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	reply, err := session.Run(ctx, input)
	if err != nil {
		fatal(err)
	}
	fmt.Println(reply)
}

func runChat(ctx context.Context, cfg *config.Config, flags globalFlags) {
	session, cleanup, err := buildSession(ctx, cfg, flags)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	fmt.Println("weft chat, type 'exit' to quit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		reply, err := session.Run(ctx, input)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		fmt.Println(reply)
	}
}

func serveMCP(ctx context.Context, cfg *config.Config, flags globalFlags) {
	session, cleanup, err := buildSession(ctx, cfg, flags)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	server := mcp.NewServer("weft", version)
	server.RegisterResponder("ask", "Ask the weft agent a question", session)
	if err := server.ServeStdio(); err != nil {
		fatal(err)
	}
}

// buildSession assembles a session from configuration: provider,
// conversation memory, optional semantic recall, optional MCP executor,
// and the console emitter.
func buildSession(ctx context.Context, cfg *config.Config, flags globalFlags) (*agent.Session, func(), error) {
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	prof := profile.Default()
	profilePath := flags.ProfilePath
	if profilePath == "" {
		profilePath = cfg.Runtime.ProfilePath
	}
	if profilePath != "" {
		prof, err = profile.Load(profilePath)
		if err != nil {
			return nil, cleanup, err
		}
	}

	conversation, closeConv, err := buildConversation(cfg)
	if err != nil {
		return nil, cleanup, err
	}
	if closeConv != nil {
		cleanups = append(cleanups, closeConv)
	}

	metrics, err := telemetry.NewRuntimeMetrics()
	if err != nil {
		return nil, cleanup, err
	}
	emitter := telemetry.NewMetricsEmitter(newConsoleEmitter(os.Stderr, flags.JSON), metrics)

	model := flags.Model
	if model == "" {
		model = cfg.LLM.Model
	}

	opts := []agent.Option{
		agent.WithEmitter(emitter),
		agent.WithProfile(prof),
		agent.WithConversation(conversation),
		agent.WithModel(model),
		agent.WithTemperature(cfg.Runtime.Temperature),
		agent.WithMaxIterations(cfg.Runtime.MaxIterations),
		agent.WithHistoryLimit(cfg.Runtime.HistoryLimit),
	}
	if flags.SessionID != "" {
		opts = append(opts, agent.WithSessionID(flags.SessionID))
	}
	if cfg.Runtime.CoalesceThreshold > 0 {
		opts = append(opts, agent.WithCoalesceThreshold(cfg.Runtime.CoalesceThreshold))
	}

	if flags.MCPCommand != "" {
		executor, docs, closeMCP, err := buildMCPExecutor(ctx, flags.MCPCommand)
		if err != nil {
			return nil, cleanup, err
		}
		cleanups = append(cleanups, closeMCP)
		prof.Actions = append(prof.Actions, docs...)

		if len(prof.Policy) > 0 {
			executor, err = guardExecutor(executor, prof.Policy)
			if err != nil {
				return nil, cleanup, err
			}
		}
		opts = append(opts, agent.WithExecutor(executor))
	}

	if prof.Guardrails.Enabled() {
		opts = append(opts, agent.WithGuardrails(buildGuardrails(prof.Guardrails)))
	}

	if cfg.Memory.RecallEnabled {
		recall, err := buildRecall(ctx, cfg)
		if err != nil {
			return nil, cleanup, err
		}
		opts = append(opts, agent.WithRecall(recall))
	}

	session, err := agent.NewSession(provider, opts...)
	if err != nil {
		return nil, cleanup, err
	}
	return session, cleanup, nil
}

func buildProvider(cfg *config.Config) (llm.Provider, error) {
	switch cfg.LLM.Provider {
	case "", "ollama":
		return llm.NewOllama(cfg.LLM.BaseURL), nil
	case "mock":
		return llm.NewScriptedMockProvider(
			`<response final="true">mock reply</response>`,
		), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLM.Provider)
	}
}

func buildConversation(cfg *config.Config) (memory.ConversationMemory, func(), error) {
	switch cfg.Memory.Backend {
	case "", "inmemory":
		return memory.NewInMemoryConversation(memory.ConversationConfig{}), nil, nil
	case "sqlite":
		store, err := memory.OpenSQLiteConversation(cfg.Memory.SQLitePath, memory.ConversationConfig{})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory backend %q", cfg.Memory.Backend)
	}
}

func buildRecall(ctx context.Context, cfg *config.Config) (*memory.Recall, error) {
	store, err := qdrant.New(cfg.Memory.QdrantAddr)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureCollection(ctx, cfg.Memory.QdrantCollection, embeddingDims); err != nil {
		return nil, err
	}
	embedder := ollamaembed.NewEmbedder(cfg.Memory.EmbedderBaseURL, cfg.Memory.EmbedderModel)
	return memory.NewRecall(store, embedder, cfg.Memory.QdrantCollection), nil
}

// guardExecutor wraps the executor with the profile's policy rules.
func guardExecutor(next core.Executor, rules []profile.PolicyRule) (core.Executor, error) {
	converted := make([]governance.Rule, 0, len(rules))
	for _, r := range rules {
		converted = append(converted, governance.Rule{
			ID:     r.ID,
			Effect: r.Effect,
			Type:   core.ActionType(r.Type),
			Name:   r.Name,
			Reason: r.Reason,
		})
	}
	return governance.NewGuardedExecutor(next, governance.NewRuleSet(converted))
}

func buildGuardrails(spec profile.GuardrailSpec) *guardrails.Guardrails {
	var opts []guardrails.Option
	if spec.BlockInjection {
		opts = append(opts, guardrails.WithInjectionDetection())
	}
	if spec.MaskPII {
		opts = append(opts, guardrails.WithPIIFilter(guardrails.PIIFilterMask))
	}
	return guardrails.New(opts...)
}

func buildMCPExecutor(ctx context.Context, command string) (core.Executor, []profile.ActionDoc, func(), error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, nil, nil, fmt.Errorf("empty --mcp command")
	}

	client, err := mcp.NewClientWithStdio(parts[0], parts[1:], nil)
	if err != nil {
		return nil, nil, nil, err
	}
	executor, err := mcp.NewExecutor(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	docs, err := mcp.ActionDocs(ctx, client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, err
	}
	return executor, docs, func() { _ = client.Close() }, nil
}

func printUsage() {
	fmt.Println(`weft - agent runtime

Usage:
  weft [flags] run "<prompt>"   run a single prompt
  weft [flags] chat             interactive chat loop
  weft [flags] serve-mcp        expose the agent as an MCP server
  weft version                  print version
  weft help                     print this help

Flags:
  --config <path>    configuration file (or WEFT_CONFIG)
  --profile <path>   agent profile YAML
  --model <name>     override the configured model
  --session <id>     fix the session identifier
  --mcp "<cmd ...>"  stdio MCP server supplying tools
  --json             emit runtime events as JSON lines`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "weft:", err)
	os.Exit(1)
}
