// Command agentchain serves a workflow over HTTP and WebSocket, or runs it
// once for a prompt given on the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/agentchain"
	"github.com/hupe1980/agentchain/agent"
	"github.com/hupe1980/agentchain/config"
	"github.com/hupe1980/agentchain/core"
	"github.com/hupe1980/agentchain/logging"
	"github.com/hupe1980/agentchain/metrics"
	"github.com/hupe1980/agentchain/model"
	"github.com/hupe1980/agentchain/model/anthropic"
	"github.com/hupe1980/agentchain/model/gemini"
	"github.com/hupe1980/agentchain/model/openai"
	"github.com/hupe1980/agentchain/runner"
	"github.com/hupe1980/agentchain/session"
	"github.com/hupe1980/agentchain/sink/rabbitmq"
	"github.com/hupe1980/agentchain/tool"
	"github.com/hupe1980/agentchain/transport"
	"github.com/hupe1980/agentchain/transport/httpapi"
	"github.com/hupe1980/agentchain/transport/ws"
	"github.com/hupe1980/agentchain/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("agentchain: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("agentchain", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("AGENTCHAIN_CONFIG"), "path to the YAML config file")
	workflowName := fs.String("workflow", "", "builtin workflow name or YAML file (overrides config)")
	prompt := fs.String("prompt", "", "run the workflow once for this prompt and exit")
	sessionID := fs.String("session", "cli", "session id used with -prompt")
	describe := fs.Bool("describe", false, "print the agent graph and exit")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if *workflowName != "" {
		cfg.Runner.Workflow = *workflowName
	}

	logger := logging.NewSlogLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, false)

	root, def, err := buildRoot(cfg)
	if err != nil {
		return err
	}

	logger = logger.WithContext("workflow", cfg.Runner.Workflow)

	if *describe {
		_, err := fmt.Fprint(stdout, agent.Describe(root))
		return err
	}

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	sinks, closeSinks, err := newSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	chain, err := agentchain.New(root, func(o *agentchain.Options) {
		o.MaxConcurrentRuns = cfg.Runner.MaxConcurrentRuns
		o.EventBufferSize = cfg.Runner.EventBufferSize
		o.SessionStore = store
		o.Recorder = collector
		o.Sinks = sinks
		o.Logger = logger.WithComponent("runner")
	})
	if err != nil {
		return err
	}

	if *prompt != "" {
		key := core.SessionKey{AppName: cfg.Runner.AppName, UserID: "cli_user", SessionID: *sessionID}
		return runOnce(ctx, chain.Runner(), key, *prompt, stdout)
	}

	mux := http.NewServeMux()
	card := httpapi.NewAgentCard(def.Name, def.Description, root)
	card.Capabilities.Streaming = true

	mux.Handle("/", httpapi.New(chain.Runner(), func(o *httpapi.Options) {
		o.Logger = logger.WithComponent("httpapi")
		o.Card = &card
	}))
	mux.Handle(ws.Pattern, ws.New(chain.Runner(), func(o *ws.Options) {
		o.AppName = cfg.Runner.AppName
		o.Logger = logger.WithComponent("ws")
	}))
	mux.Handle("GET "+cfg.Server.MetricsPath, collector.Handler())

	logger.Info("server.start", "address", cfg.Server.Address, "store", cfg.Store.Driver)

	if err := httpapi.Serve(ctx, cfg.Server.Address, mux); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("server.stopped")

	return nil
}

func buildRoot(cfg *config.Config) (agent.Agent, *workflow.Definition, error) {
	def, err := workflow.Resolve(cfg.Runner.Workflow)
	if err != nil {
		return nil, nil, err
	}

	llm, err := newModel(cfg.Model)
	if err != nil {
		return nil, nil, err
	}

	root, err := workflow.Build(def, workflow.Deps{
		Model: llm,
		Tools: tool.NewRegistry(tool.NewChainTools(cfg.Chain.BaseURL, cfg.Chain.Timeout)...),
	})
	if err != nil {
		return nil, nil, err
	}

	return root, def, nil
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	switch cfg.Provider {
	case config.ProviderMock:
		return model.NewMockModel(cfg.Name), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = cfg.Name
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Name)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
			if cfg.Temperature != nil {
				o.Temperature = *cfg.Temperature
			}
		}), nil
	case config.ProviderGemini:
		return gemini.NewModel(func(o *gemini.Options) {
			o.Model = cfg.Name
			o.APIKey = cfg.APIKey
			if cfg.Temperature != nil {
				o.Temperature = float32(*cfg.Temperature)
			}
		}), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Provider)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (core.SessionStore, func(), error) {
	noop := func() {}

	switch cfg.Store.Driver {
	case config.StoreMemory:
		return session.NewInMemoryStore(), noop, nil
	case config.StoreRedis:
		s, err := session.NewRedisStore(ctx, session.RedisConfig{
			Address:  cfg.Store.Redis.Address,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			TTL:      cfg.Store.Redis.TTL,
		})
		if err != nil {
			return nil, noop, err
		}

		return s, func() { _ = s.Close() }, nil
	case config.StoreSQLite, config.StoreMySQL:
		s, err := session.OpenSQLStore(ctx, session.Dialect(cfg.Store.Driver), cfg.Store.DSN)
		if err != nil {
			return nil, noop, err
		}

		return s, func() { _ = s.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

func newSinks(cfg *config.Config) ([]runner.Sink, func(), error) {
	if !cfg.RabbitMQ.Enabled() {
		return nil, func() {}, nil
	}

	s, err := rabbitmq.New(rabbitmq.Config{
		URL:        cfg.RabbitMQ.URL,
		Exchange:   cfg.RabbitMQ.Exchange,
		RoutingKey: cfg.RabbitMQ.RoutingKey,
		Durable:    true,
	})
	if err != nil {
		return nil, func() {}, err
	}

	return []runner.Sink{s}, func() { _ = s.Close() }, nil
}

func runOnce(ctx context.Context, r *runner.Runner, key core.SessionKey, prompt string, stdout io.Writer) error {
	outcome, err := transport.Invoke(ctx, r, key, prompt, func(ev core.Event) error {
		if ev.IsPartial() || !ev.IsFinal() || ev.Author == r.SummaryAuthor() {
			return nil
		}

		_, err := fmt.Fprintf(stdout, "[%s] %s\n", ev.Author, ev.Text())

		return err
	})
	if err != nil {
		return err
	}

	if outcome.Failed() {
		return fmt.Errorf("run %s failed: %s", outcome.RunID, outcome.Error)
	}

	_, err = fmt.Fprintf(stdout, "run %s %s\n", outcome.RunID, outcome.Status)

	return err
}
