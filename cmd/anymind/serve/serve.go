// Package servecmder provides the serve command for running the API server.
package servecmder

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/yashdodwani/anymind/api"
	"github.com/yashdodwani/anymind/pkg/config"
	ollamaembed "github.com/yashdodwani/anymind/pkg/embeddings/ollama"
	"github.com/yashdodwani/anymind/pkg/eventstream"
	eventskafka "github.com/yashdodwani/anymind/pkg/eventstream/kafka"
	eventsnop "github.com/yashdodwani/anymind/pkg/eventstream/nop"
	"github.com/yashdodwani/anymind/pkg/llm/provider"
	"github.com/yashdodwani/anymind/pkg/llm/provider/openrouter"
	"github.com/yashdodwani/anymind/pkg/logger"
	"github.com/yashdodwani/anymind/pkg/memory"
	memorylocal "github.com/yashdodwani/anymind/pkg/memory/local"
	memorynop "github.com/yashdodwani/anymind/pkg/memory/nop"
	"github.com/yashdodwani/anymind/pkg/memory/platform"
	"github.com/yashdodwani/anymind/pkg/store"
	"github.com/yashdodwani/anymind/pkg/store/cache"
	storelocal "github.com/yashdodwani/anymind/pkg/store/local"
	"github.com/yashdodwani/anymind/pkg/store/postgres"
	"github.com/yashdodwani/anymind/pkg/store/sqlite"
	"github.com/yashdodwani/anymind/pkg/turn"
	"github.com/yashdodwani/anymind/pkg/vector"
	"github.com/yashdodwani/anymind/pkg/vector/chroma"
	"github.com/yashdodwani/anymind/pkg/vector/chromem"
	"github.com/yashdodwani/anymind/pkg/vector/qdrant"
	"github.com/yashdodwani/anymind/pkg/websearch"
	"github.com/yashdodwani/anymind/pkg/worker"
)

type ServeCommander struct {
	apiListen       string
	sqlitePath      string
	postgresURL     string
	llmBaseURL      string
	llmModel        string
	memoryProvider  string
	vectorProvider  string
	vectorTarget    string
	embeddingTarget string
	embeddingModel  string
	embeddingDims   uint
	eventsTopic     string
	debug           bool
	logger          *zap.Logger
}

// serveFlags is the registry of flags the serve command binds to viper.
var serveFlags = config.FlagSet{
	config.FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	config.FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to SQLite database (empty disables the durable mirror)",
	},
	config.FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_url",
		Description: "Postgres connection URL (overrides --sqlite when set)",
	},
	config.FlagLLMBaseURL: {
		Name:        "llm-base-url",
		ViperKey:    "llm.base_url",
		Description: "Base URL of the completion provider API",
	},
	config.FlagLLMModel: {
		Name:        "llm-model",
		Shorthand:   "m",
		ViperKey:    "llm.model",
		Description: "Default model for agents without one configured",
	},
	config.FlagMemoryProvider: {
		Name:        "memory-provider",
		ViperKey:    "memory.provider",
		Description: "Memory adapter: platform, local, or none",
	},
	config.FlagVectorStoreProv: {
		Name:        "vector-store-provider",
		ViperKey:    "vector_store.provider",
		Description: "Vector store for local memory: chromem, qdrant, or chroma",
	},
	config.FlagVectorStoreTgt: {
		Name:        "vector-store-target",
		ViperKey:    "vector_store.target",
		Description: "Vector store address (host:port for qdrant, URL for chroma)",
	},
	config.FlagEmbeddingTgt: {
		Name:        "embedding-target",
		ViperKey:    "embedding.target",
		Description: "Base URL of the embedding provider",
	},
	config.FlagEmbeddingModel: {
		Name:        "embedding-model",
		ViperKey:    "embedding.model",
		Description: "Embedding model name",
	},
	config.FlagEmbeddingDims: {
		Name:        "embedding-dimensions",
		ViperKey:    "embedding.dimensions",
		Description: "Embedding vector dimensions",
	},
	config.FlagEventsTopic: {
		Name:        "events-topic",
		ViperKey:    "events.topic",
		Description: "Topic for turn-persisted events",
	},
}

const serveLongDesc string = `Run the anymind API server.

The server exposes the agent, chat, message, and memory endpoints and wires
the layered conversation store, the memory adapter, web search, the
completion provider, the async memory worker pool, and turn event publishing.

Configuration comes from config.toml in the .anymind/ directory, ANYMIND_*
environment variables, and CLI flags (flags win).`

const serveShortDesc string = "Run the anymind API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, []string{
				config.FlagAPIListen,
				config.FlagSQLite,
				config.FlagPostgres,
				config.FlagLLMBaseURL,
				config.FlagLLMModel,
				config.FlagMemoryProvider,
				config.FlagVectorStoreProv,
				config.FlagVectorStoreTgt,
				config.FlagEmbeddingTgt,
				config.FlagEmbeddingModel,
				config.FlagEmbeddingDims,
				config.FlagEventsTopic,
			})

			return cmder.run(v)
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.apiListen)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgres, &cmder.postgresURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMBaseURL, &cmder.llmBaseURL)
	config.AddStringFlag(cmd, serveFlags, config.FlagLLMModel, &cmder.llmModel)
	config.AddStringFlag(cmd, serveFlags, config.FlagMemoryProvider, &cmder.memoryProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventsTopic, &cmder.eventsTopic)

	return cmd
}

func (c *ServeCommander) run(v *viper.Viper) error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	ctx := context.Background()

	// Conversation store
	storer, err := c.createStore(ctx, v)
	if err != nil {
		return err
	}
	defer storer.Close()

	// Memory adapter
	mem, err := c.createMemory(ctx, v)
	if err != nil {
		return err
	}
	defer mem.Close()

	// Web search
	search := websearch.NewClient(websearch.Config{
		APIKey: v.GetString("websearch.api_key"),
	}, c.logger)
	if search.Available() {
		c.logger.Info("web search enabled")
	}

	// Completion provider
	provider.Register(openrouter.New(openrouter.Config{
		BaseURL: v.GetString("llm.base_url"),
		APIKey:  v.GetString("llm.api_key"),
		Model:   v.GetString("llm.model"),
		Referer: v.GetString("llm.referer"),
		Title:   v.GetString("llm.title"),
	}, c.logger))

	// Async memory worker pool
	pool, err := worker.NewPool(&worker.Config{
		Memory: mem,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	// Turn event publisher
	events, err := c.createEvents(v)
	if err != nil {
		return err
	}
	defer events.Close()

	orchestrator := turn.New(turn.Config{
		Store:  storer,
		Memory: mem,
		Search: search,
		Pool:   pool,
		Events: events,
		Logger: c.logger,
	})

	apiServer := api.NewServer(api.Config{
		ListenAddr: v.GetString("api.listen"),
	}, storer, orchestrator, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
	}

	// Stop accepting requests, then drain in-flight memory jobs.
	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", zap.Error(err))
	}
	pool.Close()

	return nil
}

// createStore assembles the layered conversation store from the configured
// backends. The local layer is always present.
func (c *ServeCommander) createStore(ctx context.Context, v *viper.Viper) (*store.Layered, error) {
	var cacheDriver store.Driver
	if v.GetBool("cache.enabled") {
		d, err := cache.NewDriver(cache.Config{
			MaxBytes: v.GetInt64("cache.max_bytes"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating cache layer: %w", err)
		}
		cacheDriver = d
	}

	var durable store.Driver
	switch {
	case v.GetString("storage.postgres_url") != "":
		d, err := postgres.NewDriver(ctx, v.GetString("storage.postgres_url"))
		if err != nil {
			return nil, fmt.Errorf("creating postgres layer: %w", err)
		}
		c.logger.Info("using postgres durable storage")
		durable = d

	case v.GetString("storage.sqlite_path") != "":
		d, err := sqlite.NewDriver(ctx, v.GetString("storage.sqlite_path"))
		if err != nil {
			return nil, fmt.Errorf("creating sqlite layer: %w", err)
		}
		c.logger.Info("using SQLite durable storage",
			zap.String("path", v.GetString("storage.sqlite_path")),
		)
		durable = d

	default:
		c.logger.Info("no durable storage configured, conversations are process-local")
	}

	return store.NewLayered(cacheDriver, durable, storelocal.NewDriver(), c.logger), nil
}

// createMemory selects the memory adapter: platform when an API key is
// configured, local when a vector store can be assembled, nop otherwise.
func (c *ServeCommander) createMemory(ctx context.Context, v *viper.Viper) (memory.Adapter, error) {
	switch v.GetString("memory.provider") {
	case "platform":
		if v.GetString("memory.platform_api_key") == "" {
			return nil, fmt.Errorf("memory.provider is platform but memory.platform_api_key is not set")
		}
		c.logger.Info("using platform memory")
		return platform.NewAdapter(platform.Config{
			APIKey:  v.GetString("memory.platform_api_key"),
			BaseURL: v.GetString("memory.platform_base_url"),
		}, c.logger), nil

	case "local":
		vectors, err := c.createVectors(ctx, v)
		if err != nil {
			return nil, err
		}
		embedder, err := ollamaembed.NewEmbedder(ollamaembed.EmbedderConfig{
			BaseURL: v.GetString("embedding.target"),
			Model:   v.GetString("embedding.model"),
		})
		if err != nil {
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		c.logger.Info("using local memory",
			zap.String("vector_store", v.GetString("vector_store.provider")),
		)
		return memorylocal.NewAdapter(vectors, embedder, c.logger), nil

	default:
		c.logger.Info("memory disabled")
		return memorynop.NewAdapter(), nil
	}
}

// createVectors builds the vector driver backing the local memory adapter.
func (c *ServeCommander) createVectors(ctx context.Context, v *viper.Viper) (vector.Driver, error) {
	collection := v.GetString("vector_store.collection")

	switch v.GetString("vector_store.provider") {
	case "chromem", "":
		return chromem.NewDriver(chromem.Config{
			CollectionName: collection,
		}, c.logger)

	case "qdrant":
		host, port, err := splitHostPort(v.GetString("vector_store.target"))
		if err != nil {
			return nil, fmt.Errorf("parsing vector_store.target: %w", err)
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:           host,
			Port:           port,
			CollectionName: collection,
			VectorSize:     uint64(v.GetUint("embedding.dimensions")),
		}, c.logger)

	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            v.GetString("vector_store.target"),
			CollectionName: collection,
		}, c.logger)

	default:
		return nil, fmt.Errorf("unknown vector_store.provider %q (chromem, qdrant, chroma)", v.GetString("vector_store.provider"))
	}
}

// createEvents builds the turn event publisher. Without brokers events are
// dropped on the floor by the nop publisher.
func (c *ServeCommander) createEvents(v *viper.Viper) (eventstream.Publisher, error) {
	brokers := v.GetStringSlice("events.brokers")
	if len(brokers) == 0 {
		return eventsnop.NewPublisher(), nil
	}

	pub, err := eventskafka.NewPublisher(eventskafka.Config{
		Brokers: brokers,
		Topic:   v.GetString("events.topic"),
	}, c.logger)
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	return pub, nil
}

// splitHostPort parses "host:port" into its parts.
func splitHostPort(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q: %w", portStr, err)
	}
	return host, port, nil
}
