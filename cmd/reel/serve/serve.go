// Package servecmder provides the serve command that runs the reel API server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/reel/api"
	"github.com/papercomputeco/reel/pkg/config"
	"github.com/papercomputeco/reel/pkg/dotdir"
	"github.com/papercomputeco/reel/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/reel/pkg/embeddings/utils"
	"github.com/papercomputeco/reel/pkg/eventstream"
	eventstreamutils "github.com/papercomputeco/reel/pkg/eventstream/utils"
	"github.com/papercomputeco/reel/pkg/exchange"
	"github.com/papercomputeco/reel/pkg/identity"
	"github.com/papercomputeco/reel/pkg/llm/generator"
	generatorutils "github.com/papercomputeco/reel/pkg/llm/generator/utils"
	"github.com/papercomputeco/reel/pkg/logger"
	"github.com/papercomputeco/reel/pkg/memory"
	"github.com/papercomputeco/reel/pkg/persona"
	"github.com/papercomputeco/reel/pkg/storage"
	"github.com/papercomputeco/reel/pkg/vector"
	vectorutils "github.com/papercomputeco/reel/pkg/vector/utils"
	"github.com/papercomputeco/reel/pkg/worker"
)

type ServeCommander struct {
	// flag targets; the resolved values live in cfg
	listen         string
	storageProv    string
	sqlitePath     string
	postgresDSN    string
	vectorProv     string
	vectorTarget   string
	embeddingProv  string
	embeddingTgt   string
	embeddingModel string
	embeddingDims  uint
	generatorProv  string
	generatorTgt   string
	generatorModel string
	eventsProv     string
	eventsBrokers  string

	configDir string
	debug     bool
	cfg       *config.Config
	logger    *zap.Logger
}

const serveLongDesc string = `Run the reel API server.

The server persists conversations in the configured turn store, archives
overflowing turns into the vector index and answers exchanges with the
configured language model. Every setting can come from flags, REEL_*
environment variables or .reel/config.toml, in that order.

Examples:
  reel serve
  reel serve --generator-provider anthropic --generator-model claude-sonnet-4-5
  reel serve --storage-provider postgres --postgres-dsn postgres://localhost/reel`

const serveShortDesc string = "Run the reel API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, serveFlags, serveFlagKeys)

			cmder.cfg, err = config.FromViper(v)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, serveFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, serveFlags, config.FlagStorageProvider, &cmder.storageProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, serveFlags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreProv, &cmder.vectorProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, serveFlags, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, serveFlags, config.FlagGeneratorProv, &cmder.generatorProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagGeneratorTgt, &cmder.generatorTgt)
	config.AddStringFlag(cmd, serveFlags, config.FlagGeneratorModel, &cmder.generatorModel)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventStreamProv, &cmder.eventsProv)
	config.AddStringFlag(cmd, serveFlags, config.FlagEventStreamBroker, &cmder.eventsBrokers)

	return cmd
}

func (c *ServeCommander) run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	var err error
	c.logger, err = c.newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = c.logger.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	memCfg := c.memoryConfig()
	if err := memCfg.Validate(); err != nil {
		return fmt.Errorf("invalid memory config: %w", err)
	}

	store, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	embedder, err := c.newEmbedder(ctx)
	if err != nil {
		return err
	}
	defer embedder.Close()

	index, err := c.newVectorDriver(ctx)
	if err != nil {
		return err
	}
	defer index.Close()

	if err := memory.CheckDimensions(memCfg, embedder, index); err != nil {
		return err
	}

	personas, err := c.newPersonaCatalog()
	if err != nil {
		return err
	}

	gen, err := generatorutils.NewGenerator(ctx, &generatorutils.NewGeneratorOpts{
		ProviderType: c.cfg.Generator.Provider,
		Target:       c.cfg.Generator.Target,
		Model:        c.cfg.Generator.Model,
		APIKey:       c.cfg.Generator.APIKey,
		MaxTokens:    c.cfg.Generator.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("creating generator: %w", err)
	}
	defer gen.Close()

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: c.cfg.EventStream.Provider,
		Brokers:      c.cfg.EventStream.Brokers,
		Topic:        c.cfg.EventStream.Topic,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event publisher: %w", err)
	}
	defer publisher.Close()

	pool, err := worker.NewPool(&worker.Config{
		NumWorkers: uint(max(c.cfg.Memory.Workers, 0)),
		QueueSize:  uint(max(c.cfg.Memory.QueueSize, 0)),
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	resolver := identity.NewStaticResolver(c.cfg.Auth.Tokens)
	if resolver.Len() == 0 {
		c.logger.Warn("no auth tokens configured, every /v1 request will be rejected")
	}

	controller := c.newController(store, embedder, index, gen, personas, pool, publisher, memCfg)

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Controller: controller,
		Resolver:   resolver,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("starting reel",
		zap.String("listen", c.cfg.API.Listen),
		zap.String("storage", c.cfg.Storage.Provider),
		zap.String("vector_store", c.cfg.VectorStore.Provider),
		zap.String("embedding", c.cfg.Embedding.Provider+"/"+c.cfg.Embedding.Model),
		zap.String("generator", c.cfg.Generator.Provider+"/"+c.cfg.Generator.Model),
		zap.String("eventstream", c.cfg.EventStream.Provider),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})

	if path := c.cfg.Memory.PersonasFile; path != "" {
		g.Go(func() error {
			return personas.Watch(gctx, path)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		c.logger.Info("shutting down")
		err := server.Shutdown()
		// drain archival and publish jobs before the stores close
		pool.Close()
		return err
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (c *ServeCommander) newLogger() (*zap.Logger, error) {
	console := logger.NewLogger(c.debug)
	if c.cfg.API.LogFile == "" {
		return console, nil
	}

	f, err := os.OpenFile(c.cfg.API.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriters(f))
	return logger.Multi(console, file), nil
}

func (c *ServeCommander) memoryConfig() memory.Config {
	m := c.cfg.Memory
	return memory.Config{
		ShortTermCapacity: m.ShortTermCapacity,
		ChunkSize:         m.ChunkSize,
		TopK:              m.TopK,
		MinScore:          m.MinScore,
		Dimensions:        c.cfg.Embedding.Dimensions,
		CascadeDelete:     m.CascadeDelete,
	}
}

func (c *ServeCommander) newEmbedder(ctx context.Context) (embeddings.Embedder, error) {
	embedder, err := embeddingutils.NewEmbedder(ctx, &embeddingutils.NewEmbedderOpts{
		ProviderType: c.cfg.Embedding.Provider,
		TargetURL:    c.cfg.Embedding.Target,
		Model:        c.cfg.Embedding.Model,
		APIKey:       c.cfg.Embedding.APIKey,
		Dimensions:   c.cfg.Embedding.Dimensions,
		CacheSize:    c.cfg.Embedding.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	return embedder, nil
}

func (c *ServeCommander) newVectorDriver(ctx context.Context) (vector.VectorDriver, error) {
	target := c.cfg.VectorStore.Target
	if target == "" {
		var name string
		switch c.cfg.VectorStore.Provider {
		case "chromem":
			name = "vectors"
		case "sqlite":
			name = "vectors.db"
		}
		if name != "" {
			path, err := dotdir.NewManager().Path(c.configDir, name)
			if err != nil {
				return nil, err
			}
			target = path
		}
	}

	index, err := vectorutils.NewVectorDriver(ctx, &vectorutils.NewVectorDriverOpts{
		ProviderType: c.cfg.VectorStore.Provider,
		Target:       target,
		Collection:   c.cfg.VectorStore.Collection,
		Dimensions:   c.cfg.Embedding.Dimensions,
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating vector driver: %w", err)
	}

	c.logger.Info("using vector index",
		zap.String("provider", c.cfg.VectorStore.Provider),
		zap.String("target", target),
	)
	return index, nil
}

func (c *ServeCommander) newPersonaCatalog() (*persona.Catalog, error) {
	personas := persona.NewCatalog(c.logger)
	if path := c.cfg.Memory.PersonasFile; path != "" {
		if err := personas.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading personas: %w", err)
		}
	}
	return personas, nil
}

func (c *ServeCommander) newController(
	store storage.Driver,
	embedder embeddings.Embedder,
	index vector.VectorDriver,
	gen generator.Generator,
	personas *persona.Catalog,
	pool *worker.Pool,
	publisher eventstream.Publisher,
	memCfg memory.Config,
) *exchange.Controller {
	retriever := memory.NewRetriever(embedder, index, memCfg, c.logger)
	return exchange.NewController(&exchange.Config{
		Store:     store,
		Assembler: memory.NewAssembler(store, retriever, personas, memCfg, c.logger),
		Archiver:  memory.NewArchiver(store, embedder, index, memCfg, c.logger),
		Retriever: retriever,
		Generator: gen,
		Index:     index,
		Pool:      pool,
		Publisher: publisher,
		Memory:    memCfg,
		Logger:    c.logger,
	})
}
