package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alecthomas/kingpin/v2"
	"github.com/oklog/run"
	"k8s.io/client-go/util/homedir"

	"github.com/ptmflow/ptmflow/internal/app/cancel"
	"github.com/ptmflow/ptmflow/internal/app/create"
	"github.com/ptmflow/ptmflow/internal/app/history"
	"github.com/ptmflow/ptmflow/internal/app/list"
	"github.com/ptmflow/ptmflow/internal/app/remove"
	"github.com/ptmflow/ptmflow/internal/app/start"
	"github.com/ptmflow/ptmflow/internal/app/status"
	"github.com/ptmflow/ptmflow/internal/app/stream"
	"github.com/ptmflow/ptmflow/internal/config"
	"github.com/ptmflow/ptmflow/internal/eventbus"
	"github.com/ptmflow/ptmflow/internal/model"
	"github.com/ptmflow/ptmflow/internal/pipeline"
	"github.com/ptmflow/ptmflow/internal/server"
	"github.com/ptmflow/ptmflow/internal/stage/preprocessing"
	preprocessingfake "github.com/ptmflow/ptmflow/internal/stage/preprocessing/fake"
	"github.com/ptmflow/ptmflow/internal/stage/ragenrich"
	ragenrichfake "github.com/ptmflow/ptmflow/internal/stage/ragenrich/fake"
	"github.com/ptmflow/ptmflow/internal/stage/reportgen"
	reportgenfake "github.com/ptmflow/ptmflow/internal/stage/reportgen/fake"
	"github.com/ptmflow/ptmflow/internal/storage/sqlite"
)

type ServerCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	listenAddr string
	dbPath     string
	configPath string
	dataDir    string
}

// NewServerCommand returns the server command.
func NewServerCommand(rootCmd *RootCommand, app *kingpin.Application) *ServerCommand {
	c := &ServerCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("server", "Run the order pipeline server.")

	defaultDBPath := filepath.Join(homedir.HomeDir(), ".ptmflow", "ptmflow.db")
	c.Cmd.Flag("listen-addr", "HTTP listen address.").Default(":8080").StringVar(&c.listenAddr)
	c.Cmd.Flag("db-path", "Path to the SQLite database file.").Envar("PTMFLOW_DB_PATH").Default(defaultDBPath).StringVar(&c.dbPath)
	c.Cmd.Flag("config", "Path to an optional YAML config file.").StringVar(&c.configPath)
	c.Cmd.Flag("data-dir", "Directory where order artifacts are written.").Default("/data/orders").StringVar(&c.dataDir)

	return c
}

func (c ServerCommand) Name() string { return c.Cmd.FullCommand() }

func (c ServerCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	cfg := &config.Config{}
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Infof("Loaded config file %s", c.configPath)
	}

	// Flags fill what the config file leaves empty.
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = c.listenAddr
	}
	if cfg.DBPath == "" {
		cfg.DBPath = c.dbPath
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("could not create database directory: %w", err)
	}

	// Storage.
	orderRepo, err := sqlite.NewOrderRepository(ctx, sqlite.OrderRepositoryConfig{
		DBPath: cfg.DBPath,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create order repository: %w", err)
	}
	defer orderRepo.Close()

	eventRepo, err := sqlite.NewEventRepository(sqlite.EventRepositoryConfig{
		DB:     orderRepo.DB(),
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("could not create event repository: %w", err)
	}

	// Event bus.
	broker, err := eventbus.NewBroker(eventbus.BrokerConfig{Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create broker: %w", err)
	}
	defer broker.Close()

	// Pipeline stages.
	stages, err := c.buildStages(cfg)
	if err != nil {
		return err
	}

	registry, err := pipeline.NewRegistry(stages)
	if err != nil {
		return fmt.Errorf("could not create stage registry: %w", err)
	}

	manager, err := pipeline.NewManager(pipeline.ManagerConfig{
		OrderRepository:  orderRepo,
		EventRepository:  eventRepo,
		Broker:           broker,
		Registry:         registry,
		StageConcurrency: cfg.Pipeline.StageConcurrency,
		StageTimeout:     cfg.Pipeline.StageTimeout.Std(),
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("could not create pipeline manager: %w", err)
	}
	defer manager.Shutdown()

	watchdog, err := pipeline.NewWatchdog(pipeline.WatchdogConfig{
		Manager:         manager,
		OrderRepository: orderRepo,
		EventRepository: eventRepo,
		Interval:        cfg.Pipeline.WatchdogInterval.Std(),
		StallThreshold:  cfg.Pipeline.StallThreshold.Std(),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("could not create watchdog: %w", err)
	}

	// Application services.
	createSvc, err := create.NewService(create.ServiceConfig{Repository: orderRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create create service: %w", err)
	}
	listSvc, err := list.NewService(list.ServiceConfig{Repository: orderRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create list service: %w", err)
	}
	statusSvc, err := status.NewService(status.ServiceConfig{Repository: orderRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create status service: %w", err)
	}
	startSvc, err := start.NewService(start.ServiceConfig{Repository: orderRepo, Starter: manager, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create start service: %w", err)
	}
	cancelSvc, err := cancel.NewService(cancel.ServiceConfig{Repository: orderRepo, Canceller: manager, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create cancel service: %w", err)
	}
	removeSvc, err := remove.NewService(remove.ServiceConfig{Repository: orderRepo, Canceller: manager, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create remove service: %w", err)
	}
	historySvc, err := history.NewService(history.ServiceConfig{OrderRepository: orderRepo, EventRepository: eventRepo, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create history service: %w", err)
	}
	streamSvc, err := stream.NewService(stream.ServiceConfig{Repository: orderRepo, Broker: broker, Logger: logger})
	if err != nil {
		return fmt.Errorf("could not create stream service: %w", err)
	}

	srv, err := server.New(server.Config{
		Addr:           cfg.ListenAddr,
		CreateService:  createSvc,
		ListService:    listSvc,
		StatusService:  statusSvc,
		StartService:   startSvc,
		CancelService:  cancelSvc,
		RemoveService:  removeSvc,
		HistoryService: historySvc,
		StreamService:  streamSvc,
		PingInterval:   cfg.Stream.PingInterval.Std(),
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("could not create server: %w", err)
	}

	var g run.Group

	// HTTP API server.
	{
		srvCtx, srvCancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				logger.Infof("Server listening on %s", cfg.ListenAddr)
				return srv.Run(srvCtx)
			},
			func(_ error) {
				srvCancel()
			},
		)
	}

	// Stall watchdog.
	{
		wdCtx, wdCancel := context.WithCancel(ctx)
		g.Add(
			func() error {
				return watchdog.Run(wdCtx)
			},
			func(_ error) {
				wdCancel()
			},
		)
	}

	return g.Run()
}

// buildStages wires the three pipeline stages with their collaborators.
func (c ServerCommand) buildStages(cfg *config.Config) (map[model.Stage]pipeline.Stage, error) {
	logger := c.rootCmd.Logger

	preprocessingCollab, err := preprocessingfake.New(preprocessingfake.Config{DataDir: c.dataDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create preprocessing collaborators: %w", err)
	}
	preprocessingStage, err := preprocessing.NewStage(preprocessing.StageConfig{
		Quantifier:    preprocessingCollab,
		Annotator:     preprocessingCollab,
		Plotter:       preprocessingCollab,
		RetryAttempts: cfg.Pipeline.RetryAttempts,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create preprocessing stage: %w", err)
	}

	ragCollab, err := ragenrichfake.New(ragenrichfake.Config{DataDir: c.dataDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create enrichment collaborators: %w", err)
	}
	ragStage, err := ragenrich.NewStage(ragenrich.StageConfig{
		Selector:      ragCollab,
		Searcher:      ragCollab,
		Summarizer:    ragCollab,
		RetryAttempts: cfg.Pipeline.RetryAttempts,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create enrichment stage: %w", err)
	}

	reportCollab, err := reportgenfake.New(reportgenfake.Config{DataDir: c.dataDir, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("could not create report collaborators: %w", err)
	}
	reportStage, err := reportgen.NewStage(reportgen.StageConfig{
		Drafter:       reportCollab,
		Reviewer:      reportCollab,
		Renderer:      reportCollab,
		RetryAttempts: cfg.Pipeline.RetryAttempts,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create report stage: %w", err)
	}

	return map[model.Stage]pipeline.Stage{
		model.StagePreprocessing:    preprocessingStage,
		model.StageRAGEnrichment:    ragStage,
		model.StageReportGeneration: reportStage,
	}, nil
}
