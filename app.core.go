package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/boltdb/bolt"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type AppProvider interface {
	Run() error
	Serve() func() error
	Stop(context.Context, context.Context) func() error
}

type App struct {
	logger         *zap.Logger
	config         *Config
	server         *http.Server
	closers        []func(context.Context) error
	cleanups       []func()
	queueConsumers []func(context.Context) error
}

// NewApp provides an instance of App.
func NewApp() (AppProvider, error) {
	config, err := LoadAndInitConfigs(GitCommit, GitTag, BuildTime)
	if err != nil {
		return nil, fmt.Errorf("failed to setup app configuration: %s", err)
	}

	clock := NewClock(config.IsProduction)

	// ensure the logs folder exists and Setup the logging module.
	if err = os.MkdirAll(config.LogFolder, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create logging folder: %s", err)
	}
	logWriter := NewRSyncWriter(config, clock)
	logger, flusher := SetupLogging(config, logWriter, clock)

	app := &App{
		logger: logger,
		config: config,
		cleanups: []func(){
			func() {
				if ferr := flusher(); ferr != nil {
					fmt.Println("error during flushing of logs: ", ferr)
				}
			},
			func() {
				if cerr := logWriter.Close(); cerr != nil {
					fmt.Println("error during closing of log file: ", cerr)
				}
			},
		},
	}

	backend, err := OpenBackend(logger, config)
	if err != nil {
		app.Clean()
		return nil, fmt.Errorf("failed to setup %s storage: %s", config.Storage.Driver, err)
	}
	app.closers = append(app.closers, backend.Close)

	var queue Queuer
	if config.Mirror.Enabled {
		queue, err = app.setupMirror(backend)
		if err != nil {
			app.Close(context.Background())
			app.Clean()
			return nil, fmt.Errorf("failed to setup mirror: %s", err)
		}
	}

	apiService := NewAPIHandler(
		logger,
		config,
		&Statistics{
			version:   config.GitTag,
			container: IsAppRunningInDocker(),
			started:   clock.Now(),
			runtime:   runtime.Version(),
			platform:  runtime.GOOS + "/" + runtime.GOARCH,
		},
		clock,
		NewIDsHandler(),
		backend.pinger,
	)

	// Use git commit in case the tag is not set.
	if config.GitTag == "" {
		apiService.stats.version = config.GitCommit
	}

	for _, register := range []func() error{
		func() error {
			return RegisterResource[Client](apiService, backend, queue, "cliente", ClientsCollection, ClientIDPrefix)
		},
		func() error {
			return RegisterResource[Author](apiService, backend, queue, "autor", AuthorsCollection, AuthorIDPrefix)
		},
		func() error {
			return RegisterResource[Book](apiService, backend, queue, "livro", BooksCollection, BookIDPrefix)
		},
		func() error {
			return RegisterResource[Loan](apiService, backend, queue, "emprestimo", LoansCollection, LoanIDPrefix)
		},
		func() error {
			return RegisterResource[Fine](apiService, backend, queue, "multa", FinesCollection, FineIDPrefix)
		},
	} {
		if err = register(); err != nil {
			app.Close(context.Background())
			app.Clean()
			return nil, err
		}
	}

	// Build the map of middlewares stacks.
	middlewaresPublic, middlewaresOps := apiService.MiddlewaresStacks()

	// Configure the endpoints with their handlers and middlewares.
	router := apiService.SetupRoutes(httprouter.New(),
		&MiddlewareMap{
			public: middlewaresPublic.Chain,
			ops:    middlewaresOps.Chain,
		},
	)
	// Wrap the router with the default http timeout handler.
	routerWithTimeout := http.TimeoutHandler(
		router,
		config.Server.RequestTimeout,
		"Timeout. Processing taking too long. Please reach out to support.")

	// Build the api server definition.
	app.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", config.Server.Host, config.Server.Port),
		Handler:        routerWithTimeout,
		ReadTimeout:    config.Server.ReadTimeout,
		WriteTimeout:   config.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // Max headers size : 1MB
	}

	return app, nil
}

// RegisterResource builds the storage, service and handlers of a collection
// then adds them to the api.
func RegisterResource[E any, P EntityPtr[E]](api *APIHandler, backend *Backend, queue Queuer, name, collection, prefix string) error {
	storage, err := NewStorage[E](backend, collection)
	if err != nil {
		return fmt.Errorf("failed to setup %s storage: %s", collection, err)
	}
	service := NewResourceService[E](api.logger, collection, storage, queue)
	api.Register(NewResourceHandler[E, P](api, name, prefix, service))
	return nil
}

// setupMirror connects the change-feed queue and registers the consumer which
// replays every change into the mirror bolt file.
func (app *App) setupMirror(backend *Backend) (Queuer, error) {
	redisClient := backend.redis
	if redisClient == nil {
		var err error
		redisClient, err = GetRedisClient(app.config)
		if err != nil {
			app.logger.Error("mirror: failed to connect to redis server", zap.Error(err))
		}
		app.closers = append(app.closers, func(context.Context) error { return redisClient.Close() })
	}

	boltDBClient, err := GetBoltDBClient(app.config.Mirror.FilePath, app.config.Mirror.Timeout)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func(context.Context) error { return boltDBClient.Close() })

	mirrors, err := newMirrorStorages(app.logger, boltDBClient)
	if err != nil {
		return nil, err
	}

	queue := NewRedisQueue(redisClient)
	consumer := NewBoltDBConsumer(app.logger, queue, mirrors)
	app.queueConsumers = append(app.queueConsumers, func(ctx context.Context) error {
		return consumer.Consume(ctx, CreateQueue, UpdateQueue, DeleteQueue)
	})
	return queue, nil
}

func newMirrorStorages(logger *zap.Logger, client *bolt.DB) (map[string]Storage[json.RawMessage], error) {
	mirrors := make(map[string]Storage[json.RawMessage])
	for _, collection := range []string{ClientsCollection, AuthorsCollection, BooksCollection, LoansCollection, FinesCollection} {
		storage, err := NewBoltStorage[json.RawMessage](logger, client, collection)
		if err != nil {
			return nil, err
		}
		mirrors[collection] = storage
	}
	return mirrors, nil
}

// Run starts the api web server and a goroutine which is responsible to stop it.
func (app *App) Run() error {
	defer app.Clean()
	nCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(nCtx)

	g.Go(app.ConsumeQueues(gCtx, g))
	g.Go(app.Serve())
	g.Go(app.Stop(nCtx, gCtx))

	err := g.Wait()
	app.logger.Info("api server stopped",
		zap.String("app.host", app.config.Server.Host),
		zap.String("app.port", app.config.Server.Port),
		zap.Error(err),
	)
	return err
}

// Clean calls all registered cleanups functions.
func (app *App) Clean() {
	for _, f := range app.cleanups {
		f()
	}
}

// Close releases the storage and queue clients.
func (app *App) Close(ctx context.Context) {
	for _, f := range app.closers {
		if err := f(ctx); err != nil && err != redis.ErrClosed {
			app.logger.Error("failed to close storage client", zap.Error(err))
		}
	}
}

// Serve starts the api web server. It returned error
// will be caught by the errorgroup.
func (app *App) Serve() func() error {
	return func() error {
		app.logger.Info("api server starting",
			zap.String("app.host", app.config.Server.Host),
			zap.String("app.port", app.config.Server.Port),
			zap.String("storage.driver", app.config.Storage.Driver),
		)
		err := app.server.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		return err
	}
}

// Stop listens for the group context and triggers the server graceful shutdown.
// It states the reason of its call. We proceed with a brutal shutdown if the
// the graceful did not complete successfully. We explicitly return `nil` to
// allow the errorgroup catches only the `Serve` method result.
func (app *App) Stop(nCtx, gCtx context.Context) func() error {
	return func() error {
		<-gCtx.Done()

		if nCtx.Err() != nil {
			app.logger.Info("api server stopping. reason: requested to stop")
		} else {
			app.logger.Info("api server stopping. reason: errored at running")
		}

		sCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
		defer cancel()
		err := app.server.Shutdown(sCtx)
		switch err {
		case nil, http.ErrServerClosed:
			app.logger.Info("api server graceful shutdown succeeded")
		case context.DeadlineExceeded:
			app.logger.Info("api server graceful shutdown timed out")
		default:
			app.logger.Info("api server graceful shutdown failed", zap.Error(err))
		}

		if err != nil && err != http.ErrServerClosed {
			app.logger.Info("api server going to force shutdown", zap.Error(app.server.Close()))
		}
		app.Close(sCtx)
		return nil
	}
}

// ConsumeQueues runs all queue consumers into separate controlled goroutines.
func (app *App) ConsumeQueues(gCtx context.Context, g *errgroup.Group) func() error {
	return func() error {
		for _, consume := range app.queueConsumers {
			consume := consume
			g.Go(func() error {
				return consume(gCtx)
			})
		}
		return nil
	}
}
