package main

import (
	"context"
	"github.com/pkg/errors"
	"github.com/tony-ross/actor-messaging/api"
	"github.com/tony-ross/actor-messaging/config"
	"github.com/tony-ross/actor-messaging/logger"
	"github.com/tony-ross/actor-messaging/publisher"
	"github.com/tony-ross/actor-messaging/readiness"
	"github.com/tony-ross/actor-messaging/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"gorm.io/gorm"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type Application struct {
	Server    *http.Server
	Publisher publisher.Publisher
	Database  *gorm.DB
	Actors    *repository.ActorRepository
}

func main() {
	appConfig, err := config.GetConfig()
	if err != nil {
		log.Fatal(errors.Wrap(err, "Error getting config at startup"))
	}
	ctx, cancel := context.WithCancel(context.Background())

	// Configure the logger
	err = logger.ConfigureLogger(appConfig)
	if err != nil {
		log.Fatal(errors.Wrap(err, "Failed to configure logger at startup"))
	}
	logger.Logger.Infow("Launching actor messaging service", "config", appConfig.String())

	// Trace context on inbound requests is forwarded onto published messages
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Trap SIGINT and SIGTERM to trigger graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	// Channels for components to notify main of errors
	publisherErrChan := make(chan publisher.Error)
	serverErrChan := make(chan error, 1)

	app, err := StartApplication(ctx, appConfig, publisherErrChan, serverErrChan)

	// Ensure proper shutdown is attempted
	defer shutdown(ctx, cancel, appConfig, app)

	if err != nil {
		logger.Logger.Errorw("Error starting application", "error", err)
		return
	}

	// Wait for the server to start properly
	if err := waitForStartup(ctx, appConfig, serverErrChan); err != nil {
		logger.Logger.Info("Shutting down due to start up error")
		return
	}

	// Indicate ready
	ready := readiness.New(ctx, appConfig.ReadinessFilePath,
		readiness.Check{Name: "database", Check: app.Actors.Ping})
	if err := ready.Ready(ctx); err != nil {
		logger.Logger.Errorw("Error indicating ready", "error", err)
		return
	}

	// Block until we receive OS shutdown signal or error
	RunLoop(ctx, appConfig, signals, publisherErrChan, serverErrChan)
}

func RunLoop(ctx context.Context, cfg *config.Configuration, signals chan os.Signal, publisherErrChan chan publisher.Error, serverErrChan chan error) {
	for {
		select {
		case sig := <-signals:
			logger.Logger.Infow("OS Signal Received", "signal", sig.String())
			return
		case serverErr := <-serverErrChan:
			logger.Logger.Errorw("HTTP server error received", "error", serverErr)
			return
		case publisherErr := <-publisherErrChan:
			logger.Logger.Errorw("Publisher error received", "error", publisherErr.Err, "publisher", publisherErr.Name)

			publisherErr.Restart(ctx)

			// Limit the rate of restarts
			time.Sleep(time.Duration(cfg.PublisherRestartWaitSeconds) * time.Second)
		}
	}
}

// StartApplication connects the database and queue backends then starts serving HTTP.
// The returned application holds whatever was started even when an error is returned, so it can be shut down.
func StartApplication(ctx context.Context, cfg *config.Configuration, publisherErrChan chan publisher.Error, serverErrChan chan error) (*Application, error) {
	app := &Application{}

	db, err := repository.Connect(cfg)
	if err != nil {
		return app, errors.Wrap(err, "Error connecting to database")
	}
	app.Database = db
	app.Actors = repository.NewActorRepository(db, cfg.ActorTable)

	app.Publisher, err = publisher.New(ctx, cfg, publisherErrChan)
	if err != nil {
		return app, errors.Wrap(err, "Error starting publisher")
	}

	listener, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return app, errors.Wrap(err, "Error listening for HTTP")
	}

	app.Server = &http.Server{
		Handler:           api.NewServerHandler(api.New(app.Publisher, app.Actors), cfg.RootPath),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go serve(app.Server, listener, serverErrChan)

	return app, nil
}

func serve(server *http.Server, listener net.Listener, serverErrChan chan<- error) {
	logger.Logger.Infow("HTTP server starting", "addr", listener.Addr().String())
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		serverErrChan <- err
	}
}

func waitForStartup(ctx context.Context, cfg *config.Configuration, serverErrChan chan error) error {
	startupTimer, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerStartUpTimeSeconds)*time.Second)
	defer cancel()
	select {
	case err := <-serverErrChan:
		logger.Logger.Errorw("HTTP server errored during startup period", "error", err)
		return err
	case <-startupTimer.Done():
		logger.Logger.Debug("Startup complete")
		return nil
	}
}

func shutdown(ctx context.Context, cancel context.CancelFunc, cfg *config.Configuration, app *Application) {
	logger.Logger.Info("Shutting Down")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer shutdownCancel()

	if app != nil && app.Server != nil {
		// Let in-flight requests finish before their publisher and database go away
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Errorw("Error shutting down HTTP server", "error", err)
		}
	}

	// Cancelling the root context also removes the readiness file
	cancel()

	if app != nil && app.Publisher != nil {
		if err := app.Publisher.Close(); err != nil {
			logger.Logger.Errorw("Error closing publisher", "error", err)
		}
	}
	if app != nil {
		if err := repository.Close(app.Database); err != nil {
			logger.Logger.Errorw("Error closing database", "error", err)
		}
	}

	_ = logger.Logger.Sync()
	logger.Logger.Info("Shutdown complete")
}
