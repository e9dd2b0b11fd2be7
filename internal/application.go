package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/playgrid/tictactoe-server/internal/config"
	"github.com/playgrid/tictactoe-server/internal/monitor"
	"github.com/playgrid/tictactoe-server/internal/repository"
	"github.com/playgrid/tictactoe-server/internal/repository/storage"
	"github.com/playgrid/tictactoe-server/internal/usecase"
	"github.com/playgrid/tictactoe-server/transport/rest"
	"github.com/playgrid/tictactoe-server/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

const metricsNamespace = "tictactoe"

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	metrics := monitor.New(metricsNamespace)

	roomRepo, cleanup, err := buildRoomRepository(ctx, log, conf)
	if err != nil {
		return err
	}
	defer cleanup()

	roomManager := usecase.NewRoomManager(logger, roomRepo, metrics)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(ctx, conf.HTTPPort, metrics); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		wsServer := websocket.New(logger, roomManager, metrics)
		if wsErr := wsServer.Start(ctx, conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}

func buildRoomRepository(ctx context.Context, log *slog.Logger, conf *config.Config) (repository.RoomRepository, func(), error) {
	if conf.Storage.Backend != config.StorageRedis {
		memRepo := repository.NewMemoryRoomRepository(conf.Storage.RoomTTL, conf.Storage.ReapInterval)
		log.Info("using in-memory room registry", "room_ttl", conf.Storage.RoomTTL)

		return memRepo, memRepo.Stop, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	cleanup := func() {
		if closeErr := redisStorage.Close(); closeErr != nil {
			log.Error("could not close redis storage", "error", closeErr)
		}
	}

	log.Info("using redis room registry", "addr", redisAddrString, "room_ttl", conf.Storage.RoomTTL)

	return repository.NewRedisRoomRepository(redisStorage.Connection, conf.Storage.RoomTTL), cleanup, nil
}
