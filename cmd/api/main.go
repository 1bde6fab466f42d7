package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"backend-triptracker/internal/config"
	"backend-triptracker/internal/db"
	"backend-triptracker/internal/server"
	"backend-triptracker/internal/tracking"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	watchConfig     func(string, func(config.Config)) (config.Config, error)
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	openSQLite      func(config.Config) (*gorm.DB, error)
	connectMQTT     func(config.Config) (mqtt.Client, error)
	connectRabbitMQ func(config.Config) (*amqp.Connection, error)
	notify          func(chan<- os.Signal, ...os.Signal)
	run             func(context.Context, config.Config, server.Deps, <-chan os.Signal, ListenFunc) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		watchConfig:     config.Watch,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		openSQLite:      db.OpenSQLite,
		connectMQTT:     db.ConnectMQTT,
		connectRabbitMQ: db.ConnectRabbitMQ,
		notify:          signal.Notify,
		run:             Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	if cfg.ConfigFile != "" {
		fileCfg, err := deps.watchConfig(cfg.ConfigFile, func(next config.Config) {
			if engine := liveEngine.Load(); engine != nil {
				engine.SetAccuracyThreshold(next.AccuracyThresholdM)
			}
		})
		if err != nil {
			log.Printf("config file %s ignored: %v", cfg.ConfigFile, err)
		} else {
			cfg = fileCfg
		}
	}

	var sd server.Deps
	var err error
	if cfg.StoreDriver == "postgres" {
		sd.Postgres, err = deps.connectPostgres(cfg)
		if err != nil {
			log.Printf("postgres connection failed: %v", err)
		}
	} else {
		sd.SQLite, err = deps.openSQLite(cfg)
		if err != nil {
			log.Printf("sqlite open failed: %v", err)
		}
	}

	sd.Redis = deps.connectRedis(cfg)

	sd.MQTT, err = deps.connectMQTT(cfg)
	if err != nil {
		log.Printf("mqtt connection failed: %v", err)
	}
	sd.AMQP, err = deps.connectRabbitMQ(cfg)
	if err != nil {
		log.Printf("rabbitmq connection failed: %v", err)
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, sd, signals, nil); err != nil {
		log.Printf("server exited with error: %v", err)
	}
}

// liveEngine receives config file reloads once Run has built the server.
var liveEngine atomic.Pointer[tracking.Engine]

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals.
func Run(ctx context.Context, cfg config.Config, deps server.Deps, signals <-chan os.Signal, listen ListenFunc) error {
	srv := server.NewServer(cfg, deps)
	liveEngine.Store(srv.Engine)
	defer liveEngine.Store(nil)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			srv.Close()
			closeDeps(deps)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := shutdownFn(srv.App, shutdownCtx)
	srv.Close()
	closeDeps(deps)
	return err
}

func closeDeps(deps server.Deps) {
	if deps.Postgres != nil {
		deps.Postgres.Close()
	}
	if deps.Redis != nil {
		_ = deps.Redis.Close()
	}
	if deps.SQLite != nil {
		if sqlDB, err := deps.SQLite.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if deps.MQTT != nil {
		deps.MQTT.Disconnect(250)
	}
	if deps.AMQP != nil {
		_ = deps.AMQP.Close()
	}
}
