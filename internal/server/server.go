package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"backend-triptracker/internal/auth"
	"backend-triptracker/internal/checkpoint"
	"backend-triptracker/internal/config"
	"backend-triptracker/internal/db"
	"backend-triptracker/internal/events"
	"backend-triptracker/internal/location"
	"backend-triptracker/internal/storage"
	"backend-triptracker/internal/stream"
	"backend-triptracker/internal/tracking"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const bootTimeout = 5 * time.Second

// Deps are the optional external connections. Any of them may be nil.
type Deps struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	SQLite   *gorm.DB
	MQTT     mqtt.Client
	AMQP     *amqp.Connection
}

type Server struct {
	App        *fiber.App
	Cfg        config.Config
	Engine     *tracking.Engine
	Gateway    *storage.Gateway
	Stream     *stream.Hub
	Checkpoint *checkpoint.Store
	Events     *events.Publisher

	outbox    chan envelope
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func NewServer(cfg config.Config, deps Deps) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		Stream: stream.NewHub(deps.Redis),
		outbox: make(chan envelope, 64),
		stop:   make(chan struct{}),
	}

	var exporter *storage.Exporter
	if cfg.ExportDir != "" {
		exporter = storage.NewExporter(cfg.ExportDir)
	}
	s.Gateway = storage.NewGateway(recordStore(cfg, deps), exporter)

	engineDeps := tracking.Deps{
		Services:  location.StaticStatus(true),
		Persister: s.Gateway,
	}
	var feed *location.MQTTFeed
	if deps.MQTT != nil {
		feed = location.NewMQTTFeed(deps.MQTT, cfg.DeviceID)
		if err := feed.WatchStatus(); err != nil {
			log.Printf("location status watch failed: %v", err)
		}
		engineDeps.Feed = feed
		engineDeps.Services = feed
	}

	s.Engine = tracking.NewEngine(engineOptions(cfg), engineDeps)
	if feed != nil {
		feed.Bind(s.Engine)
	}

	s.Engine.Subscribe(func(snap tracking.Snapshot) {
		s.push(envelope{Type: "snapshot", Data: snap})
	})
	s.Engine.SubscribeSaveResults(func(r tracking.SaveResult) {
		s.push(envelope{Type: "save_result", Data: r})
	})

	if deps.Redis != nil {
		s.Checkpoint = checkpoint.NewStore(deps.Redis, cfg.DeviceID)
		s.restore()
		s.Checkpoint.Attach(s.Engine)
	}

	if deps.AMQP != nil {
		pub, err := events.NewPublisher(deps.AMQP, cfg.DeviceID)
		if err != nil {
			log.Printf("event publisher unavailable: %v", err)
		} else {
			s.Events = pub
			pub.Attach(s.Engine)
		}
	}

	s.wg.Add(2)
	go s.broadcast()
	go s.forwardErrors()

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	tracking.RegisterRoutes(s.App.Group("/trip"), s.Engine, jwtMiddleware)
	storage.RegisterRoutes(s.App.Group("/storage"), s.Engine)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}

// Close stops the engine, waits for in-flight saves and their observers,
// then tears down the fan-out side.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.Engine.Close()
		if s.Events != nil {
			if err := s.Events.Close(); err != nil {
				log.Printf("event publisher close: %v", err)
			}
		}
		if s.Checkpoint != nil {
			s.Checkpoint.Close()
		}
		close(s.stop)
		s.wg.Wait()
		s.Stream.Close()
	})
}

func engineOptions(cfg config.Config) tracking.Options {
	return tracking.Options{
		AccuracyThresholdM: cfg.AccuracyThresholdM,
		TickInterval:       cfg.TickInterval,
		SaveTimeout:        cfg.SaveTimeout,
		Subscription: tracking.SubscribeOptions{
			DesiredAccuracyM: cfg.AccuracyThresholdM,
			MinIntervalM:     cfg.LocationMinIntervalM,
			MinIntervalMs:    cfg.TickInterval.Milliseconds(),
		},
	}
}

func recordStore(cfg config.Config, deps Deps) storage.Store {
	switch cfg.StoreDriver {
	case "postgres":
		if deps.Postgres == nil {
			log.Printf("postgres store selected but not connected")
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), bootTimeout)
		defer cancel()
		if err := db.MigratePostgres(ctx, deps.Postgres); err != nil {
			log.Printf("postgres migrate failed: %v", err)
		}
		return storage.NewPostgresStore(deps.Postgres)
	default:
		if deps.SQLite == nil {
			log.Printf("sqlite store selected but not opened")
			return nil
		}
		store, err := storage.NewSQLiteStore(deps.SQLite)
		if err != nil {
			log.Printf("sqlite store unavailable: %v", err)
			return nil
		}
		return store
	}
}

func (s *Server) restore() {
	ctx, cancel := context.WithTimeout(context.Background(), bootTimeout)
	defer cancel()

	snap, ok, err := s.Checkpoint.Load(ctx)
	if err != nil {
		log.Printf("checkpoint load failed: %v", err)
		return
	}
	if !ok {
		return
	}
	restored, err := s.Engine.Restore(snap)
	if err != nil {
		log.Printf("checkpoint restore failed: %v", err)
		return
	}
	log.Printf("resumed %s trip started %s with %d fixes",
		restored.Status, tracking.FormatDate(restored.StartTime), len(restored.History))
}

// push is called under the engine lock and must not block.
func (s *Server) push(env envelope) {
	select {
	case s.outbox <- env:
	default:
		log.Printf("stream outbox full, dropping %s", env.Type)
	}
}

func (s *Server) broadcast() {
	defer s.wg.Done()
	for {
		select {
		case env := <-s.outbox:
			body, err := json.Marshal(env)
			if err != nil {
				log.Printf("stream encode %s: %v", env.Type, err)
				continue
			}
			s.Stream.Broadcast(s.Cfg.DeviceID, body)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) forwardErrors() {
	defer s.wg.Done()
	for {
		select {
		case err := <-s.Engine.Errors():
			s.push(envelope{Type: "error", Data: fiber.Map{"message": err.Error()}})
		case <-s.stop:
			return
		}
	}
}
