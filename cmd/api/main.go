package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/avaldes/scribeflow/pkg/api"
	"github.com/avaldes/scribeflow/pkg/config"
	"github.com/avaldes/scribeflow/pkg/export"
	"github.com/avaldes/scribeflow/pkg/media"
	"github.com/avaldes/scribeflow/pkg/queue"
	"github.com/avaldes/scribeflow/pkg/storage"
	"github.com/avaldes/scribeflow/pkg/transcriber"
	"github.com/avaldes/scribeflow/pkg/worker"
)

// App holds the wired application components.
type App struct {
	config   *config.Config
	queue    queue.Queue
	store    storage.Store
	blobs    *storage.FSBlobStore
	workers  *worker.Pool
	engine   *transcriber.Engine
	renderer *export.Renderer
}

func main() {
	configPath := os.Getenv("SCRIBEFLOW_CONFIG")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	app := &App{config: cfg}

	blobs, err := storage.NewFSBlobStore(filepath.Join(cfg.Storage.DataDir, "blobs"))
	if err != nil {
		log.Fatalf("init blob store: %v", err)
	}
	app.blobs = blobs

	app.store, err = buildStore(cfg)
	if err != nil {
		log.Fatalf("init job store: %v", err)
	}
	log.Printf("job store ready (type=%s)", cfg.Store.Type)

	app.queue, err = buildQueue(cfg)
	if err != nil {
		log.Fatalf("init queue: %v", err)
	}
	log.Printf("queue ready (type=%s)", cfg.Queue.Type)

	whisper := transcriber.NewWhisperClient(cfg.Engine.APIKey, time.Duration(cfg.Engine.RequestTimeout)*time.Second)
	splitter := media.NewSplitter(cfg.Engine.ChunkSeconds)
	app.engine = transcriber.NewEngine(whisper, splitter, cfg.Engine.ChunkConcurrency, cfg.Engine.MaxRetries)

	app.renderer = export.NewRenderer(app.blobs)

	app.workers = worker.NewPool(
		app.queue,
		app.store,
		app.blobs,
		app.engine,
		cfg.Queue.Workers,
		time.Duration(cfg.Engine.JobTimeout)*time.Minute,
	)
	app.workers.Start()

	server := api.NewServer(cfg, app.store, app.blobs, app.queue, app.renderer, media.FFProbe{})
	router := server.Router()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("scribeflow listening on %s (workers=%d chunk=%ds)", addr, cfg.Queue.Workers, cfg.Engine.ChunkSeconds)

	go func() {
		if err := router.Run(addr); err != nil {
			log.Fatalf("server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")
	app.queue.Close()
	app.workers.Stop()
	app.store.Close()
	log.Println("bye")
}

func buildStore(cfg *config.Config) (storage.Store, error) {
	ttl := time.Duration(cfg.Store.Redis.TTLHours) * time.Hour

	switch cfg.Store.Type {
	case "memory":
		return storage.NewJobStore(), nil
	case "redis":
		return storage.NewRedisJobStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, ttl)
	case "postgres":
		return storage.NewPostgresJobStore(cfg.Store.Postgres.DSN)
	case "hybrid":
		redisStore, err := storage.NewRedisJobStore(cfg.Store.Redis.Addr, cfg.Store.Redis.Password, cfg.Store.Redis.DB, ttl)
		if err != nil {
			return nil, err
		}
		pgStore, err := storage.NewPostgresJobStore(cfg.Store.Postgres.DSN)
		if err != nil {
			redisStore.Close()
			return nil, err
		}
		return storage.NewHybridJobStore(redisStore, pgStore), nil
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}

func buildQueue(cfg *config.Config) (queue.Queue, error) {
	switch cfg.Queue.Type {
	case "memory":
		return queue.NewMemoryQueue(cfg.Queue.BufferSize), nil
	case "rabbitmq":
		return queue.NewRabbitMQQueue(cfg.Queue.RabbitMQ.URL, cfg.Queue.RabbitMQ.QueueName, cfg.Queue.Workers)
	default:
		return nil, fmt.Errorf("unknown queue type: %s", cfg.Queue.Type)
	}
}
