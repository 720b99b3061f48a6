package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/kbworks/docingest/internal/config"
	"github.com/kbworks/docingest/internal/convert"
	"github.com/kbworks/docingest/internal/db"
	"github.com/kbworks/docingest/internal/embed"
	"github.com/kbworks/docingest/internal/embedcache"
	"github.com/kbworks/docingest/internal/handler"
	"github.com/kbworks/docingest/internal/ingest"
	"github.com/kbworks/docingest/internal/job"
	"github.com/kbworks/docingest/internal/repo"
	"github.com/kbworks/docingest/internal/schedule"
	"github.com/kbworks/docingest/internal/storage"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "docingest",
		Short: "document ingestion worker",
	}

	jobCmd := &cobra.Command{
		Use:   "job",
		Short: "run one ingestion task described by the environment, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			return app.runJob()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the ingestion HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(configPath)
			if err != nil {
				return err
			}
			defer app.close()
			return app.serve()
		},
	}

	for _, cmd := range []*cobra.Command{jobCmd, serveCmd} {
		cmd.Flags().StringVar(&configPath, "config", "", "path to config.json")
		rootCmd.AddCommand(cmd)
	}

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Error("startup error", zap.Error(err))
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	db       *sql.DB
	tasks    *repo.TaskRepo
	pipeline *ingest.Pipeline
}

func setup(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	objects, err := storage.NewProvider(cfg.Storage)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	embedder, err := embed.New(cfg.Embedding)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}
	if cfg.Embedding.CacheSize > 0 {
		embedder = embedcache.WrapLRU(embedder, cfg.Embedding.CacheSize,
			time.Duration(cfg.Embedding.CacheTTLMinutes)*time.Minute)
	}
	engine, err := convert.NewEngineConverter(cfg.Converter)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init converter: %w", err)
	}

	tasks := repo.NewTaskRepo(conn)
	pipeline := ingest.NewPipeline(ingest.PipelineParams{
		Tasks:     tasks,
		Store:     repo.NewIngestRepo(conn),
		Objects:   objects,
		Engine:    engine,
		Embedder:  embedder,
		Bucket:    cfg.Storage.Bucket,
		BatchSize: cfg.Ingest.BatchSize,
	})
	return &app{cfg: cfg, db: conn, tasks: tasks, pipeline: pipeline}, nil
}

func (a *app) close() {
	a.db.Close()
}

func (a *app) runJob() error {
	descriptor, err := config.JobFromEnv()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := a.pipeline.Run(ctx, *descriptor)
	if err != nil {
		return fmt.Errorf("task %s failed: %w", descriptor.TaskID, err)
	}
	logutil.GetLogger(ctx).Info("job done",
		zap.String("task_id", descriptor.TaskID),
		zap.Int("chunks", result.ChunksProcessed))
	return nil
}

func (a *app) serve() error {
	deps := handler.RouterDeps{
		Ingest: handler.NewIngestHandler(a.pipeline),
	}
	engine, err := webapi.NewEngine(
		"/api",
		fmt.Sprintf("0.0.0.0:%d", a.cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if a.cfg.Janitor.Enable {
		janitor := job.NewStaleTaskJob(a.tasks, a.cfg.Janitor.MaxProcessingAgeMinutes)
		if err := scheduler.AddJob(janitor, a.cfg.Janitor.CronSpec); err != nil {
			return fmt.Errorf("schedule janitor: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	logutil.GetLogger(ctx).Info("http server listening",
		zap.String("addr", fmt.Sprintf("0.0.0.0:%d", a.cfg.Port)))
	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
