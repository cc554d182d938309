package app

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/proptly/mediaflow/internal/chunk"
	"github.com/proptly/mediaflow/internal/config"
	"github.com/proptly/mediaflow/internal/db"
	"github.com/proptly/mediaflow/internal/repository"
	"github.com/proptly/mediaflow/internal/service"
	"github.com/proptly/mediaflow/internal/storage"
	"github.com/proptly/mediaflow/internal/thumbnail"
)

type App struct {
	Cfg             *config.Config
	DB              *sqlx.DB
	UserRepository  repository.UserRepository
	FileService     *service.FileService
	JobService      *service.JobService
	ActivityService *service.ActivityService
	ChunkArena      *chunk.Arena
}

func New(cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %v", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}

	// Repositories
	userRepository := repository.NewUserRepository(database)
	jobRepository := repository.NewJobRepository(database)
	fileRepository := repository.NewFileRepository(database)
	activityRepository := repository.NewActivityRepository(database)

	// Storage
	fileStorage := storage.New(cfg)

	// Services
	activityService := service.NewActivityService(activityRepository)
	jobService := service.NewJobService(jobRepository, activityService)
	fileService := service.NewFileService(
		fileRepository,
		jobService,
		activityService,
		fileStorage,
		thumbnail.NewGenerator(cfg.ThumbnailSize, cfg.ThumbnailQuality),
		cfg.PresignExpiryDownload,
	)

	arena := chunk.NewArena(cfg.ChunkSessionTTL)

	return &App{
		Cfg:             cfg,
		DB:              database,
		UserRepository:  userRepository,
		FileService:     fileService,
		JobService:      jobService,
		ActivityService: activityService,
		ChunkArena:      arena,
	}, nil
}

func (a *App) Close() error {
	a.ChunkArena.Close()
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
