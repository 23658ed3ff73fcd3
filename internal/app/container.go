package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/app/config"
	"github.com/zzjunior/whatsapp-checker-api/internal/auth"
	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
	"github.com/zzjunior/whatsapp-checker-api/internal/instance"
	"github.com/zzjunior/whatsapp-checker-api/internal/storage"
	"github.com/zzjunior/whatsapp-checker-api/internal/storage/repository"
	"github.com/zzjunior/whatsapp-checker-api/internal/verification"
	"github.com/zzjunior/whatsapp-checker-api/internal/whatsapp"
	"github.com/zzjunior/whatsapp-checker-api/internal/ws"
)

// Container holds all application dependencies.
type Container struct {
	config *config.Config
	db     *storage.Database

	// Repositories
	instanceRepo domain.InstanceRepository
	userRepo     domain.UserRepository
	tokenRepo    domain.TokenRepository
	cacheRepo    domain.CacheRepository
	logRepo      domain.VerificationLogRepository

	// Services
	registry     *instance.Registry
	authService  *auth.Service
	verification *verification.Service
	hub          *ws.Hub
	jobs         *Jobs
}

// NewContainer creates a new dependency injection container.
func NewContainer(cfg *config.Config) (*Container, error) {
	container := &Container{config: cfg}

	if err := container.initializeDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := container.initializeRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	if err := container.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := container.initializeJobs(); err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	log.Info().Msg("Application container initialized successfully")
	return container, nil
}

// initializeDatabase sets up the database connection and runs migrations.
func (c *Container) initializeDatabase() error {
	db, err := storage.New(c.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	c.db = db
	log.Info().Str("driver", c.config.Database.Driver).Msg("Database initialized successfully")
	return nil
}

// initializeRepositories sets up all repositories.
func (c *Container) initializeRepositories() error {
	c.instanceRepo = repository.NewInstanceRepository(c.db.DB)
	c.userRepo = repository.NewUserRepository(c.db.DB)
	c.tokenRepo = repository.NewTokenRepository(c.db.DB)
	c.cacheRepo = repository.NewCacheRepository(c.db.DB)
	c.logRepo = repository.NewVerificationLogRepository(c.db.DB)

	log.Info().Msg("Repositories initialized successfully")
	return nil
}

// initializeServices wires the session supervisor, auth, verification and
// the realtime hub together.
func (c *Container) initializeServices() error {
	wa := c.config.WhatsApp

	creds := instance.NewCredStore(wa.AuthDir, c.instanceRepo)
	dialer := whatsapp.NewDialer(wa.AuthDir, wa.Debug)

	c.registry = instance.NewRegistry(c.instanceRepo, dialer, creds, instance.HandleConfig{
		MaxReconnectAttempts: wa.MaxReconnectAttempts,
		ReconnectDelay:       wa.ReconnectDelay,
		ReconnectCooldown:    wa.ReconnectCooldown,
		CheckTimeout:         wa.CheckTimeout,
		CheckRetryAttempts:   wa.CheckRetryAttempts,
		CheckRetryDelay:      wa.CheckRetryDelay,
		BackupDelay:          wa.BackupDelay,
	})

	c.authService = auth.NewService(
		c.userRepo,
		c.tokenRepo,
		c.config.Auth.JWTSecret,
		c.config.Auth.TokenTTL,
		c.config.Auth.BcryptCost,
	)

	if err := c.authService.EnsureDefaultAdmin(
		context.Background(),
		c.config.Auth.DefaultAdmin,
		c.config.Auth.DefaultAdminPassword,
	); err != nil {
		return err
	}

	c.verification = verification.NewService(
		c.cacheRepo,
		c.logRepo,
		func(id domain.InstanceID) (verification.Checker, bool) {
			handle, ok := c.registry.ConnectedHandle(id)
			if !ok {
				return nil, false
			}
			return handle, true
		},
		c.authService.ConsumeToken,
		wa.CacheTTL,
	)

	c.hub = ws.NewHub(c.authService, c.registry, c.instanceRepo)
	c.registry.OnStatusChange(c.hub.NotifyInstance)

	log.Info().Msg("Services initialized successfully")
	return nil
}

// initializeJobs sets up the scheduled maintenance jobs.
func (c *Container) initializeJobs() error {
	jobs, err := NewJobs(c.verification)
	if err != nil {
		return err
	}
	c.jobs = jobs

	log.Info().Msg("Jobs initialized successfully")
	return nil
}

// Accessors

func (c *Container) Config() *config.Config { return c.config }

func (c *Container) Database() *storage.Database { return c.db }

func (c *Container) InstanceRepository() domain.InstanceRepository { return c.instanceRepo }

func (c *Container) UserRepository() domain.UserRepository { return c.userRepo }

func (c *Container) TokenRepository() domain.TokenRepository { return c.tokenRepo }

func (c *Container) Registry() *instance.Registry { return c.registry }

func (c *Container) AuthService() *auth.Service { return c.authService }

func (c *Container) VerificationService() *verification.Service { return c.verification }

func (c *Container) Hub() *ws.Hub { return c.hub }

func (c *Container) Jobs() *Jobs { return c.jobs }

// Close releases every resource the container owns: live sessions first,
// then jobs, then the database.
func (c *Container) Close() error {
	if c.registry != nil {
		c.registry.DrainAll()
	}
	if c.jobs != nil {
		c.jobs.Stop()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
	}

	log.Info().Msg("Application container closed")
	return nil
}
