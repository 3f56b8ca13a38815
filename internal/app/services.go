// Package app wires the store, the election services and the notification
// bridge into one container.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/auth"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/backup"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/election"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/notify"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/seed"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/stats"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/config"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// ErrTerminal means the store could not be opened even after a repair. The
// only way forward is to clear the local data and start again.
var ErrTerminal = errors.New("database unavailable after repair; clear the local data and reload")

// Services contains every dependency of the command layer
type Services struct {
	Store  *database.Store
	Bridge notify.Bridge
	Logger *logger.Logger
	Config *config.Config

	Coordinator *election.Coordinator
	Stats       *stats.Service
	Auth        *auth.Service
	Backup      *backup.Service

	// Repositories
	Voters     *repositories.VoterRepository
	Candidates *repositories.CandidateRepository
	Votes      *repositories.VoteRepository
	Admins     *repositories.AdminRepository
	AuditLogs  *repositories.AuditLogRepository

	// Repaired is set when Start had to rebuild the store
	Repaired bool
}

// NewServices creates an unstarted container
func NewServices(cfg *config.Config, log *logger.Logger) *Services {
	if log == nil {
		log = logger.NewNop()
	}
	return &Services{Config: cfg, Logger: log}
}

// Start opens the store, repairing it when it cannot be opened or migrated,
// seeds the defaults and connects the notification bridge.
func (s *Services) Start(ctx context.Context) error {
	s.Logger.Info("Starting election services...")

	store, err := s.open(ctx)
	if err != nil {
		s.Logger.StructuredError(err, map[string]interface{}{"stage": "open"})
		s.Logger.Warning("store unusable, running repair")

		store, err = s.repair(ctx, store)
		if err != nil {
			s.Logger.Error("repair failed", "error", err)
			return fmt.Errorf("%w: %w", ErrTerminal, err)
		}
		s.Repaired = true
	}
	s.Store = store
	s.wire()

	if s.Config.Election.SeedOnInit {
		if _, err := seed.NewSeeder(store, s.Logger).Initialize(ctx); err != nil {
			return err
		}
	}

	bridge, err := notify.New(ctx, s.Config, s.Logger)
	if err != nil {
		s.Logger.Warning("notification bridge unavailable, using in-process delivery", "driver", s.Config.Notify.Driver, "error", err)
		bridge = notify.NewLocalBridge(s.Logger)
	}
	s.Bridge = bridge
	s.Coordinator = election.NewCoordinator(store, bridge, s.Logger, election.WithActor(s.actor()))

	s.Logger.Info("All election services started successfully")
	return nil
}

func (s *Services) open(ctx context.Context) (*database.Store, error) {
	store, err := database.Open(s.Config.Database, s.Logger)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(ctx, store); err != nil {
		return store, err
	}
	return store, nil
}

// repair rebuilds the store in place. When that fails, or the store could
// not be opened at all, the files are removed and a fresh store is built.
func (s *Services) repair(ctx context.Context, store *database.Store) (*database.Store, error) {
	if store != nil {
		_, err := backup.NewService(store, s.Config.Election, s.Logger).Repair(ctx)
		if err == nil {
			return store, nil
		}
		s.Logger.Warning("in-place repair failed, recreating the store", "error", err)
		_ = store.Close()
	}

	if err := database.RemoveFiles(s.Config.Database); err != nil {
		return nil, err
	}
	store, err := database.Open(s.Config.Database, s.Logger)
	if err != nil {
		return nil, err
	}
	if _, err := backup.NewService(store, s.Config.Election, s.Logger).Repair(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Services) wire() {
	s.Voters = repositories.NewVoterRepository(s.Store)
	s.Candidates = repositories.NewCandidateRepository(s.Store)
	s.Votes = repositories.NewVoteRepository(s.Store)
	s.Admins = repositories.NewAdminRepository(s.Store)
	s.AuditLogs = repositories.NewAuditLogRepository(s.Store)

	s.Stats = stats.NewService(s.Store)
	s.Auth = auth.NewService(s.Store, s.Config.Election.IPAddress, s.Logger)
	s.Backup = backup.NewService(s.Store, s.Config.Election, s.Logger)
}

func (s *Services) actor() election.Actor {
	a := election.DefaultActor()
	if ip := s.Config.Election.IPAddress; ip != "" {
		a.IPAddress = ip
	}
	return a
}

// Stop closes the bridge and the store
func (s *Services) Stop() error {
	s.Logger.Info("Stopping election services...")

	var errs []error
	if s.Bridge != nil {
		errs = append(errs, s.Bridge.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	return errors.Join(errs...)
}

// Health reports the state of the store
func (s *Services) Health(ctx context.Context) database.Health {
	return database.CheckHealth(ctx, s.Store)
}

// IsHealthy checks if the store is reachable and fully migrated
func (s *Services) IsHealthy(ctx context.Context) bool {
	h := s.Health(ctx)
	if !h.Healthy {
		s.Logger.Error("Database health check failed", "missing", h.Missing, "error", h.Error)
	}
	return h.Healthy
}
