// Package seed holds the default roster, ballot and committee accounts and
// loads them into an empty store.
package seed

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/internal/database/repositories"
	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

var (
	//go:embed roster.json
	rosterJSON []byte

	//go:embed candidates.json
	candidatesJSON []byte

	//go:embed admins.json
	adminsJSON []byte
)

// Voters returns a fresh copy of the default roster
func Voters() ([]*database.Voter, error) {
	var out []*database.Voter
	if err := json.Unmarshal(rosterJSON, &out); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return out, nil
}

// Candidates returns a fresh copy of the default ballot
func Candidates() ([]*database.Candidate, error) {
	var out []*database.Candidate
	if err := json.Unmarshal(candidatesJSON, &out); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	return out, nil
}

// Admins returns a fresh copy of the default committee accounts
func Admins() ([]*database.Admin, error) {
	var out []*database.Admin
	if err := json.Unmarshal(adminsJSON, &out); err != nil {
		return nil, fmt.Errorf("decode admins: %w", err)
	}
	return out, nil
}

// Result reports how many records Initialize inserted per collection
type Result struct {
	Voters     int
	Candidates int
	Admins     int
}

// Seeder loads the defaults into a store
type Seeder struct {
	store *database.Store
	log   *logger.Logger
}

func NewSeeder(store *database.Store, log *logger.Logger) *Seeder {
	if log == nil {
		log = logger.NewNop()
	}
	return &Seeder{store: store, log: log.WithComponent("seed")}
}

// Initialize fills every empty collection with its defaults. Collections
// that already hold records are left alone, so calling it again is a no-op.
func (s *Seeder) Initialize(ctx context.Context) (Result, error) {
	voters, err := Voters()
	if err != nil {
		return Result{}, err
	}
	candidates, err := Candidates()
	if err != nil {
		return Result{}, err
	}
	admins, err := Admins()
	if err != nil {
		return Result{}, err
	}

	var res Result
	err = s.store.InTx(ctx, func(tx *sql.Tx) error {
		res = Result{}

		voterRepo := repositories.NewVoterRepository(s.store).WithTx(tx)
		if n, err := voterRepo.Count(ctx); err != nil {
			return err
		} else if n == 0 {
			for _, v := range voters {
				if err := voterRepo.Add(ctx, v); err != nil {
					return err
				}
			}
			res.Voters = len(voters)
		}

		candidateRepo := repositories.NewCandidateRepository(s.store).WithTx(tx)
		if n, err := candidateRepo.Count(ctx); err != nil {
			return err
		} else if n == 0 {
			for _, c := range candidates {
				if err := candidateRepo.Register(ctx, c); err != nil {
					return err
				}
			}
			res.Candidates = len(candidates)
		}

		adminRepo := repositories.NewAdminRepository(s.store).WithTx(tx)
		if n, err := adminRepo.Count(ctx); err != nil {
			return err
		} else if n == 0 {
			for _, a := range admins {
				if err := adminRepo.Add(ctx, a); err != nil {
					return err
				}
			}
			res.Admins = len(admins)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("seed defaults: %w", err)
	}

	if res != (Result{}) {
		s.log.Info("default data seeded", "voters", res.Voters, "candidates", res.Candidates, "admins", res.Admins)
	}
	return res, nil
}
