package repository

import (
	"github.com/omni/bridge-orchestrator/db"
	"github.com/omni/bridge-orchestrator/entity"
	"github.com/omni/bridge-orchestrator/repository/memory"
	"github.com/omni/bridge-orchestrator/repository/postgres"
)

type Repo struct {
	Transfers entity.TransfersRepo
	Wallets   entity.WalletsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Transfers: postgres.NewTransfersRepo("transfers", db),
		Wallets:   postgres.NewWalletsRepo("wallets", db),
	}
}

// NewMemoryRepo returns a process-local repo, used by tests and the one-shot CLI.
func NewMemoryRepo() *Repo {
	return &Repo{
		Transfers: memory.NewTransfersRepo(),
		Wallets:   memory.NewWalletsRepo(),
	}
}
