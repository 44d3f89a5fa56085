package postgres

import (
	sq "github.com/Masterminds/squirrel"

	"github.com/omni/bridge-orchestrator/db"
)

type basePostgresRepo struct {
	table string
	db    *db.DB
}

func newBasePostgresRepo(table string, db *db.DB) *basePostgresRepo {
	return &basePostgresRepo{
		table: table,
		db:    db,
	}
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
