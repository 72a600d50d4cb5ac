package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CodeGenerator mints business codes of the form PREFIX-YYYY-NNNNNN from a
// per-prefix, per-year counter row.
type CodeGenerator struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCodeGenerator constructs a CodeGenerator.
func NewCodeGenerator(db *sqlx.DB) *CodeGenerator {
	return &CodeGenerator{db: db, now: time.Now}
}

func (g *CodeGenerator) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return g.db
}

// Next returns the next code for prefix. Run it in the caller's transaction so
// a rolled back unit of work does not leave the counter advanced.
func (g *CodeGenerator) Next(ctx context.Context, exec sqlx.ExtContext, prefix string) (string, error) {
	year := g.now().UTC().Year()
	key := fmt.Sprintf("%s-%d", prefix, year)

	const query = `INSERT INTO code_sequences (prefix, value) VALUES ($1, 1)
ON CONFLICT (prefix) DO UPDATE SET value = code_sequences.value + 1
RETURNING value`
	var value int64
	if err := sqlx.GetContext(ctx, g.exec(exec), &value, query, key); err != nil {
		return "", fmt.Errorf("next code for %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, year, value), nil
}
