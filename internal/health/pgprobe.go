package health

import (
	"context"
	"database/sql"
	"fmt"
)

var _ DatabaseProber = (*PGProbe)(nil)

// PGProbe checks PostgreSQL connectivity and performs a trivial round-trip
// query.
type PGProbe struct {
	DB *sql.DB
}

func (p *PGProbe) Probe(ctx context.Context) error {
	if p.DB == nil {
		return nil
	}
	if err := p.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := p.DB.QueryRowContext(ctx, `select 1`).Scan(&one); err != nil {
		return fmt.Errorf("round trip: %w", err)
	}
	return nil
}
