package graphstore

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Runner executes one Cypher statement in its own managed transaction and
// returns the records as maps keyed by column.
type Runner interface {
	Run(ctx context.Context, write bool, cypher string, params map[string]any) ([]map[string]any, error)
}

// DriverRunner runs statements through a Neo4j driver.
type DriverRunner struct {
	Driver   neo4j.DriverWithContext
	Database string
}

// Run implements Runner with ExecuteRead or ExecuteWrite, so the driver
// retries transient cluster errors.
func (r *DriverRunner) Run(ctx context.Context, write bool, cypher string, params map[string]any) ([]map[string]any, error) {
	mode := neo4j.AccessModeRead
	if write {
		mode = neo4j.AccessModeWrite
	}
	session := r.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: r.Database,
	})
	defer session.Close(ctx)

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(records))
		for _, rec := range records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	}

	var (
		v   any
		err error
	)
	if write {
		v, err = session.ExecuteWrite(ctx, work)
	} else {
		v, err = session.ExecuteRead(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	rows, _ := v.([]map[string]any)
	return rows, nil
}
