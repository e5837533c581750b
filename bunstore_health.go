package gatekit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

// PoolConfig sizes the database connection pool.
type PoolConfig struct {
	MaxOpenConnections    int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
	ConnectionMaxIdleTime time.Duration
}

// DefaultPoolConfig returns pool settings suited to a single API instance.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxOpenConnections:    25,
		MaxIdleConnections:    5,
		ConnectionMaxLifetime: 30 * time.Minute,
		ConnectionMaxIdleTime: 5 * time.Minute,
	}
}

// Health performs a health check of the database connection.
// Returns latency, pool statistics and error information when available.
func (s *BunStore) Health(ctx context.Context) dbkit.HealthStatus {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.Health(ctx)
	}

	return dbkit.HealthStatus{
		Healthy: s.IsHealthy(ctx),
		Error:   "Limited health check - not a DBKit instance",
	}
}

// IsHealthy implements HealthMonitor.
func (s *BunStore) IsHealthy(ctx context.Context) bool {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.IsHealthy(ctx)
	}
	return s.Ping(ctx) == nil
}

// Ping performs a basic connectivity test to the database.
func (s *BunStore) Ping(ctx context.Context) error {
	var result int
	return s.db.NewRaw("SELECT 1").Scan(ctx, &result)
}

// PoolStats returns connection pool statistics for monitoring.
// Returns zero values if the store doesn't wrap a *dbkit.DBKit.
func (s *BunStore) PoolStats() dbkit.PoolStats {
	if db, ok := s.db.(*dbkit.DBKit); ok {
		return dbkit.PoolStatsFromSQL(db.Stats())
	}
	return dbkit.PoolStats{}
}

// ConfigurePool applies cfg to the underlying connection pool.
func (s *BunStore) ConfigurePool(cfg PoolConfig) error {
	db, ok := s.db.(*dbkit.DBKit)
	if !ok {
		return fmt.Errorf("gatekit: connection pool configuration requires a dbkit.DBKit instance")
	}
	bunDB := db.Bun()
	if bunDB == nil {
		return fmt.Errorf("gatekit: database instance not available")
	}

	bunDB.SetMaxOpenConns(cfg.MaxOpenConnections)
	bunDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	bunDB.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)
	bunDB.SetConnMaxIdleTime(cfg.ConnectionMaxIdleTime)
	return nil
}
