package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaderLockKey — ключ pg_advisory_lock для выбора лидера планировщика.
const LeaderLockKey int64 = 424242

// LeaderLock — session-level advisory lock PostgreSQL.
//
// Lock принадлежит соединению, поэтому LeaderLock держит одно
// соединение из пула, пока лидерство не отпущено.
type LeaderLock struct {
	pool *pgxpool.Pool
	key  int64

	conn *pgxpool.Conn
}

// NewLeaderLock создаёт LeaderLock для ключа key.
func NewLeaderLock(pool *pgxpool.Pool, key int64) *LeaderLock {
	return &LeaderLock{pool: pool, key: key}
}

// TryAcquire пытается стать лидером. Повторный вызов у лидера
// проверяет, что соединение с lock живо.
func (l *LeaderLock) TryAcquire(ctx context.Context) (bool, error) {
	if l.conn != nil {
		if err := l.conn.Ping(ctx); err == nil {
			return true, nil
		}
		// Соединение потеряно вместе с lock
		l.conn.Release()
		l.conn = nil
	}

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", l.key).Scan(&ok); err != nil {
		conn.Release()
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Release()
		return false, nil
	}

	l.conn = conn
	return true, nil
}

// Release отпускает лидерство.
func (l *LeaderLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Release()
		l.conn = nil
	}()

	if _, err := l.conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	return nil
}

// Run вызывает Tick каждые interval, пока держит лидерство.
// Не-лидер пропускает тики и пробует захватить lock снова.
func (s *Scheduler) Run(ctx context.Context, lock *LeaderLock, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logger.Warn("failed to release leader lock", "error", err)
		}
	}()

	wasLeader := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		leader, err := lock.TryAcquire(ctx)
		if err != nil {
			s.logger.Error("leader election failed", "error", err)
			continue
		}
		if leader != wasLeader {
			s.logger.Info("leadership changed", slog.Bool("leader", leader))
			wasLeader = leader
		}
		if !leader {
			continue
		}

		if _, err := s.Tick(ctx); err != nil {
			s.logger.Error("scheduler tick failed", "error", err)
		}
	}
}
