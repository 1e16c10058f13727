// Package db owns the ledger's gorm connection: opening it for postgres or
// sqlite, sizing the pool and running work inside transactions.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type Client struct {
	conn        *gorm.DB
	lockTimeout time.Duration
}

// Pinger is the readiness probe surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New opens the database named by cfg and sizes its pool.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	if logg == nil {
		logg = logger.Nop()
	}

	conn, err := gorm.Open(dialector(cfg), &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	pool, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	maxOpen := cfg.MaxOpenConns
	if cfg.IsSQLite() {
		// one writer at a time
		maxOpen = 1
	}
	if maxOpen > 0 {
		pool.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		pool.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"driver":         cfg.Driver,
		"max_open_conns": maxOpen,
		"lock_timeout":   cfg.LockTimeout.String(),
	}), "database connection established")
	return Wrap(conn, cfg.LockTimeout), nil
}

// Wrap adopts an already opened connection, as tests do with sqlite.
func Wrap(conn *gorm.DB, lockTimeout time.Duration) *Client {
	return &Client{conn: conn, lockTimeout: lockTimeout}
}

func dialector(cfg config.DBConfig) gorm.Dialector {
	if cfg.IsSQLite() {
		return sqlite.Open(cfg.DSN)
	}
	return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true})
}

// LockTimeout bounds how long a posting waits on a balance row lock.
func (c *Client) LockTimeout() time.Duration { return c.lockTimeout }

func (c *Client) DB() *gorm.DB { return c.conn }

func (c *Client) Ping(ctx context.Context) error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.PingContext(ctx)
}

func (c *Client) Close() error {
	pool, err := c.conn.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// WithTx runs fn in a transaction. fn's error or panic rolls it back; the
// panic is re-raised after the rollback. On postgres the client's lock
// timeout is set before fn runs, so every lock fn takes is bounded.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	tx := c.conn.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin: %w", tx.Error)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
		tx.Rollback()
	}()

	if err := SetLocalLockTimeout(tx, c.lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}
