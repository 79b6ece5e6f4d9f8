package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrUnavailable reports that no database handle could be produced. It always
// wraps the underlying reason (missing configuration or a construction failure).
var ErrUnavailable = errors.New("database: unavailable")

// ProviderConfig describes how the provider locates and opens the database.
type ProviderConfig struct {
	// URL is consulted on every acquisition attempt until a handle is cached.
	URL        func() string
	LogQueries bool
	Logger     *zap.Logger
}

// Provider lazily constructs a single shared gorm handle. Only successful handles
// are cached; a failed attempt is retried on the next call.
type Provider struct {
	url        func() string
	open       func(string) (*gorm.DB, error)
	logger     *zap.Logger
	handle     atomic.Pointer[gorm.DB]
	logQueries bool
}

// NewProvider builds a provider. A nil URL source behaves like an unset variable.
func NewProvider(cfg ProviderConfig) *Provider {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	url := cfg.URL
	if url == nil {
		url = func() string { return "" }
	}
	provider := &Provider{
		url:        url,
		logger:     logger,
		logQueries: cfg.LogQueries,
	}
	provider.open = func(databaseURL string) (*gorm.DB, error) {
		return Open(databaseURL, OpenOptions{LogQueries: provider.logQueries, Logger: provider.logger})
	}
	return provider
}

// Acquire returns the shared handle bound to ctx, constructing it on first use.
// Failures are returned as ErrUnavailable and never escape as panics.
func (p *Provider) Acquire(ctx context.Context) (*gorm.DB, error) {
	if db := p.handle.Load(); db != nil {
		return db.WithContext(ctx), nil
	}

	databaseURL := strings.TrimSpace(p.url())
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ErrMissingDatabaseURL)
	}

	db, err := p.construct(databaseURL)
	if err != nil {
		p.logger.Warn("database connection failed",
			zap.String("scheme", schemeOf(databaseURL)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	for !p.handle.CompareAndSwap(nil, db) {
		if existing := p.handle.Load(); existing != nil {
			closeHandle(db)
			db = existing
			break
		}
	}
	return db.WithContext(ctx), nil
}

// Available reports whether a handle can be acquired right now.
func (p *Provider) Available(ctx context.Context) bool {
	_, err := p.Acquire(ctx)
	return err == nil
}

// Close releases the cached handle, if any. A later Acquire reconnects.
func (p *Provider) Close() error {
	db := p.handle.Swap(nil)
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (p *Provider) construct(databaseURL string) (db *gorm.DB, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			db = nil
			err = fmt.Errorf("database: driver panic: %v", recovered)
		}
	}()
	return p.open(databaseURL)
}

func closeHandle(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
