package cache

import (
	"fmt"

	"github.com/erp/billing/internal/infrastructure/config"
	"go.uber.org/zap"
)

// LockerFactory creates lockers based on configuration
type LockerFactory struct {
	redisConfig           config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// LockerFactoryOption is a functional option for configuring the factory
type LockerFactoryOption func(*LockerFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to an
// in-memory locker. Default is true.
func WithInMemoryFallback(allow bool) LockerFactoryOption {
	return func(f *LockerFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewLockerFactory creates a new factory
func NewLockerFactory(cfg config.RedisConfig, opts ...LockerFactoryOption) *LockerFactory {
	f := &LockerFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateLocker returns a Redis locker when Redis is configured and reachable,
// otherwise an in-memory one if fallback is allowed.
func (f *LockerFactory) CreateLocker() (Locker, error) {
	if !f.redisConfig.RedisEnabled() {
		f.logger.Info("Redis not configured, using in-memory locker")
		return NewInMemoryLocker(), nil
	}

	locker, err := NewRedisLocker(RedisConfig{
		Addr:     f.redisConfig.Addr(),
		Password: f.redisConfig.Password,
		DB:       f.redisConfig.DB,
	})
	if err == nil {
		f.logger.Info("using Redis locker", zap.String("addr", f.redisConfig.Addr()))
		return locker, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for distributed locking but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory locker. "+
		"Replicas may each run the recurring batch.",
		zap.Error(err),
	)
	return NewInMemoryLocker(), nil
}
