package app

import (
	"context"
	"fmt"

	"github.com/moontv/gateway/internal/config"
	"github.com/moontv/gateway/internal/storage"
	"github.com/moontv/gateway/internal/storage/d1"
	"github.com/moontv/gateway/internal/storage/memory"
	"github.com/moontv/gateway/internal/storage/redis"
	"github.com/moontv/gateway/internal/storage/upstash"
)

// OpenBackend builds the backend selected by STORAGE_TYPE. localstorage and
// unrecognized types get the in-process store.
func OpenBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Type {
	case config.StorageRedis:
		return redis.New(cfg.Storage.RedisURL)
	case config.StorageUpstash:
		return upstash.New(upstash.Config{
			URL:   cfg.Storage.UpstashURL,
			Token: cfg.Storage.UpstashToken,
		})
	case config.StorageD1:
		return d1.Open(ctx, d1.Config{
			DatabaseID: cfg.Storage.D1DatabaseID,
			DataDir:    cfg.Storage.DataDir,
		})
	default:
		return memory.New(), nil
	}
}

// unavailable stands in for a backend that failed to open. Every call
// returns the open error so requests fail the same way a broken connection
// would.
type unavailable struct {
	err error
}

func newUnavailable(storageType string, err error) storage.Backend {
	return unavailable{err: fmt.Errorf("%s backend unavailable: %w", storageType, err)}
}

func (u unavailable) CheckUserExist(context.Context, string) (bool, error) { return false, u.err }
func (u unavailable) RegisterUser(context.Context, string, string) error   { return u.err }
func (u unavailable) GetAdminConfig(context.Context) (*storage.AdminConfig, error) {
	return nil, u.err
}
func (u unavailable) SaveAdminConfig(context.Context, *storage.AdminConfig) error { return u.err }
func (u unavailable) Ping(context.Context) error                                   { return u.err }
func (u unavailable) Close() error                                                 { return nil }
