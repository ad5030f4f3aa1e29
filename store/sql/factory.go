package sqlstore

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-connections/core"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"

	defaultPingTimeout = 5 * time.Second
)

// NormalizeDriver maps accepted driver spellings onto the database/sql driver
// name.
func NormalizeDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pg":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}

// Dialect returns the bun dialect for a normalized driver name.
func Dialect(driver string) (schema.Dialect, error) {
	normalized, err := NormalizeDriver(driver)
	if err != nil {
		return nil, err
	}
	if normalized == DriverPostgres {
		return pgdialect.New(), nil
	}
	return sqlitedialect.New(), nil
}

// OpenSQL opens the database/sql handle for the configured driver.
func OpenSQL(cfg core.StoreConfig) (*sql.DB, string, error) {
	driver, err := NormalizeDriver(cfg.Driver)
	if err != nil {
		return nil, "", err
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, "", fmt.Errorf("sqlstore: store.dsn is required")
	}
	sqlDB, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	return sqlDB, driver, nil
}

// OpenDB opens a bun handle with the dialect chosen by store.driver.
func OpenDB(cfg core.StoreConfig) (*bun.DB, error) {
	sqlDB, driver, err := OpenSQL(cfg)
	if err != nil {
		return nil, err
	}
	dialect, err := Dialect(driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return bun.NewDB(sqlDB, dialect), nil
}

// NewUserStoreFromPersistence accepts a *bun.DB or anything exposing DB(),
// such as a go-persistence-bun client.
func NewUserStoreFromPersistence(client any, vault core.CredentialVault, opts ...Option) (*UserStore, error) {
	db, err := resolveBunDB(client)
	if err != nil {
		return nil, err
	}
	return NewUserStore(db, vault, opts...)
}

// NewFromConfig builds the user store and wraps it in the read-through cache
// when store.cache_ttl is positive.
func NewFromConfig(client any, cfg core.StoreConfig, vault core.CredentialVault, opts ...Option) (OwnedUserStore, error) {
	store, err := NewUserStoreFromPersistence(client, vault, opts...)
	if err != nil {
		return nil, err
	}
	if cfg.CacheTTL <= 0 {
		return store, nil
	}
	cacheService, err := NewUserCacheService(cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: user cache: %w", err)
	}
	return NewCachedUserStore(store, cacheService)
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

// PersistenceConfig adapts the store section to the go-persistence-bun
// client configuration.
type PersistenceConfig struct {
	Store core.StoreConfig
	Debug bool
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	driver, err := NormalizeDriver(c.Store.Driver)
	if err != nil {
		return c.Store.Driver
	}
	return driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Store.DSN
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	return defaultPingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	return "go-connections"
}

// NewPersistenceClient opens store.dsn and wraps it in a go-persistence-bun
// client, which owns migrations and the underlying handle.
func NewPersistenceClient(cfg core.StoreConfig) (*persistence.Client, error) {
	sqlDB, driver, err := OpenSQL(cfg)
	if err != nil {
		return nil, err
	}
	dialect, err := Dialect(driver)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	client, err := persistence.New(PersistenceConfig{Store: cfg}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}
	return client, nil
}
