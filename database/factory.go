/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/uptrace/bun"
)

var supportedTypes = []string{"mysql", "postgres", "sqlite"}

// BaseDatabaseFactory creates and manages a configured database manager and
// provides helpers for initialization, health checks, and statistics.
type BaseDatabaseFactory struct {
	manager AbstractDatabaseManager
	logger  Logger
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// CreateFromConfig constructs a database manager from the given connection
// configuration, applying environment overrides and setting the factory logger.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *ConnectionConfig) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	switch cfg.Type {
	case "mysql", "postgres", "postgresql", "sqlite", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.Type, supportedTypes)
	}

	if err := f.overrideFromEnv(cfg); err != nil {
		return nil, err
	}

	// Create manager
	manager := NewDatabaseManager(cfg)
	manager.SetLogger(f.logger)

	f.manager = manager
	return manager, nil
}

type envBinding struct {
	key  string
	unit string
}

// connectionEnv maps DB_* variables onto ConnectionConfig koanf keys. Units
// are appended to plain numbers so they decode as durations.
var connectionEnv = map[string]envBinding{
	"DB_HOST":               {key: "host"},
	"DB_PORT":               {key: "port"},
	"DB_USERNAME":           {key: "username"},
	"DB_PASSWORD":           {key: "password"},
	"DB_NAME":               {key: "dbname"},
	"DB_SSLMODE":            {key: "sslmode"},
	"DB_MAX_IDLE_CONNS":     {key: "max_idle_conns"},
	"DB_MAX_OPEN_CONNS":     {key: "max_open_conns"},
	"DB_CONN_MAX_LIFETIME":  {key: "conn_max_lifetime", unit: "s"},
	"DB_ENABLE_RECONNECT":   {key: "enable_reconnect"},
	"DB_RECONNECT_INTERVAL": {key: "reconnect_interval", unit: "s"},
	"DB_ENABLE_QUERY_LOG":   {key: "enable_query_log"},
	"DB_SLOW_QUERY_MS":      {key: "slow_query_time", unit: "ms"},
}

// overrideFromEnv applies DB_* environment variables to cfg.
func (f *BaseDatabaseFactory) overrideFromEnv(cfg *ConnectionConfig) error {
	k := koanf.New(".")
	err := k.Load(env.ProviderWithValue("DB_", ".", func(name, value string) (string, interface{}) {
		b, ok := connectionEnv[name]
		if !ok || value == "" {
			return "", nil
		}
		return b.key, value + b.unit
	}), nil)
	if err != nil {
		return fmt.Errorf("failed to read DB_* environment: %w", err)
	}
	if len(k.Keys()) == 0 {
		return nil
	}
	f.logger.Debug("Applying database environment overrides", "keys", k.Keys())
	if err := k.Unmarshal("", cfg); err != nil {
		return fmt.Errorf("invalid DB_* environment: %w", err)
	}
	return nil
}

// InitializeDatabase connects and, when cfg enables it, migrates schema.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context, schema *Schema, cfg *Config) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}

	// Connect to database
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	// Run migrations
	if cfg != nil && cfg.DataMigrateConfig.EnableMigrateOnStartup {
		if err := f.manager.RunMigrations(ctx, schema, cfg); err != nil {
			return fmt.Errorf("failed to run database migrations: %w", err)
		}
	}
	f.logger.Info("Database initialization completed!")
	return nil
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the database connection managed by the factory.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus returns the current database health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns database connection statistics from the manager.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
