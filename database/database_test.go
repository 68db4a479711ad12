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
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type testParent struct {
	bun.BaseModel `bun:"table:parents,alias:pa"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull,unique"`
}

type testChild struct {
	bun.BaseModel `bun:"table:children,alias:ch"`

	ID       int64  `bun:"id,pk,autoincrement"`
	ParentID int64  `bun:"parent_id,notnull"`
	Name     string `bun:"name"`
}

func testSchema() *Schema {
	return NewSchema(
		TableDef{
			Name:     "children",
			Model:    (*testChild)(nil),
			Priority: 20,
			ForeignKeys: []ForeignKeyConstraint{{
				Column: "parent_id", ReferenceTable: "parents", ReferenceColumn: "id",
				OnDelete: "CASCADE", OnUpdate: "CASCADE",
			}},
			Indexes: []IndexDef{{Name: "idx_children_parent", Columns: []string{"parent_id"}}},
		},
		TableDef{
			Name:     "parents",
			Model:    (*testParent)(nil),
			Priority: 10,
			Indexes:  []IndexDef{{Name: "idx_parents_name", Columns: []string{"name"}, Unique: true}},
		},
	)
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.ConnectionConfig.DBName = MemoryDBName
	cfg.ConnectionConfig.HealthCheckInterval = 0
	cfg.ConnectionConfig.SlowQueryTime = 0
	cfg.DataInitConfig.Environment = "test"
	return cfg
}

func newTestManager(t *testing.T, cfg *Config) AbstractDatabaseManager {
	t.Helper()
	manager := NewDatabaseManager(&cfg.ConnectionConfig)
	require.NoError(t, manager.Connect(context.Background()))
	t.Cleanup(func() { _ = manager.Disconnect() })
	return manager
}

func migratedDB(t *testing.T) *bun.DB {
	t.Helper()
	cfg := testConfig()
	manager := newTestManager(t, cfg)
	require.NoError(t, manager.RunMigrations(context.Background(), testSchema(), cfg))
	return manager.GetDB()
}

func count(t *testing.T, db bun.IDB, model interface{}) int {
	t.Helper()
	n, err := db.NewSelect().Model(model).Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSchemaOrdersByPriority(t *testing.T) {
	s := testSchema()
	tables := s.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "parents", tables[0].Name)
	assert.Equal(t, "children", tables[1].Name)

	fks := s.ForeignKeys()
	require.Len(t, fks, 1)
	assert.Equal(t, "children", fks[0].Table)
	assert.Equal(t, "fk_children_parent_id", fks[0].GenerateConstraintName())

	_, ok := s.Table("PARENTS")
	assert.True(t, ok)
}

func TestRunMigrationsIsRepeatable(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	manager := newTestManager(t, cfg)

	require.NoError(t, manager.RunMigrations(ctx, testSchema(), cfg))
	require.NoError(t, manager.RunMigrations(ctx, testSchema(), cfg))

	applied, err := NewMigrationManager(manager.GetDB(), nil, testSchema(), cfg).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "001", applied[0].Version)
	assert.Equal(t, "create_indexes", applied[1].Name)
}

func TestMigrationsCreateCascadingForeignKeys(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)

	parent := &testParent{Name: "p"}
	_, err := db.NewInsert().Model(parent).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&testChild{ParentID: parent.ID, Name: "c"}).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewInsert().Model(&testChild{ParentID: 999}).Exec(ctx)
	require.Error(t, err)
	_, code := IsSqlError(err)
	assert.Equal(t, ForeignKeyViolationErr, code)

	_, err = db.NewDelete().Model((*testParent)(nil)).Where("id = ?", parent.ID).Exec(ctx)
	require.NoError(t, err)
	assert.Zero(t, count(t, db, (*testChild)(nil)))
}

func TestForeignKeyFileOverridesActions(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "fk", "foreign_keys.yaml")

	fks := testSchema().ForeignKeys()
	fks[0].OnDelete = "RESTRICT"
	require.NoError(t, ExportForeignKeyConfig(fks, path))

	loaded, err := LoadForeignKeyConfig(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "RESTRICT", loaded[0].OnDelete)
	assert.Equal(t, "parents", loaded[0].ReferenceTable)

	cfg := testConfig()
	cfg.DataMigrateConfig.ForeignKeyFile = path
	manager := newTestManager(t, cfg)
	require.NoError(t, manager.RunMigrations(ctx, testSchema(), cfg))
	db := manager.GetDB()

	parent := &testParent{Name: "p"}
	_, err = db.NewInsert().Model(parent).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&testChild{ParentID: parent.ID}).Exec(ctx)
	require.NoError(t, err)

	_, err = db.NewDelete().Model((*testParent)(nil)).Where("id = ?", parent.ID).Exec(ctx)
	require.Error(t, err)
	_, code := IsSqlError(err)
	assert.Equal(t, ForeignKeyViolationErr, code)
}

func TestValidateConstraints(t *testing.T) {
	errs := ValidateConstraints([]ForeignKeyConstraint{
		{Table: "a", Column: "b_id", ReferenceTable: "b", ReferenceColumn: "id", OnDelete: "cascade"},
		{Table: "a", Column: "c_id", ReferenceTable: "c", ReferenceColumn: "id", OnDelete: "EXPLODE"},
		{Table: "a"},
	})
	assert.Len(t, errs, 4)
}

func TestDuplicateKeyClassification(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)

	_, err := db.NewInsert().Model(&testParent{Name: "dup"}).Exec(ctx)
	require.NoError(t, err)
	_, err = db.NewInsert().Model(&testParent{Name: "dup"}).Exec(ctx)
	require.Error(t, err)
	assert.True(t, IsDuplicateKey(err))

	is, code := IsSqlError(errors.New("no such table: widgets"))
	assert.True(t, is)
	assert.Equal(t, NoTableErr, code)
	assert.Equal(t, "no_table", code.String())

	is, _ = IsSqlError(errors.New("boom"))
	assert.False(t, is)
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)
	sentinel := errors.New("stop")

	err := InTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&testParent{Name: "a"}).Exec(ctx); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)
	assert.Zero(t, count(t, db, (*testParent)(nil)))

	require.NoError(t, InTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(&testParent{Name: "b"}).Exec(ctx)
		return err
	}))
	assert.Equal(t, 1, count(t, db, (*testParent)(nil)))
}

func TestInTxRollsBackOnPanic(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)

	assert.Panics(t, func() {
		_ = InTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
			_, _ = tx.NewInsert().Model(&testParent{Name: "a"}).Exec(ctx)
			panic("boom")
		})
	})
	assert.Zero(t, count(t, db, (*testParent)(nil)))
}

func TestSavepointKeepsOuterWork(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)

	err := InTx(ctx, db, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&testParent{Name: "kept"}).Exec(ctx); err != nil {
			return err
		}
		spErr := Savepoint(ctx, tx, func(ctx context.Context) error {
			if _, err := tx.NewInsert().Model(&testParent{Name: "undone"}).Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewInsert().Model(&testParent{Name: "kept"}).Exec(ctx)
			return err
		})
		assert.True(t, IsDuplicateKey(spErr))
		return Atomic(ctx, tx, func(ctx context.Context, db bun.IDB) error {
			_, err := db.NewInsert().Model(&testParent{Name: "nested"}).Exec(ctx)
			return err
		})
	})
	require.NoError(t, err)

	var names []string
	require.NoError(t, db.NewSelect().Model((*testParent)(nil)).Column("name").Order("name").Scan(ctx, &names))
	assert.Equal(t, []string{"kept", "nested"}, names)
}

func writeSeed(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestSQLInitManagerOrderAndTemplates(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)
	root := t.TempDir()
	t.Setenv("SEED_PARENT", "from-env")

	writeSeed(t, root, "common/002_children.sql",
		"-- children of the common parent\nINSERT INTO children (parent_id, name)\nSELECT id, 'child' FROM parents WHERE name = 'common';\n")
	writeSeed(t, root, "common/001_parents.sql", "INSERT INTO parents (name) VALUES ('common');")
	writeSeed(t, root, "environments/test/001_env.sql",
		"INSERT INTO parents (name) VALUES ('{{.ENVIRONMENT}}');\nINSERT INTO parents (name) VALUES ('{{.SEED_PARENT}}');")
	writeSeed(t, root, "environments/prod/001_prod.sql", "INSERT INTO parents (name) VALUES ('prod');")
	writeSeed(t, root, "common/readme.txt", "ignored")

	seeder := NewSQLInitManager(db, "test")
	seeder.SetSQLRootPath(root)

	files, err := seeder.GetSQLFiles()
	require.NoError(t, err)
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"001_parents.sql", "002_children.sql", "001_env.sql"}, names)

	require.NoError(t, seeder.ExecuteInitialization(ctx))
	var parents []string
	require.NoError(t, db.NewSelect().Model((*testParent)(nil)).Column("name").Order("id").Scan(ctx, &parents))
	assert.Equal(t, []string{"common", "test", "from-env"}, parents)
	assert.Equal(t, 1, count(t, db, (*testChild)(nil)))
}

func TestSQLInitManagerRollsBackFailedFile(t *testing.T) {
	ctx := context.Background()
	db := migratedDB(t)
	root := t.TempDir()
	writeSeed(t, root, "common/001_ok.sql", "INSERT INTO parents (name) VALUES ('ok');")
	writeSeed(t, root, "common/002_bad.sql",
		"INSERT INTO parents (name) VALUES ('half');\nINSERT INTO missing_table (name) VALUES ('x');")

	seeder := NewSQLInitManager(db, "test")
	seeder.SetSQLRootPath(root)
	err := seeder.ExecuteInitialization(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "002_bad.sql")
	assert.Equal(t, 1, count(t, db, (*testParent)(nil)))
}

func TestSQLInitManagerMissingDirectory(t *testing.T) {
	seeder := NewSQLInitManager(migratedDB(t), "test")
	seeder.SetSQLRootPath(filepath.Join(t.TempDir(), "absent"))
	files, err := seeder.GetSQLFiles()
	require.NoError(t, err)
	assert.Empty(t, files)
	require.NoError(t, seeder.ExecuteInitialization(context.Background()))
}

func TestSeedOnMigration(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	writeSeed(t, root, "common/001_parents.sql", "INSERT INTO parents (name) VALUES ('seeded');")

	cfg := testConfig()
	cfg.DataInitConfig.AutoInitOnMigration = true
	cfg.DataInitConfig.Filepath = root
	manager := newTestManager(t, cfg)
	require.NoError(t, manager.RunMigrations(ctx, testSchema(), cfg))
	require.NoError(t, manager.RunMigrations(ctx, testSchema(), cfg))

	db := manager.GetDB()
	assert.Equal(t, 1, count(t, db, (*testParent)(nil)))
	applied, err := NewMigrationManager(db, nil, testSchema(), cfg).GetAppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 3)
}

func TestParseFileOrder(t *testing.T) {
	assert.Equal(t, 10, parseFileOrder("010_departments.sql"))
	assert.Equal(t, 1, parseFileOrder("1_a.sql"))
	assert.Equal(t, 999, parseFileOrder("departments.sql"))
}

func TestSplitSQLStatements(t *testing.T) {
	stmts := splitSQLStatements(`
-- header
INSERT INTO a VALUES (1);

UPDATE a
   SET x = 2
 WHERE id = 1;
SELECT 1`)
	assert.Equal(t, []string{
		"INSERT INTO a VALUES (1);",
		"UPDATE a SET x = 2 WHERE id = 1;",
		"SELECT 1",
	}, stmts)
}

func TestFactoryEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_SLOW_QUERY_MS", "250")
	t.Setenv("DB_RECONNECT_INTERVAL", "9")
	t.Setenv("DB_ENABLE_RECONNECT", "false")

	cfg := testConfig().ConnectionConfig
	_, err := NewDatabaseFactory().CreateFromConfig(&cfg)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowQueryTime)
	assert.Equal(t, 9*time.Second, cfg.ReconnectInterval)
	assert.False(t, cfg.EnableReconnect)
	assert.Equal(t, MemoryDBName, cfg.DBName)

	t.Setenv("DB_PORT", "not-a-port")
	cfg = testConfig().ConnectionConfig
	_, err = NewDatabaseFactory().CreateFromConfig(&cfg)
	require.Error(t, err)

	cfg.Type = "oracle"
	_, err = NewDatabaseFactory().CreateFromConfig(&cfg)
	require.ErrorContains(t, err, "unsupported database type")
}

func TestOpenMigratesAndCloses(t *testing.T) {
	ctx := context.Background()
	factory, err := Open(ctx, testConfig(), testSchema(), nil)
	require.NoError(t, err)

	status := factory.GetHealthStatus(ctx)
	assert.True(t, status.Healthy)
	assert.Zero(t, count(t, factory.GetDB(), (*testParent)(nil)))

	require.NoError(t, factory.Close())
	assert.False(t, factory.GetHealthStatus(ctx).Connected)
}

func TestDataSourceNames(t *testing.T) {
	c := &ConnectionConfig{
		Type:           "postgresql",
		Host:           "db",
		Port:           5432,
		Username:       "bursar",
		Password:       "p@ss:word",
		DBName:         "billing",
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}

	drv, ok := driverFor(c.Type)
	require.True(t, ok)
	u, err := url.Parse(drv.dsn(c))
	require.NoError(t, err)
	pass, _ := u.User.Password()
	assert.Equal(t, "p@ss:word", pass)
	assert.Equal(t, "db:5432", u.Host)
	assert.Equal(t, "/billing", u.Path)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "5", u.Query().Get("connect_timeout"))

	c.Type = "mysql"
	drv, ok = driverFor(c.Type)
	require.True(t, ok)
	mc, err := mysql.ParseDSN(drv.dsn(c))
	require.NoError(t, err)
	assert.Equal(t, "p@ss:word", mc.Passwd)
	assert.Equal(t, "db:5432", mc.Addr)
	assert.Equal(t, "billing", mc.DBName)
	assert.True(t, mc.ParseTime)
	assert.Equal(t, 10*time.Second, mc.ReadTimeout)

	c.Type, c.DBName = "sqlite3", "billing"
	drv, ok = driverFor(c.Type)
	require.True(t, ok)
	assert.Equal(t, "billing.db", drv.dsn(c))
	c.DBName = MemoryDBName
	assert.Equal(t, MemoryDBName, drv.dsn(c))

	_, ok = driverFor("oracle")
	assert.False(t, ok)
}
