/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package store

import (
	"embed"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"    // MySQL driver for migrate
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // PostgreSQL driver for migrate
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"  // SQLite driver for migrate
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sevkbs/kbs/internal/dbutil"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

//go:embed migrations/mysql/*.sql
var mysqlMigrations embed.FS

//go:embed migrations/sqlite/*.sql
var sqliteMigrations embed.FS

// Migrator manages schema migrations for whichever backend is configured,
// using embedded per-dialect SQL files so sqlite, mysql, and postgres all
// apply the same logical schema through one migrate.Migrate instance.
type Migrator struct {
	m      *migrate.Migrate
	logger logr.Logger
}

// NewMigrator creates a Migrator for the given dialect and connection string.
func NewMigrator(dialect dbutil.Dialect, connString string, logger logr.Logger) (*Migrator, error) {
	fsys, subdir, err := migrationsFor(dialect)
	if err != nil {
		return nil, err
	}

	source, err := iofs.New(fsys, subdir)
	if err != nil {
		return nil, fmt.Errorf("creating migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, connString)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return &Migrator{m: m, logger: logger}, nil
}

func migrationsFor(dialect dbutil.Dialect) (embed.FS, string, error) {
	switch dialect {
	case dbutil.Postgres:
		return postgresMigrations, "migrations/postgres", nil
	case dbutil.MySQL:
		return mysqlMigrations, "migrations/mysql", nil
	case dbutil.SQLite:
		return sqliteMigrations, "migrations/sqlite", nil
	default:
		return embed.FS{}, "", fmt.Errorf("no migrations for dialect %q", dialect)
	}
}

// Up applies all pending migrations.
func (mg *Migrator) Up() error {
	mg.logger.Info("applying migrations")
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	v, dirty, _ := mg.m.Version()
	mg.logger.Info("migrations applied", "version", v, "dirty", dirty)
	return nil
}

// Close releases resources held by the migrator.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	if srcErr != nil {
		return fmt.Errorf("closing source: %w", srcErr)
	}
	if dbErr != nil {
		return fmt.Errorf("closing database: %w", dbErr)
	}
	return nil
}
