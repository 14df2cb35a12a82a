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

// Package config provides configuration management for the key broker
// service binary: database connection parameters, session TTL, and the
// RPC/metrics listen addresses, sourced from environment variables and CLI
// flags the way the composition root expects.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sevkbs/kbs/internal/dbutil"
	"github.com/sevkbs/kbs/internal/sessionstore"
)

// Options holds every setting the kbs binary needs to construct its
// collaborators.
type Options struct {
	// DBType selects the backend store dialect (sqlite, mysql, postgres).
	DBType dbutil.Dialect

	// DBHost is the database host:port (or file path, for sqlite).
	DBHost string

	// DBUser is the database username. Unused for sqlite.
	DBUser string

	// DBPassword is the database password. Unused for sqlite.
	DBPassword string

	// DBName is the database/schema name. Unused for sqlite.
	DBName string

	// DBMaxConns caps the connection pool size.
	DBMaxConns int

	// SessionTTL bounds how long a GetBundle-issued session may sit parked
	// before it is swept as expired.
	SessionTTL time.Duration

	// GRPCSocket is the address the gRPC server listens on.
	GRPCSocket string

	// MetricsAddr is the address the Prometheus /metrics endpoint binds to.
	MetricsAddr string

	// DefaultPolicyPath is the filesystem path to the tenant default policy
	// document, read fresh on every GetSecret call.
	DefaultPolicyPath string

	// LogLevel mirrors LOG_LEVEL, read here only so it shows up in a single
	// assembled Options value for logging/diagnostics.
	LogLevel string
}

// DefaultOptions returns Options with the same defaults the CLI flags and
// environment variable fallbacks produce.
func DefaultOptions() Options {
	return Options{
		DBType:            dbutil.SQLite,
		DBHost:            "kbs.db",
		DBMaxConns:        10,
		SessionTTL:        sessionstore.DefaultTTL,
		GRPCSocket:        "127.0.0.1:44444",
		MetricsAddr:       ":9090",
		DefaultPolicyPath: "default_policy.json",
	}
}

// Load builds Options from environment variables (KBS_DB_TYPE, KBS_DB_HOST,
// KBS_DB_USER, KBS_DB_PW, KBS_DB, KBS_SESSION_TTL) and the given CLI flags,
// flags taking precedence when explicitly set. fs must not yet be parsed.
func Load(fs *flag.FlagSet, args []string) (Options, error) {
	opts := DefaultOptions()

	if v := os.Getenv("KBS_DB_TYPE"); v != "" {
		dialect, err := dbutil.ParseDialect(v)
		if err != nil {
			return Options{}, err
		}
		opts.DBType = dialect
	}
	if v := os.Getenv("KBS_DB_HOST"); v != "" {
		opts.DBHost = v
	}
	if v := os.Getenv("KBS_DB_USER"); v != "" {
		opts.DBUser = v
	}
	if v := os.Getenv("KBS_DB_PW"); v != "" {
		opts.DBPassword = v
	}
	if v := os.Getenv("KBS_DB"); v != "" {
		opts.DBName = v
	}
	if v := os.Getenv("KBS_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Options{}, fmt.Errorf("KBS_SESSION_TTL: %w", err)
		}
		opts.SessionTTL = d
	}
	opts.LogLevel = os.Getenv("LOG_LEVEL")

	grpcSock := fs.String("grpc_sock", opts.GRPCSocket, "address the gRPC server listens on")
	metricsAddr := fs.String("metrics_addr", opts.MetricsAddr, "address the Prometheus metrics server listens on")
	defaultPolicy := fs.String("default_policy", opts.DefaultPolicyPath, "path to the tenant default policy document")
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	opts.GRPCSocket = *grpcSock
	opts.MetricsAddr = *metricsAddr
	opts.DefaultPolicyPath = *defaultPolicy

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks that Options describes a constructible broker.
func (o *Options) Validate() error {
	if o.DBType == "" {
		return fmt.Errorf("config: DBType is required")
	}
	if o.DBHost == "" {
		return fmt.Errorf("config: DBHost is required")
	}
	if o.SessionTTL < sessionstore.MinTTL || o.SessionTTL > sessionstore.MaxTTL {
		return fmt.Errorf("config: SessionTTL %s outside [%s, %s]", o.SessionTTL, sessionstore.MinTTL, sessionstore.MaxTTL)
	}
	if o.GRPCSocket == "" {
		return fmt.Errorf("config: GRPCSocket is required")
	}
	return nil
}
