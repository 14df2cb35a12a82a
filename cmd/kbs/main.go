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

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"

	"github.com/sevkbs/kbs/internal/broker"
	"github.com/sevkbs/kbs/internal/config"
	"github.com/sevkbs/kbs/internal/dbutil"
	"github.com/sevkbs/kbs/internal/rpc"
	"github.com/sevkbs/kbs/internal/secrettable"
	"github.com/sevkbs/kbs/internal/sessionstore"
	"github.com/sevkbs/kbs/internal/sev"
	"github.com/sevkbs/kbs/internal/sev/simulator"
	"github.com/sevkbs/kbs/internal/store"
	"github.com/sevkbs/kbs/pkg/logging"
	"github.com/sevkbs/kbs/pkg/metrics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := config.Load(flag.NewFlagSet("kbs", flag.ExitOnError), os.Args[1:])
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, syncLog, err := logging.NewLogger()
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer syncLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(store.Config{
		Dialect:  opts.DBType,
		DSN:      buildDSN(opts),
		MaxConns: opts.DBMaxConns,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	if err := runMigrations(opts, log); err != nil {
		return err
	}

	sessions := sessionstore.New(opts.SessionTTL, log)
	defer sessions.Close()

	sim, err := simulator.New()
	if err != nil {
		return fmt.Errorf("creating sev simulator: %w", err)
	}
	sevAdapter := sev.NewAdapter(sim, log)
	assembler := secrettable.NewAssembler(st, log)
	defaultPolicy := broker.FileDefaultPolicy{Path: opts.DefaultPolicyPath}
	b := broker.New(sevAdapter, sessions, assembler, defaultPolicy, log)

	brokerMetrics := metrics.NewBrokerMetrics()
	sessions.SetGauge(brokerMetrics.SessionsParked)

	grpcSrv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		rpc.StatusInterceptor(),
		rpc.MetricsInterceptor(brokerMetrics),
	))
	rpc.RegisterKeyBrokerServiceServer(grpcSrv, rpc.NewServer(b, log))

	lis, err := net.Listen("tcp", opts.GRPCSocket)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", opts.GRPCSocket, err)
	}
	go func() {
		log.Info("starting gRPC server", "addr", opts.GRPCSocket)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error(err, "gRPC server error")
		}
	}()

	metricsSrv := newMetricsServer(opts.MetricsAddr)
	startHTTPServer(log, "metrics", opts.MetricsAddr, metricsSrv)

	log.Info("kbs ready", "grpc", opts.GRPCSocket, "metrics", opts.MetricsAddr, "db", opts.DBType)

	<-ctx.Done()
	log.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutCancel()
	grpcSrv.GracefulStop()
	if err := metricsSrv.Shutdown(shutCtx); err != nil {
		log.Error(err, "metrics server shutdown error")
	}
	return nil
}

func startHTTPServer(log logr.Logger, name, addr string, srv *http.Server) {
	go func() {
		log.Info("starting server", "server", name, "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(err, "server error", "server", name)
		}
	}()
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

// runMigrations applies the configured dialect's schema migrations and
// closes the migrator, leaving the long-lived pool (opened separately via
// store.Open) to serve application queries.
func runMigrations(opts config.Options, log logr.Logger) error {
	migrator, err := store.NewMigrator(opts.DBType, buildMigrateURL(opts), log)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	return migrator.Close()
}

// mysqlDSN builds a go-sql-driver/mysql DSN via Config.FormatDSN, which
// escapes user/password correctly; hand-formatting "user:pass@tcp(host)/db"
// breaks the moment either value contains '@', ':', or '/'.
func mysqlDSN(opts config.Options) string {
	cfg := mysqldriver.NewConfig()
	cfg.User = opts.DBUser
	cfg.Passwd = opts.DBPassword
	cfg.Net = "tcp"
	cfg.Addr = opts.DBHost
	cfg.DBName = opts.DBName
	cfg.ParseTime = true
	return cfg.FormatDSN()
}

// postgresURL builds a postgres:// connection string with percent-encoded
// userinfo via net/url, rather than raw string interpolation, so credentials
// containing reserved URL characters don't corrupt the connection string.
func postgresURL(opts config.Options) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(opts.DBUser, opts.DBPassword),
		Host:     opts.DBHost,
		Path:     "/" + opts.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// buildDSN assembles the database/sql driver DSN for opts.DBType from the
// KBS_DB_* settings.
func buildDSN(opts config.Options) string {
	switch opts.DBType {
	case dbutil.MySQL:
		return mysqlDSN(opts)
	case dbutil.Postgres:
		return postgresURL(opts)
	default: // sqlite: DBHost is the data file path
		return opts.DBHost
	}
}

// buildMigrateURL assembles the golang-migrate source URL for opts.DBType,
// which differs in scheme from the database/sql DSN buildDSN produces.
func buildMigrateURL(opts config.Options) string {
	switch opts.DBType {
	case dbutil.MySQL:
		// golang-migrate's mysql driver strips the "mysql://" prefix and
		// hands the remainder straight to the mysql driver's own DSN
		// parser, so the correctly-escaped FormatDSN output belongs here too.
		return "mysql://" + mysqlDSN(opts)
	case dbutil.Postgres:
		return postgresURL(opts)
	default: // sqlite
		return fmt.Sprintf("sqlite3://%s", opts.DBHost)
	}
}
