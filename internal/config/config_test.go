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

package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sevkbs/kbs/internal/dbutil"
	"github.com/sevkbs/kbs/internal/sessionstore"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	require.Equal(t, dbutil.SQLite, opts.DBType)
	require.Equal(t, sessionstore.DefaultTTL, opts.SessionTTL)
	require.Equal(t, "127.0.0.1:44444", opts.GRPCSocket)
	require.Equal(t, ":9090", opts.MetricsAddr)
	require.Equal(t, "default_policy.json", opts.DefaultPolicyPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KBS_DB_TYPE", "postgres")
	t.Setenv("KBS_DB_HOST", "db.internal:5432")
	t.Setenv("KBS_DB_USER", "kbs")
	t.Setenv("KBS_DB_PW", "secret")
	t.Setenv("KBS_DB", "kbsdb")
	t.Setenv("KBS_SESSION_TTL", "10m")

	opts, err := Load(flag.NewFlagSet("kbs", flag.ContinueOnError), nil)
	require.NoError(t, err)

	require.Equal(t, dbutil.Postgres, opts.DBType)
	require.Equal(t, "db.internal:5432", opts.DBHost)
	require.Equal(t, "kbs", opts.DBUser)
	require.Equal(t, "secret", opts.DBPassword)
	require.Equal(t, "kbsdb", opts.DBName)
	require.Equal(t, 10*time.Minute, opts.SessionTTL)
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	opts, err := Load(flag.NewFlagSet("kbs", flag.ContinueOnError), []string{
		"--grpc_sock=0.0.0.0:9999",
		"--metrics_addr=:9091",
		"--default_policy=/etc/kbs/policy.json",
	})
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:9999", opts.GRPCSocket)
	require.Equal(t, ":9091", opts.MetricsAddr)
	require.Equal(t, "/etc/kbs/policy.json", opts.DefaultPolicyPath)
}

func TestLoad_InvalidDBType(t *testing.T) {
	t.Setenv("KBS_DB_TYPE", "oracle")

	_, err := Load(flag.NewFlagSet("kbs", flag.ContinueOnError), nil)
	require.Error(t, err)
}

func TestLoad_InvalidSessionTTL(t *testing.T) {
	t.Setenv("KBS_SESSION_TTL", "not-a-duration")

	_, err := Load(flag.NewFlagSet("kbs", flag.ContinueOnError), nil)
	require.Error(t, err)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"default options are valid", DefaultOptions(), false},
		{"missing db type", Options{DBHost: "x", SessionTTL: time.Minute, GRPCSocket: "x"}, true},
		{"missing db host", Options{DBType: dbutil.SQLite, SessionTTL: time.Minute, GRPCSocket: "x"}, true},
		{"ttl too short", Options{DBType: dbutil.SQLite, DBHost: "x", SessionTTL: time.Second, GRPCSocket: "x"}, true},
		{"ttl too long", Options{DBType: dbutil.SQLite, DBHost: "x", SessionTTL: 2 * time.Hour, GRPCSocket: "x"}, true},
		{"missing grpc socket", Options{DBType: dbutil.SQLite, DBHost: "x", SessionTTL: time.Minute}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
