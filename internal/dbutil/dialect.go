/*
Copyright 2026 Altaira Labs.

SPDX-License-Identifier: Apache-2.0
*/

package dbutil

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies one of the three SQL backends the store supports.
// Query text is authored once, with "?" placeholders, and rewritten per
// dialect at prepare time; only this dialect-dependent scaffolding varies
// across backends, never user-supplied values (those are always bound as
// driver arguments).
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
)

// ParseDialect validates and normalizes the KBS_DB_TYPE environment value.
func ParseDialect(s string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(s))) {
	case SQLite:
		return SQLite, nil
	case MySQL:
		return MySQL, nil
	case Postgres:
		return Postgres, nil
	default:
		return "", fmt.Errorf("unsupported KBS_DB_TYPE %q (want sqlite, mysql, or postgres)", s)
	}
}

// DriverName returns the database/sql driver name registered for this dialect.
func (d Dialect) DriverName() string {
	switch d {
	case SQLite:
		return "sqlite"
	case MySQL:
		return "mysql"
	case Postgres:
		return "pgx"
	default:
		return ""
	}
}

// Rewrite converts a query authored with "?" placeholders into the dialect's
// native placeholder syntax. SQLite and MySQL both accept "?" natively;
// PostgreSQL requires positional "$1, $2, ..." placeholders, rewritten here
// in left-to-right order.
func (d Dialect) Rewrite(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// NowLiteral returns the SQL expression for the current-time literal used in
// create_date columns: "NOW()" for MySQL/PostgreSQL, "DATE('now')" for SQLite.
func (d Dialect) NowLiteral() string {
	if d == SQLite {
		return "DATE('now')"
	}
	return "NOW()"
}

// SupportsReturning reports whether INSERT ... RETURNING is used to recover
// an auto-generated primary key (PostgreSQL) as opposed to the driver's
// LastInsertId() (MySQL, SQLite).
func (d Dialect) SupportsReturning() bool {
	return d == Postgres
}
