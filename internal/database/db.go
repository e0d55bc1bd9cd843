// Package database opens the MySQL pool and applies the embedded schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/dose-reminder/internal/config"
)

// pingTimeout bounds the connectivity check in Open.
const pingTimeout = 5 * time.Second

// DSN builds the driver configuration from c.  Times are parsed into
// time.Time and read and written as UTC.  Multi-statement queries stay off
// because migrations are split before they run.
func DSN(c config.Config) (string, error) {
	mc := mysql.NewConfig()
	mc.User = c.DBUser
	mc.Passwd = c.DBPass
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.DBHost, c.DBPort)
	mc.DBName = c.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	if err := mc.Apply(mysql.Charset("utf8mb4", "")); err != nil {
		return "", fmt.Errorf("mysql config: %w", err)
	}
	return mc.FormatDSN(), nil
}

// Open connects to the database named by c, applies the pool limits and
// pings it.  The pool is closed again when the ping fails.
func Open(ctx context.Context, c config.Config) (*sql.DB, error) {
	dsn, err := DSN(c)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.DBMaxOpenConns)
	db.SetMaxIdleConns(c.DBMaxOpenConns)
	db.SetConnMaxLifetime(c.DBConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s/%s: %w", c.DBHost, c.DBName, err)
	}
	return db, nil
}
