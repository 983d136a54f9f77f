package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Config holds the MySQL connection settings.
type Config struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// DSN builds the driver connection string.  parseTime maps DATETIME to
// time.Time and loc=UTC keeps lease comparisons consistent across hosts.
func (c Config) DSN() string {
	dc := mysql.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Pass
	dc.Net = "tcp"
	dc.Addr = c.Host + ":" + c.Port
	dc.DBName = c.Name
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(cfg Config) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	// Ping with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// OpenWithRetry calls Open until it succeeds or attempts are exhausted,
// waiting between attempts.  Containers often start the service before the
// database accepts connections.
func OpenWithRetry(cfg Config, attempts int, wait time.Duration, onRetry func(attempt int, err error)) (*sql.DB, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Open(cfg)
		if err == nil {
			return db, nil
		}
		lastErr = err
		if onRetry != nil {
			onRetry(i, err)
		}
		if i < attempts {
			time.Sleep(wait)
		}
	}
	return nil, fmt.Errorf("mysql unavailable after %d attempts: %w", attempts, lastErr)
}
