// database/connection.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-sql-driver/mysql"   // MariaDB / MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/petshop/backend/config"
)

// Dialect names the SQL flavour a Store talks to.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store is the relational store holding the package directory, the download
// ledger and the import run history. It is created once and passed down.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *log.Logger
}

// Open resolves the connection settings, opens the pool and pings it.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.Default()
	}
	dialect, driverName, dsn, err := resolveDSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if dialect == DialectSQLite {
		// every connection to ":memory:" is a separate database
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 10000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
			}
		}
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db, dialect: dialect, logger: logger.WithPrefix("database")}
	s.logger.Debug("connected", "dialect", dialect)
	return s, nil
}

// Dialect reports which SQL flavour the store was opened with.
func (s *Store) Dialect() Dialect { return s.dialect }

// Ping verifies the connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.logger.Debug("connection closed")
	return s.db.Close()
}

// rebind rewrites '?' placeholders into the dialect's style.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// resolveDSN turns the configuration into a dialect, a database/sql driver
// name and a DSN. A URL wins over the discrete fields. Scheme suffixes such as
// "mysql+pymysql" are accepted.
func resolveDSN(cfg config.DatabaseConfig) (Dialect, string, string, error) {
	if cfg.URL != "" {
		return resolveURL(cfg.URL)
	}

	switch Dialect(cfg.Driver) {
	case DialectMySQL:
		mc := mysql.NewConfig()
		mc.User = cfg.User
		mc.Passwd = cfg.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.UTC
		return DialectMySQL, "mysql", mc.FormatDSN(), nil
	case DialectPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.User, cfg.Password),
			Host:   net.JoinHostPort(cfg.Host, cfg.Port),
			Path:   "/" + cfg.DBName,
		}
		return DialectPostgres, "pgx", u.String(), nil
	case DialectSQLite:
		if cfg.Path == "" {
			return "", "", "", fmt.Errorf("database.path is required for sqlite")
		}
		return DialectSQLite, "sqlite", cfg.Path, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func resolveURL(raw string) (Dialect, string, string, error) {
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return "", "", "", fmt.Errorf("database url %q has no scheme", raw)
	}
	scheme, _, _ = strings.Cut(scheme, "+")

	switch scheme {
	case "mysql", "mariadb":
		u, err := url.Parse("mysql://" + rest)
		if err != nil {
			return "", "", "", fmt.Errorf("invalid database url: %w", err)
		}
		mc := mysql.NewConfig()
		mc.User = u.User.Username()
		mc.Passwd, _ = u.User.Password()
		mc.Net = "tcp"
		mc.Addr = u.Host
		if u.Port() == "" {
			mc.Addr = net.JoinHostPort(u.Hostname(), "3306")
		}
		mc.DBName = strings.TrimPrefix(u.Path, "/")
		mc.ParseTime = true
		mc.Loc = time.UTC
		return DialectMySQL, "mysql", mc.FormatDSN(), nil
	case "postgres", "postgresql":
		return DialectPostgres, "pgx", "postgres://" + rest, nil
	case "sqlite":
		// sqlite:///relative.db and sqlite:////absolute.db
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return "", "", "", fmt.Errorf("database url %q has no path", raw)
		}
		return DialectSQLite, "sqlite", path, nil
	default:
		return "", "", "", fmt.Errorf("unsupported database url scheme %q", scheme)
	}
}
