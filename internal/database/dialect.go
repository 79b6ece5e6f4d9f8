package database

import (
	"errors"
	"fmt"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Dialect names the SQL backend selected for a connection string.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

var (
	ErrMissingDatabaseURL     = errors.New("database: connection string is not configured")
	ErrUnsupportedDatabaseURL = errors.New("database: unsupported connection string")
)

// OpenOptions tunes how a handle is constructed.
type OpenOptions struct {
	LogQueries bool
	Logger     *zap.Logger
}

// DialectFor inspects a connection string and returns the dialect together with
// the DSN in the form the driver expects.
func DialectFor(databaseURL string) (Dialect, string, error) {
	dsn := strings.TrimSpace(databaseURL)
	lower := strings.ToLower(dsn)

	switch {
	case dsn == "":
		return "", "", ErrMissingDatabaseURL
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DialectPostgres, dsn, nil
	case strings.Contains(lower, "host=") && strings.Contains(lower, "dbname="):
		return DialectPostgres, dsn, nil
	case strings.HasPrefix(lower, "mysql://"):
		return DialectMySQL, mysqlDSN(dsn[len("mysql://"):]), nil
	case strings.HasPrefix(lower, "sqlite://"):
		return DialectSQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "sqlite:"):
		return DialectSQLite, dsn[len("sqlite:"):], nil
	case strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return DialectSQLite, dsn, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return DialectSQLite, dsn, nil
	default:
		return "", "", fmt.Errorf("%w: scheme %q", ErrUnsupportedDatabaseURL, schemeOf(dsn))
	}
}

// mysqlDSN makes sure DATETIME columns scan into time.Time.
func mysqlDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// schemeOf returns the URL scheme without credentials, safe for logs.
func schemeOf(dsn string) string {
	if index := strings.Index(dsn, "://"); index > 0 {
		return dsn[:index]
	}
	return "unknown"
}

// Open constructs a gorm handle for the connection string. gorm pings the
// server during Open, so unreachable databases fail here.
func Open(databaseURL string, options OpenOptions) (*gorm.DB, error) {
	dialect, dsn, err := DialectFor(databaseURL)
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	case DialectMySQL:
		dialector = mysql.Open(dsn)
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: newGormLogger(options)})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}

	if dialect == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

func newGormLogger(options OpenOptions) gormlogger.Interface {
	if options.Logger == nil {
		return gormlogger.Discard
	}
	level := gormlogger.Warn
	if options.LogQueries {
		level = gormlogger.Info
	}
	return gormlogger.New(
		zap.NewStdLog(options.Logger.Named("gorm")),
		gormlogger.Config{
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)
}
