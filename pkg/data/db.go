package data

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	schemaVersion = 1
	timeFormat    = time.RFC3339
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrNotFound is returned when the named reference or run does not exist.
	ErrNotFound = errors.New("not found")
)

// DriverName returns the database/sql driver for dsn: postgres URLs use
// lib/pq, anything else is a sqlite file path.
func DriverName(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return driverPostgres
	}
	return driverSQLite
}

// IsSQLite reports whether dsn names a sqlite file.
func IsSQLite(dsn string) bool {
	return DriverName(dsn) == driverSQLite
}

// Init creates the schema for dsn when missing and records its version.
func Init(dsn string) error {
	if dsn == "" {
		return errors.New("database DSN not specified")
	}

	db, err := GetDB(dsn)
	if err != nil {
		return fmt.Errorf("error opening database: %w", err)
	}
	defer db.Close()

	b, err := f.ReadFile(fmt.Sprintf("sql/%s.sql", db.DriverName()))
	if err != nil {
		return fmt.Errorf("failed to read the schema creation file: %w", err)
	}
	if _, err := db.Exec(string(b)); err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	var version int
	if err := db.Get(&version, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version >= schemaVersion {
		return nil
	}

	q := db.Rebind("INSERT INTO schema_version (version, applied_at) VALUES (?, ?)")
	if _, err := db.Exec(q, schemaVersion, now()); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	slog.Debug("db schema created", "driver", db.DriverName(), "version", schemaVersion)

	return nil
}

// GetDB opens the database for dsn. The caller closes it.
func GetDB(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		return nil, errors.New("database DSN not specified")
	}
	conn, err := sqlx.Open(DriverName(dsn), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return conn, nil
}

// Contains checks for val in list
func Contains[T comparable](list []T, val T) bool {
	if list == nil {
		return false
	}
	for _, item := range list {
		if item == val {
			return true
		}
	}
	return false
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}
