package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/Ramsey-B/fern/db"
)

type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(strings.TrimSuffix(format, "\n"), v...)
}

type MigrationService struct {
	config *MigrationConfig
	logger ectologger.Logger
}

// MigrationConfig selects the migration source and target version. An empty
// FolderPath uses the migrations embedded in the binary.
type MigrationConfig struct {
	FolderPath string `koanf:"folder_path"`
	Version    uint   `koanf:"version"`
	Force      int    `koanf:"force"`
	// AutoRollback forces a dirty database back to the version it had before the run.
	AutoRollback bool `koanf:"auto_rollback"`
}

func NewMigrationService(logger ectologger.Logger, config *MigrationConfig) *MigrationService {
	return &MigrationService{
		config: config,
		logger: logger,
	}
}

// source returns the migration files and the directory inside them holding the scripts.
func (ms *MigrationService) source() (fs.FS, string, error) {
	if ms.config.FolderPath == "" {
		return db.Migrations, db.MigrationsDir, nil
	}

	folder := ms.config.FolderPath
	if _, err := os.Stat(folder); err != nil {
		wd, _ := os.Getwd()
		folder = filepath.Join(wd, ms.config.FolderPath)
	}
	if _, err := os.Stat(folder); err != nil {
		return nil, "", fmt.Errorf("migration folder %s does not exist: %w", folder, err)
	}
	return os.DirFS(folder), ".", nil
}

// Migrate applies the migrations to the database behind conn.
func (ms *MigrationService) Migrate(conn DB) error {
	fsys, dir, err := ms.source()
	if err != nil {
		return err
	}

	src, err := iofs.New(fsys, dir)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	driver, err := postgres.WithInstance(conn.SQL(), &postgres.Config{})
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migration driver")
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		ms.logger.WithError(err).Error("Failed to create migrate instance")
		return fmt.Errorf("create migrate instance: %w", err)
	}
	m.Log = MigrationLogger{Logger: ms.logger}

	return ms.runMigration(m, fsys, dir)
}

func (ms *MigrationService) runMigration(m *migrate.Migrate, fsys fs.FS, dir string) error {
	if ms.config.Force != 0 {
		if err := m.Force(ms.config.Force); err != nil {
			ms.logger.WithError(err).Errorf("Failed to force database to version %d", ms.config.Force)
			return err
		}
	}

	version, _, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
	}

	done := make(chan struct{})
	go ms.logProgress(done)

	startTime := time.Now()

	var migrationErr error
	if ms.config.Version != 0 {
		migrationErr = m.Migrate(ms.config.Version)
	} else {
		migrationErr = m.Up()
	}
	close(done)

	ms.logger.Infof("Database migrations completed in %v", time.Since(startTime))

	return ms.handleMigrationError(m, migrationErr, version, fsys, dir)
}

func (ms *MigrationService) logProgress(done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	dots := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			dots = (dots + 1) % 4
			ms.logger.Debugf("Executing database migrations%s", strings.Repeat(".", dots))
		}
	}
}

func (ms *MigrationService) handleMigrationError(m *migrate.Migrate, err error, previousVersion uint, fsys fs.FS, dir string) error {
	if err == nil {
		ms.logger.Info("Successfully applied migrations")
		return nil
	}

	if errors.Is(err, migrate.ErrNoChange) {
		ms.logger.Info("No new migrations to apply")
		return nil
	}

	// The database is ahead of the shipped scripts, usually after a rollback of the binary.
	if strings.Contains(err.Error(), "no migration found for version") {
		latest, lerr := latestVersion(fsys, dir)
		if lerr != nil {
			ms.logger.WithError(lerr).Error("Failed to get latest migration version")
			return err
		}
		ms.logger.Warnf("No migration found for version %d. Forcing database to latest version %d", previousVersion, latest)
		if ferr := m.Force(latest); ferr != nil {
			ms.logger.WithError(ferr).Errorf("Failed to force database to version %d", latest)
			return ferr
		}
		return nil
	}

	ms.logger.WithError(err).Errorf("Migration failed with error: %v", err)

	version, dirty, versionErr := m.Version()
	if versionErr != nil && !errors.Is(versionErr, migrate.ErrNilVersion) {
		ms.logger.WithError(versionErr).Error("Failed to get current migration version")
		return err
	}

	if ms.config.AutoRollback && dirty {
		if previousVersion == 0 && version > 0 {
			previousVersion = version - 1
		}
		ms.logger.Warnf("Database is dirty at version %d. Reverting to version %d", version, previousVersion)
		if ferr := m.Force(int(previousVersion)); ferr != nil {
			ms.logger.WithError(ferr).Errorf("Failed to force database to version %d", previousVersion)
			return ferr
		}
		// the run still fails so the application does not start on a half-applied schema
		return fmt.Errorf("migration to version %d rolled back: %w", version, err)
	}

	ms.logger.WithError(err).Errorf("Failed to apply migrations. Database version is dirty=%t at version %d", dirty, version)
	return err
}

var upMigration = regexp.MustCompile(`^(\d+)_.*\.up\.sql$`)

func latestVersion(fsys fs.FS, dir string) (int, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return 0, err
	}

	var versions []int
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := upMigration.FindStringSubmatch(entry.Name())
		if len(matches) < 2 {
			continue
		}
		version, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, err
		}
		versions = append(versions, version)
	}

	if len(versions) == 0 {
		return 0, fmt.Errorf("no migration files found in %s", dir)
	}

	sort.Ints(versions)
	return versions[len(versions)-1], nil
}
