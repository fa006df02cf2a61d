package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

// VersionTable records which document-store schema versions are applied.
const VersionTable = "geminivoice_schema_version"

// Status describes the schema of one database.
type Status struct {
	Version uint
	Dirty   bool
	// Latest is the newest version shipped with this binary.
	Latest uint
}

// Pending reports whether Up would change anything.
func (s Status) Pending() bool { return s.Version < s.Latest }

func embeddedSource() (source.Driver, error) {
	src, err := iofs.New(sqlMigrations, "sql")
	if err != nil {
		return nil, fmt.Errorf("document schema source: %w", err)
	}
	return src, nil
}

// Latest returns the highest embedded schema version.
func Latest() (uint, error) {
	src, err := embeddedSource()
	if err != nil {
		return 0, err
	}
	defer src.Close()

	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("document schema source is empty: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			// os.ErrNotExist marks the last version
			return v, nil
		}
		v = next
	}
}

// documentStoreMigrator runs on a dedicated connection so closing the migrator leaves
// the caller's pool open.
func documentStoreMigrator(db *sql.DB) (*migrate.Migrate, func(), error) {
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{MigrationsTable: VersionTable})
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("postgres driver: %w", err)
	}
	src, err := embeddedSource()
	if err != nil {
		_ = driver.Close()
		return nil, nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = driver.Close()
		return nil, nil, fmt.Errorf("document schema migrator: %w", err)
	}
	release := func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			log.WithError(errors.Join(srcErr, dbErr)).Debug("closing document schema migrator")
		}
	}
	return m, release, nil
}

// Up brings the document store schema to the newest embedded version.
func Up(db *sql.DB) error {
	m, release, err := documentStoreMigrator(db)
	if err != nil {
		return err
	}
	defer release()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		log.Debug("document schema already current")
		return nil
	case err != nil:
		return fmt.Errorf("document schema up: %w", err)
	}
	if v, _, verr := m.Version(); verr == nil {
		log.WithField("version", v).Info("document schema migrated")
	}
	return nil
}

// Down rolls the schema back by steps versions; steps <= 0 means one.
func Down(db *sql.DB, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	m, release, err := documentStoreMigrator(db)
	if err != nil {
		return err
	}
	defer release()

	if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("document schema down %d: %w", steps, err)
	}
	log.WithField("steps", steps).Warn("document schema rolled back")
	return nil
}

// CurrentStatus reads the applied version. A database never migrated reports version 0.
func CurrentStatus(db *sql.DB) (Status, error) {
	latest, err := Latest()
	if err != nil {
		return Status{}, err
	}
	m, release, err := documentStoreMigrator(db)
	if err != nil {
		return Status{}, err
	}
	defer release()

	st := Status{Latest: latest}
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return st, nil
	case err != nil:
		return st, fmt.Errorf("document schema version: %w", err)
	}
	st.Version, st.Dirty = v, dirty
	return st, nil
}
