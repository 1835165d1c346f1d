// Package integrationtest provides db helpers used in integration tests.
//
// The helpers need a migrated Postgres database reachable with DB_SOURCE from
// configs/app.env or the environment.
package integrationtest

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-petr/mini-bank/internal/domain"
	"github.com/go-petr/mini-bank/pkg/configpkg"
	"github.com/go-petr/mini-bank/pkg/dbpkg"
	"github.com/go-petr/mini-bank/pkg/passpkg"
	"github.com/go-petr/mini-bank/pkg/randompkg"
	"github.com/shopspring/decimal"

	// Both drivers are registered so DB_DRIVER may name either.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// Password is the plain password of every seeded user.
const Password = "secret123"

// ConfigDir returns the configs directory of the module by walking up from the
// working directory of the test.
func ConfigDir(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("os.Getwd() returned error: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "configs")
		if _, err := os.Stat(filepath.Join(candidate, "app.env")); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("configs/app.env not found above the test directory")
		}

		dir = parent
	}
}

// Config loads the application config for tests.
func Config(t *testing.T) configpkg.Config {
	t.Helper()

	path := ConfigDir(t)

	config, err := configpkg.Load(path)
	if err != nil {
		t.Fatalf("configpkg.Load(%q) returned error: %v", path, err)
	}

	if config.DBDriver == "memory" {
		t.Skip("integration tests need a Postgres DB_DRIVER")
	}

	return config
}

// Flush flushes all db tables without droping.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables string

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema='public' AND table_name <> 'schema_migrations';`

	row := db.QueryRow(query)

	err := row.Scan(&tables)
	if err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables + " CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()

	config := Config(t)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}

// SetupTX sets up a database transaction to be used in tests.
//
// Once the tests are done it will rollback the transaction.
func SetupTX(t *testing.T) *sql.Tx {
	t.Helper()

	config := Config(t)

	db, err := dbpkg.Setup(config.DBDriver, config.DBSource)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("db.Begin() failed: %v", err)
	}

	t.Cleanup(func() {
		if err := dbpkg.Rollback(tx); err != nil {
			t.Fatalf("tx.Rollback() failed: %v", err)
		}
		if err := db.Close(); err != nil {
			t.Fatalf("db.Close() failed: %v", err)
		}
	})

	return tx
}

// SeedUser inserts a random user whose password is Password.
func SeedUser(t *testing.T, db dbpkg.SQLInterface) domain.User {
	t.Helper()

	hashed, err := passpkg.Hash(Password)
	if err != nil {
		t.Fatalf("passpkg.Hash() returned error: %v", err)
	}

	const query = `
	INSERT INTO users (name, email, phone, hashed_password)
	VALUES ($1, $2, $3, $4)
	RETURNING id, name, email, phone, hashed_password, created_at`

	var u domain.User

	row := db.QueryRowContext(context.Background(), query,
		randompkg.Name(), randompkg.Email(), randompkg.Phone(), hashed)

	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.HashedPassword, &u.CreatedAt); err != nil {
		t.Fatalf("seeding user failed: %v", err)
	}

	return u
}

// SeedAccount inserts an account of the owner with the given balance.
func SeedAccount(t *testing.T, db dbpkg.SQLInterface, ownerID int64, accountType, balance string) domain.Account {
	t.Helper()

	const query = `
	INSERT INTO accounts (account_number, owner_id, account_type, balance)
	VALUES ($1, $2, $3, $4)
	RETURNING account_number, owner_id, account_type, balance, created_at`

	var a domain.Account

	number := domain.AccountNumberPrefix + randompkg.Digits(domain.AccountNumberLength-len(domain.AccountNumberPrefix))

	row := db.QueryRowContext(context.Background(), query,
		number, ownerID, accountType, decimal.RequireFromString(balance))

	if err := row.Scan(&a.Number, &a.OwnerID, &a.Type, &a.Balance, &a.CreatedAt); err != nil {
		t.Fatalf("seeding account failed: %v", err)
	}

	return a
}
