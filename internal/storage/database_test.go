package storage

import (
	"testing"
	"time"

	"jindalchat/internal/config"
)

func memoryConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Database.DSN = ":memory:"
	return cfg
}

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(memoryConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite3"); err != nil {
			t.Fatalf("migrate #%d: %v", i+1, err)
		}
	}
}

func TestEmailIndexIsUnique(t *testing.T) {
	db, err := Open(memoryConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	insert := `INSERT INTO users (email, password_hash, created_at) VALUES (?, '', ?)`
	if _, err := db.Exec(insert, "a@x.com", time.Now().UTC()); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	if _, err := db.Exec(insert, "a@x.com", time.Now().UTC()); err == nil {
		t.Fatalf("expected duplicate email to be rejected")
	}
}

func TestMessagesRequireExistingUser(t *testing.T) {
	db, err := Open(memoryConfig())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	_, err = db.Exec(`INSERT INTO messages (user_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		999, "user", "orphan", time.Now().UTC())
	if err == nil {
		t.Fatalf("expected foreign key violation")
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := memoryConfig()
	cfg.Database.Driver = "oracle"
	if _, err := Open(cfg); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	if err := Migrate(nil, "oracle"); err == nil {
		t.Fatalf("expected unsupported migration driver error")
	}
}
