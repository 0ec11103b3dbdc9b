package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/security"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(&config.Config{DatabaseDriver: "mysql", DatabaseURL: "x"}); err == nil {
		t.Fatal("expected unsupported driver error")
	}
}

func TestOpenInvalidPostgresDSN(t *testing.T) {
	if _, err := Open(&config.Config{DatabaseDriver: "postgres", DatabaseURL: "%"}); err == nil {
		t.Fatal("expected postgres open error for invalid DSN")
	}
}

func TestOpenSQLiteTranslatesDuplicates(t *testing.T) {
	db, err := Open(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: "file:open_sqlite?mode=memory&cache=shared"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	first := &domain.Account{ID: "a1", Email: "dup@example.com", FullName: "A", PasswordHash: "h"}
	second := &domain.Account{ID: "a2", Email: "dup@example.com", FullName: "B", PasswordHash: "h"}
	if err := db.Create(first).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := db.Create(second).Error; !errors.Is(err, gorm.ErrDuplicatedKey) {
		t.Fatalf("expected ErrDuplicatedKey, got %v", err)
	}
}

func TestMigrateCreatesTablesAndPlanIsClean(t *testing.T) {
	db := newSQLiteDB(t)

	before, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(before) != 2 || before[0].Exists || !before[0].Pending() {
		t.Fatalf("expected pending tables before migrate, got %+v", before)
	}

	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !db.Migrator().HasTable("notification_outbox") || !db.Migrator().HasTable(&domain.Account{}) {
		t.Fatal("expected accounts and notification_outbox tables")
	}

	after, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	for _, p := range after {
		if p.Pending() {
			t.Fatalf("expected no pending changes after migrate, got %+v", p)
		}
	}
}

func TestPlanReportsMissingColumns(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.Migrator().DropColumn(&domain.Account{}, "bio"); err != nil {
		t.Fatalf("drop column: %v", err)
	}
	plans, err := Plan(db)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if plans[0].Table != "accounts" || len(plans[0].MissingColumns) != 1 || plans[0].MissingColumns[0] != "bio" {
		t.Fatalf("expected missing bio column, got %+v", plans[0])
	}
}

func TestMigrateFailureWhenDBClosed(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Close(db); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := Migrate(db); err == nil {
		t.Fatal("expected migrate error on closed database")
	}
}

func TestSeedAccountsCreatesOnceThenNoop(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()

	first, err := SeedAccounts(ctx, db, DevAccounts, 8)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if first.Noop || len(first.Created) != len(DevAccounts) {
		t.Fatalf("expected all dev accounts created, got %+v", first)
	}

	second, err := SeedAccounts(ctx, db, DevAccounts, 8)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if !second.Noop || len(second.Existing) != len(DevAccounts) {
		t.Fatalf("expected noop rerun, got %+v", second)
	}

	var verified domain.Account
	if err := db.Where("email = ?", "verified@example.com").First(&verified).Error; err != nil {
		t.Fatalf("load verified: %v", err)
	}
	if !verified.IsVerified || verified.VerifiedAt == nil {
		t.Fatalf("expected verified demo account, got %+v", verified)
	}
	ok, err := security.VerifyPassword(verified.PasswordHash, "DemoPassw0rd!")
	if err != nil || !ok {
		t.Fatalf("expected stored hash to verify, ok=%v err=%v", ok, err)
	}
}

func TestSeedAccountsValidatesInput(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cases := []SeedAccount{
		{Email: "", FullName: "A", Password: "longenough"},
		{Email: "not-an-email@", FullName: "A", Password: "longenough"},
		{Email: "a@b@example.com", FullName: "A", Password: "longenough"},
		{Email: "a@example.com", FullName: " ", Password: "longenough"},
		{Email: "a@example.com", FullName: "A", Password: "short"},
	}
	for _, c := range cases {
		if _, err := SeedAccounts(context.Background(), db, []SeedAccount{c}, 8); err == nil {
			t.Fatalf("expected validation error for %+v", c)
		}
	}
}

func TestVerifyAccountEmail(t *testing.T) {
	db := newSQLiteDB(t)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	if err := VerifyAccountEmail(ctx, db, ""); err == nil {
		t.Fatal("expected email required error")
	}
	if err := VerifyAccountEmail(ctx, db, "ghost@example.com"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	hash := "token-hash"
	acc := &domain.Account{ID: "p1", Email: "pending@example.com", FullName: "P", PasswordHash: "h", VerificationTokenHash: &hash}
	if err := db.Create(acc).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := VerifyAccountEmail(ctx, db, " Pending@Example.com "); err != nil {
		t.Fatalf("verify: %v", err)
	}
	var got domain.Account
	if err := db.First(&got, "id = ?", "p1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !got.IsVerified || got.VerificationTokenHash != nil {
		t.Fatalf("expected verified with token cleared, got %+v", got)
	}
}
