package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/domain"
	"github.com/sandeepkv93/credential-manager-go/internal/observability"
)

func models() []any {
	return []any{
		&domain.Account{},
		&domain.OutboxMessage{},
	}
}

func Migrate(db *gorm.DB) error {
	start := time.Now()
	ctx := context.Background()
	defer func() {
		observability.RecordDatabaseStartupDuration(ctx, "migrate", time.Since(start))
	}()
	if err := db.AutoMigrate(models()...); err != nil {
		observability.RecordDatabaseStartupEvent(ctx, "migrate", "error")
		return err
	}
	observability.RecordDatabaseStartupEvent(ctx, "migrate", "success")
	return nil
}

type TablePlan struct {
	Table          string   `json:"table"`
	Exists         bool     `json:"exists"`
	MissingColumns []string `json:"missing_columns,omitempty"`
}

func (p TablePlan) Pending() bool {
	return !p.Exists || len(p.MissingColumns) > 0
}

// Plan reports what Migrate would change without mutating the schema.
func Plan(db *gorm.DB) ([]TablePlan, error) {
	migrator := db.Migrator()
	plans := make([]TablePlan, 0, len(models()))
	for _, model := range models() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, err
		}
		plan := TablePlan{Table: stmt.Schema.Table, Exists: migrator.HasTable(model)}
		if plan.Exists {
			for _, column := range stmt.Schema.DBNames {
				if !migrator.HasColumn(model, column) {
					plan.MissingColumns = append(plan.MissingColumns, column)
				}
			}
		}
		plans = append(plans, plan)
	}
	return plans, nil
}
