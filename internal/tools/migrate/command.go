package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-manager-go/internal/database"
	"github.com/sandeepkv93/credential-manager-go/internal/di"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/common"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func (o *options) runner() common.Runner {
	return common.Runner{Tool: "migrate", CI: o.ci, Timeout: o.timeout, ExitCode: 3, Interactive: ui.Run}
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Database migration tooling",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")

	cmd.AddCommand(
		newUpCommand(opts),
		newStatusCommand(opts),
		newPlanCommand(opts),
	)
	return cmd
}

func newUpCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("up", func(ctx context.Context) ([]string, error) {
				m, err := openRunner(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = m.Close() }()
				if err := m.Up(); err != nil {
					return nil, err
				}
				return []string{
					"schema migration applied",
					"driver: " + m.Config().DatabaseDriver,
					"service: " + m.Config().OTELServiceName,
				}, nil
			})
		},
	}
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check connectivity and report pending schema changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("status", func(ctx context.Context) ([]string, error) {
				m, err := openRunner(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = m.Close() }()
				if err := m.Ping(ctx); err != nil {
					return nil, fmt.Errorf("db ping: %w", err)
				}
				plans, err := m.Plan()
				if err != nil {
					return nil, err
				}
				pending := 0
				for _, p := range plans {
					if p.Pending() {
						pending++
					}
				}
				state := "up to date"
				if pending > 0 {
					state = fmt.Sprintf("%d table(s) pending", pending)
				}
				return []string{"database reachable", "driver: " + m.Config().DatabaseDriver, "migrations: " + state}, nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show migration plan (dry-run)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("plan", func(ctx context.Context) ([]string, error) {
				m, err := openRunner(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = m.Close() }()
				plans, err := m.Plan()
				if err != nil {
					return nil, err
				}
				return append(describePlan(plans), "no mutation executed in plan mode"), nil
			})
		},
	}
}

func describePlan(plans []database.TablePlan) []string {
	lines := make([]string, 0, len(plans))
	for _, p := range plans {
		switch {
		case !p.Exists:
			lines = append(lines, "create table "+p.Table)
		case len(p.MissingColumns) > 0:
			lines = append(lines, fmt.Sprintf("alter table %s add columns: %s", p.Table, strings.Join(p.MissingColumns, ", ")))
		default:
			lines = append(lines, p.Table+": up to date")
		}
	}
	return lines
}

func openRunner(envFile string) (*di.MigrationRunner, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, err
	}
	return di.InitializeMigrationRunner()
}
