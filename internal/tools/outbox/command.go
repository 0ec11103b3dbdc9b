package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/credential-manager-go/internal/di"
	"github.com/sandeepkv93/credential-manager-go/internal/service"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/common"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/ui"
)

type options struct {
	envFile string
	timeout time.Duration
	ci      bool
}

func (o *options) runner() common.Runner {
	return common.Runner{Tool: "outbox", CI: o.ci, Timeout: o.timeout, ExitCode: 3, Interactive: ui.Run}
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "outbox", Short: "Notification outbox tooling", SilenceUsage: true}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "operation timeout")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newStatusCommand(opts), newDrainCommand(opts), newRetryCommand(opts), newDeadCommand(opts))
	return cmd
}

func newStatusCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Count messages by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("status", withDispatcher(opts.envFile, status))
		},
	}
}

func newDrainCommand(opts *options) *cobra.Command {
	var maxPasses int
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver due messages now, pass by pass, until none are claimed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("drain", withDispatcher(opts.envFile, func(ctx context.Context, d service.OutboxDispatcherInterface) ([]string, error) {
				return drain(ctx, d, maxPasses)
			}))
		},
	}
	cmd.Flags().IntVar(&maxPasses, "max-passes", 10, "upper bound on dispatch passes")
	return cmd
}

func newRetryCommand(opts *options) *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Requeue a dead message for immediate delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("retry", withDispatcher(opts.envFile, func(ctx context.Context, d service.OutboxDispatcherInterface) ([]string, error) {
				return retry(ctx, d, id)
			}))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "outbox message id")
	return cmd
}

func newDeadCommand(opts *options) *cobra.Command {
	var page, pageSize int
	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead messages with their last delivery error",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("dead", withDispatcher(opts.envFile, func(ctx context.Context, d service.OutboxDispatcherInterface) ([]string, error) {
				return deadLetters(ctx, d, page, pageSize)
			}))
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 20, "messages per page")
	return cmd
}

type dispatcherAction func(ctx context.Context, d service.OutboxDispatcherInterface) ([]string, error)

func withDispatcher(envFile string, fn dispatcherAction) common.Action {
	return func(ctx context.Context) ([]string, error) {
		if err := common.LoadEnvFile(envFile); err != nil {
			return nil, err
		}
		r, err := di.InitializeOutboxRunner()
		if err != nil {
			return nil, err
		}
		defer func() { _ = r.Close() }()
		return fn(ctx, r.Dispatcher)
	}
}

func status(ctx context.Context, d service.OutboxDispatcherInterface) ([]string, error) {
	stats, err := d.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("pending=%d", stats.Pending),
		fmt.Sprintf("sent=%d", stats.Sent),
		fmt.Sprintf("dead=%d", stats.Dead),
	}, nil
}

func drain(ctx context.Context, d service.OutboxDispatcherInterface, maxPasses int) ([]string, error) {
	if maxPasses <= 0 {
		maxPasses = 1
	}
	var total service.DispatchReport
	passes := 0
	for passes < maxPasses {
		report, err := d.DispatchOnce(ctx)
		if err != nil {
			return nil, err
		}
		passes++
		total.Claimed += report.Claimed
		total.Sent += report.Sent
		total.Retried += report.Retried
		total.Dead += report.Dead
		if report.Claimed == 0 {
			break
		}
	}
	return []string{
		fmt.Sprintf("passes=%d", passes),
		fmt.Sprintf("claimed=%d", total.Claimed),
		fmt.Sprintf("sent=%d", total.Sent),
		fmt.Sprintf("retried=%d", total.Retried),
		fmt.Sprintf("dead=%d", total.Dead),
	}, nil
}

func retry(ctx context.Context, d service.OutboxDispatcherInterface, id string) ([]string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("--id is required")
	}
	if err := d.Requeue(ctx, id); err != nil {
		return nil, fmt.Errorf("requeue %s: %w", id, err)
	}
	return []string{"requeued: " + id}, nil
}

func deadLetters(ctx context.Context, d service.OutboxDispatcherInterface, page, pageSize int) ([]string, error) {
	res, err := d.DeadLetters(ctx, page, pageSize)
	if err != nil {
		return nil, err
	}
	lines := []string{fmt.Sprintf("page=%d/%d total=%d", res.Page, res.TotalPages, res.Total)}
	for _, m := range res.Items {
		lines = append(lines, fmt.Sprintf("%s kind=%s to=%s attempts=%d error=%q", m.ID, m.Kind, m.Recipient, m.Attempts, m.LastError))
	}
	return lines, nil
}
