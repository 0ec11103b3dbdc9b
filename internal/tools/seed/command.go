package seed

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/sandeepkv93/credential-manager-go/internal/config"
	"github.com/sandeepkv93/credential-manager-go/internal/database"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/common"
	"github.com/sandeepkv93/credential-manager-go/internal/tools/ui"
)

type options struct {
	envFile string
	ci      bool
}

func (o *options) runner() common.Runner {
	return common.Runner{Tool: "seed", CI: o.ci, ExitCode: 3, Interactive: ui.Run}
}

func NewRootCommand() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{Use: "seed", Short: "Account seed tooling", SilenceUsage: true}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "path to env file")
	cmd.PersistentFlags().BoolVar(&opts.ci, "ci", false, "non-interactive machine-readable output")
	cmd.AddCommand(newDevAccountsCommand(opts), newAccountCommand(opts), newVerifyEmailCommand(opts))
	return cmd
}

func newDevAccountsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dev-accounts",
		Short: "Create verified and unverified demo accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("dev-accounts", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = database.Close(db) }()
				if !cfg.IsLocal() {
					return nil, fmt.Errorf("dev accounts are only seeded in local environments, APP_ENV=%s", cfg.Env)
				}
				report, err := database.SeedAccounts(ctx, db, database.DevAccounts, cfg.AuthPasswordMinLength)
				if err != nil {
					return nil, err
				}
				return describeReport(report), nil
			})
		},
	}
}

func newAccountCommand(opts *options) *cobra.Command {
	var (
		email         string
		name          string
		verified      bool
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Create a single account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" || strings.TrimSpace(name) == "" {
				return errors.New("--email and --name are required")
			}
			password, err := readPassword(cmd.InOrStdin(), cmd.ErrOrStderr(), passwordStdin)
			if err != nil {
				return err
			}
			return opts.runner().Run("account", func(ctx context.Context) ([]string, error) {
				cfg, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = database.Close(db) }()
				report, err := database.SeedAccounts(ctx, db, []database.SeedAccount{{
					Email:    email,
					FullName: name,
					Password: password,
					Verified: verified,
				}}, cfg.AuthPasswordMinLength)
				if err != nil {
					return nil, err
				}
				return describeReport(report), nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "account full name")
	cmd.Flags().BoolVar(&verified, "verified", false, "create the account already verified")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	return cmd
}

func newVerifyEmailCommand(opts *options) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "verify-email",
		Short: "Mark an account email as verified",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.runner().Run("verify-email", func(ctx context.Context) ([]string, error) {
				if strings.TrimSpace(email) == "" {
					return nil, errors.New("email is required")
				}
				_, db, err := loadConfigDB(opts.envFile)
				if err != nil {
					return nil, err
				}
				defer func() { _ = database.Close(db) }()
				if err := database.VerifyAccountEmail(ctx, db, email); err != nil {
					return nil, err
				}
				return []string{"marked email verified: " + strings.ToLower(strings.TrimSpace(email))}, nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email to mark verified")
	return cmd
}

// readPassword takes the first line of in when fromStdin is set. Otherwise it
// prompts on the terminal without echo.
func readPassword(in io.Reader, prompt io.Writer, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("empty password on stdin")
		}
		return line, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal, use --password-stdin")
	}
	_, _ = fmt.Fprint(prompt, "Password: ")
	raw, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

func describeReport(report *database.SeedReport) []string {
	lines := make([]string, 0, len(report.Created)+len(report.Existing)+1)
	for _, e := range report.Created {
		lines = append(lines, "created: "+e)
	}
	for _, e := range report.Existing {
		lines = append(lines, "already present: "+e)
	}
	if report.Noop {
		lines = append(lines, "no changes")
	}
	return lines
}

func loadConfigDB(envFile string) (*config.Config, *gorm.DB, error) {
	if err := common.LoadEnvFile(envFile); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.Open(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
