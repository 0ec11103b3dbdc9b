package migrate

import (
	"reflect"
	"testing"

	"github.com/sandeepkv93/credential-manager-go/internal/database"
)

func TestDescribePlan(t *testing.T) {
	got := describePlan([]database.TablePlan{
		{Table: "accounts", Exists: false},
		{Table: "notification_outbox", Exists: true, MissingColumns: []string{"locked_until", "sent_at"}},
		{Table: "other", Exists: true},
	})
	want := []string{
		"create table accounts",
		"alter table notification_outbox add columns: locked_until, sent_at",
		"other: up to date",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected plan lines:\n got %v\nwant %v", got, want)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, name := range []string{"up", "status", "plan"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected subcommand %s, got %v %v", name, cmd, err)
		}
	}
	for _, flag := range []string{"env-file", "timeout", "ci"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("missing persistent flag %s", flag)
		}
	}
}
