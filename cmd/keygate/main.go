package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/example/keygate/internal/app"
	"github.com/example/keygate/internal/clock"
	"github.com/example/keygate/internal/config"
	"github.com/example/keygate/internal/report"
)

var exitFunc = os.Exit

var buildApp = func(ctx context.Context, configPath string) (*app.App, error) {
	cfg, err := config.Resolve(configPath)
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.Options{})
}

var wallClock = clock.Real()

var errUsage = errors.New("usage")

type command struct {
	summary string
	run     func(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error
	flags   func(fs *pflag.FlagSet)
}

var commands = map[string]command{
	"issue": {
		summary: "issue --by <admin> --duration <label>   Mint an access key",
		flags: func(fs *pflag.FlagSet) {
			fs.String("by", "", "requesting identity (must be the administrator)")
			fs.String("duration", "", "key duration label (1m 5m 1h 1d 3d 7d 15d 30d lifetime)")
		},
		run: runIssue,
	},
	"redeem": {
		summary: "redeem --user <id> --key <key>          Redeem a key for a user",
		flags: func(fs *pflag.FlagSet) {
			fs.String("user", "", "user identity")
			fs.String("key", "", "key to redeem")
		},
		run: runRedeem,
	},
	"access": {
		summary: "access --user <id>                      Check whether a user holds access",
		flags: func(fs *pflag.FlagSet) {
			fs.String("user", "", "user identity")
		},
		run: runAccess,
	},
	"fulfill": {
		summary: "fulfill --user <id> --category <name>   Draw a batch and write it to a file",
		flags: func(fs *pflag.FlagSet) {
			fs.String("user", "", "user identity")
			fs.String("category", "", "category to draw")
			fs.Int("quota", 0, "batch size (0 uses the configured quota)")
			fs.String("out", ".", "directory for the batch file")
		},
		run: runFulfill,
	},
	"stats": {
		summary: "stats                                   Show delivery statistics",
		run:     runStats,
	},
	"users": {
		summary: "users --by <admin>                      List granted users",
		flags: func(fs *pflag.FlagSet) {
			fs.String("by", "", "requesting identity (must be the administrator)")
		},
		run: runUsers,
	},
	"catalog": {
		summary: "catalog                                 List categories and durations",
		run:     runCatalog,
	},
	"sync": {
		summary: "sync                                    Refresh pool files from git",
		run:     runSync,
	},
}

func main() {
	if len(os.Args) < 2 {
		usage()
		exitFunc(2)
		return
	}
	err := run(context.Background(), os.Args[1:], os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		usage()
		exitFunc(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		exitFunc(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, ok := commands[args[0]]
	if !ok {
		return errUsage
	}
	fs := pflag.NewFlagSet(args[0], pflag.ContinueOnError)
	fs.String("config", "", "config file (defaults to $KEYGATE_CONFIG)")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	configPath, _ := fs.GetString("config")
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return cmd.run(ctx, a, fs, out)
}

func runIssue(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error {
	by, _ := fs.GetString("by")
	duration, _ := fs.GetString("duration")
	key, err := a.Service.Issue(ctx, by, duration)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%s\t%s\n", key.ID, key.Label, key.Expiry)
	return nil
}

func runRedeem(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error {
	user, _ := fs.GetString("user")
	key, _ := fs.GetString("key")
	exp, err := a.Service.Redeem(ctx, user, key)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "redeemed for %s until %s\n", user, exp)
	return nil
}

func runAccess(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error {
	user, _ := fs.GetString("user")
	ok, err := a.Service.HasAccess(ctx, user)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(out, "%s: granted\n", user)
	} else {
		fmt.Fprintf(out, "%s: denied\n", user)
	}
	return nil
}

func runFulfill(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error {
	user, _ := fs.GetString("user")
	category, _ := fs.GetString("category")
	quota, _ := fs.GetInt("quota")
	dir, _ := fs.GetString("out")

	items, err := a.Service.Fulfill(ctx, user, category, quota)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, report.BatchFilename(category, wallClock.Now()))
	if err := os.WriteFile(path, []byte(report.RenderBatch(items)), 0o644); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	fmt.Fprintf(out, "%d accounts generated: %s\n", len(items), path)
	return nil
}

func runStats(ctx context.Context, a *app.App, _ *pflag.FlagSet, out io.Writer) error {
	s, err := a.Service.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprint(out, report.RenderStats(s, wallClock.Now()))
	return nil
}

func runUsers(ctx context.Context, a *app.App, fs *pflag.FlagSet, out io.Writer) error {
	by, _ := fs.GetString("by")
	rep, err := a.Service.Users(ctx, by)
	if err != nil {
		return err
	}
	fmt.Fprint(out, report.RenderUsers(rep))
	return nil
}

func runCatalog(_ context.Context, a *app.App, _ *pflag.FlagSet, out io.Writer) error {
	fmt.Fprintf(out, "categories: %s\n", strings.Join(a.Service.Categories(), " "))
	fmt.Fprintf(out, "durations: %s\n", strings.Join(a.Service.DurationLabels(), " "))
	return nil
}

// runSync reports what the pool refresh done by app.Build changed.
func runSync(_ context.Context, a *app.App, _ *pflag.FlagSet, out io.Writer) error {
	if !a.Syncer.Enabled() {
		return fmt.Errorf("sync.url is not configured")
	}
	if len(a.PoolChanges) == 0 {
		fmt.Fprintln(out, "pools up to date")
		return nil
	}
	for _, f := range a.PoolChanges {
		fmt.Fprintln(out, f)
	}
	return nil
}

func usage() {
	names := []string{"issue", "redeem", "access", "fulfill", "stats", "users", "catalog", "sync"}
	var b strings.Builder
	b.WriteString("keygate <command> [--config <path>] [flags]\n\nCommands:\n")
	for _, n := range names {
		b.WriteString("  " + commands[n].summary + "\n")
	}
	fmt.Print(b.String())
}
