// Command ta is a thin harness over the trusted-autonomy core packages:
// it is not the adapter-rich CLI the product ships, just enough surface
// to exercise goal, draft, and audit operations from a terminal.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/trusted-autonomy/ta/pkg/config"
	"github.com/trusted-autonomy/ta/pkg/draftpkg"
	"github.com/trusted-autonomy/ta/pkg/goalrun"
	"github.com/trusted-autonomy/ta/pkg/taaudit"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, separated from main for testability.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 0
	}

	switch args[1] {
	case "goal":
		return runGoalCmd(args[2:], stdout, stderr)
	case "draft":
		return runDraftCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "plan", "adapter", "serve":
		_, _ = fmt.Fprintf(stderr, "%s: not implemented in this harness\n", args[1])
		return 1
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `ta - trusted-autonomy harness

Usage:
  ta goal start --root <dir> --agent <id> --title <title>
  ta goal status --root <dir> --id <goal_run_id>
  ta goal list --root <dir>
  ta draft status --root <dir> --id <package_id>
  ta draft apply --root <dir> --id <package_id> [--approve <pat>]... [--reject <pat>]... [--discuss <pat>]...
  ta audit verify --root <dir>
  ta audit tail --root <dir> [-n <count>]

Flags relevant to the core:
  --conflict-resolution {abort,force-overwrite,merge}
  --approve / --reject / --discuss <pattern>  (repeatable)
  --detail {top,medium,full}`)
}

func runGoalCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: ta goal <start|status|list>")
		return 2
	}

	switch args[0] {
	case "start":
		fs := flagSet("goal start")
		root := fs.String("root", ".", "project root")
		agent := fs.String("agent", "", "agent id")
		title := fs.String("title", "", "goal title")
		objective := fs.String("objective", "", "goal objective")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		dispatcher := goalrun.NewDispatcher(slog.Default())
		sink, err := goalrun.NewLogSink(layout.EventsLogPath)
		if err == nil {
			dispatcher.AddSink(sink)
		}
		store, err := goalrun.NewStore(layout.GoalsDir, dispatcher)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}

		g := goalrun.New(*title, *objective, *agent, *root)
		if err := store.Save(g); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, g.GoalRunID)
		return 0

	case "status":
		fs := flagSet("goal status")
		root := fs.String("root", ".", "project root")
		id := fs.String("id", "", "goal run id")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		goalID, err := uuid.Parse(*id)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}

		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		store, err := goalrun.NewStore(layout.GoalsDir, nil)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		g, err := store.Get(goalID)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(g)
		return 0

	case "list":
		fs := flagSet("goal list")
		root := fs.String("root", ".", "project root")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		store, err := goalrun.NewStore(layout.GoalsDir, nil)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		goals, err := store.List()
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		for _, g := range goals {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", g.GoalRunID, g.State, g.Title)
		}
		return 0

	default:
		_, _ = fmt.Fprintf(stderr, "unknown goal subcommand: %s\n", args[0])
		return 2
	}
}

func runDraftCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: ta draft <status|apply>")
		return 2
	}

	switch args[0] {
	case "status":
		fs := flagSet("draft status")
		root := fs.String("root", ".", "project root")
		id := fs.String("id", "", "draft package id")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		pkgID, err := uuid.Parse(*id)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}

		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		store, err := draftpkg.NewStore(layout.DraftsDir)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		pkg, err := store.Get(pkgID)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pkg)
		return 0

	case "apply":
		fs := flagSet("draft apply")
		root := fs.String("root", ".", "project root")
		id := fs.String("id", "", "draft package id")
		skipRejected := fs.Bool("skip-rejected", false, "allow apply with rejected artifacts present")
		var approve, reject, discuss repeatableFlag
		fs.Var(&approve, "approve", "URI glob pattern to approve (repeatable)")
		fs.Var(&reject, "reject", "URI glob pattern to reject (repeatable)")
		fs.Var(&discuss, "discuss", "URI glob pattern to mark for discussion (repeatable)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		pkgID, err := uuid.Parse(*id)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}

		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		store, err := draftpkg.NewStore(layout.DraftsDir)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		pkg, err := store.Get(pkgID)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}

		if len(approve) > 0 || len(reject) > 0 || len(discuss) > 0 {
			if err := pkg.ApplyPatterns(approve, reject, discuss); err != nil {
				_, _ = fmt.Fprintln(stderr, err)
				return 1
			}
		}

		if err := pkg.CanApply(*skipRejected); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}

		audit, err := taaudit.Open(layout.AuditLogPath, slog.Default())
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		defer audit.Close()
		for _, a := range pkg.Artifacts {
			event := taaudit.NewEvent(pkg.AgentIdentity, taaudit.ActionApproval).
				WithTarget(a.ResourceURI).
				WithMetadata(map[string]any{"disposition": a.Disposition})
			if _, err := audit.Append(event); err != nil {
				_, _ = fmt.Fprintln(stderr, err)
				return 1
			}
		}

		if err := pkg.Transition(draftpkg.StatusApplied); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		applyEvent := taaudit.NewEvent(pkg.AgentIdentity, taaudit.ActionApply).
			WithMetadata(map[string]any{"package_id": pkg.PackageID, "selected": pkg.SelectedURIs()})
		if _, err := audit.Append(applyEvent); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		if err := store.Save(pkg); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}

		for _, uri := range pkg.SelectedURIs() {
			_, _ = fmt.Fprintln(stdout, uri)
		}
		return 0

	default:
		_, _ = fmt.Fprintf(stderr, "unknown draft subcommand: %s\n", args[0])
		return 2
	}
}

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, "usage: ta audit <verify|tail>")
		return 2
	}

	switch args[0] {
	case "verify":
		fs := flagSet("audit verify")
		root := fs.String("root", ".", "project root")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		if err := taaudit.VerifyChain(layout.AuditLogPath); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		_, _ = fmt.Fprintln(stdout, "ok")
		return 0

	case "tail":
		fs := flagSet("audit tail")
		root := fs.String("root", ".", "project root")
		n := fs.Int("n", 10, "number of trailing events")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		layout, err := config.ForProject(*root)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		events, err := taaudit.ReadAll(layout.AuditLogPath)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		start := 0
		if len(events) > *n {
			start = len(events) - *n
		}
		enc := json.NewEncoder(stdout)
		for _, e := range events[start:] {
			_ = enc.Encode(e)
		}
		return 0

	default:
		_, _ = fmt.Fprintf(stderr, "unknown audit subcommand: %s\n", args[0])
		return 2
	}
}
