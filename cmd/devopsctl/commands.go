package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/samber/lo"
	"github.com/urfave/cli/v3"

	"devopsdash/internal/core"
	"devopsdash/internal/services"
)

// scoped wraps a command body that needs a client for the global credentials.
func scoped(e *env, run func(ctx context.Context, c *cli.Command, s services.Scope) (any, error)) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		s, err := e.scope()
		if err != nil {
			if msg := core.MissingParametersMessage(err); msg != "" {
				return errors.New(msg)
			}
			return err
		}
		out, err := run(ctx, c, s)
		if err != nil {
			return err
		}
		return e.print(c, out)
	}
}

func registerLookups(app *cli.Command, e *env) *cli.Command {
	app.Commands = append(app.Commands,
		&cli.Command{
			Name:  "iterations",
			Usage: "List the team's iterations, Backlog first",
			Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
				return e.dashboard.Iterations(ctx, s)
			}),
		},
		&cli.Command{
			Name:  "states",
			Usage: "List the project's merged work item states",
			Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
				return e.dashboard.States(ctx, s)
			}),
		},
		&cli.Command{
			Name:  "areas",
			Usage: "List the project's area paths",
			Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
				return s.Client.ListAreaPaths(ctx)
			}),
		},
	)
	return app
}

func registerWorkItems(app *cli.Command, e *env) *cli.Command {
	var (
		iteration string
		query     string
		area      core.AreaFilter
		byState   bool
	)
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "workitems",
		Usage:     "Show the work items of an iteration, a saved query or an area path",
		UsageText: "devopsctl workitems [--iteration ID | --query ID | --area PATH]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "iteration", Usage: `iteration id or "current"`, Destination: &iteration},
			&cli.StringFlag{Name: "query", Usage: "saved query id", Destination: &query},
			&cli.StringFlag{Name: "area", Usage: "area path", Destination: &area.AreaPath},
			&cli.BoolFlag{Name: "exclude-closed", Usage: "with --area, skip Closed items", Destination: &area.ExcludeClosed},
			&cli.BoolFlag{Name: "exclude-removed", Usage: "with --area, skip Removed items", Destination: &area.ExcludeRemoved},
			&cli.BoolFlag{Name: "exclude-done", Usage: "with --area, skip Done items", Destination: &area.ExcludeDone},
			&cli.BoolFlag{Name: "sort-state", Usage: "order rows by state rank", Destination: &byState},
		},
		Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
			var (
				view services.GridView
				err  error
			)
			if iteration == "" && (query != "" || area.AreaPath != "") {
				view, err = e.dashboard.Backlog(ctx, s, services.BacklogQuery{QueryID: query, Area: area})
			} else {
				view, err = e.dashboard.Iteration(ctx, s, iteration)
			}
			if err != nil {
				return nil, err
			}
			if byState {
				view = view.SortedByState()
			}
			return view, nil
		}),
	})
	return app
}

func registerCharts(app *cli.Command, e *env) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "chart",
		Usage: "Print chart series",
		Commands: []*cli.Command{
			{
				Name:  "overview",
				Usage: "states, current iteration and history series",
				Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
					return e.dashboard.Overview(ctx, s)
				}),
			},
			{
				Name:  "age",
				Usage: "work item age per day",
				Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
					return e.dashboard.Age(ctx, s)
				}),
			},
			{
				Name:  "lead-cycle-time",
				Usage: "lead and cycle time per completion day",
				Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
					return e.dashboard.LeadCycleTime(ctx, s)
				}),
			},
		},
	})
	return app
}

func registerMove(app *cli.Command, e *env) *cli.Command {
	var to string
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "move",
		Usage:     "Move work items to an iteration",
		UsageText: "devopsctl move --to ITERATION_ID ID [ID...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "to", Usage: `target iteration id, "current" or "backlog"`, Required: true, Destination: &to},
		},
		Action: scoped(e, func(ctx context.Context, c *cli.Command, s services.Scope) (any, error) {
			ids, err := parseIDs(c.Args().Slice())
			if err != nil {
				return nil, err
			}
			repo, err := e.moveStore()
			if err != nil {
				return nil, err
			}
			return services.NewMover(repo, nil).Move(ctx, s, ids, to)
		}),
	})
	return app
}

func registerChecklist(app *cli.Command, e *env) *cli.Command {
	var iteration string
	app.Commands = append(app.Commands, &cli.Command{
		Name:  "checklist",
		Usage: "Build the release checklist of an iteration and write it to the configured spreadsheet",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "iteration", Usage: `iteration id or "current"`, Destination: &iteration},
		},
		Action: scoped(e, func(ctx context.Context, _ *cli.Command, s services.Scope) (any, error) {
			return services.NewExporter(e.dashboard, e.backend.Writer).ReleaseChecklist(ctx, s, iteration)
		}),
	})
	return app
}

func parseIDs(args []string) ([]int, error) {
	if len(args) == 0 {
		return nil, core.ErrNoWorkItems
	}
	ids := make([]int, 0, len(args))
	for _, a := range args {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid work item id %q", a)
		}
		ids = append(ids, id)
	}
	return lo.Uniq(ids), nil
}
