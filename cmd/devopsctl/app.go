package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"devopsdash/internal/backend"
	"devopsdash/internal/config"
	"devopsdash/internal/core"
	"devopsdash/internal/log"
	"devopsdash/internal/services"
	"devopsdash/internal/storage"
)

// Flags are the connection settings shared by every command.
type Flags struct {
	Organization string
	Project      string
	Team         string
	Token        string
	Pretty       bool
}

func (f *Flags) Credentials() core.Credentials {
	return core.Credentials{
		Organization: f.Organization,
		Project:      f.Project,
		Team:         f.Team,
		Token:        f.Token,
	}
}

// env is built in Before and torn down in After.
type env struct {
	flags     *Flags
	cfg       *config.Config
	backend   *backend.BackendResult
	dashboard *services.Dashboard
	repo      *storage.SQLiteRepository
}

// scope validates the credentials and builds the client for them.
func (e *env) scope() (services.Scope, error) {
	return services.NewScope(e.backend.Factory, e.flags.Credentials())
}

// moveStore opens the move request database on first use.
func (e *env) moveStore() (*storage.SQLiteRepository, error) {
	if e.repo != nil {
		return e.repo, nil
	}
	repo, err := storage.NewSQLiteRepository(e.cfg.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("open move database: %w", err)
	}
	e.repo = repo
	return repo, nil
}

func (e *env) print(c *cli.Command, v any) error {
	enc := json.NewEncoder(c.Root().Writer)
	if e.flags.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

func newApp(out io.Writer) *cli.Command {
	flags := &Flags{}
	e := &env{flags: flags}

	app := &cli.Command{
		Name:      "devopsctl",
		Usage:     "Query an Azure DevOps project from the terminal",
		UsageText: "devopsctl [global options] command [command options]",
		Writer:    out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "organization",
				Aliases:     []string{"o"},
				Usage:       "Azure DevOps organization",
				Sources:     cli.EnvVars("AZURE_DEVOPS_ORGANIZATION"),
				Destination: &flags.Organization,
			},
			&cli.StringFlag{
				Name:        "project",
				Aliases:     []string{"p"},
				Usage:       "project name",
				Sources:     cli.EnvVars("AZURE_DEVOPS_PROJECT"),
				Destination: &flags.Project,
			},
			&cli.StringFlag{
				Name:        "team",
				Aliases:     []string{"t"},
				Usage:       "team name (defaults to the project's default team)",
				Sources:     cli.EnvVars("AZURE_DEVOPS_TEAM"),
				Destination: &flags.Team,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "personal access token",
				Sources:     cli.EnvVars("AZURE_DEVOPS_TOKEN"),
				Destination: &flags.Token,
			},
			&cli.BoolFlag{
				Name:        "pretty",
				Usage:       "indent the JSON output",
				Destination: &flags.Pretty,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// stdout carries the JSON, so logs go to stderr
			logCfg := log.DefaultConfig()
			logCfg.Output = os.Stderr
			logCfg.Level = log.ParseLevel(os.Getenv("LOG_LEVEL"))
			if os.Getenv("LOG_LEVEL") == "" {
				logCfg.Level = slog.LevelWarn
			}
			logger := log.New(logCfg)
			log.SetDefault(logger)

			e.cfg = config.Load()
			bcfg, err := backend.FromAppConfig(e.cfg)
			if err != nil {
				return ctx, err
			}
			e.backend, err = backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
			if err != nil {
				return ctx, fmt.Errorf("create backend: %w", err)
			}
			e.dashboard = services.NewDashboard(nil, nil, nil)
			return ctx, nil
		},
		After: func(context.Context, *cli.Command) error {
			if e.repo != nil {
				return e.repo.Close()
			}
			return nil
		},
	}

	for _, register := range []func(*cli.Command, *env) *cli.Command{
		registerLookups,
		registerWorkItems,
		registerCharts,
		registerMove,
		registerChecklist,
	} {
		app = register(app, e)
	}
	return app
}
