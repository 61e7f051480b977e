package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stejskal/web-predator/internal/adapters/api"
	sqliteadapter "github.com/stejskal/web-predator/internal/adapters/db/sqlite"
	httpadapter "github.com/stejskal/web-predator/internal/adapters/http"
	rpcadapter "github.com/stejskal/web-predator/internal/adapters/rpcjson"
	"github.com/stejskal/web-predator/internal/application"
	"github.com/stejskal/web-predator/internal/config"
	"github.com/stejskal/web-predator/internal/domain"
	"github.com/stejskal/web-predator/internal/explorer"
	"github.com/stejskal/web-predator/internal/logging"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "predator",
		Usage: "Food-chain graph explorer: backend, session daemon and CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "transport", Usage: "uds (session daemon) or http (one-shot session against the backend)"},
			&cli.StringFlag{Name: "server", Usage: "backend API base URL"},
			&cli.StringFlag{Name: "socket", Usage: "session daemon unix socket path"},
			&cli.DurationFlag{Name: "timeout", Usage: "request timeout"},
			&cli.BoolFlag{Name: "debug", Usage: "debug logging"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Commands: []*cli.Command{
			backendCommand(),
			sessionCommand(),
			entitiesCommand(),
			schemaCommand(),
			treeCommand(),
			relationshipsCommand(),
			createCommand(),
			similarCommand(),
			searchCreateCommand(),
			browseCommand(),
			configCommand(),
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

// loadRuntime resolves the config file, environment and global flags, in
// increasing precedence.
func loadRuntime(c *cli.Command) (config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	if c.IsSet("transport") {
		cfg.Transport = c.String("transport")
	}
	if c.IsSet("server") {
		cfg.Server = c.String("server")
	}
	if c.IsSet("socket") {
		cfg.Socket = c.String("socket")
	}
	if c.IsSet("timeout") {
		cfg.Timeout = c.Duration("timeout")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel, c.Bool("debug"))
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

// withSession runs fn against a session client built from the runtime
// config.
func withSession(ctx context.Context, c *cli.Command, fn func(sessionClient) error) error {
	cfg, logger, err := loadRuntime(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	client, err := newSessionClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return fn(client)
}

func backendCommand() *cli.Command {
	return &cli.Command{
		Name:  "backend",
		Usage: "Run the reference HTTP backend over sqlite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: ":8080", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "db-path", Value: "predator.db", Usage: "SQLite database path"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			_, logger, err := loadRuntime(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runBackend(ctx, c.String("addr"), c.String("db-path"), logger)
		},
	}
}

func runBackend(ctx context.Context, addr, dbPath string, logger *zap.Logger) error {
	db, err := sqliteadapter.Open(dbPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewGraphRepository(db)
	service := application.NewGraphService(repo, logger.Named("service"))

	router := httpadapter.NewRouter(service, logger.Named("http"))
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backend listening", zap.String("addr", srv.Addr), zap.String("db", dbPath))
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func sessionCommand() *cli.Command {
	return &cli.Command{
		Name:  "session",
		Usage: "Run the session daemon holding explorer state for the CLI",
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, logger, err := loadRuntime(c)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return runSession(ctx, cfg, logger)
		},
	}
}

func runSession(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	backend := api.New(cfg.Server, cfg.Timeout, api.WithLogger(logger.Named("api")))
	if err := backend.Health(ctx); err != nil {
		logger.Warn("backend not reachable yet", zap.String("server", cfg.Server), zap.Error(err))
	}
	session := explorer.NewSession(backend, explorer.WithLogger(logger))
	if err := session.Load(ctx); err != nil {
		logger.Warn("initial load failed", zap.Error(err))
	}

	rpcSrv, err := rpcadapter.Start(cfg.Socket, session, logger.Named("rpc"))
	if err != nil {
		return err
	}
	defer func() { _ = rpcSrv.Close() }()
	logger.Info("session daemon listening", zap.String("socket", cfg.Socket), zap.String("server", cfg.Server))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}
	return nil
}

func entitiesCommand() *cli.Command {
	return &cli.Command{
		Name:  "entities",
		Usage: "Entity collection commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List cached entities",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out []domain.Entity
						if err := doEntitiesList(ctx, client, &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printEntities(out)
						return nil
					})
				},
			},
			{
				Name:  "refresh",
				Usage: "Refetch the entity collection",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out []domain.Entity
						if err := doEntitiesRefresh(ctx, client, &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printEntities(out)
						return nil
					})
				},
			},
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Schema queries",
		Commands: []*cli.Command{
			{
				Name:  "targets",
				Usage: "List entity types that can be linked from a type",
				Flags: []cli.Flag{&cli.StringFlag{Name: "type", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out []string
						if err := doSchemaTargets(ctx, client, c.String("type"), &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						rows := make([][]string, 0, len(out))
						for _, t := range out {
							rows = append(rows, []string{t})
						}
						printTable([]string{"TARGET_TYPE"}, rows)
						return nil
					})
				},
			},
			{
				Name:  "check",
				Usage: "Check whether two entity types may be linked",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "from", Required: true},
					&cli.StringFlag{Name: "to", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out rpcadapter.EntityCheck
						if err := doSchemaCheck(ctx, client, c.String("from"), c.String("to"), &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printCheck(out)
						return nil
					})
				},
			},
			{
				Name:  "types",
				Usage: "List creatable and display types",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out rpcadapter.TypeLists
						if err := doSchemaTypes(ctx, client, &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printTypeLists(out)
						return nil
					})
				},
			},
		},
	}
}

func treeCommand() *cli.Command {
	return &cli.Command{
		Name:  "tree",
		Usage: "Expansion tree commands",
		Commands: []*cli.Command{
			{
				Name:  "expand",
				Usage: "Toggle a top-level entity",
				Flags: []cli.Flag{&cli.UintFlag{Name: "id", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out explorer.NodeView
						if err := doTreeExpand(ctx, client, c.Uint("id"), &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printNode(out)
						return nil
					})
				},
			},
			{
				Name:  "nested",
				Usage: "Toggle a related entity under an expanded one",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "parent", Required: true},
					&cli.UintFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out []explorer.NodeView
						if err := doTreeNested(ctx, client, c.Uint("parent"), c.Uint("id"), &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printNodes(out)
						return nil
					})
				},
			},
			{
				Name:  "show",
				Usage: "Show every node of the expansion tree",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var out []explorer.NodeView
						if err := doTreeShow(ctx, client, &out); err != nil {
							return err
						}
						if c.Bool("json") {
							return printJSON(out)
						}
						printNodes(out)
						return nil
					})
				},
			},
			{
				Name:  "clear",
				Usage: "Drop every node",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						if err := doTreeClear(ctx, client); err != nil {
							return err
						}
						fmt.Println("tree cleared")
						return nil
					})
				},
			},
		},
	}
}

func relationshipsCommand() *cli.Command {
	edgeFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.UintFlag{Name: "from", Required: true},
			&cli.UintFlag{Name: "to", Required: true},
		}
	}
	return &cli.Command{
		Name:  "relationships",
		Usage: "Relationship commands",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Link two entities",
				Flags: edgeFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						if err := doRelationshipAdd(ctx, client, c.Uint("from"), c.Uint("to")); err != nil {
							return err
						}
						fmt.Printf("linked %d -> %d\n", c.Uint("from"), c.Uint("to"))
						return nil
					})
				},
			},
			{
				Name:  "remove",
				Usage: "Unlink two entities",
				Flags: edgeFlags(),
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						if err := doRelationshipRemove(ctx, client, c.Uint("from"), c.Uint("to")); err != nil {
							return err
						}
						fmt.Printf("unlinked %d -> %d\n", c.Uint("from"), c.Uint("to"))
						return nil
					})
				},
			},
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an entity, checking ingredient names for near duplicates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Required: true},
			&cli.StringFlag{Name: "type", Required: true},
			&cli.StringFlag{Name: "description"},
			&cli.StringSliceFlag{Name: "prop", Usage: "property as key=value, repeatable"},
			&cli.StringFlag{Name: "attach", Usage: "comma separated entity ids to link to the new entity"},
			&cli.StringFlag{Name: "on-similar", Usage: "resolve a similarity prompt: cancel, continue or pick=<id>"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			props, err := parseProps(c.StringSlice("prop"))
			if err != nil {
				return err
			}
			attach, err := parseIDs(c.String("attach"))
			if err != nil {
				return err
			}
			var decision *explorer.Decision
			if c.IsSet("on-similar") {
				d, err := parseDecision(c.String("on-similar"))
				if err != nil {
					return err
				}
				decision = &d
			}

			return withSession(ctx, c, func(client sessionClient) error {
				params := rpcadapter.SubmitParams{
					Draft: explorer.Draft{
						Name:        c.String("name"),
						Type:        c.String("type"),
						Description: c.String("description"),
						Properties:  props,
					},
					AttachmentIDs: attach,
				}
				var status explorer.WorkflowStatus
				if err := doCreate(ctx, client, params, &status); err != nil {
					return err
				}
				if status.PromptOpen() && decision != nil {
					if err := doResolve(ctx, client, *decision, &status); err != nil {
						return err
					}
				}
				return reportStatus(c, status)
			})
		},
	}
}

func similarCommand() *cli.Command {
	return &cli.Command{
		Name:  "similar",
		Usage: "Similar ingredient prompt commands",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the creation workflow status and any open prompt",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withSession(ctx, c, func(client sessionClient) error {
						var status explorer.WorkflowStatus
						if err := doCreationStatus(ctx, client, &status); err != nil {
							return err
						}
						return reportStatus(c, status)
					})
				},
			},
			{
				Name:  "resolve",
				Usage: "Resolve the open prompt with cancel, continue or pick=<id>",
				Flags: []cli.Flag{&cli.StringFlag{Name: "decision", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					d, err := parseDecision(c.String("decision"))
					if err != nil {
						return err
					}
					return withSession(ctx, c, func(client sessionClient) error {
						var status explorer.WorkflowStatus
						if err := doResolve(ctx, client, d, &status); err != nil {
							return err
						}
						return reportStatus(c, status)
					})
				},
			},
		},
	}
}

func searchCreateCommand() *cli.Command {
	return &cli.Command{
		Name:  "search-create",
		Usage: "Create an ingredient straight from a picker search term",
		Flags: []cli.Flag{&cli.StringFlag{Name: "name", Required: true}},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withSession(ctx, c, func(client sessionClient) error {
				var status explorer.WorkflowStatus
				if err := doSearchCreate(ctx, client, c.String("name"), &status); err != nil {
					return err
				}
				return reportStatus(c, status)
			})
		},
	}
}

func browseCommand() *cli.Command {
	return &cli.Command{
		Name:  "browse",
		Usage: "List entities of one type tab, filtered by its search query",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "tab to show; default keeps the current tab"},
			&cli.StringFlag{Name: "query", Usage: "search query for the tab"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var query *string
			if c.IsSet("query") {
				q := c.String("query")
				query = &q
			}
			return withSession(ctx, c, func(client sessionClient) error {
				var out rpcadapter.Listing
				if err := doBrowse(ctx, client, c.String("type"), query, &out); err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(out)
				}
				printListing(out)
				return nil
			})
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Show or change the stored configuration",
		Commands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, _, err := loadRuntime(c)
					if err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(cfg)
					}
					printConfig(cfg)
					return nil
				},
			},
			{
				Name:      "set",
				Usage:     "Persist one key: transport, server, socket, timeout or log_level",
				ArgsUsage: "<key> <value>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return errors.New("usage: config set <key> <value>")
					}
					path, err := config.Path()
					if err != nil {
						return err
					}
					cfg, err := config.LoadFile(path)
					if err != nil {
						return err
					}
					if err := cfg.Set(c.Args().Get(0), c.Args().Get(1)); err != nil {
						return err
					}
					if err := config.SaveFile(path, cfg); err != nil {
						return err
					}
					fmt.Printf("saved %s\n", path)
					return nil
				},
			},
		},
	}
}

// reportStatus prints a workflow status and turns a recorded failure into
// a non-zero exit.
func reportStatus(c *cli.Command, status explorer.WorkflowStatus) error {
	if c.Bool("json") {
		if err := printJSON(status); err != nil {
			return err
		}
	} else {
		printStatus(status)
	}
	if status.Error != "" {
		return errors.New(status.Error)
	}
	return nil
}
