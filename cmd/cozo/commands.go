package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/greydoubt/cozo/internal/catalog"
	"github.com/greydoubt/cozo/internal/engine"
	"github.com/greydoubt/cozo/internal/eval"
	"github.com/greydoubt/cozo/internal/plan"
	"github.com/greydoubt/cozo/internal/server"
	"github.com/greydoubt/cozo/internal/syntax"
	"github.com/greydoubt/cozo/internal/value"
)

// readInput reads a file argument, "-" meaning stdin.
func readInput(name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(name)
}

// decodeDefinitions accepts a single syntax tree or an array of them.
func decodeDefinitions(data []byte) ([]*syntax.Node, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var nodes []*syntax.Node
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("failed to decode syntax trees: %w", err)
		}
		return nodes, nil
	}
	n, err := syntax.Decode(data)
	if err != nil {
		return nil, err
	}
	return []*syntax.Node{n}, nil
}

func defineCommand() *cli.Command {
	return &cli.Command{
		Name:      "define",
		Usage:     "run definition syntax trees and commit them",
		ArgsUsage: "FILE... (JSON, - for stdin)",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return cli.Exit("define needs at least one file", 2)
			}
			return withSession(c, true, func(s *engine.Session) error {
				for _, name := range c.Args().Slice() {
					data, err := readInput(name)
					if err != nil {
						return err
					}
					defs, err := decodeDefinitions(data)
					if err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					for _, d := range defs {
						if err := s.RunDefinition(d); err != nil {
							return fmt.Errorf("%s: %w", name, err)
						}
					}
					fmt.Fprintf(c.App.Writer, "%s: %d definitions\n", name, len(defs))
				}
				return nil
			})
		},
	}
}

func dropCommand() *cli.Command {
	return &cli.Command{
		Name:      "drop",
		Usage:     "delete a root definition together with its table data",
		ArgsUsage: "NAME",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("drop needs exactly one name", 2)
			}
			return withSession(c, true, func(s *engine.Session) error {
				return s.Delete(c.Args().First(), true)
			})
		},
	}
}

func resolveCommand() *cli.Command {
	return &cli.Command{
		Name:      "resolve",
		Usage:     "show what a name resolves to",
		ArgsUsage: "NAME",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("resolve needs exactly one name", 2)
			}
			name := c.Args().First()
			return withSession(c, false, func(s *engine.Session) error {
				payload, ok, err := s.Resolve(name)
				if err != nil {
					return err
				}
				if !ok {
					return cli.Exit(fmt.Sprintf("%s is not defined", name), 1)
				}
				kind, err := catalog.DataKindOf(payload)
				if err != nil {
					return err
				}
				w := c.App.Writer
				fmt.Fprintf(w, "%s: %s %s\n", name, kind, payload)
				if !kind.IsTable() {
					return nil
				}
				info, _, err := s.ResolveTable(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  table %s key %s value %s\n", info.Ref, info.KeyTyping.String(), info.ValTyping.String())
				for _, a := range info.Associates {
					fmt.Fprintf(w, "  assoc %s (%s) value %s\n", a.Name, a.Ref, a.ValTyping.String())
				}
				return nil
			})
		},
	}
}

// parseParams reads --param name=JSON pairs. Names get the sigil if missing.
func parseParams(raw []string) (eval.Params, error) {
	params := eval.Params{}
	for _, p := range raw {
		name, expr, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q is not name=value", p)
		}
		if !strings.HasPrefix(name, "$") {
			name = "$" + name
		}
		v, err := value.FromJSON([]byte(expr))
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", name, err)
		}
		params[name] = v
	}
	return params, nil
}

func evalCommand() *cli.Command {
	return &cli.Command{
		Name:      "eval",
		Usage:     "partially evaluate an expression against the catalog",
		ArgsUsage: "EXPR (JSON)",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "param", Aliases: []string{"p"}, Usage: "name=JSON parameter"},
			&cli.StringSliceFlag{Name: "bind", Aliases: []string{"b"}, Usage: "row binding kept residual"},
			&cli.BoolFlag{Name: "json", Usage: "print the result as JSON"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("eval needs exactly one expression", 2)
			}
			expr, err := value.FromJSON([]byte(c.Args().First()))
			if err != nil {
				return err
			}
			params, err := parseParams(c.StringSlice("param"))
			if err != nil {
				return err
			}
			bindings := eval.NewBindings(c.StringSlice("bind")...)

			return withSession(c, false, func(s *engine.Session) error {
				ground, out, err := s.Eval(expr, params, bindings)
				if err != nil {
					return err
				}
				return printValue(c, ground, out)
			})
		},
	}
}

func printValue(c *cli.Context, ground bool, v value.Value) error {
	state := "residual"
	if ground {
		state = "ground"
	}
	if !c.Bool("json") {
		fmt.Fprintf(c.App.Writer, "%s %s\n", state, value.Format(v))
		return nil
	}
	data, err := value.ToJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "{\"state\":%q,\"value\":%s}\n", state, data)
	return nil
}

// queryFile is the JSON form of a query.
type queryFile struct {
	From []struct {
		Table   string `json:"table"`
		Binding string `json:"binding"`
	} `json:"from"`
	Where  json.RawMessage `json:"where"`
	Select []struct {
		Name string          `json:"name"`
		Expr json.RawMessage `json:"expr"`
	} `json:"select"`
	Params map[string]json.RawMessage `json:"params"`
}

func decodeQuery(data []byte) (plan.Query, error) {
	var qf queryFile
	if err := json.Unmarshal(data, &qf); err != nil {
		return plan.Query{}, fmt.Errorf("failed to decode query: %w", err)
	}
	var q plan.Query
	for _, f := range qf.From {
		q.From = append(q.From, plan.FromEl{Table: f.Table, Binding: f.Binding})
	}
	if len(qf.Where) > 0 {
		w, err := value.FromJSON(qf.Where)
		if err != nil {
			return plan.Query{}, fmt.Errorf("where: %w", err)
		}
		q.Where = w
	}
	for _, sel := range qf.Select {
		e, err := value.FromJSON(sel.Expr)
		if err != nil {
			return plan.Query{}, fmt.Errorf("select %s: %w", sel.Name, err)
		}
		q.Select.Fields = append(q.Select.Fields, plan.SelectField{Name: sel.Name, Expr: e})
	}
	if len(qf.Params) > 0 {
		q.Params = eval.Params{}
		for name, raw := range qf.Params {
			v, err := value.FromJSON(raw)
			if err != nil {
				return plan.Query{}, fmt.Errorf("param %s: %w", name, err)
			}
			q.Params[name] = v
		}
	}
	return q, nil
}

func planCommand() *cli.Command {
	return &cli.Command{
		Name:      "plan",
		Usage:     "build the logical plan of a query",
		ArgsUsage: "FILE (JSON query, - for stdin)",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("plan needs exactly one query file", 2)
			}
			data, err := readInput(c.Args().First())
			if err != nil {
				return err
			}
			q, err := decodeQuery(data)
			if err != nil {
				return err
			}
			return withSession(c, false, func(s *engine.Session) error {
				p, err := s.Plan(q)
				if err != nil {
					return err
				}
				fmt.Fprint(c.App.Writer, plan.Format(p))
				return nil
			})
		},
	}
}

func dumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "list every catalog and row entry of the root store",
		Action: func(c *cli.Context) error {
			return withSession(c, false, func(s *engine.Session) error {
				entries, err := s.Dump(true)
				if err != nil {
					return err
				}
				for _, e := range entries {
					fmt.Fprintf(c.App.Writer, "%s => %s\n", e.Key, e.Value)
				}
				return nil
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "open the database and serve metrics until interrupted",
		Action: func(c *cli.Context) error {
			rt, err := openRuntime(c)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !rt.cfg.Metrics.Enabled {
				rt.logger.Warn("Metrics are disabled, serving health endpoints only")
			}
			dataDir := rt.cfg.Storage.DataDir
			if rt.cfg.Storage.Backend == "memory" {
				dataDir = ""
			}
			ms := server.NewMetricsServer(&server.MetricsServerConfig{
				Port:           rt.cfg.Metrics.Port,
				Path:           rt.cfg.Metrics.Path,
				DataDir:        dataDir,
				ActiveSessions: rt.engine.ActiveSessions,
			}, rt.metrics, rt.logger)
			if err := ms.Start(); err != nil {
				return err
			}

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			rt.logger.Info("Shutting down gracefully...")
			if err := ms.Stop(); err != nil {
				rt.logger.Error("Failed to stop metrics server", zap.Error(err))
			}
			return nil
		},
	}
}
