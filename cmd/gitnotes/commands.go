package main

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/starford/gitnotes/internal"
	"github.com/starford/gitnotes/internal/apperr"
	"github.com/starford/gitnotes/internal/noteservice"
	"github.com/starford/gitnotes/internal/query"
)

type action func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error

// withService wraps fn so it receives the session's service.
func (s *session) withService(fn action) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		svc, err := s.service(cmd)
		if err != nil {
			return err
		}
		return fn(ctx, cmd, svc)
	}
}

// interactiveOnly rejects commands that need state kept between lines.
func (s *session) interactiveOnly(fn action) cli.ActionFunc {
	return s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
		if !s.interactive {
			return apperr.Validation("'%s' is only available in the shell", cmd.Name)
		}
		return fn(ctx, cmd, svc)
	})
}

// args checks the positional argument count.
func args(cmd *cli.Command, min, max int) ([]string, error) {
	list := cmd.Args().Slice()
	if len(list) < min || (max >= 0 && len(list) > max) {
		return nil, apperr.Validation("usage: %s %s", cmd.FullName(), cmd.ArgsUsage)
	}
	return list, nil
}

// stdinContent returns piped input when the configuration allows it.
func (s *session) stdinContent() (*string, error) {
	if s.interactive || !s.piped || !s.cfg.Editor.AllowStdin {
		return nil, nil
	}
	data, err := io.ReadAll(s.in)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	text := string(data)
	return &text, nil
}

func (s *session) printer() *query.Printer {
	return query.NewPrinter(s.out, s.color)
}

func (s *session) commands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "init",
			Usage: "Create the notes repository",
			Action: func(_ context.Context, cmd *cli.Command) error {
				cfg, err := s.config(cmd)
				if err != nil {
					return err
				}
				repo, err := internal.InitRepository(cfg)
				if err != nil {
					return err
				}
				fmt.Fprintf(s.out, "Initialized notes repository at %s\n", repo.Root())
				return nil
			},
		},
		{
			Name:      "add",
			Usage:     "Add a note, reading the content from stdin when piped",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "tag", Aliases: []string{"t"}, Usage: "Tag the note instead of suggesting tags"},
			},
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				content, err := s.stdinContent()
				if err != nil {
					return err
				}
				_, err = svc.Add(ctx, noteservice.AddRequest{Path: a[0], Tags: cmd.StringSlice("tag"), Content: content})
				return err
			}),
		},
		{
			Name:      "edit",
			Usage:     "Edit a note, reading the content from stdin when piped",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "history", Usage: "Start from the content at this revision"},
				&cli.BoolFlag{Name: "clear-tags", Usage: "Remove all tags"},
				&cli.StringSliceFlag{Name: "add-tag", Usage: "Add a tag"},
			},
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				content, err := s.stdinContent()
				if err != nil {
					return err
				}
				_, err = svc.Edit(ctx, noteservice.EditRequest{
					Path:      a[0],
					History:   cmd.String("history"),
					ClearTags: cmd.Bool("clear-tags"),
					AddTags:   cmd.StringSlice("add-tag"),
					Content:   content,
				})
				return err
			}),
		},
		{
			Name:      "mv",
			Usage:     "Move a note, a directory or the notes matching a glob",
			ArgsUsage: "<source> <destination>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Replace notes at the destination"},
			},
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 2, 2)
				if err != nil {
					return err
				}
				return svc.Move(ctx, a[0], a[1], cmd.Bool("force"))
			}),
		},
		{
			Name:      "rm",
			Usage:     "Remove a note, a directory or the notes matching a glob",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}, Usage: "Remove directories"},
			},
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				return svc.Remove(ctx, a[0], cmd.Bool("recursive"))
			}),
		},
		{
			Name:      "undo",
			Usage:     "Revert a commit",
			ArgsUsage: "<commit>",
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				return svc.Undo(ctx, a[0])
			}),
		},
		{
			Name:      "run",
			Usage:     "Run the code blocks of a note",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "save", Usage: "Write the output back into the note"},
			},
			Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				return svc.Run(ctx, a[0], cmd.Bool("save"))
			}),
		},
		{
			Name:  "begin",
			Usage: "Start a transaction; changes are committed together by 'commit'",
			Action: s.interactiveOnly(func(_ context.Context, _ *cli.Command, svc *noteservice.Service) error {
				return svc.Begin()
			}),
		},
		{
			Name:  "commit",
			Usage: "Commit the open transaction",
			Action: s.interactiveOnly(func(ctx context.Context, _ *cli.Command, svc *noteservice.Service) error {
				return svc.Commit(ctx)
			}),
		},
		{
			Name:      "cat",
			Usage:     "Print a note",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "history", Usage: "Print the content at this revision"},
				&cli.BoolFlag{Name: "code", Usage: "Only print code blocks"},
				&cli.BoolFlag{Name: "output", Usage: "Only print output blocks"},
			},
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				content, err := svc.Content(a[0], noteservice.ContentOptions{
					History:    cmd.String("history"),
					OnlyCode:   cmd.Bool("code"),
					OnlyOutput: cmd.Bool("output"),
				})
				if err != nil {
					return err
				}
				_, err = io.WriteString(s.out, content)
				return err
			}),
		},
		{
			Name:      "show",
			Usage:     "Render a note as formatted Markdown",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "history", Usage: "Render the content at this revision"},
			},
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				content, err := svc.Content(a[0], noteservice.ContentOptions{History: cmd.String("history")})
				if err != nil {
					return err
				}
				rendered, err := s.render(content)
				if err != nil {
					return err
				}
				_, err = io.WriteString(s.out, rendered)
				return err
			}),
		},
		{
			Name:      "ls",
			Usage:     "List a directory",
			ArgsUsage: "[dir]",
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 0, 1)
				if err != nil {
					return err
				}
				entries, err := svc.List(strings.Join(a, ""))
				if err != nil {
					return err
				}
				s.printer().Directory(entries)
				return nil
			}),
		},
		{
			Name:      "tree",
			Usage:     "Print the note tree",
			ArgsUsage: "[prefix]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "date", Usage: "Group by creation date"},
				&cli.BoolFlag{Name: "tags", Usage: "Group by first tag"},
			},
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 0, 1)
				if err != nil {
					return err
				}
				prefix := strings.Join(a, "")
				tree, err := svc.Tree(query.TreeOptions{Prefix: prefix, ByDate: cmd.Bool("date"), ByTags: cmd.Bool("tags")})
				if err != nil {
					return err
				}
				s.printer().Tree(tree, prefix)
				return nil
			}),
		},
		s.findCommand(),
		{
			Name:      "grep",
			Usage:     "Search note content with a regular expression",
			ArgsUsage: "<pattern>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "no-ignore-case", Usage: "Match case"},
				&cli.StringSliceFlag{Name: "history", Usage: "Search commits from this revision, until a second one when repeated"},
			},
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				matches, err := svc.Search(noteservice.SearchRequest{
					Pattern:       a[0],
					CaseSensitive: cmd.Bool("no-ignore-case"),
					History:       cmd.StringSlice("history"),
				})
				if err != nil {
					return err
				}
				s.printer().Matches(matches)
				return nil
			}),
		},
		{
			Name:  "resource",
			Usage: "Manage resources",
			Commands: []*cli.Command{
				{
					Name:      "add",
					Usage:     "Copy a file into the resources directory",
					ArgsUsage: "<file> <destination>",
					Action: s.withService(func(ctx context.Context, cmd *cli.Command, svc *noteservice.Service) error {
						a, err := args(cmd, 2, 2)
						if err != nil {
							return err
						}
						return svc.AddResource(ctx, a[0], a[1])
					}),
				},
				{
					Name:      "list",
					Usage:     "List resources",
					ArgsUsage: "[prefix]",
					Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
						a, err := args(cmd, 0, 1)
						if err != nil {
							return err
						}
						list, err := svc.Resources(strings.Join(a, ""))
						if err != nil {
							return err
						}
						s.printer().Resources(list)
						return nil
					}),
				},
			},
		},
		{
			Name:      "log",
			Usage:     "Show recent commits",
			ArgsUsage: "[count]",
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 0, 1)
				if err != nil {
					return err
				}
				count := -1
				if len(a) == 1 {
					if count, err = strconv.Atoi(a[0]); err != nil || count < 0 {
						return apperr.Validation("Invalid count '%s'", a[0])
					}
				}
				commits, err := svc.Log(count)
				if err != nil {
					return err
				}
				s.printer().Log(commits)
				return nil
			}),
		},
		{
			Name:      "info",
			Usage:     "Show a note's metadata",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "file-system", Usage: "Print the content file's location instead"},
			},
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				m, abs, err := svc.Info(a[0])
				if err != nil {
					return err
				}
				if cmd.Bool("file-system") {
					fmt.Fprintln(s.out, abs)
					return nil
				}
				fmt.Fprintln(s.out, m.InfoText())
				return nil
			}),
		},
		{
			Name:      "cd",
			Usage:     "Change the working directory",
			ArgsUsage: "<dir>",
			Action: s.interactiveOnly(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, 1)
				if err != nil {
					return err
				}
				return svc.ChangeDir(a[0])
			}),
		},
		{
			Name:  "pwd",
			Usage: "Print the working directory",
			Action: s.interactiveOnly(func(_ context.Context, _ *cli.Command, svc *noteservice.Service) error {
				fmt.Fprintln(s.out, "/"+svc.WorkingDir())
				return nil
			}),
		},
		{
			Name:  "config",
			Usage: "Print the effective configuration",
			Action: func(_ context.Context, cmd *cli.Command) error {
				cfg, err := s.config(cmd)
				if err != nil {
					return err
				}
				shown := *cfg
				if shown.Auth.Token != "" {
					shown.Auth.Token = "********"
				}
				return yaml.NewEncoder(s.out).Encode(shown)
			},
		},
		{
			Name:  "update-links",
			Usage: "Recreate the symbolic links for every note",
			Action: s.withService(func(ctx context.Context, _ *cli.Command, svc *noteservice.Service) error {
				return svc.UpdateLinks(ctx)
			}),
		},
		{
			Name:  "shell",
			Usage: "Start an interactive session",
			Action: s.withService(func(ctx context.Context, _ *cli.Command, _ *noteservice.Service) error {
				return s.shell(ctx)
			}),
		},
		{
			Name:  "serve",
			Usage: "Serve the HTTP API with live events",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				opts, err := s.options(cmd)
				if err != nil {
					return err
				}
				return internal.Serve(ctx, opts...)
			},
		},
		{
			Name:  "mcp",
			Usage: "Serve the MCP protocol on stdin/stdout",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				opts, err := s.options(cmd)
				if err != nil {
					return err
				}
				return internal.ServeMCP(ctx, opts...)
			},
		},
	}
}

func (s *session) render(content string) (string, error) {
	style := glamour.WithAutoStyle()
	if !s.color {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(100))
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(content)
}

func (s *session) findCommand() *cli.Command {
	find := func(name, argsUsage, usage string, build func(a []string) (query.FindQuery, error)) *cli.Command {
		return &cli.Command{
			Name:      name,
			Usage:     usage,
			ArgsUsage: argsUsage,
			Action: s.withService(func(_ context.Context, cmd *cli.Command, svc *noteservice.Service) error {
				a, err := args(cmd, 1, -1)
				if err != nil {
					return err
				}
				q, err := build(a)
				if err != nil {
					return err
				}
				list, err := svc.Find(q)
				if err != nil {
					return err
				}
				s.printer().Notes(list)
				return nil
			}),
		}
	}
	pattern := func(set func(*query.FindQuery, *regexp.Regexp)) func([]string) (query.FindQuery, error) {
		return func(a []string) (query.FindQuery, error) {
			var q query.FindQuery
			re, err := query.CompilePattern(strings.Join(a, " "), true)
			if err != nil {
				return q, err
			}
			set(&q, re)
			return q, nil
		}
	}

	return &cli.Command{
		Name:  "find",
		Usage: "Find notes by attribute",
		Commands: []*cli.Command{
			find("tag", "<tag>...", "Notes carrying all tags", func(a []string) (query.FindQuery, error) {
				return query.FindQuery{Tags: a}, nil
			}),
			find("name", "<regex>", "Notes whose path matches", pattern(func(q *query.FindQuery, re *regexp.Regexp) { q.Path = re })),
			find("id", "<regex>", "Notes whose id matches", pattern(func(q *query.FindQuery, re *regexp.Regexp) { q.ID = re })),
			find("created", "<year> [month] [day]...", "Notes created in a period", func(a []string) (query.FindQuery, error) {
				parts, err := dateParts(a)
				return query.FindQuery{Created: parts}, err
			}),
			find("updated", "<year> [month] [day]...", "Notes updated in a period", func(a []string) (query.FindQuery, error) {
				parts, err := dateParts(a)
				return query.FindQuery{Updated: parts}, err
			}),
		},
	}
}

func dateParts(a []string) ([]int, error) {
	if len(a) > 6 {
		return nil, apperr.Validation("At most 6 date parts: year month day hour minute second")
	}
	parts := make([]int, len(a))
	for i, v := range a {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, apperr.Validation("Invalid date part '%s'", v)
		}
		parts[i] = n
	}
	return parts, nil
}
