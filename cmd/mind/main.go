package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mind/internal"
	"github.com/starford/mind/internal/apperr"
)

// version is set at build time.
var version = "dev"

func newApp(in io.Reader, out io.Writer) *cli.Command {
	c := &commands{in: in, out: out}
	return &cli.Command{
		Name:    "mind",
		Usage:   "Organize notes and tasks in a tree, per project or globally",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "$XDG_CONFIG_HOME/mind/config.yaml",
				Value:       internal.DefaultConfigFile(),
				Sources:     cli.EnvVars("MIND_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Directory to select the tree from (default: current directory)",
			},
			&cli.BoolFlag{Name: "local", Aliases: []string{"l"}, Usage: "Use the local tree of the directory"},
			&cli.BoolFlag{Name: "project", Aliases: []string{"p"}, Usage: "Use the registered project tree of the directory"},
			&cli.BoolFlag{Name: "global", Aliases: []string{"g"}, Usage: "Use the global tree"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Read node paths from stdin"},
			&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
		},
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "Create a tree (local unless --project or --global)",
				Action: c.run(c.init),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Root text"},
					&cli.StringFlag{Name: "icon", Usage: "Root icon"},
				},
			},
			{
				Name:   "trees",
				Usage:  "List the trees reachable from the directory",
				Action: c.run(c.trees),
			},
			{
				Name:      "ls",
				Usage:     "Show the tree or a subtree",
				ArgsUsage: "[path]",
				Action:    c.run(c.ls),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "ids", Usage: "Prefix nodes with their id"},
					&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Value: -1, Usage: "Levels to show, negative for all"},
				},
			},
			{
				Name:      "insert",
				Aliases:   []string{"ins"},
				Usage:     "Insert a node relative to an anchor",
				ArgsUsage: "<anchor> <text...>",
				Action:    c.run(c.insert),
				Flags: []cli.Flag{
					placementFlag("last"),
					&cli.StringFlag{Name: "icon", Usage: "Node icon"},
					&cli.StringFlag{Name: "uri", Usage: "Insert a url node with this link"},
					&cli.StringFlag{Name: "file", Usage: "Insert a data node for this file, relative to the tree"},
					&cli.BoolFlag{Name: "data", Usage: "Insert a data node with a new data file"},
					&cli.StringFlag{Name: "content-type", Usage: "Content type of the data file (md, org, txt)"},
				},
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a node and its subtree",
				ArgsUsage: "<path>",
				Action:    c.run(c.remove),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
				},
			},
			{
				Name:      "rename",
				Usage:     "Change the text of a node",
				ArgsUsage: "<path> <text...>",
				Action:    c.run(c.rename),
			},
			{
				Name:      "icon",
				Usage:     "Set or clear the icon of a node",
				ArgsUsage: "<path> [icon]",
				Action:    c.run(c.icon),
			},
			{
				Name:      "move",
				Aliases:   []string{"mv"},
				Usage:     "Move a node with its subtree",
				ArgsUsage: "<path> <dest>",
				Action:    c.run(c.move),
				Flags:     []cli.Flag{placementFlag("last")},
			},
			{
				Name:      "toggle",
				Usage:     "Expand or collapse a node",
				ArgsUsage: "<path>",
				Action:    c.run(c.toggle),
			},
			{
				Name:      "paths",
				Usage:     "List node paths in pre-order",
				ArgsUsage: "[path]",
				Action:    c.run(c.paths),
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "ids", Usage: "Prefix segments with node ids"},
					&cli.BoolFlag{Name: "file", Usage: "Only data nodes"},
					&cli.BoolFlag{Name: "uri", Usage: "Only url nodes"},
				},
			},
			{
				Name:      "get",
				Usage:     "Print the file or link of a node, creating a missing data file",
				ArgsUsage: "<path>",
				Action:    c.run(c.get),
			},
			{
				Name:      "set",
				Usage:     "Attach a file or link to a node, or clear it",
				ArgsUsage: "<path>",
				Action:    c.run(c.set),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "uri", Usage: "Link to attach"},
					&cli.StringFlag{Name: "file", Usage: "Data file to attach, relative to the tree"},
					&cli.StringFlag{Name: "content-type", Usage: "Content type of the data file"},
					&cli.BoolFlag{Name: "clear", Usage: "Remove the attachment"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve the HTTP API for the directory's tree",
				Action: c.serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: c.mcp,
			},
		},
	}
}

func placementFlag(def string) cli.Flag {
	return &cli.StringFlag{
		Name:  "placement",
		Usage: "before, after, first or last",
		Value: def,
	}
}

func main() {
	err := newApp(os.Stdin, os.Stdout).Run(context.Background(), os.Args)
	if errors.Is(err, apperr.ErrResolutionCancelled) {
		return
	}
	if err != nil {
		slog.Error("mind", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
