package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/mind/internal"
	"github.com/starford/mind/internal/apperr"
	"github.com/starford/mind/internal/tree"
	"github.com/starford/mind/internal/treeservice"
	pkgconfig "github.com/starford/mind/pkg/config"
)

type commands struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

// session is the state of one tree command.
type session struct {
	svc   *treeservice.Service
	scope treeservice.Scope
	cmd   *cli.Command
}

type action func(ctx context.Context, s *session) error

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func workDir(cmd *cli.Command) (string, error) {
	dir := cmd.String("dir")
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

func category(cmd *cli.Command) (tree.Category, error) {
	var picked []tree.Category
	if cmd.Bool("local") {
		picked = append(picked, tree.CategoryLocalProject)
	}
	if cmd.Bool("project") {
		picked = append(picked, tree.CategoryGlobalProject)
	}
	if cmd.Bool("global") {
		picked = append(picked, tree.CategoryGlobal)
	}
	switch len(picked) {
	case 0:
		return "", nil
	case 1:
		return picked[0], nil
	default:
		return "", fmt.Errorf("%w: --local, --project and --global are exclusive", apperr.ErrValidation)
	}
}

// run opens the tree stack for the duration of fn.
func (c *commands) run(fn action) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		dir, err := workDir(cmd)
		if err != nil {
			return err
		}
		cat, err := category(cmd)
		if err != nil {
			return err
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.App.LogLevel}))
		stack, err := internal.Open(cfg, logger)
		if err != nil {
			return err
		}
		defer stack.Close()

		return fn(ctx, &session{
			svc:   stack.Service,
			scope: treeservice.Scope{Cwd: dir, Category: cat},
			cmd:   cmd,
		})
	}
}

func (c *commands) line() (string, error) {
	if c.reader == nil {
		c.reader = bufio.NewReader(c.in)
	}
	s, err := c.reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// target returns the node path for argument i. With --interactive the path
// is read from stdin instead; blank input cancels the command.
func (c *commands) target(ctx context.Context, s *session, label string, i int) (string, error) {
	if !s.cmd.Bool("interactive") {
		if p := s.cmd.Args().Get(i); p != "" {
			return p, nil
		}
		return "", fmt.Errorf("%w: missing %s", apperr.ErrValidation, label)
	}
	fmt.Fprintf(c.out, "%s: ", label)
	input, err := c.line()
	if err != nil {
		return "", err
	}
	res, path, err := s.svc.Prompt(ctx, s.scope, input)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}
	return path, nil
}

// rest joins the arguments after the ones consumed as paths.
func rest(s *session, consumed int) string {
	if s.cmd.Bool("interactive") {
		consumed = 0
	}
	args := s.cmd.Args().Slice()
	if consumed >= len(args) {
		return ""
	}
	return strings.Join(args[consumed:], " ")
}

func (c *commands) print(s *session, v any, text func(w io.Writer) error) error {
	if s.cmd.Bool("json") {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(c.out)
}

func (c *commands) printNode(s *session, v *treeservice.NodeView) error {
	return c.print(s, v, func(w io.Writer) error {
		_, err := fmt.Fprintln(w, v.Path)
		return err
	})
}

func (c *commands) init(ctx context.Context, s *session) error {
	tv, err := s.svc.Init(ctx, s.scope, s.cmd.String("name"), s.cmd.String("icon"))
	if err != nil {
		return err
	}
	return c.print(s, tv, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "created %s tree %s\n", tv.Category, tv.Location)
		return err
	})
}

func (c *commands) trees(ctx context.Context, s *session) error {
	infos, err := s.svc.Trees(ctx, s.scope.Cwd)
	if err != nil {
		return err
	}
	return c.print(s, infos, func(w io.Writer) error {
		for _, t := range infos {
			mark := " "
			if t.Active {
				mark = "*"
			}
			state := ""
			if !t.Exists {
				state = " (missing)"
			}
			if _, err := fmt.Fprintf(w, "%s %-14s %s%s\n", mark, t.Category, t.Location, state); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *commands) ls(ctx context.Context, s *session) error {
	tv, err := s.svc.Tree(ctx, s.scope, s.cmd.Args().First(), int(s.cmd.Int("depth")))
	if err != nil {
		return err
	}
	return c.print(s, tv, func(w io.Writer) error {
		return treeservice.RenderText(w, tv.Root, treeservice.RenderOptions{WithIDs: s.cmd.Bool("ids")})
	})
}

func (c *commands) insert(ctx context.Context, s *session) error {
	anchor, err := c.target(ctx, s, "anchor", 0)
	if err != nil {
		return err
	}
	p, err := tree.ParsePlacement(s.cmd.String("placement"))
	if err != nil {
		return err
	}
	ct, err := optionalContentType(s.cmd.String("content-type"))
	if err != nil {
		return err
	}
	req := treeservice.InsertRequest{
		Anchor:      anchor,
		Placement:   p,
		Text:        rest(s, 1),
		Icon:        s.cmd.String("icon"),
		Kind:        tree.KindInternal,
		ContentType: ct,
	}
	switch {
	case s.cmd.String("uri") != "":
		req.Kind, req.Link = tree.KindURL, s.cmd.String("uri")
	case s.cmd.String("file") != "":
		req.Kind, req.File = tree.KindData, s.cmd.String("file")
	case s.cmd.Bool("data"):
		req.Kind = tree.KindData
	}

	out, err := s.svc.Insert(ctx, s.scope, req)
	if err != nil {
		return err
	}
	return c.print(s, out, func(w io.Writer) error {
		if out.File != "" {
			_, err := fmt.Fprintln(w, out.File)
			return err
		}
		_, err := fmt.Fprintln(w, out.Node.Path)
		return err
	})
}

func (c *commands) remove(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	if !s.cmd.Bool("yes") {
		fmt.Fprintf(c.out, "remove %s and its subtree? [y/N] ", path)
		answer, err := c.line()
		if err != nil {
			return err
		}
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			_, err := fmt.Fprintln(c.out, "aborted")
			return err
		}
	}
	n, err := s.svc.Remove(ctx, s.scope, path)
	if err != nil {
		return err
	}
	return c.print(s, map[string]int{"removed": n}, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "removed %d node(s)\n", n)
		return err
	})
}

func (c *commands) rename(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	v, err := s.svc.Rename(ctx, s.scope, path, rest(s, 1))
	if err != nil {
		return err
	}
	return c.printNode(s, v)
}

func (c *commands) icon(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	v, err := s.svc.SetIcon(ctx, s.scope, path, rest(s, 1))
	if err != nil {
		return err
	}
	return c.printNode(s, v)
}

func (c *commands) move(ctx context.Context, s *session) error {
	src, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	dest, err := c.target(ctx, s, "dest", 1)
	if err != nil {
		return err
	}
	p, err := tree.ParsePlacement(s.cmd.String("placement"))
	if err != nil {
		return err
	}
	v, err := s.svc.Move(ctx, s.scope, src, dest, p)
	if err != nil {
		return err
	}
	return c.printNode(s, v)
}

func (c *commands) toggle(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	v, err := s.svc.Toggle(ctx, s.scope, path)
	if err != nil {
		return err
	}
	return c.print(s, v, func(w io.Writer) error {
		state := "collapsed"
		if v.Expanded {
			state = "expanded"
		}
		_, err := fmt.Fprintf(w, "%s %s\n", v.Path, state)
		return err
	})
}

func (c *commands) paths(ctx context.Context, s *session) error {
	opts := tree.PathOptions{WithIDs: s.cmd.Bool("ids")}
	if s.cmd.Bool("file") {
		opts.Kinds = append(opts.Kinds, tree.KindData)
	}
	if s.cmd.Bool("uri") {
		opts.Kinds = append(opts.Kinds, tree.KindURL)
	}
	paths, err := s.svc.Paths(ctx, s.scope, s.cmd.Args().First(), opts)
	if err != nil {
		return err
	}
	return c.print(s, paths, func(w io.Writer) error {
		for _, p := range paths {
			if _, err := fmt.Fprintln(w, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *commands) get(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	o, err := s.svc.Open(ctx, s.scope, path)
	if err != nil {
		return err
	}
	return c.print(s, o, func(w io.Writer) error {
		target := o.Path
		if o.Link != "" {
			target = o.Link
		}
		_, err := fmt.Fprintln(w, target)
		return err
	})
}

func (c *commands) set(ctx context.Context, s *session) error {
	path, err := c.target(ctx, s, "path", 0)
	if err != nil {
		return err
	}
	ct, err := optionalContentType(s.cmd.String("content-type"))
	if err != nil {
		return err
	}
	var req treeservice.AttachmentRequest
	switch {
	case s.cmd.Bool("clear"):
		req.Kind = tree.KindInternal
	case s.cmd.String("uri") != "":
		req.Kind, req.Link = tree.KindURL, s.cmd.String("uri")
	case s.cmd.String("file") != "":
		req.Kind, req.File, req.ContentType = tree.KindData, s.cmd.String("file"), ct
	default:
		return fmt.Errorf("%w: one of --uri, --file or --clear is required", apperr.ErrValidation)
	}
	v, err := s.svc.SetAttachment(ctx, s.scope, path, req)
	if err != nil {
		return err
	}
	return c.printNode(s, v)
}

func optionalContentType(s string) (tree.ContentType, error) {
	if s == "" {
		return "", nil
	}
	return tree.ParseContentType(s)
}

func (c *commands) serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := workDir(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx,
		internal.WithConfig(cfg),
		internal.WithWorkDir(dir),
		internal.WithVersion(version),
	); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func (c *commands) mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, err := workDir(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithWorkDir(dir),
		internal.WithVersion(version),
	)
}
