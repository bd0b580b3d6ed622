package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"

	"github.com/idilsaglam/posts/internal/model"
	"github.com/idilsaglam/posts/internal/optimistic"
	"github.com/idilsaglam/posts/internal/tui"
	"github.com/idilsaglam/posts/internal/ui"
)

func (a *app) lsCmd() *cobra.Command {
	var plain, group bool
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "Browse posts (interactive unless --plain)",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, closer, err := a.fileLogger()
			if err != nil {
				return err
			}
			defer closer.Close()
			c, err := a.client(log)
			if err != nil {
				return err
			}

			if !plain {
				faults := optimistic.FaultReporterFunc(func(err error) {
					log.Error("change failed", "error", err)
				})
				return tui.Run(cmd.Context(), c, tui.Options{Faults: faults, Logger: log})
			}

			posts, err := c.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			ui.Panel(listLines(posts, group))
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "print the list and exit")
	cmd.Flags().BoolVar(&group, "group", false, "with --plain, group by unread/read")
	return cmd
}

func (a *app) addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <title...>",
		Short: "Add a post (title can be multiple words)",
		Args:  usageArgs(cobra.MinimumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return usageErrorf("add: empty title")
			}
			var created *model.Post
			err := a.mutate(cmd.Context(), func(ctx context.Context, ctrl *optimistic.Controller) (*optimistic.Mutation, error) {
				m := ctrl.Create(model.Draft{Title: title})
				created = m.Post
				return m, nil
			})
			if err != nil {
				return err
			}
			if created.Persisted() {
				ui.OK(fmt.Sprintf("added #%d", created.ID))
			}
			return nil
		},
	}
}

func (a *app) markCmd(name string, read bool) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <id>",
		Short: "Mark a post as " + name,
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			err = a.mutate(cmd.Context(), func(ctx context.Context, ctrl *optimistic.Controller) (*optimistic.Mutation, error) {
				p, err := lookup(ctx, ctrl, id)
				if err != nil {
					return nil, err
				}
				return ctrl.Update(p, model.MarkRead(read))
			})
			if err != nil {
				return err
			}
			ui.OK(fmt.Sprintf("marked #%d %s", id, name))
			return nil
		},
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a post",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var gone bool
			err = a.mutate(cmd.Context(), func(ctx context.Context, ctrl *optimistic.Controller) (*optimistic.Mutation, error) {
				p, err := lookup(ctx, ctrl, id)
				if err != nil {
					return nil, err
				}
				m, err := ctrl.Delete(p)
				gone = err == nil
				return m, err
			})
			if err != nil {
				return err
			}
			if gone {
				ui.OK(fmt.Sprintf("removed #%d", id))
			}
			return nil
		},
	}
}

// mutate runs one optimistic change to completion. Notices are printed as
// they arrive; a warning turns into exit status 1.
func (a *app) mutate(ctx context.Context, build func(context.Context, *optimistic.Controller) (*optimistic.Mutation, error)) error {
	log, closer, err := a.fileLogger()
	if err != nil {
		return err
	}
	defer closer.Close()
	c, err := a.client(log)
	if err != nil {
		return err
	}

	var notices printer
	ctrl := optimistic.New(c, optimistic.WithNotifier(&notices), optimistic.WithLogger(log))
	m, err := build(ctx, ctrl)
	if err != nil {
		return err
	}
	if err := ctrl.Do(ctx, m); err != nil {
		return err
	}
	if notices.warned {
		return &exitError{code: 1}
	}
	if notices.shown {
		return errShown
	}
	return nil
}

// errShown ends a command whose outcome was already reported by a notice.
var errShown = &exitError{code: 0}

// printer shows controller notices on the terminal.
type printer struct {
	shown  bool
	warned bool
}

func (p *printer) Notify(n optimistic.Notice) {
	p.shown = true
	if n.Level == optimistic.LevelInfo {
		ui.Info(n.String())
		return
	}
	p.warned = true
	ui.Warn(n.String())
}

func lookup(ctx context.Context, ctrl *optimistic.Controller, id model.ID) (*model.Post, error) {
	if err := ctrl.Load(ctx); err != nil {
		return nil, err
	}
	p := ctrl.Find(id)
	if p == nil {
		return nil, fmt.Errorf("post #%d not found (run `posts ls --plain` to see ids)", id)
	}
	return p, nil
}

func parseID(s string) (model.ID, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || n <= 0 {
		return 0, usageErrorf("not a post id: %s", s)
	}
	return model.ID(n), nil
}

// -------------- rendering helpers --------------

const maxTitleWidth = 80

func stats(posts []model.Post) (read, unread int) {
	for _, p := range posts {
		if p.IsRead {
			read++
		} else {
			unread++
		}
	}
	return
}

func listLines(posts []model.Post, group bool) []string {
	th := ui.Current()
	read, unread := stats(posts)
	header := fmt.Sprintf("%s  %s %d  %s %d  %s %d",
		th.Title.Render("Posts"),
		th.Success.Render(th.BoxRead), read,
		th.Pending.Render(th.BoxUnread), unread,
		th.Accent.Render("Total"), len(posts),
	)

	lines := []string{
		header,
		th.Muted.Render(ui.ProgressBar(read, read+unread, 28)),
		"",
	}
	if group {
		lines = append(lines, groupLines(posts)...)
	} else {
		lines = append(lines, flatLines(posts)...)
	}
	lines = append(lines, "", th.Muted.Render("Tip: add with `posts add \"Hello\"`"))
	return lines
}

func flatLines(posts []model.Post) []string {
	th := ui.Current()
	if len(posts) == 0 {
		return []string{th.Muted.Render("no posts")}
	}
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		box := th.Muted.Render(th.BoxUnread)
		if p.IsRead {
			box = th.Success.Render(th.BoxRead)
		}
		title := ansi.Truncate(p.Title, maxTitleWidth, "...")
		out = append(out, fmt.Sprintf("%s %s %s",
			th.Muted.Render(fmt.Sprintf("%4s", fmt.Sprintf("#%d", p.ID))), box, title))
	}
	return out
}

func groupLines(posts []model.Post) []string {
	var unread, read []model.Post
	for _, p := range posts {
		if p.IsRead {
			read = append(read, p)
		} else {
			unread = append(unread, p)
		}
	}
	th := ui.Current()
	section := func(name string, ps []model.Post) []string {
		lines := []string{th.Accent.Render(name)}
		if len(ps) == 0 {
			return append(lines, th.Muted.Render("(none)"))
		}
		return append(lines, flatLines(ps)...)
	}
	lines := section("Unread", unread)
	lines = append(lines, "")
	return append(lines, section("Read", read)...)
}
