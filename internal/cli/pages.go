package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kittclouds/kittpages/pkg/docstore"
	"github.com/kittclouds/kittpages/pkg/markdown"
	"github.com/kittclouds/kittpages/pkg/slug"
	"github.com/kittclouds/kittpages/pkg/templates"
)

// =============================================================================
// tree
// =============================================================================

type treeEntry struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Icon     string `json:"icon,omitempty"`
	Depth    int    `json:"depth"`
	Favorite bool   `json:"favorite,omitempty"`
	Archived bool   `json:"archived,omitempty"`
	Children int    `json:"children"`
}

func newTreeCmd(a *app) *cobra.Command {
	var archived bool
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the page tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				var entries []treeEntry
				s.Walk(archived, func(d docstore.Document, depth int) {
					entries = append(entries, treeEntry{
						ID:       d.ID,
						Title:    d.DisplayTitle(),
						Icon:     d.Icon,
						Depth:    depth,
						Favorite: d.IsFavorite,
						Archived: d.IsArchived,
						Children: len(d.Children),
					})
				})
				out := cmd.OutOrStdout()
				if a.jsonOutput {
					if entries == nil {
						entries = []treeEntry{}
					}
					return a.printJSON(out, entries)
				}
				if len(entries) == 0 {
					fmt.Fprintln(out, muted.Render("No pages yet. Create one with 'kittpages new'."))
					return nil
				}
				for _, e := range entries {
					icon := e.Icon
					if icon == "" {
						icon = "•"
					}
					line := strings.Repeat("  ", e.Depth) + icon + " " + bold.Render(e.Title)
					if e.Favorite {
						line += " " + accent.Render("★")
					}
					if e.Archived {
						line += " " + muted.Render("(archived)")
					}
					fmt.Fprintln(out, line+"  "+muted.Render(e.ID))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "Include archived pages")
	return cmd
}

// =============================================================================
// new
// =============================================================================

func newNewCmd(a *app) *cobra.Command {
	var parent, template, title, icon string
	cmd := &cobra.Command{
		Use:   "new",
		Short: "Create a page",
		Long: `Creates a page at the root or under --parent, optionally seeded from a
template (see 'kittpages templates'). Prints the new page id.

Examples:
  kittpages new --title "Inbox"
  kittpages new --template meeting-notes --parent <id>`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				parentID, err := s.resolveParent(parent)
				if err != nil {
					return err
				}
				var (
					id string
					ok bool
				)
				if template != "" {
					id, ok = s.CreateFromTemplate(template, parentID)
					if !ok {
						return fmt.Errorf("template %q not found", template)
					}
				} else if id, ok = s.Create(parentID); !ok {
					return fmt.Errorf("page %q not found", parent)
				}

				var f docstore.Fields
				if title != "" {
					f.Title = &title
				}
				if icon != "" {
					f.Icon = &icon
				}
				s.Update(id, f)

				d, _ := s.Document(id)
				return a.printDocument(cmd, d)
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Parent page id or slug")
	cmd.Flags().StringVar(&template, "template", "", "Template id")
	cmd.Flags().StringVar(&title, "title", "", "Page title")
	cmd.Flags().StringVar(&icon, "icon", "", "Page icon")
	return cmd
}

func (s *session) resolveParent(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	d, err := s.lookup(ref)
	if err != nil {
		return "", err
	}
	return d.ID, nil
}

func (a *app) printDocument(cmd *cobra.Command, d docstore.Document) error {
	if a.jsonOutput {
		return a.printJSON(cmd.OutOrStdout(), d)
	}
	fmt.Fprintln(cmd.OutOrStdout(), d.ID)
	return nil
}

// =============================================================================
// show / export / import
// =============================================================================

// pageMarkdown renders a page with page links pointing at their slugs.
func (s *session) pageMarkdown(d docstore.Document) string {
	link := func(id string) (string, string, bool) {
		target, ok := s.Document(id)
		if !ok {
			return "", "", false
		}
		return target.DisplayTitle(), slug.Path(target.Title, target.ID), true
	}
	return markdown.Export(d.Title, d.Content, link)
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|slug>",
		Short: "Print a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				d, err := s.lookup(args[0])
				if err != nil {
					return err
				}
				if a.jsonOutput {
					return a.printJSON(cmd.OutOrStdout(), d)
				}

				out := cmd.OutOrStdout()
				var crumbs []string
				for _, p := range s.Path(d.ID) {
					crumbs = append(crumbs, p.DisplayTitle())
				}
				fmt.Fprintln(out, muted.Render(strings.Join(crumbs, " / ")))
				fmt.Fprint(out, renderMarkdown(out, s.pageMarkdown(d)))

				if refs := s.Backlinks(d.ID); len(refs) > 0 {
					titles := make([]string, len(refs))
					for i, r := range refs {
						titles[i] = r.DisplayTitle()
					}
					fmt.Fprintln(out, muted.Render("Linked from: "+strings.Join(titles, ", ")))
				}
				return nil
			})
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <id|slug>",
		Short: "Export a page as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				d, err := s.lookup(args[0])
				if err != nil {
					return err
				}
				md := s.pageMarkdown(d)
				if output == "" || output == "-" {
					_, err := fmt.Fprint(cmd.OutOrStdout(), md)
					return err
				}
				if err := os.WriteFile(output, []byte(md), 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", output, err)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	var parent, title string
	cmd := &cobra.Command{
		Use:   "import <file.md>",
		Short: "Create a page from a Markdown file",
		Long: `Creates a page from Markdown. A leading level-one heading becomes the
title, falling back to the file name. Prints the new page id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			page := markdown.Import(data, uuid.NewString)
			if title != "" {
				page.Title = title
			}
			if page.Title == "" {
				page.Title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}

			return a.withStore(cmd, func(s *session) error {
				parentID, err := s.resolveParent(parent)
				if err != nil {
					return err
				}
				id, ok := s.CreatePage(parentID, page.Title, page.Blocks)
				if !ok {
					return fmt.Errorf("page %q not found", parent)
				}
				d, _ := s.Document(id)
				return a.printDocument(cmd, d)
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "Parent page id or slug")
	cmd.Flags().StringVar(&title, "title", "", "Page title (overrides the heading)")
	return cmd
}

// =============================================================================
// archive / unarchive / rm / mv / dup
// =============================================================================

// pageCmd builds a command that applies op to one page.
func pageCmd(a *app, use, short string, op func(s *session, d docstore.Document) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id|slug>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				d, err := s.lookup(args[0])
				if err != nil {
					return err
				}
				return op(s, d)
			})
		},
	}
}

func newArchiveCmd(a *app) *cobra.Command {
	return pageCmd(a, "archive", "Move a page to the trash", func(s *session, d docstore.Document) error {
		s.Archive(d.ID)
		return nil
	})
}

func newUnarchiveCmd(a *app) *cobra.Command {
	return pageCmd(a, "unarchive", "Restore a page from the trash", func(s *session, d docstore.Document) error {
		s.Restore(d.ID)
		return nil
	})
}

func newRemoveCmd(a *app) *cobra.Command {
	return pageCmd(a, "rm", "Permanently delete a page and its subpages", func(s *session, d docstore.Document) error {
		s.PermanentlyDelete(d.ID)
		return nil
	})
}

func newFavoriteCmd(a *app) *cobra.Command {
	return pageCmd(a, "favorite", "Toggle a page's favorite flag", func(s *session, d docstore.Document) error {
		s.ToggleFavorite(d.ID)
		return nil
	})
}

func newDuplicateCmd(a *app) *cobra.Command {
	var cmd *cobra.Command
	cmd = pageCmd(a, "dup", "Copy a page and its subpages", func(s *session, d docstore.Document) error {
		id, err := s.Duplicate(cmd.Context(), d.ID)
		if err != nil {
			return err
		}
		copied, _ := s.Document(id)
		return a.printDocument(cmd, copied)
	})
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var (
		parent string
		index  int
	)
	cmd := &cobra.Command{
		Use:   "mv <id|slug>",
		Short: "Move a page under another page or to the root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd, func(s *session) error {
				d, err := s.lookup(args[0])
				if err != nil {
					return err
				}
				parentID, err := s.resolveParent(parent)
				if err != nil {
					return err
				}
				at := index
				if at < 0 {
					if parentID == "" {
						at = len(s.RootIDs())
					} else {
						at = len(s.Children(parentID))
					}
				}
				if !s.Move(d.ID, parentID, at) && parentID != d.ParentID {
					return fmt.Errorf("cannot move %q into its own subpage", d.DisplayTitle())
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "New parent id or slug (default root)")
	cmd.Flags().IntVar(&index, "index", -1, "Position among the new siblings (default last)")
	return cmd
}

// =============================================================================
// publish / link / templates
// =============================================================================

func (a *app) previewURL(d docstore.Document) string {
	return strings.TrimRight(a.cfg.Server.BaseURL, "/") + slug.PreviewPath(d.Title, d.ID)
}

func newPublishCmd(a *app) *cobra.Command {
	var cmd *cobra.Command
	cmd = pageCmd(a, "publish", "Toggle a page's published flag", func(s *session, d docstore.Document) error {
		s.TogglePublished(d.ID)
		if !d.IsPublished {
			fmt.Fprintln(cmd.OutOrStdout(), a.previewURL(d))
		}
		return nil
	})
	return cmd
}

func newLinkCmd(a *app) *cobra.Command {
	var cmd *cobra.Command
	cmd = pageCmd(a, "link", "Print a page's address", func(s *session, d docstore.Document) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, slug.Path(d.Title, d.ID))
		if d.IsPublished {
			fmt.Fprintln(out, a.previewURL(d))
		}
		return nil
	})
	return cmd
}

func newTemplatesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List page templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			list := templates.Default().List()
			if a.jsonOutput {
				type entry struct {
					ID          string `json:"id"`
					Name        string `json:"name"`
					Description string `json:"description,omitempty"`
					Blocks      int    `json:"blocks"`
				}
				entries := make([]entry, len(list))
				for i, t := range list {
					entries[i] = entry{t.ID, t.Name, t.Description, t.Len()}
				}
				return a.printJSON(out, entries)
			}
			for _, t := range list {
				fmt.Fprintf(out, "%s %s  %s\n", t.Icon, accent.Render(t.ID), muted.Render(t.Description))
			}
			return nil
		},
	}
}
