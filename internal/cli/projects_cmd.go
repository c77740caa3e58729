// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// projects_cmd.go - projects and captures commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/util"
)

// =============================================================================
// PROJECTS
// =============================================================================

// HandleProjects lists or creates projects.
//
//	mindstack projects [list]
//	mindstack projects create NAME [--description TEXT]
func HandleProjects(e *env, args Args) error {
	ctx, cancel := e.context()
	defer cancel()

	switch args.Subcommand {
	case "list", "ls":
		projects, meta, err := e.api.ListProjects(ctx)
		if err != nil {
			return err
		}
		if e.json || args.JSON {
			return writeJSON(e.out, projects)
		}
		staleNotice(e, meta)
		printProjects(e.out, projects, GetTerminalWidth())
		return nil

	case "create", "new":
		name := strings.TrimSpace(args.Query)
		if name == "" {
			return NewUsageError("a project name is required", "mindstack projects create NAME [--description TEXT]")
		}
		p, err := e.api.CreateProject(ctx, name, args.Flags.Flag("description"))
		if err != nil {
			return err
		}
		if e.json || args.JSON {
			return writeJSON(e.out, p)
		}
		fmt.Fprintf(e.out, "%s %s (%s)\n", RenderConditional(SuccessStyle, "Created"), p.Name, p.ID)
		return nil
	}
	return NewUsageError("unknown projects command "+args.Subcommand, "mindstack projects [list|create NAME]")
}

func printProjects(w io.Writer, projects []api.Project, width int) {
	if len(projects) == 0 {
		fmt.Fprintln(w, "No projects yet. Create one with `mindstack projects create NAME`.")
		return
	}
	nameWidth := max(min(width-50, 40), 16)
	for _, p := range projects {
		fmt.Fprintf(w, "%s  %s  %-12s  %s\n",
			p.ID,
			util.PadRight(p.Name, nameWidth),
			p.CreatedDate(),
			RenderConditional(DimStyle, util.TruncateWidth(util.FirstLine(p.Description), 40)))
	}
}

// =============================================================================
// CAPTURES
// =============================================================================

// HandleCaptures lists or deletes a project's captures.
//
//	mindstack captures PROJECT [list]
//	mindstack captures PROJECT delete ID [--yes]
func HandleCaptures(e *env, args Args) error {
	ctx, cancel := e.context()
	defer cancel()

	if args.Project == "" {
		return NewUsageError("a project is required", "mindstack captures PROJECT [list|delete ID]")
	}
	project, err := e.resolveProject(ctx, args.Project)
	if err != nil {
		return err
	}

	switch args.Subcommand {
	case "list", "ls":
		captures, meta, err := e.api.ListCaptures(ctx, project.ID)
		if err != nil {
			return err
		}
		if e.json || args.JSON {
			return writeJSON(e.out, captures)
		}
		staleNotice(e, meta)
		printCaptures(e.out, captures, GetTerminalWidth())
		return nil

	case "delete", "rm":
		id := args.Query
		if id == "" {
			return NewUsageError("a capture ID is required", "mindstack captures PROJECT delete ID")
		}
		if !args.Flags.BoolFlag("yes") && !args.Flags.BoolFlag("y") {
			if !e.prompter().Confirm("Delete capture " + id + "?") {
				fmt.Fprintln(e.out, "Cancelled.")
				return nil
			}
		}
		if err := e.api.DeleteCapture(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(e.out, "%s %s\n", RenderConditional(SuccessStyle, "Deleted"), id)
		return nil
	}
	return NewUsageError("unknown captures command "+args.Subcommand, "mindstack captures PROJECT [list|delete ID]")
}

func printCaptures(w io.Writer, captures []api.Capture, width int) {
	if len(captures) == 0 {
		fmt.Fprintln(w, "Nothing captured in this project yet.")
		return
	}
	textWidth := max(width-4, 20)
	for i, c := range captures {
		if i > 0 {
			fmt.Fprintln(w, RenderSeparator(min(textWidth, 70)))
		}
		title := c.Title()
		if title == "" {
			title = c.IDEFilePath
		}
		if title == "" {
			title = util.TruncateWidth(c.Preview(), textWidth-30)
		}
		fmt.Fprintf(w, "%s %s  %s\n", c.CaptureType.Icon(), RenderConditional(TitleStyle, c.CaptureType.Label()), RenderConditional(DimStyle, c.Timestamp()))
		fmt.Fprintf(w, "  %s\n", util.TruncateWidth(title, textWidth))
		if c.SourceURL != "" && c.SourceURL != title {
			fmt.Fprintf(w, "  %s\n", RenderConditional(DimStyle, c.SourceURL))
		}
		if n := len(c.Attachments); n > 0 {
			fmt.Fprintf(w, "  %s\n", RenderConditional(DimStyle, fmt.Sprintf("%d attachment(s)", n)))
		}
		fmt.Fprintf(w, "  %s\n", RenderConditional(DimStyle, "id "+c.ID))
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func staleNotice(e *env, meta api.Meta) {
	if !meta.Stale {
		return
	}
	when := "unknown time"
	if !meta.CachedAt.IsZero() {
		when = meta.CachedAt.Local().Format("Jan 2 15:04")
	}
	fmt.Fprintln(e.errOut, RenderConditional(WarningStyle, "Showing cached data from "+when+"."))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
