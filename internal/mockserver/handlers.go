// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jeranaias/mindstack-tui/internal/api"
	"github.com/jeranaias/mindstack-tui/internal/model"
	"github.com/jeranaias/mindstack-tui/internal/sse"
)

// Queries containing these markers make the chat endpoint misbehave.
const (
	FailMarker     = "#fail"
	TruncateMarker = "#truncate"
)

// ============================================================================
// PROJECTS AND CAPTURES
// ============================================================================

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"projects": s.store.listProjects(userID(r))})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "Project name is required")
		return
	}

	p := s.store.addProject(userID(r), api.Project{
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   s.opts.Now().UTC(),
	})
	writeJSON(w, http.StatusCreated, map[string]any{"project": p})
}

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	captures, err := s.store.listCaptures(userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": captures})
}

func (s *Server) handleDeleteCapture(w http.ResponseWriter, r *http.Request) {
	if err := s.store.deleteCapture(userID(r), chi.URLParam(r, "captureID")); err != nil {
		writeError(w, http.StatusNotFound, "Capture not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ============================================================================
// CHAT
// ============================================================================

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.CurrentQuery) == "" {
		writeError(w, http.StatusBadRequest, "current_query is required")
		return
	}
	p, ok := s.store.project(userID(r), req.ProjectID)
	if !ok {
		writeError(w, http.StatusNotFound, "Project not found")
		return
	}
	captures, _ := s.store.listCaptures(userID(r), p.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	matches := relevant(captures, req.CurrentQuery)
	sources := make([]string, 0, len(matches))
	for _, c := range matches {
		if c.SourceURL != "" {
			sources = append(sources, c.SourceURL)
		}
		for _, a := range c.ImageAttachments() {
			sources = append(sources, a.S3URL)
		}
	}
	if err := sse.WriteEvent(w, model.EventSources, sources); err != nil {
		return
	}

	ctx := r.Context()
	for i, word := range strings.SplitAfter(answer(p, matches, len(req.Messages)), " ") {
		if s.opts.ChunkDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.opts.ChunkDelay):
			}
		}
		if err := sse.WriteEvent(w, model.EventDelta, word); err != nil {
			return
		}
		if i == 3 {
			switch {
			case strings.Contains(req.CurrentQuery, FailMarker):
				_ = sse.WriteEvent(w, model.EventError, "The model provider returned an error")
				return
			case strings.Contains(req.CurrentQuery, TruncateMarker):
				return
			}
		}
	}
	_ = sse.WriteEvent(w, model.EventDone, nil)
}

// relevant returns the captures sharing a word with the query, or the
// newest three when none do.
func relevant(captures []api.Capture, query string) []api.Capture {
	words := strings.Fields(strings.ToLower(query))
	var out []api.Capture
	for _, c := range captures {
		text := strings.ToLower(c.PageTitle + " " + c.TextContent + " " + c.IDEFilePath)
		for _, w := range words {
			w = strings.Trim(w, "?!.,;:\"'")
			if len(w) >= 3 && strings.Contains(text, w) {
				out = append(out, c)
				break
			}
		}
	}
	if len(out) == 0 && len(captures) > 0 {
		out = captures[:min(3, len(captures))]
	}
	return out
}

func answer(p api.Project, matches []api.Capture, history int) string {
	var b strings.Builder
	if len(matches) == 0 {
		fmt.Fprintf(&b, "Nothing has been saved to **%s** yet, so I have no context to answer from.", p.Name)
		return b.String()
	}
	fmt.Fprintf(&b, "Here is what your saved items in **%s** say:\n\n", p.Name)
	for _, c := range matches {
		title := c.Title()
		if title == "" {
			title = c.CaptureType.Label()
		}
		fmt.Fprintf(&b, "- %s %s: %s\n", c.CaptureType.Icon(), title, firstSentence(c.TextContent))
	}
	if history > 1 {
		fmt.Fprintf(&b, "\n(%d earlier messages considered.)", history-1)
	}
	return b.String()
}

func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}
