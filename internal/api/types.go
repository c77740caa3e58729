// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jeranaias/mindstack-tui/internal/model"
)

// =============================================================================
// PROJECT
// =============================================================================

// Project groups captures and scopes the assistant.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DateLayout is how project and capture dates are shown.
const DateLayout = "Jan 2, 2006"

// CreatedDate returns the creation date in DateLayout, local time.
func (p Project) CreatedDate() string {
	if p.CreatedAt.IsZero() {
		return ""
	}
	return p.CreatedAt.Local().Format(DateLayout)
}

// =============================================================================
// CAPTURE TYPE
// =============================================================================

// CaptureType is the kind of saved item.
type CaptureType string

const (
	CaptureWebText        CaptureType = "WEB_TEXT"
	CaptureUserNote       CaptureType = "USER_NOTE"
	CaptureIDEBugFix      CaptureType = "IDE_BUG_FIX"
	CaptureIDESnapshot    CaptureType = "IDE_PROGRESS_SNAPSHOT"
	CaptureVideoSegment   CaptureType = "VIDEO_SEGMENT"
	CaptureResourceUpload CaptureType = "RESOURCE_UPLOAD"
)

type captureStyle struct {
	label string
	icon  string
	color string
}

var captureStyles = map[CaptureType]captureStyle{
	CaptureWebText:        {"Web Page", "🌐", "#38BDF8"},
	CaptureUserNote:       {"Note", "📝", "#A78BFA"},
	CaptureIDEBugFix:      {"Bug Fix", "🐛", "#F43F5E"},
	CaptureIDESnapshot:    {"Code Snapshot", "📸", "#F59E0B"},
	CaptureVideoSegment:   {"Video", "🎬", "#10B981"},
	CaptureResourceUpload: {"File Upload", "📎", "#6366F1"},
}

// Label returns a human-readable name; unknown types show their raw value.
func (t CaptureType) Label() string {
	if s, ok := captureStyles[t]; ok {
		return s.label
	}
	return string(t)
}

// Icon returns the timeline icon.
func (t CaptureType) Icon() string {
	if s, ok := captureStyles[t]; ok {
		return s.icon
	}
	return "📌"
}

// Color returns the accent color as a hex string.
func (t CaptureType) Color() string {
	if s, ok := captureStyles[t]; ok {
		return s.color
	}
	return "#64748B"
}

// =============================================================================
// CAPTURE
// =============================================================================

// Attachment is a file stored alongside a capture.
type Attachment struct {
	ID       string `json:"id"`
	S3URL    string `json:"s3_url"`
	FileType string `json:"file_type"`
	FileName string `json:"file_name"`
}

// IsImage reports whether the attachment is shown as an image.
func (a Attachment) IsImage() bool {
	return a.FileType == "IMAGE" || a.FileType == "VIDEO_KEYFRAME"
}

// Capture is one saved item in a project's timeline.
type Capture struct {
	ID                string       `json:"id"`
	CaptureType       CaptureType  `json:"capture_type"`
	SourceURL         string       `json:"source_url,omitempty"`
	PageTitle         string       `json:"page_title,omitempty"`
	TextContent       string       `json:"text_content,omitempty"`
	IDECodeDiff       string       `json:"ide_code_diff,omitempty"`
	IDEErrorLog       string       `json:"ide_error_log,omitempty"`
	IDEFilePath       string       `json:"ide_file_path,omitempty"`
	AIMarkdownSummary string       `json:"ai_markdown_summary,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	Attachments       []Attachment `json:"capture_attachments"`
}

// previewLimit is how much text a collapsed card shows.
const previewLimit = 180

// Title returns the page title, falling back to the source URL.
func (c Capture) Title() string {
	if c.PageTitle != "" {
		return c.PageTitle
	}
	return c.SourceURL
}

// Preview returns the start of the text content for collapsed cards.
func (c Capture) Preview() string {
	text := strings.Join(strings.Fields(c.TextContent), " ")
	runes := []rune(text)
	if len(runes) > previewLimit {
		return string(runes[:previewLimit]) + "…"
	}
	return text
}

// ImageAttachments returns the attachments shown as images.
func (c Capture) ImageAttachments() []Attachment {
	var out []Attachment
	for _, a := range c.Attachments {
		if a.IsImage() {
			out = append(out, a)
		}
	}
	return out
}

// Timestamp returns the creation time for the timeline.
func (c Capture) Timestamp() string {
	if c.CreatedAt.IsZero() {
		return ""
	}
	return c.CreatedAt.Local().Format("Jan 2, 2006 3:04 PM")
}

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	ProjectID    string               `json:"project_id"`
	CurrentQuery string               `json:"current_query"`
	Messages     []model.HistoryEntry `json:"messages"`
}

var imageSource = regexp.MustCompile(`(?i)\.(png|jpg|jpeg|gif|webp)(\?|$)`)

// IsImageSource reports whether a chat source URL points at an image.
func IsImageSource(src string) bool {
	return imageSource.MatchString(src)
}

// SourceHost returns the host of a source URL for compact display, or the
// URL itself when it does not parse.
func SourceHost(src string) string {
	u, err := url.Parse(src)
	if err != nil || u.Host == "" {
		return src
	}
	return u.Hostname()
}
