// Package report renders a finished job as a self-contained HTML document:
// a markdown summary converted with goldmark, with every screenshot embedded
// as a downscaled thumbnail.
package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"image/color"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/job"
)

// Options configures report rendering
type Options struct {
	Dir          string // where reports are written
	ArtifactsDir string // where screenshot artifacts live
	MaxWidth     uint   // thumbnail width bound
}

// Renderer writes job reports.
type Renderer struct {
	opts Options
	md   goldmark.Markdown
	log  *zap.Logger
}

// New returns a Renderer.
func New(opts Options, log *zap.Logger) *Renderer {
	if opts.Dir == "" {
		opts.Dir = "reports"
	}
	if opts.ArtifactsDir == "" {
		opts.ArtifactsDir = "artifacts"
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 700
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		opts: opts,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithXHTML()),
		),
		log: log.Named("report"),
	}
}

// Filename returns the report file name for a job.
func Filename(jobID string) string {
	return jobID + "_report.html"
}

// Render writes the report for snap and returns its reference,
// "/reports/<file>".
func (r *Renderer) Render(ctx context.Context, snap job.Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var body bytes.Buffer
	if err := r.md.Convert([]byte(r.Markdown(snap)), &body); err != nil {
		return "", fmt.Errorf("failed to convert report markdown: %w", err)
	}

	if err := os.MkdirAll(r.opts.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}
	name := Filename(snap.JobID)
	if err := os.WriteFile(filepath.Join(r.opts.Dir, name), []byte(wrapPage(snap, body.String())), 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return "/reports/" + name, nil
}

// Markdown builds the report source.
func (r *Renderer) Markdown(snap job.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Form Test — %s\n\n", snap.State)

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| **URL** | %s |\n", cell(snap.URL))
	fmt.Fprintf(&b, "| **Job** | %s |\n", cell(snap.JobID))
	fmt.Fprintf(&b, "| **Time** | %s |\n", snap.CompletedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "| **Elapsed** | %.2fs |\n\n", snap.ElapsedSeconds)

	var steps bytes.Buffer
	enc := json.NewEncoder(&steps)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap.Steps); err != nil {
		steps.WriteString(err.Error())
	}
	fmt.Fprintf(&b, "## Steps\n\n```json\n%s```\n\n", steps.String())

	if len(snap.Artifacts) > 0 {
		b.WriteString("## Artifacts\n\n")
	}
	for _, ref := range snap.Artifacts {
		fmt.Fprintf(&b, "### [%s](%s)\n\n", path.Base(ref), ref)
		if !strings.EqualFold(path.Ext(ref), ".png") {
			continue
		}
		thumb, err := Thumbnail(filepath.Join(r.opts.ArtifactsDir, path.Base(ref)), r.opts.MaxWidth, outcomeColor(snap.State))
		if err != nil {
			r.log.Debug("Thumbnail unavailable", zap.String("artifact", ref), zap.Error(err))
			fmt.Fprintf(&b, "_screenshot unavailable: %s_\n\n", cell(err.Error()))
			continue
		}
		fmt.Fprintf(&b, "![%s](data:image/png;base64,%s)\n\n", path.Base(ref), base64.StdEncoding.EncodeToString(thumb))
	}
	return b.String()
}

var (
	passColor = color.RGBA{22, 163, 74, 255}
	failColor = color.RGBA{220, 38, 38, 255}
)

func outcomeColor(s job.State) color.Color {
	if s == job.StatePass {
		return passColor
	}
	return failColor
}

// cell escapes text for a markdown table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

const pageStyle = `body{font-family:Arial,sans-serif;padding:18px;background:#f8fafc}
table,pre{background:#fff;border:1px solid #ddd;border-radius:6px;padding:10px}
pre{overflow-x:auto}
img{border:1px solid #ccc}`

func wrapPage(snap job.Snapshot, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>Form Report %s</title>
<style>%s</style>
</head><body>
%s
</body></html>
`, html.EscapeString(snap.JobID), pageStyle, body)
}
