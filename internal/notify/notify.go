// Package notify emails a job's outcome with its screenshots and report
// attached.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/job"
)

// recentSteps is how many trailing steps the email body lists.
const recentSteps = 10

// Config holds SMTP settings.
type Config struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	To          string // comma-separated
	ImplicitTLS bool
}

// Recipients splits the To list.
func (c Config) Recipients() []string {
	var out []string
	for _, r := range strings.Split(c.To, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Configured reports whether enough is set to send mail.
func (c Config) Configured() bool {
	return c.Host != "" && c.Username != "" && c.Password != "" && len(c.Recipients()) > 0
}

// Options locates files referenced by a snapshot.
type Options struct {
	ArtifactsDir string
	ReportsDir   string
	BaseURL      string // prefix for the report link, e.g. http://host:8000
}

// Sender delivers a raw RFC 5322 message.
type Sender interface {
	Send(ctx context.Context, from string, to []string, msg []byte) error
}

// Mailer implements the executor's notification collaborator.
type Mailer struct {
	cfg    Config
	opts   Options
	sender Sender
	log    *zap.Logger
	now    func() time.Time
}

// New returns a Mailer. A nil sender delivers over SMTP using cfg.
func New(cfg Config, opts Options, sender Sender, log *zap.Logger) *Mailer {
	if sender == nil {
		sender = &SMTPSender{Config: cfg}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{cfg: cfg, opts: opts, sender: sender, log: log.Named("notify"), now: time.Now}
}

// Subject returns the mail subject for snap.
func Subject(snap job.Snapshot) string {
	return fmt.Sprintf("[Form Tester] %s - %s", snap.State, snap.URL)
}

// Notify mails the outcome. It reports sent=false with no error when SMTP is
// not configured.
func (m *Mailer) Notify(ctx context.Context, snap job.Snapshot, reportPath string) (bool, error) {
	if !m.cfg.Configured() {
		m.log.Debug("SMTP not configured, skipping notification", zap.String("job_id", snap.JobID))
		return false, nil
	}

	msg, err := m.Compose(snap, reportPath)
	if err != nil {
		return false, err
	}
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	if err := m.sender.Send(ctx, from, m.cfg.Recipients(), msg); err != nil {
		return false, fmt.Errorf("failed to send result email: %w", err)
	}
	m.log.Info("Result email sent", zap.String("job_id", snap.JobID), zap.Int("recipients", len(m.cfg.Recipients())))
	return true, nil
}

// Compose builds the MIME message: an HTML body followed by PNG artifacts
// and the report as attachments. Missing files are left out.
func (m *Mailer) Compose(snap job.Snapshot, reportPath string) ([]byte, error) {
	from := m.cfg.From
	if from == "" {
		from = m.cfg.Username
	}
	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return nil, fmt.Errorf("invalid from address %q: %w", from, err)
	}
	to, err := mail.ParseAddressList(strings.Join(m.cfg.Recipients(), ", "))
	if err != nil {
		return nil, fmt.Errorf("invalid recipients %q: %w", m.cfg.To, err)
	}

	var h mail.Header
	h.SetDate(m.now())
	h.SetAddressList("From", []*mail.Address{fromAddr})
	h.SetAddressList("To", to)
	h.SetSubject(Subject(snap))
	if err := h.GenerateMessageID(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	var th mail.InlineHeader
	th.SetContentType("text/html", map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, m.body(snap, reportPath)); err != nil {
		return nil, err
	}
	w.Close()
	tw.Close()

	for _, ref := range snap.Artifacts {
		if !strings.EqualFold(path.Ext(ref), ".png") {
			continue
		}
		if err := m.attach(mw, filepath.Join(m.opts.ArtifactsDir, path.Base(ref)), "image/png"); err != nil {
			m.log.Debug("Skipping attachment", zap.String("artifact", ref), zap.Error(err))
		}
	}
	if reportPath != "" {
		if err := m.attach(mw, filepath.Join(m.opts.ReportsDir, path.Base(reportPath)), "text/html"); err != nil {
			m.log.Debug("Skipping report attachment", zap.String("report", reportPath), zap.Error(err))
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Mailer) attach(mw *mail.Writer, file, contentType string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	var ah mail.AttachmentHeader
	ah.SetContentType(contentType, nil)
	ah.SetFilename(filepath.Base(file))
	w, err := mw.CreateAttachment(ah)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func (m *Mailer) body(snap job.Snapshot, reportPath string) string {
	color := "red"
	if snap.State == job.StatePass {
		color = "green"
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<h2 style="color:%s">%s</h2>`, color, html.EscapeString(string(snap.State)))
	fmt.Fprintf(&b, "<p><b>URL:</b> %s<br><b>Job ID:</b> %s<br><b>Elapsed:</b> %.2fs</p>",
		html.EscapeString(snap.URL), html.EscapeString(snap.JobID), snap.ElapsedSeconds)

	b.WriteString("<p><b>Steps:</b></p><ul>")
	steps := snap.Steps[max(len(snap.Steps)-recentSteps, 0):]
	for _, s := range steps {
		fmt.Fprintf(&b, "<li>%s %s %s</li>", html.EscapeString(s.Action), html.EscapeString(s.Field), html.EscapeString(s.Status))
	}
	b.WriteString("</ul>")

	if reportPath != "" {
		link := strings.TrimRight(m.opts.BaseURL, "/") + reportPath
		fmt.Fprintf(&b, `<p><a href="%s">Open Report</a></p>`, html.EscapeString(link))
	}
	return b.String()
}
