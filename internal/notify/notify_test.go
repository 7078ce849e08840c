package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/formcheck/internal/job"
)

type captureSender struct {
	from string
	to   []string
	msg  []byte
	err  error
}

func (c *captureSender) Send(_ context.Context, from string, to []string, msg []byte) error {
	c.from, c.to, c.msg = from, to, msg
	return c.err
}

var configured = Config{
	Host:     "smtp.example.com",
	Port:     587,
	Username: "bot@example.com",
	Password: "secret",
	To:       "qa@example.com, ops@example.com,",
}

func snapshot() job.Snapshot {
	var steps []job.Step
	for i := range 12 {
		steps = append(steps, job.Step{Action: fmt.Sprintf("step%d", i), Status: job.StatusOK})
	}
	steps = append(steps, job.Step{Action: "fill", Field: "<email>", Status: job.StatusOK})
	return job.Snapshot{
		JobID:          "abc123",
		URL:            "https://a.example.com/contact",
		State:          job.StateFail,
		Steps:          steps,
		Artifacts:      []string{"/artifacts/abc123_nav.png", "/artifacts/abc123_gone.png", "/reports/abc123_form_debug.html"},
		ElapsedSeconds: 3.5,
	}
}

func TestConfig(t *testing.T) {
	assert.Equal(t, []string{"qa@example.com", "ops@example.com"}, configured.Recipients())
	assert.True(t, configured.Configured())

	for _, c := range []Config{
		{Username: "u", Password: "p", To: "a@b.test"},
		{Host: "h", Password: "p", To: "a@b.test"},
		{Host: "h", Username: "u", To: "a@b.test"},
		{Host: "h", Username: "u", Password: "p", To: " , "},
	} {
		assert.False(t, c.Configured())
	}
}

func TestNotifySkipsWhenUnconfigured(t *testing.T) {
	sender := &captureSender{}
	m := New(Config{Host: "smtp.example.com"}, Options{}, sender, nil)
	sent, err := m.Notify(context.Background(), snapshot(), "/reports/abc123_report.html")
	require.NoError(t, err)
	assert.False(t, sent)
	assert.Nil(t, sender.msg)
}

func TestNotifyComposesMessage(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123_nav.png"), []byte("\x89PNG fake"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "abc123_report.html"), []byte("<html></html>"), 0o644))

	sender := &captureSender{}
	m := New(configured, Options{ArtifactsDir: dir, ReportsDir: dir, BaseURL: "http://host:8000/"}, sender, nil)
	sent, err := m.Notify(context.Background(), snapshot(), "/reports/abc123_report.html")
	require.NoError(t, err)
	require.True(t, sent)

	assert.Equal(t, "bot@example.com", sender.from)
	assert.Equal(t, []string{"qa@example.com", "ops@example.com"}, sender.to)

	mr, err := mail.CreateReader(bytes.NewReader(sender.msg))
	require.NoError(t, err)
	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "[Form Tester] FAIL - https://a.example.com/contact", subject)

	var body string
	var attachments []string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch h := p.Header.(type) {
		case *mail.InlineHeader:
			b, err := io.ReadAll(p.Body)
			require.NoError(t, err)
			body = string(b)
		case *mail.AttachmentHeader:
			name, err := h.Filename()
			require.NoError(t, err)
			attachments = append(attachments, name)
		}
	}

	assert.Equal(t, []string{"abc123_nav.png", "abc123_report.html"}, attachments)
	assert.Contains(t, body, `<h2 style="color:red">FAIL</h2>`)
	assert.Contains(t, body, "3.50s")
	assert.Contains(t, body, `href="http://host:8000/reports/abc123_report.html"`)
	assert.Contains(t, body, "&lt;email&gt;")
	assert.NotContains(t, body, "<li>step2 ", "only the last ten steps are listed")
	assert.Contains(t, body, "<li>step3  ok</li>")
	assert.Equal(t, 10, strings.Count(body, "<li>"))
}

func TestNotifySendFailure(t *testing.T) {
	m := New(configured, Options{}, &captureSender{err: errors.New("connection refused")}, nil)
	sent, err := m.Notify(context.Background(), snapshot(), "")
	assert.False(t, sent)
	assert.ErrorContains(t, err, "connection refused")
}

func TestPassIsGreen(t *testing.T) {
	m := New(configured, Options{}, &captureSender{}, nil)
	snap := snapshot()
	snap.State = job.StatePass
	assert.Contains(t, m.body(snap, ""), `color:green`)
	assert.NotContains(t, m.body(snap, ""), "Open Report")
}
