// Package crawler implements the page capability on headless Chromium via
// go-rod. One browser process is shared; every page lives in its own
// incognito context so sessions never share cookies or storage.
package crawler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/page"
)

// Options configures the crawler behavior
type Options struct {
	Width      int
	Height     int
	Headful    bool
	NoSandbox  bool
	Bin        string        // Chrome/Chromium binary; looked up when empty
	ProfileDir string        // Chrome/Chromium profile directory
	UserAgent  string
	SPAWait    time.Duration // how long to wait for script-rendered forms after load
}

// Browser lazily launches Chromium and hands out isolated pages.
type Browser struct {
	opts Options
	log  *zap.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// New returns a Browser. Chromium starts on the first NewPage call.
func New(opts Options, log *zap.Logger) *Browser {
	if opts.Width == 0 {
		opts.Width = 1280
	}
	if opts.Height == 0 {
		opts.Height = 900
	}
	if opts.SPAWait == 0 {
		opts.SPAWait = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Browser{opts: opts, log: log.Named("crawler")}
}

func (b *Browser) connect() (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser != nil {
		return b.browser, nil
	}

	path := b.opts.Bin
	if path == "" {
		path, _ = launcher.LookPath()
	}
	l := launcher.New().Headless(!b.opts.Headful).NoSandbox(b.opts.NoSandbox)
	if path != "" {
		l = l.Bin(path)
	}
	if b.opts.ProfileDir != "" {
		l = l.UserDataDir(b.opts.ProfileDir)
	}

	u, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	b.log.Info("Browser launched", zap.String("bin", path), zap.Bool("headful", b.opts.Headful))
	b.launcher, b.browser = l, browser
	return browser, nil
}

// NewPage implements page.Launcher.
func (b *Browser) NewPage(ctx context.Context) (page.Page, error) {
	browser, err := b.connect()
	if err != nil {
		return nil, err
	}
	incognito, err := browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	p, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.Width,
		Height:            b.opts.Height,
		DeviceScaleFactor: 1,
	})
	if err == nil && b.opts.UserAgent != "" {
		err = p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.opts.UserAgent})
	}
	if err != nil {
		p.Close()
		incognito.Close()
		return nil, fmt.Errorf("failed to configure page: %w", err)
	}

	return &Page{
		scope:     scope{page: p},
		incognito: incognito,
		spaWait:   b.opts.SPAWait,
		log:       b.log,
	}, nil
}

// Close cleans up browser resources
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	b.browser, b.launcher = nil, nil
	return err
}
