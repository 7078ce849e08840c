package crawler

import (
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"

	"github.com/v0xg/formcheck/internal/page"
)

func TestLifecycleEvent(t *testing.T) {
	assert.Equal(t, proto.PageLifecycleEventNameNetworkIdle, lifecycleEvent(page.WaitNetworkIdle))
	assert.Equal(t, proto.PageLifecycleEventNameDOMContentLoaded, lifecycleEvent(page.WaitDOMContentLoaded))
}

func TestNewDefaults(t *testing.T) {
	b := New(Options{}, nil)
	assert.Equal(t, 1280, b.opts.Width)
	assert.Equal(t, 900, b.opts.Height)
	assert.Equal(t, 5*time.Second, b.opts.SPAWait)
	assert.NoError(t, b.Close(), "closing a browser that never launched")
}

func TestInaccessibleFrame(t *testing.T) {
	f := &Frame{url: "https://other.test/", err: assert.AnError}
	_, err := f.QuerySelectorAll(t.Context(), "form")
	assert.ErrorIs(t, err, assert.AnError)
	_, err = f.Text(t.Context())
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, "https://other.test/", f.URL())
}
