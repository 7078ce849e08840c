package crawler

import (
	"context"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/v0xg/formcheck/internal/page"
)

const (
	settlePoll  = 200 * time.Millisecond
	settleGrace = 300 * time.Millisecond

	// React, Next, Vue, Angular and Svelte all leave one of these behind.
	jsFrameworkRendered = `() => !!(window.__REACT_DEVTOOLS_GLOBAL_HOOK__ || window.__VUE__ || window.ng ||
		document.querySelector('[data-reactroot], #__next, [data-v-app], [ng-version], app-root, [class*="svelte-"]'))`

	jsInteractiveCount = `() => document.querySelectorAll('form').length +
		Array.from(document.querySelectorAll('input:not([type="hidden"]), textarea, select'))
			.filter(el => el.offsetParent !== null).length`
)

// settle gives script-rendered pages up to limit to show a form or a visible
// control. Server-rendered pages return immediately.
func settle(ctx context.Context, p *rod.Page, limit time.Duration, log *zap.Logger) {
	res, err := p.Context(ctx).Eval(jsFrameworkRendered)
	if err != nil || !res.Value.Bool() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	tick := time.NewTicker(settlePoll)
	defer tick.Stop()

	for {
		if res, err := p.Context(ctx).Eval(jsInteractiveCount); err == nil && res.Value.Int() > 0 {
			// let the last render pass finish
			_ = page.Sleep(ctx, settleGrace)
			return
		}
		select {
		case <-ctx.Done():
			log.Debug("Script-rendered page showed no controls", zap.Duration("waited", limit))
			return
		case <-tick.C:
		}
	}
}
