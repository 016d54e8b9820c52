package cdp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/zchee/chromium-vim-sub001/internal/browser"
	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// jsSetIcon records the coordinator's per-tab indicator in the page. Pages
// outside an extension have no real toolbar icon; the content runtime
// renders whatever state this leaves behind.
const jsSetIcon = `
(function(state) {
  window.__coordinatorIcon = state;
  document.dispatchEvent(new CustomEvent("coordinator-icon", {detail: state}));
  return state;
})(%s)`

// Inject implements browser.Host: the script runs in the page now and is
// armed for every future document in the same tab.
func (h *Host) Inject(ctx context.Context, tabID, script string) error {
	tabCtx, err := h.tabContext(tabID)
	if err != nil {
		return err
	}

	err = chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx)
			return err
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, exc, err := runtime.Evaluate(script).Do(ctx)
			if err != nil {
				return err
			}
			if exc != nil {
				return fmt.Errorf("page threw: %s", exc.Text)
			}
			return nil
		}),
	)
	if err != nil {
		return types.NewError(types.CodeHostCall, "inject into tab "+tabID, err)
	}
	return nil
}

// Eval implements browser.Host.
func (h *Host) Eval(ctx context.Context, tabID, expr string) (json.RawMessage, error) {
	tabCtx, err := h.tabContext(tabID)
	if err != nil {
		return nil, err
	}

	var result json.RawMessage
	err = chromedp.Run(tabCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, exc, err := runtime.Evaluate(expr).WithReturnByValue(true).Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("page threw: %s", exc.Text)
		}
		if obj != nil && obj.Value != nil {
			result = json.RawMessage(obj.Value)
		} else {
			result = json.RawMessage(`null`)
		}
		return nil
	}))
	if err != nil {
		return nil, types.NewError(types.CodeHostCall, "eval in tab "+tabID, err)
	}
	return result, nil
}

// SetIcon implements browser.Host by evaluating the icon marker in the tab.
func (h *Host) SetIcon(ctx context.Context, tabID string, state browser.IconState) error {
	quoted, err := json.Marshal(string(state))
	if err != nil {
		return err
	}
	if _, err := h.Eval(ctx, tabID, fmt.Sprintf(jsSetIcon, quoted)); err != nil {
		return types.NewError(types.CodeHostCall, "set icon on tab "+tabID, err)
	}
	return nil
}
