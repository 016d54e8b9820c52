package browser

import (
	"context"

	"github.com/zchee/chromium-vim-sub001/internal/types"
)

// NewUnsupported reports a capability the host does not provide.
func NewUnsupported(msg string) error {
	return types.NewError(types.CodeUnsupportedCap, msg, nil)
}

// Site is one history/bookmark/top-site result.
type Site struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url"`
	// Folder marks bookmark-tree folders in bookmarkPath results.
	Folder bool `json:"folder,omitempty"`
}

// BrowserData answers the browsing-data queries contexts use for
// completions. The stores behind it (history database, bookmark tree, top
// sites) belong to the host; the coordinator only routes the question and
// the answer.
type BrowserData interface {
	History(ctx context.Context, query string, limit int) ([]Site, error)
	Bookmarks(ctx context.Context, query string) ([]Site, error)
	TopSites(ctx context.Context) ([]Site, error)

	// BookmarkPath resolves one bookmark-folder path segment by segment
	// and returns the folder's children.
	BookmarkPath(ctx context.Context, path []string) ([]Site, error)
}

// EmptyData is the BrowserData for hosts that expose no browsing-data
// stores. Every query answers empty; routing and reply shape stay intact.
type EmptyData struct{}

func (EmptyData) History(context.Context, string, int) ([]Site, error) { return nil, nil }
func (EmptyData) Bookmarks(context.Context, string) ([]Site, error)    { return nil, nil }
func (EmptyData) TopSites(context.Context) ([]Site, error)             { return nil, nil }
func (EmptyData) BookmarkPath(context.Context, []string) ([]Site, error) {
	return nil, nil
}

// Editor hands text to an external editor and returns the edited result.
type Editor interface {
	Edit(ctx context.Context, text string) (string, error)
}

// NoEditor is the Editor for deployments without one configured.
type NoEditor struct{}

// Edit implements Editor by reporting the missing capability.
func (NoEditor) Edit(_ context.Context, _ string) (string, error) {
	return "", NewUnsupported("no external editor configured")
}
