package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSiteRendererRequiresATier(t *testing.T) {
	_, err := NewSiteRenderer(nil, nil, nil, zap.NewNop())
	require.Error(t, err)
}

func TestSiteRenderer_ProbeOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			fmt.Fprint(w, `<html>
<head><title>Home</title><meta name="description" content="front door"></head>
<body><main><p>Welcome to the site, a page with plenty of static text to read.</p>
<a href="/about">About</a><a href="/about">About again</a></main></body></html>`)
		case "/gone":
			http.Error(w, "nope", http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	probe := newTestProbe(t)
	renderer, err := NewSiteRenderer(probe, nil, NewHeuristicDetector(32), zap.NewNop())
	require.NoError(t, err)
	defer func() {
		require.NoError(t, renderer.Close(context.Background()))
	}()

	t.Run("renders and extracts", func(t *testing.T) {
		page, err := renderer.Render(context.Background(), RenderRequest{URL: srv.URL + "/", Selector: "main"})
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, page.StatusCode)
		require.Equal(t, "Home", page.Title)
		require.Equal(t, "front door", page.Description)
		require.Contains(t, page.Content, "Welcome to the site")
		require.Equal(t, []string{srv.URL + "/about"}, page.Links)
		require.False(t, page.UsedJS)
		require.NotEmpty(t, page.HTML)
	})

	t.Run("http error surfaces as render error", func(t *testing.T) {
		_, err := renderer.Render(context.Background(), RenderRequest{URL: srv.URL + "/gone", Selector: "body"})
		require.Error(t, err)
		var renderErr *RenderError
		require.True(t, errors.As(err, &renderErr))
		require.Equal(t, http.StatusNotFound, renderErr.StatusCode)
	})

	t.Run("unreachable host surfaces as render error", func(t *testing.T) {
		dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
		deadURL := dead.URL
		dead.Close()

		_, err := renderer.Render(context.Background(), RenderRequest{URL: deadURL + "/x", Selector: "body"})
		require.Error(t, err)
		var renderErr *RenderError
		require.True(t, errors.As(err, &renderErr))
	})
}

// Without a headless tier a JS-shell page is still served from the probe
// body rather than failing the crawl.
func TestSiteRenderer_ShellWithoutHeadless(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div><noscript>You need to enable JavaScript to run this app.</noscript></body></html>`)
	}))
	defer srv.Close()

	probe := newTestProbe(t)
	renderer, err := NewSiteRenderer(probe, nil, NewHeuristicDetector(32), zap.NewNop())
	require.NoError(t, err)

	page, err := renderer.Render(context.Background(), RenderRequest{URL: srv.URL + "/", Selector: "body"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.False(t, page.UsedJS)
	require.Contains(t, page.HTML, `div id="root"`)
}
