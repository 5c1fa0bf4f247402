package detector

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

func TestHeuristic_ShouldPromote_EmptyBody(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := crawler.Page{
		StatusCode: 200,
		Body:       []byte(""),
	}
	require.True(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_SPAMarkers(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	for _, body := range []string{
		`<div id="__next"></div>`,
		`<div id="__nuxt"></div>`,
		`<app-root ng-version="17.0.0"></app-root>`,
	} {
		page := crawler.Page{StatusCode: 200, Body: []byte(body)}
		require.True(t, h.ShouldPromote(page), body)
	}
}

func TestHeuristic_ShouldPromote_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(1000)
	page := crawler.Page{
		StatusCode: 200,
		Body:       []byte(`<html><SCRIPT>var a=1;</SCRIPT><p>t</p></html>`),
	}
	require.True(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_ProductMarkupWins(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := crawler.Page{
		StatusCode: 200,
		Body:       []byte(`<div id="__next"><div itemscope itemtype="https://schema.org/Product"></div></div>`),
	}
	require.False(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_PlainPage(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(10)
	page := crawler.Page{
		StatusCode: 200,
		Body:       []byte(`<html><body><h1>About us</h1><p>We sell tea.</p></body></html>`),
	}
	require.False(t, h.ShouldPromote(page))
}

func TestHeuristic_ShouldPromote_DisabledForNon200(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	page := crawler.Page{
		StatusCode: 404,
		Body:       []byte("not found"),
	}
	require.False(t, h.ShouldPromote(page))
}
