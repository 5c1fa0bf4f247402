package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Normalize resolves href against the origin of baseURL. An empty href or "/"
// yields the origin itself. Hosts are lowercased so frontier keys agree with
// SameDomain.
func Normalize(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q is not absolute", baseURL)
	}
	origin := &url.URL{Scheme: base.Scheme, Host: strings.ToLower(base.Host)}
	href = strings.TrimSpace(href)
	if href == "" || href == "/" {
		return origin.String(), nil
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parse href: %w", err)
	}
	origin.Path = "/"
	resolved := origin.ResolveReference(ref)
	resolved.Host = strings.ToLower(resolved.Host)
	return resolved.String(), nil
}

// SameDomain reports whether both URLs share a hostname.
func SameDomain(rawURL, rootURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	root, err := url.Parse(rootURL)
	if err != nil {
		return false
	}
	if u.Hostname() == "" || root.Hostname() == "" {
		return false
	}
	return strings.EqualFold(u.Hostname(), root.Hostname())
}

// ExtractLinks returns every same-domain anchor target in body, normalized
// against rootURL, in document order and without repeats.
func ExtractLinks(body []byte, rootURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "/" {
			return
		}
		link, err := Normalize(rootURL, href)
		if err != nil || !SameDomain(link, rootURL) {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}
