// Package links discovers, normalizes, and filters candidate URLs found in
// archive and newsletter pages.
package links

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var absoluteURL = regexp.MustCompile(`https?://[^ ]+`)

var imageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"bmp":  {},
	"jpeg": {},
	"tiff": {},
}

var mediaTokens = []string{"mpg", "mpeg", "mp4", "wav", "mp3", "aicc", "m4a", "aiff", "m4p", "m4v"}

// Matcher reports whether a URL is excluded.
type Matcher interface {
	Blocked(url string) bool
}

// ExtractLinks returns the cleaned href of every anchor in document, in
// document order. Hrefs starting with "/" resolve against the scheme and host
// of baseURL. Hrefs without an http(s) URL token are dropped.
func ExtractLinks(document, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	root := &url.URL{Scheme: base.Scheme, Host: base.Host}

	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "/") {
			if ref, perr := url.Parse(href); perr == nil {
				href = root.ResolveReference(ref).String()
			}
		}
		if cleaned, ok := Clean(href); ok {
			out = append(out, cleaned)
		}
	})
	return out, nil
}

// Clean returns the first http(s) URL token in raw.
func Clean(raw string) (string, bool) {
	match := absoluteURL.FindString(raw)
	if match == "" {
		return "", false
	}
	return match, true
}

// HasRegistrableDomain reports whether raw has a non-empty network location.
func HasRegistrableDomain(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Host != ""
}

// CleanAndDedupe drops blocked URLs and URLs without a host, then returns the
// remaining URLs deduplicated and sorted. A nil matcher blocks nothing.
func CleanAndDedupe(urls []string, matcher Matcher) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if matcher != nil && matcher.Blocked(u) {
			continue
		}
		if !HasRegistrableDomain(u) {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// FilterMedia drops URLs that point at images, audio, or video, preserving order.
func FilterMedia(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if isMedia(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func isMedia(raw string) bool {
	ext := extension(raw)
	if _, ok := imageExtensions[ext]; ok {
		return true
	}
	if len(ext) > 5 {
		return false
	}
	for _, token := range mediaTokens {
		if strings.Contains(ext, token) {
			return true
		}
	}
	return false
}

// extension is the text after the last "." of the path, or the whole path
// when it has no dot.
func extension(raw string) string {
	path := raw
	if u, err := url.Parse(raw); err == nil {
		path = u.Path
	}
	if i := strings.LastIndex(path, "."); i >= 0 {
		path = path[i+1:]
	}
	return strings.ToLower(path)
}

// NewsletterCandidates lists the issue URLs linked from an archive page.
func NewsletterCandidates(document, baseURL string) ([]string, error) {
	found, err := ExtractLinks(document, baseURL)
	if err != nil {
		return nil, err
	}
	return CleanAndDedupe(found, nil), nil
}

// ArticleCandidates lists the article URLs linked from a newsletter issue:
// blocklist and host filtering, dedupe and sort, then media filtering.
func ArticleCandidates(document, baseURL string, matcher Matcher) ([]string, error) {
	found, err := ExtractLinks(document, baseURL)
	if err != nil {
		return nil, err
	}
	return FilterMedia(CleanAndDedupe(found, matcher)), nil
}
