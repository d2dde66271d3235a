// Package blocklist matches URLs against configured domain entries.
package blocklist

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"sync"

	"github.com/JakeFAU/newsletter-crawler/internal/listfile"
)

// List is a substring blocklist: a URL is blocked when any entry occurs in its
// lowercase form, so "cnn.com" also blocks "notcnn.com". Safe for concurrent use.
type List struct {
	mu      sync.RWMutex
	entries []string
	index   map[string]struct{}
	path    string
}

// New builds a List from entries. Entries are trimmed and lowercased; blanks are ignored.
func New(entries []string) *List {
	l := &List{index: make(map[string]struct{})}
	for _, e := range entries {
		l.add(e)
	}
	return l
}

// Load reads entries from path. Entries added later with Add are appended to
// the same file. A missing file yields an empty list that creates it on Add.
func Load(path string) (*List, error) {
	entries, err := listfile.Read(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load blocklist: %w", err)
	}
	l := New(entries)
	l.path = path
	return l, nil
}

func (l *List) add(raw string) bool {
	value := strings.TrimSpace(strings.ToLower(raw))
	if value == "" {
		return false
	}
	if _, exists := l.index[value]; exists {
		return false
	}
	l.index[value] = struct{}{}
	l.entries = append(l.entries, value)
	return true
}

// Blocked reports whether rawURL contains any entry.
func (l *List) Blocked(rawURL string) bool {
	if l == nil {
		return false
	}
	lower := strings.ToLower(rawURL)
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, entry := range l.entries {
		if strings.Contains(lower, entry) {
			return true
		}
	}
	return false
}

// Add inserts entry and, when the list is file-backed, persists it.
// It reports whether the entry was new.
func (l *List) Add(entry string) (bool, error) {
	l.mu.Lock()
	added := l.add(entry)
	path := l.path
	l.mu.Unlock()
	if !added || path == "" {
		return added, nil
	}
	if err := listfile.Append(path, strings.TrimSpace(strings.ToLower(entry))); err != nil {
		return true, fmt.Errorf("persist blocklist entry: %w", err)
	}
	return true, nil
}

// AddHost blocks the host of rawURL.
func (l *List) AddHost(rawURL string) (string, bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "", false, fmt.Errorf("no host in %q", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	added, err := l.Add(host)
	return host, added, err
}

// Entries returns a copy of the current entries.
func (l *List) Entries() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.entries...)
}
