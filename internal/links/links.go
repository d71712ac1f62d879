// Package links loads the streamer's links file for display in the control
// panel and the HTTP API.
//
// The file is line oriented. A line containing one of the category emoji
// (🎮 📺 📸 🐦 🎵 💬 🧱 ☕ 🌐) starts a section, a line starting with 🔗 is
// a link, anything else is plain text. Blank lines are ignored.
package links

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/pkg/browser"
)

// LinkPrefix marks a link line.
const LinkPrefix = "🔗"

// CategoryMarkers identify section header lines.
var CategoryMarkers = []string{"🎮", "📺", "📸", "🐦", "🎵", "💬", "🧱", "☕", "🌐"}

// ErrNoFile is returned by [Store.Load] when the links file does not exist.
var ErrNoFile = errors.New("links: file not found")

// ItemKind distinguishes links from text.
type ItemKind string

const (
	KindLink ItemKind = "link"
	KindText ItemKind = "text"
)

// Item is one entry in a section.
type Item struct {
	Kind ItemKind `json:"kind"`
	// Text is the line as written, without the link prefix.
	Text string `json:"text"`
	// URL is set for links and always carries a scheme.
	URL string `json:"url,omitempty"`
}

// Section groups items under a header. Items before the first header land
// in a section with an empty Title.
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Document is a parsed links file.
type Document struct {
	Sections []Section `json:"sections"`
}

// Links returns every link in document order.
func (d Document) Links() []Item {
	var out []Item
	for _, s := range d.Sections {
		for _, it := range s.Items {
			if it.Kind == KindLink {
				out = append(out, it)
			}
		}
	}
	return out
}

// Parse parses the contents of a links file.
func Parse(content string) Document {
	var doc Document
	current := -1
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if isHeader(line) {
			doc.Sections = append(doc.Sections, Section{Title: line})
			current = len(doc.Sections) - 1
			continue
		}
		if current < 0 {
			doc.Sections = append(doc.Sections, Section{})
			current = 0
		}
		item := Item{Kind: KindText, Text: line}
		if strings.HasPrefix(line, LinkPrefix) {
			text := strings.TrimSpace(strings.TrimPrefix(line, LinkPrefix))
			item = Item{Kind: KindLink, Text: text, URL: normalizeURL(text)}
		}
		doc.Sections[current].Items = append(doc.Sections[current].Items, item)
	}
	return doc
}

func isHeader(line string) bool {
	for _, m := range CategoryMarkers {
		if strings.Contains(line, m) {
			return true
		}
	}
	return false
}

func normalizeURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	return "https://" + u
}

// Store caches the parsed links file and reloads it on demand.
type Store struct {
	mu   sync.Mutex
	path string
	doc  Document
	err  error
	ok   bool

	// open and copy are replaced in tests.
	open func(url string) error
	copy func(text string) error
}

// NewStore returns a Store for path. Nothing is read until [Store.Load].
func NewStore(path string) *Store {
	return &Store{path: path, open: browser.OpenURL, copy: clipboard.WriteAll}
}

// Path returns the links file path.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// SetPath points the store at a new file and drops the cache.
func (s *Store) SetPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path, s.ok = path, false
}

// Load returns the cached document, reading the file on first use or after
// [Store.Reload].
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		s.doc, s.err = read(s.path)
		s.ok = true
	}
	return s.doc, s.err
}

// Reload drops the cache and reads the file again.
func (s *Store) Reload() (Document, error) {
	s.mu.Lock()
	s.ok = false
	s.mu.Unlock()
	return s.Load()
}

func read(path string) (Document, error) {
	if path == "" {
		return Document{}, ErrNoFile
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, fmt.Errorf("%w: %s", ErrNoFile, path)
	}
	if err != nil {
		return Document{}, fmt.Errorf("links: read %s: %w", path, err)
	}
	return Parse(string(b)), nil
}

// Open opens url in the default browser.
func (s *Store) Open(url string) error {
	if err := s.open(url); err != nil {
		return fmt.Errorf("links: open %s: %w", url, err)
	}
	return nil
}

// Copy puts text on the system clipboard.
func (s *Store) Copy(text string) error {
	if err := s.copy(text); err != nil {
		return fmt.Errorf("links: copy to clipboard: %w", err)
	}
	return nil
}
