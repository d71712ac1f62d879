package command

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
)

var (
	// ErrFileMissing is returned when a word list file does not exist.
	ErrFileMissing = errors.New("command: word list file missing")

	// ErrEmptyList is returned when a word list contains no usable lines.
	ErrEmptyList = errors.New("command: word list is empty")
)

// WordList is a line-delimited list of entries loaded lazily from a file.
// Blank lines are ignored and surrounding whitespace is trimmed.
//
// A successful load is cached until [WordList.Invalidate] or
// [WordList.SetPath] is called. A missing file is never cached, so creating
// the file later takes effect on the next read.
type WordList struct {
	mu     sync.Mutex
	path   string
	lines  []string
	loaded bool
}

// NewWordList returns a WordList backed by path. The file is not read until
// the first call to [WordList.Lines] or [WordList.Pick].
func NewWordList(path string) *WordList {
	return &WordList{path: path}
}

// Path returns the current backing file path.
func (w *WordList) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// SetPath switches the backing file and drops the cached entries.
func (w *WordList) SetPath(path string) {
	w.mu.Lock()
	w.path = path
	w.lines = nil
	w.loaded = false
	w.mu.Unlock()
}

// Invalidate drops the cached entries so the next read reloads the file.
func (w *WordList) Invalidate() {
	w.mu.Lock()
	w.lines = nil
	w.loaded = false
	w.mu.Unlock()
}

// Lines returns a copy of the entries. It returns [ErrFileMissing] if the file
// does not exist and [ErrEmptyList] if it has no non-blank lines.
func (w *WordList) Lines() ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.loaded {
		lines, err := readLines(w.path)
		if err != nil {
			return nil, err
		}
		w.lines = lines
		w.loaded = true
	}
	if len(w.lines) == 0 {
		return nil, ErrEmptyList
	}
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out, nil
}

// Pick returns an entry chosen by intn, which must return a value in [0, n).
func (w *WordList) Pick(intn func(n int) int) (string, error) {
	lines, err := w.Lines()
	if err != nil {
		return "", err
	}
	return lines[intn(len(lines))], nil
}

func readLines(path string) ([]string, error) {
	if path == "" {
		return nil, ErrFileMissing
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}
		return nil, fmt.Errorf("command: open word list %q: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("command: read word list %q: %w", path, err)
	}
	return lines, nil
}
