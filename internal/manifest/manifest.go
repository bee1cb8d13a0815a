// Package manifest reads and writes the label manifest that sits next to a directory of glyph images.
package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DefaultName is the manifest filename used when none is configured.
const DefaultName = "description.txt"

const separator = ":"

var (
	// ErrManifestNotFound indicates the manifest file does not exist.
	ErrManifestNotFound = errors.New("manifest: not found")
	// ErrMalformedEntry indicates a manifest line without a filename separator.
	ErrMalformedEntry = errors.New("manifest: malformed entry")
)

// Entry is one manifest line: an image filename and its ground-truth label.
// Label is kept exactly as written, including any line terminator.
type Entry struct {
	Filename string
	Label    string
}

// DisplayLabel returns the label with surrounding whitespace removed, for comparison and output.
func (e Entry) DisplayLabel() string {
	return strings.TrimSpace(e.Label)
}

// Load reads dir/name and returns its entries in file order.
func Load(dir, name string) ([]Entry, error) {
	if name == "" {
		name = DefaultName
	}
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse reads manifest lines from r. The first ':' on a line separates filename from label;
// empty lines are skipped.
func Parse(r io.Reader) ([]Entry, error) {
	br := bufio.NewReader(r)
	var entries []Entry
	lineNo := 0
	for {
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read manifest: %w", err)
		}
		if line != "" {
			lineNo++
			if strings.TrimRight(line, "\r\n") != "" {
				entry, perr := parseLine(line)
				if perr != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, perr)
				}
				entries = append(entries, entry)
			}
		}
		if err != nil {
			return entries, nil
		}
	}
}

func parseLine(line string) (Entry, error) {
	filename, label, ok := strings.Cut(line, separator)
	if !ok {
		return Entry{}, fmt.Errorf("%w: missing %q in %q", ErrMalformedEntry, separator, strings.TrimRight(line, "\r\n"))
	}
	if filename == "" {
		return Entry{}, fmt.Errorf("%w: empty filename", ErrMalformedEntry)
	}
	return Entry{Filename: filename, Label: label}, nil
}

// Append adds one entry to dir/name, creating the file if needed.
func Append(dir, name string, e Entry) error {
	if name == "" {
		name = DefaultName
	}
	if e.Filename == "" || strings.Contains(e.Filename, separator) {
		return fmt.Errorf("%w: invalid filename %q", ErrMalformedEntry, e.Filename)
	}
	label := strings.TrimRight(e.Label, "\r\n")
	if strings.ContainsAny(label, "\r\n") {
		return fmt.Errorf("%w: label spans multiple lines", ErrMalformedEntry)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open manifest for append: %w", err)
	}
	if _, err := fmt.Fprintf(f, "%s%s%s\n", e.Filename, separator, label); err != nil {
		_ = f.Close()
		return fmt.Errorf("append manifest entry: %w", err)
	}
	return f.Close()
}
