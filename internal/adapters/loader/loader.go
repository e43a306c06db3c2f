// Package loader fetches course documents by locator and turns them into text.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/campusify/coursechat/internal/domain/ports"
)

// ErrUnsupportedFormat is returned for a locator whose extension has no parser.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Options configures an Extractor.
type Options struct {
	// PublicBaseURL and UploadsDir let locators served by this process be read
	// straight from disk instead of over HTTP.
	PublicBaseURL string
	UploadsDir    string

	MaxBytes int64
	Timeout  time.Duration
}

// Extractor implements ports.TextExtractor. It loads a locator (http(s) URL
// or local path) and dispatches to a parser by file extension.
type Extractor struct {
	parsers  map[string]ports.DocumentParser
	client   *http.Client
	base     string
	uploads  string
	maxBytes int64
}

// NewExtractor creates an Extractor for the given parsers.
func NewExtractor(opts Options, parsers ...ports.DocumentParser) *Extractor {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 50 << 20
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	byExt := make(map[string]ports.DocumentParser)
	for _, p := range parsers {
		for _, f := range p.SupportedFormats() {
			byExt["."+strings.ToLower(f)] = p
		}
	}

	return &Extractor{
		parsers:  byExt,
		client:   &http.Client{Timeout: opts.Timeout},
		base:     strings.TrimRight(opts.PublicBaseURL, "/"),
		uploads:  opts.UploadsDir,
		maxBytes: opts.MaxBytes,
	}
}

// Extract returns the cleaned text of the document at locator.
func (e *Extractor) Extract(ctx context.Context, locator string) (string, error) {
	name := documentName(locator)
	parser, ok := e.parsers[strings.ToLower(filepath.Ext(name))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}

	data, err := e.load(ctx, locator)
	if err != nil {
		return "", err
	}

	text, err := parser.Parse(ctx, data, name)
	if err != nil {
		return "", fmt.Errorf("parsing %s: %w", name, err)
	}
	return cleanContent(text), nil
}

// SupportedExtensions returns all extensions with a registered parser.
func (e *Extractor) SupportedExtensions() []string {
	exts := make([]string, 0, len(e.parsers))
	for ext := range e.parsers {
		exts = append(exts, ext)
	}
	return exts
}

func (e *Extractor) load(ctx context.Context, locator string) ([]byte, error) {
	if local, ok := e.localPath(locator); ok {
		return e.readFile(local)
	}
	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return e.download(ctx, locator)
	}
	return e.readFile(locator)
}

// localPath maps a locator under the public base URL to a file in the uploads dir.
func (e *Extractor) localPath(locator string) (string, bool) {
	if e.base == "" || e.uploads == "" || !strings.HasPrefix(locator, e.base+"/") {
		return "", false
	}
	escaped := strings.TrimPrefix(locator, e.base+"/")
	rel, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	clean := path.Clean("/" + rel)
	return filepath.Join(e.uploads, filepath.FromSlash(clean)), true
}

func (e *Extractor) readFile(p string) ([]byte, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()
	return e.readLimited(f, p)
}

func (e *Extractor) download(ctx context.Context, locator string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", locator, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading %s: status %d", locator, resp.StatusCode)
	}
	return e.readLimited(resp.Body, locator)
}

func (e *Extractor) readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, e.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	if int64(len(data)) > e.maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, e.maxBytes)
	}
	return data, nil
}

// documentName returns the file name part of a URL or path locator.
func documentName(locator string) string {
	if u, err := url.Parse(locator); err == nil && u.Scheme != "" && u.Host != "" {
		return path.Base(u.Path)
	}
	return filepath.Base(locator)
}

// cleanContent drops control characters other than newlines and tabs.
func cleanContent(content string) string {
	var cleaned strings.Builder
	cleaned.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || unicode.IsPrint(r) {
			cleaned.WriteRune(r)
		}
	}
	return strings.TrimSpace(cleaned.String())
}
