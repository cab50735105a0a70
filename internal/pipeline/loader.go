package pipeline

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/invariant/internal/model"
)

// DefaultMaxBytes caps the size of documents read from disk
const DefaultMaxBytes int64 = 10 << 20

// ErrNoRulespec is returned when the rulespec file does not exist
var ErrNoRulespec = errors.New("rulespec not found")

// Loader reads rulespec and fact documents with a size limit
type Loader struct {
	maxBytes int64
}

// NewLoader creates a loader. A non-positive limit uses DefaultMaxBytes.
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Loader{maxBytes: maxBytes}
}

// RulespecDocument is a loaded rulespec in both raw and decoded form
type RulespecDocument struct {
	Path     string
	Document model.Value // Generic form, used for schema checks
	Rulespec *model.Rulespec
}

// LoadRulespec reads and decodes the rulespec at path
func (l *Loader) LoadRulespec(path string) (*RulespecDocument, error) {
	data, err := l.read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoRulespec, path)
		}
		return nil, err
	}

	doc, err := model.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("parse rulespec %s: %w", path, err)
	}
	rs, err := model.DecodeRulespec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &RulespecDocument{Path: path, Document: doc, Rulespec: rs}, nil
}

// LoadEnvelope reads a fact document, unwrapping an envelope if present
func (l *Loader) LoadEnvelope(path string) (*model.Envelope, error) {
	data, err := l.read(path)
	if err != nil {
		return nil, err
	}
	doc, format, err := model.ParseDocumentFormat(data)
	if err != nil {
		return nil, fmt.Errorf("parse facts %s: %w", path, err)
	}
	env, err := model.EnvelopeFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	env.Format = format
	return env, nil
}

func (l *Loader) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Read one byte past the limit to detect oversized documents
	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", path, l.maxBytes)
	}
	return data, nil
}

// RulespecPath resolves the conventional rulespec location under dir
func RulespecPath(dir, rel string) string {
	if rel == "" {
		rel = filepath.Join("analysis", "rulespec.yaml")
	}
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(dir, rel)
}

// OutputName flattens a document path into a file name for batch output
func OutputName(path string) string {
	s := filepath.Clean(path)
	if ext := filepath.Ext(s); ext != filepath.Base(s) {
		s = strings.TrimSuffix(s, ext)
	}

	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "-",
	)
	s = strings.TrimLeft(replacer.Replace(s), "._")

	// Keep the tail, which is the distinguishing part
	if len(s) > 100 {
		s = s[len(s)-100:]
	}
	if s == "" {
		s = "facts"
	}
	return s
}
