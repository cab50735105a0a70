package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/invariant/internal/model"
)

// ErrEmptyFacts is returned when writing an envelope that records nothing
var ErrEmptyFacts = errors.New("envelope has no facts")

// Read loads an envelope or a bare fact document from path
func Read(path string) (*model.Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read envelope: %w", err)
	}
	doc, format, err := model.ParseDocumentFormat(data)
	if err != nil {
		return nil, fmt.Errorf("parse envelope %s: %w", path, err)
	}
	env, err := model.EnvelopeFromDocument(doc)
	if err != nil {
		return nil, err
	}
	env.Format = format
	return env, nil
}

// Write saves env with facts first, as JSON when it was read from JSON and
// as YAML otherwise. The file is replaced atomically.
func Write(path string, env *model.Envelope) error {
	if env.IsEmpty() {
		return ErrEmptyFacts
	}
	data, err := marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := replaceFile(path, data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	return nil
}

func marshal(env *model.Envelope) ([]byte, error) {
	if env.Format == model.FormatJSON {
		data, err := json.MarshalIndent(env.Document(), "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
	return yaml.Marshal(env.Document())
}

// replaceFile writes to a temp file beside path, then renames it into place
func replaceFile(path string, data []byte) error {
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Stamp mints a token for env against rs and writes the stamped envelope
func Stamp(path string, env *model.Envelope, rs *model.Rulespec, signer *Signer) (string, error) {
	token, err := signer.Mint(env.Facts, rs)
	if err != nil {
		return "", fmt.Errorf("mint token: %w", err)
	}
	stamped := &model.Envelope{Facts: env.Facts, Verified: token, Format: env.Format}
	if err := Write(path, stamped); err != nil {
		return "", err
	}
	env.Verified = token
	return token, nil
}
