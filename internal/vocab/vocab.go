// Package vocab manages the canonical feature vocabulary: the fixed set of
// checklist feature names and the known phrase variants used to recognize
// each one in extracted window-sticker text.
//
// The vocabulary is read-mostly. Matching takes an immutable snapshot;
// edits go through AddVariant/ReplaceVariant, which hold a writer lock and
// persist the file before returning.
package vocab

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/lotview/stickercheck/internal/normalize"
)

// ErrNotFound is returned by edit operations when the canonical name or
// the referenced variant does not exist.
var ErrNotFound = errors.New("vocab: not found")

const fileMode = 0o644

// Entry pairs a canonical feature name with its normalized variants.
// Variants keep their append order.
type Entry struct {
	Name     string
	Variants []string
}

// Store is the process-wide vocabulary, backed by a JSON file mapping
// canonical name to an ordered variant list.
type Store struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	names    []string
	variants map[string][]string
}

// Load reads the vocabulary file at path, synthesizing and persisting the
// default vocabulary when the file does not exist. A missing file is not
// an error; a malformed one is.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:     path,
		logger:   logger,
		variants: make(map[string][]string),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.setAll(DefaultMapping())
		if err := s.save(); err != nil {
			return nil, fmt.Errorf("persist default vocabulary: %w", err)
		}
		logger.Info("created default vocabulary", "path", path, "entries", len(s.names))
	case err != nil:
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	default:
		var raw map[string][]string
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
		}
		s.setAll(raw)
		logger.Info("loaded vocabulary", "path", path, "entries", len(s.names))
	}

	return s, nil
}

// setAll replaces state from a raw mapping, normalizing every variant.
// Names are kept sorted so iteration order is stable across runs.
func (s *Store) setAll(raw map[string][]string) {
	s.names = s.names[:0]
	s.variants = make(map[string][]string, len(raw))
	for name, variants := range raw {
		s.names = append(s.names, name)
		normalized := make([]string, 0, len(variants))
		for _, v := range variants {
			if nv := normalize.Text(v); nv != "" && !contains(normalized, nv) {
				normalized = append(normalized, nv)
			}
		}
		s.variants[name] = normalized
	}
	sort.Strings(s.names)
}

// Len returns the number of canonical entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Snapshot returns a deep copy of the vocabulary for lock-free matching.
func (s *Store) Snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.names))
	for _, name := range s.names {
		variants := make([]string, len(s.variants[name]))
		copy(variants, s.variants[name])
		entries = append(entries, Entry{Name: name, Variants: variants})
	}
	return entries
}

// AddVariant normalizes text and appends it to the named entry, creating
// the entry when it does not exist yet. Adding a variant that is already
// present is a no-op success.
func (s *Store) AddVariant(name, text string) error {
	nv := normalize.Text(text)
	if nv == "" {
		return fmt.Errorf("vocab: empty variant text")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.variants[name]
	if !ok {
		s.names = append(s.names, name)
		sort.Strings(s.names)
		s.variants[name] = []string{nv}
		s.logger.Info("added vocabulary entry", "name", name, "variant", nv)
		return s.save()
	}
	if contains(existing, nv) {
		return nil
	}
	s.variants[name] = append(existing, nv)
	s.logger.Info("added variant", "name", name, "variant", nv)
	return s.save()
}

// ReplaceVariant atomically swaps oldText for newText under the named
// entry. It fails with ErrNotFound when either the name or the old
// variant is missing.
func (s *Store) ReplaceVariant(name, oldText, newText string) error {
	oldNorm := normalize.Text(oldText)
	newNorm := normalize.Text(newText)
	if newNorm == "" {
		return fmt.Errorf("vocab: empty replacement text")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.variants[name]
	if !ok {
		return fmt.Errorf("canonical name %q: %w", name, ErrNotFound)
	}
	idx := -1
	for i, v := range existing {
		if v == oldNorm {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("variant %q of %q: %w", oldText, name, ErrNotFound)
	}

	updated := make([]string, 0, len(existing))
	updated = append(updated, existing[:idx]...)
	updated = append(updated, existing[idx+1:]...)
	if !contains(updated, newNorm) {
		updated = append(updated, newNorm)
	}
	s.variants[name] = updated
	s.logger.Info("replaced variant", "name", name, "old", oldNorm, "new", newNorm)
	return s.save()
}

// save persists the current mapping. Callers must hold the write lock.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create vocabulary directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(s.variants, "", "  ")
	if err != nil {
		return fmt.Errorf("encode vocabulary: %w", err)
	}
	if err := os.WriteFile(s.path, data, fileMode); err != nil {
		return fmt.Errorf("write vocabulary %s: %w", s.path, err)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
