// Package persona holds the closed set of personas a conversation can be
// assigned and the base system instruction for each.
package persona

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	GeneralAssistant     = "general-assistant"
	ProgrammingExpert    = "programming-expert"
	PatientEducator      = "patient-educator"
	CreativeCollaborator = "creative-collaborator"

	// Default is used for new conversations without a persona and for
	// stored tags that are no longer known.
	Default = GeneralAssistant
)

var defaultInstructions = map[string]string{
	GeneralAssistant: "You are a helpful, friendly assistant. Answer clearly and concisely, " +
		"ask a short clarifying question when a request is ambiguous, and say so plainly " +
		"when you do not know something.",
	ProgrammingExpert: "You are an expert software engineer. Give precise, technically " +
		"accurate answers, prefer small runnable code examples, point out edge cases and " +
		"trade-offs, and follow the idioms of the language being discussed.",
	PatientEducator: "You are a patient teacher. Explain ideas step by step starting from " +
		"what the learner already knows, use simple analogies and examples, check " +
		"understanding along the way, and never make the learner feel rushed.",
	CreativeCollaborator: "You are an imaginative creative partner. Build on the user's " +
		"ideas, offer surprising alternatives, keep their voice and intent at the center, " +
		"and be generous with concrete suggestions.",
}

// Tags lists every known persona tag in a stable order.
func Tags() []string {
	return []string{GeneralAssistant, ProgrammingExpert, PatientEducator, CreativeCollaborator}
}

// Valid reports whether tag names a known persona.
func Valid(tag string) bool {
	_, ok := defaultInstructions[tag]
	return ok
}

// Catalog resolves persona tags to instructions. Instructions may be
// overridden from a YAML file mapping tag to text.
type Catalog struct {
	mu           sync.RWMutex
	instructions map[string]string
	logger       *zap.Logger
}

// NewCatalog returns a catalog holding the built-in instructions.
func NewCatalog(logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}

	instructions := make(map[string]string, len(defaultInstructions))
	for tag, text := range defaultInstructions {
		instructions[tag] = text
	}
	return &Catalog{instructions: instructions, logger: logger}
}

// Instruction returns exactly one base instruction for tag. Unknown tags
// resolve to the Default persona.
func (c *Catalog) Instruction(tag string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if text, ok := c.instructions[tag]; ok {
		return text
	}
	return c.instructions[Default]
}

// LoadFile applies overrides from a YAML file of the form
//
//	programming-expert: |
//	  You are ...
//
// Tags missing from the file keep their built-in text. Unknown tags and
// empty texts are rejected and leave the catalog unchanged.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading persona file: %w", err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("parsing persona file %s: %w", path, err)
	}

	next := make(map[string]string, len(defaultInstructions))
	for tag, text := range defaultInstructions {
		next[tag] = text
	}
	for tag, text := range overrides {
		if !Valid(tag) {
			return fmt.Errorf("unknown persona %q in %s, valid personas: %v", tag, path, Tags())
		}
		if text == "" {
			return fmt.Errorf("persona %q in %s has an empty instruction", tag, path)
		}
		next[tag] = text
	}

	c.mu.Lock()
	c.instructions = next
	c.mu.Unlock()

	overridden := make([]string, 0, len(overrides))
	for tag := range overrides {
		overridden = append(overridden, tag)
	}
	slices.Sort(overridden)
	c.logger.Info("loaded persona overrides",
		zap.String("path", path),
		zap.Strings("personas", overridden),
	)
	return nil
}

// Watch reloads path whenever it is written or recreated, until ctx is
// done. A failed reload is logged and the previous instructions stay in
// effect.
func (c *Catalog) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating persona watcher: %w", err)
	}
	defer watcher.Close()

	// Editors often replace files, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching persona dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := c.LoadFile(path); err != nil {
				c.logger.Warn("persona reload failed", zap.Error(err))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				c.logger.Warn("persona watcher overflow", zap.Error(err))
				continue
			}
			return fmt.Errorf("persona watcher error: %w", err)
		}
	}
}
