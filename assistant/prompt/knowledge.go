package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FallbackKnowledge is the corpus text when the knowledge directory holds no files.
const FallbackKnowledge = "Vignan University (VFSTR). Location: Guntur. (Default Fallback Info)"

// knowledgeErrorText is the corpus text when the directory cannot be created.
const knowledgeErrorText = "Vignan University (VFSTR). (Knowledge base error)"

// maxMaterials bounds how many materials entries reach the prompt.
const maxMaterials = 51

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 250 * time.Millisecond

var knowledgeExts = map[string]bool{".txt": true, ".md": true}

// Corpus is the knowledge text prepended to every system instruction.
//
// The text is built once by LoadCorpus. Reload and Watch replace it
// atomically; readers never see a partial corpus.
type Corpus struct {
	dir           string
	materialsPath string
	logger        *slog.Logger
	text          atomic.Pointer[string]
}

// NewCorpus returns a fixed Corpus holding text.
func NewCorpus(text string) *Corpus {
	c := &Corpus{logger: slog.Default()}
	c.text.Store(&text)
	return c
}

// LoadCorpus reads every .txt and .md file in dir, in name order, plus the
// optional materials index at materialsPath. A missing dir is created.
// LoadCorpus never fails; problems are logged and reflected in the text.
func LoadCorpus(dir, materialsPath string, logger *slog.Logger) *Corpus {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Corpus{dir: dir, materialsPath: materialsPath, logger: logger}
	text := c.build()
	c.text.Store(&text)
	return c
}

// Text returns the current corpus text.
func (c *Corpus) Text() string {
	if p := c.text.Load(); p != nil {
		return *p
	}
	return ""
}

// Reload rebuilds the corpus from disk.
func (c *Corpus) Reload() {
	text := c.build()
	c.text.Store(&text)
	c.logger.Info("knowledge corpus reloaded", slog.Int("bytes", len(text)))
}

// Watch reloads the corpus whenever a file in the knowledge directory or
// the materials index changes. It blocks until ctx is done.
func (c *Corpus) Watch(ctx context.Context) error {
	if c.dir == "" {
		return errors.New("corpus has no directory to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	materialsFile := ""
	if c.materialsPath != "" {
		// Watch the parent so the index can be replaced atomically.
		materialsDir := filepath.Dir(c.materialsPath)
		if filepath.Clean(materialsDir) != filepath.Clean(c.dir) {
			if err := watcher.Add(materialsDir); err != nil {
				c.logger.Warn("materials index not watched", slog.String("path", c.materialsPath), slog.Any("error", err))
			}
		}
		materialsFile = filepath.Clean(c.materialsPath)
	}

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !c.relevant(event, materialsFile) {
				continue
			}
			timer.Reset(reloadDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("knowledge watcher error", slog.Any("error", err))

		case <-timer.C:
			c.Reload()
		}
	}
}

func (c *Corpus) relevant(event fsnotify.Event, materialsFile string) bool {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	if materialsFile != "" && name == materialsFile {
		return true
	}
	return filepath.Dir(name) == filepath.Clean(c.dir) && knowledgeExts[strings.ToLower(filepath.Ext(name))]
}

func (c *Corpus) build() string {
	return c.loadDir() + "\n" + c.loadMaterials()
}

func (c *Corpus) loadDir() string {
	if c.dir == "" {
		return FallbackKnowledge
	}

	if _, err := os.Stat(c.dir); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(c.dir, 0o755); err != nil {
			c.logger.Warn("failed to create knowledge directory", slog.String("dir", c.dir), slog.Any("error", err))
			return knowledgeErrorText
		}
		c.logger.Info("created knowledge directory", slog.String("dir", c.dir))
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.logger.Warn("failed to read knowledge directory", slog.String("dir", c.dir), slog.Any("error", err))
		return knowledgeErrorText
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !knowledgeExts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		c.logger.Warn("no knowledge files found", slog.String("dir", c.dir))
		return FallbackKnowledge
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			c.logger.Warn("failed to read knowledge file", slog.String("file", name), slog.Any("error", err))
			continue
		}
		fmt.Fprintf(&b, "\n\n--- Source: %s ---\n%s", name, content)
	}
	c.logger.Info("knowledge corpus loaded", slog.Int("files", len(names)), slog.Int("bytes", b.Len()))
	return b.String()
}

// Material is one entry of the course materials index.
type Material struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
	URL     string `json:"url"`
}

// loadMaterials summarizes the materials index. A missing or malformed
// index contributes nothing.
func (c *Corpus) loadMaterials() string {
	if c.materialsPath == "" {
		return ""
	}

	data, err := os.ReadFile(c.materialsPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("failed to read materials index", slog.String("path", c.materialsPath), slog.Any("error", err))
		}
		return ""
	}

	var materials []Material
	if err := json.Unmarshal(data, &materials); err != nil {
		c.logger.Warn("failed to parse materials index", slog.String("path", c.materialsPath), slog.Any("error", err))
		return ""
	}
	return summarizeMaterials(materials)
}

func summarizeMaterials(materials []Material) string {
	if len(materials) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n**AVAILABLE COURSE MATERIALS / NOTES:**\n")
	for i, m := range materials {
		if i >= maxMaterials {
			break
		}
		title, subject, url := m.Title, m.Subject, m.URL
		if title == "" {
			title = "Untitled"
		}
		if subject == "" {
			subject = "General"
		}
		if url == "" {
			url = "#"
		}
		fmt.Fprintf(&b, "- [%s] %s (Link: %s)\n", subject, title, url)
	}
	return b.String()
}
