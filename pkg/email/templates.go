package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var builtinTemplates embed.FS

// Template names.
const (
	TemplateReset      = "reset"
	TemplateInvitation = "invitation"
)

// TemplateData is what the account email templates render with.
type TemplateData struct {
	Name string
	Link string
}

// TemplateStore holds the parsed email templates. Built-ins ship embedded;
// files named <name>.html in the override directory replace them, and the
// watcher re-parses on every change so copy edits land without a restart.
type TemplateStore struct {
	overrideDir string
	logger      *logrus.Logger
	watcher     *fsnotify.Watcher

	mu        sync.RWMutex
	templates map[string]*template.Template
}

// NewTemplateStore parses the embedded templates, applies overrides from
// overrideDir (empty to disable) and starts the change watcher.
func NewTemplateStore(overrideDir string, logger *logrus.Logger) (*TemplateStore, error) {
	s := &TemplateStore{
		overrideDir: overrideDir,
		logger:      logger,
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}

	if overrideDir != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create template watcher: %w", err)
		}
		if err := watcher.Add(overrideDir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", overrideDir, err)
		}
		s.watcher = watcher
		go s.watch()
	}

	return s, nil
}

// Reload re-parses the embedded templates and any overrides.
func (s *TemplateStore) Reload() error {
	templates := make(map[string]*template.Template)

	entries, err := builtinTemplates.ReadDir("templates")
	if err != nil {
		return fmt.Errorf("failed to read embedded templates: %w", err)
	}
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".html")
		raw, err := builtinTemplates.ReadFile("templates/" + entry.Name())
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Parse(string(raw))
		if err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}

	if s.overrideDir != "" {
		for name := range templates {
			path := filepath.Join(s.overrideDir, name+".html")
			raw, err := os.ReadFile(path)
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read override %s: %w", path, err)
			}
			tmpl, err := template.New(name).Parse(string(raw))
			if err != nil {
				// A broken override must not take the built-in down.
				s.logger.WithError(err).WithField("template", name).
					Warn("ignoring invalid template override")
				continue
			}
			templates[name] = tmpl
		}
	}

	s.mu.Lock()
	s.templates = templates
	s.mu.Unlock()
	return nil
}

func (s *TemplateStore) watch() {
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.WithError(err).Warn("template reload failed")
				continue
			}
			s.logger.WithField("file", event.Name).Info("email templates reloaded")
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.WithError(err).Warn("template watcher error")
		}
	}
}

// Render executes the named template.
func (s *TemplateStore) Render(name string, data TemplateData) (string, error) {
	s.mu.RLock()
	tmpl, ok := s.templates[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Close stops the override watcher.
func (s *TemplateStore) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
