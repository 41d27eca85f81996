// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package skill

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Registry walks a root directory tree for SKILL.md bundles and exposes
// search-by-substring and retrieval-by-name, per spec §4.J. It is safe for
// concurrent use.
type Registry struct {
	root   string
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]*Entry

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRegistry creates an empty registry rooted at root. Call Discover to
// populate it.
func NewRegistry(root string) *Registry {
	return &Registry{
		root:   root,
		logger: slog.Default().With("component", "skill"),
		byName: make(map[string]*Entry),
	}
}

// Discover walks root and (re)loads every SKILL.md found, replacing the
// prior contents of the registry wholesale — a removed directory's skill
// disappears, a changed one is re-parsed.
func (r *Registry) Discover() error {
	found := make(map[string]*Entry)

	err := filepath.WalkDir(r.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// A removed directory mid-walk is not fatal to discovery of the
			// rest of the tree.
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if _, statErr := os.Stat(filepath.Join(path, Filename)); statErr != nil {
			return nil
		}
		entry, parseErr := ParseFile(path)
		if parseErr != nil {
			r.logger.Warn("skill: skipping invalid SKILL.md", "path", path, "error", parseErr)
			return nil
		}
		found[entry.Name] = entry
		return nil
	})
	if err != nil {
		return fmt.Errorf("skill: walk %s: %w", r.root, err)
	}

	r.mu.Lock()
	r.byName = found
	r.mu.Unlock()

	r.logger.Info("skill: discovered", "count", len(found))
	return nil
}

// Get retrieves a skill by its exact name.
func (r *Registry) Get(name string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// Search returns every skill whose name or description contains substr,
// case-insensitively, sorted by name.
func (r *Registry) Search(substr string) []*Entry {
	needle := strings.ToLower(substr)
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, e := range r.byName {
		if strings.Contains(strings.ToLower(e.Name), needle) || strings.Contains(strings.ToLower(e.Description), needle) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns every discovered skill, sorted by name.
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, 0, len(r.byName))
	for _, e := range r.byName {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Register inserts entry directly, used by Evolve to add a
// sandbox-validated dynamic skill without a fresh filesystem walk.
func (r *Registry) Register(entry *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[entry.Name] = entry
}

// Watch starts an fsnotify watcher on root (debounced) that re-runs
// Discover on any create/write/remove/rename, matching the teacher's
// skill-manager hot-reload behavior. Call Close to stop it.
func (r *Registry) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("skill: create watcher: %w", err)
	}
	if err := addRecursive(w, r.root); err != nil {
		w.Close()
		return fmt.Errorf("skill: watch %s: %w", r.root, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	r.watcher = w
	r.cancel = cancel

	r.wg.Add(1)
	go r.watchLoop(watchCtx, debounce)
	return nil
}

// Close stops the watcher started by Watch, if any.
func (r *Registry) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	if r.watcher != nil {
		_ = r.watcher.Close()
	}
	r.wg.Wait()
	return nil
}

func (r *Registry) watchLoop(ctx context.Context, debounce time.Duration) {
	defer r.wg.Done()
	var mu sync.Mutex
	var timer *time.Timer
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			if err := r.Discover(); err != nil {
				r.logger.Warn("skill: watch-triggered discovery failed", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("skill: watch error", "error", err)
		}
	}
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
