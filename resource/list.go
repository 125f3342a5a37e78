package resource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-ivi/ivierr"
	"github.com/arloliu/go-ivi/logger"
)

var (
	// ErrNotFound is returned when a name or alias is not in the list.
	ErrNotFound = ivierr.New("resource: not found", ivierr.ErrConfiguration)
	// ErrDuplicateAlias is returned when an alias is already used by another entry.
	ErrDuplicateAlias = ivierr.New("resource: duplicate alias", ivierr.ErrConfiguration)
)

// BackupSuffix is appended to the list path by Backup and Restore when no path is given.
const BackupSuffix = ".bak"

// PollInterval is the modification check interval used when file notifications are unavailable.
const PollInterval = 500 * time.Millisecond

// Entry is one persisted resource.
type Entry struct {
	Name        string `yaml:"name"`
	Alias       string `yaml:"alias,omitempty"`
	Description string `yaml:"description,omitempty"`
}

type listFile struct {
	Resources []Entry `yaml:"resources"`
}

// List is the persisted list of known resources, stored as a YAML file.
// Names and aliases are compared case-insensitively.
type List struct {
	path   string
	logger logger.Logger

	mu      sync.RWMutex
	entries []Entry
}

// NewList creates an empty list bound to path. Call Load to read the file.
func NewList(path string, l logger.Logger) *List {
	if l == nil {
		l = logger.GetLogger()
	}

	return &List{path: path, logger: l.With("resource_list", path)}
}

// Path returns the file path.
func (l *List) Path() string {
	return l.path
}

// Load replaces the entries with the file content. A missing file yields an empty list.
func (l *List) Load() error {
	entries, err := readList(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.set(nil)
			return nil
		}

		return err
	}
	l.set(entries)

	return nil
}

// Save writes the entries to the file, replacing it atomically.
func (l *List) Save() error {
	l.mu.RLock()
	data, err := yaml.Marshal(listFile{Resources: l.entries})
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("resource: encode list: %w", err)
	}

	return writeFileAtomic(l.path, data)
}

// Add validates name and appends an entry. It reports false when the name is already listed.
func (l *List) Add(e Entry) (bool, error) {
	n, err := Parse(e.Name)
	if err != nil {
		return false, err
	}
	e.Name = n.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexLocked(e.Name) >= 0 {
		return false, nil
	}
	if e.Alias != "" && l.indexLocked(e.Alias) >= 0 {
		return false, fmt.Errorf("%w: %s", ErrDuplicateAlias, e.Alias)
	}
	l.entries = append(l.entries, e)

	return true, nil
}

// Remove deletes the entry with the given name or alias.
func (l *List) Remove(nameOrAlias string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexLocked(nameOrAlias)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, nameOrAlias)
	}
	l.entries = append(l.entries[:idx], l.entries[idx+1:]...)

	return nil
}

// Contains reports whether the name or alias is listed.
func (l *List) Contains(nameOrAlias string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.indexLocked(nameOrAlias) >= 0
}

// Resolve returns the resource name for a name or alias.
func (l *List) Resolve(nameOrAlias string) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx := l.indexLocked(nameOrAlias)
	if idx < 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, nameOrAlias)
	}

	return l.entries[idx].Name, nil
}

// Entries returns a copy of the entries in file order.
func (l *List) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]Entry(nil), l.entries...)
}

// Names returns the sorted resource names matching the VISA search expression.
// An empty filter matches every name.
func (l *List) Names(filter string) ([]string, error) {
	if filter == "" {
		filter = "?*"
	}
	re, err := CompileFilter(filter)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	names := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		if re.MatchString(e.Name) {
			names = append(names, e.Name)
		}
	}
	l.mu.RUnlock()
	sort.Strings(names)

	return names, nil
}

// Backup copies the saved file to dst, or to the list path plus BackupSuffix when dst is empty.
func (l *List) Backup(dst string) error {
	if dst == "" {
		dst = l.path + BackupSuffix
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("resource: backup: %w", err)
	}

	return writeFileAtomic(dst, data)
}

// Restore loads src, or the default backup when src is empty, and saves it as the list.
func (l *List) Restore(src string) error {
	if src == "" {
		src = l.path + BackupSuffix
	}

	entries, err := readList(src)
	if err != nil {
		return fmt.Errorf("resource: restore: %w", err)
	}
	l.set(entries)

	return l.Save()
}

// Watch reloads the list whenever the file changes on disk and calls fn with the new
// entries. It blocks until ctx is done. File notifications are used when available,
// otherwise the modification time is polled.
func (l *List) Watch(ctx context.Context, fn func([]Entry)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.logger.Warn("file notifications unavailable, polling", "error", err)
		return l.watchPolling(ctx, fn)
	}
	defer watcher.Close()

	// watch the directory so that atomic replacements are seen
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		l.logger.Warn("cannot watch directory, polling", "error", err)
		return l.watchPolling(ctx, fn)
	}

	base := filepath.Base(l.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			l.reload(fn)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Warn("watch error", "error", err)
		}
	}
}

func (l *List) watchPolling(ctx context.Context, fn func([]Entry)) error {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last time.Time
	if info, err := os.Stat(l.path); err == nil {
		last = info.ModTime()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			info, err := os.Stat(l.path)
			if err != nil || !info.ModTime().After(last) {
				continue
			}
			last = info.ModTime()
			l.reload(fn)
		}
	}
}

func (l *List) reload(fn func([]Entry)) {
	entries, err := readList(l.path)
	if err != nil {
		// partially written files are picked up by the next event
		l.logger.Debug("reload skipped", "error", err)
		return
	}

	l.mu.Lock()
	changed := !equalEntries(l.entries, entries)
	l.entries = entries
	l.mu.Unlock()

	if changed && fn != nil {
		l.logger.Info("resource list reloaded", "count", len(entries))
		fn(append([]Entry(nil), entries...))
	}
}

func (l *List) set(entries []Entry) {
	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
}

// indexLocked must be called with mu held.
func (l *List) indexLocked(nameOrAlias string) int {
	key := strings.TrimSpace(nameOrAlias)
	for i, e := range l.entries {
		if strings.EqualFold(e.Name, key) || (e.Alias != "" && strings.EqualFold(e.Alias, key)) {
			return i
		}
	}

	return -1
}

func readList(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var f listFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("resource: decode %s: %w", path, err)
	}

	for i, e := range f.Resources {
		n, err := Parse(e.Name)
		if err != nil {
			return nil, fmt.Errorf("resource: %s entry %d: %w", path, i, err)
		}
		f.Resources[i].Name = n.String()
	}

	return f.Resources, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("resource: write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("resource: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("resource: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("resource: write %s: %w", path, err)
	}

	return nil
}

func equalEntries(a, b []Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
