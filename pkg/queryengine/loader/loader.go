// Package loader reads JSON-backed databases from a record store
// directory, normalizes them to lists of records, and caches each file's
// contents until its mtime advances.
package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/record"
)

// mmapThreshold is the file-size cutoff above which Loader decodes through a
// json.Decoder reading from the open file instead of reading the whole file
// into a byte slice first (§4.1: "≈10 MB"). The decoded document is still
// held in memory whole.
const mmapThreshold = 10 * 1024 * 1024

type cacheEntry struct {
	modTime int64
	records []record.Record
}

// Loader reads and caches databases from a directory of JSON files. One
// Loader instance is shared process-wide; its cache is read-mostly and
// safe for concurrent use.
type Loader struct {
	dir string

	mu      sync.RWMutex
	cache   map[string]*cacheEntry
	refresh map[string]*sync.Mutex // per-database serialization for refresh
}

// New returns a Loader rooted at dir.
func New(dir string) *Loader {
	return &Loader{
		dir:     dir,
		cache:   make(map[string]*cacheEntry),
		refresh: make(map[string]*sync.Mutex),
	}
}

// Load returns name's records, reusing the cached copy when the backing
// file's mtime has not advanced.
func (l *Loader) Load(name string) ([]record.Record, error) {
	path, info, err := l.resolve(name)
	if err != nil {
		return nil, err
	}

	mtime := info.ModTime().UnixNano()

	l.mu.RLock()
	entry, ok := l.cache[name]
	l.mu.RUnlock()
	if ok && entry.modTime == mtime {
		return entry.records, nil
	}

	return l.reload(name, path, mtime)
}

// Refresh forces a re-read of name (or every cached database, if name is
// empty), regardless of mtime.
func (l *Loader) Refresh(name string) error {
	if name == "" {
		l.mu.RLock()
		names := make([]string, 0, len(l.cache))
		for n := range l.cache {
			names = append(names, n)
		}
		l.mu.RUnlock()

		for _, n := range names {
			if err := l.Refresh(n); err != nil {
				return err
			}
		}
		return nil
	}

	path, info, err := l.resolve(name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	delete(l.cache, name) // reload reuses an entry with the same mtime
	l.mu.Unlock()
	_, err = l.reload(name, path, info.ModTime().UnixNano())
	return err
}

// AvailableDatabases lists the database names discoverable in the record
// store directory (one per JSON file, by file stem).
func (l *Loader) AvailableDatabases() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, qerr.Wrap(qerr.DatabaseNotFound, "loader.AvailableDatabases", "cannot read record store directory", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())))
	}
	return names, nil
}

func (l *Loader) reload(name, path string, mtime int64) ([]record.Record, error) {
	lock := l.refreshLock(name)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	l.mu.RLock()
	entry, ok := l.cache[name]
	l.mu.RUnlock()
	if ok && entry.modTime == mtime {
		return entry.records, nil
	}

	recs, err := l.readFile(name, path)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[name] = &cacheEntry{modTime: mtime, records: recs}
	l.mu.Unlock()

	return recs, nil
}

func (l *Loader) refreshLock(name string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.refresh[name]
	if !ok {
		lock = &sync.Mutex{}
		l.refresh[name] = lock
	}
	return lock
}

// resolve maps a database name to a file path, trying an exact match
// first and falling back to a case-insensitive scan of the directory.
func (l *Loader) resolve(name string) (string, os.FileInfo, error) {
	exact := filepath.Join(l.dir, name+".json")
	if info, err := os.Stat(exact); err == nil {
		return exact, info, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", nil, qerr.Wrap(qerr.DatabaseNotFound, "loader.resolve", fmt.Sprintf("database %q not found", name), err)
	}

	lowerTarget := strings.ToLower(name + ".json")
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.ToLower(e.Name()) == lowerTarget {
			path := filepath.Join(l.dir, e.Name())
			info, statErr := os.Stat(path)
			if statErr != nil {
				return "", nil, qerr.Wrap(qerr.DatabaseNotFound, "loader.resolve", fmt.Sprintf("database %q not found", name), statErr)
			}
			return path, info, nil
		}
	}

	return "", nil, qerr.New(qerr.DatabaseNotFound, "loader.resolve", fmt.Sprintf("database %q not found", name))
}

func (l *Loader) readFile(name, path string) ([]record.Record, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, qerr.Wrap(qerr.DatabaseNotFound, "loader.readFile", fmt.Sprintf("database %q not found", name), err)
	}

	var raw interface{}
	if info.Size() > mmapThreshold {
		raw, err = decodeStreaming(path)
	} else {
		raw, err = decodeWhole(path)
	}
	if err != nil {
		return nil, qerr.Wrap(qerr.BadDatabaseShape, "loader.readFile", fmt.Sprintf("database %q is malformed JSON", name), err)
	}

	items, err := unwrapList(raw)
	if err != nil {
		return nil, qerr.Wrap(qerr.BadDatabaseShape, "loader.readFile", fmt.Sprintf("database %q is neither a list nor {items|results|data: list}", name), err)
	}

	records := make([]record.Record, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, qerr.New(qerr.BadDatabaseShape, "loader.readFile", fmt.Sprintf("database %q: element %d is not an object", name, i))
		}
		fallbackID := fmt.Sprintf("%s_%s", name, strconv.Itoa(i))
		records = append(records, record.FromMap(obj, name, fallbackID))
	}

	return records, nil
}

func decodeWhole(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeStreaming(path string) (interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	var v interface{}
	if err := dec.Decode(&v); err != nil && err != io.EOF {
		return nil, err
	}
	return v, nil
}

// unwrapList accepts a bare array or an object exposing the list under
// "items", "results", or "data" — in that precedence order, the resolution
// this loader picked for the unspecified-precedence open question.
func unwrapList(raw interface{}) ([]interface{}, error) {
	switch v := raw.(type) {
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		for _, key := range []string{"items", "results", "data"} {
			if wrapped, ok := v[key]; ok {
				list, ok := wrapped.([]interface{})
				if !ok {
					return nil, fmt.Errorf("%q is not a list", key)
				}
				return list, nil
			}
		}
		return nil, fmt.Errorf("object has none of items/results/data")
	default:
		return nil, fmt.Errorf("top-level value is neither a list nor an object")
	}
}
