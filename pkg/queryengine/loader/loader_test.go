package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadBareList(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "people.json", `[{"dept":"Eng"},{"id":"p2","dept":"Sales"}]`)

	l := New(dir)
	recs, err := l.Load("people")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "people_0", recs[0].ID)
	assert.Equal(t, "p2", recs[1].ID)
}

func TestLoadWrapperKeyPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"items":[{"id":"1"}],"results":[{"id":"2"}]}`)
	writeFile(t, dir, "b.json", `{"results":[{"id":"3"}],"data":[{"id":"4"}]}`)

	l := New(dir)
	recA, err := l.Load("a")
	require.NoError(t, err)
	require.Len(t, recA, 1)
	assert.Equal(t, "1", recA[0].ID)

	recB, err := l.Load("b")
	require.NoError(t, err)
	require.Len(t, recB, 1)
	assert.Equal(t, "3", recB[0].ID)
}

func TestLoadMissingDatabase(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)
	_, err := l.Load("ghost")
	require.Error(t, err)
	assert.True(t, qerr.IsDatabaseNotFound(err))
}

func TestLoadMalformedShape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.json", `{"unexpected": 1}`)
	l := New(dir)
	_, err := l.Load("bad")
	require.Error(t, err)
	assert.True(t, qerr.IsBadDatabaseShape(err))
}

func TestLoadCaseInsensitiveFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "People_Contacts.json", `[{"id":"1"}]`)
	l := New(dir)
	recs, err := l.Load("people_contacts")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestLoadCachesUntilMtimeAdvances(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "people.json")
	writeFile(t, dir, "people.json", `[{"id":"1"}]`)

	l := New(dir)
	first, err := l.Load("people")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Rewrite without the loader knowing; cache should win since mtime is
	// forced to stay identical via os.Chtimes.
	info, _ := os.Stat(path)
	writeFile(t, dir, "people.json", `[{"id":"1"},{"id":"2"}]`)
	require.NoError(t, os.Chtimes(path, info.ModTime(), info.ModTime()))

	cached, err := l.Load("people")
	require.NoError(t, err)
	assert.Len(t, cached, 1, "stale mtime should still serve the cached copy")

	// Advance mtime and expect a reload.
	future := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(path, future, future))

	reloaded, err := l.Load("people")
	require.NoError(t, err)
	assert.Len(t, reloaded, 2)
}
