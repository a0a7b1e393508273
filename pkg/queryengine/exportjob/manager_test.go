package exportjob

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackcore/queryengine/pkg/queryengine/export"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
)

type fakeIterator struct {
	rows []map[string]interface{}
	pos  int
}

func (f *fakeIterator) Next() (map[string]interface{}, bool, error) {
	if f.pos >= len(f.rows) {
		return nil, false, nil
	}
	row := f.rows[f.pos]
	f.pos++
	return row, true, nil
}

func rows(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"id": i}
	}
	return out
}

func waitFor(t *testing.T, m *Manager, jobID string, want model.ExportStatus) model.ExportJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, ok := m.Get(jobID)
		require.True(t, ok)
		if job.Status == want || job.Status.IsTerminal() {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach terminal state", jobID)
	return model.ExportJob{}
}

func TestCreateRunsJobToCompletion(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{MaxConcurrent: 2, ExportDir: dir})

	jobID, err := m.Create(context.Background(), CreateRequest{
		Format:   export.FormatCSV,
		Filename: "out.csv",
	}, func(ctx context.Context) (export.RecordIterator, error) {
		return &fakeIterator{rows: rows(5)}, nil
	})
	require.NoError(t, err)

	job := waitFor(t, m, jobID, model.ExportCompleted)
	assert.Equal(t, model.ExportCompleted, job.Status)
	assert.Equal(t, filepath.Join(dir, "out.csv"), filepath.Join(dir, job.OutputPath))
}

func TestTemplateOptionsAreOverriddenByRequest(t *testing.T) {
	m := New(Config{MaxConcurrent: 1, ExportDir: t.TempDir()})
	m.RegisterTemplate("weekly", Template{
		Format:  export.FormatCSV,
		Options: export.Options{ChunkSize: 500},
	})

	format, filename, opts := m.resolved(CreateRequest{
		Template: "weekly",
		Filename: "custom.csv",
		Options:  export.Options{ChunkSize: 50},
	})

	assert.Equal(t, export.FormatCSV, format)
	assert.Equal(t, "custom.csv", filename)
	assert.Equal(t, 50, opts.ChunkSize)
}

func TestCancelStopsRunningJob(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{MaxConcurrent: 1, ExportDir: dir})

	block := make(chan struct{})
	jobID, err := m.Create(context.Background(), CreateRequest{
		Format:   export.FormatJSONL,
		Filename: "slow.jsonl",
	}, func(ctx context.Context) (export.RecordIterator, error) {
		return &blockingIterator{ctx: ctx, release: block}, nil
	})
	require.NoError(t, err)

	require.NoError(t, m.Cancel(jobID))
	close(block)

	job := waitFor(t, m, jobID, model.ExportCancelled)
	assert.Equal(t, model.ExportCancelled, job.Status)
	assert.NoFileExists(t, filepath.Join(dir, "slow.jsonl"))
}

type blockingIterator struct {
	ctx     context.Context
	release chan struct{}
	served  bool
}

func (b *blockingIterator) Next() (map[string]interface{}, bool, error) {
	if b.served {
		return nil, false, nil
	}
	select {
	case <-b.ctx.Done():
		return nil, false, b.ctx.Err()
	case <-b.release:
		b.served = true
		return map[string]interface{}{"id": 1}, true, nil
	}
}

func TestSweepRemovesExpiredTerminalJobs(t *testing.T) {
	dir := t.TempDir()
	m := New(Config{MaxConcurrent: 1, ExportDir: dir, Retention: time.Millisecond})

	jobID, err := m.Create(context.Background(), CreateRequest{
		Format:   export.FormatCSV,
		Filename: "expiring.csv",
	}, func(ctx context.Context) (export.RecordIterator, error) {
		return &fakeIterator{rows: rows(1)}, nil
	})
	require.NoError(t, err)
	waitFor(t, m, jobID, model.ExportCompleted)

	time.Sleep(5 * time.Millisecond)
	removed := m.Sweep()
	assert.Equal(t, 1, removed)

	_, ok := m.Get(jobID)
	assert.False(t, ok)
}
