// Package exportjob manages asynchronous export jobs: creation, bounded
// concurrency, progress tracking, cooperative cancellation, and TTL-based
// cleanup of finished artifacts (§4.10).
package exportjob

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blackcore/queryengine/pkg/logger"
	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/export"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/storage"
	"github.com/blackcore/queryengine/pkg/workerpool"
)

// Template is a named, reusable export configuration. Options passed on a
// create request override the template's, field by field.
type Template struct {
	Format   export.Format
	Filename string
	Options  export.Options
}

// IteratorFactory produces the row stream for a job. It is invoked on the
// worker goroutine, not at submission time, so the caller's query can stay
// lazy until a worker slot actually opens up.
type IteratorFactory func(ctx context.Context) (export.RecordIterator, error)

// Manager tracks export jobs end to end: Create enqueues work onto a
// bounded workerpool.Pool, each job updates its own model.ExportJob entry
// as it progresses, and a periodic sweep deletes artifacts past their TTL.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*jobState

	templates map[string]Template

	pool *workerpool.Pool
	disk storage.Disk

	exportDir      string
	retention      time.Duration
	progressEveryN int64
}

type jobState struct {
	job    model.ExportJob
	cancel context.CancelFunc
}

// Config configures a Manager at construction time.
type Config struct {
	MaxConcurrent int
	ExportDir     string
	Disk          storage.Disk
	Retention     time.Duration
}

func New(cfg Config) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Manager{
		jobs:           make(map[string]*jobState),
		templates:      make(map[string]Template),
		pool:           workerpool.New(cfg.MaxConcurrent),
		disk:           cfg.Disk,
		exportDir:      cfg.ExportDir,
		retention:      cfg.Retention,
		progressEveryN: 1000,
	}
}

// RegisterTemplate stores a named export configuration for later reuse.
func (m *Manager) RegisterTemplate(name string, t Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[name] = t
}

// CreateRequest is the create() input of §4.10.
type CreateRequest struct {
	Format   export.Format
	Filename string
	Template string
	Options  export.Options
}

// resolved merges a named template (if any) with the request, request
// fields taking precedence field by field.
func (m *Manager) resolved(req CreateRequest) (export.Format, string, export.Options) {
	format, filename, opts := req.Format, req.Filename, req.Options

	if req.Template != "" {
		m.mu.RLock()
		tmpl, ok := m.templates[req.Template]
		m.mu.RUnlock()
		if ok {
			if format == "" {
				format = tmpl.Format
			}
			if filename == "" {
				filename = tmpl.Filename
			}
			opts = mergeOptions(tmpl.Options, opts)
		}
	}
	return format, filename, opts
}

// mergeOptions lets a zero-valued request field fall back to the
// template's; a non-zero request field always wins.
func mergeOptions(base, override export.Options) export.Options {
	out := base
	if override.ChunkSize != 0 {
		out.ChunkSize = override.ChunkSize
	}
	if override.NoHeader {
		out.NoHeader = override.NoHeader
	}
	if override.Pretty {
		out.Pretty = override.Pretty
	}
	if override.Delimiter != 0 {
		out.Delimiter = override.Delimiter
	}
	if override.Compression != "" {
		out.Compression = override.Compression
	}
	return out
}

// Create registers a new job and submits it to the worker pool. It returns
// immediately with a job id; the caller polls Get for completion.
func (m *Manager) Create(ctx context.Context, req CreateRequest, makeIterator IteratorFactory) (string, error) {
	format, filename, opts := m.resolved(req)
	if format == "" {
		return "", qerr.New(qerr.ExportFailed, "exportjob.Create", "format is required")
	}
	if filename == "" {
		filename = fmt.Sprintf("export-%s.%s", uuid.NewString(), format)
	}

	jobID := uuid.NewString()
	jobCtx, cancel := context.WithCancel(context.Background())

	job := model.ExportJob{
		JobID:      jobID,
		Format:     string(format),
		OutputPath: filename,
		Status:     model.ExportPending,
		CreatedAt:  time.Now(),
		ExpiresAt:  time.Now().Add(m.retention),
	}

	m.mu.Lock()
	m.jobs[jobID] = &jobState{job: job, cancel: cancel}
	m.mu.Unlock()

	submitErr := m.pool.Submit(func() {
		m.run(jobCtx, jobID, format, filename, opts, makeIterator)
	})
	if submitErr != nil {
		m.mu.Lock()
		st := m.jobs[jobID]
		st.job.Status = model.ExportFailed
		st.job.ErrorMessage = submitErr.Error()
		m.mu.Unlock()
		cancel()
		return jobID, qerr.Wrap(qerr.ExportFailed, "exportjob.Create", "submitting to pool", submitErr)
	}

	return jobID, nil
}

func (m *Manager) run(ctx context.Context, jobID string, format export.Format, filename string, opts export.Options, makeIterator IteratorFactory) {
	log := logger.L.With("job_id", jobID, "format", format)

	m.setStatus(jobID, model.ExportRunning, func(j *model.ExportJob) {
		now := time.Now()
		j.StartedAt = &now
	})

	iter, err := makeIterator(ctx)
	if err != nil {
		m.fail(jobID, err)
		log.Error("exportjob: building iterator failed", "error", err)
		return
	}

	path := m.artifactPath(filename)

	cancelAware := &cancellationIterator{ctx: ctx, inner: iter}

	onProgress := func(rows, bytes int64) {
		if rows%m.progressEveryN != 0 {
			return
		}
		m.mu.Lock()
		if st, ok := m.jobs[jobID]; ok {
			st.job.Progress = model.ExportProgress{RowsProcessed: rows, BytesWritten: bytes, LastUpdate: time.Now()}
		}
		m.mu.Unlock()
	}

	if err := export.Write(cancelAware, format, path, opts, onProgress); err != nil {
		if ctx.Err() != nil {
			m.deletePartial(path)
			m.setStatus(jobID, model.ExportCancelled, nil)
			log.Warn("exportjob: cancelled")
			return
		}
		m.fail(jobID, err)
		log.Error("exportjob: write failed", "error", err)
		return
	}

	m.setStatus(jobID, model.ExportCompleted, func(j *model.ExportJob) {
		now := time.Now()
		j.CompletedAt = &now
	})
	log.Debug("exportjob: completed")
}

// artifactPath resolves a job's output filename against the configured
// export directory, the way run() lays the file out on disk.
func (m *Manager) artifactPath(filename string) string {
	if m.exportDir == "" {
		return filename
	}
	return m.exportDir + "/" + filename
}

// deletePartial removes whatever the writer managed to flush before
// cancellation (or whatever Sweep found past its TTL), so a job never
// leaves an artifact behind once it is no longer completed (§8: "the
// artifact file exists iff status is completed"). Writers create their
// output file directly via os.Create on the local filesystem, so that is
// where removal must happen regardless of whether a storage.Disk is
// configured; the Disk, when present, is also given a chance in case it
// mirrors the artifact to a remote backend.
func (m *Manager) deletePartial(path string) {
	if m.disk != nil && m.disk.Exists(path) {
		_ = m.disk.Delete(path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("exportjob: failed to remove artifact from disk", "path", path, "error", err)
	}
}

func (m *Manager) fail(jobID string, err error) {
	m.setStatus(jobID, model.ExportFailed, func(j *model.ExportJob) {
		j.ErrorMessage = err.Error()
		now := time.Now()
		j.CompletedAt = &now
	})
}

func (m *Manager) setStatus(jobID string, status model.ExportStatus, mutate func(*model.ExportJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[jobID]
	if !ok {
		return
	}
	st.job.Status = status
	if mutate != nil {
		mutate(&st.job)
	}
}

// Get returns the current snapshot of a job's state.
func (m *Manager) Get(jobID string) (model.ExportJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.jobs[jobID]
	if !ok {
		return model.ExportJob{}, false
	}
	return st.job, true
}

// Cancel requests cooperative cancellation of a running job. It is a
// no-op if the job is already terminal.
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.jobs[jobID]
	if !ok {
		return qerr.New(qerr.ExportFailed, "exportjob.Cancel", "unknown job id: "+jobID)
	}
	if st.job.Status.IsTerminal() {
		return nil
	}
	st.cancel()
	return nil
}

// Sweep deletes artifacts (and forgets the in-memory job record) for every
// terminal job past its ExpiresAt. Intended to run on an hourly schedule.
func (m *Manager) Sweep() int {
	now := time.Now()
	var toDelete []string

	m.mu.Lock()
	for id, st := range m.jobs {
		if st.job.Status.IsTerminal() && now.After(st.job.ExpiresAt) {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		path := m.artifactPath(m.jobs[id].job.OutputPath)
		delete(m.jobs, id)
		m.deletePartial(path)
	}
	m.mu.Unlock()

	return len(toDelete)
}

// Shutdown stops accepting new jobs and waits for in-flight ones to drain.
func (m *Manager) Shutdown() {
	m.pool.Shutdown()
}

// cancellationIterator wraps a RecordIterator so a cancelled context stops
// the export writer on the next row instead of running it to completion.
type cancellationIterator struct {
	ctx   context.Context
	inner export.RecordIterator
}

func (c *cancellationIterator) Next() (map[string]interface{}, bool, error) {
	if err := c.ctx.Err(); err != nil {
		return nil, false, err
	}
	return c.inner.Next()
}
