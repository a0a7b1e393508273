package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/blackcore/queryengine/pkg/storage"
)

// FailedJobRecord is the on-disk shape of one permanently-failed job,
// persisted as a JSON line rather than a database row.
type FailedJobRecord struct {
	JobType  string    `json:"job_type"`
	Payload  string    `json:"payload"`
	Error    string    `json:"error"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

// failedJobPath is the optional storage path for persisting failed jobs.
// Set via UsePersistence() — empty means in-memory only.
var failedJobPath string

// UsePersistence configures the queue to append failed jobs, one JSON
// line per record, to path on the default storage disk.
//
//	queue.UsePersistence("queue/failed_jobs.jsonl")
func UsePersistence(path string) {
	failedJobPath = path
}

// persistFailed writes a failed job record to storage (if configured) and
// also appends to the in-memory slice as a fallback.
func (m *Manager) persistFailed(job Job, typeName string, lastErr error, attempts int) {
	m.mu.Lock()
	m.failed = append(m.failed, FailedJob{
		Job: job, Err: lastErr, FailedAt: time.Now(), Attempts: attempts,
	})
	m.mu.Unlock()

	if failedJobPath == "" {
		return
	}

	payload, err := json.Marshal(job)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error": "could not marshal: %v"}`, err))
	}

	rec := FailedJobRecord{
		JobType:  typeName,
		Payload:  string(payload),
		Error:    lastErr.Error(),
		Attempts: attempts,
		FailedAt: time.Now(),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		fmt.Printf("queue: failed to marshal failed-job record for %s: %v\n", typeName, err)
		return
	}
	line = append(line, '\n')

	existing, _ := storage.Get(failedJobPath)
	if err := storage.Put(failedJobPath, append(existing, line...)); err != nil {
		// Non-fatal — the in-memory slice still has it.
		fmt.Printf("queue: failed to persist failed job %s: %v\n", typeName, err)
	}
}
