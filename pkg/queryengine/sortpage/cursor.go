package sortpage

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/blackcore/queryengine/pkg/qerr"
	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
)

// cursorKey is one (field, value) pair of the sort-key tuple at a
// pagination boundary, encoded as the Open Question resolution: a base64
// JSON envelope plus a checksum, so a tampered or foreign cursor decodes
// to BadCursor rather than silently mis-seeking.
type cursorKey struct {
	Field string `json:"field"`
	Value string `json:"value"`
	Null  bool   `json:"null"`
}

type cursorEnvelope struct {
	Keys     []cursorKey `json:"keys"`
	Checksum string      `json:"checksum"`
}

func checksum(keys []cursorKey) string {
	h := sha256.New()
	for _, k := range keys {
		fmt.Fprintf(h, "%s|%s|%v;", k.Field, k.Value, k.Null)
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))[:16]
}

func encodeCursor(rec record.Record, sortFields []model.SortField) (string, error) {
	keys := make([]cursorKey, len(sortFields))
	for i, sf := range sortFields {
		v := rec.Resolve(strings.Split(sf.Field, "."))
		keys[i] = cursorKey{Field: sf.Field, Value: v.AsString(), Null: v.IsNull()}
	}

	env := cursorEnvelope{Keys: keys, Checksum: checksum(keys)}
	data, err := json.Marshal(env)
	if err != nil {
		return "", qerr.Wrap(qerr.BadCursor, "sortpage.encodeCursor", "failed to encode cursor", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

func decodeCursor(cursor string) (cursorEnvelope, error) {
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return cursorEnvelope{}, qerr.Wrap(qerr.BadCursor, "sortpage.decodeCursor", "malformed cursor encoding", err)
	}

	var env cursorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return cursorEnvelope{}, qerr.Wrap(qerr.BadCursor, "sortpage.decodeCursor", "malformed cursor payload", err)
	}

	if checksum(env.Keys) != env.Checksum {
		return cursorEnvelope{}, qerr.New(qerr.BadCursor, "sortpage.decodeCursor", "cursor checksum mismatch")
	}
	return env, nil
}

// boundaryIndex returns the index of the first record at or after the
// cursor's key tuple (the cursor holds the first record of the page it
// opens), via binary search under the same comparator sorting used to
// produce the cursor.
func boundaryIndex(sorted []record.Record, env cursorEnvelope, sortFields []model.SortField) (int, error) {
	if len(env.Keys) != len(sortFields) {
		return 0, qerr.New(qerr.BadCursor, "sortpage.boundaryIndex", "cursor does not match the requested sort order")
	}

	cmp := comparator(sortFields)
	target := cursorToRecord(env, sortFields)

	idx := sort.Search(len(sorted), func(i int) bool { return cmp(sorted[i], target) >= 0 })
	return idx, nil
}

// cursorToRecord builds a synthetic record exposing exactly the sort
// fields' values, so the shared comparator can be reused for the binary
// search boundary lookup.
func cursorToRecord(env cursorEnvelope, sortFields []model.SortField) record.Record {
	fields := make(map[string]record.Value, len(env.Keys))
	for i, k := range env.Keys {
		path := strings.Split(sortFields[i].Field, ".")
		setNested(fields, path, k)
	}
	return record.Record{Fields: fields}
}

func setNested(fields map[string]record.Value, path []string, k cursorKey) {
	if k.Null {
		fields[path[0]] = record.Null()
		return
	}
	fields[path[0]] = record.String(k.Value)
}

// ApplyCursorPagination returns the page of size following cursor (or the
// first page when cursor is empty), plus the next/prev cursors bounding
// it, computed over records already in sortFields' order.
func ApplyCursorPagination(records []record.Record, cursor string, size int, sortFields []model.SortField) (page []record.Record, nextCursor, prevCursor string, err error) {
	if size < 1 {
		size = 1
	}

	sorted := ApplySorting(records, sortFields)

	start := 0
	if cursor != "" {
		env, decodeErr := decodeCursor(cursor)
		if decodeErr != nil {
			return nil, "", "", decodeErr
		}
		start, err = boundaryIndex(sorted, env, sortFields)
		if err != nil {
			return nil, "", "", err
		}
	}

	end := start + size
	if end > len(sorted) {
		end = len(sorted)
	}
	page = sorted[start:end]

	if end < len(sorted) {
		nextCursor, err = encodeCursor(sorted[end], sortFields)
		if err != nil {
			return nil, "", "", err
		}
	}
	if start > 0 {
		prevStart := start - size
		if prevStart < 0 {
			prevStart = 0
		}
		prevCursor, err = encodeCursor(sorted[prevStart], sortFields)
		if err != nil {
			return nil, "", "", err
		}
	}

	return page, nextCursor, prevCursor, nil
}
