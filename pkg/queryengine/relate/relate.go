// Package relate resolves named relationship fields across loaded
// records up to a bounded depth, with cycle detection (§4.5).
package relate

import (
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
)

// DatabaseLoader is the subset of loader.Loader the resolver depends on,
// kept as an interface so tests can stub it without touching disk.
type DatabaseLoader interface {
	Load(name string) ([]record.Record, error)
}

// EntityDatabaseMap resolves a relation field to a target database when
// the include spec does not name one explicitly.
type EntityDatabaseMap map[string]string

// Resolver attaches related records inline under their relation field.
type Resolver struct {
	loader   DatabaseLoader
	entities EntityDatabaseMap
}

func New(loader DatabaseLoader, entities EntityDatabaseMap) *Resolver {
	return &Resolver{loader: loader, entities: entities}
}

type visitKey struct {
	database string
	id       string
}

// Resolve attaches, for each include, the records referenced by
// include.RelationField as an inline nested list, recursing up to
// include.MaxDepth. A visited set of (database,id) pairs is maintained per
// traversal so a cycle attaches only the bare id reference on revisit.
//
// Every target database named across includes is loaded once, up front,
// concurrently via errgroup.Group rather than once per record per include;
// resolveOne then resolves purely against that in-memory snapshot.
func (r *Resolver) Resolve(records []record.Record, includes []model.Include) ([]record.Record, error) {
	out := make([]record.Record, len(records))
	copy(out, records)

	byDatabase := r.loadTargets(r.uniqueTargets(includes))

	for _, inc := range includes {
		visited := map[visitKey]bool{}
		for i, rec := range out {
			visited[visitKey{rec.Database, rec.ID}] = true
			resolved, err := r.resolveOne(rec, inc, visited, inc.MaxDepth, byDatabase)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
	}
	return out, nil
}

// targetDatabase resolves an include's relation field to the database it
// points at, falling back to the entity map when the include doesn't name
// one explicitly.
func (r *Resolver) targetDatabase(inc model.Include) string {
	if inc.TargetDatabase != "" {
		return inc.TargetDatabase
	}
	return r.entities[inc.RelationField]
}

// uniqueTargets returns the distinct, non-empty target databases named
// across includes, in first-seen order.
func (r *Resolver) uniqueTargets(includes []model.Include) []string {
	seen := make(map[string]bool, len(includes))
	var out []string
	for _, inc := range includes {
		target := r.targetDatabase(inc)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		out = append(out, target)
	}
	return out
}

// loadTargets loads each target database concurrently and indexes it by
// record id. A database that fails to load is simply absent from the
// result; resolveOne treats that the same as a missing related database.
func (r *Resolver) loadTargets(targets []string) map[string]map[string]record.Record {
	byDatabase := make(map[string]map[string]record.Record, len(targets))
	var mu sync.Mutex
	var g errgroup.Group

	for _, target := range targets {
		target := target
		g.Go(func() error {
			records, err := r.loader.Load(target)
			if err != nil {
				return nil // missing related database: silently skipped per §4.5
			}
			byID := make(map[string]record.Record, len(records))
			for _, rec := range records {
				byID[rec.ID] = rec
			}
			mu.Lock()
			byDatabase[target] = byID
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return byDatabase
}

func (r *Resolver) resolveOne(rec record.Record, inc model.Include, visited map[visitKey]bool, depth int, byDatabase map[string]map[string]record.Record) (record.Record, error) {
	if depth <= 0 {
		return rec, nil
	}

	path := strings.Split(inc.RelationField, ".")
	ids := rec.Resolve(path)
	if ids.Kind != record.KindList {
		return rec, nil
	}

	target := r.targetDatabase(inc)
	if target == "" {
		return rec, nil
	}

	byID, ok := byDatabase[target]
	if !ok {
		return rec, nil // missing related database: silently skipped per §4.5
	}

	attached := make([]record.Value, 0, len(ids.List))
	for _, idVal := range ids.List {
		id := idVal.AsString()
		related, ok := byID[id]
		if !ok {
			continue // missing related id: silently skipped per §4.5
		}

		key := visitKey{target, id}
		if visited[key] {
			attached = append(attached, record.String(id)) // cycle: id reference only
			continue
		}
		visited[key] = true

		nested, err := r.resolveOne(related, inc, visited, depth-1, byDatabase)
		if err != nil {
			return rec, err
		}
		attached = append(attached, record.Map(nested.ToValueMap()))
	}

	clone := rec.Clone()
	clone.SetField(inc.RelationField, record.List(attached))
	return clone, nil
}
