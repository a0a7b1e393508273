package relate

import (
	"sync"
	"testing"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	dbs map[string][]record.Record

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeLoader) Load(name string) ([]record.Record, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
	f.mu.Unlock()

	recs, ok := f.dbs[name]
	if !ok {
		return nil, assert.AnError
	}
	return recs, nil
}

func TestResolveAttachesRelatedRecords(t *testing.T) {
	loader := &fakeLoader{dbs: map[string][]record.Record{
		"orgs": {
			{ID: "org-1", Database: "orgs", Fields: map[string]record.Value{"name": record.String("Acme")}},
		},
	}}

	people := []record.Record{
		{ID: "p1", Database: "people", Fields: map[string]record.Value{
			"employer": record.List([]record.Value{record.String("org-1")}),
		}},
	}

	resolver := New(loader, nil)
	out, err := resolver.Resolve(people, []model.Include{
		{RelationField: "employer", TargetDatabase: "orgs", MaxDepth: 2},
	})
	require.NoError(t, err)

	attached := out[0].Fields["employer"]
	require.Equal(t, record.KindList, attached.Kind)
	require.Len(t, attached.List, 1)
	assert.Equal(t, "Acme", attached.List[0].Map["name"].AsString())
}

func TestResolveHandlesCycleWithoutInfiniteRecursion(t *testing.T) {
	a := record.Record{ID: "a", Database: "people", Fields: map[string]record.Value{
		"friend": record.List([]record.Value{record.String("b")}),
	}}
	b := record.Record{ID: "b", Database: "people", Fields: map[string]record.Value{
		"friend": record.List([]record.Value{record.String("a")}),
	}}

	loader := &fakeLoader{dbs: map[string][]record.Record{"people": {a, b}}}
	resolver := New(loader, nil)

	out, err := resolver.Resolve([]record.Record{a}, []model.Include{
		{RelationField: "friend", TargetDatabase: "people", MaxDepth: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", out[0].ID)
}

func TestResolveSkipsMissingRelatedIDs(t *testing.T) {
	loader := &fakeLoader{dbs: map[string][]record.Record{"orgs": {}}}
	people := []record.Record{
		{ID: "p1", Database: "people", Fields: map[string]record.Value{
			"employer": record.List([]record.Value{record.String("ghost")}),
		}},
	}

	resolver := New(loader, nil)
	out, err := resolver.Resolve(people, []model.Include{
		{RelationField: "employer", TargetDatabase: "orgs", MaxDepth: 1},
	})
	require.NoError(t, err)
	assert.Empty(t, out[0].Fields["employer"].List)
}

func TestResolveLoadsEachTargetDatabaseOnce(t *testing.T) {
	loader := &fakeLoader{dbs: map[string][]record.Record{
		"orgs": {
			{ID: "org-1", Database: "orgs", Fields: map[string]record.Value{"name": record.String("Acme")}},
		},
	}}

	people := []record.Record{
		{ID: "p1", Database: "people", Fields: map[string]record.Value{
			"employer": record.List([]record.Value{record.String("org-1")}),
		}},
		{ID: "p2", Database: "people", Fields: map[string]record.Value{
			"employer": record.List([]record.Value{record.String("org-1")}),
		}},
	}

	resolver := New(loader, nil)
	_, err := resolver.Resolve(people, []model.Include{
		{RelationField: "employer", TargetDatabase: "orgs", MaxDepth: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls["orgs"])
}
