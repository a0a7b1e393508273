// Package sortpage implements the stable multi-key sort, offset and
// cursor pagination, and bounded top-k selection of §4.3.
package sortpage

import (
	"container/heap"
	"sort"
	"strings"

	"github.com/blackcore/queryengine/pkg/queryengine/model"
	"github.com/blackcore/queryengine/pkg/record"
)

// comparator returns -1/0/1 comparing a and b across every sort field in
// order, applying the null-sorts-last rule per field before the record's
// own direction, and never reversing the overall key order.
func comparator(sortFields []model.SortField) func(a, b record.Record) int {
	paths := make([][]string, len(sortFields))
	for i, sf := range sortFields {
		paths[i] = strings.Split(sf.Field, ".")
	}

	return func(a, b record.Record) int {
		for i, sf := range sortFields {
			av := a.Resolve(paths[i])
			bv := b.Resolve(paths[i])

			aNull, bNull := av.IsNull(), bv.IsNull()
			switch {
			case aNull && bNull:
				continue
			case aNull:
				return 1
			case bNull:
				return -1
			}

			cmp := record.Compare(av, bv)
			if cmp == 0 {
				continue
			}
			if sf.Order == model.Desc {
				cmp = -cmp
			}
			return cmp
		}
		return 0
	}
}

// isAlreadySorted does the single O(n) comparator scan that lets
// ApplySorting skip the sort entirely when the input is already ordered.
func isAlreadySorted(records []record.Record, cmp func(a, b record.Record) int) bool {
	for i := 1; i < len(records); i++ {
		if cmp(records[i-1], records[i]) > 0 {
			return false
		}
	}
	return true
}

// ApplySorting stably sorts records by sortFields, short-circuiting when
// the input is already in the required order.
func ApplySorting(records []record.Record, sortFields []model.SortField) []record.Record {
	if len(sortFields) == 0 {
		return records
	}

	cmp := comparator(sortFields)
	if isAlreadySorted(records, cmp) {
		return records
	}

	out := make([]record.Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return cmp(out[i], out[j]) < 0 })
	return out
}

// ApplyPagination slices records for a 1-based page of the given size.
// page < 1 is treated as 1.
func ApplyPagination(records []record.Record, page, size int) ([]record.Record, int) {
	total := len(records)
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}

	offset := (page - 1) * size
	if offset >= total {
		return []record.Record{}, total
	}
	end := offset + size
	if end > total {
		end = total
	}
	return records[offset:end], total
}

// recordHeap is the bounded heap GetTopK keeps the current top-k in; GetTopK
// sorts its contents under the comparator once the scan is done.
type recordHeap struct {
	items []record.Record
	cmp   func(a, b record.Record) int
}

func (h recordHeap) Len() int { return len(h.items) }

// Less inverts the comparator so the heap's root is the WORST of the
// current top-k, letting Push/Pop maintain a bounded max-heap of
// least-wanted elements to evict.
func (h recordHeap) Less(i, j int) bool { return h.cmp(h.items[i], h.items[j]) > 0 }
func (h recordHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *recordHeap) Push(x interface{}) { h.items = append(h.items, x.(record.Record)) }
func (h *recordHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// GetTopK returns the k best records under sortFields' order. For k < n it
// maintains a bounded heap of size k instead of sorting the full input;
// for k >= n it just delegates to ApplySorting.
func GetTopK(records []record.Record, k int, sortFields []model.SortField) []record.Record {
	if k >= len(records) {
		return ApplySorting(records, sortFields)
	}
	if k <= 0 {
		return []record.Record{}
	}

	cmp := comparator(sortFields)
	h := &recordHeap{cmp: cmp}
	heap.Init(h)

	for _, rec := range records {
		if h.Len() < k {
			heap.Push(h, rec)
			continue
		}
		if cmp(rec, h.items[0]) < 0 {
			heap.Pop(h)
			heap.Push(h, rec)
		}
	}

	out := make([]record.Record, h.Len())
	copy(out, h.items)
	sort.SliceStable(out, func(i, j int) bool { return cmp(out[i], out[j]) < 0 })
	return out
}
