package record

import "strconv"

// Record is one JSON object within a database. id and Database mirror the
// reserved top-level "id"/"_database" keys; Fields holds everything else
// (including a possible nested "properties" map) as normalized Values.
type Record struct {
	ID       string
	Database string
	Fields   map[string]Value
}

// typedCellKinds lists the "properties" cells that get normalized into a
// single comparable value rather than passed through as a raw map.
var typedCellKinds = map[string]bool{
	"title":        true,
	"rich_text":    true,
	"select":       true,
	"multi_select": true,
	"number":       true,
	"checkbox":     true,
	"date":         true,
	"people":       true,
	"relation":     true,
}

// FromMap builds a Record from a decoded JSON object, assigning id and
// fallbackID (used when "id" is absent) and normalizing any "properties"
// typed cells in place.
func FromMap(raw map[string]interface{}, database, fallbackID string) Record {
	fields := make(map[string]Value, len(raw))
	for k, v := range raw {
		fields[k] = FromNative(v)
	}

	id := fallbackID
	if idVal, ok := fields["id"]; ok && !idVal.IsEmpty() {
		id = idVal.AsString()
	}

	if props, ok := fields["properties"]; ok && props.Kind == KindMap {
		normalized := make(map[string]Value, len(props.Map))
		for name, cell := range props.Map {
			if typedCellKinds[name] {
				normalized[name] = normalizeCell(name, cell)
			} else {
				normalized[name] = cell
			}
		}
		fields["properties"] = Map(normalized)
	}

	return Record{ID: id, Database: database, Fields: fields}
}

// normalizeCell converts one typed "properties" cell from its raw Notion-
// style shape to a single comparable Value per the rules in §3: plain text
// for titles/rich text, name string for selects, list of strings for
// multi-selects, list of ids for relations, the start field for dates.
func normalizeCell(kind string, cell Value) Value {
	switch kind {
	case "title", "rich_text":
		return String(concatPlainText(cell))
	case "select":
		if cell.Kind == KindMap {
			if name, ok := cell.Map["name"]; ok {
				return name
			}
		}
		return cell
	case "multi_select":
		if cell.Kind != KindList {
			return cell
		}
		out := make([]Value, 0, len(cell.List))
		for _, opt := range cell.List {
			if opt.Kind == KindMap {
				if name, ok := opt.Map["name"]; ok {
					out = append(out, name)
					continue
				}
			}
			out = append(out, opt)
		}
		return List(out)
	case "relation":
		if cell.Kind != KindList {
			return cell
		}
		out := make([]Value, 0, len(cell.List))
		for _, rel := range cell.List {
			if rel.Kind == KindMap {
				if id, ok := rel.Map["id"]; ok {
					out = append(out, id)
					continue
				}
			}
			out = append(out, rel)
		}
		return List(out)
	case "date":
		if cell.Kind == KindMap {
			if start, ok := cell.Map["start"]; ok {
				return start
			}
		}
		return cell
	case "number", "checkbox":
		return cell
	default:
		return cell
	}
}

// concatPlainText flattens the Notion-style rich-text array
// ([{"plain_text": "..."}]) into a single string; plain scalars pass
// through unchanged.
func concatPlainText(cell Value) string {
	if cell.Kind != KindList {
		return cell.AsString()
	}
	out := ""
	for _, part := range cell.List {
		if part.Kind == KindMap {
			if pt, ok := part.Map["plain_text"]; ok {
				out += pt.AsString()
				continue
			}
		}
		out += part.AsString()
	}
	return out
}

// Resolve walks a dot-notation field path, descending into maps by key and
// into lists by integer index, producing Null on any failed step — the
// field-resolution rule shared by the filter and search engines.
func (r Record) Resolve(path []string) Value {
	if len(path) == 0 {
		return Null()
	}
	current, ok := r.Fields[path[0]]
	if !ok {
		return Null()
	}
	for _, step := range path[1:] {
		switch current.Kind {
		case KindMap:
			next, exists := current.Map[step]
			if !exists {
				return Null()
			}
			current = next
		case KindList:
			idx, err := strconv.Atoi(step)
			if err != nil || idx < 0 || idx >= len(current.List) {
				return Null()
			}
			current = current.List[idx]
		default:
			return Null()
		}
	}
	return current
}

// Clone returns a shallow copy of r with its own Fields map, so callers
// can attach resolved relationships without mutating the shared input.
func (r Record) Clone() Record {
	fields := make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return Record{ID: r.ID, Database: r.Database, Fields: fields}
}

// SetField sets a dot-notation path to value, creating intermediate maps
// as needed. Used by the relationship resolver to attach inline related
// records under their relation field.
func (r Record) SetField(path string, value Value) {
	steps := splitPath(path)
	if len(steps) == 1 {
		r.Fields[steps[0]] = value
		return
	}

	current, ok := r.Fields[steps[0]]
	if !ok || current.Kind != KindMap {
		current = Map(map[string]Value{})
	}
	setNestedPath(current.Map, steps[1:], value)
	r.Fields[steps[0]] = current
}

func setNestedPath(m map[string]Value, steps []string, value Value) {
	if len(steps) == 1 {
		m[steps[0]] = value
		return
	}
	next, ok := m[steps[0]]
	if !ok || next.Kind != KindMap {
		next = Map(map[string]Value{})
	}
	setNestedPath(next.Map, steps[1:], value)
	m[steps[0]] = next
}

func splitPath(path string) []string {
	steps := make([]string, 0, 4)
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			steps = append(steps, path[start:i])
			start = i + 1
		}
	}
	steps = append(steps, path[start:])
	return steps
}

// ToValueMap returns a copy of r's Fields with the reserved id/_database
// keys attached as Values, for embedding one record inline inside another
// (relationship resolution).
func (r Record) ToValueMap() map[string]Value {
	out := make(map[string]Value, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["id"] = String(r.ID)
	out["_database"] = String(r.Database)
	return out
}

// ToMap renders the record back to a plain JSON-able map, reattaching the
// reserved id/_database keys, for output (export, QueryResult.Data).
func (r Record) ToMap() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = valueToNative(v)
	}
	out["id"] = r.ID
	out["_database"] = r.Database
	return out
}

func valueToNative(v Value) interface{} {
	switch v.Kind {
	case KindNull:
		return nil
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindTime:
		return v.Time
	case KindList:
		out := make([]interface{}, len(v.List))
		for i, e := range v.List {
			out[i] = valueToNative(e)
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Map))
		for k, e := range v.Map {
			out[k] = valueToNative(e)
		}
		return out
	default:
		return nil
	}
}
