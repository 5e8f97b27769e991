// Package flatten turns nested business records into a two-dimensional
// table whose cells are scalars, ready for a relational load.
//
// Nested objects are expanded to one column per leaf. With the default
// NamingLeaf policy a nested path is named after its last segment, so
// coordinates.latitude becomes latitude. When two distinct paths share a
// leaf, or a leaf matches a top-level key or the timestamp column, the
// nested paths keep their full path joined with underscores instead
// (location_city), with a numeric suffix if that name is also taken.
// Every row of a batch carries the same retrieval timestamp in the
// timestamp column, which is always last.
package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimestampColumn is the name of the batch timestamp column.
const DefaultTimestampColumn = "tdate"

// Naming selects how nested paths become column names.
type Naming int

const (
	// NamingLeaf names a nested path after its last segment, falling back
	// to the underscore-joined path on collisions.
	NamingLeaf Naming = iota

	// NamingPath names every column by its full dotted path.
	NamingPath
)

// Options configures a Flattener.
type Options struct {
	// Naming is the column naming policy (default NamingLeaf).
	Naming Naming

	// TimestampColumn is the batch timestamp column (default "tdate").
	TimestampColumn string

	// Now returns the batch timestamp (default time.Now).
	Now func() time.Time
}

// Table is a flattened batch of records.
type Table struct {
	// Columns are the column names in load order.
	Columns []string

	// Rows hold one cell per column. Missing values are nil.
	Rows [][]any

	// RetrievedAt is the timestamp stored in the timestamp column.
	RetrievedAt time.Time
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Flattener converts nested records into tables.
type Flattener struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a Flattener. Zero fields of opts take their defaults.
func New(opts Options) *Flattener {
	if opts.TimestampColumn == "" {
		opts.TimestampColumn = DefaultTimestampColumn
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Flattener{
		opts:   opts,
		logger: log.With().Str("component", "flatten").Logger(),
	}
}

// field is one leaf value found in a record.
type field struct {
	path  []string
	value any
}

// Flatten expands records into a table. Empty input yields an empty table
// with no columns, not even the timestamp column.
func (f *Flattener) Flatten(records []map[string]any) *Table {
	if len(records) == 0 {
		return &Table{}
	}

	retrievedAt := f.opts.Now().UTC()

	var (
		order  []string
		paths  = make(map[string][]string)
		values = make([]map[string]any, len(records))
	)

	for i, rec := range records {
		var fields []field
		walk(nil, rec, &fields)

		values[i] = make(map[string]any, len(fields))
		for _, fl := range fields {
			key := strings.Join(fl.path, ".")
			if _, seen := paths[key]; !seen {
				paths[key] = fl.path
				order = append(order, key)
			}
			values[i][key] = fl.value
		}
	}

	names := f.columnNames(order, paths)

	columns := make([]string, 0, len(order)+1)
	keys := make([]string, 0, len(order))
	for _, key := range order {
		if names[key] == f.opts.TimestampColumn {
			// The batch timestamp wins over a record field of the same name.
			continue
		}
		columns = append(columns, names[key])
		keys = append(keys, key)
	}
	columns = append(columns, f.opts.TimestampColumn)

	rows := make([][]any, len(records))
	for i := range records {
		row := make([]any, len(columns))
		for j, key := range keys {
			row[j] = values[i][key]
		}
		row[len(columns)-1] = retrievedAt
		rows[i] = row
	}

	f.logger.Debug().
		Int("rows", len(rows)).
		Int("columns", len(columns)).
		Time("retrieved_at", retrievedAt).
		Msg("Flattened records")

	return &Table{
		Columns:     columns,
		Rows:        rows,
		RetrievedAt: retrievedAt,
	}
}

// columnNames assigns a column name to every dotted path key.
func (f *Flattener) columnNames(order []string, paths map[string][]string) map[string]string {
	names := make(map[string]string, len(order))

	if f.opts.Naming == NamingPath {
		for _, key := range order {
			names[key] = key
		}
		return names
	}

	topLevel := map[string]bool{f.opts.TimestampColumn: true}
	leafPaths := make(map[string]int)
	for _, key := range order {
		p := paths[key]
		if len(p) == 1 {
			topLevel[p[0]] = true
			continue
		}
		leafPaths[p[len(p)-1]]++
	}

	used := make(map[string]bool, len(order)+1)
	for name := range topLevel {
		used[name] = true
	}

	var collided []string
	for _, key := range order {
		p := paths[key]
		if len(p) == 1 {
			names[key] = p[0]
			continue
		}
		leaf := p[len(p)-1]
		if leafPaths[leaf] > 1 || topLevel[leaf] {
			collided = append(collided, key)
			continue
		}
		names[key] = leaf
		used[leaf] = true
	}

	// Colliding leaves take their full path; a numeric suffix separates
	// a full path that is itself already taken.
	for _, key := range collided {
		base := strings.Join(paths[key], "_")
		name := base
		for n := 2; used[name]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		names[key] = name
		used[name] = true
		f.logger.Debug().
			Str("path", key).
			Str("column", name).
			Msg("Leaf name collision, using full path")
	}
	return names
}

// walk appends the leaves of v below prefix, visiting object keys in
// sorted order.
func walk(prefix []string, v any, out *[]field) {
	obj, ok := v.(map[string]any)
	if !ok || (len(prefix) > 0 && len(obj) == 0) {
		*out = append(*out, field{path: prefix, value: scalar(v)})
		return
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := make([]string, len(prefix)+1)
		copy(path, prefix)
		path[len(prefix)] = k
		walk(path, obj[k], out)
	}
}

// scalar converts a decoded JSON value into a loadable cell value.
func scalar(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if fl, err := x.Float64(); err == nil {
			return fl
		}
		return x.String()
	case []any, map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(data)
	case float32:
		return float64(x)
	case int:
		return int64(x)
	case int32:
		return int64(x)
	default:
		return v
	}
}
