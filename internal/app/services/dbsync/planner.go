package dbsync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/coopfund/backoffice/pkg/logger"
)

var (
	// ErrCycle is returned when the foreign keys between synced tables form a
	// cycle other than a self reference.
	ErrCycle = errors.New("dbsync: foreign key cycle")
	// ErrSchemaMismatch is returned when the two databases disagree on the
	// shape of the synced tables.
	ErrSchemaMismatch = errors.New("dbsync: schema mismatch between local and cloud")
)

const columnsQuery = `
	SELECT table_name, column_name, data_type
	FROM information_schema.columns
	WHERE table_schema = current_schema() AND table_name = ANY($1)
	ORDER BY table_name, column_name`

const foreignKeysQuery = `
	SELECT tc.table_name, kcu.column_name, ccu.table_name AS referenced_table
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	JOIN information_schema.constraint_column_usage ccu
	  ON ccu.constraint_name = tc.constraint_name AND ccu.table_schema = tc.table_schema
	WHERE tc.constraint_type = 'FOREIGN KEY'
	  AND tc.table_schema = current_schema()
	  AND tc.table_name = ANY($1)
	ORDER BY 1, 2, 3`

// Edge is a foreign key from Table.Column to References.
type Edge struct {
	Table      string `db:"table_name"`
	Column     string `db:"column_name"`
	References string `db:"referenced_table"`
}

type column struct {
	Table string `db:"table_name"`
	Name  string `db:"column_name"`
	Type  string `db:"data_type"`
}

// Schema describes the synced tables as reported by information_schema.
type Schema struct {
	Tables  []string
	Columns []string
	Edges   []Edge
}

// Hash is a sha256 over the sorted table, column and foreign key
// descriptors. Any migration touching a synced table changes it.
func (s Schema) Hash() string {
	lines := make([]string, 0, len(s.Tables)+len(s.Columns)+len(s.Edges))
	for _, t := range s.Tables {
		lines = append(lines, "table:"+t)
	}
	for _, c := range s.Columns {
		lines = append(lines, "column:"+c)
	}
	for _, e := range s.Edges {
		lines = append(lines, fmt.Sprintf("fk:%s.%s->%s", e.Table, e.Column, e.References))
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}

// ReadSchema loads columns and foreign keys of the given tables. Every table
// must exist.
func ReadSchema(ctx context.Context, db *sqlx.DB, tables []string) (Schema, error) {
	var cols []column
	if err := db.SelectContext(ctx, &cols, columnsQuery, pq.Array(tables)); err != nil {
		return Schema{}, fmt.Errorf("read columns: %w", err)
	}
	var edges []Edge
	if err := db.SelectContext(ctx, &edges, foreignKeysQuery, pq.Array(tables)); err != nil {
		return Schema{}, fmt.Errorf("read foreign keys: %w", err)
	}

	seen := make(map[string]bool, len(tables))
	schema := Schema{Tables: append([]string(nil), tables...), Edges: edges}
	sort.Strings(schema.Tables)
	for _, c := range cols {
		seen[c.Table] = true
		schema.Columns = append(schema.Columns, fmt.Sprintf("%s.%s:%s", c.Table, c.Name, c.Type))
	}
	for _, t := range tables {
		if !seen[t] {
			return Schema{}, fmt.Errorf("synced table %q does not exist", t)
		}
	}
	return schema, nil
}

// TopoOrder orders tables so that every referenced table comes before the
// tables referencing it. Ties are broken lexicographically. Self references
// and references to tables outside the set are ignored.
func TopoOrder(tables []string, edges []Edge) ([]string, error) {
	inSet := make(map[string]bool, len(tables))
	for _, t := range tables {
		inSet[t] = true
	}

	indegree := make(map[string]int, len(tables))
	dependents := make(map[string][]string)
	seenEdge := make(map[[2]string]bool)
	for _, t := range tables {
		indegree[t] = 0
	}
	for _, e := range edges {
		if e.Table == e.References || !inSet[e.Table] || !inSet[e.References] {
			continue
		}
		key := [2]string{e.References, e.Table}
		if seenEdge[key] {
			continue
		}
		seenEdge[key] = true
		dependents[e.References] = append(dependents[e.References], e.Table)
		indegree[e.Table]++
	}

	var ready []string
	for t, d := range indegree {
		if d == 0 {
			ready = append(ready, t)
		}
	}

	order := make([]string, 0, len(indegree))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(indegree) {
		var stuck []string
		for t, d := range indegree {
			if d > 0 {
				stuck = append(stuck, t)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
	}
	return order, nil
}

// Plan is the table order used for one run.
type Plan struct {
	Hash   string   `json:"schema_hash"`
	Order  []string `json:"order"`
	Cached bool     `json:"cached"`
}

// Planner resolves the table order, caching it per schema hash.
type Planner struct {
	tables []string
	cache  OrderCache
	log    *logger.Logger
}

// NewPlanner creates a planner over the given tables. A nil cache keeps
// orders in process.
func NewPlanner(tables []string, cache OrderCache, log *logger.Logger) *Planner {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if log == nil {
		log = logger.NewDefault("dbsync")
	}
	return &Planner{tables: append([]string(nil), tables...), cache: cache, log: log}
}

// Plan reads both schemas, requires them to match and returns the order.
func (p *Planner) Plan(ctx context.Context, local, cloud *sqlx.DB) (Plan, error) {
	localSchema, err := ReadSchema(ctx, local, p.tables)
	if err != nil {
		return Plan{}, fmt.Errorf("local schema: %w", err)
	}
	cloudSchema, err := ReadSchema(ctx, cloud, p.tables)
	if err != nil {
		return Plan{}, fmt.Errorf("cloud schema: %w", err)
	}
	hash := localSchema.Hash()
	if cloudHash := cloudSchema.Hash(); cloudHash != hash {
		return Plan{}, fmt.Errorf("%w (local %s, cloud %s)", ErrSchemaMismatch, hash[:12], cloudHash[:12])
	}

	order, ok, err := p.cache.Get(ctx, hash)
	if err != nil {
		p.log.WithError(err).Warn("table order cache read failed")
	} else if ok {
		return Plan{Hash: hash, Order: order, Cached: true}, nil
	}

	order, err = TopoOrder(p.tables, localSchema.Edges)
	if err != nil {
		return Plan{}, err
	}
	if err := p.cache.Set(ctx, hash, order); err != nil {
		p.log.WithError(err).Warn("table order cache write failed")
	}
	p.log.WithField("schema_hash", hash[:12]).WithField("order", strings.Join(order, ",")).Info("table order computed")
	return Plan{Hash: hash, Order: order}, nil
}
