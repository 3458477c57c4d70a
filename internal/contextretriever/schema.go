// Package contextretriever implements ContextRetriever (spec §4.6): evidence
// and exemplar retrieval via VdbManager, LSH column matching, and mschema
// (full/reduced) construction feeding the schema_link_strategy decision.
package contextretriever

// ColumnRef identifies one (table, column) pair.
type ColumnRef struct {
	Table  string
	Column string
}

// ForeignKey points a column at the column it references.
type ForeignKey struct {
	Column ColumnRef
	Refers ColumnRef
}

// ColumnDef is one column's schema metadata, bounded sample values included.
type ColumnDef struct {
	Name         string
	Type         string
	SampleValues []string
}

// Table is one table's schema metadata.
type Table struct {
	Name    string
	Columns []ColumnDef
}

// Schema is the full database schema ContextRetriever reasons over. It is
// supplied by the caller (sourced from DbManager's catalog in a production
// deployment; out of scope here per spec's DbManager contract).
type Schema struct {
	Tables      []Table
	ForeignKeys []ForeignKey
}

// AllColumns flattens every (table, column) pair in the schema.
func (s Schema) AllColumns() []ColumnRef {
	refs := make([]ColumnRef, 0)
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			refs = append(refs, ColumnRef{Table: t.Name, Column: c.Name})
		}
	}
	return refs
}

// neighborsOf returns the columns directly FK-linked to any column in cols,
// in either direction, one hop out (spec §4.6's "transitively up to depth 1").
func (s Schema) neighborsOf(cols map[ColumnRef]struct{}) map[ColumnRef]struct{} {
	neighbors := make(map[ColumnRef]struct{})
	for _, fk := range s.ForeignKeys {
		_, fromSet := cols[fk.Column]
		_, toSet := cols[fk.Refers]
		if fromSet {
			neighbors[fk.Refers] = struct{}{}
		}
		if toSet {
			neighbors[fk.Column] = struct{}{}
		}
	}
	return neighbors
}

func (s Schema) column(ref ColumnRef) (ColumnDef, bool) {
	for _, t := range s.Tables {
		if t.Name != ref.Table {
			continue
		}
		for _, c := range t.Columns {
			if c.Name == ref.Column {
				return c, true
			}
		}
	}
	return ColumnDef{}, false
}
