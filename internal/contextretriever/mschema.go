package contextretriever

import (
	"fmt"
	"sort"
	"strings"
)

const maxSampleValues = 3

// RenderFullMSchema serializes every table and column in schema, the "full"
// mschema view from spec §4.6.
func RenderFullMSchema(schema Schema) string {
	var sb strings.Builder
	for _, t := range schema.Tables {
		writeTable(&sb, t, schema)
	}
	return strings.TrimSpace(sb.String())
}

// RenderReducedMSchema serializes only the tables touched by touched
// columns plus their depth-1 foreign-key neighbors (spec §4.6).
func RenderReducedMSchema(schema Schema, touched []ColumnRef) string {
	set := make(map[ColumnRef]struct{}, len(touched))
	for _, ref := range touched {
		set[ref] = struct{}{}
	}
	for ref := range schema.neighborsOf(set) {
		set[ref] = struct{}{}
	}

	tablesNeeded := make(map[string]struct{})
	for ref := range set {
		tablesNeeded[ref.Table] = struct{}{}
	}

	names := make([]string, 0, len(tablesNeeded))
	for name := range tablesNeeded {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		for _, t := range schema.Tables {
			if t.Name == name {
				writeTable(&sb, t, schema)
				break
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func writeTable(sb *strings.Builder, t Table, schema Schema) {
	fmt.Fprintf(sb, "TABLE %s (\n", t.Name)
	for _, c := range t.Columns {
		line := fmt.Sprintf("  %s %s", c.Name, c.Type)
		if fk := foreignKeyOf(schema, t.Name, c.Name); fk != nil {
			line += fmt.Sprintf(" REFERENCES %s.%s", fk.Refers.Table, fk.Refers.Column)
		}
		if len(c.SampleValues) > 0 {
			n := len(c.SampleValues)
			if n > maxSampleValues {
				n = maxSampleValues
			}
			line += fmt.Sprintf(" SAMPLE(%s)", strings.Join(c.SampleValues[:n], ", "))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(")\n\n")
}

func foreignKeyOf(schema Schema, table, column string) *ForeignKey {
	for i, fk := range schema.ForeignKeys {
		if fk.Column.Table == table && fk.Column.Column == column {
			return &schema.ForeignKeys[i]
		}
	}
	return nil
}
