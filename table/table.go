//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of I94ETL.
//
// I94ETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// I94ETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with I94ETL. If not, see https://www.gnu.org/licenses/.

package table

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/aaronlmathis/i94etl/core"
)

// Package table provides the in-memory tabular abstraction the warehouse
// stages hand to each other. A Table owns its rows; whole-table operations
// return new tables and never mutate the receiver, so every stage's output is
// immutable downstream. All tables except the immigration fact table are small
// enough to hold fully in memory; the fact table is materialized from a
// batched Parquet source.

// TableError wraps structured error information for table operations.
type TableError struct {
	Op  string
	Err error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s: %v", e.Op, e.Err)
}

func (e *TableError) Unwrap() error {
	return e.Err
}

// Table is an ordered collection of records with a declared column set.
// Row order is the order of materialization; consumers must not rely on it
// surviving distributed execution.
type Table struct {
	name    string
	columns []string
	rows    []core.Record
}

// New creates an empty table with the given name and column order.
func New(name string, columns []string) *Table {
	return &Table{
		name:    name,
		columns: append([]string(nil), columns...),
	}
}

// Collect materializes every record of a DataSource into a new table.
// Columns are the union of fields seen; fields first appearing in the same
// record are sorted, so the order is deterministic for a given source and
// exported headers do not vary run to run. The source is closed when Collect
// returns.
func Collect(ctx context.Context, name string, source core.DataSource) (*Table, error) {
	defer source.Close()

	t := New(name, nil)
	seen := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return nil, &TableError{Op: "collect", Err: ctx.Err()}
		default:
		}

		record, err := source.Read(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &TableError{Op: "collect", Err: err}
		}
		if len(record) == 0 {
			continue
		}

		var unseen []string
		for field := range record {
			if !seen[field] {
				seen[field] = true
				unseen = append(unseen, field)
			}
		}
		sort.Strings(unseen)
		t.columns = append(t.columns, unseen...)
		t.rows = append(t.rows, record)
	}

	return t, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Columns returns a copy of the column list.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// Rows returns the underlying rows. Callers must treat them as read-only.
func (t *Table) Rows() []core.Record { return t.rows }

// Row returns the record at index i.
func (t *Table) Row(i int) core.Record { return t.rows[i] }

// AppendRow adds a row. Fields not in the column set are added to it.
func (t *Table) AppendRow(record core.Record) {
	for field := range record {
		if !t.HasColumn(field) {
			t.columns = append(t.columns, field)
		}
	}
	t.rows = append(t.rows, record)
}

// WithName returns a shallow copy of the table under a new name.
func (t *Table) WithName(name string) *Table {
	return &Table{name: name, columns: t.Columns(), rows: t.rows}
}

// Select returns a new table containing only the given columns.
func (t *Table) Select(columns ...string) *Table {
	out := New(t.name, columns)
	out.rows = make([]core.Record, 0, len(t.rows))
	for _, row := range t.rows {
		selected := make(core.Record, len(columns))
		for _, c := range columns {
			if v, ok := row[c]; ok {
				selected[c] = v
			}
		}
		out.rows = append(out.rows, selected)
	}
	return out
}

// DropColumns returns a new table without the given columns.
func (t *Table) DropColumns(columns ...string) *Table {
	drop := make(map[string]bool, len(columns))
	for _, c := range columns {
		drop[c] = true
	}

	out := New(t.name, nil)
	for _, c := range t.columns {
		if !drop[c] {
			out.columns = append(out.columns, c)
		}
	}
	out.rows = make([]core.Record, 0, len(t.rows))
	for _, row := range t.rows {
		kept := make(core.Record, len(out.columns))
		for k, v := range row {
			if !drop[k] {
				kept[k] = v
			}
		}
		out.rows = append(out.rows, kept)
	}
	return out
}

// Rename returns a new table with columns renamed per the mapping.
func (t *Table) Rename(mapping map[string]string) *Table {
	out := New(t.name, nil)
	for _, c := range t.columns {
		if renamed, ok := mapping[c]; ok {
			out.columns = append(out.columns, renamed)
		} else {
			out.columns = append(out.columns, c)
		}
	}
	out.rows = make([]core.Record, 0, len(t.rows))
	for _, row := range t.rows {
		renamed := make(core.Record, len(row))
		for k, v := range row {
			if newKey, ok := mapping[k]; ok {
				renamed[newKey] = v
			} else {
				renamed[k] = v
			}
		}
		out.rows = append(out.rows, renamed)
	}
	return out
}

// Filter returns a new table with only the rows the filter includes.
func (t *Table) Filter(ctx context.Context, filter core.Filter) (*Table, error) {
	out := New(t.name, t.columns)
	for _, row := range t.rows {
		include, err := filter.ShouldInclude(ctx, row)
		if err != nil {
			return nil, &TableError{Op: "filter", Err: err}
		}
		if include {
			out.rows = append(out.rows, row)
		}
	}
	return out, nil
}

// Apply returns a new table with the transformer applied to every row.
// New fields produced by the transformer extend the column set.
func (t *Table) Apply(ctx context.Context, transformer core.Transformer) (*Table, error) {
	out := New(t.name, t.columns)
	seen := make(map[string]bool, len(t.columns))
	for _, c := range t.columns {
		seen[c] = true
	}

	for _, row := range t.rows {
		transformed, err := transformer.Transform(ctx, row)
		if err != nil {
			return nil, &TableError{Op: "apply", Err: err}
		}
		for field := range transformed {
			if !seen[field] {
				seen[field] = true
				out.columns = append(out.columns, field)
			}
		}
		out.rows = append(out.rows, transformed)
	}
	return out, nil
}

// WithColumn returns a new table with an added column computed per row.
func (t *Table) WithColumn(name string, fn func(core.Record) interface{}) *Table {
	out := New(t.name, t.columns)
	if !out.HasColumn(name) {
		out.columns = append(out.columns, name)
	}
	out.rows = make([]core.Record, 0, len(t.rows))
	for _, row := range t.rows {
		derived := row.Clone()
		derived[name] = fn(row)
		out.rows = append(out.rows, derived)
	}
	return out
}

// NullFractions computes, per declared column, the fraction of rows whose
// value is nil or absent. An empty table reports zero for every column.
func (t *Table) NullFractions() map[string]float64 {
	fractions := make(map[string]float64, len(t.columns))
	if len(t.rows) == 0 {
		for _, c := range t.columns {
			fractions[c] = 0
		}
		return fractions
	}

	for _, c := range t.columns {
		nulls := 0
		for _, row := range t.rows {
			if v, ok := row[c]; !ok || v == nil {
				nulls++
			}
		}
		fractions[c] = float64(nulls) / float64(len(t.rows))
	}
	return fractions
}

// Distinct returns the distinct non-null values of a column, in first-seen order.
func (t *Table) Distinct(column string) []interface{} {
	seen := make(map[interface{}]bool)
	var values []interface{}
	for _, row := range t.rows {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		key := NormalizeKey(v)
		if !seen[key] {
			seen[key] = true
			values = append(values, v)
		}
	}
	return values
}

// DistinctCount returns the number of distinct non-null values of a column.
func (t *Table) DistinctCount(column string) int {
	return len(t.Distinct(column))
}

// DropDuplicates returns a new table keeping the first row per key value.
// Rows with a nil key are kept unconditionally.
func (t *Table) DropDuplicates(column string) *Table {
	out := New(t.name, t.columns)
	seen := make(map[interface{}]bool)
	for _, row := range t.rows {
		v, ok := row[column]
		if !ok || v == nil {
			out.rows = append(out.rows, row)
			continue
		}
		key := NormalizeKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out.rows = append(out.rows, row)
	}
	return out
}

// NormalizeKey normalizes a cell value into a comparable map key for
// deduplication, joins, and membership checks. Numeric values that differ only
// in Go type hash to the same key so that a float-stored code and its int cast
// count as one value.
func NormalizeKey(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	default:
		return fmt.Sprintf("%v", v)
	}
}
