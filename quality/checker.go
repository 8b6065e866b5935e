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

package quality

import (
	"fmt"
	"sort"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
)

// Package quality profiles the finished warehouse tables and enforces the
// hard invariants. Profiling is informational and never fails; the Require
// checks return a *core.ValidationError when an invariant is violated.

// ColumnProfile describes one column of a profiled table.
type ColumnProfile struct {
	Column        string
	Type          string // dominant Go type of the non-null cells, "" if all null
	NonNullCount  int
	NullCount     int
	DistinctCount int
}

// Report is the profile of one table.
type Report struct {
	TableName   string
	RowCount    int
	IndexColumn string
	IndexUnique bool
	Columns     []ColumnProfile
}

// Check profiles a table. indexColumn names the column expected to identify
// rows; pass "" for tables without one, which reports IndexUnique as false.
func Check(t *table.Table, indexColumn string) *Report {
	report := &Report{
		TableName:   t.Name(),
		RowCount:    t.Len(),
		IndexColumn: indexColumn,
	}
	if indexColumn != "" {
		nonNull := 0
		for _, row := range t.Rows() {
			if v, ok := row[indexColumn]; ok && v != nil {
				nonNull++
			}
		}
		report.IndexUnique = t.DistinctCount(indexColumn) == nonNull && nonNull == t.Len()
	}

	for _, column := range t.Columns() {
		profile := ColumnProfile{Column: column}
		typeCounts := make(map[string]int)
		for _, row := range t.Rows() {
			v, ok := row[column]
			if !ok || v == nil {
				profile.NullCount++
				continue
			}
			profile.NonNullCount++
			typeCounts[fmt.Sprintf("%T", v)]++
		}
		profile.DistinctCount = t.DistinctCount(column)
		profile.Type = dominantType(typeCounts)
		report.Columns = append(report.Columns, profile)
	}
	return report
}

// dominantType picks the most frequent type name, ties broken alphabetically
// so reports are deterministic.
func dominantType(counts map[string]int) string {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	best := ""
	bestCount := 0
	for _, name := range names {
		if counts[name] > bestCount {
			best = name
			bestCount = counts[name]
		}
	}
	return best
}

// Table renders the report as a table with one row per column profile,
// suitable for export alongside the warehouse tables.
func (r *Report) Table() *table.Table {
	out := table.New(r.TableName+"_profile", []string{
		"table", "column", "type", "non_null", "nulls", "distinct", "index_unique",
	})
	for _, p := range r.Columns {
		out.AppendRow(map[string]interface{}{
			"table":        r.TableName,
			"column":       p.Column,
			"type":         p.Type,
			"non_null":     p.NonNullCount,
			"nulls":        p.NullCount,
			"distinct":     p.DistinctCount,
			"index_unique": r.IndexColumn == p.Column && r.IndexUnique,
		})
	}
	return out
}

// RequireUnique fails when a column's non-null values are not unique or any
// value is null. Used for primary-key style columns.
func RequireUnique(t *table.Table, column string) *core.ValidationError {
	if err := RequireNonNull(t, column); err != nil {
		return err
	}
	if distinct := t.DistinctCount(column); distinct != t.Len() {
		return &core.ValidationError{
			Table:  t.Name(),
			Column: column,
			Rule:   "unique",
			Detail: fmt.Sprintf("%d distinct values over %d rows", distinct, t.Len()),
		}
	}
	return nil
}

// RequireNonNull fails when any cell of the column is null or absent.
func RequireNonNull(t *table.Table, column string) *core.ValidationError {
	nulls := 0
	for _, row := range t.Rows() {
		if v, ok := row[column]; !ok || v == nil {
			nulls++
		}
	}
	if nulls > 0 {
		return &core.ValidationError{
			Table:  t.Name(),
			Column: column,
			Rule:   "non_null",
			Detail: fmt.Sprintf("%d null cells over %d rows", nulls, t.Len()),
		}
	}
	return nil
}

// RequireRowCount fails when the table has fewer than min rows. Catches the
// classic empty-output failure where every upstream stage quietly succeeded.
func RequireRowCount(t *table.Table, min int) *core.ValidationError {
	if t.Len() < min {
		return &core.ValidationError{
			Table:  t.Name(),
			Rule:   "row_count",
			Detail: fmt.Sprintf("%d rows, expected at least %d", t.Len(), min),
		}
	}
	return nil
}

// RequireSubset fails when a column holds a non-null value outside the allowed
// set. The allowed values are compared under the same numeric normalization as
// joins, so an int code and its float-stored twin compare equal.
func RequireSubset(t *table.Table, column string, allowed []interface{}) *core.ValidationError {
	allowedKeys := make(map[interface{}]bool, len(allowed))
	for _, v := range allowed {
		allowedKeys[table.NormalizeKey(v)] = true
	}

	for i, row := range t.Rows() {
		v, ok := row[column]
		if !ok || v == nil {
			continue
		}
		if !allowedKeys[table.NormalizeKey(v)] {
			return &core.ValidationError{
				Table:  t.Name(),
				Column: column,
				Rule:   "subset",
				Detail: fmt.Sprintf("row %d holds %v, not in the allowed set", i, v),
			}
		}
	}
	return nil
}
