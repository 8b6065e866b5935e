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

// join.go - hash left-join between tables
package table

import (
	"context"
	"fmt"
	"strings"
)

// JoinOptions configures a left join.
type JoinOptions struct {
	// RightUnique declares the right side keyed uniquely; each left row merges
	// with at most the first matching right row, preserving left cardinality.
	// Every join in this warehouse is many-to-one, so builders set this.
	RightUnique bool
	// RightPrefix, when set, prefixes right-side fields in the output.
	// Without it, a right field colliding with a left field gets "right_".
	RightPrefix string
}

// LeftJoin joins right onto left with left-join semantics: every left row
// appears in the output, in left order; unmatched rows carry nil for the
// right-side columns. A nil left key never matches.
func LeftJoin(ctx context.Context, left, right *Table, leftKeys, rightKeys []string, opts JoinOptions) (*Table, error) {
	if len(leftKeys) == 0 || len(leftKeys) != len(rightKeys) {
		return nil, &TableError{Op: "join", Err: fmt.Errorf("left and right key lists must be non-empty and equal length")}
	}

	// Hash the right side (the smaller, lookup side in every warehouse join).
	rightIndex := make(map[string][]int)
	for i, row := range right.rows {
		key, ok := joinKey(row, rightKeys)
		if !ok {
			continue
		}
		rightIndex[key] = append(rightIndex[key], i)
	}

	out := New(left.name, left.columns)
	rightCols := rightOutputColumns(left, right, rightKeys, opts)
	for _, c := range rightCols {
		if !out.HasColumn(c.out) {
			out.columns = append(out.columns, c.out)
		}
	}

	for _, leftRow := range left.rows {
		select {
		case <-ctx.Done():
			return nil, &TableError{Op: "join", Err: ctx.Err()}
		default:
		}

		key, ok := joinKey(leftRow, leftKeys)
		if !ok {
			out.rows = append(out.rows, mergeJoinRow(leftRow, nil, rightCols))
			continue
		}

		matches := rightIndex[key]
		if len(matches) == 0 {
			out.rows = append(out.rows, mergeJoinRow(leftRow, nil, rightCols))
			continue
		}
		if opts.RightUnique {
			matches = matches[:1]
		}
		for _, idx := range matches {
			out.rows = append(out.rows, mergeJoinRow(leftRow, right.rows[idx], rightCols))
		}
	}

	return out, nil
}

// joinColumn maps a right-side source column to its output name.
type joinColumn struct {
	src string
	out string
}

// rightOutputColumns resolves output names for right-side columns, skipping
// the join keys themselves (their value is already on the left row).
func rightOutputColumns(left, right *Table, rightKeys []string, opts JoinOptions) []joinColumn {
	isKey := make(map[string]bool, len(rightKeys))
	for _, k := range rightKeys {
		isKey[k] = true
	}

	var cols []joinColumn
	for _, c := range right.columns {
		if isKey[c] {
			continue
		}
		out := c
		if opts.RightPrefix != "" {
			out = opts.RightPrefix + c
		} else if left.HasColumn(c) {
			out = "right_" + c
		}
		cols = append(cols, joinColumn{src: c, out: out})
	}
	return cols
}

// mergeJoinRow combines a left row with an optional right match.
// Unmatched right columns are explicit nils so null accounting sees them.
func mergeJoinRow(leftRow, rightRow map[string]interface{}, rightCols []joinColumn) map[string]interface{} {
	merged := make(map[string]interface{}, len(leftRow)+len(rightCols))
	for k, v := range leftRow {
		merged[k] = v
	}
	for _, c := range rightCols {
		if rightRow == nil {
			merged[c.out] = nil
			continue
		}
		merged[c.out] = rightRow[c.src]
	}
	return merged
}

// joinKey builds a composite key from the given fields.
// Returns false when any key field is missing or nil.
func joinKey(row map[string]interface{}, keyFields []string) (string, bool) {
	parts := make([]string, 0, len(keyFields))
	for _, field := range keyFields {
		v, ok := row[field]
		if !ok || v == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%v", NormalizeKey(v)))
	}
	return strings.Join(parts, "|"), true
}
