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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
)

func factsTable() *table.Table {
	t := table.New("immigration_facts", []string{"cicid", "i94cit", "gender"})
	t.AppendRow(core.Record{"cicid": 1, "i94cit": 582, "gender": "F"})
	t.AppendRow(core.Record{"cicid": 2, "i94cit": 111, "gender": nil})
	t.AppendRow(core.Record{"cicid": 3, "i94cit": 582, "gender": "M"})
	return t
}

func TestCheck(t *testing.T) {
	report := Check(factsTable(), "cicid")

	assert.Equal(t, "immigration_facts", report.TableName)
	assert.Equal(t, 3, report.RowCount)
	assert.Equal(t, "cicid", report.IndexColumn)
	assert.True(t, report.IndexUnique)
	require.Len(t, report.Columns, 3)

	profiles := make(map[string]ColumnProfile)
	for _, p := range report.Columns {
		profiles[p.Column] = p
	}

	cicid := profiles["cicid"]
	assert.Equal(t, "int", cicid.Type)
	assert.Equal(t, 3, cicid.NonNullCount)
	assert.Equal(t, 0, cicid.NullCount)
	assert.Equal(t, 3, cicid.DistinctCount)

	gender := profiles["gender"]
	assert.Equal(t, "string", gender.Type)
	assert.Equal(t, 2, gender.NonNullCount)
	assert.Equal(t, 1, gender.NullCount)
	assert.Equal(t, 2, gender.DistinctCount)
}

func TestCheck_NoIndexColumn(t *testing.T) {
	report := Check(factsTable(), "")
	assert.False(t, report.IndexUnique)
	assert.Equal(t, "", report.IndexColumn)
}

func TestCheck_DuplicateIndex(t *testing.T) {
	dup := table.New("facts", []string{"cicid"})
	dup.AppendRow(core.Record{"cicid": 1})
	dup.AppendRow(core.Record{"cicid": 1})

	report := Check(dup, "cicid")
	assert.False(t, report.IndexUnique)
}

func TestReport_Table(t *testing.T) {
	rendered := Check(factsTable(), "cicid").Table()

	assert.Equal(t, "immigration_facts_profile", rendered.Name())
	require.Equal(t, 3, rendered.Len())
	assert.Equal(t, []string{"table", "column", "type", "non_null", "nulls", "distinct", "index_unique"}, rendered.Columns())

	assert.Equal(t, "immigration_facts", rendered.Row(0)["table"])
	assert.Equal(t, "cicid", rendered.Row(0)["column"])
	assert.Equal(t, true, rendered.Row(0)["index_unique"])
	assert.Equal(t, false, rendered.Row(2)["index_unique"])
}

func TestRequireUnique(t *testing.T) {
	assert.Nil(t, RequireUnique(factsTable(), "cicid"))

	verr := RequireUnique(factsTable(), "i94cit")
	require.NotNil(t, verr)
	assert.Equal(t, "unique", verr.Rule)
	assert.Equal(t, "i94cit", verr.Column)
	assert.Equal(t, "immigration_facts", verr.Table)

	// A null cell fails the non-null precondition before uniqueness.
	verr = RequireUnique(factsTable(), "gender")
	require.NotNil(t, verr)
	assert.Equal(t, "non_null", verr.Rule)
}

func TestRequireRowCount(t *testing.T) {
	assert.Nil(t, RequireRowCount(factsTable(), 3))

	verr := RequireRowCount(factsTable(), 4)
	require.NotNil(t, verr)
	assert.Equal(t, "row_count", verr.Rule)

	empty := table.New("empty", nil)
	require.NotNil(t, RequireRowCount(empty, 1))
}

func TestRequireSubset(t *testing.T) {
	assert.Nil(t, RequireSubset(factsTable(), "i94cit", []interface{}{582, 111}))

	// Numeric normalization: float-stored allowed values match int cells.
	assert.Nil(t, RequireSubset(factsTable(), "i94cit", []interface{}{582.0, 111.0}))

	verr := RequireSubset(factsTable(), "i94cit", []interface{}{582})
	require.NotNil(t, verr)
	assert.Equal(t, "subset", verr.Rule)
	assert.Contains(t, verr.Detail, "111")

	// Nulls are not subset violations; RequireNonNull owns those.
	assert.Nil(t, RequireSubset(factsTable(), "gender", []interface{}{"F", "M"}))
}
