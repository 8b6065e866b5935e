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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
)

func TestLeftJoin_PreservesLeftCardinality(t *testing.T) {
	ctx := context.Background()

	ports := New("ports", []string{"i94port", "addr"})
	ports.AppendRow(core.Record{"i94port": "ANC", "addr": "AK"})
	ports.AppendRow(core.Record{"i94port": "ATL", "addr": "GA"})
	ports.AppendRow(core.Record{"i94port": "XXX", "addr": nil})

	airports := New("airports", []string{"ident", "type", "iso_region"})
	airports.AppendRow(core.Record{"ident": "ANC", "type": "large_airport", "iso_region": "US-AK"})
	airports.AppendRow(core.Record{"ident": "ATL", "type": "large_airport", "iso_region": "US-GA"})

	joined, err := LeftJoin(ctx, ports, airports, []string{"i94port"}, []string{"ident"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)

	// Every left row survives, in order, even without a match.
	assert.Equal(t, 3, joined.Len())
	assert.Equal(t, "ANC", joined.Row(0)["i94port"])
	assert.Equal(t, "large_airport", joined.Row(0)["type"])
	assert.Equal(t, "US-GA", joined.Row(1)["iso_region"])
	assert.Nil(t, joined.Row(2)["type"])
	assert.Nil(t, joined.Row(2)["iso_region"])

	// The right key column never appears in the output.
	assert.False(t, joined.HasColumn("ident"))
}

func TestLeftJoin_RightUniqueKeepsFirstMatch(t *testing.T) {
	ctx := context.Background()

	left := New("facts", []string{"country"})
	left.AppendRow(core.Record{"country": "FRANCE"})

	right := New("countries", []string{"label", "code"})
	right.AppendRow(core.Record{"label": "FRANCE", "code": 111})
	right.AppendRow(core.Record{"label": "FRANCE", "code": 999})

	unique, err := LeftJoin(ctx, left, right, []string{"country"}, []string{"label"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)
	assert.Equal(t, 1, unique.Len())
	assert.Equal(t, 111, unique.Row(0)["code"])

	fanout, err := LeftJoin(ctx, left, right, []string{"country"}, []string{"label"}, JoinOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, fanout.Len())
}

func TestLeftJoin_NilKeyNeverMatches(t *testing.T) {
	ctx := context.Background()

	left := New("weather", []string{"country"})
	left.AppendRow(core.Record{"country": nil})

	right := New("countries", []string{"country", "code"})
	right.AppendRow(core.Record{"country": nil, "code": 1})

	joined, err := LeftJoin(ctx, left, right, []string{"country"}, []string{"country"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)
	require.Equal(t, 1, joined.Len())
	assert.Nil(t, joined.Row(0)["code"])
}

func TestLeftJoin_NumericKeysNormalize(t *testing.T) {
	ctx := context.Background()

	left := New("facts", []string{"i94cit"})
	left.AppendRow(core.Record{"i94cit": 582.0})

	right := New("countries", []string{"code", "label"})
	right.AppendRow(core.Record{"code": 582, "label": "MEXICO"})

	joined, err := LeftJoin(ctx, left, right, []string{"i94cit"}, []string{"code"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)
	assert.Equal(t, "MEXICO", joined.Row(0)["label"])
}

func TestLeftJoin_CollidingColumnsPrefixed(t *testing.T) {
	ctx := context.Background()

	left := New("left", []string{"id", "name"})
	left.AppendRow(core.Record{"id": 1, "name": "left-name"})

	right := New("right", []string{"id", "name"})
	right.AppendRow(core.Record{"id": 1, "name": "right-name"})

	joined, err := LeftJoin(ctx, left, right, []string{"id"}, []string{"id"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)
	assert.Equal(t, "left-name", joined.Row(0)["name"])
	assert.Equal(t, "right-name", joined.Row(0)["right_name"])

	prefixed, err := LeftJoin(ctx, left, right, []string{"id"}, []string{"id"}, JoinOptions{RightUnique: true, RightPrefix: "r_"})
	require.NoError(t, err)
	assert.Equal(t, "right-name", prefixed.Row(0)["r_name"])
}

func TestLeftJoin_KeyListValidation(t *testing.T) {
	ctx := context.Background()
	left := New("left", []string{"a"})
	right := New("right", []string{"b"})

	_, err := LeftJoin(ctx, left, right, nil, nil, JoinOptions{})
	require.Error(t, err)

	_, err = LeftJoin(ctx, left, right, []string{"a"}, []string{"b", "c"}, JoinOptions{})
	require.Error(t, err)

	var tableErr *TableError
	require.ErrorAs(t, err, &tableErr)
	assert.Equal(t, "join", tableErr.Op)
}

func TestLeftJoin_CompositeKeys(t *testing.T) {
	ctx := context.Background()

	left := New("races", []string{"state_code", "race", "count"})
	left.AppendRow(core.Record{"state_code": "AK", "race": "Asian", "count": 10})
	left.AppendRow(core.Record{"state_code": "AK", "race": "White", "count": 30})

	right := New("totals", []string{"state_code", "race", "share"})
	right.AppendRow(core.Record{"state_code": "AK", "race": "Asian", "share": 0.25})

	joined, err := LeftJoin(ctx, left, right,
		[]string{"state_code", "race"}, []string{"state_code", "race"}, JoinOptions{RightUnique: true})
	require.NoError(t, err)
	assert.Equal(t, 0.25, joined.Row(0)["share"])
	assert.Nil(t, joined.Row(1)["share"])
}
