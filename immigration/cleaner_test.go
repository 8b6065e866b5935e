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

package immigration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/transform"
)

// rawExtract builds a small table shaped like the Parquet extract: every
// numeric stored as float64, one near-empty column, one row missing its id.
func rawExtract() *table.Table {
	t := table.New("immigration_raw", []string{
		"cicid", "i94yr", "i94mon", "i94cit", "arrdate", "depdate", "gender", "insnum",
	})
	t.AppendRow(core.Record{
		"cicid": 1.0, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 582.0,
		"arrdate": 20573.0, "depdate": 20582.0, "gender": "F", "insnum": nil,
	})
	t.AppendRow(core.Record{
		"cicid": 2.0, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 111.0,
		"arrdate": 20566.0, "depdate": nil, "gender": nil, "insnum": nil,
	})
	t.AppendRow(core.Record{
		"cicid": nil, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 254.0,
		"arrdate": 20570.0, "depdate": nil, "gender": "M", "insnum": nil,
	})
	return t
}

func TestClean_DropsRowsWithoutIdentity(t *testing.T) {
	facts, err := Clean(context.Background(), rawExtract(), DefaultCleanConfig())
	require.NoError(t, err)

	// [1, 2, nil] identities yield exactly two rows.
	require.Equal(t, 2, facts.Len())
	assert.Equal(t, 1, facts.Row(0)["cicid"])
	assert.Equal(t, 2, facts.Row(1)["cicid"])
	assert.Equal(t, "immigration_facts", facts.Name())
}

func TestClean_DropsNearEmptyColumns(t *testing.T) {
	facts, err := Clean(context.Background(), rawExtract(), DefaultCleanConfig())
	require.NoError(t, err)

	// insnum is 100% null and crosses the 0.9 threshold; gender at 1/3 stays.
	assert.False(t, facts.HasColumn("insnum"))
	assert.True(t, facts.HasColumn("gender"))
}

func TestClean_ThresholdIsStrict(t *testing.T) {
	// A column exactly at the threshold is kept; only fractions above it drop.
	raw := table.New("immigration_raw", []string{"cicid", "edge"})
	for i := 0; i < 10; i++ {
		row := core.Record{"cicid": float64(i + 1), "edge": nil}
		if i == 0 {
			row["edge"] = "kept"
		}
		raw.AppendRow(row)
	}

	cfg := DefaultCleanConfig()
	facts, err := Clean(context.Background(), raw, cfg)
	require.NoError(t, err)
	assert.True(t, facts.HasColumn("edge"))
}

func TestClean_CastsAndDates(t *testing.T) {
	facts, err := Clean(context.Background(), rawExtract(), DefaultCleanConfig())
	require.NoError(t, err)

	// Float-stored codes become ints.
	assert.Equal(t, 582, facts.Row(0)["i94cit"])

	// Day offsets become calendar dates; open departures stay nil.
	assert.Equal(t, time.Date(2016, time.April, 29, 0, 0, 0, 0, time.UTC), facts.Row(0)["arrdate"])
	assert.Equal(t, time.Date(2016, time.May, 8, 0, 0, 0, 0, time.UTC), facts.Row(0)["depdate"])
	assert.Nil(t, facts.Row(1)["depdate"])

	// Year and month are redundant once the dates exist.
	assert.False(t, facts.HasColumn("i94yr"))
	assert.False(t, facts.HasColumn("i94mon"))
}

func TestClean_DuplicateIdentitiesCollapse(t *testing.T) {
	raw := table.New("immigration_raw", []string{"cicid", "gender"})
	raw.AppendRow(core.Record{"cicid": 7.0, "gender": "F"})
	raw.AppendRow(core.Record{"cicid": 7.0, "gender": "M"})

	facts, err := Clean(context.Background(), raw, DefaultCleanConfig())
	require.NoError(t, err)
	require.Equal(t, 1, facts.Len())
	assert.Equal(t, "F", facts.Row(0)["gender"])
}

func TestClean_FractionalIdentityFails(t *testing.T) {
	raw := table.New("immigration_raw", []string{"cicid"})
	raw.AppendRow(core.Record{"cicid": 1.5})

	_, err := Clean(context.Background(), raw, DefaultCleanConfig())
	require.Error(t, err)

	var cleanerErr *CleanerError
	require.ErrorAs(t, err, &cleanerErr)
	assert.Equal(t, "cast_cicid", cleanerErr.Op)
}

func TestClean_ConfigValidation(t *testing.T) {
	raw := rawExtract()

	cfg := DefaultCleanConfig()
	cfg.IDColumn = ""
	_, err := Clean(context.Background(), raw, cfg)
	require.Error(t, err)

	cfg = DefaultCleanConfig()
	cfg.NullThreshold = 1.5
	_, err = Clean(context.Background(), raw, cfg)
	require.Error(t, err)
}

func TestClean_CustomEpoch(t *testing.T) {
	raw := table.New("immigration_raw", []string{"cicid", "arrdate"})
	raw.AppendRow(core.Record{"cicid": 1.0, "arrdate": 0.0})

	cfg := DefaultCleanConfig()
	cfg.Epoch = transform.SASEpoch

	facts, err := Clean(context.Background(), raw, cfg)
	require.NoError(t, err)
	assert.Equal(t, transform.SASEpoch, facts.Row(0)["arrdate"])
}

func TestCountryCodeSet(t *testing.T) {
	facts := table.New("immigration_facts", []string{"i94cit", "i94res"})
	facts.AppendRow(core.Record{"i94cit": 582, "i94res": 582})
	facts.AppendRow(core.Record{"i94cit": 111, "i94res": 254})
	facts.AppendRow(core.Record{"i94cit": nil, "i94res": nil})

	codes := CountryCodeSet(facts)
	assert.Equal(t, map[int]bool{582: true, 111: true, 254: true}, codes)

	onlyOrigin := CountryCodeSet(facts, "i94cit")
	assert.Equal(t, map[int]bool{582: true, 111: true}, onlyOrigin)
}
