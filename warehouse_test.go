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

package i94etl

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/types"
)

const testDescriptor = `/* I94VISA - Visa codes collapsed into three categories:
   1 = Business
   2 = Pleasure
   3 = Student
*/

value i94cntyl
   582 =  'MEXICO Air Sea, and Not Reported (I-94, no land arrivals)'
   111 =  'FRANCE' ;

value $i94prtl
   'ANC'	=	'ANCHORAGE, AK'
   'ATL'	=	'ATLANTA, GA'
   'XXX'	=	'NOT REPORTED/UNKNOWN'
;

value i94model
   1 = 'Air'
   9 = 'Not reported' ;

value $i94addrl
   'AK'='ALASKA'
   'GA'='GEORGIA' ;
`

func immigrationSource() core.DataSource {
	raw := table.New("immigration_raw", []string{"cicid", "i94yr", "i94mon", "i94cit", "i94res", "i94port", "arrdate", "depdate"})
	raw.AppendRow(core.Record{
		"cicid": 1.0, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 582.0, "i94res": 582.0,
		"i94port": "ATL", "arrdate": 20573.0, "depdate": 20582.0,
	})
	raw.AppendRow(core.Record{
		"cicid": 2.0, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 111.0, "i94res": 111.0,
		"i94port": "ANC", "arrdate": 20566.0, "depdate": nil,
	})
	raw.AppendRow(core.Record{
		"cicid": nil, "i94yr": 2016.0, "i94mon": 4.0, "i94cit": 111.0, "i94res": 111.0,
		"i94port": "XXX", "arrdate": 20570.0, "depdate": nil,
	})
	return table.Source(raw)
}

func weatherSource() core.DataSource {
	raw := table.New("weather_raw", []string{"dt", "AverageTemperature", "AverageTemperatureUncertainty", "Country"})
	raw.AppendRow(core.Record{"dt": "2013-09-01", "AverageTemperature": 17.6, "AverageTemperatureUncertainty": 0.3, "Country": "France"})
	raw.AppendRow(core.Record{"dt": "2013-10-01", "AverageTemperature": nil, "AverageTemperatureUncertainty": 0.2, "Country": "France"})
	raw.AppendRow(core.Record{"dt": "2013-09-01", "AverageTemperature": 24.5, "AverageTemperatureUncertainty": 0.4, "Country": "India"})
	return table.Source(raw)
}

func demographicsSource() core.DataSource {
	raw := table.New("demographics_raw", []string{
		"City", "State", "Median Age", "Male Population", "Female Population",
		"Total Population", "Number of Veterans", "Foreign-born",
		"Average Household Size", "State Code", "Race", "Count",
	})
	for _, race := range []struct{ name, count string }{
		{"White", "190000"}, {"Asian", "25000"},
	} {
		raw.AppendRow(core.Record{
			"City": "Anchorage", "State": "Alaska", "Median Age": "32.5",
			"Male Population": "150000", "Female Population": "148695",
			"Total Population": "298695", "Number of Veterans": "26000",
			"Foreign-born": "23000", "Average Household Size": "2.8",
			"State Code": "AK", "Race": race.name, "Count": race.count,
		})
	}
	raw.AppendRow(core.Record{
		"City": "Atlanta", "State": "Georgia", "Median Age": "33.8",
		"Male Population": "220000", "Female Population": "243875",
		"Total Population": "463875", "Number of Veterans": "20000",
		"Foreign-born": "30000", "Average Household Size": "2.1",
		"State Code": "GA", "Race": "White", "Count": "180000",
	})
	return table.Source(raw)
}

func airportsSource() core.DataSource {
	raw := table.New("airports_raw", []string{"ident", "type", "name", "iso_region", "iata_code"})
	raw.AppendRow(core.Record{"ident": "ANC", "type": "large_airport", "name": "Ted Stevens Anchorage", "iso_region": "US-AK", "iata_code": "ANC"})
	raw.AppendRow(core.Record{"ident": "ATL", "type": "large_airport", "name": "Hartsfield Jackson", "iso_region": "US-GA", "iata_code": "ATL"})
	return table.Source(raw)
}

func TestRun_FullBuild(t *testing.T) {
	out, err := Run(context.Background(), Sources{
		Immigration:  immigrationSource(),
		Labels:       strings.NewReader(testDescriptor),
		Weather:      weatherSource(),
		Demographics: demographicsSource(),
		Airports:     airportsSource(),
	}, Options{})
	require.NoError(t, err)

	// Facts: the row without an identity is gone, dates are converted.
	require.NotNil(t, out.Facts)
	assert.Equal(t, 2, out.Facts.Len())
	assert.Equal(t, 1, out.Facts.Row(0)["cicid"])
	assert.False(t, out.Facts.HasColumn("i94yr"))

	// Lookups: all five tables parsed.
	require.NotNil(t, out.Lookups)
	assert.Equal(t, 2, out.Lookups.Countries.Len())
	assert.Equal(t, 3, out.Lookups.Ports.Len())
	assert.Equal(t, 2, out.Lookups.Visas.Len())

	// Weather: France resolves to 111, which the facts carry; India's code is
	// absent from the facts and the null-temperature row drops.
	require.NotNil(t, out.Weather)
	require.Equal(t, 1, out.Weather.Len())
	assert.Equal(t, "FRANCE", out.Weather.Row(0)["country"])
	assert.Equal(t, 111, out.Weather.Row(0)["i94cntyl"])

	// Demographics: one summary row per state, race fractions per state sum to 1.
	require.NotNil(t, out.DemographicSummary)
	assert.Equal(t, 2, out.DemographicSummary.Len())
	require.NotNil(t, out.DemographicRaces)
	sums := make(map[string]float64)
	for _, row := range out.DemographicRaces.Rows() {
		sums[row["state_code"].(string)] += row["fraction"].(float64)
	}
	for state, sum := range sums {
		assert.InDelta(t, 1.0, sum, 1e-9, "state %s", state)
	}

	// Airports: one row per port code, matched or not.
	require.NotNil(t, out.Airports)
	assert.Equal(t, out.Lookups.Ports.Len(), out.Airports.Len())

	// One quality report per built table.
	assert.Len(t, out.Reports, 5)
	assert.Equal(t, "immigration_facts", out.Reports[0].TableName)
	assert.True(t, out.Reports[0].IndexUnique)
}

func TestRun_FactsOnly(t *testing.T) {
	out, err := Run(context.Background(), Sources{
		Immigration: immigrationSource(),
		Labels:      strings.NewReader(testDescriptor),
	}, Options{})
	require.NoError(t, err)

	assert.NotNil(t, out.Facts)
	assert.Nil(t, out.Weather)
	assert.Nil(t, out.DemographicSummary)
	assert.Nil(t, out.Airports)
	assert.Len(t, out.Reports, 1)
}

func TestRun_MissingRequiredSources(t *testing.T) {
	_, err := Run(context.Background(), Sources{}, Options{})
	require.Error(t, err)

	var werr *WarehouseError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "sources", werr.Stage)
}

func TestRun_EmptyFactsFails(t *testing.T) {
	empty := table.New("immigration_raw", []string{"cicid"})

	_, err := Run(context.Background(), Sources{
		Immigration: table.Source(empty),
		Labels:      strings.NewReader(testDescriptor),
	}, Options{})
	require.Error(t, err)

	var werr *WarehouseError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "check_facts", werr.Stage)
}

func TestRun_ExportsCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "facts.csv")

	_, err := Run(context.Background(), Sources{
		Immigration: immigrationSource(),
		Labels:      strings.NewReader(testDescriptor),
	}, Options{
		Exports: map[string]ExportTarget{
			"immigration_facts": {Location: types.FileLocation{Path: path}, Format: types.FormatCSV},
		},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "cicid")
	assert.Contains(t, content, "2016-04-29")
}

func TestRun_BadDescriptorFails(t *testing.T) {
	_, err := Run(context.Background(), Sources{
		Immigration: immigrationSource(),
		Labels:      strings.NewReader("not a descriptor"),
	}, Options{})
	require.Error(t, err)

	var werr *WarehouseError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "labels", werr.Stage)
}
