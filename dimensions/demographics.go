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

// demographics.go - state-level demographic summary and race distribution
package dimensions

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/i94etl/aggregate"
	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/transform"
)

// demographicRenames maps the census extract's headers onto warehouse names.
var demographicRenames = map[string]string{
	"City":                   "city",
	"State":                  "state",
	"Median Age":             "median_age",
	"Male Population":        "male_population",
	"Female Population":      "female_population",
	"Total Population":       "total_population",
	"Number of Veterans":     "number_of_veterans",
	"Foreign-born":           "foreign_born",
	"Average Household Size": "average_household_size",
	"State Code":             "state_code",
	"Race":                   "race",
	"Count":                  "count",
}

// demographicIntColumns arrive as strings from the CSV layer and cast to int.
var demographicIntColumns = []string{
	"male_population", "female_population", "total_population",
	"number_of_veterans", "foreign_born", "count",
}

// demographicFloatColumns cast to float64.
var demographicFloatColumns = []string{"median_age", "average_household_size"}

// fractionColumns are converted from absolute counts to fractions of the
// state's total population in the summary table.
var fractionColumns = []string{
	"male_population", "female_population", "number_of_veterans", "foreign_born",
}

// BuildDemographics builds the two demographic dimension tables from the
// census extract: a per-state summary and a per-(state, race) population
// fraction distribution.
//
// The extract carries one row per (city, race) pair, with the city-wide
// population figures repeated on every race row. The summary therefore
// deduplicates to one row per city before aggregating; the race distribution
// uses the race rows directly.
func BuildDemographics(ctx context.Context, demo *table.Table) (*table.Table, *table.Table, error) {
	d := demo.Rename(demographicRenames)

	var err error
	for _, column := range demographicIntColumns {
		if d, err = d.Apply(ctx, transform.ToInt(column)); err != nil {
			return nil, nil, &DimensionError{Op: "demographics_cast_" + column, Err: err}
		}
	}
	for _, column := range demographicFloatColumns {
		if d, err = d.Apply(ctx, transform.ToFloat(column)); err != nil {
			return nil, nil, &DimensionError{Op: "demographics_cast_" + column, Err: err}
		}
	}

	summary, err := buildStateSummary(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	races, err := buildRaceDistribution(ctx, d)
	if err != nil {
		return nil, nil, err
	}
	return summary, races, nil
}

// buildStateSummary sums city populations per state and takes the median of
// the per-city medians. The median-of-medians is an intentional approximation:
// it weights every city equally regardless of population.
func buildStateSummary(ctx context.Context, d *table.Table) (*table.Table, error) {
	cities := d.DropColumns("race", "count").
		WithColumn("city_key", func(r core.Record) interface{} {
			return fmt.Sprintf("%v\x1f%v", r["state_code"], r["city"])
		}).
		DropDuplicates("city_key").
		DropColumns("city_key")

	rows, err := aggregate.NewGroupBy("state_code").
		Sum("male_population", "male_population").
		Sum("female_population", "female_population").
		Sum("total_population", "total_population").
		Sum("number_of_veterans", "number_of_veterans").
		Sum("foreign_born", "foreign_born").
		Median("median_age", "median_age").
		Median("average_household_size", "average_household_size").
		Process(ctx, cities.Rows())
	if err != nil {
		return nil, &DimensionError{Op: "demographics_summary", Err: err}
	}

	summary := table.New("demographic_summary", []string{
		"state_code", "median_age", "male_population", "female_population",
		"total_population", "number_of_veterans", "foreign_born",
		"average_household_size",
	})
	for _, row := range rows {
		summary.AppendRow(row)
	}

	// The state name rides along via a deduplicated code-to-name mapping
	// rather than a First() aggregate, so the mapping itself stays auditable.
	names := d.Select("state_code", "state").DropDuplicates("state_code")
	summary, err = table.LeftJoin(ctx, summary, names,
		[]string{"state_code"}, []string{"state_code"},
		table.JoinOptions{RightUnique: true})
	if err != nil {
		return nil, &DimensionError{Op: "demographics_state_names", Err: err}
	}

	// Absolute counts become fractions of the state total; the total itself is
	// dropped once the ratios are computed.
	summary = summary.WithColumn("_total", func(r core.Record) interface{} {
		total, err := transform.FloatValue(r["total_population"])
		if err != nil || total == 0 {
			return nil
		}
		return total
	})
	for _, column := range fractionColumns {
		col := column
		summary = summary.WithColumn(col, func(r core.Record) interface{} {
			total, ok := r["_total"].(float64)
			if !ok {
				return nil
			}
			value, err := transform.FloatValue(r[col])
			if err != nil {
				return nil
			}
			return value / total
		})
	}
	summary = summary.DropColumns("_total", "total_population")

	return summary.WithName("demographic_summary"), nil
}

// buildRaceDistribution sums the race counts per (state, race) pair and
// normalizes each to a fraction of the state's race-count total.
func buildRaceDistribution(ctx context.Context, d *table.Table) (*table.Table, error) {
	perRace, err := aggregate.NewGroupBy("state_code", "race").
		Sum("count", "count").
		Process(ctx, d.Rows())
	if err != nil {
		return nil, &DimensionError{Op: "demographics_races", Err: err}
	}

	perState, err := aggregate.NewGroupBy("state_code").
		Sum("count", "state_total").
		Process(ctx, d.Rows())
	if err != nil {
		return nil, &DimensionError{Op: "demographics_race_totals", Err: err}
	}

	races := table.New("demographic_races", []string{"state_code", "race", "count"})
	for _, row := range perRace {
		races.AppendRow(row)
	}
	totals := table.New("race_totals", []string{"state_code", "state_total"})
	for _, row := range perState {
		totals.AppendRow(row)
	}

	joined, err := table.LeftJoin(ctx, races, totals,
		[]string{"state_code"}, []string{"state_code"},
		table.JoinOptions{RightUnique: true})
	if err != nil {
		return nil, &DimensionError{Op: "demographics_race_join", Err: err}
	}

	joined = joined.WithColumn("fraction", func(r core.Record) interface{} {
		count, err := transform.FloatValue(r["count"])
		if err != nil {
			return nil
		}
		total, err := transform.FloatValue(r["state_total"])
		if err != nil || total == 0 {
			return nil
		}
		return count / total
	})

	return joined.Select("state_code", "race", "fraction").
		WithName("demographic_races"), nil
}
