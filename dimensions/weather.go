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

package dimensions

import (
	"context"
	"fmt"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/filter"
	"github.com/aaronlmathis/i94etl/immigration"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/transform"
)

// Package dimensions builds the three dimension tables of the warehouse from
// the raw inputs and the lookup dictionary: weather by country, demographics
// by state, and airports by port code.

// DimensionError wraps structured error information for dimension builds.
type DimensionError struct {
	Op  string
	Err error
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("dimension builder %s: %v", e.Op, e.Err)
}

func (e *DimensionError) Unwrap() error {
	return e.Err
}

// weatherRenames maps the temperature history's headers onto warehouse names.
var weatherRenames = map[string]string{
	"dt":                            "date",
	"AverageTemperature":            "average_temperature",
	"AverageTemperatureUncertainty": "average_temperature_uncertainty",
	"Country":                       "country",
}

// BuildWeather builds the weather dimension: one row per original temperature
// observation, restricted to countries that actually appear in the fact
// table's origin or residence columns, each carrying its resolved i94cntyl
// code. Observations are deliberately not deduplicated per country; consumers
// pick their own temporal aggregation.
func BuildWeather(ctx context.Context, weather, countries, facts *table.Table) (*table.Table, error) {
	w := weather.Rename(weatherRenames)

	w, err := w.Apply(ctx, transform.ToUpper("country"))
	if err != nil {
		return nil, &DimensionError{Op: "weather_uppercase", Err: err}
	}
	w, err = w.Apply(ctx, transform.ParseDate("date"))
	if err != nil {
		return nil, &DimensionError{Op: "weather_dates", Err: err}
	}
	w, err = w.Filter(ctx, filter.NotNull("average_temperature"))
	if err != nil {
		return nil, &DimensionError{Op: "weather_drop_null_temp", Err: err}
	}

	// Many weather rows per country, one lookup row per country name.
	joined, err := table.LeftJoin(ctx, w, countries,
		[]string{"country"}, []string{"country"},
		table.JoinOptions{RightUnique: true})
	if err != nil {
		return nil, &DimensionError{Op: "weather_join", Err: err}
	}

	codes := immigration.CountryCodeSet(facts)
	restricted, err := joined.Filter(ctx, filter.And(
		filter.NotNull("i94cntyl"),
		filter.IntIn("i94cntyl", codes),
	))
	if err != nil {
		return nil, &DimensionError{Op: "weather_restrict", Err: err}
	}

	// Normalize the resolved code to int so downstream equality is typed.
	restricted, err = restricted.Apply(ctx, transform.ToInt("i94cntyl"))
	if err != nil {
		return nil, &DimensionError{Op: "weather_cast_code", Err: err}
	}

	return restricted.WithName("weather_dim"), nil
}

// WeatherCodeFilter exposes the membership rule for reuse in quality checks:
// a retained row's resolved code must be in the fact table's code set.
func WeatherCodeFilter(codes map[int]bool) core.Filter {
	return filter.And(filter.NotNull("i94cntyl"), filter.IntIn("i94cntyl", codes))
}
