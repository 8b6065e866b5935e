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

// warehouse.go - batch orchestration for the I94 warehouse build
package i94etl

import (
	"context"
	"fmt"
	"io"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/dimensions"
	"github.com/aaronlmathis/i94etl/immigration"
	"github.com/aaronlmathis/i94etl/labels"
	"github.com/aaronlmathis/i94etl/quality"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/types"
)

// WarehouseError wraps structured error information for a warehouse run.
type WarehouseError struct {
	Stage string
	Err   error
}

func (e *WarehouseError) Error() string {
	return fmt.Sprintf("warehouse %s: %v", e.Stage, e.Err)
}

func (e *WarehouseError) Unwrap() error {
	return e.Err
}

// Sources holds the raw inputs of one warehouse run. Labels is the SAS label
// descriptor text; the others stream records from Parquet or CSV, local or S3.
type Sources struct {
	Immigration  core.DataSource
	Labels       io.Reader
	Weather      core.DataSource
	Demographics core.DataSource
	Airports     core.DataSource
}

// Outputs holds the finished warehouse tables plus the lookup dictionary and
// the per-table quality reports, in build order.
type Outputs struct {
	Facts              *table.Table
	Weather            *table.Table
	DemographicSummary *table.Table
	DemographicRaces   *table.Table
	Airports           *table.Table
	Lookups            *labels.Dictionary
	Reports            []*quality.Report
}

// ExportTarget pairs an output location with a sink format.
type ExportTarget struct {
	Location types.OutputLocation
	Format   types.OutputFormat
}

// Options configures a warehouse run.
type Options struct {
	// Clean overrides the immigration cleaning configuration. Nil uses
	// immigration.DefaultCleanConfig.
	Clean *immigration.CleanConfig
	// Exports maps output table names (as reported by Table.Name) to export
	// targets. Tables without a target stay in memory only.
	Exports map[string]ExportTarget
	// MinFactRows is the floor for the fact table row count check. Zero
	// defaults to 1: an empty fact table always fails the run.
	MinFactRows int
}

// Run executes the full warehouse build: parse the label descriptor, clean
// the immigration extract into the fact table, build the weather, demographic
// and airport dimensions, enforce the hard invariants, and export any
// configured tables. Stages run strictly in sequence; the first failure
// aborts the run.
func Run(ctx context.Context, src Sources, opts Options) (*Outputs, error) {
	if src.Immigration == nil || src.Labels == nil {
		return nil, &WarehouseError{Stage: "sources", Err: fmt.Errorf("immigration source and label descriptor are required")}
	}

	out := &Outputs{}

	// Lookup dictionary first: every later stage joins against it.
	dict, err := labels.Parse(src.Labels)
	if err != nil {
		return nil, &WarehouseError{Stage: "labels", Err: err}
	}
	out.Lookups = dict

	// Fact table.
	raw, err := table.Collect(ctx, "immigration_raw", src.Immigration)
	if err != nil {
		return nil, &WarehouseError{Stage: "load_immigration", Err: err}
	}

	cfg := immigration.DefaultCleanConfig()
	if opts.Clean != nil {
		cfg = *opts.Clean
	}
	facts, err := immigration.Clean(ctx, raw, cfg)
	if err != nil {
		return nil, &WarehouseError{Stage: "clean_immigration", Err: err}
	}
	out.Facts = facts

	minRows := opts.MinFactRows
	if minRows <= 0 {
		minRows = 1
	}
	if verr := quality.RequireRowCount(facts, minRows); verr != nil {
		return nil, &WarehouseError{Stage: "check_facts", Err: verr}
	}
	if verr := quality.RequireUnique(facts, cfg.IDColumn); verr != nil {
		return nil, &WarehouseError{Stage: "check_facts", Err: verr}
	}
	out.Reports = append(out.Reports, quality.Check(facts, cfg.IDColumn))

	// Weather dimension.
	if src.Weather != nil {
		rawWeather, err := table.Collect(ctx, "weather_raw", src.Weather)
		if err != nil {
			return nil, &WarehouseError{Stage: "load_weather", Err: err}
		}
		weather, err := dimensions.BuildWeather(ctx, rawWeather, dict.Countries, facts)
		if err != nil {
			return nil, &WarehouseError{Stage: "build_weather", Err: err}
		}
		codes := immigration.CountryCodeSet(facts)
		allowed := make([]interface{}, 0, len(codes))
		for code := range codes {
			allowed = append(allowed, code)
		}
		if verr := quality.RequireSubset(weather, "i94cntyl", allowed); verr != nil {
			return nil, &WarehouseError{Stage: "check_weather", Err: verr}
		}
		out.Weather = weather
		out.Reports = append(out.Reports, quality.Check(weather, ""))
	}

	// Demographic dimensions.
	if src.Demographics != nil {
		rawDemo, err := table.Collect(ctx, "demographics_raw", src.Demographics)
		if err != nil {
			return nil, &WarehouseError{Stage: "load_demographics", Err: err}
		}
		summary, races, err := dimensions.BuildDemographics(ctx, rawDemo)
		if err != nil {
			return nil, &WarehouseError{Stage: "build_demographics", Err: err}
		}
		if verr := quality.RequireUnique(summary, "state_code"); verr != nil {
			return nil, &WarehouseError{Stage: "check_demographics", Err: verr}
		}
		out.DemographicSummary = summary
		out.DemographicRaces = races
		out.Reports = append(out.Reports,
			quality.Check(summary, "state_code"),
			quality.Check(races, ""))
	}

	// Airport dimension.
	if src.Airports != nil {
		rawAirports, err := table.Collect(ctx, "airports_raw", src.Airports)
		if err != nil {
			return nil, &WarehouseError{Stage: "load_airports", Err: err}
		}
		airports, err := dimensions.BuildAirports(ctx, dict.Ports, rawAirports)
		if err != nil {
			return nil, &WarehouseError{Stage: "build_airports", Err: err}
		}
		if verr := quality.RequireUnique(airports, "i94port"); verr != nil {
			return nil, &WarehouseError{Stage: "check_airports", Err: verr}
		}
		out.Airports = airports
		out.Reports = append(out.Reports, quality.Check(airports, "i94port"))
	}

	if err := exportTables(ctx, out, opts.Exports); err != nil {
		return nil, err
	}

	return out, nil
}

// exportTables streams each configured output table into its sink through the
// pipeline. Export order follows build order.
func exportTables(ctx context.Context, out *Outputs, targets map[string]ExportTarget) error {
	if len(targets) == 0 {
		return nil
	}

	for _, t := range []*table.Table{
		out.Facts, out.Weather, out.DemographicSummary, out.DemographicRaces, out.Airports,
	} {
		if t == nil {
			continue
		}
		target, ok := targets[t.Name()]
		if !ok {
			continue
		}

		sink, err := target.Location.NewSink(target.Format)
		if err != nil {
			return &WarehouseError{Stage: "export_" + t.Name(), Err: err}
		}

		pipeline, err := NewPipeline().
			From(table.Source(t)).
			To(sink).
			WithErrorStrategy(FailFast).
			Build()
		if err != nil {
			return &WarehouseError{Stage: "export_" + t.Name(), Err: err}
		}
		if err := pipeline.Execute(ctx); err != nil {
			return &WarehouseError{Stage: "export_" + t.Name(), Err: err}
		}
	}
	return nil
}
