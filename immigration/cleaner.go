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
	"fmt"
	"time"

	"github.com/aaronlmathis/i94etl/filter"
	"github.com/aaronlmathis/i94etl/table"
	"github.com/aaronlmathis/i94etl/transform"
)

// Package immigration cleans the raw I94 arrival extract into the warehouse
// fact table. Five passes, each strictly downstream of the previous: drop
// near-empty columns, drop rows without an identity, cast the numeric code
// columns, convert the SAS day-offset dates, drop the redundant year and
// month columns.

// CleanerError wraps structured error information for the cleaning passes.
type CleanerError struct {
	Op  string
	Err error
}

func (e *CleanerError) Error() string {
	return fmt.Sprintf("immigration cleaner %s: %v", e.Op, e.Err)
}

func (e *CleanerError) Unwrap() error {
	return e.Err
}

// CleanConfig configures the cleaning passes. The thresholds and column lists
// are explicit configuration rather than literals buried in the passes.
type CleanConfig struct {
	// NullThreshold is the null fraction above which a column is dropped.
	NullThreshold float64
	// IDColumn is the fact table identity; rows without it are dropped, and a
	// value that fails the integer cast is a fatal error.
	IDColumn string
	// IntColumns are cast to int, tolerating float-stored values. Failures
	// outside the id column become nulls.
	IntColumns []string
	// DateColumns hold day offsets from Epoch and become calendar dates.
	DateColumns []string
	// Epoch is day zero of the day-offset encoding.
	Epoch time.Time
	// DropAfterDates are removed once calendar dates exist.
	DropAfterDates []string
}

// DefaultCleanConfig returns the configuration matching the I94 extract.
func DefaultCleanConfig() CleanConfig {
	return CleanConfig{
		NullThreshold: 0.9,
		IDColumn:      "cicid",
		IntColumns: []string{
			"cicid", "i94yr", "i94mon", "i94cit", "i94res",
			"arrdate", "depdate", "i94bir", "count", "i94visa",
			"biryear", "admnum",
		},
		DateColumns:    []string{"arrdate", "depdate"},
		Epoch:          transform.SASEpoch,
		DropAfterDates: []string{"i94yr", "i94mon"},
	}
}

// Clean runs the cleaning passes over the raw extract and returns the fact
// table. The input table is not modified.
func Clean(ctx context.Context, raw *table.Table, cfg CleanConfig) (*table.Table, error) {
	if cfg.IDColumn == "" {
		return nil, &CleanerError{Op: "config", Err: fmt.Errorf("id column is required")}
	}
	if cfg.NullThreshold <= 0 || cfg.NullThreshold > 1 {
		return nil, &CleanerError{Op: "config", Err: fmt.Errorf("null threshold %v out of (0,1]", cfg.NullThreshold)}
	}

	// Pass 1: drop columns that are almost entirely null. Computed once
	// against the original table, not re-derived as columns disappear.
	fractions := raw.NullFractions()
	var dropped []string
	for column, fraction := range fractions {
		if fraction > cfg.NullThreshold {
			dropped = append(dropped, column)
		}
	}
	cleaned := raw.DropColumns(dropped...)

	// Pass 2: no identity, no row. Then dedupe on identity, first one wins.
	cleaned, err := cleaned.Filter(ctx, filter.NotNull(cfg.IDColumn))
	if err != nil {
		return nil, &CleanerError{Op: "drop_missing_id", Err: err}
	}
	cleaned = cleaned.DropDuplicates(cfg.IDColumn)

	// Pass 3: integer casts. The extract stores every numeric as float.
	for _, column := range cfg.IntColumns {
		if !cleaned.HasColumn(column) {
			continue
		}
		caster := transform.ToInt(column)
		if column == cfg.IDColumn {
			caster = transform.ToStrictInt(column)
		}
		cleaned, err = cleaned.Apply(ctx, caster)
		if err != nil {
			return nil, &CleanerError{Op: "cast_" + column, Err: err}
		}
	}

	// Pass 4: day offsets to calendar dates.
	for _, column := range cfg.DateColumns {
		if !cleaned.HasColumn(column) {
			continue
		}
		cleaned, err = cleaned.Apply(ctx, transform.EpochDaysToDate(column, cfg.Epoch))
		if err != nil {
			return nil, &CleanerError{Op: "date_" + column, Err: err}
		}
	}

	// Pass 5: year and month are redundant once calendar dates exist. No
	// synthetic join key to the weather dimension is created here; temporal
	// join granularity is the consumer's call.
	cleaned = cleaned.DropColumns(cfg.DropAfterDates...)

	return cleaned.WithName("immigration_facts"), nil
}

// CountryCodeSet returns the union of codes in the origin and residence
// country columns of the fact table, nulls excluded, cast to int.
func CountryCodeSet(facts *table.Table, columns ...string) map[int]bool {
	if len(columns) == 0 {
		columns = []string{"i94cit", "i94res"}
	}
	codes := make(map[int]bool)
	for _, row := range facts.Rows() {
		for _, column := range columns {
			value, ok := row[column]
			if !ok || value == nil {
				continue
			}
			if code, err := transform.IntValue(value); err == nil {
				codes[code] = true
			}
		}
	}
	return codes
}
