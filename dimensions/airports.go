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

// airports.go - port dimension enriched with airport reference data
package dimensions

import (
	"context"
	"strings"

	"github.com/aaronlmathis/i94etl/core"
	"github.com/aaronlmathis/i94etl/table"
)

// BuildAirports builds the port dimension: every port code from the label
// descriptor, enriched with the matching airport reference row where the port
// code matches an airport ident. Unmatched ports are kept with nil airport
// columns; the join preserves the port list's cardinality.
//
// Port codes and airport idents only coincidentally align, so each joined row
// gets a false_join flag: true when airport data attached but the airport's
// region state disagrees with the port's state code. Flagged rows are kept;
// filtering them is the consumer's call.
func BuildAirports(ctx context.Context, ports, airports *table.Table) (*table.Table, error) {
	joined, err := table.LeftJoin(ctx, ports, airports,
		[]string{"i94port"}, []string{"ident"},
		table.JoinOptions{RightUnique: true})
	if err != nil {
		return nil, &DimensionError{Op: "airports_join", Err: err}
	}

	// "US-AK" style region codes; the state is the part after the last dash.
	joined = joined.WithColumn("iso_region_state", func(r core.Record) interface{} {
		region, ok := r["iso_region"].(string)
		if !ok || region == "" {
			return nil
		}
		if idx := strings.LastIndex(region, "-"); idx >= 0 {
			return region[idx+1:]
		}
		return region
	})

	joined = joined.WithColumn("false_join", func(r core.Record) interface{} {
		if r["type"] == nil {
			return false
		}
		state, _ := r["iso_region_state"].(string)
		addr, _ := r["addr"].(string)
		return state != addr
	})

	return joined.WithName("airport_dim"), nil
}
