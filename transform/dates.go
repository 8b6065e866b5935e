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

// dates.go - SAS day-offset date handling
package transform

import (
	"context"
	"time"

	"github.com/aaronlmathis/i94etl/core"
)

// SASEpoch is day zero of the SAS date encoding used by the immigration
// extract's arrival and departure columns.
var SASEpoch = time.Date(1960, time.January, 1, 0, 0, 0, 0, time.UTC)

// FromEpochDays converts a day offset to a calendar date. Pure function:
// offset 0 is the epoch itself, offset 1 the following day, negative offsets
// count backwards without wraparound.
func FromEpochDays(epoch time.Time, days int) time.Time {
	return epoch.AddDate(0, 0, days)
}

// EpochDaysToDate creates a transformer that replaces an integer day-offset
// field with its calendar date. Nil offsets stay nil (open departure dates);
// unparseable offsets become nil like any other failed numeric cast.
func EpochDaysToDate(field string, epoch time.Time) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || value == nil {
			return result, nil
		}
		days, err := IntValue(value)
		if err != nil {
			result[field] = nil
			return result, nil
		}
		result[field] = FromEpochDays(epoch, days)
		return result, nil
	})
}

// ParseDate creates a transformer that parses a yyyy-mm-dd string field into a
// time.Time, nulling the field when the cell does not parse. The weather
// history carries its observation date as a plain string.
func ParseDate(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || value == nil {
			return result, nil
		}
		str, ok := value.(string)
		if !ok {
			if t, isTime := value.(time.Time); isTime {
				result[field] = t
				return result, nil
			}
			result[field] = nil
			return result, nil
		}
		parsed, err := time.Parse("2006-01-02", str)
		if err != nil {
			result[field] = nil
			return result, nil
		}
		result[field] = parsed
		return result, nil
	})
}
