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

package transform

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aaronlmathis/i94etl/core"
)

// Package transform provides reusable, composable record transformations for
// the warehouse stages: field selection and renaming, string normalization,
// numeric casting tolerant of float-stored codes, and SAS date handling.

// Select creates a transformer that keeps only the specified fields.
func Select(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(fields))
		for _, field := range fields {
			if value, exists := record[field]; exists {
				result[field] = value
			}
		}
		return result, nil
	})
}

// Rename creates a transformer that renames fields according to the mapping.
// Keys are original field names, values are new field names.
func Rename(mapping map[string]string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for key, value := range record {
			if newKey, exists := mapping[key]; exists {
				result[newKey] = value
			} else {
				result[key] = value
			}
		}
		return result, nil
	})
}

// AddField creates a transformer that adds a computed field to each record.
func AddField(field string, fn func(core.Record) interface{}) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		result[field] = fn(record)
		return result, nil
	})
}

// RemoveFields creates a transformer that removes the specified fields.
// Fields that don't exist are ignored.
func RemoveFields(fields ...string) core.Transformer {
	remove := make(map[string]bool, len(fields))
	for _, field := range fields {
		remove[field] = true
	}

	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := make(core.Record, len(record))
		for k, v := range record {
			if !remove[k] {
				result[k] = v
			}
		}
		return result, nil
	})
}

// TrimSpace creates a transformer that trims whitespace from string fields.
func TrimSpace(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fields {
			if str, ok := record[field].(string); ok {
				result[field] = strings.TrimSpace(str)
			}
		}
		return result, nil
	})
}

// ToUpper creates a transformer that uppercases string fields. Non-string
// values are first rendered as strings, matching the notebook's astype(str)
// then upper() treatment of the weather country column.
func ToUpper(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fields {
			value, exists := record[field]
			if !exists || value == nil {
				continue
			}
			if str, ok := value.(string); ok {
				result[field] = strings.ToUpper(str)
			} else {
				result[field] = strings.ToUpper(fmt.Sprintf("%v", value))
			}
		}
		return result, nil
	})
}

// ToLower creates a transformer that lowercases string fields.
func ToLower(fields ...string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		for _, field := range fields {
			if str, ok := record[field].(string); ok {
				result[field] = strings.ToLower(str)
			}
		}
		return result, nil
	})
}

// ToInt creates a transformer that casts a field to int, nulling the field on
// failure. Codes in the immigration extract are stored as floats; cast
// failures become nulls rather than errors, per the source data's contract.
func ToInt(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || value == nil {
			return result, nil
		}
		if n, err := IntValue(value); err == nil {
			result[field] = n
		} else {
			result[field] = nil
		}
		return result, nil
	})
}

// ToFloat creates a transformer that casts a field to float64, nulling the
// field on failure. Used for the demographic ratio columns, which arrive as
// strings from the CSV layer.
func ToFloat(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || value == nil {
			return result, nil
		}
		if f, err := FloatValue(value); err == nil {
			result[field] = f
		} else {
			result[field] = nil
		}
		return result, nil
	})
}

// ToStrictInt is like ToInt but returns an error on cast failure. Used for
// fields that must always be well-formed, such as the fact table identity.
func ToStrictInt(field string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		value, exists := record[field]
		if !exists || value == nil {
			return result, nil
		}
		n, err := IntValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to cast field %s: %w", field, err)
		}
		result[field] = n
		return result, nil
	})
}

// ParseTime creates a transformer that parses a string field into a time.Time
// using the given layout. Nil and non-string values pass through untouched.
func ParseTime(field, layout string) core.Transformer {
	return core.TransformFunc(func(ctx context.Context, record core.Record) (core.Record, error) {
		result := record.Clone()
		if str, ok := record[field].(string); ok {
			parsed, err := time.Parse(layout, str)
			if err != nil {
				return nil, fmt.Errorf("failed to parse time field %s: %w", field, err)
			}
			result[field] = parsed
		}
		return result, nil
	})
}

// IntValue converts a cell value to int. Float-stored values truncate; strings
// parse after trimming. Fractional floats are rejected so a genuinely broken
// cell does not silently round.
func IntValue(value interface{}) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float32:
		return intFromFloat(float64(v))
	case float64:
		return intFromFloat(v)
	case string:
		trimmed := strings.TrimSpace(v)
		if n, err := strconv.Atoi(trimmed); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot convert %q to int", v)
		}
		return intFromFloat(f)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

// FloatValue converts a cell value to float64.
func FloatValue(value interface{}) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}

// StringValue renders a cell value as a string. Nil stays nil-equivalent "".
func StringValue(value interface{}) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func intFromFloat(f float64) (int, error) {
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("float %v has a fractional part", f)
	}
	return int(f), nil
}
