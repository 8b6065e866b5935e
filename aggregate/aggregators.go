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

package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/aaronlmathis/i94etl/core"
)

// Package aggregate provides group-by aggregation over materialized rows.
// The demographic dimension builder sums city populations per state and takes
// the median of per-city medians; the race distribution sums counts per
// (state, race) pair.

// CountAggregator counts the records in a group.
type CountAggregator struct {
	count int
}

func (c *CountAggregator) Add(ctx context.Context, record core.Record) error {
	c.count++
	return nil
}

func (c *CountAggregator) Result() (interface{}, error) { return c.count, nil }
func (c *CountAggregator) Reset()                       { c.count = 0 }
func (c *CountAggregator) Clone() core.Aggregator       { return &CountAggregator{} }

// SumAggregator sums a numeric field, skipping null and non-numeric cells.
type SumAggregator struct {
	Field string
	sum   float64
}

func (s *SumAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[s.Field]; exists && value != nil {
		if num, err := toFloat64(value); err == nil {
			s.sum += num
		}
	}
	return nil
}

func (s *SumAggregator) Result() (interface{}, error) { return s.sum, nil }
func (s *SumAggregator) Reset()                       { s.sum = 0 }
func (s *SumAggregator) Clone() core.Aggregator       { return &SumAggregator{Field: s.Field} }

// AvgAggregator averages a numeric field over the group's non-null cells.
type AvgAggregator struct {
	Field string
	sum   float64
	count int
}

func (a *AvgAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[a.Field]; exists && value != nil {
		if num, err := toFloat64(value); err == nil {
			a.sum += num
			a.count++
		}
	}
	return nil
}

func (a *AvgAggregator) Result() (interface{}, error) {
	if a.count == 0 {
		return nil, nil
	}
	return a.sum / float64(a.count), nil
}

func (a *AvgAggregator) Reset()                 { a.sum, a.count = 0, 0 }
func (a *AvgAggregator) Clone() core.Aggregator { return &AvgAggregator{Field: a.Field} }

// MedianAggregator computes the median of a numeric field. With an even
// number of values it averages the two middle ones. The demographic summary
// takes the median of per-city medians, a documented approximation of the
// source material, not a population-weighted figure.
type MedianAggregator struct {
	Field  string
	values []float64
}

func (m *MedianAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[m.Field]; exists && value != nil {
		if num, err := toFloat64(value); err == nil {
			m.values = append(m.values, num)
		}
	}
	return nil
}

func (m *MedianAggregator) Result() (interface{}, error) {
	if len(m.values) == 0 {
		return nil, nil
	}
	sorted := append([]float64(nil), m.values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid], nil
	}
	return (sorted[mid-1] + sorted[mid]) / 2, nil
}

func (m *MedianAggregator) Reset()                 { m.values = nil }
func (m *MedianAggregator) Clone() core.Aggregator { return &MedianAggregator{Field: m.Field} }

// FirstAggregator keeps the first non-null value of a field in the group.
// Used to carry the state name through the state-code aggregation.
type FirstAggregator struct {
	Field string
	value interface{}
	set   bool
}

func (f *FirstAggregator) Add(ctx context.Context, record core.Record) error {
	if f.set {
		return nil
	}
	if value, exists := record[f.Field]; exists && value != nil {
		f.value = value
		f.set = true
	}
	return nil
}

func (f *FirstAggregator) Result() (interface{}, error) { return f.value, nil }
func (f *FirstAggregator) Reset()                       { f.value, f.set = nil, false }
func (f *FirstAggregator) Clone() core.Aggregator       { return &FirstAggregator{Field: f.Field} }

// MinAggregator finds the minimum numeric value of a field.
type MinAggregator struct {
	Field string
	min   float64
	set   bool
}

func (m *MinAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[m.Field]; exists && value != nil {
		if num, err := toFloat64(value); err == nil {
			if !m.set || num < m.min {
				m.min = num
				m.set = true
			}
		}
	}
	return nil
}

func (m *MinAggregator) Result() (interface{}, error) {
	if !m.set {
		return nil, nil
	}
	return m.min, nil
}

func (m *MinAggregator) Reset()                 { m.min, m.set = 0, false }
func (m *MinAggregator) Clone() core.Aggregator { return &MinAggregator{Field: m.Field} }

// MaxAggregator finds the maximum numeric value of a field.
type MaxAggregator struct {
	Field string
	max   float64
	set   bool
}

func (m *MaxAggregator) Add(ctx context.Context, record core.Record) error {
	if value, exists := record[m.Field]; exists && value != nil {
		if num, err := toFloat64(value); err == nil {
			if !m.set || num > m.max {
				m.max = num
				m.set = true
			}
		}
	}
	return nil
}

func (m *MaxAggregator) Result() (interface{}, error) {
	if !m.set {
		return nil, nil
	}
	return m.max, nil
}

func (m *MaxAggregator) Reset()                 { m.max, m.set = 0, false }
func (m *MaxAggregator) Clone() core.Aggregator { return &MaxAggregator{Field: m.Field} }

// toFloat64 converts numeric cell values for aggregation.
func toFloat64(value interface{}) (float64, error) {
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
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", value)
	}
}
