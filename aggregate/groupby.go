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
	"strings"

	"github.com/aaronlmathis/i94etl/core"
)

// GroupBy groups rows by one or more key fields and applies a set of
// aggregators per group. Output rows carry the group key fields plus one
// field per aggregator, in first-seen group order.
type GroupBy struct {
	groupFields []string
	outputs     []string
	prototypes  map[string]core.Aggregator
}

// NewGroupBy creates a GroupBy over the given key fields.
func NewGroupBy(groupFields ...string) *GroupBy {
	return &GroupBy{
		groupFields: groupFields,
		prototypes:  make(map[string]core.Aggregator),
	}
}

// Count adds a count aggregator writing to outputField.
func (g *GroupBy) Count(outputField string) *GroupBy {
	return g.Aggregate(outputField, &CountAggregator{})
}

// Sum adds a sum aggregator over field writing to outputField.
func (g *GroupBy) Sum(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &SumAggregator{Field: field})
}

// Avg adds an average aggregator over field writing to outputField.
func (g *GroupBy) Avg(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &AvgAggregator{Field: field})
}

// Median adds a median aggregator over field writing to outputField.
func (g *GroupBy) Median(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &MedianAggregator{Field: field})
}

// First adds a first-non-null aggregator over field writing to outputField.
func (g *GroupBy) First(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &FirstAggregator{Field: field})
}

// Min adds a minimum aggregator over field writing to outputField.
func (g *GroupBy) Min(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &MinAggregator{Field: field})
}

// Max adds a maximum aggregator over field writing to outputField.
func (g *GroupBy) Max(field, outputField string) *GroupBy {
	return g.Aggregate(outputField, &MaxAggregator{Field: field})
}

// Aggregate registers a custom aggregator under outputField.
func (g *GroupBy) Aggregate(outputField string, agg core.Aggregator) *GroupBy {
	if _, exists := g.prototypes[outputField]; !exists {
		g.outputs = append(g.outputs, outputField)
	}
	g.prototypes[outputField] = agg
	return g
}

// Process aggregates the rows and returns one record per group.
func (g *GroupBy) Process(ctx context.Context, rows []core.Record) ([]core.Record, error) {
	type group struct {
		keyValues map[string]interface{}
		aggs      map[string]core.Aggregator
	}

	groups := make(map[string]*group)
	var order []string

	for _, record := range rows {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		key := g.buildGroupKey(record)
		grp, exists := groups[key]
		if !exists {
			grp = &group{
				keyValues: make(map[string]interface{}, len(g.groupFields)),
				aggs:      make(map[string]core.Aggregator, len(g.prototypes)),
			}
			for _, field := range g.groupFields {
				grp.keyValues[field] = record[field]
			}
			for outputField, prototype := range g.prototypes {
				grp.aggs[outputField] = prototype.Clone()
			}
			groups[key] = grp
			order = append(order, key)
		}

		for outputField, agg := range grp.aggs {
			if err := agg.Add(ctx, record); err != nil {
				return nil, fmt.Errorf("aggregation error for field %s: %w", outputField, err)
			}
		}
	}

	results := make([]core.Record, 0, len(groups))
	for _, key := range order {
		grp := groups[key]
		result := make(core.Record, len(g.groupFields)+len(g.outputs))
		for field, value := range grp.keyValues {
			result[field] = value
		}
		for _, outputField := range g.outputs {
			value, err := grp.aggs[outputField].Result()
			if err != nil {
				return nil, fmt.Errorf("failed to get result for field %s: %w", outputField, err)
			}
			result[outputField] = value
		}
		results = append(results, result)
	}

	return results, nil
}

// buildGroupKey encodes the group field values into a composite key.
func (g *GroupBy) buildGroupKey(record core.Record) string {
	parts := make([]string, 0, len(g.groupFields))
	for _, field := range g.groupFields {
		if value, exists := record[field]; exists && value != nil {
			parts = append(parts, fmt.Sprintf("%v", value))
		} else {
			parts = append(parts, "\x00")
		}
	}
	return strings.Join(parts, "\x1f")
}
