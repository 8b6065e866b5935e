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

package core

import "context"

// Package core defines the record model and streaming interfaces shared by
// every stage of the I94 warehouse ETL: raw loaders, the SAS label parser,
// the immigration cleaner, the dimension builders, and the export sinks.

// Record represents a single data record in the pipeline.
// Each record is a map from field names to values; a nil value is a null cell.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
// Transformations copy before mutating so upstream tables stay immutable.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// DataSource defines the interface for data extraction.
// Implementations stream records from a source (e.g., CSV, Parquet, S3).
type DataSource interface {
	// Read returns the next record or io.EOF when no more records are available.
	Read(ctx context.Context) (Record, error)
	// Close releases any resources held by the data source.
	Close() error
}

// DataSink defines the interface for data loading.
// Implementations write records to a destination (e.g., CSV, Parquet, PostgreSQL).
type DataSink interface {
	// Write outputs a single record to the sink.
	Write(ctx context.Context, record Record) error
	// Flush ensures all buffered data is written to the sink.
	Flush() error
	// Close releases any resources held by the data sink.
	Close() error
}

// Transformer defines the interface for data transformation operations.
// Transformers modify or enrich records as they pass through the pipeline.
type Transformer interface {
	// Transform applies the transformation to a record and returns the result.
	Transform(ctx context.Context, record Record) (Record, error)
}

// TransformFunc is a function adapter for the Transformer interface.
type TransformFunc func(ctx context.Context, record Record) (Record, error)

// Transform implements the Transformer interface for TransformFunc.
func (f TransformFunc) Transform(ctx context.Context, record Record) (Record, error) {
	return f(ctx, record)
}

// Filter defines the interface for record filtering.
// Filters determine whether a record should be included in the output.
type Filter interface {
	// ShouldInclude returns true if the record should be included in the output.
	ShouldInclude(ctx context.Context, record Record) (bool, error)
}

// FilterFunc is a function adapter for the Filter interface.
type FilterFunc func(ctx context.Context, record Record) (bool, error)

// ShouldInclude implements the Filter interface for FilterFunc.
func (f FilterFunc) ShouldInclude(ctx context.Context, record Record) (bool, error) {
	return f(ctx, record)
}

// Aggregator defines the interface for data aggregation operations.
// Aggregators consume a group of records and produce a single summary value.
type Aggregator interface {
	// Add processes a record for aggregation.
	Add(ctx context.Context, record Record) error
	// Result returns the aggregated value.
	Result() (interface{}, error)
	// Reset clears the aggregator state for reuse.
	Reset()
	// Clone returns a fresh aggregator of the same kind for a new group.
	Clone() Aggregator
}
