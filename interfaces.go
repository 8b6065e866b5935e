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

package i94etl

import "github.com/aaronlmathis/i94etl/core"

// Package i94etl is the facade for the I94 immigration warehouse ETL.
//
// The root package exposes the streaming Pipeline used by loaders and export
// sinks, and the Run entry point (warehouse.go) that drives the whole batch:
// raw loaders, the SAS label dictionary parser, the immigration cleaner, the
// three dimension builders, and the per-table quality checks.
//
// The record model and stage interfaces live in the core package; the aliases
// below keep call sites short.

// Record is a single row; see core.Record.
type Record = core.Record

// DataSource streams records from an input; see core.DataSource.
type DataSource = core.DataSource

// DataSink receives records at the end of a streaming flow; see core.DataSink.
type DataSink = core.DataSink

// Transformer rewrites records in flight; see core.Transformer.
type Transformer = core.Transformer

// TransformFunc adapts a function to Transformer.
type TransformFunc = core.TransformFunc

// Filter decides record inclusion; see core.Filter.
type Filter = core.Filter

// FilterFunc adapts a function to Filter.
type FilterFunc = core.FilterFunc

// ErrorHandler and ErrorStrategy govern streaming error handling.
type ErrorHandler = core.ErrorHandler

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc = core.ErrorHandlerFunc

// ErrorStrategy selects FailFast, SkipErrors, or CollectErrors behavior.
type ErrorStrategy = core.ErrorStrategy

const (
	// FailFast stops processing on the first error encountered.
	FailFast = core.FailFast
	// SkipErrors continues processing, skipping failed records.
	SkipErrors = core.SkipErrors
	// CollectErrors continues processing, collecting errors for later inspection.
	CollectErrors = core.CollectErrors
)
