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

import (
	"context"
	"fmt"
)

// ErrorHandler defines how errors are handled during processing.
// Custom error handlers can be used to log, collect, or transform errors.
type ErrorHandler interface {
	// HandleError processes an error that occurred during transformation.
	// Returning a non-nil error will stop the pipeline; returning nil will continue.
	HandleError(ctx context.Context, record Record, err error) error
}

// ErrorStrategy defines how to handle transformation errors in the pipeline.
type ErrorStrategy int

const (
	// FailFast stops processing on the first error encountered.
	FailFast ErrorStrategy = iota
	// SkipErrors continues processing, skipping failed records.
	SkipErrors
	// CollectErrors continues processing, collecting all errors for later inspection.
	CollectErrors
)

// ErrorHandlerFunc is a function adapter for the ErrorHandler interface.
type ErrorHandlerFunc func(ctx context.Context, record Record, err error) error

// HandleError implements the ErrorHandler interface for ErrorHandlerFunc.
func (f ErrorHandlerFunc) HandleError(ctx context.Context, record Record, err error) error {
	return f(ctx, record, err)
}

// ValidationError reports a violated table invariant: a duplicate key, a null
// value in a required column, an unexpected row count. Quality checks return it
// instead of printing advisory output so callers can fail the run.
type ValidationError struct {
	Table  string // table the check ran against
	Column string // offending column, if the rule is column-scoped
	Rule   string // rule identifier (e.g., "unique", "not_null", "row_count")
	Detail string // human-readable specifics
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("validation %s: table %s column %s: %s", e.Rule, e.Table, e.Column, e.Detail)
	}
	return fmt.Sprintf("validation %s: table %s: %s", e.Rule, e.Table, e.Detail)
}
