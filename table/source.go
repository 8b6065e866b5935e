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

package table

import (
	"context"
	"io"

	"github.com/aaronlmathis/i94etl/core"
)

// TableSource adapts a materialized Table back into a streaming DataSource so
// finished output tables can be exported through the Pipeline.
type TableSource struct {
	table *Table
	pos   int
}

// Source returns a DataSource over the table's rows in table order.
func Source(t *Table) *TableSource {
	return &TableSource{table: t}
}

// Read implements the core.DataSource interface.
func (s *TableSource) Read(ctx context.Context) (core.Record, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if s.pos >= len(s.table.rows) {
		return nil, io.EOF
	}
	row := s.table.rows[s.pos]
	s.pos++
	return row, nil
}

// Close implements the core.DataSource interface. The table stays usable.
func (s *TableSource) Close() error { return nil }
