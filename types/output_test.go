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
//

package types

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
)

func TestFileLocation_NewSink(t *testing.T) {
	dir := t.TempDir()

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "ports.csv")
		sink, err := FileLocation{Path: path}.NewSink(FormatCSV)
		require.NoError(t, err)

		require.NoError(t, sink.Write(context.Background(), core.Record{"i94port": "ANC", "addr": "AK"}))
		require.NoError(t, sink.Flush())
		require.NoError(t, sink.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "ANC")
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "report.json")
		sink, err := FileLocation{Path: path}.NewSink(FormatJSON)
		require.NoError(t, err)

		require.NoError(t, sink.Write(context.Background(), core.Record{"table": "facts", "rows": 3}))
		require.NoError(t, sink.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"table":"facts"`)
	})

	t.Run("parquet", func(t *testing.T) {
		path := filepath.Join(dir, "facts.parquet")
		sink, err := FileLocation{Path: path}.NewSink(FormatParquet)
		require.NoError(t, err)

		require.NoError(t, sink.Write(context.Background(), core.Record{"cicid": int64(1)}))
		require.NoError(t, sink.Close())

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := FileLocation{Path: filepath.Join(dir, "x")}.NewSink(FormatPostgres)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported format")
	})
}

func TestS3WriteCloser_Buffers(t *testing.T) {
	// Bytes accumulate locally; nothing touches S3 until Close uploads.
	wc := newS3WriteCloser(nil, "warehouse", "tables/ports.csv")

	n, err := wc.Write([]byte("i94port,addr\n"))
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	_, err = wc.Write([]byte("ANC,AK\n"))
	require.NoError(t, err)

	assert.Equal(t, "i94port,addr\nANC,AK\n", wc.buf.String())
}

func TestPostgresLocation_RejectsOtherFormats(t *testing.T) {
	loc := PostgresLocation{DSN: "postgres://localhost/warehouse", Table: "immigration_facts"}

	for _, format := range []OutputFormat{FormatCSV, FormatJSON, FormatParquet} {
		_, err := loc.NewSink(format)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "unsupported format"))
	}
}
