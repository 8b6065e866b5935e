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

package readers

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	*strings.Reader
}

func (nopCloser) Close() error { return nil }

func newTestCSVReader(t *testing.T, data string, options ...ReaderOptionCSV) *CSVReader {
	t.Helper()
	reader, err := NewCSVReader(nopCloser{strings.NewReader(data)}, options...)
	require.NoError(t, err)
	return reader
}

func readAll(t *testing.T, r *CSVReader) []map[string]interface{} {
	t.Helper()
	var records []map[string]interface{}
	for {
		record, err := r.Read(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestCSVReader_TypeInference(t *testing.T) {
	data := `cicid,i94port,arrdate,temperature
1.0,ATL,20573.0,17.6
2,ANC,20566,13`

	records := readAll(t, newTestCSVReader(t, data))
	require.Len(t, records, 2)

	assert.Equal(t, 1.0, records[0]["cicid"])
	assert.Equal(t, "ATL", records[0]["i94port"])
	assert.Equal(t, 20573.0, records[0]["arrdate"])
	assert.Equal(t, 17.6, records[0]["temperature"])

	// Integers without a decimal point come out as int.
	assert.Equal(t, 2, records[1]["cicid"])
	assert.Equal(t, 20566, records[1]["arrdate"])
}

func TestCSVReader_InferenceDisabled(t *testing.T) {
	data := `i94port,code
ATL,007`

	records := readAll(t, newTestCSVReader(t, data, WithCSVInferTypes(false)))
	require.Len(t, records, 1)
	// Leading-zero codes survive as strings.
	assert.Equal(t, "007", records[0]["code"])
}

func TestCSVReader_EmptyCellsBecomeNil(t *testing.T) {
	data := `cicid,depdate,gender
1,20582,F
2,,
3,20590,M`

	reader := newTestCSVReader(t, data)
	records := readAll(t, reader)
	require.Len(t, records, 3)

	assert.Nil(t, records[1]["depdate"])
	assert.Nil(t, records[1]["gender"])
	assert.Equal(t, "M", records[2]["gender"])

	stats := reader.Stats()
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, int64(1), stats.NullValueCounts["depdate"])
	assert.Equal(t, int64(1), stats.NullValueCounts["gender"])
}

func TestCSVReader_SemicolonDelimiter(t *testing.T) {
	data := `City;State Code;Total Population
Anchorage;AK;298695`

	records := readAll(t, newTestCSVReader(t, data, WithCSVComma(';')))
	require.Len(t, records, 1)
	assert.Equal(t, "Anchorage", records[0]["City"])
	assert.Equal(t, "AK", records[0]["State Code"])
	assert.Equal(t, 298695, records[0]["Total Population"])
}

func TestCSVReader_NoHeaders(t *testing.T) {
	data := `ANC,AK
ATL,GA`

	records := readAll(t, newTestCSVReader(t, data, WithCSVHasHeaders(false)))
	require.Len(t, records, 2)
	assert.Equal(t, "ANC", records[0]["col_0"])
	assert.Equal(t, "GA", records[1]["col_1"])
}

func TestCSVReader_ContextCancelled(t *testing.T) {
	reader := newTestCSVReader(t, "a\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reader.Read(ctx)
	require.Error(t, err)

	var readerErr *CSVReaderError
	require.ErrorAs(t, err, &readerErr)
	assert.Equal(t, "read", readerErr.Op)
}

func TestOpenCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ports.csv")
	require.NoError(t, os.WriteFile(path, []byte("i94port,addr\nANC,AK\n"), 0o644))

	reader, err := OpenCSV(path)
	require.NoError(t, err)

	records := readAll(t, reader)
	require.Len(t, records, 1)
	assert.Equal(t, "ANC", records[0]["i94port"])
	require.NoError(t, reader.Close())

	_, err = OpenCSV(filepath.Join(dir, "missing.csv"))
	require.Error(t, err)
}
