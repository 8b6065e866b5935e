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

package writers

import (
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/i94etl/core"
)

// Mock writer for CSV testing
type mockCSVWriteCloser struct {
	*strings.Builder
	closed    bool
	failWrite bool
	failClose bool
	mu        sync.Mutex
}

func (m *mockCSVWriteCloser) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return 0, io.ErrUnexpectedEOF
	}
	return m.Builder.Write(p)
}

func (m *mockCSVWriteCloser) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	if m.failClose {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func (m *mockCSVWriteCloser) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Builder.String()
}

func (m *mockCSVWriteCloser) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newMockCSVWriteCloser() *mockCSVWriteCloser {
	return &mockCSVWriteCloser{
		Builder: &strings.Builder{},
	}
}

func TestCSVWriter_BasicFunctionality(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock)
	require.NoError(t, err)

	ctx := context.Background()

	record := core.Record{
		"cicid":   6,
		"i94port": "ATL",
		"i94bir":  25,
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Len(t, lines, 2) // header + 1 data row

	reader := csv.NewReader(strings.NewReader(output))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)

	assert.True(t, mock.IsClosed())
}

func TestCSVWriter_WithHeaders(t *testing.T) {
	mock := newMockCSVWriteCloser()
	headers := []string{"i94port", "port", "addr"}
	writer, err := NewCSVWriter(mock, WithHeaders(headers))
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"i94port": "ANC",
		"port":    "ANCHORAGE",
		"addr":    "AK",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	reader := csv.NewReader(strings.NewReader(output))
	records, err := reader.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, headers, records[0])
	assert.Equal(t, []string{"ANC", "ANCHORAGE", "AK"}, records[1])
}

func TestCSVWriter_CustomDelimiter(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithComma(';'),
		WithHeaders([]string{"state_code", "race"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"state_code": "AK",
		"race":       "Asian",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	assert.Contains(t, output, "state_code;race")
	assert.Contains(t, output, "AK;Asian")
}

func TestCSVWriter_NoHeaders(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithWriteHeader(false),
		WithHeaders([]string{"name", "value"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"name":  "test",
		"value": "data",
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	lines := strings.Split(strings.TrimSpace(output), "\n")
	assert.Len(t, lines, 1)
	assert.Equal(t, "test,data", lines[0])
}

func TestCSVWriter_BatchedWrites(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithCSVBatchSize(3),
		WithHeaders([]string{"cicid", "i94bir"}),
	)
	require.NoError(t, err)

	ctx := context.Background()

	for i := 0; i < 5; i++ {
		record := core.Record{"cicid": i, "i94bir": 20 + i}
		err = writer.Write(ctx, record)
		require.NoError(t, err)
	}

	err = writer.Flush()
	require.NoError(t, err)

	err = writer.Close()
	require.NoError(t, err)

	output := mock.String()
	reader := csv.NewReader(strings.NewReader(output))
	records, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 6) // header + 5 data rows

	stats := writer.Stats()
	assert.Equal(t, int64(5), stats.RecordsWritten)
	assert.Greater(t, stats.FlushCount, int64(0))
}

func TestCSVWriter_NullValueTracking(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"cicid", "depdate", "gender"}))
	require.NoError(t, err)

	ctx := context.Background()
	records := []core.Record{
		{"cicid": 1, "depdate": "2016-05-01", "gender": nil},
		{"cicid": 2, "depdate": nil, "gender": "F"},
		{"cicid": nil, "depdate": "2016-05-03", "gender": nil},
	}

	for _, record := range records {
		err = writer.Write(ctx, record)
		require.NoError(t, err)
	}

	err = writer.Close()
	require.NoError(t, err)

	stats := writer.Stats()
	assert.Equal(t, int64(2), stats.NullValueCounts["gender"])
	assert.Equal(t, int64(1), stats.NullValueCounts["depdate"])
	assert.Equal(t, int64(1), stats.NullValueCounts["cicid"])

	output := mock.String()
	reader := csv.NewReader(strings.NewReader(output))
	rows, err := reader.ReadAll()
	require.NoError(t, err)

	// Nulls become empty cells
	assert.Equal(t, []string{"1", "2016-05-01", ""}, rows[1])
	assert.Equal(t, []string{"2", "", "F"}, rows[2])
	assert.Equal(t, []string{"", "2016-05-03", ""}, rows[3])
}

func TestCSVWriter_DateRendering(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock, WithHeaders([]string{"cicid", "arrdate"}))
	require.NoError(t, err)

	ctx := context.Background()
	record := core.Record{
		"cicid":   7,
		"arrdate": time.Date(2016, time.April, 30, 0, 0, 0, 0, time.UTC),
	}

	err = writer.Write(ctx, record)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	output := mock.String()
	reader := csv.NewReader(strings.NewReader(output))
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"7", "2016-04-30"}, rows[1])
}

func TestCSVWriter_ErrorHandling(t *testing.T) {
	t.Run("write_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithWriteHeader(false), WithCSVBatchSize(1))
		require.NoError(t, err)

		mock.failWrite = true

		ctx := context.Background()
		record := core.Record{"test": "value"}

		err = writer.Write(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "csv writer")
	})

	t.Run("header_write_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithWriteHeader(true))
		require.NoError(t, err)

		mock.failWrite = true

		ctx := context.Background()
		record := core.Record{"test": "value"}

		err = writer.Write(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "csv writer")
	})

	t.Run("close_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		mock.failClose = true
		writer, err := NewCSVWriter(mock)
		require.NoError(t, err)

		ctx := context.Background()
		record := core.Record{"test": "value"}

		err = writer.Write(ctx, record)
		require.NoError(t, err)

		err = writer.Close()
		assert.Error(t, err)
	})

	t.Run("write_after_error", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithWriteHeader(false), WithCSVBatchSize(1))
		require.NoError(t, err)

		mock.failWrite = true
		ctx := context.Background()
		record := core.Record{"test": "value"}

		err = writer.Write(ctx, record)
		assert.Error(t, err)

		// Writer stays failed even after the underlying stream recovers.
		mock.failWrite = false
		err = writer.Write(ctx, record)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "error state")
	})
}

func TestCSVWriter_ConcurrentSafety(t *testing.T) {
	mock := newMockCSVWriteCloser()
	writer, err := NewCSVWriter(mock,
		WithCSVBatchSize(10),
		WithHeaders([]string{"worker", "record", "data"}),
	)
	require.NoError(t, err)

	ctx := context.Background()
	const numGoroutines = 5
	const recordsPerGoroutine = 3

	var wg sync.WaitGroup
	errChan := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < recordsPerGoroutine; j++ {
				record := core.Record{
					"worker": workerID,
					"record": j,
					"data":   "test data",
				}
				if err := writer.Write(ctx, record); err != nil {
					errChan <- err
					return
				}
			}
		}(i)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		t.Errorf("Concurrent write error: %v", err)
	}

	err = writer.Close()
	require.NoError(t, err)

	stats := writer.Stats()
	assert.Equal(t, int64(numGoroutines*recordsPerGoroutine), stats.RecordsWritten)

	output := strings.TrimSpace(mock.String())
	if output != "" {
		reader := csv.NewReader(strings.NewReader(output))
		records, err := reader.ReadAll()
		require.NoError(t, err)
		assert.Len(t, records, numGoroutines*recordsPerGoroutine+1) // +1 for header
	}
}

func TestCSVWriter_EdgeCases(t *testing.T) {
	t.Run("empty_record", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithHeaders([]string{"field1", "field2"}))
		require.NoError(t, err)

		ctx := context.Background()
		record := core.Record{}

		err = writer.Write(ctx, record)
		require.NoError(t, err)

		err = writer.Close()
		require.NoError(t, err)

		output := mock.String()
		reader := csv.NewReader(strings.NewReader(output))
		records, err := reader.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, []string{"", ""}, records[1])
	})

	t.Run("special_characters", func(t *testing.T) {
		mock := newMockCSVWriteCloser()
		writer, err := NewCSVWriter(mock, WithHeaders([]string{"port"}))
		require.NoError(t, err)

		ctx := context.Background()
		record := core.Record{
			"port": "WASHINGTON, DC",
		}

		err = writer.Write(ctx, record)
		require.NoError(t, err)

		err = writer.Close()
		require.NoError(t, err)

		output := mock.String()
		reader := csv.NewReader(strings.NewReader(output))
		records, err := reader.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "WASHINGTON, DC", records[1][0])
	})
}
