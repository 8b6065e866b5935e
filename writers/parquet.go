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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"github.com/aaronlmathis/i94etl/core"
)

// ParquetWriterError wraps Parquet-specific write errors with context about
// the operation.
type ParquetWriterError struct {
	Op  string
	Err error
}

func (e *ParquetWriterError) Error() string {
	return fmt.Sprintf("parquet writer %s: %v", e.Op, e.Err)
}

func (e *ParquetWriterError) Unwrap() error {
	return e.Err
}

// ParquetWriter implements DataSink for Parquet files. The schema is inferred
// from the first record unless configured explicitly; batching, compression
// and field ordering are configurable. The immigration fact table is the
// heavy consumer here, so batches convert to Arrow records in one pass.
type ParquetWriter struct {
	file          *os.File
	writer        *pqarrow.FileWriter
	schema        *arrow.Schema
	recordCount   int64
	closed        bool
	batchSize     int64
	recordBuffer  []core.Record
	fieldOrder    []string
	stats         WriterStats
	lastGoodState int64
	errorState    bool
	builders      []array.Builder
	allocator     memory.Allocator
	opts          *ParquetWriterOptions
}

// ParquetWriterOptions configures the Parquet writer.
type ParquetWriterOptions struct {
	BatchSize      int64                // records buffered before a row batch write
	Schema         *arrow.Schema        // pre-defined schema (optional)
	Compression    compress.Compression // compression algorithm
	FieldOrder     []string             // explicit field ordering
	RowGroupSize   int64                // max rows per row group
	ValidateSchema bool                 // strict per-record type validation
}

// WriterStats holds statistics about the Parquet writer's performance.
type WriterStats struct {
	RecordsWritten  int64
	BatchesWritten  int64
	FlushDuration   time.Duration
	LastFlushTime   time.Time
	NullValueCounts map[string]int64
}

// WriterOption represents a configuration function for ParquetWriterOptions.
type WriterOption func(*ParquetWriterOptions)

// WithBatchSize sets the number of records to buffer before writing a batch.
func WithBatchSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.BatchSize = size
	}
}

// WithCompression sets the Parquet compression algorithm.
func WithCompression(compression compress.Compression) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Compression = compression
	}
}

// WithFieldOrder sets the explicit field ordering for the Parquet schema.
func WithFieldOrder(fields []string) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.FieldOrder = make([]string, len(fields))
		copy(opts.FieldOrder, fields)
	}
}

// WithSchema sets a pre-defined Arrow schema instead of inferring one.
func WithSchema(schema *arrow.Schema) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.Schema = schema
	}
}

// WithSchemaValidation enables or disables strict schema validation.
func WithSchemaValidation(validate bool) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.ValidateSchema = validate
	}
}

// WithRowGroupSize sets the row group size for the Parquet file.
func WithRowGroupSize(size int64) WriterOption {
	return func(opts *ParquetWriterOptions) {
		opts.RowGroupSize = size
	}
}

// NewParquetWriter creates a new Parquet writer for a file. Parent
// directories are created as needed.
func NewParquetWriter(filename string, options ...WriterOption) (*ParquetWriter, error) {
	opts := (&ParquetWriterOptions{}).withDefaults()

	for _, option := range options {
		option(opts)
	}

	dir := filepath.Dir(filename)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &ParquetWriterError{
				Op:  "create_directory",
				Err: fmt.Errorf("failed to create directory %s: %w", dir, err),
			}
		}
	}
	file, err := os.Create(filename)
	if err != nil {
		return nil, &ParquetWriterError{
			Op:  "open_file",
			Err: fmt.Errorf("failed to create parquet file %s: %w", filename, err),
		}
	}

	return &ParquetWriter{
		file:         file,
		batchSize:    opts.BatchSize,
		schema:       opts.Schema,
		fieldOrder:   opts.FieldOrder,
		recordBuffer: make([]core.Record, 0, opts.BatchSize),
		stats:        WriterStats{NullValueCounts: make(map[string]int64)},
		allocator:    memory.NewGoAllocator(),
		opts:         opts,
	}, nil
}

// Stats returns the current statistics of the Parquet writer.
func (p *ParquetWriter) Stats() WriterStats {
	return p.stats
}

// Write implements the DataSink interface. Buffers records and writes in
// batches.
func (p *ParquetWriter) Write(ctx context.Context, record core.Record) error {
	if p.closed {
		return &ParquetWriterError{
			Op:  "write",
			Err: fmt.Errorf("parquet writer is closed"),
		}
	}

	if p.errorState {
		return &ParquetWriterError{
			Op:  "write",
			Err: fmt.Errorf("writer is in error state"),
		}
	}

	if p.schema == nil {
		if err := p.initializeSchemaFromRecord(record); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "schema",
				Err: fmt.Errorf("failed to initialize schema: %w", err),
			}
		}
	} else if p.writer == nil {
		if err := p.initializeWriter(); err != nil {
			p.errorState = true
			return err
		}
	}

	if p.opts.ValidateSchema {
		if err := p.validateRecord(record); err != nil {
			p.errorState = true
			return &ParquetWriterError{
				Op:  "validate",
				Err: fmt.Errorf("record validation failed: %w", err),
			}
		}
	}

	p.recordBuffer = append(p.recordBuffer, record)
	p.recordCount++
	p.stats.RecordsWritten++

	if int64(len(p.recordBuffer)) >= p.batchSize {
		if err := p.flushBatch(); err != nil {
			return &ParquetWriterError{
				Op:  "flush_batch",
				Err: fmt.Errorf("failed to flush batch: %w", err),
			}
		}
	}

	return nil
}

// Flush implements the DataSink interface.
func (p *ParquetWriter) Flush() error {
	if len(p.recordBuffer) > 0 {
		return p.flushBatch()
	}
	return nil
}

// Close implements the DataSink interface. Flushes and closes all resources.
func (p *ParquetWriter) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	if len(p.recordBuffer) > 0 {
		if err := p.flushBatch(); err != nil {
			return &ParquetWriterError{
				Op:  "flush_remaining",
				Err: fmt.Errorf("failed to flush remaining records: %w", err),
			}
		}
	}

	for _, builder := range p.builders {
		if builder != nil {
			builder.Release()
		}
	}
	p.builders = nil

	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			return &ParquetWriterError{
				Op:  "close_writer",
				Err: fmt.Errorf("failed to close parquet writer: %w", err),
			}
		}
		p.writer = nil
	}

	p.file = nil

	return nil
}

func (opts *ParquetWriterOptions) withDefaults() *ParquetWriterOptions {
	result := &ParquetWriterOptions{}
	if opts != nil {
		*result = *opts
	}
	if result.BatchSize <= 0 {
		result.BatchSize = 1000
	}
	if result.RowGroupSize <= 0 {
		result.RowGroupSize = 10000
	}
	if result.Compression == 0 {
		result.Compression = compress.Codecs.Snappy
	}
	return result
}

// initializeSchemaFromRecord creates an Arrow schema from the first record.
// Missing or null fields default to string.
func (p *ParquetWriter) initializeSchemaFromRecord(record core.Record) error {
	var fields []arrow.Field

	fieldNames := p.fieldOrder
	if fieldNames == nil {
		fieldNames = make([]string, 0, len(record))
		for name := range record {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)
		p.fieldOrder = fieldNames
	}

	for _, name := range fieldNames {
		value, exists := record[name]

		var dataType arrow.DataType
		var err error

		if exists && value != nil {
			if dataType, err = p.inferArrowType(value); err != nil {
				return &ParquetWriterError{
					Op:  "schema",
					Err: fmt.Errorf("failed to infer arrow type for field %s: %w", name, err),
				}
			}
		} else {
			dataType = arrow.BinaryTypes.String
		}

		fields = append(fields, arrow.Field{
			Name:     name,
			Type:     dataType,
			Nullable: true,
		})
	}

	p.schema = arrow.NewSchema(fields, nil)
	return p.initializeWriter()
}

// initializeWriter creates the pqarrow file writer and the per-column
// builders once a schema exists.
func (p *ParquetWriter) initializeWriter() error {
	if p.fieldOrder == nil {
		for _, f := range p.schema.Fields() {
			p.fieldOrder = append(p.fieldOrder, f.Name)
		}
	}

	props := parquet.NewWriterProperties(
		parquet.WithCompression(p.opts.Compression),
		parquet.WithMaxRowGroupLength(p.opts.RowGroupSize),
	)

	writer, err := pqarrow.NewFileWriter(p.schema, p.file, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_writer",
			Err: fmt.Errorf("failed to create parquet file writer: %w", err),
		}
	}
	p.writer = writer

	return p.initializeBuilders()
}

// inferArrowType infers the Arrow data type from a Go value.
func (p *ParquetWriter) inferArrowType(value interface{}) (arrow.DataType, error) {
	switch v := value.(type) {
	case bool:
		return arrow.FixedWidthTypes.Boolean, nil
	case int8:
		return arrow.PrimitiveTypes.Int8, nil
	case int16:
		return arrow.PrimitiveTypes.Int16, nil
	case int32:
		return arrow.PrimitiveTypes.Int32, nil
	case int64:
		return arrow.PrimitiveTypes.Int64, nil
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return arrow.PrimitiveTypes.Int32, nil
		}
		return arrow.PrimitiveTypes.Int64, nil
	case float32:
		return arrow.PrimitiveTypes.Float32, nil
	case float64:
		return arrow.PrimitiveTypes.Float64, nil
	case string:
		return arrow.BinaryTypes.String, nil
	case time.Time:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case []byte:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, &ParquetWriterError{
			Op:  "type_inference",
			Err: fmt.Errorf("unsupported type %T for value %v", value, value),
		}
	}
}

// flushBatch writes the current buffer to the Parquet file.
func (p *ParquetWriter) flushBatch() error {
	if len(p.recordBuffer) == 0 {
		return nil
	}

	startTime := time.Now()

	checkpoint := p.recordCount
	defer func() {
		if r := recover(); r != nil {
			p.errorState = true
			p.recordCount = checkpoint
		}
	}()

	record, err := p.createArrowRecord(p.recordBuffer)
	if err != nil {
		return &ParquetWriterError{
			Op:  "create_arrow_record",
			Err: fmt.Errorf("failed to create arrow record: %w", err),
		}
	}
	defer record.Release()

	if err := p.writer.Write(record); err != nil {
		return &ParquetWriterError{
			Op:  "write_batch",
			Err: fmt.Errorf("failed to write record batch: %w", err),
		}
	}

	flushDuration := time.Since(startTime)
	p.stats.BatchesWritten++
	p.stats.FlushDuration += flushDuration
	p.stats.LastFlushTime = time.Now()

	p.recordBuffer = p.recordBuffer[:0]
	p.lastGoodState = p.recordCount

	return nil
}

// createArrowRecord converts a slice of records to an Arrow Record.
func (p *ParquetWriter) createArrowRecord(records []core.Record) (arrow.Record, error) {
	if len(records) == 0 {
		return nil, &ParquetWriterError{
			Op:  "create_arrow_record",
			Err: fmt.Errorf("no records to convert"),
		}
	}

	p.resetBuilders()

	for _, record := range records {
		for i, fieldName := range p.fieldOrder {
			value, exists := record[fieldName]

			if !exists || value == nil {
				p.builders[i].AppendNull()
				p.stats.NullValueCounts[fieldName]++
				continue
			}

			if err := p.appendValueToBuilder(p.builders[i], value, fieldName); err != nil {
				return nil, &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("failed to append value for field %s: %w", fieldName, err),
				}
			}
		}
	}

	arrays := make([]arrow.Array, len(p.builders))
	for i, builder := range p.builders {
		arrays[i] = builder.NewArray()
		defer arrays[i].Release()
	}

	return array.NewRecord(p.schema, arrays, int64(len(records))), nil
}

// appendValueToBuilder appends a value to the appropriate Arrow array builder.
// Type-mismatched cells become nulls rather than failing the batch.
func (p *ParquetWriter) appendValueToBuilder(builder array.Builder, value interface{}, fieldName string) error {
	switch b := builder.(type) {
	case *array.BooleanBuilder:
		if v, ok := value.(bool); ok {
			b.Append(v)
		} else {
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	case *array.Int32Builder:
		switch v := value.(type) {
		case int:
			if v >= math.MinInt32 && v <= math.MaxInt32 {
				b.Append(int32(v))
			} else {
				return &ParquetWriterError{
					Op:  "append_value",
					Err: fmt.Errorf("int value %d out of range for int32 field %s", v, fieldName),
				}
			}
		case int32:
			b.Append(v)
		default:
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	case *array.Int64Builder:
		switch v := value.(type) {
		case int64:
			b.Append(v)
		case int:
			b.Append(int64(v))
		default:
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	case *array.Float32Builder:
		switch v := value.(type) {
		case float32:
			b.Append(v)
		case float64:
			b.Append(float32(v))
		default:
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	case *array.Float64Builder:
		switch v := value.(type) {
		case float64:
			b.Append(v)
		case float32:
			b.Append(float64(v))
		default:
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	case *array.StringBuilder:
		if v, ok := value.(string); ok {
			b.Append(v)
		} else {
			b.Append(fmt.Sprintf("%v", value))
		}
	case *array.TimestampBuilder:
		switch v := value.(type) {
		case time.Time:
			b.Append(arrow.Timestamp(v.UnixMicro()))
		default:
			b.AppendNull()
			p.stats.NullValueCounts[fieldName]++
		}
	default:
		return &ParquetWriterError{
			Op:  "append_value",
			Err: fmt.Errorf("unsupported builder type for field %s", fieldName),
		}
	}
	return nil
}

// initializeBuilders initializes Arrow array builders for the schema.
func (p *ParquetWriter) initializeBuilders() error {
	if p.builders != nil {
		return nil
	}
	p.builders = make([]array.Builder, len(p.fieldOrder))
	for i, fieldName := range p.fieldOrder {
		var field arrow.Field
		found := false
		for _, f := range p.schema.Fields() {
			if f.Name == fieldName {
				field = f
				found = true
				break
			}
		}
		if !found {
			return &ParquetWriterError{
				Op:  "initialize_builders",
				Err: fmt.Errorf("field %s not found in schema", fieldName),
			}
		}
		p.builders[i] = array.NewBuilder(p.allocator, field.Type)
	}
	return nil
}

// resetBuilders resets the Arrow array builders for reuse.
func (p *ParquetWriter) resetBuilders() {
	for _, builder := range p.builders {
		if builder != nil {
			arr := builder.NewArray()
			if arr != nil {
				arr.Release()
			}
		}
	}
}

// validateRecord checks that a record matches the schema.
func (p *ParquetWriter) validateRecord(record core.Record) error {
	if p.schema == nil {
		return &ParquetWriterError{
			Op:  "validate",
			Err: fmt.Errorf("schema not initialized"),
		}
	}

	for _, field := range p.schema.Fields() {
		value, exists := record[field.Name]
		if !exists || value == nil {
			continue
		}

		if err := p.validateFieldType(field, value); err != nil {
			return &ParquetWriterError{
				Op:  "validate",
				Err: fmt.Errorf("field %s: %w", field.Name, err),
			}
		}
	}
	return nil
}

// validateFieldType checks that a value matches the Arrow field type.
func (p *ParquetWriter) validateFieldType(field arrow.Field, value interface{}) error {
	switch field.Type.ID() {
	case arrow.BOOL:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case arrow.INT32:
		switch value.(type) {
		case int, int32:
		default:
			return fmt.Errorf("expected int/int32, got %T", value)
		}
	case arrow.INT64:
		switch value.(type) {
		case int, int64:
		default:
			return fmt.Errorf("expected int/int64, got %T", value)
		}
	case arrow.FLOAT32, arrow.FLOAT64:
		switch value.(type) {
		case float32, float64:
		default:
			return fmt.Errorf("expected float32/float64, got %T", value)
		}
	case arrow.STRING:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case arrow.TIMESTAMP:
		if _, ok := value.(time.Time); !ok {
			return fmt.Errorf("expected time.Time, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported arrow type %s for validation", field.Type.String())
	}
	return nil
}
