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

package labels

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/aaronlmathis/i94etl/table"
)

// Package labels parses the SAS label descriptor that ships with the I94
// immigration extract into the five lookup tables the warehouse joins
// against: country, port, transport mode, state, and visa codes.
//
// Sections are located by their `value <name>` markers rather than by fixed
// line offsets, and a missing or empty section is an explicit error. The
// upstream descriptor has shifted line numbers between releases; offset-based
// slicing silently produced garbled lookups when it did.

// ParserError wraps structured error information for descriptor parsing.
type ParserError struct {
	Op      string // operation or section that failed
	Section string // descriptor section, if section-scoped
	Err     error
}

func (e *ParserError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("labels parser %s: section %s: %v", e.Op, e.Section, e.Err)
	}
	return fmt.Sprintf("labels parser %s: %v", e.Op, e.Err)
}

func (e *ParserError) Unwrap() error {
	return e.Err
}

// Section markers in the descriptor. The visa categories are not a SAS value
// block in the source file; they live in a comment header, so that section is
// matched by its comment marker instead.
const (
	sectionCountries = "i94cntyl"
	sectionPorts     = "$i94prtl"
	sectionModes     = "i94model"
	sectionStates    = "$i94addrl"
	sectionVisas     = "I94VISA"
)

// Dictionary holds the five lookup tables extracted from the descriptor.
type Dictionary struct {
	Countries *table.Table // i94cntyl (int) -> country (uppercased)
	Ports     *table.Table // i94port -> port, addr
	Modes     *table.Table // i94mode (int-as-string) -> mode
	States    *table.Table // i94addr -> state; extracted, unused downstream
	Visas     *table.Table // i94visa (int) -> visa
}

var (
	valueMarkerRe = regexp.MustCompile(`(?i)^\s*value\s+(\$?[A-Za-z0-9_]+)`)
	quotedRe      = regexp.MustCompile(`'([^']*)'`)
	digitsRe      = regexp.MustCompile(`\d+`)
	visaEntryRe   = regexp.MustCompile(`^\s*(\d+)\s*=\s*(.+?)\s*$`)
)

// ParseFile parses the descriptor at path.
func ParseFile(path string) (*Dictionary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParserError{Op: "open", Err: err}
	}
	defer f.Close()
	return Parse(f)
}

// Parse parses the descriptor text. Pure function of the input: parsing the
// same content twice yields identical tables.
func Parse(r io.Reader) (*Dictionary, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, &ParserError{Op: "read", Err: err}
	}

	sections := splitValueSections(lines)

	countries, err := parseCountries(sections[strings.ToLower(sectionCountries)])
	if err != nil {
		return nil, err
	}
	ports, err := parsePorts(sections[strings.ToLower(sectionPorts)])
	if err != nil {
		return nil, err
	}
	modes, err := parseModes(sections[strings.ToLower(sectionModes)])
	if err != nil {
		return nil, err
	}
	states, err := parseStates(sections[strings.ToLower(sectionStates)])
	if err != nil {
		return nil, err
	}
	visas, err := parseVisas(lines)
	if err != nil {
		return nil, err
	}

	return &Dictionary{
		Countries: countries,
		Ports:     ports,
		Modes:     modes,
		States:    states,
		Visas:     visas,
	}, nil
}

// readLines loads the descriptor into memory. The file is a few thousand
// lines; no need to stream.
func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// splitValueSections maps each `value <name>` marker (lowercased name) to the
// entry lines between the marker and the terminating semicolon.
func splitValueSections(lines []string) map[string][]string {
	sections := make(map[string][]string)
	var current string

	for _, line := range lines {
		if m := valueMarkerRe.FindStringSubmatch(line); m != nil {
			current = strings.ToLower(m[1])
			rest := strings.TrimSpace(line[strings.Index(strings.ToLower(line), strings.ToLower(m[1]))+len(m[1]):])
			if rest != "" && rest != ";" {
				sections[current] = append(sections[current], rest)
			}
			if strings.Contains(line, ";") {
				current = ""
			}
			continue
		}
		if current == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)
		terminated := strings.Contains(trimmed, ";")
		if entry := strings.TrimSpace(strings.TrimSuffix(trimmed, ";")); entry != "" {
			sections[current] = append(sections[current], entry)
		}
		if terminated {
			current = ""
		}
	}
	return sections
}

// splitEntry splits a section line on its first `=` into key and raw value.
func splitEntry(line string) (string, string, bool) {
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

// quotedContent extracts the first single-quoted substring, or the raw text
// when no quotes are present.
func quotedContent(s string) string {
	if m := quotedRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// cleanLabel applies the descriptor's label cleaning: quoted content,
// surrounding whitespace stripped, uppercased.
func cleanLabel(s string) string {
	return strings.ToUpper(strings.TrimSpace(quotedContent(s)))
}

func parseCountries(entries []string) (*table.Table, error) {
	if len(entries) == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionCountries, Err: fmt.Errorf("section marker not found or section empty")}
	}

	t := table.New("country_codes", []string{"i94cntyl", "country"})
	for _, entry := range entries {
		key, value, ok := splitEntry(entry)
		if !ok {
			continue
		}
		code, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			return nil, &ParserError{Op: "parse", Section: sectionCountries, Err: fmt.Errorf("non-numeric country code %q", key)}
		}
		t.AppendRow(map[string]interface{}{
			"i94cntyl": code,
			"country":  cleanLabel(value),
		})
	}
	if t.Len() == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionCountries, Err: fmt.Errorf("no entries parsed")}
	}
	return t, nil
}

func parsePorts(entries []string) (*table.Table, error) {
	if len(entries) == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionPorts, Err: fmt.Errorf("section marker not found or section empty")}
	}

	t := table.New("port_codes", []string{"i94port", "port", "addr"})
	for _, entry := range entries {
		key, value, ok := splitEntry(entry)
		if !ok {
			continue
		}
		code := strings.TrimSpace(quotedContent(key))
		raw := quotedContent(value)

		// The label is "PORT NAME, ST"; the part after the first comma is the
		// state code. Some entries (collapsed or unknown ports) have no comma.
		var port, addr interface{}
		if idx := strings.Index(raw, ","); idx >= 0 {
			port = strings.ToUpper(strings.TrimSpace(raw[:idx]))
			addr = strings.ToUpper(strings.TrimSpace(raw[idx+1:]))
		} else {
			port = strings.ToUpper(strings.TrimSpace(raw))
			addr = nil
		}

		t.AppendRow(map[string]interface{}{
			"i94port": code,
			"port":    port,
			"addr":    addr,
		})
	}
	if t.Len() == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionPorts, Err: fmt.Errorf("no entries parsed")}
	}
	return t, nil
}

func parseModes(entries []string) (*table.Table, error) {
	if len(entries) == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionModes, Err: fmt.Errorf("section marker not found or section empty")}
	}

	t := table.New("transport_modes", []string{"i94mode", "mode"})
	for _, entry := range entries {
		key, value, ok := splitEntry(entry)
		if !ok {
			continue
		}
		// Keys in this section carry stray whitespace and tabs; extract the
		// digits instead of casting directly. Kept as a string code.
		digits := digitsRe.FindString(key)
		if digits == "" {
			return nil, &ParserError{Op: "parse", Section: sectionModes, Err: fmt.Errorf("no numeric key in %q", key)}
		}
		t.AppendRow(map[string]interface{}{
			"i94mode": digits,
			"mode":    strings.TrimSpace(quotedContent(value)),
		})
	}
	if t.Len() == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionModes, Err: fmt.Errorf("no entries parsed")}
	}
	return t, nil
}

func parseStates(entries []string) (*table.Table, error) {
	if len(entries) == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionStates, Err: fmt.Errorf("section marker not found or section empty")}
	}

	t := table.New("state_codes", []string{"i94addr", "state"})
	for _, entry := range entries {
		key, value, ok := splitEntry(entry)
		if !ok {
			continue
		}
		t.AppendRow(map[string]interface{}{
			"i94addr": strings.TrimSpace(quotedContent(key)),
			"state":   cleanLabel(value),
		})
	}
	if t.Len() == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionStates, Err: fmt.Errorf("no entries parsed")}
	}
	return t, nil
}

// parseVisas extracts the visa categories from the I94VISA comment header,
// reading `N = Label` lines until the comment closes.
func parseVisas(lines []string) (*table.Table, error) {
	t := table.New("visa_types", []string{"i94visa", "visa"})

	inSection := false
	for _, line := range lines {
		if !inSection {
			if strings.Contains(line, sectionVisas) {
				inSection = true
			}
			continue
		}
		if strings.Contains(line, "*/") || valueMarkerRe.MatchString(line) {
			break
		}
		m := visaEntryRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		code, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		t.AppendRow(map[string]interface{}{
			"i94visa": code,
			"visa":    strings.TrimSpace(quotedContent(m[2])),
		})
	}

	if t.Len() == 0 {
		return nil, &ParserError{Op: "parse", Section: sectionVisas, Err: fmt.Errorf("section marker not found or section empty")}
	}
	return t, nil
}
