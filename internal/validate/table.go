package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"cosmicdocflow/internal/config"
)

// Column positions of the measurement table. The configured column names
// must line up with these.
const (
	colCustomerReq = iota
	colFunctionalUser
	colRequirement
	colEvent
	colProcess
	colSubprocess
	colMovementType
	colDataGroup
	colAttributes
	colReuse
	colCFP
	colSumCFP
	columnCount
)

var (
	movementTags  = map[string]bool{"E": true, "R": true, "W": true, "X": true}
	attrSeparator = regexp.MustCompile(`[，,、]`)
	attrCharset   = regexp.MustCompile(`^[\p{L}\p{N}\s，,、/-]+$`)
	snakeToken    = regexp.MustCompile(`[A-Za-z]+_[A-Za-z0-9_]+`)
	camelToken    = regexp.MustCompile(`\b[a-z]+[A-Z][A-Za-z]*\b`)
)

// TableValidator checks a COSMIC measurement table: header shape, the tag
// alphabet, attribute cells, fixed-value columns, per-process movement
// sequences and the overall row-count band.
type TableValidator struct {
	// ExpectedRows, when positive, switches on the row-count band check.
	ExpectedRows int

	rules     config.RulesConfig
	fixed     map[int]string
	forbidden []string
	patterns  []*regexp.Regexp
}

// NewTableValidator compiles the rule table.
func NewTableValidator(rules config.RulesConfig, expectedRows int) (*TableValidator, error) {
	if len(rules.Columns) != columnCount {
		return nil, fmt.Errorf("table rules must define exactly %d columns, got %d", columnCount, len(rules.Columns))
	}
	v := &TableValidator{
		ExpectedRows: expectedRows,
		rules:        rules,
		fixed:        make(map[int]string, len(rules.FixedColumns)),
	}
	for name, value := range rules.FixedColumns {
		idx := -1
		for i, col := range rules.Columns {
			if col == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("fixed column %q is not one of the table columns", name)
		}
		v.fixed[idx] = value
	}
	for _, w := range rules.ForbiddenWords {
		v.forbidden = append(v.forbidden, strings.ToLower(w))
	}
	for _, p := range rules.ForbiddenPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile forbidden pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, re)
	}
	return v, nil
}

type tableRow struct {
	index int // 1-based data row number
	cells []string
}

// Validate parses the markdown table and applies every rule. A malformed or
// misnamed header is fatal because nothing below it can be trusted.
func (v *TableValidator) Validate(payload string) error {
	rows, diags := v.parse(payload)
	if rows == nil {
		return fail(diags)
	}

	for _, row := range rows {
		v.checkRow(&diags, row)
	}
	v.checkGroups(&diags, rows)

	if v.ExpectedRows > 0 {
		t := v.rules.RowTolerance
		minRows := int(math.Floor(float64(v.ExpectedRows) * (1 - t)))
		maxRows := int(math.Ceil(float64(v.ExpectedRows) * (1 + t)))
		if len(rows) < minRows || len(rows) > maxRows {
			diags = append(diags, Diagnostic{Rule: "row-count",
				Message: fmt.Sprintf("the table has %d data rows, expected between %d and %d",
					len(rows), minRows, maxRows)})
		}
	}
	return fail(diags)
}

// parse returns the data rows, or nil with diagnostics when the table shape
// is beyond repair.
func (v *TableValidator) parse(payload string) ([]tableRow, []Diagnostic) {
	var lines []string
	for _, l := range strings.Split(strings.TrimSpace(payload), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 3 {
		return nil, []Diagnostic{{Rule: "parse",
			Message: "the table must have a header row, a separator row and at least one data row"}}
	}

	header := splitCells(lines[0])
	if len(header) != columnCount || !equalColumns(header, v.rules.Columns) {
		return nil, []Diagnostic{{Rule: "parse",
			Message: fmt.Sprintf("the header must be exactly: | %s |, got: %s",
				strings.Join(v.rules.Columns, " | "), lines[0])}}
	}
	if !tableSeparatorLine.MatchString(lines[1]) {
		return nil, []Diagnostic{{Rule: "parse",
			Message: fmt.Sprintf("line 2 must be the column separator row, got: %s", lines[1])}}
	}

	var rows []tableRow
	var diags []Diagnostic
	for i, line := range lines[2:] {
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			diags = append(diags, Diagnostic{Path: fmt.Sprintf("row %d", i+1), Rule: "parse",
				Message: "every data row must start and end with a pipe"})
			continue
		}
		cells := splitCells(line)
		if len(cells) != columnCount {
			diags = append(diags, Diagnostic{Path: fmt.Sprintf("row %d", i+1), Rule: "parse",
				Message: fmt.Sprintf("the row has %d cells, the header has %d columns", len(cells), columnCount)})
			continue
		}
		rows = append(rows, tableRow{index: i + 1, cells: cells})
	}
	if len(rows) == 0 {
		diags = append(diags, Diagnostic{Rule: "parse", Message: "no valid data rows could be parsed"})
		return nil, diags
	}
	return rows, diags
}

var tableSeparatorLine = regexp.MustCompile(`^\|[-:| ]+\|$`)

func splitCells(line string) []string {
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func equalColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (v *TableValidator) checkRow(diags *[]Diagnostic, row tableRow) {
	path := fmt.Sprintf("row %d", row.index)

	tag := row.cells[colMovementType]
	if !movementTags[tag] {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "movement",
			Message: fmt.Sprintf("%q is not a valid data movement type, use E, R, W or X", tag)})
	}

	for idx, want := range v.fixed {
		if got := row.cells[idx]; got != want {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "fixed-value",
				Message: fmt.Sprintf("column %q must be %q, got %q", v.rules.Columns[idx], want, got)})
		}
	}

	v.checkAttributes(diags, path, row.cells[colAttributes])
	v.checkSubprocess(diags, path, row.cells[colSubprocess], row.cells[colProcess])
}

func (v *TableValidator) checkAttributes(diags *[]Diagnostic, path, raw string) {
	if raw == "" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "attributes",
			Message: "the data attributes cell is empty"})
		return
	}
	var attrs []string
	for _, a := range attrSeparator.Split(raw, -1) {
		if a = strings.TrimSpace(a); a != "" {
			attrs = append(attrs, a)
		}
	}
	if len(attrs) < v.rules.AttrCountMin || len(attrs) > v.rules.AttrCountMax {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "attributes",
			Message: fmt.Sprintf("the cell lists %d attributes, expected %d to %d",
				len(attrs), v.rules.AttrCountMin, v.rules.AttrCountMax)})
	}
	if !attrCharset.MatchString(raw) {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "attributes",
			Message: fmt.Sprintf("attributes %q contain characters outside letters, digits and separators", raw)})
	}
	for _, a := range attrs {
		if snakeToken.MatchString(a) || camelToken.MatchString(a) {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "attributes",
				Message: fmt.Sprintf("attribute %q looks like a technical field name, use business terms", a)})
		}
	}
}

func (v *TableValidator) checkSubprocess(diags *[]Diagnostic, path, desc, process string) {
	if desc == "" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "subprocess",
			Message: "the subprocess description is empty"})
		return
	}
	lower := strings.ToLower(desc)
	for _, w := range v.forbidden {
		if strings.Contains(lower, w) {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "subprocess",
				Message: fmt.Sprintf("subprocess description %q contains forbidden wording %q", desc, w)})
		}
	}
	for _, re := range v.patterns {
		if re.MatchString(desc) {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "subprocess",
				Message: fmt.Sprintf("subprocess description %q looks like a logging step", desc)})
			break
		}
	}
	if desc == process {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "subprocess",
			Message: fmt.Sprintf("subprocess description %q repeats the process name, it must decompose it", desc)})
	}
}

type processGroup struct {
	process string
	rows    []tableRow
}

// checkGroups applies the sequence rules per functional process. Grouping is
// by process name alone, so a name reappearing under a different triggering
// event still belongs to the same group and must keep the run contiguous.
func (v *TableValidator) checkGroups(diags *[]Diagnostic, rows []tableRow) {
	index := make(map[string]int)
	var groups []*processGroup
	for _, row := range rows {
		name := row.cells[colProcess]
		i, ok := index[name]
		if !ok {
			i = len(groups)
			index[name] = i
			groups = append(groups, &processGroup{process: name})
		}
		groups[i].rows = append(groups[i].rows, row)
	}

	for _, g := range groups {
		v.checkGroup(diags, g)
	}
}

func (v *TableValidator) checkGroup(diags *[]Diagnostic, g *processGroup) {
	first := g.rows[0].index
	last := g.rows[len(g.rows)-1].index
	path := fmt.Sprintf("process %q (rows %d-%d)", g.process, first, last)

	for i := 1; i < len(g.rows); i++ {
		if g.rows[i].index != g.rows[i-1].index+1 {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
				Message: "the rows of one functional process must be contiguous, this process is split across the table"})
			break
		}
	}

	tags := make([]string, len(g.rows))
	for i, row := range g.rows {
		tags[i] = row.cells[colMovementType]
	}
	sequence := strings.Join(tags, "")

	if tags[0] != "E" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
			Message: fmt.Sprintf("the first movement must be E, got %q", tags[0])})
	}
	if lastTag := tags[len(tags)-1]; lastTag != "W" && lastTag != "X" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
			Message: fmt.Sprintf("the last movement must be W or X, got %q", lastTag)})
	}
	for i := 0; i+1 < len(tags); i++ {
		pair := tags[i] + tags[i+1]
		if pair == "WX" || pair == "XW" || pair == "XR" {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
				Message: fmt.Sprintf("the adjacent movement pair %q is not allowed", pair)})
		}
	}
	if strings.Contains(sequence, "ERW") {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
			Message: "the movement window ERW is not allowed, a read feeding an output must be ERX"})
	}

	if v.isQuery(g.process) {
		if len(g.rows) != 3 || sequence != "ERX" {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "sequence",
				Message: fmt.Sprintf("a query-shaped process must be exactly the three movements ERX, got %q", sequence)})
		}
	}

	seen := make(map[string]bool, len(g.rows))
	for _, row := range g.rows {
		desc := row.cells[colSubprocess]
		if seen[desc] {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "subprocess",
				Message: fmt.Sprintf("subprocess description %q appears twice within the process", desc)})
		}
		seen[desc] = true
		v.checkTemplateVerb(diags, row)
	}
}

func (v *TableValidator) isQuery(process string) bool {
	lower := strings.ToLower(process)
	for _, kw := range v.rules.QueryKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (v *TableValidator) checkTemplateVerb(diags *[]Diagnostic, row tableRow) {
	tag := row.cells[colMovementType]
	verbs, ok := v.rules.TemplateVerbs[tag]
	if !ok || len(verbs) == 0 {
		return
	}
	desc := strings.ToLower(row.cells[colSubprocess])
	for _, verb := range verbs {
		if strings.HasPrefix(desc, strings.ToLower(verb)) {
			return
		}
	}
	*diags = append(*diags, Diagnostic{Path: fmt.Sprintf("row %d", row.index), Rule: "subprocess",
		Message: fmt.Sprintf("a %s movement description should start with one of: %s",
			tag, strings.Join(verbs, ", "))})
}
