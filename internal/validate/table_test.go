package validate

import (
	"fmt"
	"strings"
	"testing"

	"cosmicdocflow/internal/config"
)

type row struct {
	process string
	tag     string
	desc    string
	attrs   string
	event   string
}

func renderTable(t *testing.T, rows []row) string {
	t.Helper()
	cols := config.Default().Rules.Columns
	var b strings.Builder
	fmt.Fprintf(&b, "| %s |\n", strings.Join(cols, " | "))
	b.WriteString("|" + strings.Repeat(" --- |", len(cols)) + "\n")
	for _, r := range rows {
		event := r.event
		if event == "" {
			event = "Customer submits an order request"
		}
		fmt.Fprintf(&b, "| Order handling | Customer Portal | Order lifecycle management | %s | %s | %s | %s | order data | %s | New | 1 | 1 |\n",
			event, r.process, r.desc, r.tag, r.attrs)
	}
	return b.String()
}

func validRows() []row {
	return []row{
		{process: "Submit new broadband order", tag: "E", desc: "Receive order submission details", attrs: "order number, customer name, product code"},
		{process: "Submit new broadband order", tag: "W", desc: "Save order master record", attrs: "order number, order status, creation time"},
		{process: "Query order progress details", tag: "E", desc: "Receive order progress query terms", attrs: "order number, request time, channel code"},
		{process: "Query order progress details", tag: "R", desc: "Read order progress records", attrs: "order number, milestone name, completion time"},
		{process: "Query order progress details", tag: "X", desc: "Return order progress summary", attrs: "order number, current stage, updated time"},
	}
}

func mustTableValidator(t *testing.T, expectedRows int) *TableValidator {
	t.Helper()
	v, err := NewTableValidator(config.Default().Rules, expectedRows)
	if err != nil {
		t.Fatalf("NewTableValidator: %v", err)
	}
	return v
}

func TestTableValidatorAcceptsConformingTable(t *testing.T) {
	v := mustTableValidator(t, 5)
	if err := v.Validate(renderTable(t, validRows())); err != nil {
		f := failureOf(t, err)
		t.Fatalf("expected pass, got findings:\n%s", f.Report())
	}
}

func TestTableValidatorHeaderMismatchIsFatal(t *testing.T) {
	v := mustTableValidator(t, 0)
	table := renderTable(t, validRows())
	table = strings.Replace(table, "Data Movement Type", "Movement", 1)
	f := failureOf(t, v.Validate(table))
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Rule != "parse" {
		t.Fatalf("expected a single fatal parse finding, got:\n%s", f.Report())
	}
}

func TestTableValidatorInvalidMovementTag(t *testing.T) {
	v := mustTableValidator(t, 0)
	rows := validRows()
	rows[1].tag = "Z"
	f := failureOf(t, v.Validate(renderTable(t, rows)))
	if countRule(f, "movement") == 0 {
		t.Fatalf("expected a movement finding, got:\n%s", f.Report())
	}
}

func TestTableValidatorSequenceRules(t *testing.T) {
	cases := []struct {
		name string
		rows []row
		want string
	}{
		{
			name: "must open with entry",
			rows: []row{
				{process: "Cancel an existing service order", tag: "R", desc: "Read order cancellation terms", attrs: "order number, reason code, request time"},
				{process: "Cancel an existing service order", tag: "W", desc: "Update order cancellation state", attrs: "order number, order status, closure time"},
			},
			want: "sequence",
		},
		{
			name: "must close with write or exit",
			rows: []row{
				{process: "Cancel an existing service order", tag: "E", desc: "Receive order cancellation request", attrs: "order number, reason code, request time"},
				{process: "Cancel an existing service order", tag: "R", desc: "Read order cancellation terms", attrs: "order number, order status, closure time"},
			},
			want: "sequence",
		},
		{
			name: "forbidden adjacent pair",
			rows: []row{
				{process: "Cancel an existing service order", tag: "E", desc: "Receive order cancellation request", attrs: "order number, reason code, request time"},
				{process: "Cancel an existing service order", tag: "W", desc: "Update order cancellation state", attrs: "order number, order status, closure time"},
				{process: "Cancel an existing service order", tag: "X", desc: "Return order cancellation outcome", attrs: "order number, result code, closure time"},
			},
			want: "sequence",
		},
		{
			name: "read feeding a write must be an exit",
			rows: []row{
				{process: "Cancel an existing service order", tag: "E", desc: "Receive order cancellation request", attrs: "order number, reason code, request time"},
				{process: "Cancel an existing service order", tag: "R", desc: "Read order cancellation terms", attrs: "order number, tariff name, rental fee"},
				{process: "Cancel an existing service order", tag: "W", desc: "Update order cancellation state", attrs: "order number, order status, closure time"},
			},
			want: "sequence",
		},
		{
			name: "query process must be three movements",
			rows: []row{
				{process: "Query order progress details", tag: "E", desc: "Receive order progress query terms", attrs: "order number, request time, channel code"},
				{process: "Query order progress details", tag: "X", desc: "Return order progress summary", attrs: "order number, current stage, updated time"},
			},
			want: "sequence",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := mustTableValidator(t, 0)
			f := failureOf(t, v.Validate(renderTable(t, tc.rows)))
			if countRule(f, tc.want) == 0 {
				t.Fatalf("expected a %s finding, got:\n%s", tc.want, f.Report())
			}
		})
	}
}

func TestTableValidatorGroupMustBeContiguous(t *testing.T) {
	v := mustTableValidator(t, 0)
	rows := validRows()
	// Interleave the two processes.
	rows[1], rows[2] = rows[2], rows[1]
	f := failureOf(t, v.Validate(renderTable(t, rows)))
	if countRule(f, "sequence") == 0 {
		t.Fatalf("expected a contiguity finding, got:\n%s", f.Report())
	}
}

func TestTableValidatorProcessSplitAcrossEventsIsNotContiguous(t *testing.T) {
	v := mustTableValidator(t, 0)
	// The same process name under two triggering events, with another process
	// in between. The runs are one group and the split must be flagged.
	rows := []row{
		{process: "Modify an order address", tag: "E", desc: "Receive order address change request",
			attrs: "order number, street name, request time", event: "Customer submits an order request"},
		{process: "Modify an order address", tag: "W", desc: "Update order delivery address",
			attrs: "order number, street name, change time", event: "Customer submits an order request"},
		{process: "Submit new broadband order", tag: "E", desc: "Receive order submission details",
			attrs: "order number, customer name, product code"},
		{process: "Submit new broadband order", tag: "W", desc: "Save order master record",
			attrs: "order number, order status, creation time"},
		{process: "Modify an order address", tag: "E", desc: "Receive order contact change request",
			attrs: "order number, contact name, request time", event: "Operator reviews a change request"},
		{process: "Modify an order address", tag: "W", desc: "Update order contact person",
			attrs: "order number, contact name, change time", event: "Operator reviews a change request"},
	}
	f := failureOf(t, v.Validate(renderTable(t, rows)))
	if got := countRule(f, "sequence"); got != 1 {
		t.Fatalf("expected exactly one contiguity finding, got %d:\n%s", got, f.Report())
	}
}

func TestTableValidatorFixedValues(t *testing.T) {
	v := mustTableValidator(t, 0)
	table := renderTable(t, validRows())
	table = strings.Replace(table, "| New |", "| Reused |", 1)
	f := failureOf(t, v.Validate(table))
	if countRule(f, "fixed-value") == 0 {
		t.Fatalf("expected a fixed-value finding, got:\n%s", f.Report())
	}
}

func TestTableValidatorAttributeRules(t *testing.T) {
	cases := []struct {
		name  string
		attrs string
	}{
		{"too few attributes", "order number, status"},
		{"technical field name", "order number, cust_id, product code"},
		{"camel case field name", "order number, orderStatus, product code"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := mustTableValidator(t, 0)
			rows := validRows()
			rows[0].attrs = tc.attrs
			f := failureOf(t, v.Validate(renderTable(t, rows)))
			if countRule(f, "attributes") == 0 {
				t.Fatalf("expected an attributes finding, got:\n%s", f.Report())
			}
		})
	}
}

func TestTableValidatorSubprocessRules(t *testing.T) {
	t.Run("repeats process name", func(t *testing.T) {
		v := mustTableValidator(t, 0)
		rows := validRows()
		rows[0].desc = rows[0].process
		f := failureOf(t, v.Validate(renderTable(t, rows)))
		if countRule(f, "subprocess") == 0 {
			t.Fatalf("expected a subprocess finding, got:\n%s", f.Report())
		}
	})
	t.Run("duplicate within process", func(t *testing.T) {
		v := mustTableValidator(t, 0)
		rows := validRows()
		rows[4].desc = rows[3].desc
		f := failureOf(t, v.Validate(renderTable(t, rows)))
		if countRule(f, "subprocess") == 0 {
			t.Fatalf("expected a subprocess finding, got:\n%s", f.Report())
		}
	})
	t.Run("wrong template verb", func(t *testing.T) {
		v := mustTableValidator(t, 0)
		rows := validRows()
		rows[1].desc = "Persist order master record"
		f := failureOf(t, v.Validate(renderTable(t, rows)))
		if countRule(f, "subprocess") == 0 {
			t.Fatalf("expected a subprocess finding, got:\n%s", f.Report())
		}
	})
}

func TestTableValidatorRowCountBand(t *testing.T) {
	v := mustTableValidator(t, 10)
	f := failureOf(t, v.Validate(renderTable(t, validRows())))
	if countRule(f, "row-count") == 0 {
		t.Fatalf("expected a row-count finding, got:\n%s", f.Report())
	}

	v = mustTableValidator(t, 5)
	if err := v.Validate(renderTable(t, validRows())); err != nil {
		t.Fatalf("five rows against an expectation of five should pass, got: %v", err)
	}
}

func TestTableValidatorRowCountBandBoundaries(t *testing.T) {
	// With ten expected rows and the default 0.1 tolerance the band is 9 to 11.
	nine := append(validRows(),
		row{process: "Suspend service for overdue account", tag: "E",
			desc: "Receive overdue suspension notice", attrs: "account number, overdue amount, notice time"},
		row{process: "Suspend service for overdue account", tag: "R",
			desc: "Read account balance records", attrs: "account number, balance amount, due date"},
		row{process: "Suspend service for overdue account", tag: "R",
			desc: "Read service agreement terms", attrs: "account number, agreement name, effective date"},
		row{process: "Suspend service for overdue account", tag: "W",
			desc: "Update service suspension state", attrs: "account number, service status, suspension time"},
	)
	v := mustTableValidator(t, 10)
	if err := v.Validate(renderTable(t, nine)); err != nil {
		t.Fatalf("nine rows sit on the lower bound of the band and should pass, got: %v", err)
	}

	eight := append(validRows(),
		row{process: "Suspend service for overdue account", tag: "E",
			desc: "Receive overdue suspension notice", attrs: "account number, overdue amount, notice time"},
		row{process: "Suspend service for overdue account", tag: "R",
			desc: "Read account balance records", attrs: "account number, balance amount, due date"},
		row{process: "Suspend service for overdue account", tag: "X",
			desc: "Send suspension notice to customer", attrs: "account number, service status, notice time"},
	)
	f := failureOf(t, v.Validate(renderTable(t, eight)))
	if len(f.Diagnostics) != 1 || f.Diagnostics[0].Rule != "row-count" {
		t.Fatalf("eight rows should fail with a single row-count finding, got:\n%s", f.Report())
	}
}
