package validate

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/models"
)

func testDoc() models.AnalysisDocument {
	return models.AnalysisDocument{
		Analysis: models.RequirementAnalysis{
			CustomerRequirement: "Provide full order lifecycle handling for the customer portal",
			DeclaredWorkload:    30,
			RequirementGroups: []models.FunctionalUserReq{
				{
					Description: "Order lifecycle management capability",
					TriggeringEvents: []models.TriggeringEvent{
						{
							EventDescription: "Customer submits an order request",
							Initiator:        "Customer Portal",
							Receiver:         "Order Center",
							Processes: []models.FunctionalProcess{
								{ProcessName: "Submit new broadband order"},
								{ProcessName: "Query order progress details"},
								{ProcessName: "Cancel an existing service order"},
								{ProcessName: "Modify customer contact details"},
							},
						},
						{
							EventDescription: "Operator reviews a discount request",
							Initiator:        "Operator",
							Receiver:         "Billing Center",
							Processes: []models.FunctionalProcess{
								{ProcessName: "Approve pending discount request"},
								{ProcessName: "Reject unqualified discount request"},
								{ProcessName: "Publish tariff adjustment notice"},
								{ProcessName: "Archive closed order records"},
							},
						},
						{
							EventDescription: "Billing cycle closes for the month",
							Initiator:        "Background Process",
							Receiver:         "Billing Center",
							Processes: []models.FunctionalProcess{
								{ProcessName: "Issue monthly billing statement"},
								{ProcessName: "Record payment for an invoice"},
								{ProcessName: "Suspend service for overdue account"},
								{ProcessName: "Resume service after payment"},
							},
						},
					},
				},
			},
		},
	}
}

func mustValidator(t *testing.T) *AnalysisValidator {
	t.Helper()
	v, err := NewAnalysisValidator(config.Default().Rules)
	if err != nil {
		t.Fatalf("NewAnalysisValidator: %v", err)
	}
	return v
}

func encode(t *testing.T, doc models.AnalysisDocument) string {
	t.Helper()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(data)
}

func failureOf(t *testing.T, err error) *Failure {
	t.Helper()
	if err == nil {
		t.Fatal("expected a validation failure, got nil")
	}
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %T: %v", err, err)
	}
	return f
}

func countRule(f *Failure, rule string) int {
	n := 0
	for _, d := range f.Diagnostics {
		if d.Rule == rule {
			n++
		}
	}
	return n
}

func TestAnalysisValidatorAcceptsConformingDocument(t *testing.T) {
	v := mustValidator(t)
	if err := v.Validate(encode(t, testDoc())); err != nil {
		f := failureOf(t, err)
		t.Fatalf("expected pass, got findings:\n%s", f.Report())
	}
}

func TestAnalysisValidatorRejectsMalformedJSON(t *testing.T) {
	v := mustValidator(t)
	f := failureOf(t, v.Validate("not json at all"))
	if countRule(f, "parse") != 1 {
		t.Fatalf("expected one parse finding, got:\n%s", f.Report())
	}
}

func TestAnalysisValidatorDuplicateProcessName(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	procs := doc.Analysis.RequirementGroups[0].TriggeringEvents[0].Processes
	procs[3].ProcessName = procs[0].ProcessName
	f := failureOf(t, v.Validate(encode(t, doc)))
	if got := countRule(f, "duplicate"); got != 1 {
		t.Fatalf("expected exactly one duplicate finding, got %d:\n%s", got, f.Report())
	}
	d := f.Diagnostics[0]
	if !strings.Contains(d.Message, "process 1") && !strings.Contains(d.Path, "process 4") {
		t.Fatalf("duplicate finding should name both locations, got %s", d.String())
	}
}

func TestAnalysisValidatorNearDuplicateProcessName(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	procs := doc.Analysis.RequirementGroups[0].TriggeringEvents[0].Processes
	// One character away from "Submit new broadband order".
	procs[3].ProcessName = "Submit new broadband orders"
	f := failureOf(t, v.Validate(encode(t, doc)))
	if got := countRule(f, "duplicate"); got != 1 {
		t.Fatalf("expected exactly one duplicate finding, got %d:\n%s", got, f.Report())
	}
}

func TestAnalysisValidatorDuplicateAcrossLevels(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	// A group description colliding with an event description is a duplicate
	// even though the two sit at different levels.
	doc.Analysis.RequirementGroups[0].Description = "Customer submits an order request"
	f := failureOf(t, v.Validate(encode(t, doc)))
	if got := countRule(f, "duplicate"); got != 1 {
		t.Fatalf("expected exactly one duplicate finding, got %d:\n%s", got, f.Report())
	}
	d := f.Diagnostics[0]
	if !strings.Contains(d.Path, "event 1") || !strings.Contains(d.Message, "group 1") {
		t.Fatalf("duplicate finding should name both levels, got %s", d.String())
	}
}

func TestAnalysisValidatorActorRules(t *testing.T) {
	cases := []struct {
		name      string
		initiator string
		receiver  string
	}{
		{"unknown initiator", "Mainframe", "Order Center"},
		{"unknown receiver", "Operator", "Mainframe"},
		{"same actor both sides", "Order Center", "Order Center"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := mustValidator(t)
			doc := testDoc()
			ev := &doc.Analysis.RequirementGroups[0].TriggeringEvents[0]
			ev.Initiator = tc.initiator
			ev.Receiver = tc.receiver
			f := failureOf(t, v.Validate(encode(t, doc)))
			if countRule(f, "actor") == 0 {
				t.Fatalf("expected an actor finding, got:\n%s", f.Report())
			}
		})
	}
}

func TestAnalysisValidatorForbiddenWording(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	procs := doc.Analysis.RequirementGroups[0].TriggeringEvents[0].Processes
	procs[0].ProcessName = "Calculate monthly service fees"
	f := failureOf(t, v.Validate(encode(t, doc)))
	if countRule(f, "wording") == 0 {
		t.Fatalf("expected a wording finding, got:\n%s", f.Report())
	}
}

func TestAnalysisValidatorLoggingPattern(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	procs := doc.Analysis.RequirementGroups[0].TriggeringEvents[0].Processes
	procs[0].ProcessName = "Log the customer order event"
	f := failureOf(t, v.Validate(encode(t, doc)))
	if countRule(f, "wording") == 0 {
		t.Fatalf("expected a wording finding for logging, got:\n%s", f.Report())
	}
}

func TestAnalysisValidatorLengthBand(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	doc.Analysis.RequirementGroups[0].Description = "Too short"
	f := failureOf(t, v.Validate(encode(t, doc)))
	if countRule(f, "length") == 0 {
		t.Fatalf("expected a length finding, got:\n%s", f.Report())
	}
}

func TestAnalysisValidatorProportionality(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	// Twelve processes in one group cannot carry a 300 person-day workload.
	doc.Analysis.DeclaredWorkload = 300
	f := failureOf(t, v.Validate(encode(t, doc)))
	if got := countRule(f, "proportion"); got != 2 {
		t.Fatalf("expected group and process proportion findings, got %d:\n%s", got, f.Report())
	}
}

func TestAnalysisValidatorMissingFields(t *testing.T) {
	v := mustValidator(t)
	doc := testDoc()
	doc.Analysis.CustomerRequirement = ""
	doc.Analysis.RequirementGroups[0].TriggeringEvents[0].Initiator = ""
	f := failureOf(t, v.Validate(encode(t, doc)))
	if countRule(f, "presence") < 2 {
		t.Fatalf("expected presence findings, got:\n%s", f.Report())
	}
}
