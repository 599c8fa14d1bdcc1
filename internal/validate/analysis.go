package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"cosmicdocflow/internal/config"
	"cosmicdocflow/internal/models"
)

// Proportionality tolerances for the requirement breakdown.
const (
	groupFluctuation   = 0.10
	processFluctuation = 0.05
)

// AnalysisValidator checks a requirement breakdown document against the
// hierarchy rules: presence and shape at every level, description length
// bands, global near-duplicate detection, the actor vocabulary, forbidden
// process wording, and workload proportionality.
type AnalysisValidator struct {
	rules      config.RulesConfig
	initiators map[string]bool
	receivers  map[string]bool
	forbidden  []string
	patterns   []*regexp.Regexp
}

// NewAnalysisValidator compiles the rule table.
func NewAnalysisValidator(rules config.RulesConfig) (*AnalysisValidator, error) {
	v := &AnalysisValidator{
		rules:      rules,
		initiators: make(map[string]bool, len(rules.Initiators)),
		receivers:  make(map[string]bool, len(rules.Receivers)),
	}
	for _, a := range rules.Initiators {
		v.initiators[a] = true
	}
	for _, a := range rules.Receivers {
		v.receivers[a] = true
	}
	for _, w := range rules.ForbiddenWords {
		v.forbidden = append(v.forbidden, strings.ToLower(w))
	}
	for _, p := range rules.ForbiddenPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile forbidden process pattern %q: %w", p, err)
		}
		v.patterns = append(v.patterns, re)
	}
	return v, nil
}

// Validate parses the JSON payload and applies every rule, collecting all
// findings into one Failure.
func (v *AnalysisValidator) Validate(payload string) error {
	doc, err := models.ParseAnalysis([]byte(payload))
	if err != nil {
		return fail([]Diagnostic{{
			Rule:    "parse",
			Message: fmt.Sprintf("the reply is not a valid analysis document: %v", err),
		}})
	}
	var diags []Diagnostic
	body := doc.Analysis

	if body.CustomerRequirement == "" {
		diags = append(diags, Diagnostic{Rule: "presence", Message: "customerRequirement is missing or empty"})
	}
	if body.DeclaredWorkload <= 0 {
		diags = append(diags, Diagnostic{Rule: "presence", Message: "customerRequirementWorkload must be a positive integer"})
	}
	if len(body.RequirementGroups) == 0 {
		diags = append(diags, Diagnostic{Rule: "presence", Message: "functionalUserRequirements must contain at least one group"})
		return fail(diags)
	}

	// One set across all levels: a group description may not collide with an
	// event description or a process name either.
	descriptions := newSeenSet(v.rules.SimilarityThreshold)
	totalProcesses := 0

	for i, group := range body.RequirementGroups {
		groupPath := fmt.Sprintf("group %d", i+1)
		v.checkText(&diags, groupPath, "group description", group.Description, descriptions)

		if len(group.TriggeringEvents) == 0 {
			diags = append(diags, Diagnostic{Path: groupPath, Rule: "presence",
				Message: "triggeringEvents must contain at least one event"})
			continue
		}
		for j, ev := range group.TriggeringEvents {
			evPath := fmt.Sprintf("%s > event %d", groupPath, j+1)
			v.checkText(&diags, evPath, "event description", ev.EventDescription, descriptions)
			v.checkActors(&diags, evPath, ev)

			if len(ev.Processes) == 0 {
				diags = append(diags, Diagnostic{Path: evPath, Rule: "presence",
					Message: "functionalProcesses must contain at least one process"})
				continue
			}
			totalProcesses += len(ev.Processes)
			for k, p := range ev.Processes {
				pPath := fmt.Sprintf("%s > process %d", evPath, k+1)
				v.checkText(&diags, pPath, "process name", p.ProcessName, descriptions)
				v.checkProcessWording(&diags, pPath, p.ProcessName)
			}
		}
	}

	v.checkProportionality(&diags, body.DeclaredWorkload, len(body.RequirementGroups), totalProcesses)
	return fail(diags)
}

// checkText applies presence, the length band and near-duplicate detection
// to one description-like field.
func (v *AnalysisValidator) checkText(diags *[]Diagnostic, path, kind, text string, seen *seenSet) {
	if text == "" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "presence",
			Message: kind + " is missing or empty"})
		return
	}
	n := utf8.RuneCountInString(text)
	if n < v.rules.DescLenMin || n > v.rules.DescLenMax {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "length",
			Message: fmt.Sprintf("%s %q is %d characters long, expected %d to %d",
				kind, text, n, v.rules.DescLenMin, v.rules.DescLenMax)})
	}
	if prior, score, dup := seen.add(text, path); dup {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "duplicate",
			Message: fmt.Sprintf("%s %q is too similar to %q at %s (similarity %.2f)",
				kind, text, prior.text, prior.path, score)})
	}
}

func (v *AnalysisValidator) checkActors(diags *[]Diagnostic, path string, ev models.TriggeringEvent) {
	if ev.Initiator == "" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "presence", Message: "initiator is missing or empty"})
	} else if !v.initiators[ev.Initiator] {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "actor",
			Message: fmt.Sprintf("initiator %q is not in the allowed list (%s)",
				ev.Initiator, strings.Join(v.rules.Initiators, ", "))})
	}
	if ev.Receiver == "" {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "presence", Message: "receiver is missing or empty"})
	} else if !v.receivers[ev.Receiver] {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "actor",
			Message: fmt.Sprintf("receiver %q is not in the allowed list (%s)",
				ev.Receiver, strings.Join(v.rules.Receivers, ", "))})
	}
	if ev.Initiator != "" && ev.Initiator == ev.Receiver {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "actor",
			Message: fmt.Sprintf("initiator and receiver are both %q, they must differ", ev.Initiator)})
	}
}

func (v *AnalysisValidator) checkProcessWording(diags *[]Diagnostic, path, name string) {
	lower := strings.ToLower(name)
	var found []string
	for _, w := range v.forbidden {
		if strings.Contains(lower, w) {
			found = append(found, w)
		}
	}
	if len(found) > 0 {
		*diags = append(*diags, Diagnostic{Path: path, Rule: "wording",
			Message: fmt.Sprintf("process name %q contains forbidden wording: %s",
				name, strings.Join(found, ", "))})
	}
	for _, re := range v.patterns {
		if re.MatchString(name) {
			*diags = append(*diags, Diagnostic{Path: path, Rule: "wording",
				Message: fmt.Sprintf("process name %q looks like a logging step, which is not a functional process", name)})
			break
		}
	}
}

// checkProportionality ties the breakdown size to the declared workload: the
// group count must sit within ten percent of workload divided by the group
// divisor, and the leaf process total within five percent of workload times
// the configured ratio.
func (v *AnalysisValidator) checkProportionality(diags *[]Diagnostic, workload, groups, processes int) {
	if workload <= 0 {
		return
	}
	groupTarget := float64(workload) / float64(v.rules.GroupWorkloadDivisor)
	minGroups := int(math.Floor(groupTarget * (1 - groupFluctuation)))
	maxGroups := int(math.Ceil(groupTarget * (1 + groupFluctuation)))
	if groups < minGroups || groups > maxGroups {
		*diags = append(*diags, Diagnostic{Rule: "proportion",
			Message: fmt.Sprintf("for workload %d the breakdown should have %d to %d requirement groups, it has %d",
				workload, minGroups, maxGroups, groups)})
	}

	processTarget := float64(workload) * v.rules.ProcessWorkloadRatio
	minProcs := int(math.Round(processTarget * (1 - processFluctuation)))
	maxProcs := int(math.Round(processTarget * (1 + processFluctuation)))
	if processes < minProcs || processes > maxProcs {
		*diags = append(*diags, Diagnostic{Rule: "proportion",
			Message: fmt.Sprintf("for workload %d the breakdown should have %d to %d functional processes in total, it has %d",
				workload, minProcs, maxProcs, processes)})
	}
}

type seenItem struct {
	text string
	path string
}

// seenSet tracks previously seen texts and flags a newcomer that is an exact
// or near duplicate of any of them. At most one match is reported per item.
type seenSet struct {
	threshold float64
	items     []seenItem
}

func newSeenSet(threshold float64) *seenSet {
	return &seenSet{threshold: threshold}
}

func (s *seenSet) add(text, path string) (seenItem, float64, bool) {
	for _, it := range s.items {
		if score := Similarity(text, it.text); score >= s.threshold {
			s.items = append(s.items, seenItem{text: text, path: path})
			return it, score, true
		}
	}
	s.items = append(s.items, seenItem{text: text, path: path})
	return seenItem{}, 0, false
}
