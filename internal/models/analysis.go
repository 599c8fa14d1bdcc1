package models

import (
	"encoding/json"
	"fmt"
)

// AnalysisDocument is the hierarchical requirement breakdown produced by the
// analysis stage: requirement -> requirement group -> triggering event ->
// atomic functional process.
type AnalysisDocument struct {
	Analysis RequirementAnalysis `json:"requirementAnalysis"`
}

// RequirementAnalysis is the document body. DeclaredWorkload is the top-level
// scalar the proportionality rules are checked against.
type RequirementAnalysis struct {
	CustomerRequirement string              `json:"customerRequirement"`
	DeclaredWorkload    int                 `json:"customerRequirementWorkload"`
	RequirementGroups   []FunctionalUserReq `json:"functionalUserRequirements"`
}

// FunctionalUserReq is one requirement group.
type FunctionalUserReq struct {
	Description      string            `json:"description"`
	TriggeringEvents []TriggeringEvent `json:"triggeringEvents"`
}

// TriggeringEvent names the event, its initiator/receiver actors and the
// atomic processes it triggers.
type TriggeringEvent struct {
	EventDescription string              `json:"eventDescription"`
	Initiator        string              `json:"initiator"`
	Receiver         string              `json:"receiver"`
	Processes        []FunctionalProcess `json:"functionalProcesses"`
}

// FunctionalProcess is a leaf item: the smallest unit of described work.
type FunctionalProcess struct {
	ProcessName string `json:"processName"`
}

// ParseAnalysis decodes an analysis payload.
func ParseAnalysis(data []byte) (*AnalysisDocument, error) {
	var doc AnalysisDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode analysis document: %w", err)
	}
	return &doc, nil
}

// ProcessCount returns the total number of leaf processes in the document.
func (d *AnalysisDocument) ProcessCount() int {
	n := 0
	for _, g := range d.Analysis.RequirementGroups {
		for _, ev := range g.TriggeringEvents {
			n += len(ev.Processes)
		}
	}
	return n
}

// LeafCount returns the number of leaf processes in one requirement group.
func (g FunctionalUserReq) LeafCount() int {
	n := 0
	for _, ev := range g.TriggeringEvents {
		n += len(ev.Processes)
	}
	return n
}

// Subset builds a document containing only the given requirement groups,
// with the declared workload recomputed from their leaf count so that the
// proportionality rules hold for the fragment on its own.
func (d *AnalysisDocument) Subset(groups []FunctionalUserReq) AnalysisDocument {
	workload := 0
	for _, g := range groups {
		workload += g.LeafCount() * 3
	}
	return AnalysisDocument{
		Analysis: RequirementAnalysis{
			CustomerRequirement: d.Analysis.CustomerRequirement,
			DeclaredWorkload:    workload,
			RequirementGroups:   groups,
		},
	}
}
