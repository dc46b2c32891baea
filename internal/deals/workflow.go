package deals

import "fmt"

// Pipeline stages, in order of progression.
const (
	StageLead         = "lead"
	StageUnderwriting = "underwriting"
	StageLOI          = "loi"
	StageDiligence    = "diligence"
	StageClosing      = "closing"
	StageClosed       = "closed"
	StageDead         = "dead"
)

// transitions maps a stage to the stages reachable from it.
// Any active stage can fall to dead; dead deals can only be revived to lead.
var transitions = map[string][]string{
	StageLead:         {StageUnderwriting, StageDead},
	StageUnderwriting: {StageLOI, StageLead, StageDead},
	StageLOI:          {StageDiligence, StageUnderwriting, StageDead},
	StageDiligence:    {StageClosing, StageLOI, StageDead},
	StageClosing:      {StageClosed, StageDiligence, StageDead},
	StageClosed:       {},
	StageDead:         {StageLead},
}

func ValidStage(stage string) bool {
	_, ok := transitions[stage]
	return ok
}

// CanTransition reports whether a deal may move from one stage to another.
func CanTransition(from, to string) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown stage %q", from)
	}
	if !ValidStage(to) {
		return fmt.Errorf("unknown stage %q", to)
	}
	for _, s := range next {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("cannot move a deal from %s to %s", from, to)
}

// Terminal reports whether a stage ends the active pipeline.
func Terminal(stage string) bool {
	return stage == StageClosed
}
