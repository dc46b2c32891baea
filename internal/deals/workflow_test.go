package deals

import "testing"

func TestCanTransition_HappyPath(t *testing.T) {
	path := []string{StageLead, StageUnderwriting, StageLOI, StageDiligence, StageClosing, StageClosed}

	for i := 0; i < len(path)-1; i++ {
		if err := CanTransition(path[i], path[i+1]); err != nil {
			t.Errorf("expected %s -> %s to be allowed: %v", path[i], path[i+1], err)
		}
	}
}

func TestCanTransition_BackwardOneStep(t *testing.T) {
	back := [][2]string{
		{StageUnderwriting, StageLead},
		{StageLOI, StageUnderwriting},
		{StageDiligence, StageLOI},
		{StageClosing, StageDiligence},
	}
	for _, pair := range back {
		if err := CanTransition(pair[0], pair[1]); err != nil {
			t.Errorf("expected %s -> %s to be allowed: %v", pair[0], pair[1], err)
		}
	}
}

func TestCanTransition_SkippingStages(t *testing.T) {
	if err := CanTransition(StageLead, StageClosing); err == nil {
		t.Error("expected lead -> closing to be rejected")
	}
	if err := CanTransition(StageLead, StageClosed); err == nil {
		t.Error("expected lead -> closed to be rejected")
	}
	if err := CanTransition(StageUnderwriting, StageDiligence); err == nil {
		t.Error("expected underwriting -> diligence to be rejected")
	}
}

func TestCanTransition_DeadAndRevive(t *testing.T) {
	for _, from := range []string{StageLead, StageUnderwriting, StageLOI, StageDiligence, StageClosing} {
		if err := CanTransition(from, StageDead); err != nil {
			t.Errorf("expected %s -> dead to be allowed: %v", from, err)
		}
	}

	if err := CanTransition(StageDead, StageLead); err != nil {
		t.Errorf("expected dead -> lead to be allowed: %v", err)
	}
	if err := CanTransition(StageDead, StageClosing); err == nil {
		t.Error("expected dead -> closing to be rejected")
	}
}

func TestCanTransition_ClosedIsFinal(t *testing.T) {
	for _, to := range []string{StageLead, StageUnderwriting, StageLOI, StageDiligence, StageClosing, StageDead} {
		if err := CanTransition(StageClosed, to); err == nil {
			t.Errorf("expected closed -> %s to be rejected", to)
		}
	}
	if !Terminal(StageClosed) {
		t.Error("expected closed to be terminal")
	}
	if Terminal(StageDead) {
		t.Error("dead deals can be revived; dead is not terminal")
	}
}

func TestCanTransition_UnknownStage(t *testing.T) {
	if err := CanTransition("banana", StageLead); err == nil {
		t.Error("expected unknown from-stage to error")
	}
	if err := CanTransition(StageLead, "banana"); err == nil {
		t.Error("expected unknown to-stage to error")
	}
	if ValidStage("banana") {
		t.Error("banana is not a stage")
	}
}
