package persona

import (
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	for _, m := range AllModes {
		if !m.Valid() {
			t.Errorf("mode %s should be valid", m)
		}
	}
	if Mode("bogus").Valid() {
		t.Error("unknown mode should not be valid")
	}
}

func TestEveryModeHasNameAndInstruction(t *testing.T) {
	for _, m := range AllModes {
		if m.DisplayName() == string(m) {
			t.Errorf("mode %s has no display name", m)
		}
		if m.SystemInstruction() == "" {
			t.Errorf("mode %s has no system instruction", m)
		}
	}
}

func TestCustomInstruction(t *testing.T) {
	c := CustomConfig{Name: "Tutor", Prompt: "You teach Rust."}
	if got := c.Instruction(); got != "You teach Rust." {
		t.Errorf("unexpected instruction without rules: %q", got)
	}

	c.LogicPrompt = "Never write unsafe code."
	got := c.Instruction()
	if !strings.Contains(got, "IMPORTANT: You must strictly follow these rules at all times:") {
		t.Errorf("rules rubric missing: %q", got)
	}
	if !strings.Contains(got, "Never write unsafe code.") {
		t.Errorf("rules text missing: %q", got)
	}
}

func TestSpecialistFor(t *testing.T) {
	cases := map[string]Mode{
		"delegateToArchitect":  ModeBuild,
		"delegateToInstructor": ModeLearn,
		"delegateToRefactor":   ModeRefactor,
		"delegateToDebugger":   ModeDebug,
		"delegateToLogic":      ModeLogic,
		"delegateToSecurity":   ModeSecurity,
		"delegateToOptimizer":  ModeOptimizer,
		"delegateToDocumenter": ModeDocumenter,
	}
	if len(cases) != len(Specialists) {
		t.Fatalf("expected %d specialists", len(cases))
	}
	for fn, want := range cases {
		got, ok := SpecialistFor(fn)
		if !ok || got != want {
			t.Errorf("SpecialistFor(%s) = %s, %v; want %s", fn, got, ok, want)
		}
	}
	if _, ok := SpecialistFor("delegateToNobody"); ok {
		t.Error("unknown function should not resolve")
	}
}
