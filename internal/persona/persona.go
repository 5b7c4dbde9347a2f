// Package persona defines the fixed set of assistant personas: their
// modes, display names, system instructions, and the specialist
// delegation table used by squad sessions.
package persona

import "fmt"

// Mode identifies a persona profile: a system instruction plus, for
// squad and academic modes, a tool set.
type Mode string

const (
	ModeLearn         Mode = "learn"
	ModeBuild         Mode = "build"
	ModeRefactor      Mode = "refactor"
	ModeCustom        Mode = "custom"
	ModeSquad         Mode = "squad"
	ModeLogic         Mode = "logic"
	ModeDebug         Mode = "debug"
	ModeFocus         Mode = "focus"
	ModeJourney       Mode = "journey"
	ModeJudge         Mode = "judge"
	ModeSecurity      Mode = "security"
	ModeOptimizer     Mode = "optimizer"
	ModeDocumenter    Mode = "documenter"
	ModeReinforcement Mode = "reinforcement"
	ModeAcademic      Mode = "academic"
)

// AllModes lists every selectable persona mode.
var AllModes = []Mode{
	ModeLearn, ModeBuild, ModeRefactor, ModeCustom, ModeSquad,
	ModeLogic, ModeDebug, ModeFocus, ModeJourney, ModeJudge,
	ModeSecurity, ModeOptimizer, ModeDocumenter, ModeReinforcement,
	ModeAcademic,
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	for _, known := range AllModes {
		if m == known {
			return true
		}
	}
	return false
}

// displayNames maps modes to the names shown in session titles and the
// synthetic welcome message.
var displayNames = map[Mode]string{
	ModeLearn:         "Learn",
	ModeBuild:         "Build",
	ModeRefactor:      "Refactor",
	ModeCustom:        "Custom AI",
	ModeSquad:         "Squad",
	ModeLogic:         "Logic",
	ModeDebug:         "Debug",
	ModeFocus:         "Focus",
	ModeJourney:       "Journey",
	ModeJudge:         "Judge",
	ModeSecurity:      "Security",
	ModeOptimizer:     "Optimizer",
	ModeDocumenter:    "Documenter",
	ModeReinforcement: "Reinforce",
	ModeAcademic:      "Academic",
}

// DisplayName returns the human-readable name for a mode.
func (m Mode) DisplayName() string {
	if name, ok := displayNames[m]; ok {
		return name
	}
	return string(m)
}

// systemInstructions holds the persona prompt for each mode. Custom
// sessions override this with a user-supplied prompt.
var systemInstructions = map[Mode]string{
	ModeLearn: "You are the Instructor AI, a patient teacher of software engineering. " +
		"Explain concepts from first principles with short runnable examples. " +
		"Check understanding before moving on.",
	ModeBuild: "You are the Architect AI. You design software projects: module layout, " +
		"data flow, interfaces, and trade-offs. Produce concrete plans before code.",
	ModeRefactor: "You are the Refactor AI. You improve existing code without changing " +
		"behavior: clearer names, smaller functions, removed duplication. Always show " +
		"the code before and after, and state what was preserved.",
	ModeCustom: "You are a helpful, precise software assistant.",
	ModeSquad: "You are the Squad Leader, coordinating a team of specialist AIs. " +
		"Break the user's request into sub-tasks and delegate each one using the " +
		"provided delegation functions. When specialist reports come back, wrap each " +
		"inlined report in [DELEGATE_START:<name>] and [DELEGATE_END:<name>] tags and " +
		"synthesize a final answer. If you need a decision from the user before you " +
		"can proceed, emit [PAUSE_INTERACTION: \"<your question>\"] and stop.",
	ModeLogic: "You are the Logic AI, a specialist in algorithm design: complexity " +
		"analysis, data-structure selection, invariants, and proofs of correctness.",
	ModeDebug: "You are the Debugger AI. Given symptoms, code, or stack traces, form " +
		"hypotheses, narrow them with targeted questions, and propose minimal fixes.",
	ModeFocus: "You are a focused assistant for a single snippet of code. Answer only " +
		"about the snippet under discussion, concisely.",
	ModeJourney: "You are a guided-course teacher. Teach exactly one lesson at a time, " +
		"following the lesson title and content guideline you are given. End each " +
		"lesson with a short exercise.",
	ModeJudge: "You are the Judge AI. Review submitted code and deliver a verdict: " +
		"strengths, concrete improvement points, and an overall rating.",
	ModeSecurity: "You are the Security AI, a vulnerability analyst. Identify injection, " +
		"authentication, authorization, secret-handling, and memory-safety issues; rank " +
		"them by severity with remediations.",
	ModeOptimizer: "You are the Optimizer AI, a performance specialist. Find hot paths, " +
		"unnecessary allocations, and algorithmic waste; quantify expected wins.",
	ModeDocumenter: "You are the Documenter AI. Write accurate, example-driven " +
		"documentation for the code you are given: doc comments, README sections, and " +
		"usage guides.",
	ModeReinforcement: "You are a drill instructor for programming practice. Generate " +
		"spaced-repetition exercises on the topic at hand and grade the answers.",
	ModeAcademic: "You are the Academic AI, a research assistant. Ground every claim in " +
		"sources found through web search and cite them.",
}

// SystemInstruction returns the system instruction for a mode.
func (m Mode) SystemInstruction() string {
	if instr, ok := systemInstructions[m]; ok {
		return instr
	}
	return systemInstructions[ModeCustom]
}

// CustomConfig is a user-authored persona: a name, a base prompt, and an
// optional rules prompt that is appended as hard constraints.
type CustomConfig struct {
	Name        string `json:"name" yaml:"name"`
	Prompt      string `json:"prompt" yaml:"prompt"`
	LogicPrompt string `json:"logicPrompt" yaml:"logic_prompt"`
}

// Instruction renders the effective system instruction for a custom
// persona.
func (c CustomConfig) Instruction() string {
	if c.LogicPrompt == "" {
		return c.Prompt
	}
	return fmt.Sprintf("%s\n\nIMPORTANT: You must strictly follow these rules at all times:\n%s",
		c.Prompt, c.LogicPrompt)
}

// Specialist pairs a delegation function name with the persona that
// handles it.
type Specialist struct {
	Function    string
	Mode        Mode
	Description string
}

// Specialists is the fixed delegation table for squad mode, in the
// order the functions are declared to the provider.
var Specialists = []Specialist{
	{"delegateToArchitect", ModeBuild, "Delegates a task to the Architect AI for project planning."},
	{"delegateToInstructor", ModeLearn, "Delegates a task to the Instructor AI for explaining concepts."},
	{"delegateToRefactor", ModeRefactor, "Delegates a task to the Refactor AI for improving code."},
	{"delegateToDebugger", ModeDebug, "Delegates a task to the Debugger AI for finding bugs."},
	{"delegateToLogic", ModeLogic, "Delegates a task to the Logic AI for algorithm design."},
	{"delegateToSecurity", ModeSecurity, "Delegates a task to the Security AI for vulnerability analysis."},
	{"delegateToOptimizer", ModeOptimizer, "Delegates a task to the Optimizer AI for performance improvements."},
	{"delegateToDocumenter", ModeDocumenter, "Delegates a task to the Documenter AI for writing documentation."},
}

// SpecialistFor resolves a delegation function name to its persona.
func SpecialistFor(function string) (Mode, bool) {
	for _, s := range Specialists {
		if s.Function == function {
			return s.Mode, true
		}
	}
	return "", false
}
