package llm

// Task names identify agent steps. Prompts embed Marker(task) so backends,
// logs and the mock can tell calls apart.
const (
	TaskFragmentContext  = "fragment_context"
	TaskMascotProposal   = "mascot_proposal"
	TaskPuzzleSuggestion = "puzzle_suggestion"
	TaskPuzzleDesign     = "puzzle_design"
	TaskPuzzleSummary    = "puzzle_summary"
	TaskCentralQuestion  = "central_question"
	TaskQuadrant         = "quadrant"
)

// Marker is the tag a prompt for task carries on its first line.
func Marker(task string) string {
	return "[task:" + task + "]"
}

// FragmentRef is how prompts cite a fragment id; the mock reads it back.
func FragmentRef(id string) string {
	return "[fragment:" + id + "]"
}

// ModeRef is how quadrant prompts name their mode.
func ModeRef(mode string) string {
	return "[mode:" + mode + "]"
}
