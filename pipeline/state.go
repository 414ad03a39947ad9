package pipeline

// State is the linear run state. Failed is reachable from every step.
type State string

const (
	StateIdle                 State = "IDLE"
	StateGenerating           State = "GENERATING"
	StateSanitizingGeneration State = "SANITIZING_GENERATION"
	StateReadingCurrent       State = "READING_CURRENT"
	StatePatching             State = "PATCHING"
	StateSanitizingPatch      State = "SANITIZING_PATCH"
	StateWriting              State = "WRITING"
	StateDone                 State = "DONE"
	StateFailed               State = "FAILED"
)
