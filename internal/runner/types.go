package runner

// GroupState is the terminal outcome of one conversation group. Groups
// either complete their lifecycle or bail out when setup fails.
type GroupState string

const (
	StateDone        GroupState = "DONE"
	StateSetupFailed GroupState = "SETUP_FAILED"
)

// Config defines orchestrator behavior.
type Config struct {
	// SkipOnFailure is the run-wide default; a group's own flag wins.
	SkipOnFailure bool
	// Threads bounds concurrent evaluation within the run.
	Threads int
	// System-wide per-metric threshold overrides, keyed by "framework:name".
	TurnThresholds         map[string]float64
	ConversationThresholds map[string]float64
}

// GroupStatus summarizes how far one group got.
type GroupStatus struct {
	GroupID string     `json:"conversation_group_id"`
	State   GroupState `json:"state"`
	Results int        `json:"results"`
}
