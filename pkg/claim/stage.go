package claim

// Stage is the current node of a claim's processing state machine.
type Stage string

const (
	StageNew               Stage = "NEW"
	StageQuestioned        Stage = "QUESTIONED"
	StageTriaged           Stage = "TRIAGED"
	StageAgentsRunning     Stage = "AGENTS_RUNNING"
	StageReview            Stage = "REVIEW"
	StageFollowupRequested Stage = "FOLLOWUP_REQUESTED"
	StageAgentsComplete    Stage = "AGENTS_COMPLETE"
	StageComplete          Stage = "COMPLETE"
)

// validTransitions enumerates every allowed stage move. COMPLETE -> TRIAGED
// covers claim reopening on fresh correspondence.
var validTransitions = map[Stage][]Stage{
	StageNew:               {StageQuestioned},
	StageQuestioned:        {StageTriaged, StageAgentsRunning},
	StageTriaged:           {StageAgentsRunning},
	StageAgentsRunning:     {StageReview, StageFollowupRequested, StageAgentsComplete},
	StageReview:            {StageAgentsRunning},
	StageFollowupRequested: {StageAgentsRunning},
	StageAgentsComplete:    {StageComplete},
	StageComplete:          {StageTriaged},
}

// CanTransition reports whether a move from one stage to another is allowed.
func CanTransition(from, to Stage) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Stages returns all stages in pipeline order.
func Stages() []Stage {
	return []Stage{
		StageNew, StageQuestioned, StageTriaged, StageAgentsRunning,
		StageReview, StageFollowupRequested, StageAgentsComplete, StageComplete,
	}
}
