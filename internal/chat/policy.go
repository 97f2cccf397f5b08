package chat

// Stage identifies one failure domain of the turn pipeline.
type Stage string

const (
	StageContext     Stage = "context"
	StageRetrieval   Stage = "retrieval"
	StageGeneration  Stage = "generation"
	StagePersistence Stage = "persistence"
)

// Action is what the orchestrator does when a stage fails.
type Action int

const (
	// Apologize abandons the turn and returns the fixed apology string.
	Apologize Action = iota
	// Degrade logs the error and substitutes the stage's empty value.
	Degrade
	// LogOnly records the error; the already-produced response stands.
	LogOnly
)

// PolicyTable declares, per stage, how its failure is handled. The orchestrator
// consults it instead of scattering per-call recovery branches. Context and
// summary failures are swallowed at their origin (the provider and summarizer
// degrade themselves); their entries document that.
type PolicyTable map[Stage]Action

// ActionFor looks up the stage's action. Unknown stages apologize, so a
// missing entry can never leak a raw error to the user.
func (p PolicyTable) ActionFor(stage Stage) Action {
	if action, ok := p[stage]; ok {
		return action
	}
	return Apologize
}

// DefaultPolicies builds the standard table. Retrieval is the one configurable
// stage: strict aborts the turn, otherwise it degrades to no results.
func DefaultPolicies(strictRetrieval bool) PolicyTable {
	retrieval := Degrade
	if strictRetrieval {
		retrieval = Apologize
	}
	return PolicyTable{
		StageContext:     Degrade,
		StageRetrieval:   retrieval,
		StageGeneration:  Apologize,
		StagePersistence: LogOnly,
	}
}
