package domain

// SalesStage represents a lead's position in the sales pipeline
type SalesStage string

const (
	StageInitialContact SalesStage = "initial_contact"
	StageDiscovery      SalesStage = "discovery"
	StageQualified      SalesStage = "qualified"
	StageDemoScheduled  SalesStage = "demo_scheduled"
	StageOnHold         SalesStage = "on_hold"
	StageClosedWon      SalesStage = "closed_won"
	StageClosedLost     SalesStage = "closed_lost"
)

// AllSalesStages lists every stage in pipeline order
var AllSalesStages = []SalesStage{
	StageInitialContact,
	StageDiscovery,
	StageQualified,
	StageDemoScheduled,
	StageOnHold,
	StageClosedWon,
	StageClosedLost,
}

// IsValid checks if the stage is valid
func (s SalesStage) IsValid() bool {
	return s.Rank() >= 0
}

// Rank returns the stage position in the pipeline, or -1 for unknown stages
func (s SalesStage) Rank() int {
	for i, stage := range AllSalesStages {
		if stage == s {
			return i
		}
	}
	return -1
}

// IsClosed returns true for terminal won/lost stages
func (s SalesStage) IsClosed() bool {
	return s == StageClosedWon || s == StageClosedLost
}

// StagesAtOrAfter returns every stage ranked at or after s.
// Used to build "exclude stages >= X" filters.
func StagesAtOrAfter(s SalesStage) []SalesStage {
	rank := s.Rank()
	if rank < 0 {
		return nil
	}
	out := make([]SalesStage, len(AllSalesStages)-rank)
	copy(out, AllSalesStages[rank:])
	return out
}

// ClosedStages are excluded from staleness scans by default
var ClosedStages = []SalesStage{StageClosedWon, StageClosedLost}

// FollowupStages are the stages eligible for automatic follow-up scheduling
var FollowupStages = []SalesStage{StageInitialContact, StageDiscovery, StageQualified}

// DefaultHighIntentStages are used when no stage subset is given for high intent queries
var DefaultHighIntentStages = []SalesStage{StageDiscovery, StageQualified, StageDemoScheduled}

// MessageRole represents who authored a message
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
	// MessageRoleHuman is a human sales agent that took over the conversation
	MessageRoleHuman MessageRole = "human"
)

// IsValid checks if the message role is valid
func (r MessageRole) IsValid() bool {
	switch r {
	case MessageRoleUser, MessageRoleAssistant, MessageRoleSystem, MessageRoleHuman:
		return true
	}
	return false
}

// BANTDimension is one axis of the budget/authority/need/timeline qualification model
type BANTDimension string

const (
	BANTBudget    BANTDimension = "budget"
	BANTAuthority BANTDimension = "authority"
	BANTNeed      BANTDimension = "need"
	BANTTimeline  BANTDimension = "timeline"
)

// AllBANTDimensions lists every BANT dimension
var AllBANTDimensions = []BANTDimension{BANTBudget, BANTAuthority, BANTNeed, BANTTimeline}

// IsValid checks if the dimension is valid
func (d BANTDimension) IsValid() bool {
	switch d {
	case BANTBudget, BANTAuthority, BANTNeed, BANTTimeline:
		return true
	}
	return false
}
