package domain

import "time"

// RecentHistoryLimit caps the working-memory window kept on a lead
const RecentHistoryLimit = 20

// Lead is a prospect keyed by its E.164 phone number.
//
// RecentHistory is a denormalized copy of the newest messages kept for fast
// working-memory hydration. It is not authoritative: the messages collection
// is, and callers refresh it explicitly.
type Lead struct {
	LeadID            string     `json:"leadId" validate:"required"`
	FullName          *string    `json:"fullName,omitempty"`
	CurrentStage      SalesStage `json:"currentStage" validate:"required,sales_stage"`
	MessageCount      int        `json:"messageCount" validate:"gte=0"`
	NextFollowupAt    *time.Time `json:"nextFollowupAt,omitempty"`
	LastInteractionAt time.Time  `json:"lastInteractionAt"`

	RecentHistory []Message `json:"recentHistory" validate:"max=20"`
	Signals       []Signal  `json:"signals" validate:"dive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Signal is a fact extracted from the conversation along one BANT dimension
type Signal struct {
	Dimension       BANTDimension `json:"dimension" validate:"required,bant_dimension"`
	ExtractedValue  string        `json:"extractedValue" validate:"required"`
	Confidence      Confidence    `json:"confidence"`
	SourceMessageID string        `json:"sourceMessageId"`
	IsInferred      bool          `json:"isInferred"`
	InferredFrom    []string      `json:"inferredFrom,omitempty"`
	RawEvidence     string        `json:"rawEvidence"`
	ExtractedAt     time.Time     `json:"extractedAt"`
}

// Confidence scores how sure the extractor was about a signal
type Confidence struct {
	Value     float64 `json:"value" validate:"gte=0,lte=1"`
	Reasoning string  `json:"reasoning" validate:"max=300"`
}

// NewLead creates a lead in the initial pipeline stage
func NewLead(leadID string, fullName *string) *Lead {
	now := time.Now().UTC()
	return &Lead{
		LeadID:            leadID,
		FullName:          fullName,
		CurrentStage:      StageInitialContact,
		LastInteractionAt: now,
		RecentHistory:     []Message{},
		Signals:           []Signal{},
	}
}

// AddMessage appends a message to the working-memory window, evicting the
// oldest entries beyond RecentHistoryLimit.
func (l *Lead) AddMessage(m Message) {
	l.RecentHistory = append(l.RecentHistory, m)
	if over := len(l.RecentHistory) - RecentHistoryLimit; over > 0 {
		l.RecentHistory = append([]Message(nil), l.RecentHistory[over:]...)
	}

	l.MessageCount++
	if !m.Timestamp.IsZero() {
		l.LastInteractionAt = m.Timestamp
	} else {
		l.LastInteractionAt = time.Now().UTC()
	}
}

// SetRecentHistory replaces the working-memory window, keeping only the newest
// RecentHistoryLimit entries. The input must be ordered oldest-first.
func (l *Lead) SetRecentHistory(msgs []Message) {
	if over := len(msgs) - RecentHistoryLimit; over > 0 {
		msgs = msgs[over:]
	}
	l.RecentHistory = append([]Message{}, msgs...)
}

// AddSignal appends an extracted signal to the lead's event log
func (l *Lead) AddSignal(s Signal) {
	if s.ExtractedAt.IsZero() {
		s.ExtractedAt = time.Now().UTC()
	}
	l.Signals = append(l.Signals, s)
	l.UpdatedAt = time.Now().UTC()
}

// BANTSummary collapses the signal log into the latest known value per
// dimension. Later signals overwrite earlier ones.
func (l *Lead) BANTSummary() map[BANTDimension]string {
	summary := make(map[BANTDimension]string, len(AllBANTDimensions))
	for _, dim := range AllBANTDimensions {
		summary[dim] = "unknown"
	}
	for _, s := range l.Signals {
		summary[s.Dimension] = s.ExtractedValue
	}
	return summary
}

// Stamp sets the bookkeeping timestamps
func (l *Lead) Stamp(now time.Time, created bool) {
	if created || l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now
}
