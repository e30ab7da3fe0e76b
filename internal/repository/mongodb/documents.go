package mongodb

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
)

// leadDocument is the stored shape of a lead.
// _id is server-assigned and never exposed; lead_id is the identity.
type leadDocument struct {
	ID                bson.ObjectID     `bson:"_id,omitempty"`
	LeadID            string            `bson:"lead_id"`
	FullName          *string           `bson:"full_name"`
	CurrentStage      string            `bson:"current_stage"`
	MessageCount      int               `bson:"message_count"`
	NextFollowupAt    *time.Time        `bson:"next_followup_at,omitempty"`
	LastInteractionAt time.Time         `bson:"last_interaction_at"`
	RecentHistory     []messageDocument `bson:"recent_history"`
	Signals           []signalDocument  `bson:"signals"`
	CreatedAt         time.Time         `bson:"created_at"`
	UpdatedAt         time.Time         `bson:"updated_at"`
}

type messageDocument struct {
	ID        string    `bson:"_id,omitempty"`
	LeadID    string    `bson:"lead_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	Tokens    int       `bson:"tokens"`
	Timestamp time.Time `bson:"timestamp"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type signalDocument struct {
	Dimension       string             `bson:"dimension"`
	ExtractedValue  string             `bson:"extracted_value"`
	Confidence      confidenceDocument `bson:"confidence"`
	SourceMessageID string             `bson:"source_message_id"`
	IsInferred      bool               `bson:"is_inferred"`
	InferredFrom    []string           `bson:"inferred_from,omitempty"`
	RawEvidence     string             `bson:"raw_evidence"`
	ExtractedAt     time.Time          `bson:"extracted_at"`
}

type confidenceDocument struct {
	Value     float64 `bson:"value"`
	Reasoning string  `bson:"reasoning"`
}

func encodeLead(l *domain.Lead) leadDocument {
	doc := leadDocument{
		LeadID:            l.LeadID,
		FullName:          l.FullName,
		CurrentStage:      string(l.CurrentStage),
		MessageCount:      l.MessageCount,
		LastInteractionAt: storageTime(l.LastInteractionAt),
		RecentHistory:     make([]messageDocument, 0, len(l.RecentHistory)),
		Signals:           make([]signalDocument, 0, len(l.Signals)),
		CreatedAt:         storageTime(l.CreatedAt),
		UpdatedAt:         storageTime(l.UpdatedAt),
	}
	if l.NextFollowupAt != nil {
		t := storageTime(*l.NextFollowupAt)
		doc.NextFollowupAt = &t
	}
	for i := range l.RecentHistory {
		doc.RecentHistory = append(doc.RecentHistory, encodeMessageValue(l.RecentHistory[i]))
	}
	for _, s := range l.Signals {
		doc.Signals = append(doc.Signals, signalDocument{
			Dimension:       string(s.Dimension),
			ExtractedValue:  s.ExtractedValue,
			Confidence:      confidenceDocument{Value: s.Confidence.Value, Reasoning: s.Confidence.Reasoning},
			SourceMessageID: s.SourceMessageID,
			IsInferred:      s.IsInferred,
			InferredFrom:    s.InferredFrom,
			RawEvidence:     s.RawEvidence,
			ExtractedAt:     storageTime(s.ExtractedAt),
		})
	}
	return doc
}

func decodeLead(doc leadDocument) *domain.Lead {
	l := &domain.Lead{
		LeadID:            doc.LeadID,
		FullName:          doc.FullName,
		CurrentStage:      domain.SalesStage(doc.CurrentStage),
		MessageCount:      doc.MessageCount,
		LastInteractionAt: doc.LastInteractionAt.UTC(),
		RecentHistory:     make([]domain.Message, 0, len(doc.RecentHistory)),
		Signals:           make([]domain.Signal, 0, len(doc.Signals)),
		CreatedAt:         doc.CreatedAt.UTC(),
		UpdatedAt:         doc.UpdatedAt.UTC(),
	}
	if doc.NextFollowupAt != nil {
		t := doc.NextFollowupAt.UTC()
		l.NextFollowupAt = &t
	}
	for _, m := range doc.RecentHistory {
		l.RecentHistory = append(l.RecentHistory, *decodeMessage(m))
	}
	for _, s := range doc.Signals {
		l.Signals = append(l.Signals, domain.Signal{
			Dimension:       domain.BANTDimension(s.Dimension),
			ExtractedValue:  s.ExtractedValue,
			Confidence:      domain.Confidence{Value: s.Confidence.Value, Reasoning: s.Confidence.Reasoning},
			SourceMessageID: s.SourceMessageID,
			IsInferred:      s.IsInferred,
			InferredFrom:    s.InferredFrom,
			RawEvidence:     s.RawEvidence,
			ExtractedAt:     s.ExtractedAt.UTC(),
		})
	}
	return l
}

func encodeMessage(m *domain.Message) messageDocument {
	return encodeMessageValue(*m)
}

func encodeMessageValue(m domain.Message) messageDocument {
	return messageDocument{
		ID:        m.ID,
		LeadID:    m.LeadID,
		Role:      string(m.Role),
		Content:   m.Content,
		Tokens:    m.Tokens,
		Timestamp: storageTime(m.Timestamp),
		CreatedAt: storageTime(m.CreatedAt),
		UpdatedAt: storageTime(m.UpdatedAt),
	}
}

func decodeMessage(doc messageDocument) *domain.Message {
	return &domain.Message{
		ID:        doc.ID,
		LeadID:    doc.LeadID,
		Role:      domain.MessageRole(doc.Role),
		Content:   doc.Content,
		Tokens:    doc.Tokens,
		Timestamp: doc.Timestamp.UTC(),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
	}
}

// leadMutableFields are the fields Save replaces on an existing lead
func leadMutableFields(doc leadDocument) bson.D {
	return bson.D{
		{Key: "full_name", Value: doc.FullName},
		{Key: "current_stage", Value: doc.CurrentStage},
		{Key: "message_count", Value: doc.MessageCount},
		{Key: "last_interaction_at", Value: doc.LastInteractionAt},
		{Key: "recent_history", Value: doc.RecentHistory},
		{Key: "signals", Value: doc.Signals},
		{Key: "updated_at", Value: doc.UpdatedAt},
	}
}

// leadInsertFields are the fields GetOrCreate writes on insert.
// lead_id is seeded from the upsert filter.
func leadInsertFields(doc leadDocument) bson.D {
	fields := append(leadMutableFields(doc), bson.E{Key: "created_at", Value: doc.CreatedAt})
	if doc.NextFollowupAt != nil {
		fields = append(fields, bson.E{Key: "next_followup_at", Value: *doc.NextFollowupAt})
	}
	return fields
}
