package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
)

func disconnectedManager() *database.MongoManager {
	return database.NewMongoManager(config.MongoConfig{
		URI:      "mongodb://127.0.0.1:1",
		Database: "unused",
	}, config.RetentionConfig{})
}

func TestRepositories_NotInitialized(t *testing.T) {
	ctx := context.Background()
	m := disconnectedManager()
	leads := NewLeadRepository(m)
	messages := NewMessageRepository(m)

	_, err := leads.GetByPhone(ctx, "+100")
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = leads.GetOrCreate(ctx, "+100", nil)
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = leads.Save(ctx, domain.NewLead("+100", nil))
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = leads.CountByStage(ctx)
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = messages.SaveMessages(ctx, []*domain.Message{domain.NewMessage("+100", domain.MessageRoleUser, "hola", 1)})
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = messages.GetRecentMessages(ctx, "+100", 5)
	assert.True(t, apperrors.IsNotInitialized(err))

	_, err = messages.DeleteMessagesForLead(ctx, "+100")
	assert.True(t, apperrors.IsNotInitialized(err))
}

func TestRepositories_ValidateBeforeIO(t *testing.T) {
	ctx := context.Background()
	m := disconnectedManager()
	leads := NewLeadRepository(m)

	t.Run("create rejects invalid lead", func(t *testing.T) {
		lead := domain.NewLead("+100", nil)
		lead.CurrentStage = "negotiation"

		_, err := leads.Create(ctx, lead)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("get or create requires phone", func(t *testing.T) {
		_, err := leads.GetOrCreate(ctx, "", nil)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("update stage rejects unknown stage", func(t *testing.T) {
		ok, err := leads.UpdateStage(ctx, "+100", "negotiation")
		assert.False(t, ok)
		assert.True(t, apperrors.IsValidation(err))
	})
}

func TestMessageRepository_SaveMessagesSkipsPersisted(t *testing.T) {
	messages := NewMessageRepository(disconnectedManager())

	persisted := domain.NewMessage("+100", domain.MessageRoleUser, "hola", 1)
	persisted.ID = "already-stored"

	written, err := messages.SaveMessages(context.Background(), []*domain.Message{persisted})
	require.NoError(t, err)
	assert.NotNil(t, written)
	assert.Empty(t, written)
}

func TestRepository_BulkCreateEmpty(t *testing.T) {
	messages := NewMessageRepository(disconnectedManager())

	written, err := messages.BulkCreate(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, written)
	assert.Empty(t, written)
}

func TestStorageTime(t *testing.T) {
	loc := time.FixedZone("CST", -6*3600)
	in := time.Date(2024, 5, 1, 10, 30, 0, 123456789, loc)

	out := storageTime(in)
	assert.Equal(t, time.UTC, out.Location())
	assert.Equal(t, 123000000, out.Nanosecond())
	assert.True(t, out.Equal(in.Truncate(time.Millisecond)))
}

func TestQueryLimits(t *testing.T) {
	assert.Equal(t, int64(DefaultQueryLimit), queryLimit(0))
	assert.Equal(t, int64(DefaultQueryLimit), queryLimit(-3))
	assert.Equal(t, int64(7), queryLimit(7))

	assert.Equal(t, int64(domain.RecentHistoryLimit), lim(0, domain.RecentHistoryLimit))
	assert.Equal(t, int64(2), lim(2, domain.RecentHistoryLimit))
}

func TestAssignMessageID(t *testing.T) {
	m := domain.NewMessage("+100", domain.MessageRoleUser, "hola", 1)
	assert.True(t, assignMessageID(m))

	id, err := uuid.Parse(m.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	m.ID = "fixed"
	assert.False(t, assignMessageID(m))
	assert.Equal(t, "fixed", m.ID)
}

func TestAverageResponseTime(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	msg := func(role domain.MessageRole, offset time.Duration) *domain.Message {
		return &domain.Message{Role: role, Timestamp: base.Add(offset)}
	}

	tests := []struct {
		name string
		msgs []*domain.Message
		want *float64
	}{
		{
			name: "empty",
			msgs: nil,
			want: nil,
		},
		{
			name: "only user messages",
			msgs: []*domain.Message{
				msg(domain.MessageRoleUser, 0),
				msg(domain.MessageRoleUser, time.Minute),
			},
			want: nil,
		},
		{
			name: "assistant before any user",
			msgs: []*domain.Message{
				msg(domain.MessageRoleAssistant, 0),
				msg(domain.MessageRoleUser, time.Minute),
			},
			want: nil,
		},
		{
			name: "single pair",
			msgs: []*domain.Message{
				msg(domain.MessageRoleUser, 0),
				msg(domain.MessageRoleAssistant, 30*time.Second),
			},
			want: ptr(30.0),
		},
		{
			name: "latest user message starts the clock",
			msgs: []*domain.Message{
				msg(domain.MessageRoleUser, 0),
				msg(domain.MessageRoleUser, 50*time.Second),
				msg(domain.MessageRoleAssistant, 60*time.Second),
				msg(domain.MessageRoleAssistant, 90*time.Second),
			},
			want: ptr(10.0),
		},
		{
			name: "mean over pairs ignoring system turns",
			msgs: []*domain.Message{
				msg(domain.MessageRoleUser, 0),
				msg(domain.MessageRoleSystem, 5*time.Second),
				msg(domain.MessageRoleAssistant, 10*time.Second),
				msg(domain.MessageRoleUser, 100*time.Second),
				msg(domain.MessageRoleAssistant, 130*time.Second),
			},
			want: ptr(20.0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := averageResponseTime(tt.msgs)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestReverse(t *testing.T) {
	s := []int{1, 2, 3, 4}
	reverse(s)
	assert.Equal(t, []int{4, 3, 2, 1}, s)

	odd := []string{"a", "b", "c"}
	reverse(odd)
	assert.Equal(t, []string{"c", "b", "a"}, odd)

	var empty []int
	reverse(empty)
	assert.Empty(t, empty)
}

func TestLeadCodec(t *testing.T) {
	followup := time.Date(2024, 3, 2, 9, 0, 0, 987654321, time.UTC)
	lead := domain.NewLead("+525512345678", ptr("Ana"))
	lead.CurrentStage = domain.StageQualified
	lead.NextFollowupAt = &followup
	lead.AddMessage(domain.Message{ID: "m1", LeadID: lead.LeadID, Role: domain.MessageRoleUser, Content: "hola", Tokens: 2, Timestamp: followup})
	lead.AddSignal(domain.Signal{
		Dimension:      domain.BANTBudget,
		ExtractedValue: "50k MXN",
		Confidence:     domain.Confidence{Value: 0.8, Reasoning: "stated"},
		InferredFrom:   []string{"m1"},
	})

	doc := encodeLead(lead)
	assert.True(t, doc.ID.IsZero())
	assert.Equal(t, "qualified", doc.CurrentStage)
	require.NotNil(t, doc.NextFollowupAt)
	assert.Equal(t, 987000000, doc.NextFollowupAt.Nanosecond())

	back := decodeLead(doc)
	assert.Equal(t, lead.LeadID, back.LeadID)
	assert.Equal(t, "Ana", *back.FullName)
	assert.Equal(t, lead.CurrentStage, back.CurrentStage)
	assert.Equal(t, 1, back.MessageCount)
	require.Len(t, back.RecentHistory, 1)
	assert.Equal(t, "m1", back.RecentHistory[0].ID)
	require.Len(t, back.Signals, 1)
	assert.Equal(t, "50k MXN", back.BANTSummary()[domain.BANTBudget])
	assert.Equal(t, []string{"m1"}, back.Signals[0].InferredFrom)
}

func TestLeadInsertFields(t *testing.T) {
	lead := domain.NewLead("+100", nil)

	fields := leadInsertFields(encodeLead(lead))
	assert.Equal(t, []string{
		"full_name", "current_stage", "message_count", "last_interaction_at",
		"recent_history", "signals", "updated_at", "created_at",
	}, keys(fields))

	at := time.Now()
	lead.NextFollowupAt = &at
	fields = leadInsertFields(encodeLead(lead))
	assert.Contains(t, keys(fields), "next_followup_at")
}

func keys(d bson.D) []string {
	out := make([]string, len(d))
	for i, e := range d {
		out[i] = e.Key
	}
	return out
}
