package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/phone"
)

// MockLeadStore is a mock implementation of LeadStore
type MockLeadStore struct {
	mock.Mock
}

func (m *MockLeadStore) GetByPhone(ctx context.Context, p string) (*domain.Lead, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadStore) GetOrCreate(ctx context.Context, p string, fullName *string) (*domain.Lead, error) {
	args := m.Called(ctx, p, fullName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadStore) Save(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	args := m.Called(ctx, lead)
	if fn, ok := args.Get(0).(func(context.Context, *domain.Lead) *domain.Lead); ok {
		return fn(ctx, lead), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Lead), args.Error(1)
}

func (m *MockLeadStore) ClearWorkingMemory(ctx context.Context, leadID string) (bool, error) {
	args := m.Called(ctx, leadID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeadStore) ScheduleFollowup(ctx context.Context, leadID string, at time.Time) (bool, error) {
	args := m.Called(ctx, leadID, at)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeadStore) GetStaleLeads(ctx context.Context, daysInactive int, excludeStages []domain.SalesStage, limit int) ([]*domain.Lead, error) {
	args := m.Called(ctx, daysInactive, excludeStages, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Lead), args.Error(1)
}

func (m *MockLeadStore) CountByStage(ctx context.Context) (map[domain.SalesStage]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[domain.SalesStage]int64), args.Error(1)
}

// MockMessageStore is a mock implementation of MessageStore
type MockMessageStore struct {
	mock.Mock
}

func (m *MockMessageStore) SaveMessages(ctx context.Context, msgs []*domain.Message) ([]*domain.Message, error) {
	args := m.Called(ctx, msgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageStore) GetRecentMessages(ctx context.Context, leadID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, leadID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageStore) CountMessagesForLead(ctx context.Context, leadID string) (int64, error) {
	args := m.Called(ctx, leadID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageStore) DeleteMessagesForLead(ctx context.Context, leadID string) (int64, error) {
	args := m.Called(ctx, leadID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockMessageStore) ForEachMessage(ctx context.Context, leadID string, fn func(*domain.Message) error) error {
	args := m.Called(ctx, leadID, fn)
	if msgs, ok := args.Get(0).([]*domain.Message); ok {
		for _, msg := range msgs {
			if err := fn(msg); err != nil {
				return err
			}
		}
	}
	return args.Error(1)
}

func newTestService() (*ConversationService, *MockLeadStore, *MockMessageStore) {
	leads := new(MockLeadStore)
	messages := new(MockMessageStore)
	svc := NewConversationService(zap.NewNop(), leads, messages, phone.NewNormalizer("MX"))
	return svc, leads, messages
}

// returnSaved makes Save echo the lead it was given
func returnSaved(leads *MockLeadStore) {
	leads.On("Save", mock.Anything, mock.AnythingOfType("*domain.Lead")).
		Return(func(_ context.Context, l *domain.Lead) *domain.Lead { return l }, nil)
}

func TestNewConversationService(t *testing.T) {
	svc, leads, messages := newTestService()

	assert.NotNil(t, svc)
	assert.Equal(t, leads, svc.leads)
	assert.Equal(t, messages, svc.messages)
}

func TestConversationService_ResolveLead(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes legacy mexican mobile prefix", func(t *testing.T) {
		svc, leads, _ := newTestService()
		lead := domain.NewLead("+525512345678", nil)
		leads.On("GetOrCreate", ctx, "+525512345678", (*string)(nil)).Return(lead, nil)

		got, err := svc.ResolveLead(ctx, "+52 1 55 1234 5678", nil)

		require.NoError(t, err)
		assert.Equal(t, lead, got)
		leads.AssertExpectations(t)
	})

	t.Run("rejects invalid phone", func(t *testing.T) {
		svc, leads, _ := newTestService()

		_, err := svc.ResolveLead(ctx, "not a phone", nil)

		assert.True(t, apperrors.IsValidation(err))
		leads.AssertNotCalled(t, "GetOrCreate", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("propagates repository error", func(t *testing.T) {
		svc, leads, _ := newTestService()
		leads.On("GetOrCreate", ctx, "+525512345678", (*string)(nil)).
			Return(nil, apperrors.Transient("get_or_create lead"))

		_, err := svc.ResolveLead(ctx, "5512345678", nil)

		assert.True(t, apperrors.IsTransient(err))
	})
}

func TestConversationService_RecordTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("adds persisted messages to working memory", func(t *testing.T) {
		svc, leads, messages := newTestService()
		lead := domain.NewLead("+525512345678", nil)
		msgs := []*domain.Message{
			domain.NewMessage("", domain.MessageRoleUser, "hola", 3),
			domain.NewMessage("", domain.MessageRoleAssistant, "buen dia", 5),
		}
		messages.On("SaveMessages", ctx, msgs).Return(msgs, nil)
		returnSaved(leads)

		saved, err := svc.RecordTurn(ctx, lead, msgs)

		require.NoError(t, err)
		assert.Equal(t, 2, saved.MessageCount)
		assert.Len(t, saved.RecentHistory, 2)
		assert.Equal(t, lead.LeadID, msgs[0].LeadID)
		messages.AssertExpectations(t)
		leads.AssertExpectations(t)
	})

	t.Run("saves lead after partial write", func(t *testing.T) {
		svc, leads, messages := newTestService()
		lead := domain.NewLead("+525512345678", nil)
		ok := domain.NewMessage(lead.LeadID, domain.MessageRoleUser, "hola", 3)
		bad := domain.NewMessage(lead.LeadID, domain.MessageRoleUser, "dup", 3)
		pw := &apperrors.PartialWriteError{
			Attempted: 2,
			Failures:  []apperrors.ItemFailure{{Index: 1, Err: apperrors.DuplicateKey("message")}},
		}
		messages.On("SaveMessages", ctx, mock.Anything).Return([]*domain.Message{ok}, pw)
		returnSaved(leads)

		saved, err := svc.RecordTurn(ctx, lead, []*domain.Message{ok, bad})

		require.NotNil(t, saved)
		assert.True(t, apperrors.IsPartialWrite(err))
		assert.Equal(t, 1, saved.MessageCount)
		leads.AssertExpectations(t)
	})

	t.Run("does not save lead when messages fail", func(t *testing.T) {
		svc, leads, messages := newTestService()
		lead := domain.NewLead("+525512345678", nil)
		messages.On("SaveMessages", ctx, mock.Anything).Return(nil, apperrors.Transient("insert_many message"))

		_, err := svc.RecordTurn(ctx, lead, []*domain.Message{domain.NewMessage(lead.LeadID, domain.MessageRoleUser, "hola", 1)})

		assert.True(t, apperrors.IsTransient(err))
		leads.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		assert.Equal(t, 0, lead.MessageCount)
	})

	t.Run("rejects message for another lead", func(t *testing.T) {
		svc, _, messages := newTestService()
		lead := domain.NewLead("+525512345678", nil)

		_, err := svc.RecordTurn(ctx, lead, []*domain.Message{domain.NewMessage("+15555550100", domain.MessageRoleUser, "hi", 1)})

		assert.True(t, apperrors.IsValidation(err))
		messages.AssertNotCalled(t, "SaveMessages", mock.Anything, mock.Anything)
	})
}

func TestConversationService_Reconcile(t *testing.T) {
	ctx := context.Background()
	leadID := "+525512345678"

	t.Run("recomputes count and history", func(t *testing.T) {
		svc, leads, messages := newTestService()
		lead := domain.NewLead(leadID, nil)
		lead.MessageCount = 1
		lead.LastInteractionAt = time.Now().Add(-time.Hour)

		latest := time.Now().UTC()
		recent := []*domain.Message{
			{ID: "a", LeadID: leadID, Role: domain.MessageRoleUser, Timestamp: latest.Add(-time.Minute)},
			{ID: "b", LeadID: leadID, Role: domain.MessageRoleAssistant, Timestamp: latest},
		}
		leads.On("GetByPhone", ctx, leadID).Return(lead, nil)
		messages.On("CountMessagesForLead", ctx, leadID).Return(int64(42), nil)
		messages.On("GetRecentMessages", ctx, leadID, domain.RecentHistoryLimit).Return(recent, nil)
		returnSaved(leads)

		saved, err := svc.Reconcile(ctx, leadID)

		require.NoError(t, err)
		assert.Equal(t, 42, saved.MessageCount)
		require.Len(t, saved.RecentHistory, 2)
		assert.Equal(t, "b", saved.RecentHistory[1].ID)
		assert.True(t, saved.LastInteractionAt.Equal(latest))
	})

	t.Run("missing lead", func(t *testing.T) {
		svc, leads, _ := newTestService()
		leads.On("GetByPhone", ctx, leadID).Return(nil, nil)

		_, err := svc.Reconcile(ctx, leadID)

		assert.True(t, apperrors.IsNotFound(err))
	})
}

func TestConversationService_EraseConversation(t *testing.T) {
	ctx := context.Background()
	leadID := "+525512345678"

	t.Run("deletes messages and clears working memory", func(t *testing.T) {
		svc, leads, messages := newTestService()
		messages.On("DeleteMessagesForLead", ctx, leadID).Return(int64(7), nil)
		leads.On("ClearWorkingMemory", ctx, leadID).Return(true, nil)

		n, err := svc.EraseConversation(ctx, leadID)

		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
		messages.AssertExpectations(t)
		leads.AssertExpectations(t)
	})

	t.Run("keeps lead cache when delete fails", func(t *testing.T) {
		svc, leads, messages := newTestService()
		messages.On("DeleteMessagesForLead", ctx, leadID).Return(int64(0), errors.New("boom"))

		_, err := svc.EraseConversation(ctx, leadID)

		require.Error(t, err)
		leads.AssertNotCalled(t, "ClearWorkingMemory", mock.Anything, mock.Anything)
	})
}

func TestConversationService_ExportConversation(t *testing.T) {
	ctx := context.Background()
	svc, _, messages := newTestService()
	msgs := []*domain.Message{{ID: "a"}, {ID: "b"}}
	messages.On("ForEachMessage", ctx, "+1", mock.Anything).Return(msgs, nil)

	var ids []string
	err := svc.ExportConversation(ctx, "+1", func(m *domain.Message) error {
		ids = append(ids, m.ID)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestConversationService_ScheduleStaleFollowups(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("schedules leads without a follow-up", func(t *testing.T) {
		svc, leads, _ := newTestService()
		svc.now = func() time.Time { return now }

		scheduled := domain.NewLead("+1", nil)
		already := now.Add(time.Hour)
		scheduled.NextFollowupAt = &already
		fresh := domain.NewLead("+2", nil)
		gone := domain.NewLead("+3", nil)

		leads.On("GetStaleLeads", ctx, 3, nonFollowupStages(), 50).
			Return([]*domain.Lead{scheduled, fresh, gone}, nil)
		leads.On("ScheduleFollowup", ctx, "+2", now.Add(24*time.Hour)).Return(true, nil)
		leads.On("ScheduleFollowup", ctx, "+3", now.Add(24*time.Hour)).Return(false, nil)

		n, err := svc.ScheduleStaleFollowups(ctx, 3, 50, 24*time.Hour)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		leads.AssertExpectations(t)
		leads.AssertNotCalled(t, "ScheduleFollowup", ctx, "+1", mock.Anything)
	})

	t.Run("continues after a failed lead", func(t *testing.T) {
		svc, leads, _ := newTestService()
		svc.now = func() time.Time { return now }

		leads.On("GetStaleLeads", ctx, 3, mock.Anything, 10).
			Return([]*domain.Lead{domain.NewLead("+1", nil), domain.NewLead("+2", nil)}, nil)
		leads.On("ScheduleFollowup", ctx, "+1", mock.Anything).Return(false, apperrors.Transient("schedule_followup lead"))
		leads.On("ScheduleFollowup", ctx, "+2", mock.Anything).Return(true, nil)

		n, err := svc.ScheduleStaleFollowups(ctx, 3, 10, time.Hour)

		assert.Equal(t, 1, n)
		assert.True(t, apperrors.IsTransient(err))
	})
}

func TestConversationService_PipelineSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, leads, _ := newTestService()
	counts := map[domain.SalesStage]int64{domain.StageQualified: 2, domain.StageClosedWon: 1}
	leads.On("CountByStage", ctx).Return(counts, nil)

	got, err := svc.PipelineSnapshot(ctx)

	require.NoError(t, err)
	assert.Equal(t, counts, got)
}

func TestNonFollowupStages(t *testing.T) {
	assert.Equal(t, []domain.SalesStage{
		domain.StageDemoScheduled,
		domain.StageOnHold,
		domain.StageClosedWon,
		domain.StageClosedLost,
	}, nonFollowupStages())
}
