package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/phone"
)

// LeadStore defines lead repository operations
type LeadStore interface {
	GetByPhone(ctx context.Context, phone string) (*domain.Lead, error)
	GetOrCreate(ctx context.Context, phone string, fullName *string) (*domain.Lead, error)
	Save(ctx context.Context, lead *domain.Lead) (*domain.Lead, error)
	ClearWorkingMemory(ctx context.Context, leadID string) (bool, error)
	ScheduleFollowup(ctx context.Context, leadID string, at time.Time) (bool, error)
	GetStaleLeads(ctx context.Context, daysInactive int, excludeStages []domain.SalesStage, limit int) ([]*domain.Lead, error)
	CountByStage(ctx context.Context) (map[domain.SalesStage]int64, error)
}

// MessageStore defines message repository operations
type MessageStore interface {
	SaveMessages(ctx context.Context, msgs []*domain.Message) ([]*domain.Message, error)
	GetRecentMessages(ctx context.Context, leadID string, limit int) ([]*domain.Message, error)
	CountMessagesForLead(ctx context.Context, leadID string) (int64, error)
	DeleteMessagesForLead(ctx context.Context, leadID string) (int64, error)
	ForEachMessage(ctx context.Context, leadID string, fn func(*domain.Message) error) error
}

// ConversationService coordinates the lead and message repositories.
//
// The two stores are written independently. A lead's message_count and
// recent_history may lag the messages collection between a concurrent
// writer's SaveMessages and the next RecordTurn or Reconcile of that lead.
type ConversationService struct {
	leads    LeadStore
	messages MessageStore
	phones   *phone.Normalizer
	logger   *zap.Logger
	now      func() time.Time
}

// NewConversationService creates a new conversation service
func NewConversationService(logger *zap.Logger, leads LeadStore, messages MessageStore, phones *phone.Normalizer) *ConversationService {
	return &ConversationService{
		leads:    leads,
		messages: messages,
		phones:   phones,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ResolveLead normalizes a raw phone number and returns its lead, creating it when absent
func (s *ConversationService) ResolveLead(ctx context.Context, rawPhone string, fullName *string) (*domain.Lead, error) {
	e164, err := s.phones.E164(rawPhone)
	if err != nil {
		return nil, apperrors.Validation("invalid phone number").
			WithDetail("phone", rawPhone).
			WithError(err)
	}

	lead, err := s.leads.GetOrCreate(ctx, e164, fullName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve lead: %w", err)
	}
	return lead, nil
}

// RecordTurn persists the messages of one conversation turn and then saves
// the lead with the persisted messages added to its working memory.
//
// A partial write still saves the lead with the messages that were stored;
// the *apperrors.PartialWriteError is returned alongside the saved lead.
func (s *ConversationService) RecordTurn(ctx context.Context, lead *domain.Lead, msgs []*domain.Message) (*domain.Lead, error) {
	if lead == nil {
		return nil, apperrors.Validation("lead is required")
	}
	for i, m := range msgs {
		if m == nil {
			return nil, apperrors.Validation("message is required").WithDetail("index", fmt.Sprint(i))
		}
		if m.LeadID == "" {
			m.LeadID = lead.LeadID
		}
		if m.LeadID != lead.LeadID {
			return nil, apperrors.Validation("message belongs to another lead").
				WithDetail("index", fmt.Sprint(i)).
				WithDetail("leadId", m.LeadID)
		}
	}

	written, writeErr := s.messages.SaveMessages(ctx, msgs)
	if writeErr != nil && !apperrors.IsPartialWrite(writeErr) {
		return nil, fmt.Errorf("failed to save messages: %w", writeErr)
	}

	for _, m := range written {
		lead.AddMessage(*m)
	}

	saved, err := s.leads.Save(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("failed to save lead: %w", err)
	}

	if writeErr != nil {
		s.logger.Warn("turn recorded with failed messages",
			zap.String("lead_id", lead.LeadID),
			zap.Int("written", len(written)),
			zap.Ints("failed_indexes", apperrors.GetPartialWrite(writeErr).FailedIndexes()),
		)
		return saved, writeErr
	}
	return saved, nil
}

// Reconcile recomputes a lead's message_count and recent_history from the
// messages collection and saves it.
func (s *ConversationService) Reconcile(ctx context.Context, leadID string) (*domain.Lead, error) {
	lead, err := s.leads.GetByPhone(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	if lead == nil {
		return nil, apperrors.NotFound("lead").WithDetail("leadId", leadID)
	}

	count, err := s.messages.CountMessagesForLead(ctx, leadID)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	recent, err := s.messages.GetRecentMessages(ctx, leadID, domain.RecentHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}

	history := make([]domain.Message, len(recent))
	for i, m := range recent {
		history[i] = *m
	}

	before := lead.MessageCount
	lead.MessageCount = int(count)
	lead.SetRecentHistory(history)
	if n := len(history); n > 0 && history[n-1].Timestamp.After(lead.LastInteractionAt) {
		lead.LastInteractionAt = history[n-1].Timestamp
	}

	saved, err := s.leads.Save(ctx, lead)
	if err != nil {
		return nil, fmt.Errorf("failed to save lead: %w", err)
	}

	if before != saved.MessageCount {
		s.logger.Info("reconciled lead message count",
			zap.String("lead_id", leadID),
			zap.Int("previous", before),
			zap.Int("current", saved.MessageCount),
		)
	}
	return saved, nil
}

// EraseConversation hard-deletes a lead's messages and invalidates its
// working memory. It returns the number of messages removed.
func (s *ConversationService) EraseConversation(ctx context.Context, leadID string) (int64, error) {
	deleted, err := s.messages.DeleteMessagesForLead(ctx, leadID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}

	if _, err := s.leads.ClearWorkingMemory(ctx, leadID); err != nil {
		return deleted, fmt.Errorf("failed to clear working memory: %w", err)
	}

	s.logger.Info("erased conversation",
		zap.String("lead_id", leadID),
		zap.Int64("deleted_messages", deleted),
	)
	return deleted, nil
}

// ExportConversation streams a lead's messages oldest first
func (s *ConversationService) ExportConversation(ctx context.Context, leadID string, fn func(*domain.Message) error) error {
	return s.messages.ForEachMessage(ctx, leadID, fn)
}

// ScheduleStaleFollowups schedules a follow-up after delay for leads that
// have been inactive for daysInactive days, are in a follow-up stage and
// have none scheduled. It returns how many follow-ups were scheduled.
func (s *ConversationService) ScheduleStaleFollowups(ctx context.Context, daysInactive, limit int, delay time.Duration) (int, error) {
	stale, err := s.leads.GetStaleLeads(ctx, daysInactive, nonFollowupStages(), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get stale leads: %w", err)
	}

	at := s.now().Add(delay)
	scheduled := 0
	var errs []error
	for _, lead := range stale {
		if lead.NextFollowupAt != nil {
			continue
		}
		ok, err := s.leads.ScheduleFollowup(ctx, lead.LeadID, at)
		if err != nil {
			s.logger.Warn("failed to schedule follow-up",
				zap.String("lead_id", lead.LeadID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if ok {
			scheduled++
		}
	}

	s.logger.Info("stale lead scan completed",
		zap.Int("stale", len(stale)),
		zap.Int("scheduled", scheduled),
	)
	return scheduled, errors.Join(errs...)
}

// PipelineSnapshot returns the number of leads per stage
func (s *ConversationService) PipelineSnapshot(ctx context.Context) (map[domain.SalesStage]int64, error) {
	counts, err := s.leads.CountByStage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads by stage: %w", err)
	}
	return counts, nil
}

func nonFollowupStages() []domain.SalesStage {
	out := make([]domain.SalesStage, 0, len(domain.AllSalesStages))
	for _, stage := range domain.AllSalesStages {
		if !slices.Contains(domain.FollowupStages, stage) {
			out = append(out, stage)
		}
	}
	return out
}
