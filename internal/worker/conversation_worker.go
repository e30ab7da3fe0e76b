package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/metrics"
)

const (
	// TypeLeadReconcile is the task type for recomputing a lead's cached counters
	TypeLeadReconcile = "lead:reconcile"
	// TypeConversationErase is the task type for erasing a lead's conversation
	TypeConversationErase = "conversation:erase"
)

// ConversationManager is the conversation service surface used by the workers
type ConversationManager interface {
	Reconcile(ctx context.Context, leadID string) (*domain.Lead, error)
	EraseConversation(ctx context.Context, leadID string) (int64, error)
	ExportConversation(ctx context.Context, leadID string, fn func(*domain.Message) error) error
}

// ArchiveStore uploads conversation archives. *minio.Client satisfies it.
type ArchiveStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// LeadReconcilePayload is the payload for lead reconcile tasks
type LeadReconcilePayload struct {
	LeadID string `json:"lead_id"`
}

// NewLeadReconcileTask creates a lead reconcile task
func NewLeadReconcileTask(payload *LeadReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lead reconcile payload: %w", err)
	}
	return asynq.NewTask(TypeLeadReconcile, data, asynq.MaxRetry(5), asynq.Timeout(time.Minute)), nil
}

// ConversationErasePayload is the payload for conversation erase tasks
type ConversationErasePayload struct {
	LeadID  string `json:"lead_id"`
	Archive bool   `json:"archive"`
}

// NewConversationEraseTask creates a conversation erase task
func NewConversationEraseTask(payload *ConversationErasePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal conversation erase payload: %w", err)
	}
	return asynq.NewTask(TypeConversationErase, data, asynq.MaxRetry(3), asynq.Timeout(10*time.Minute)), nil
}

// ConversationWorker handles per-lead maintenance tasks
type ConversationWorker struct {
	logger        *zap.Logger
	conversations ConversationManager
	archive       ArchiveStore
	bucket        string
}

// NewConversationWorker creates a new conversation worker.
// A nil archive makes erase tasks that request archiving fail without retry.
func NewConversationWorker(
	logger *zap.Logger,
	conversations ConversationManager,
	archive ArchiveStore,
	bucket string,
) *ConversationWorker {
	return &ConversationWorker{
		logger:        logger,
		conversations: conversations,
		archive:       archive,
		bucket:        bucket,
	}
}

// ProcessReconcileTask processes a lead reconcile task
func (w *ConversationWorker) ProcessReconcileTask(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { metrics.RecordTask(TypeLeadReconcile, err) }()

	var payload LeadReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal lead reconcile payload: %w", err)
	}
	if payload.LeadID == "" {
		return fmt.Errorf("lead_id is required: %w", asynq.SkipRetry)
	}

	lead, err := w.conversations.Reconcile(ctx, payload.LeadID)
	if err != nil {
		return fmt.Errorf("failed to reconcile lead: %w", err)
	}

	w.logger.Debug("lead reconciled",
		zap.String("lead_id", lead.LeadID),
		zap.Int("message_count", lead.MessageCount),
		zap.Int("recent_history", len(lead.RecentHistory)),
	)
	return nil
}

// ProcessEraseTask processes a conversation erase task
func (w *ConversationWorker) ProcessEraseTask(ctx context.Context, t *asynq.Task) (err error) {
	defer func() { metrics.RecordTask(TypeConversationErase, err) }()

	var payload ConversationErasePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal conversation erase payload: %w", err)
	}
	if payload.LeadID == "" {
		return fmt.Errorf("lead_id is required: %w", asynq.SkipRetry)
	}

	w.logger.Info("processing conversation erase",
		zap.String("lead_id", payload.LeadID),
		zap.Bool("archive", payload.Archive),
	)

	if payload.Archive {
		if w.archive == nil {
			return fmt.Errorf("archive store not configured: %w", asynq.SkipRetry)
		}
		if err := w.archiveConversation(ctx, payload.LeadID); err != nil {
			return err
		}
	}

	deleted, err := w.conversations.EraseConversation(ctx, payload.LeadID)
	if err != nil {
		return fmt.Errorf("failed to erase conversation: %w", err)
	}

	w.logger.Info("conversation erase completed",
		zap.String("lead_id", payload.LeadID),
		zap.Int64("deleted_messages", deleted),
	)
	return nil
}

// archiveRecord is one line of a conversation archive
type archiveRecord struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Tokens    int       `json:"tokens"`
	Timestamp time.Time `json:"timestamp"`
}

// archiveConversation uploads the lead's messages as JSON lines
func (w *ConversationWorker) archiveConversation(ctx context.Context, leadID string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0

	err := w.conversations.ExportConversation(ctx, leadID, func(m *domain.Message) error {
		count++
		return enc.Encode(archiveRecord{
			ID:        m.ID,
			LeadID:    m.LeadID,
			Role:      string(m.Role),
			Content:   m.Content,
			Tokens:    m.Tokens,
			Timestamp: m.Timestamp,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to export conversation: %w", err)
	}
	if count == 0 {
		return nil
	}

	path := archivePath(leadID, time.Now().UTC())
	_, err = w.archive.PutObject(ctx, w.bucket, path, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "application/x-ndjson",
	})
	if err != nil {
		return fmt.Errorf("failed to upload conversation archive: %w", err)
	}

	w.logger.Info("conversation archived",
		zap.String("lead_id", leadID),
		zap.String("path", path),
		zap.Int("messages", count),
	)
	return nil
}

func archivePath(leadID string, at time.Time) string {
	return fmt.Sprintf("conversations/%s/%s.jsonl", leadID, at.Format("20060102_150405"))
}

// EnqueueLeadReconcile enqueues a lead reconcile task.
// Tasks for the same lead are deduplicated while one is pending.
func EnqueueLeadReconcile(client *asynq.Client, leadID string) error {
	task, err := NewLeadReconcileTask(&LeadReconcilePayload{LeadID: leadID})
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueDefault), asynq.TaskID(TypeLeadReconcile+":"+leadID))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

// EnqueueConversationErase enqueues a conversation erase task
func EnqueueConversationErase(client *asynq.Client, payload *ConversationErasePayload) error {
	task, err := NewConversationEraseTask(payload)
	if err != nil {
		return err
	}
	_, err = client.Enqueue(task, asynq.Queue(QueueCritical))
	return err
}
