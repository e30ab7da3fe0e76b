package mongodb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
)

const (
	// DefaultHistoryLimit caps GetConversationHistory for non-positive limits
	DefaultHistoryLimit = 100
	// DefaultRoleLimit caps GetMessagesByRole for non-positive limits
	DefaultRoleLimit = 50
	// TimeRangeLimit caps GetMessagesInTimeRange
	TimeRangeLimit = 1000
	// ResponseTimeScanLimit caps the messages scanned by GetAverageResponseTime
	ResponseTimeScanLimit = 200
	// DefaultResponseTimeHours is the GetAverageResponseTime window for non-positive hours
	DefaultResponseTimeHours = 24
)

// chronological orders messages by timestamp, then by their time-ordered
// ids so messages sharing a timestamp keep their insertion order.
var chronological = bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}

var reverseChronological = bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}

// MessageRepository handles conversation message persistence in MongoDB
type MessageRepository struct {
	*Repository[*domain.Message, messageDocument]
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(manager *database.MongoManager) *MessageRepository {
	return &MessageRepository{
		Repository: NewRepository(manager, database.MessagesCollection, Codec[*domain.Message, messageDocument]{
			Resource: "message",
			IDField:  "_id",
			Encode:   encodeMessage,
			Decode:   decodeMessage,
			IDOf:     func(m *domain.Message) any { return m.ID },
			AssignID: assignMessageID,
			ResetID:  func(m *domain.Message) { m.ID = "" },
		}),
	}
}

// assignMessageID gives a new message a time-ordered UUIDv7 identity.
// It reports false when the message already had one.
func assignMessageID(m *domain.Message) bool {
	if m.ID != "" {
		return false
	}
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	m.ID = id.String()
	return true
}

func lim(limit, fallback int) int64 {
	if limit <= 0 {
		return int64(fallback)
	}
	return int64(limit)
}

// SaveMessages appends messages to the conversation log.
//
// Messages that already have an ID are skipped. Messages that were not
// written are left without an ID, so retrying the same slice writes them.
// The newly written messages are returned in input order with their IDs and
// timestamps set. When some messages fail the error is a
// *apperrors.PartialWriteError whose indexes refer to positions in msgs.
func (r *MessageRepository) SaveMessages(ctx context.Context, msgs []*domain.Message) ([]*domain.Message, error) {
	pending := make([]*domain.Message, 0, len(msgs))
	origin := make([]int, 0, len(msgs))
	for i, m := range msgs {
		if m == nil || m.IsPersisted() {
			continue
		}
		pending = append(pending, m)
		origin = append(origin, i)
	}

	if len(pending) == 0 {
		logger.Debug("all messages already persisted, skipping save", zap.Int("count", len(msgs)))
		return []*domain.Message{}, nil
	}

	written, err := r.BulkCreate(ctx, pending)
	if pw := apperrors.GetPartialWrite(err); pw != nil {
		for i := range pw.Failures {
			pw.Failures[i].Index = origin[pw.Failures[i].Index]
		}
		pw.Attempted = len(msgs)
	}
	if len(written) > 0 {
		logger.Debug("persisted messages",
			zap.String("lead_id", written[0].LeadID),
			zap.Int("count", len(written)),
		)
	}
	return written, err
}

// GetConversationHistory returns messages for a lead in chronological order.
// When before is set only messages strictly earlier than it are returned.
func (r *MessageRepository) GetConversationHistory(ctx context.Context, leadID string, limit int, before *time.Time) ([]*domain.Message, error) {
	filter := bson.D{{Key: "lead_id", Value: leadID}}
	if before != nil {
		filter = append(filter, bson.E{Key: "timestamp", Value: bson.D{{Key: "$lt", Value: storageTime(*before)}}})
	}

	return r.FindMany(ctx, filter, FindOptions{
		Sort:  chronological,
		Limit: lim(limit, DefaultHistoryLimit),
	})
}

// GetRecentMessages returns the newest limit messages of a lead, oldest first
func (r *MessageRepository) GetRecentMessages(ctx context.Context, leadID string, limit int) ([]*domain.Message, error) {
	msgs, err := r.FindMany(ctx, bson.D{{Key: "lead_id", Value: leadID}}, FindOptions{
		Sort:  reverseChronological,
		Limit: lim(limit, domain.RecentHistoryLimit),
	})
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

// GetMessagesByRole returns the newest messages of a lead authored by role
func (r *MessageRepository) GetMessagesByRole(ctx context.Context, leadID string, role domain.MessageRole, limit int) ([]*domain.Message, error) {
	return r.FindMany(ctx, bson.D{
		{Key: "lead_id", Value: leadID},
		{Key: "role", Value: string(role)},
	}, FindOptions{
		Sort:  reverseChronological,
		Limit: lim(limit, DefaultRoleLimit),
	})
}

// GetMessagesInTimeRange returns messages with start <= timestamp < end in chronological order
func (r *MessageRepository) GetMessagesInTimeRange(ctx context.Context, leadID string, start, end time.Time) ([]*domain.Message, error) {
	if !end.After(start) {
		return []*domain.Message{}, nil
	}

	return r.FindMany(ctx, bson.D{
		{Key: "lead_id", Value: leadID},
		{Key: "timestamp", Value: bson.D{
			{Key: "$gte", Value: storageTime(start)},
			{Key: "$lt", Value: storageTime(end)},
		}},
	}, FindOptions{
		Sort:  chronological,
		Limit: TimeRangeLimit,
	})
}

// CountMessagesForLead returns the number of stored messages for a lead
func (r *MessageRepository) CountMessagesForLead(ctx context.Context, leadID string) (int64, error) {
	return r.Count(ctx, bson.D{{Key: "lead_id", Value: leadID}})
}

// GetTotalTokensForLead sums the token counts of all messages for a lead
func (r *MessageRepository) GetTotalTokensForLead(ctx context.Context, leadID string) (int64, error) {
	coll, err := r.coll()
	if err != nil {
		return 0, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "lead_id", Value: leadID}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total_tokens", Value: bson.D{{Key: "$sum", Value: "$tokens"}}},
		}}},
	}

	start := time.Now()
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err := r.observe("total_tokens", start, err); err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		TotalTokens int64 `bson:"total_tokens"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, database.ClassifyError("decode token total", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].TotalTokens, nil
}

// GetAverageResponseTime returns the mean number of seconds between a user
// message and the next assistant reply over the trailing hours. It returns
// nil when the window holds no such pair.
func (r *MessageRepository) GetAverageResponseTime(ctx context.Context, leadID string, hours int) (*float64, error) {
	if hours <= 0 {
		hours = DefaultResponseTimeHours
	}
	cutoff := storageTime(r.now().Add(-time.Duration(hours) * time.Hour))

	msgs, err := r.FindMany(ctx, bson.D{
		{Key: "lead_id", Value: leadID},
		{Key: "timestamp", Value: bson.D{{Key: "$gte", Value: cutoff}}},
	}, FindOptions{
		Sort:  chronological,
		Limit: ResponseTimeScanLimit,
	})
	if err != nil {
		return nil, err
	}
	return averageResponseTime(msgs), nil
}

// DeleteMessagesForLead hard-deletes every message of a lead and returns the
// number removed. The lead's recent_history cache is left untouched.
func (r *MessageRepository) DeleteMessagesForLead(ctx context.Context, leadID string) (int64, error) {
	coll, err := r.coll()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	res, err := coll.DeleteMany(ctx, bson.D{{Key: "lead_id", Value: leadID}})
	if err := r.observe("delete_many", start, err); err != nil {
		return 0, err
	}

	logger.WithLeadID(leadID).Warn("deleted all messages for lead",
		zap.Int64("deleted_count", res.DeletedCount),
	)
	return res.DeletedCount, nil
}

// ForEachMessage streams every message of a lead in chronological order.
// Iteration stops at the first error returned by fn.
func (r *MessageRepository) ForEachMessage(ctx context.Context, leadID string, fn func(*domain.Message) error) error {
	coll, err := r.coll()
	if err != nil {
		return err
	}

	start := time.Now()
	cursor, err := coll.Find(ctx, bson.D{{Key: "lead_id", Value: leadID}}, options.Find().SetSort(chronological))
	if err := r.observe("stream", start, err); err != nil {
		return err
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return database.ClassifyError("decode message", err)
		}
		if err := fn(decodeMessage(doc)); err != nil {
			return err
		}
	}
	return database.ClassifyError("stream messages", cursor.Err())
}

// averageResponseTime pairs each assistant message with the latest preceding
// unanswered user message. msgs must be in chronological order.
func averageResponseTime(msgs []*domain.Message) *float64 {
	var (
		pending *time.Time
		total   float64
		pairs   int
	)
	for _, m := range msgs {
		switch m.Role {
		case domain.MessageRoleUser:
			ts := m.Timestamp
			pending = &ts
		case domain.MessageRoleAssistant:
			if pending != nil {
				total += m.Timestamp.Sub(*pending).Seconds()
				pairs++
				pending = nil
			}
		}
	}
	if pairs == 0 {
		return nil
	}
	avg := total / float64(pairs)
	return &avg
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
