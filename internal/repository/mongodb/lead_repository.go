package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/domain"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
	"github.com/EnriquePaullada/gp-data-v4/internal/validator"
)

// DefaultQueryLimit caps list queries when the caller passes a non-positive limit
const DefaultQueryLimit = 100

// LeadRepository handles lead persistence in MongoDB
type LeadRepository struct {
	*Repository[*domain.Lead, leadDocument]
}

// NewLeadRepository creates a new lead repository
func NewLeadRepository(manager *database.MongoManager) *LeadRepository {
	return &LeadRepository{
		Repository: NewRepository(manager, database.LeadsCollection, Codec[*domain.Lead, leadDocument]{
			Resource: "lead",
			IDField:  "lead_id",
			Encode:   encodeLead,
			Decode:   decodeLead,
			IDOf:     func(l *domain.Lead) any { return l.LeadID },
		}),
	}
}

func leadFilter(leadID string) bson.D {
	return bson.D{{Key: "lead_id", Value: leadID}}
}

func queryLimit(limit int) int64 {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return int64(limit)
}

// GetByPhone retrieves a lead by its E.164 phone number, or nil when absent
func (r *LeadRepository) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	return r.FindOne(ctx, leadFilter(phone))
}

// GetOrCreate returns the lead for phone, creating it when absent.
// An existing lead is returned unchanged and fullName is ignored.
// Concurrent calls for the same phone yield one stored lead.
func (r *LeadRepository) GetOrCreate(ctx context.Context, phone string, fullName *string) (*domain.Lead, error) {
	if phone == "" {
		return nil, apperrors.Validation("lead_id is required")
	}
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	lead := domain.NewLead(phone, fullName)
	lead.Stamp(r.now(), true)
	doc := encodeLead(lead)

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	start := time.Now()
	var stored leadDocument
	err = coll.FindOneAndUpdate(ctx, leadFilter(phone),
		bson.D{{Key: "$setOnInsert", Value: leadInsertFields(doc)}}, opts).Decode(&stored)

	if mongo.IsDuplicateKeyError(err) {
		// lost an insert race; the winner's document is authoritative
		logger.Debug("get or create lost upsert race", zap.String("lead_id", phone))
		existing, findErr := r.GetByPhone(ctx, phone)
		if findErr != nil {
			return nil, findErr
		}
		if existing != nil {
			return existing, nil
		}
	}
	if err := r.observe("get_or_create", start, err); err != nil {
		return nil, err
	}

	out := decodeLead(stored)
	if out.CreatedAt.Equal(doc.CreatedAt) && out.UpdatedAt.Equal(doc.UpdatedAt) {
		logger.Info("created new lead", zap.String("lead_id", phone))
	}
	return out, nil
}

// Save upserts a lead by lead_id, replacing every mutable field while
// preserving created_at. It returns the stored lead.
func (r *LeadRepository) Save(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	if err := validator.ValidateEntity("lead", lead); err != nil {
		return nil, err
	}

	saved, err := r.save(ctx, lead)
	if apperrors.IsDuplicateKey(err) {
		// concurrent first save of the same lead; the retry matches the winner
		saved, err = r.save(ctx, lead)
	}
	if err != nil {
		return nil, err
	}

	lead.CreatedAt = saved.CreatedAt
	lead.UpdatedAt = saved.UpdatedAt
	return saved, nil
}

func (r *LeadRepository) save(ctx context.Context, lead *domain.Lead) (*domain.Lead, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	now := r.now()
	snapshot := *lead
	snapshot.UpdatedAt = now
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	doc := encodeLead(&snapshot)

	set := leadMutableFields(doc)
	if doc.NextFollowupAt != nil {
		set = append(set, bson.E{Key: "next_followup_at", Value: *doc.NextFollowupAt})
	}
	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created_at", Value: doc.CreatedAt}}},
	}
	if doc.NextFollowupAt == nil {
		update = append(update, bson.E{Key: "$unset", Value: bson.D{{Key: "next_followup_at", Value: ""}}})
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	start := time.Now()
	var stored leadDocument
	err = coll.FindOneAndUpdate(ctx, leadFilter(lead.LeadID), update, opts).Decode(&stored)
	if err := r.observe("save", start, err); err != nil {
		return nil, err
	}
	return decodeLead(stored), nil
}

// setFields applies a partial update to one lead and reports whether it matched
func (r *LeadRepository) setFields(ctx context.Context, op, leadID string, update bson.D) (bool, error) {
	coll, err := r.coll()
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := coll.UpdateOne(ctx, leadFilter(leadID), update)
	if err := r.observe(op, start, err); err != nil {
		return false, err
	}
	return res.MatchedCount > 0, nil
}

// UpdateStage moves a lead to a new pipeline stage and reports whether the lead exists
func (r *LeadRepository) UpdateStage(ctx context.Context, leadID string, stage domain.SalesStage) (bool, error) {
	if !stage.IsValid() {
		return false, apperrors.Validation("unknown sales stage").WithDetail("stage", string(stage))
	}

	matched, err := r.setFields(ctx, "update_stage", leadID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "current_stage", Value: string(stage)},
			{Key: "updated_at", Value: r.now()},
		}},
	})
	if err != nil {
		return false, err
	}
	if matched {
		logger.WithLeadID(leadID).Info("updated lead stage", zap.String("stage", string(stage)))
	}
	return matched, nil
}

// ScheduleFollowup sets the next follow-up time of a lead
func (r *LeadRepository) ScheduleFollowup(ctx context.Context, leadID string, at time.Time) (bool, error) {
	return r.setFields(ctx, "schedule_followup", leadID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "next_followup_at", Value: storageTime(at)},
			{Key: "updated_at", Value: r.now()},
		}},
	})
}

// ClearFollowup removes the scheduled follow-up of a lead
func (r *LeadRepository) ClearFollowup(ctx context.Context, leadID string) (bool, error) {
	return r.setFields(ctx, "clear_followup", leadID, bson.D{
		{Key: "$unset", Value: bson.D{{Key: "next_followup_at", Value: ""}}},
		{Key: "$set", Value: bson.D{{Key: "updated_at", Value: r.now()}}},
	})
}

// ClearWorkingMemory empties the recent_history cache of a lead
func (r *LeadRepository) ClearWorkingMemory(ctx context.Context, leadID string) (bool, error) {
	return r.setFields(ctx, "clear_working_memory", leadID, bson.D{
		{Key: "$set", Value: bson.D{
			{Key: "recent_history", Value: bson.A{}},
			{Key: "updated_at", Value: r.now()},
		}},
	})
}

// GetLeadsByStage lists leads in a stage, most recently active first
func (r *LeadRepository) GetLeadsByStage(ctx context.Context, stage domain.SalesStage, limit, skip int) ([]*domain.Lead, error) {
	fo := FindOptions{
		Sort:  bson.D{{Key: "last_interaction_at", Value: -1}, {Key: "lead_id", Value: 1}},
		Limit: queryLimit(limit),
	}
	if skip > 0 {
		fo.Skip = int64(skip)
	}
	return r.FindMany(ctx, bson.D{{Key: "current_stage", Value: string(stage)}}, fo)
}

// GetLeadsNeedingFollowup lists leads whose follow-up is due at or before
// the cutoff, most overdue first. A zero cutoff means now.
func (r *LeadRepository) GetLeadsNeedingFollowup(ctx context.Context, before time.Time, limit int) ([]*domain.Lead, error) {
	if before.IsZero() {
		before = r.now()
	}

	filter := bson.D{{Key: "next_followup_at", Value: bson.D{
		{Key: "$ne", Value: nil},
		{Key: "$lte", Value: storageTime(before)},
	}}}
	return r.FindMany(ctx, filter, FindOptions{
		Sort:  bson.D{{Key: "next_followup_at", Value: 1}, {Key: "lead_id", Value: 1}},
		Limit: queryLimit(limit),
	})
}

// GetStaleLeads lists leads inactive for more than daysInactive days,
// oldest interaction first. A nil excludeStages skips closed leads; an
// empty slice excludes nothing.
func (r *LeadRepository) GetStaleLeads(ctx context.Context, daysInactive int, excludeStages []domain.SalesStage, limit int) ([]*domain.Lead, error) {
	if excludeStages == nil {
		excludeStages = domain.ClosedStages
	}
	cutoff := r.now().Add(-time.Duration(daysInactive) * 24 * time.Hour)

	filter := bson.D{{Key: "last_interaction_at", Value: bson.D{{Key: "$lt", Value: cutoff}}}}
	if len(excludeStages) > 0 {
		filter = append(filter, bson.E{Key: "current_stage", Value: bson.D{{Key: "$nin", Value: stageValues(excludeStages)}}})
	}

	return r.FindMany(ctx, filter, FindOptions{
		Sort:  bson.D{{Key: "last_interaction_at", Value: 1}, {Key: "lead_id", Value: 1}},
		Limit: queryLimit(limit),
	})
}

// GetHighIntentLeads lists leads with at least minMessageCount messages,
// most engaged first. A nil stages uses the default high-intent stages; an
// empty slice applies no stage filter.
func (r *LeadRepository) GetHighIntentLeads(ctx context.Context, minMessageCount int, stages []domain.SalesStage, limit int) ([]*domain.Lead, error) {
	if stages == nil {
		stages = domain.DefaultHighIntentStages
	}

	filter := bson.D{{Key: "message_count", Value: bson.D{{Key: "$gte", Value: minMessageCount}}}}
	if len(stages) > 0 {
		filter = append(filter, bson.E{Key: "current_stage", Value: bson.D{{Key: "$in", Value: stageValues(stages)}}})
	}

	return r.FindMany(ctx, filter, FindOptions{
		Sort:  bson.D{{Key: "message_count", Value: -1}, {Key: "lead_id", Value: 1}},
		Limit: queryLimit(limit),
	})
}

// CountByStage returns the number of leads per stage.
// Only stages with at least one lead are present in the result.
func (r *LeadRepository) CountByStage(ctx context.Context) (map[domain.SalesStage]int64, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "current_stage", Value: bson.D{{Key: "$ne", Value: nil}}}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$current_stage"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	start := time.Now()
	cursor, err := coll.Aggregate(ctx, pipeline)
	if err := r.observe("count_by_stage", start, err); err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Stage string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, database.ClassifyError("decode stage counts", err)
	}

	counts := make(map[domain.SalesStage]int64, len(rows))
	for _, row := range rows {
		stage := domain.SalesStage(row.Stage)
		if !stage.IsValid() {
			logger.Warn("unknown stage value in leads collection", zap.String("stage", row.Stage))
		}
		counts[stage] = row.Count
	}
	return counts, nil
}

func stageValues(stages []domain.SalesStage) bson.A {
	out := make(bson.A, len(stages))
	for i, s := range stages {
		out[i] = string(s)
	}
	return out
}
