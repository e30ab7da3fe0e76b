package mongodb

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/database"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/metrics"
	"github.com/EnriquePaullada/gp-data-v4/internal/validator"
)

// Entity is a domain object the generic repository can persist
type Entity interface {
	Stamp(now time.Time, created bool)
}

// Codec maps a domain entity E to its stored document D
type Codec[E Entity, D any] struct {
	// Resource names the entity in errors ("lead", "message")
	Resource string
	// IDField is the document field holding the entity identity
	IDField string

	Encode func(E) D
	Decode func(D) E
	IDOf   func(E) any
	// AssignID sets a storage identity before insert and reports whether it
	// did. Optional.
	AssignID func(E) bool
	// ResetID removes an identity set by AssignID when the insert did not
	// happen, so a retry writes the entity again. Required with AssignID.
	ResetID func(E)
}

// FindOptions controls ordering and paging for FindMany.
// Sort is applied before Skip and Limit. Zero Limit means no limit.
type FindOptions struct {
	Sort  bson.D
	Skip  int64
	Limit int64
}

// Repository is the entity-agnostic CRUD engine composed by the lead and
// message repositories. The collection is resolved through the manager on
// every call, so calls before Connect fail with NotInitialized.
type Repository[E Entity, D any] struct {
	manager    *database.MongoManager
	collection string
	codec      Codec[E, D]
	now        func() time.Time
}

// NewRepository creates a generic repository over one collection
func NewRepository[E Entity, D any](manager *database.MongoManager, collection string, codec Codec[E, D]) *Repository[E, D] {
	return &Repository[E, D]{
		manager:    manager,
		collection: collection,
		codec:      codec,
		now:        func() time.Time { return storageTime(time.Now()) },
	}
}

func (r *Repository[E, D]) coll() (*mongo.Collection, error) {
	return r.manager.Collection(r.collection)
}

// observe records metrics for an operation and classifies its error
func (r *Repository[E, D]) observe(op string, start time.Time, err error) error {
	metrics.RecordDBQuery(r.collection, op, time.Since(start))
	if err == nil {
		return nil
	}

	err = database.ClassifyError(op+" "+r.codec.Resource, err)
	kind := database.ErrorKind(err)
	metrics.RecordDBError(r.collection, op, kind)
	if kind == "other" {
		logger.Error("database operation failed",
			zap.String("collection", r.collection),
			zap.String("operation", op),
			zap.Error(err),
		)
	}
	return err
}

func (r *Repository[E, D]) idFilter(id any) bson.D {
	return bson.D{{Key: r.codec.IDField, Value: id}}
}

func (r *Repository[E, D]) assignID(e E) bool {
	if r.codec.AssignID == nil {
		return false
	}
	return r.codec.AssignID(e)
}

// Create inserts a new entity. Bookkeeping timestamps are set on e.
func (r *Repository[E, D]) Create(ctx context.Context, e E) (E, error) {
	var zero E
	if err := validator.ValidateEntity(r.codec.Resource, e); err != nil {
		return zero, err
	}
	coll, err := r.coll()
	if err != nil {
		return zero, err
	}

	assigned := r.assignID(e)
	e.Stamp(r.now(), true)

	start := time.Now()
	_, err = coll.InsertOne(ctx, r.codec.Encode(e))
	if err := r.observe("insert", start, err); err != nil {
		if assigned {
			r.codec.ResetID(e)
		}
		return zero, err
	}
	return e, nil
}

// FindByID returns the entity with the given identity, or the zero value when absent
func (r *Repository[E, D]) FindByID(ctx context.Context, id any) (E, error) {
	return r.FindOne(ctx, r.idFilter(id))
}

// FindOne returns the first entity matching filter, or the zero value when absent
func (r *Repository[E, D]) FindOne(ctx context.Context, filter any) (E, error) {
	var zero E
	coll, err := r.coll()
	if err != nil {
		return zero, err
	}

	start := time.Now()
	var doc D
	err = coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		metrics.RecordDBQuery(r.collection, "find_one", time.Since(start))
		return zero, nil
	}
	if err := r.observe("find_one", start, err); err != nil {
		return zero, err
	}
	return r.codec.Decode(doc), nil
}

// FindMany returns all entities matching filter. The result is never nil.
func (r *Repository[E, D]) FindMany(ctx context.Context, filter any, fo FindOptions) ([]E, error) {
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}
	if filter == nil {
		filter = bson.D{}
	}

	opts := options.Find()
	if len(fo.Sort) > 0 {
		opts.SetSort(fo.Sort)
	}
	if fo.Skip > 0 {
		opts.SetSkip(fo.Skip)
	}
	if fo.Limit > 0 {
		opts.SetLimit(fo.Limit)
	}

	start := time.Now()
	cursor, err := coll.Find(ctx, filter, opts)
	if err := r.observe("find", start, err); err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, database.ClassifyError("decode "+r.codec.Resource+" list", err)
	}

	out := make([]E, 0, len(docs))
	for _, doc := range docs {
		out = append(out, r.codec.Decode(doc))
	}
	return out, nil
}

// Update replaces the stored document with the same identity as e.
// It fails with NotFound when no such document exists.
func (r *Repository[E, D]) Update(ctx context.Context, e E) (E, error) {
	var zero E
	if err := validator.ValidateEntity(r.codec.Resource, e); err != nil {
		return zero, err
	}
	coll, err := r.coll()
	if err != nil {
		return zero, err
	}

	e.Stamp(r.now(), false)
	id := r.codec.IDOf(e)

	start := time.Now()
	res, err := coll.ReplaceOne(ctx, r.idFilter(id), r.codec.Encode(e))
	if err := r.observe("replace", start, err); err != nil {
		return zero, err
	}
	if res.MatchedCount == 0 {
		return zero, apperrors.NotFound(r.codec.Resource).WithDetail(r.codec.IDField, fmt.Sprint(id))
	}
	return e, nil
}

// Delete removes the entity with the given identity and reports whether one existed
func (r *Repository[E, D]) Delete(ctx context.Context, id any) (bool, error) {
	coll, err := r.coll()
	if err != nil {
		return false, err
	}

	start := time.Now()
	res, err := coll.DeleteOne(ctx, r.idFilter(id))
	if err := r.observe("delete", start, err); err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

// Count returns the number of documents matching filter
func (r *Repository[E, D]) Count(ctx context.Context, filter any) (int64, error) {
	coll, err := r.coll()
	if err != nil {
		return 0, err
	}
	if filter == nil {
		filter = bson.D{}
	}

	start := time.Now()
	n, err := coll.CountDocuments(ctx, filter)
	if err := r.observe("count", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

// BulkCreate inserts entities without aborting on individual failures.
//
// It returns the successfully written entities in input order. When some
// entries fail (validation or write errors) the returned error is a
// *apperrors.PartialWriteError whose indexes refer to positions in es.
// A failure that leaves the outcome of the whole batch unknown, such as a
// network error, is returned as a plain classified error with no entities.
// Identities assigned by this call are removed from every entity that was
// not written.
func (r *Repository[E, D]) BulkCreate(ctx context.Context, es []E) ([]E, error) {
	if len(es) == 0 {
		return []E{}, nil
	}
	coll, err := r.coll()
	if err != nil {
		return nil, err
	}

	var failures []apperrors.ItemFailure
	batch := make([]E, 0, len(es))
	origin := make([]int, 0, len(es))
	assigned := make([]bool, 0, len(es))
	now := r.now()

	for i, e := range es {
		if err := validator.ValidateEntity(r.codec.Resource, e); err != nil {
			failures = append(failures, apperrors.ItemFailure{Index: i, Err: err})
			continue
		}
		assigned = append(assigned, r.assignID(e))
		e.Stamp(now, true)
		batch = append(batch, e)
		origin = append(origin, i)
	}

	failedInBatch := make(map[int]bool)
	if len(batch) > 0 {
		docs := make([]D, len(batch))
		for i, e := range batch {
			docs[i] = r.codec.Encode(e)
		}

		start := time.Now()
		_, err = coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))

		var bwe mongo.BulkWriteException
		if errors.As(err, &bwe) && len(bwe.WriteErrors) > 0 {
			metrics.RecordDBQuery(r.collection, "insert_many", time.Since(start))
			for _, we := range bwe.WriteErrors {
				if we.Index < 0 || we.Index >= len(batch) {
					continue
				}
				failedInBatch[we.Index] = true
				failures = append(failures, apperrors.ItemFailure{
					Index: origin[we.Index],
					Err:   database.ClassifyError("insert "+r.codec.Resource, we.WriteError),
				})
			}
		} else if err := r.observe("insert_many", start, err); err != nil {
			for i, e := range batch {
				if assigned[i] {
					r.codec.ResetID(e)
				}
			}
			return nil, err
		}
	}

	written := make([]E, 0, len(batch))
	for i, e := range batch {
		if !failedInBatch[i] {
			written = append(written, e)
		} else if assigned[i] {
			r.codec.ResetID(e)
		}
	}

	if len(failures) > 0 {
		slices.SortFunc(failures, func(a, b apperrors.ItemFailure) int {
			return cmp.Compare(a.Index, b.Index)
		})
		metrics.RecordDBError(r.collection, "insert_many", "partial_write")
		logger.Warn("partial batch write",
			zap.String("collection", r.collection),
			zap.Int("attempted", len(es)),
			zap.Int("failed", len(failures)),
		)
		return written, &apperrors.PartialWriteError{Attempted: len(es), Failures: failures}
	}
	return written, nil
}

// storageTime truncates t to the millisecond precision MongoDB stores
func storageTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
