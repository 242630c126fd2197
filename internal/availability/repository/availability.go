package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	availabilityerrors "treadline/internal/availability/errors"
	"treadline/pkg/config"
	mongotx "treadline/pkg/db/mongo"
	"treadline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RecurringCollection = "Recurring_availability"
	OverrideCollection  = "Availability_overrides"
)

type AvailabilityRepository interface {
	UpsertRecurring(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error)
	FindRecurringByEmployee(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error)
	FindRecurringForDay(ctx context.Context, employeeID string, dayOfWeek int) ([]*model.RecurringAvailability, error)
	FindRecurringByID(ctx context.Context, id string) (*model.RecurringAvailability, error)
	DeleteRecurring(ctx context.Context, id string) (*model.RecurringAvailability, error)
	InsertOverride(ctx context.Context, override *model.AvailabilityOverride) error
	FindOverrides(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error)
	FindOverridesForDate(ctx context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error)
	DeleteOverride(ctx context.Context, id string) (*model.AvailabilityOverride, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoAvailabilityRepository struct {
	cfg       *config.Config
	recurring *mongo.Collection
	overrides *mongo.Collection
	txManager mongotx.TransactionManager
}

func NewMongoAvailabilityRepository(cfg *config.Config) AvailabilityRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAvailabilityRepository{
		cfg:       cfg,
		recurring: db.Collection(RecurringCollection),
		overrides: db.Collection(OverrideCollection),
		txManager: mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction, where wrapping the SessionContext would break transaction
// semantics.
func (r *mongoAvailabilityRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// UpsertRecurring stores a rule keyed by (employee, day of week). The write
// is an atomic find-or-create; the unique index on the pair is the backstop
// against two concurrent upserts creating duplicate rules.
func (r *mongoAvailabilityRepository) UpsertRecurring(ctx context.Context, rule *model.RecurringAvailability) (*model.RecurringAvailability, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{
		"employee_id": rule.EmployeeID,
		"day_of_week": rule.DayOfWeek,
	}
	update := bson.M{
		"$set": bson.M{
			"start_time":   rule.StartTime,
			"end_time":     rule.EndTime,
			"is_available": rule.IsAvailable,
			"updated_at":   now,
		},
		"$setOnInsert": bson.M{
			"employee_id": rule.EmployeeID,
			"day_of_week": rule.DayOfWeek,
			"created_at":  now,
		},
	}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored model.RecurringAvailability
	if err := r.recurring.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to upsert recurring availability: %w", err)
	}
	return &stored, nil
}

func (r *mongoAvailabilityRepository) FindRecurringByEmployee(ctx context.Context, employeeID string) ([]*model.RecurringAvailability, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "day_of_week", Value: 1},
		{Key: "start_time", Value: 1},
	})
	cursor, err := r.recurring.Find(ctx, bson.M{"employee_id": employeeID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find recurring availability: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.RecurringAvailability
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode recurring availability: %w", err)
	}
	return rules, nil
}

// FindRecurringForDay returns every rule for the (employee, day) pair, not
// just the first, so the caller unions/subtracts rather than silently
// assuming uniqueness.
func (r *mongoAvailabilityRepository) FindRecurringForDay(ctx context.Context, employeeID string, dayOfWeek int) ([]*model.RecurringAvailability, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"employee_id": employeeID,
		"day_of_week": dayOfWeek,
	}
	cursor, err := r.recurring.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to find recurring availability for day: %w", err)
	}
	defer cursor.Close(ctx)

	var rules []*model.RecurringAvailability
	if err = cursor.All(ctx, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode recurring availability: %w", err)
	}
	return rules, nil
}

func (r *mongoAvailabilityRepository) FindRecurringByID(ctx context.Context, id string) (*model.RecurringAvailability, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", availabilityerrors.ErrInvalidID, id)
	}

	var rule model.RecurringAvailability
	err = r.recurring.FindOne(ctx, bson.M{"_id": objectID}).Decode(&rule)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to find recurring availability: %w", err)
	}
	return &rule, nil
}

// DeleteRecurring removes a rule and returns the removed row so callers can
// show what was deleted.
func (r *mongoAvailabilityRepository) DeleteRecurring(ctx context.Context, id string) (*model.RecurringAvailability, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", availabilityerrors.ErrInvalidID, id)
	}

	var removed model.RecurringAvailability
	err = r.recurring.FindOneAndDelete(ctx, bson.M{"_id": objectID}).Decode(&removed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to delete recurring availability: %w", err)
	}
	return &removed, nil
}

func (r *mongoAvailabilityRepository) InsertOverride(ctx context.Context, override *model.AvailabilityOverride) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	override.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	result, err := r.overrides.InsertOne(ctx, override)
	if err != nil {
		return fmt.Errorf("failed to insert availability override: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		override.ID = oid.Hex()
	}
	return nil
}

func (r *mongoAvailabilityRepository) FindOverrides(ctx context.Context, employeeID, startDate, endDate string) ([]*model.AvailabilityOverride, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"employee_id": employeeID,
		"date": bson.M{
			"$gte": startDate,
			"$lte": endDate,
		},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: 1},
		{Key: "start_time", Value: 1},
	})

	cursor, err := r.overrides.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find availability overrides: %w", err)
	}
	defer cursor.Close(ctx)

	var overrides []*model.AvailabilityOverride
	if err = cursor.All(ctx, &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode availability overrides: %w", err)
	}
	return overrides, nil
}

func (r *mongoAvailabilityRepository) FindOverridesForDate(ctx context.Context, employeeID, date string) ([]*model.AvailabilityOverride, error) {
	return r.FindOverrides(ctx, employeeID, date, date)
}

func (r *mongoAvailabilityRepository) DeleteOverride(ctx context.Context, id string) (*model.AvailabilityOverride, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", availabilityerrors.ErrInvalidID, id)
	}

	var removed model.AvailabilityOverride
	err = r.overrides.FindOneAndDelete(ctx, bson.M{"_id": objectID}).Decode(&removed)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, availabilityerrors.ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to delete availability override: %w", err)
	}
	return &removed, nil
}

func (r *mongoAvailabilityRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
