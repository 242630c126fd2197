package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"treadline/internal/migrations/mongo/validators"
)

var (
	EmployeesIndexes = []mongo.IndexModel{
		// ListSchedulable scans this and relies on the sort for
		// deterministic auto-assignment.
		{Keys: bson.D{
			{Key: "active", Value: 1},
			{Key: "role", Value: 1},
			{Key: "created_at", Value: 1},
		}},
	}

	RecurringAvailabilityIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "employee_id", Value: 1},
				{Key: "day_of_week", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	AvailabilityOverrideIndexes = []mongo.IndexModel{
		{Keys: bson.D{
			{Key: "employee_id", Value: 1},
			{Key: "date", Value: 1},
		}},
	}

	AppointmentsIndexes = []mongo.IndexModel{
		// Backstop against double-booking: at most one live appointment
		// per employee slot. Cancelled rows are excluded so a freed slot
		// can be rebooked.
		{
			Keys: bson.D{
				{Key: "employee_id", Value: 1},
				{Key: "scheduled_date", Value: 1},
				{Key: "scheduled_time", Value: 1},
			},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"status": bson.M{"$in": []string{"SCHEDULED", "CONFIRMED", "COMPLETED"}},
				}),
		},
		{Keys: bson.D{
			{Key: "scheduled_date", Value: 1},
			{Key: "scheduled_time", Value: 1},
		}},
		{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "payment_date", Value: 1}}},
	}

	AssignmentIndexes = []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "appointment_id", Value: 1},
				{Key: "employee_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "employee_id", Value: 1}}},
	}

	SlotLockIndexes = []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

)

// IdempotencyIndexes expires cached responses after the configured TTL, the
// same knob the idempotency middleware advertises to clients.
func IdempotencyIndexes(ttl time.Duration) []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		},
	}
}

func RunMigration(ctx context.Context, client *mongo.Client, dbName string, idempotencyTTL time.Duration) error {
	db := client.Database(dbName)
	fmt.Printf("Running Treadline Mongo migrations on database: %s\n", dbName)

	collections := map[string]struct {
		Indexes   []mongo.IndexModel
		Validator bson.M
	}{
		"Employees": {
			Indexes:   EmployeesIndexes,
			Validator: validators.EmployeeValidator,
		},
		"Recurring_availability": {
			Indexes:   RecurringAvailabilityIndexes,
			Validator: validators.RecurringAvailabilityValidator,
		},
		"Availability_overrides": {
			Indexes:   AvailabilityOverrideIndexes,
			Validator: validators.AvailabilityOverrideValidator,
		},
		"Appointments": {
			Indexes:   AppointmentsIndexes,
			Validator: validators.AppointmentValidator,
		},
		"Appointment_assignments": {
			Indexes:   AssignmentIndexes,
			Validator: validators.AppointmentAssignmentValidator,
		},
		"Slot_locks": {
			Indexes: SlotLockIndexes,
		},
		"Idempotency_records": {
			Indexes: IdempotencyIndexes(idempotencyTTL),
		},
	}

	for name, def := range collections {
		if err := ensureCollection(ctx, db, name, def.Validator); err != nil {
			return fmt.Errorf("failed to ensure collection %s: %w", name, err)
		}
		if err := ensureIndexes(ctx, db, name, def.Indexes); err != nil {
			return fmt.Errorf("failed to ensure indexes for %s: %w", name, err)
		}
	}

	fmt.Println("All migrations applied successfully.")
	return nil
}

func ensureCollection(ctx context.Context, db *mongo.Database, name string, validator bson.M) error {
	existing, err := db.ListCollectionNames(ctx, bson.D{{Key: "name", Value: name}})
	if err != nil {
		return err
	}

	if len(existing) == 0 {
		fmt.Printf("Creating collection: %s\n", name)
		opts := options.CreateCollection()
		if validator != nil {
			opts.SetValidator(validator)
		}
		if err := db.CreateCollection(ctx, name, opts); err != nil {
			return fmt.Errorf("failed creating %s: %w", name, err)
		}
		return nil
	}

	if validator == nil {
		return nil
	}

	fmt.Printf("Collection %s already exists, updating validator if needed\n", name)
	command := bson.D{
		{Key: "collMod", Value: name},
		{Key: "validator", Value: validator},
	}
	if err := db.RunCommand(ctx, command).Err(); err != nil {
		fmt.Printf("Warning: failed updating validator for %s: %v\n", name, err)
	}
	return nil
}

func ensureIndexes(ctx context.Context, db *mongo.Database, name string, models []mongo.IndexModel) error {
	coll := db.Collection(name)
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return err
	}
	fmt.Printf("Ensured indexes for %s\n", name)
	return nil
}
