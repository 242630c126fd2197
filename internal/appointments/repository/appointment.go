package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	appointmentserrors "treadline/internal/appointments/errors"
	"treadline/pkg/config"
	mongotx "treadline/pkg/db/mongo"
	"treadline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName       = "Appointments"
	AssignmentCollection = "Appointment_assignments"
)

type AppointmentRepository interface {
	Create(ctx context.Context, appointment *model.Appointment) error
	FindByID(ctx context.Context, id string) (*model.Appointment, error)
	FindAll(ctx context.Context, filter *model.AppointmentFilter, limit int, offset int64) ([]*model.Appointment, error)
	Count(ctx context.Context, filter *model.AppointmentFilter) (int64, error)
	Update(ctx context.Context, id string, appointment *model.Appointment) error
	Delete(ctx context.Context, id string) error
	FindByDateRange(ctx context.Context, startDate, endDate, employeeID string) ([]*model.Appointment, error)
	FindByPaymentDate(ctx context.Context, date string) ([]*model.Appointment, error)
	FindActiveForEmployeeOnDate(ctx context.Context, employeeID, date string) ([]*model.Appointment, error)
	InsertAssignments(ctx context.Context, rows []*model.AppointmentAssignment) error
	FindAssignments(ctx context.Context, appointmentID string) ([]*model.AppointmentAssignment, error)
	ReplaceAssignments(ctx context.Context, appointmentID string, rows []*model.AppointmentAssignment) error
	DeleteAssignments(ctx context.Context, appointmentID string) error
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoAppointmentRepository struct {
	cfg         *config.Config
	collection  *mongo.Collection
	assignments *mongo.Collection
	txManager   mongotx.TransactionManager
}

func NewMongoAppointmentRepository(cfg *config.Config) AppointmentRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoAppointmentRepository{
		cfg:         cfg,
		collection:  db.Collection(CollectionName),
		assignments: db.Collection(AssignmentCollection),
		txManager:   mongotx.NewTransactionManager(cfg.Client.Mongo),
	}
}

// withTimeout wraps the context with a timeout unless already inside a
// transaction, where wrapping the SessionContext would break transaction
// semantics.
func (r *mongoAppointmentRepository) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func (r *mongoAppointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, appointment)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		appointment.ID = oid.Hex()
	}
	return nil
}

func (r *mongoAppointmentRepository) FindByID(ctx context.Context, id string) (*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	var appointment model.Appointment
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&appointment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, appointmentserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find appointment: %w", err)
	}

	return &appointment, nil
}

func (r *mongoAppointmentRepository) FindAll(ctx context.Context, filter *model.AppointmentFilter, limit int, offset int64) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().
		SetSort(bson.D{
			{Key: "scheduled_date", Value: 1},
			{Key: "scheduled_time", Value: 1},
		}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, buildAppointmentFilter(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func (r *mongoAppointmentRepository) Count(ctx context.Context, filter *model.AppointmentFilter) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	count, err := r.collection.CountDocuments(ctx, buildAppointmentFilter(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}

func buildAppointmentFilter(f *model.AppointmentFilter) bson.M {
	filter := bson.M{}
	if f == nil {
		return filter
	}
	if f.EmployeeID != "" {
		filter["employee_id"] = f.EmployeeID
	}
	if f.CustomerID != "" {
		filter["customer_id"] = f.CustomerID
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.StartDate != "" || f.EndDate != "" {
		dateFilter := bson.M{}
		if f.StartDate != "" {
			dateFilter["$gte"] = f.StartDate
		}
		if f.EndDate != "" {
			dateFilter["$lte"] = f.EndDate
		}
		filter["scheduled_date"] = dateFilter
	}
	return filter
}

// Update rewrites the mutable fields of an appointment. Status history and
// created_at never change here.
func (r *mongoAppointmentRepository) Update(ctx context.Context, id string, appointment *model.Appointment) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	update := bson.M{
		"$set": bson.M{
			"vehicle_id":       appointment.VehicleID,
			"employee_id":      appointment.EmployeeID,
			"scheduled_date":   appointment.ScheduledDate,
			"scheduled_time":   appointment.ScheduledTime,
			"end_time":         appointment.EndTime,
			"duration_min":     appointment.DurationMin,
			"service_type":     appointment.ServiceType,
			"appointment_type": appointment.AppointmentType,
			"status":           appointment.Status,
			"notes":            appointment.Notes,
			"payment_amount":   appointment.PaymentAmount,
			"payment_method":   appointment.PaymentMethod,
			"payment_date":     appointment.PaymentDate,
			"updated_at":       time.Now().UTC().Truncate(time.Millisecond),
		},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if result.MatchedCount == 0 {
		return appointmentserrors.ErrNotFound
	}
	return nil
}

func (r *mongoAppointmentRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("%w: %s", appointmentserrors.ErrInvalidID, id)
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if result.DeletedCount == 0 {
		return appointmentserrors.ErrNotFound
	}
	return nil
}

func (r *mongoAppointmentRepository) FindByDateRange(ctx context.Context, startDate, endDate, employeeID string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"scheduled_date": bson.M{"$gte": startDate, "$lte": endDate},
	}
	if employeeID != "" {
		filter["employee_id"] = employeeID
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "scheduled_date", Value: 1},
		{Key: "scheduled_time", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments by date range: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func (r *mongoAppointmentRepository) FindByPaymentDate(ctx context.Context, date string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "scheduled_time", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"payment_date": date}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments by payment date: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

// FindActiveForEmployeeOnDate returns every non-cancelled appointment the
// employee is assigned to on one date, primary or not. The lookup goes
// through the assignment rows so multi-technician jobs block the schedule
// of every technician on them.
func (r *mongoAppointmentRepository) FindActiveForEmployeeOnDate(ctx context.Context, employeeID, date string) ([]*model.Appointment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"scheduled_date": date,
			"status":         bson.M{"$ne": model.StatusCancelled},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": AssignmentCollection,
			"let":  bson.M{"appt_id": bson.M{"$toString": "$_id"}},
			"pipeline": bson.A{
				bson.M{"$match": bson.M{"$expr": bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$appointment_id", "$$appt_id"}},
					bson.M{"$eq": bson.A{"$employee_id", employeeID}},
				}}}},
			},
			"as": "matched_assignments",
		}}},
		{{Key: "$match", Value: bson.M{"matched_assignments": bson.M{"$ne": bson.A{}}}}},
		{{Key: "$project", Value: bson.M{"matched_assignments": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "scheduled_time", Value: 1}}}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointments for employee: %w", err)
	}
	defer cursor.Close(ctx)

	var appointments []*model.Appointment
	if err = cursor.All(ctx, &appointments); err != nil {
		return nil, fmt.Errorf("failed to decode appointments: %w", err)
	}
	return appointments, nil
}

func (r *mongoAppointmentRepository) InsertAssignments(ctx context.Context, rows []*model.AppointmentAssignment) error {
	if len(rows) == 0 {
		return nil
	}

	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	docs := make([]any, 0, len(rows))
	for _, row := range rows {
		row.CreatedAt = now
		docs = append(docs, row)
	}

	result, err := r.assignments.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to insert appointment assignments: %w", err)
	}
	for i, insertedID := range result.InsertedIDs {
		if oid, ok := insertedID.(primitive.ObjectID); ok && i < len(rows) {
			rows[i].ID = oid.Hex()
		}
	}
	return nil
}

func (r *mongoAppointmentRepository) FindAssignments(ctx context.Context, appointmentID string) ([]*model.AppointmentAssignment, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{
		{Key: "primary", Value: -1},
		{Key: "employee_id", Value: 1},
	})
	cursor, err := r.assignments.Find(ctx, bson.M{"appointment_id": appointmentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find appointment assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var rows []*model.AppointmentAssignment
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode appointment assignments: %w", err)
	}
	return rows, nil
}

// ReplaceAssignments swaps the assignment rows of an appointment. Callers
// run this inside a transaction together with the appointment update.
func (r *mongoAppointmentRepository) ReplaceAssignments(ctx context.Context, appointmentID string, rows []*model.AppointmentAssignment) error {
	if err := r.DeleteAssignments(ctx, appointmentID); err != nil {
		return err
	}
	return r.InsertAssignments(ctx, rows)
}

func (r *mongoAppointmentRepository) DeleteAssignments(ctx context.Context, appointmentID string) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if _, err := r.assignments.DeleteMany(ctx, bson.M{"appointment_id": appointmentID}); err != nil {
		return fmt.Errorf("failed to delete appointment assignments: %w", err)
	}
	return nil
}

func (r *mongoAppointmentRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
