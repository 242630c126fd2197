package repository

import (
	"context"
	"errors"
	"fmt"

	"treadline/pkg/config"
	"treadline/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "Employees"

var (
	ErrNotFound  = errors.New("employee not found")
	ErrInvalidID = errors.New("invalid employee ID format")
)

// EmployeeRepository is the read side of the employee roster. Employee CRUD
// itself belongs to the back-office application, not the scheduling engine.
type EmployeeRepository interface {
	FindByID(ctx context.Context, id string) (*model.Employee, error)
	ListSchedulable(ctx context.Context) ([]*model.Employee, error)
}

type mongoEmployeeRepository struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoEmployeeRepository(cfg *config.Config) EmployeeRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoEmployeeRepository{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoEmployeeRepository) FindByID(ctx context.Context, id string) (*model.Employee, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, id)
	}

	var employee model.Employee
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&employee)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find employee: %w", err)
	}

	return &employee, nil
}

// ListSchedulable returns active employees whose role permits scheduling,
// in creation order. Auto-assignment walks this list front to back, so
// retries of the same booking pick the same employee.
func (r *mongoEmployeeRepository) ListSchedulable(ctx context.Context) ([]*model.Employee, error) {
	filter := bson.M{
		"active": true,
		"role":   bson.M{"$in": []string{model.RoleManager, model.RoleTechnician}},
	}
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer cursor.Close(ctx)

	var employees []*model.Employee
	if err = cursor.All(ctx, &employees); err != nil {
		return nil, fmt.Errorf("failed to decode employees: %w", err)
	}

	return employees, nil
}
