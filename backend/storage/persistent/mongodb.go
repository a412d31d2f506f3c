package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jghoshh/habitual/backend/apperrors"
	"github.com/jghoshh/habitual/backend/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	habitsCollection     = "habits"
	categoriesCollection = "categories"
	daysCollection       = "days"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on the habits,
// categories and days collections.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

func (m *MongoStorage) collection(name string) *mongo.Collection {
	return m.client.Database(m.dbName).Collection(name)
}

// Connect establishes a connection to the MongoDB server at the given URI and a database name,
// and sets up the indexes the queries below rely on.
func (m *MongoStorage) Connect(dbName, uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("error pinging MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	// Habits are always listed per owner.
	_, err = m.collection(habitsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"user_id": 1},
	})
	if err != nil {
		return fmt.Errorf("error creating user_id index on habits: %v", err)
	}

	// A user can't have two categories with the same name. Names are scoped
	// per user, so two users may both own a "Health" category.
	_, err = m.collection(categoriesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("error creating user_id and name index on categories: %v", err)
	}

	// Journal entries are keyed by user and date in _id; this index serves range reads.
	_, err = m.collection(daysCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "date", Value: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("error creating user_id and date index on days: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}
	return nil
}

// AddHabit adds a new habit document to the 'habits' collection.
func (m *MongoStorage) AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error) {
	if habit.History == nil {
		habit.History = []models.StatusEntry{}
	}
	result, err := m.collection(habitsCollection).InsertOne(ctx, habit)
	if err != nil {
		return nil, apperrors.Store("insert habit", err)
	}
	habit.ID = result.InsertedID.(primitive.ObjectID)
	return habit, nil
}

// FindHabit finds the habit document with the given id.
func (m *MongoStorage) FindHabit(ctx context.Context, id primitive.ObjectID) (*models.Habit, error) {
	habit := &models.Habit{}
	err := m.collection(habitsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(habit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	if err != nil {
		return nil, apperrors.Store("find habit", err)
	}
	return habit, nil
}

// FindHabitsByUser returns all habits owned by userID, oldest first.
func (m *MongoStorage) FindHabitsByUser(ctx context.Context, userID string) ([]models.Habit, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := m.collection(habitsCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, apperrors.Store("find habits", err)
	}
	defer cursor.Close(ctx)

	habits := []models.Habit{}
	for cursor.Next(ctx) {
		var habit models.Habit
		if err := cursor.Decode(&habit); err != nil {
			return nil, apperrors.Store("decode habit", err)
		}
		habits = append(habits, habit)
	}
	if err := cursor.Err(); err != nil {
		return nil, apperrors.Store("iterate habits", err)
	}
	return habits, nil
}

// UpdateHabitFields sets the non-nil fields of fields on the habit and returns the updated document.
func (m *MongoStorage) UpdateHabitFields(ctx context.Context, id primitive.ObjectID, fields HabitFields) (*models.Habit, error) {
	set := bson.M{"updated_at": time.Now().UTC()}
	if fields.Name != nil {
		set["name"] = *fields.Name
	}
	if fields.Category != nil {
		set["category"] = *fields.Category
	}
	if fields.CategoryID != nil && !fields.UnsetCategoryID {
		set["category_id"] = *fields.CategoryID
	}
	if fields.Icon != nil {
		set["icon"] = *fields.Icon
	}
	if fields.IconColorClass != nil {
		set["icon_color_class"] = *fields.IconColorClass
	}
	if fields.IconBgClass != nil {
		set["icon_bg_class"] = *fields.IconBgClass
	}
	if fields.StartTime != nil {
		set["start_time"] = *fields.StartTime
	}
	if fields.EndTime != nil {
		set["end_time"] = *fields.EndTime
	}
	if fields.Frequency != nil {
		set["frequency"] = *fields.Frequency
	}
	if fields.Goal != nil {
		set["goal"] = *fields.Goal
	}

	update := bson.M{"$set": set}
	if fields.UnsetCategoryID {
		update["$unset"] = bson.M{"category_id": ""}
	}
	return m.updateHabit(ctx, id, update, "update habit")
}

// SetHabitHistory replaces the history array of the habit and returns the updated document.
func (m *MongoStorage) SetHabitHistory(ctx context.Context, id primitive.ObjectID, history []models.StatusEntry) (*models.Habit, error) {
	if history == nil {
		history = []models.StatusEntry{}
	}
	update := bson.M{"$set": bson.M{"history": history, "updated_at": time.Now().UTC()}}
	return m.updateHabit(ctx, id, update, "set habit history")
}

func (m *MongoStorage) updateHabit(ctx context.Context, id primitive.ObjectID, update bson.M, op string) (*models.Habit, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	habit := &models.Habit{}
	err := m.collection(habitsCollection).FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(habit)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	if err != nil {
		return nil, apperrors.Store(op, err)
	}
	return habit, nil
}

// DeleteHabit deletes the habit document with the given id.
func (m *MongoStorage) DeleteHabit(ctx context.Context, id primitive.ObjectID) (*DeleteResult, error) {
	result, err := m.collection(habitsCollection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, apperrors.Store("delete habit", err)
	}
	if result.DeletedCount == 0 {
		return nil, apperrors.NotFound("habit", id.Hex())
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// AddCategory adds a new category document to the 'categories' collection.
func (m *MongoStorage) AddCategory(ctx context.Context, category *models.Category) (*models.Category, error) {
	result, err := m.collection(categoriesCollection).InsertOne(ctx, category)
	if err != nil {
		if isDuplicateKey(err) {
			return nil, apperrors.Invalid("name", fmt.Sprintf("a category named '%s' already exists", category.Name))
		}
		return nil, apperrors.Store("insert category", err)
	}
	category.ID = result.InsertedID.(primitive.ObjectID)
	return category, nil
}

// FindCategoriesByUser returns every category owned by userID, sorted by name.
func (m *MongoStorage) FindCategoriesByUser(ctx context.Context, userID string) ([]models.Category, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := m.collection(categoriesCollection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, apperrors.Store("find categories", err)
	}
	categories := []models.Category{}
	if err := cursor.All(ctx, &categories); err != nil {
		return nil, apperrors.Store("decode categories", err)
	}
	return categories, nil
}

// FindCategoryByName finds the category of userID named name.
func (m *MongoStorage) FindCategoryByName(ctx context.Context, userID, name string) (*models.Category, error) {
	category := &models.Category{}
	err := m.collection(categoriesCollection).FindOne(ctx, bson.M{"user_id": userID, "name": name}).Decode(category)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("category", name)
	}
	if err != nil {
		return nil, apperrors.Store("find category", err)
	}
	return category, nil
}

// ApplyBackfill inserts the planned categories and sets category_id on the
// planned habits inside a single transaction. Transactions need MongoDB to
// run as a replica set.
func (m *MongoStorage) ApplyBackfill(ctx context.Context, plan BackfillPlan) error {
	if plan.Empty() {
		return nil
	}

	session, err := m.client.StartSession()
	if err != nil {
		return apperrors.Store("start session", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		if len(plan.Categories) > 0 {
			docs := make([]interface{}, len(plan.Categories))
			for i := range plan.Categories {
				docs[i] = plan.Categories[i]
			}
			if _, err := m.collection(categoriesCollection).InsertMany(sessCtx, docs); err != nil {
				return nil, err
			}
		}

		now := time.Now().UTC()
		for _, a := range plan.Assignments {
			// Only habits still lacking a category and owned by the plan's user
			// are touched; a null match covers both missing and null fields.
			filter := bson.M{
				"_id":         a.HabitID,
				"user_id":     plan.UserID,
				"category_id": nil,
			}
			update := bson.M{"$set": bson.M{"category_id": a.CategoryID, "updated_at": now}}
			if _, err := m.collection(habitsCollection).UpdateOne(sessCtx, filter, update); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return apperrors.Store("apply category backfill", err)
	}
	return nil
}

// FindJournalEntry finds the journal entry of userID for date.
func (m *MongoStorage) FindJournalEntry(ctx context.Context, userID, date string) (*models.JournalEntry, error) {
	entry := &models.JournalEntry{}
	err := m.collection(daysCollection).FindOne(ctx, bson.M{"_id": models.JournalKey(userID, date)}).Decode(entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperrors.NotFound("journal entry", date)
	}
	if err != nil {
		return nil, apperrors.Store("find journal entry", err)
	}
	return entry, nil
}

// UpsertJournalEntry creates or replaces the journal entry keyed by its user and date.
func (m *MongoStorage) UpsertJournalEntry(ctx context.Context, entry *models.JournalEntry) (*models.JournalEntry, error) {
	entry.ID = models.JournalKey(entry.UserID, entry.Date)
	opts := options.Replace().SetUpsert(true)
	if _, err := m.collection(daysCollection).ReplaceOne(ctx, bson.M{"_id": entry.ID}, entry, opts); err != nil {
		return nil, apperrors.Store("upsert journal entry", err)
	}
	return entry, nil
}

func isDuplicateKey(err error) bool {
	var writeException mongo.WriteException
	if errors.As(err, &writeException) {
		for _, writeError := range writeException.WriteErrors {
			if writeError.Code == 11000 {
				return true
			}
		}
	}
	return false
}
