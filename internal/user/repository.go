package user

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const usersCollection = "users"

type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (User, error)
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id primitive.ObjectID, email string, role Role) (bool, error)
	Delete(ctx context.Context, id primitive.ObjectID) (bool, error)
	CountByRole(ctx context.Context, role Role) (int64, error)
	Count(ctx context.Context) (int64, error)
}

type mongoRepository struct {
	coll *mongo.Collection
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{coll: db.Collection(usersCollection)}
}

// EnsureIndexes creates the unique email index. Safe to call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	return err
}

func (r *mongoRepository) Create(ctx context.Context, u User) (User, error) {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, u)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = id
	}
	return u, nil
}

func (r *mongoRepository) FindByEmail(ctx context.Context, email string) (User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *mongoRepository) FindByID(ctx context.Context, id primitive.ObjectID) (User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *mongoRepository) findOne(ctx context.Context, filter bson.M) (User, error) {
	var u User
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *mongoRepository) List(ctx context.Context) ([]User, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"password": 0})
	cur, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	users := make([]User, 0)
	for cur.Next(ctx) {
		var u User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *mongoRepository) Update(ctx context.Context, id primitive.ObjectID, email string, role Role) (bool, error) {
	set := bson.M{}
	if email != "" {
		set["email"] = email
	}
	if role != "" {
		set["role"] = role
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, ErrEmailTaken
		}
		return false, err
	}
	return res.MatchedCount > 0, nil
}

func (r *mongoRepository) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *mongoRepository) CountByRole(ctx context.Context, role Role) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"role": role})
}

func (r *mongoRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}
