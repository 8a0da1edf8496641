package forecast

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const modelSpecsCollection = "model_specs"

// ModelSpecs reads the documents the training scripts write after a run.
type ModelSpecs interface {
	FindByCity(ctx context.Context, city string) (bson.M, error)
}

type mongoModelSpecs struct {
	collection *mongo.Collection
}

func NewModelSpecs(db *mongo.Database) ModelSpecs {
	return &mongoModelSpecs{collection: db.Collection(modelSpecsCollection)}
}

func (m *mongoModelSpecs) FindByCity(ctx context.Context, city string) (bson.M, error) {
	var doc bson.M
	if err := m.collection.FindOne(ctx, bson.M{"city": city}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}
