package dataset

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	InsertBlob(ctx context.Context, category string, blob Blob) (primitive.ObjectID, error)
	FindBlob(ctx context.Context, category, filename string) (Blob, error)
	DeleteBlob(ctx context.Context, category, filename string) (bool, error)
	DeleteBlobByID(ctx context.Context, category string, id primitive.ObjectID) error
	ListBlobRefs(ctx context.Context, category string) ([]BlobRef, error)
	CountBlobs(ctx context.Context, category string) (count int64, exists bool, err error)
	DistinctFilenames(ctx context.Context, category string) ([]string, error)

	InsertMetadata(ctx context.Context, metadata Metadata) (primitive.ObjectID, error)
	ListMetadata(ctx context.Context, limit int64) ([]Metadata, error)
	ListMetadataByCategory(ctx context.Context, category string) ([]Metadata, error)
	DeleteMetadata(ctx context.Context, category, name string) (bool, error)
	DeleteMetadataByID(ctx context.Context, id primitive.ObjectID) error

	InsertActivity(ctx context.Context, entry ActivityLog) error
	ListActivity(ctx context.Context, limit int64) ([]ActivityLog, error)

	SampleRead(ctx context.Context) error
	SampleWrite(ctx context.Context) error
	DropSamples(ctx context.Context) error
	ServerStatus(ctx context.Context) (ServerStatus, error)
}

type mongoRepository struct {
	db *mongo.Database
}

func NewRepository(db *mongo.Database) Repository {
	return &mongoRepository{db: db}
}

var newestFirst = bson.D{{Key: "uploaded", Value: -1}}

func (r *mongoRepository) blobs(category string) *mongo.Collection {
	return r.db.Collection(blobCollection(category))
}

func (r *mongoRepository) metadata() *mongo.Collection {
	return r.db.Collection(metadataCollection)
}

func (r *mongoRepository) InsertBlob(ctx context.Context, category string, blob Blob) (primitive.ObjectID, error) {
	if blob.Data == nil {
		blob.Data = []byte{}
	}
	res, err := r.blobs(category).InsertOne(ctx, blob)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res)
}

// FindBlob returns the newest blob with the given filename; re-uploads create
// sibling documents and the latest one wins.
func (r *mongoRepository) FindBlob(ctx context.Context, category, filename string) (Blob, error) {
	var blob Blob
	opts := options.FindOne().SetSort(newestFirst)
	err := r.blobs(category).FindOne(ctx, bson.M{"filename": filename}, opts).Decode(&blob)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, err
	}
	return blob, nil
}

func (r *mongoRepository) DeleteBlob(ctx context.Context, category, filename string) (bool, error) {
	opts := options.FindOneAndDelete().
		SetSort(newestFirst).
		SetProjection(bson.M{"_id": 1})
	err := r.blobs(category).FindOneAndDelete(ctx, bson.M{"filename": filename}, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *mongoRepository) DeleteBlobByID(ctx context.Context, category string, id primitive.ObjectID) error {
	res, err := r.blobs(category).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) ListBlobRefs(ctx context.Context, category string) ([]BlobRef, error) {
	opts := options.Find().SetProjection(bson.M{"fileData": 0})
	cur, err := r.blobs(category).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var refs []BlobRef
	if err := cur.All(ctx, &refs); err != nil {
		return nil, err
	}
	return refs, nil
}

func (r *mongoRepository) CountBlobs(ctx context.Context, category string) (int64, bool, error) {
	name := blobCollection(category)
	names, err := r.db.ListCollectionNames(ctx, bson.M{"name": name})
	if err != nil {
		return 0, false, err
	}
	if len(names) == 0 {
		return 0, false, nil
	}
	count, err := r.db.Collection(name).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, true, err
	}
	return count, true, nil
}

func (r *mongoRepository) DistinctFilenames(ctx context.Context, category string) ([]string, error) {
	values, err := r.blobs(category).Distinct(ctx, "filename", bson.M{})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}

func (r *mongoRepository) InsertMetadata(ctx context.Context, metadata Metadata) (primitive.ObjectID, error) {
	res, err := r.metadata().InsertOne(ctx, metadata)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return insertedID(res)
}

func (r *mongoRepository) ListMetadata(ctx context.Context, limit int64) ([]Metadata, error) {
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return r.findMetadata(ctx, bson.M{}, opts)
}

func (r *mongoRepository) ListMetadataByCategory(ctx context.Context, category string) ([]Metadata, error) {
	return r.findMetadata(ctx, bson.M{"category": category}, options.Find())
}

// DeleteMetadata removes the newest index row for name within category.
func (r *mongoRepository) DeleteMetadata(ctx context.Context, category, name string) (bool, error) {
	opts := options.FindOneAndDelete().
		SetSort(newestFirst).
		SetProjection(bson.M{"_id": 1})
	err := r.metadata().FindOneAndDelete(ctx, bson.M{"name": name, "category": category}, opts).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *mongoRepository) DeleteMetadataByID(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.metadata().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoRepository) InsertActivity(ctx context.Context, entry ActivityLog) error {
	_, err := r.db.Collection(activityCollection).InsertOne(ctx, entry)
	return err
}

func (r *mongoRepository) ListActivity(ctx context.Context, limit int64) ([]ActivityLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.db.Collection(activityCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var entries []ActivityLog
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *mongoRepository) findMetadata(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Metadata, error) {
	cur, err := r.metadata().Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	docs := make([]Metadata, 0)
	for cur.Next(ctx) {
		var doc Metadata
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	if err := cur.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

// SampleRead fetches one metadata row; an empty index is not an error.
func (r *mongoRepository) SampleRead(ctx context.Context) error {
	err := r.metadata().FindOne(ctx, bson.M{}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return err
}

func (r *mongoRepository) SampleWrite(ctx context.Context) error {
	_, err := r.db.Collection(sampleCollection).InsertOne(ctx, bson.M{"at": time.Now()})
	return err
}

func (r *mongoRepository) DropSamples(ctx context.Context) error {
	return r.db.Collection(sampleCollection).Drop(ctx)
}

func (r *mongoRepository) ServerStatus(ctx context.Context) (ServerStatus, error) {
	var doc struct {
		Uptime     float64 `bson:"uptime"`
		WiredTiger struct {
			Cache map[string]interface{} `bson:"cache"`
		} `bson:"wiredTiger"`
	}
	cmd := bson.D{{Key: "serverStatus", Value: 1}}
	if err := r.db.Client().Database("admin").RunCommand(ctx, cmd).Decode(&doc); err != nil {
		return ServerStatus{}, err
	}
	return ServerStatus{
		Uptime:              time.Duration(doc.Uptime * float64(time.Second)),
		CachePagesRequested: asInt64(doc.WiredTiger.Cache["pages requested from the cache"]),
		CachePagesRead:      asInt64(doc.WiredTiger.Cache["pages read into cache"]),
	}, nil
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

func insertedID(res *mongo.InsertOneResult) (primitive.ObjectID, error) {
	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return primitive.NilObjectID, errors.New("unexpected insert id type")
	}
	return id, nil
}
