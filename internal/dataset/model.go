package dataset

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	metadataCollection   = "dataset_metadata"
	activityCollection   = "activity_logs"
	sampleCollection     = "temp_write_metrics"
	blobCollectionPrefix = "data_"

	// StatusProcessed is the only status a metadata row ever carries.
	StatusProcessed = "Processed"
)

// Blob is one uploaded file, stored in the data_<category> collection.
type Blob struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Filename    string             `bson:"filename" json:"filename"`
	Data        []byte             `bson:"fileData" json:"-"`
	ContentType string             `bson:"contentType" json:"contentType"`
	Uploaded    time.Time          `bson:"uploaded" json:"uploaded"`
}

// BlobRef is a blob without its payload.
type BlobRef struct {
	ID       primitive.ObjectID `bson:"_id"`
	Filename string             `bson:"filename"`
	Uploaded time.Time          `bson:"uploaded"`
}

// Metadata is the flat index row describing a blob, shared across categories.
type Metadata struct {
	ID       primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name     string             `bson:"name" json:"name"`
	Category string             `bson:"category" json:"category"`
	Size     string             `bson:"size" json:"size"`
	Uploaded time.Time          `bson:"uploaded" json:"uploaded"`
	Status   string             `bson:"status" json:"status"`
}

type ActivityLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	Action    string             `bson:"action" json:"action"`
	Details   string             `bson:"details" json:"details"`
	User      string             `bson:"user" json:"user"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Activity is the dashboard view of a recent upload.
type Activity struct {
	Action  string `json:"action"`
	Details string `json:"details"`
	Time    string `json:"time"`
	User    string `json:"user"`
}

type CategoryShare struct {
	Category   string `json:"category"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

type Stats struct {
	TotalDatasets  int             `json:"totalDatasets"`
	TotalSizeMB    string          `json:"totalSizeMB"`
	ThisMonthCount int             `json:"thisMonthCount"`
	ThisMonthSize  string          `json:"thisMonthSize"`
	TotalRecords   int64           `json:"totalRecords"`
	Distribution   []CategoryShare `json:"distribution"`
}

type Download struct {
	Filename    string
	ContentType string
	Content     []byte
}

type Report struct {
	Filename  string
	Content   []byte
	ObjectKey string
}

type ReconcileResult struct {
	OrphanMetadata int `json:"orphanMetadata"`
	OrphanBlobs    int `json:"orphanBlobs"`
}

func blobCollection(category string) string {
	return blobCollectionPrefix + category
}

// ServerStatus is the part of the database serverStatus report the dashboard uses.
type ServerStatus struct {
	Uptime              time.Duration
	CachePagesRequested int64
	CachePagesRead      int64
}

type PerformanceMetrics struct {
	ReadTime     string `json:"readTime"`
	WriteTime    string `json:"writeTime"`
	Uptime       string `json:"uptime"`
	CacheHitRate string `json:"cacheHitRate"`
}
