package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	recentActivityLimit = 10
	reportActivityLimit = 50
	systemUser          = "System Automation"

	defaultOpTimeout       = 10 * time.Second
	defaultReconcileMinAge = 5 * time.Minute
)

type Service interface {
	Upload(ctx context.Context, input UploadInput) (Metadata, error)
	List(ctx context.Context) ([]Metadata, error)
	Preview(ctx context.Context, filename, category string) ([]Row, error)
	Download(ctx context.Context, filename, category string) (Download, error)
	Delete(ctx context.Context, filename, category string) error
	StorageSize(ctx context.Context) (string, error)
	AggregateStats(ctx context.Context, now time.Time) (Stats, error)
	RecentActivity(ctx context.Context) ([]Activity, error)
	ExportReport(ctx context.Context, now time.Time) (Report, error)
	Reconcile(ctx context.Context) (ReconcileResult, error)
	CityNames(ctx context.Context) ([]string, error)
	PerformanceMetrics(ctx context.Context) (PerformanceMetrics, error)
}

type UploadInput struct {
	Filename    string
	Category    string
	ContentType string
	Content     []byte
}

type Dependencies struct {
	Repo    Repository
	Events  EventPublisher
	Archive ReportArchive
	Logger  *zap.SugaredLogger

	// OpTimeout bounds every individual store call.
	OpTimeout time.Duration
	// ReconcileMinAge protects records younger than this from Reconcile so
	// that an upload in flight is never mistaken for an orphan.
	ReconcileMinAge time.Duration
	Now             func() time.Time
}

type service struct {
	repo      Repository
	events    EventPublisher
	archive   ReportArchive
	log       *zap.SugaredLogger
	opTimeout time.Duration
	minAge    time.Duration
	now       func() time.Time
}

func NewService(deps Dependencies) (Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("dataset repository is required")
	}

	s := &service{
		repo:      deps.Repo,
		events:    deps.Events,
		archive:   deps.Archive,
		log:       deps.Logger,
		opTimeout: deps.OpTimeout,
		minAge:    deps.ReconcileMinAge,
		now:       deps.Now,
	}
	if s.events == nil {
		s.events = noopPublisher{}
	}
	if s.log == nil {
		s.log = zap.NewNop().Sugar()
	}
	if s.opTimeout <= 0 {
		s.opTimeout = defaultOpTimeout
	}
	if s.minAge <= 0 {
		s.minAge = defaultReconcileMinAge
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *service) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *service) Upload(ctx context.Context, input UploadInput) (Metadata, error) {
	if err := ValidateFilename(input.Filename); err != nil {
		return Metadata{}, err
	}
	category, err := NormalizeCategory(input.Category)
	if err != nil {
		return Metadata{}, err
	}

	// Mongo keeps millisecond precision; truncating keeps the returned row
	// equal to what a later read yields.
	now := s.now().Truncate(time.Millisecond)

	blobCtx, cancelBlob := s.opContext(ctx)
	defer cancelBlob()
	blobID, err := s.repo.InsertBlob(blobCtx, category, Blob{
		Filename:    input.Filename,
		Data:        input.Content,
		ContentType: input.ContentType,
		Uploaded:    now,
	})
	if err != nil {
		return Metadata{}, upstream("insert blob", err)
	}

	metadata := Metadata{
		Name:     input.Filename,
		Category: category,
		Size:     FormatSizeMB(int64(len(input.Content))),
		Uploaded: now,
		Status:   StatusProcessed,
	}

	metaCtx, cancelMeta := s.opContext(ctx)
	defer cancelMeta()
	metaID, err := s.repo.InsertMetadata(metaCtx, metadata)
	if err != nil {
		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), s.opTimeout)
		defer cancelCleanup()
		if cleanupErr := s.repo.DeleteBlobByID(cleanupCtx, category, blobID); cleanupErr != nil {
			s.log.Errorw("compensating blob delete failed",
				"category", category, "filename", input.Filename, "blob_id", blobID.Hex(), "error", cleanupErr)
		}
		return Metadata{}, upstream("insert metadata", err)
	}
	metadata.ID = metaID

	s.record(ctx, Event{
		Type:      EventUploaded,
		Filename:  metadata.Name,
		Category:  category,
		Size:      metadata.Size,
		Timestamp: now,
	}, "Dataset uploaded")

	return metadata, nil
}

func (s *service) List(ctx context.Context) ([]Metadata, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	docs, err := s.repo.ListMetadata(ctx, 0)
	if err != nil {
		return nil, upstream("list metadata", err)
	}
	if docs == nil {
		docs = []Metadata{}
	}
	return docs, nil
}

func (s *service) Preview(ctx context.Context, filename, category string) ([]Row, error) {
	blob, err := s.findBlob(ctx, filename, category)
	if err != nil {
		return nil, err
	}
	return ParseCSV(bytes.NewReader(blob.Data), PreviewRows)
}

func (s *service) Download(ctx context.Context, filename, category string) (Download, error) {
	blob, err := s.findBlob(ctx, filename, category)
	if err != nil {
		return Download{}, err
	}
	return Download{
		Filename:    blob.Filename,
		ContentType: blob.ContentType,
		Content:     blob.Data,
	}, nil
}

func (s *service) findBlob(ctx context.Context, filename, category string) (Blob, error) {
	if err := ValidateFilename(filename); err != nil {
		return Blob{}, err
	}
	category, err := NormalizeCategory(category)
	if err != nil {
		return Blob{}, err
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	blob, err := s.repo.FindBlob(ctx, category, filename)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, upstream("find blob", err)
	}
	return blob, nil
}

// Delete removes the blob and its index row independently. It only reports
// ErrNotFound when neither existed.
func (s *service) Delete(ctx context.Context, filename, category string) error {
	if err := ValidateFilename(filename); err != nil {
		return err
	}
	category, err := NormalizeCategory(category)
	if err != nil {
		return err
	}

	blobCtx, cancelBlob := s.opContext(ctx)
	defer cancelBlob()
	blobDeleted, err := s.repo.DeleteBlob(blobCtx, category, filename)
	if err != nil {
		return upstream("delete blob", err)
	}

	metaCtx, cancelMeta := s.opContext(ctx)
	defer cancelMeta()
	metaDeleted, err := s.repo.DeleteMetadata(metaCtx, category, filename)
	if err != nil {
		return upstream("delete metadata", err)
	}

	if !blobDeleted && !metaDeleted {
		return ErrNotFound
	}
	if blobDeleted != metaDeleted {
		s.log.Warnw("dataset deleted with one side missing",
			"category", category, "filename", filename, "blob", blobDeleted, "metadata", metaDeleted)
	}

	s.record(ctx, Event{
		Type:      EventDeleted,
		Filename:  filename,
		Category:  category,
		Timestamp: s.now(),
	}, "Dataset deleted")

	return nil
}

func (s *service) StorageSize(ctx context.Context) (string, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return "", err
	}
	var total float64
	for _, doc := range docs {
		total += ParseSizeMB(doc.Size)
	}
	return FormatMB(total) + " MB", nil
}

func (s *service) AggregateStats(ctx context.Context, now time.Time) (Stats, error) {
	docs, err := s.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	records, err := s.totalRecords(ctx)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(docs, records, now), nil
}

// totalRecords counts blobs in every statistics bucket whose collection exists.
func (s *service) totalRecords(ctx context.Context) (int64, error) {
	var total int64
	for _, category := range StatsCategories {
		countCtx, cancel := s.opContext(ctx)
		count, exists, err := s.repo.CountBlobs(countCtx, category)
		cancel()
		if err != nil {
			return 0, upstream("count "+blobCollection(category), err)
		}
		if exists {
			total += count
		}
	}
	return total, nil
}

func (s *service) RecentActivity(ctx context.Context) ([]Activity, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	docs, err := s.repo.ListMetadata(ctx, recentActivityLimit)
	if err != nil {
		return nil, upstream("list metadata", err)
	}

	activity := make([]Activity, 0, len(docs))
	for _, doc := range docs {
		activity = append(activity, Activity{
			Action:  "Dataset uploaded",
			Details: fmt.Sprintf("%s (%s)", doc.Name, doc.Size),
			Time:    doc.Uploaded.Format(time.RFC3339),
			User:    systemUser,
		})
	}
	return activity, nil
}

func (s *service) CityNames(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	files, err := s.repo.DistinctFilenames(ctx, CitiesCategory)
	if err != nil {
		return nil, upstream("list cities", err)
	}

	seen := make(map[string]bool, len(files))
	cities := make([]string, 0, len(files))
	for _, file := range files {
		name := file
		if strings.HasSuffix(strings.ToLower(name), ".csv") {
			name = name[:len(name)-len(".csv")]
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		cities = append(cities, name)
	}
	sort.Strings(cities)
	return cities, nil
}

// record publishes the event and writes the activity row. Neither may fail
// the operation that triggered it.
func (s *service) record(ctx context.Context, event Event, action string) {
	ctx = context.WithoutCancel(ctx)

	pubCtx, cancelPub := s.opContext(ctx)
	defer cancelPub()
	if err := s.events.Publish(pubCtx, event); err != nil {
		s.log.Warnw("publish dataset event failed", "type", event.Type, "filename", event.Filename, "error", err)
	}

	details := fmt.Sprintf("%s (%s)", event.Filename, event.Category)
	if event.Size != "" {
		details = fmt.Sprintf("%s (%s, %s)", event.Filename, event.Category, event.Size)
	}

	logCtx, cancelLog := s.opContext(ctx)
	defer cancelLog()
	err := s.repo.InsertActivity(logCtx, ActivityLog{
		Action:    action,
		Details:   details,
		User:      systemUser,
		Timestamp: event.Timestamp,
	})
	if err != nil {
		s.log.Warnw("write activity log failed", "action", action, "filename", event.Filename, "error", err)
	}
}
