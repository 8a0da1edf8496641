package dataset

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeRepo struct {
	mu       sync.Mutex
	blobs    map[string][]Blob
	meta     []Metadata
	activity []ActivityLog

	insertBlobErr     error
	insertMetadataErr error
	listErr           error

	reads, writes, drops int
	sampleWriteErr       error
	status               ServerStatus
	statusErr            error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{blobs: make(map[string][]Blob)}
}

func (f *fakeRepo) InsertBlob(_ context.Context, category string, blob Blob) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertBlobErr != nil {
		return primitive.NilObjectID, f.insertBlobErr
	}
	if blob.ID.IsZero() {
		blob.ID = primitive.NewObjectID()
	}
	f.blobs[category] = append(f.blobs[category], blob)
	return blob.ID, nil
}

func (f *fakeRepo) newestBlob(category, filename string) int {
	idx := -1
	for i, b := range f.blobs[category] {
		if b.Filename != filename {
			continue
		}
		if idx == -1 || !b.Uploaded.Before(f.blobs[category][idx].Uploaded) {
			idx = i
		}
	}
	return idx
}

func (f *fakeRepo) FindBlob(_ context.Context, category, filename string) (Blob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.newestBlob(category, filename)
	if idx == -1 {
		return Blob{}, ErrNotFound
	}
	return f.blobs[category][idx], nil
}

func (f *fakeRepo) DeleteBlob(_ context.Context, category, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.newestBlob(category, filename)
	if idx == -1 {
		return false, nil
	}
	f.blobs[category] = append(f.blobs[category][:idx], f.blobs[category][idx+1:]...)
	return true, nil
}

func (f *fakeRepo) DeleteBlobByID(_ context.Context, category string, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, b := range f.blobs[category] {
		if b.ID == id {
			f.blobs[category] = append(f.blobs[category][:i], f.blobs[category][i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) ListBlobRefs(_ context.Context, category string) ([]BlobRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]BlobRef, 0, len(f.blobs[category]))
	for _, b := range f.blobs[category] {
		refs = append(refs, BlobRef{ID: b.ID, Filename: b.Filename, Uploaded: b.Uploaded})
	}
	return refs, nil
}

func (f *fakeRepo) CountBlobs(_ context.Context, category string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	blobs, ok := f.blobs[category]
	if !ok {
		return 0, false, nil
	}
	return int64(len(blobs)), true, nil
}

func (f *fakeRepo) DistinctFilenames(_ context.Context, category string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var names []string
	for _, b := range f.blobs[category] {
		if !seen[b.Filename] {
			seen[b.Filename] = true
			names = append(names, b.Filename)
		}
	}
	return names, nil
}

func (f *fakeRepo) InsertMetadata(_ context.Context, metadata Metadata) (primitive.ObjectID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertMetadataErr != nil {
		return primitive.NilObjectID, f.insertMetadataErr
	}
	if metadata.ID.IsZero() {
		metadata.ID = primitive.NewObjectID()
	}
	f.meta = append(f.meta, metadata)
	return metadata.ID, nil
}

func (f *fakeRepo) ListMetadata(_ context.Context, limit int64) ([]Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	docs := append([]Metadata(nil), f.meta...)
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Uploaded.After(docs[j].Uploaded)
	})
	if limit > 0 && int64(len(docs)) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (f *fakeRepo) ListMetadataByCategory(_ context.Context, category string) ([]Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var docs []Metadata
	for _, m := range f.meta {
		if m.Category == category {
			docs = append(docs, m)
		}
	}
	return docs, nil
}

func (f *fakeRepo) DeleteMetadata(_ context.Context, category, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, m := range f.meta {
		if m.Name != name || m.Category != category {
			continue
		}
		if idx == -1 || !m.Uploaded.Before(f.meta[idx].Uploaded) {
			idx = i
		}
	}
	if idx == -1 {
		return false, nil
	}
	f.meta = append(f.meta[:idx], f.meta[idx+1:]...)
	return true, nil
}

func (f *fakeRepo) DeleteMetadataByID(_ context.Context, id primitive.ObjectID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, m := range f.meta {
		if m.ID == id {
			f.meta = append(f.meta[:i], f.meta[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeRepo) InsertActivity(_ context.Context, entry ActivityLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activity = append(f.activity, entry)
	return nil
}

func (f *fakeRepo) ListActivity(_ context.Context, limit int64) ([]ActivityLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	logs := append([]ActivityLog(nil), f.activity...)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})
	if limit > 0 && int64(len(logs)) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (f *fakeRepo) SampleRead(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return nil
}

func (f *fakeRepo) SampleWrite(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sampleWriteErr != nil {
		return f.sampleWriteErr
	}
	f.writes++
	return nil
}

func (f *fakeRepo) DropSamples(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops++
	return nil
}

func (f *fakeRepo) ServerStatus(context.Context) (ServerStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeRepo) blobCount(category string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.blobs[category])
}

func (f *fakeRepo) metadataCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.meta)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *fakePublisher) Publish(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeArchive struct {
	saved [][]byte
	err   error
}

func (a *fakeArchive) Save(_ context.Context, _ string, data []byte) (string, string, error) {
	if a.err != nil {
		return "", "", a.err
	}
	a.saved = append(a.saved, data)
	return "reports/test.csv", hashSHA256(data), nil
}

func (a *fakeArchive) Bucket() string { return "test-bucket" }

// fakeClock advances one second per reading so successive writes are ordered.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

var errBoom = errors.New("boom")

func newTestService(repo Repository, opts ...func(*Dependencies)) Service {
	deps := Dependencies{Repo: repo, Now: newFakeClock().Now}
	for _, opt := range opts {
		opt(&deps)
	}
	svc, err := NewService(deps)
	if err != nil {
		panic(err)
	}
	return svc
}
