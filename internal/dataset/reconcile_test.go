package dataset

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestReconcileRemovesOrphans(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	old := now.Add(-time.Hour)
	fresh := now.Add(-time.Minute)
	ctx := context.Background()

	seedBlob := func(category, name string, at time.Time) primitive.ObjectID {
		id, err := repo.InsertBlob(ctx, category, Blob{Filename: name, Uploaded: at})
		if err != nil {
			t.Fatalf("seed blob: %v", err)
		}
		return id
	}
	seedMeta := func(category, name string, at time.Time) {
		if _, err := repo.InsertMetadata(ctx, Metadata{Name: name, Category: category, Uploaded: at}); err != nil {
			t.Fatalf("seed metadata: %v", err)
		}
	}

	seedBlob("trainingdata", "paired.csv", old)
	seedMeta("trainingdata", "paired.csv", old)

	seedMeta("trainingdata", "lost-blob.csv", old)
	seedBlob("testingdata", "lost-meta.csv", old)

	seedMeta("validationdata", "in-flight.csv", fresh)
	seedBlob("historicaldata", "in-flight.csv", fresh)

	// A name that exists in another category does not count as a match.
	seedBlob("cities", "paired.csv", old)

	svc, err := NewService(Dependencies{
		Repo:            repo,
		ReconcileMinAge: 5 * time.Minute,
		Now:             func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.OrphanMetadata != 1 || result.OrphanBlobs != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	if repo.blobCount("trainingdata") != 1 {
		t.Fatalf("paired blob must survive")
	}
	if repo.blobCount("testingdata") != 0 || repo.blobCount("cities") != 0 {
		t.Fatalf("orphan blobs must be removed")
	}
	if repo.blobCount("historicaldata") != 1 {
		t.Fatalf("fresh blob must survive")
	}

	names := map[string]bool{}
	for _, m := range repo.meta {
		names[m.Category+"/"+m.Name] = true
	}
	if !names["trainingdata/paired.csv"] || !names["validationdata/in-flight.csv"] || names["trainingdata/lost-blob.csv"] {
		t.Fatalf("unexpected metadata after reconcile: %v", names)
	}

	again, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.OrphanMetadata != 0 || again.OrphanBlobs != 0 {
		t.Fatalf("second pass should be a no-op, got %+v", again)
	}
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	svc := newTestService(newFakeRepo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Reconcile(ctx); err == nil {
		t.Fatalf("expected context error")
	}
}

func TestReconcileRemovesOrphanSiblings(t *testing.T) {
	repo := newFakeRepo()
	now := time.Date(2025, time.March, 15, 12, 0, 0, 0, time.UTC)
	indexed := now.Add(-time.Hour)
	ctx := context.Background()

	if _, err := repo.InsertBlob(ctx, "trainingdata", Blob{Filename: "dup.csv", Data: []byte("x,y\n1,1\n"), Uploaded: indexed}); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	if _, err := repo.InsertMetadata(ctx, Metadata{Name: "dup.csv", Category: "trainingdata", Uploaded: indexed}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	// A re-upload whose metadata never landed, newer than the indexed copy.
	if _, err := repo.InsertBlob(ctx, "trainingdata", Blob{Filename: "dup.csv", Data: []byte("x,y\n9,9\n"), Uploaded: now.Add(-30 * time.Minute)}); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	// A sibling still inside the grace period stays.
	if _, err := repo.InsertBlob(ctx, "trainingdata", Blob{Filename: "dup.csv", Data: []byte("x,y\n5,5\n"), Uploaded: now.Add(-time.Minute)}); err != nil {
		t.Fatalf("seed blob: %v", err)
	}

	// Two index rows but only one blob for twice.csv: the row without a
	// matching upload time goes.
	if _, err := repo.InsertBlob(ctx, "cities", Blob{Filename: "twice.csv", Uploaded: indexed}); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	if _, err := repo.InsertMetadata(ctx, Metadata{Name: "twice.csv", Category: "cities", Uploaded: indexed}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	strayID, err := repo.InsertMetadata(ctx, Metadata{Name: "twice.csv", Category: "cities", Uploaded: now.Add(-20 * time.Minute)})
	if err != nil {
		t.Fatalf("seed metadata: %v", err)
	}

	svc, err := NewService(Dependencies{
		Repo:            repo,
		ReconcileMinAge: 5 * time.Minute,
		Now:             func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	result, err := svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.OrphanBlobs != 1 || result.OrphanMetadata != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if repo.blobCount("trainingdata") != 2 || repo.blobCount("cities") != 1 {
		t.Fatalf("unexpected blob counts: trainingdata=%d cities=%d", repo.blobCount("trainingdata"), repo.blobCount("cities"))
	}
	for _, m := range repo.meta {
		if m.ID == strayID {
			t.Fatalf("stray metadata row survived")
		}
	}
	for _, b := range repo.blobs["trainingdata"] {
		if string(b.Data) == "x,y\n9,9\n" {
			t.Fatalf("orphan sibling blob survived")
		}
	}

	// Once the fresh sibling ages out it is an orphan too, and reads fall
	// back to the indexed upload.
	now = now.Add(time.Hour)
	if _, err := repo.InsertMetadata(ctx, Metadata{Name: "keep.csv", Category: "cities", Uploaded: indexed}); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	result, err = svc.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if result.OrphanBlobs != 1 || result.OrphanMetadata != 1 {
		t.Fatalf("unexpected second result %+v", result)
	}

	rows, err := svc.Preview(ctx, "dup.csv", "trainingdata")
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if x, _ := rows[0].Get("x"); x != "1" {
		t.Fatalf("preview served %q, want the indexed upload", x)
	}
}

func TestUnpairedMatchesClosestUploadTime(t *testing.T) {
	base := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	docs := []Metadata{
		{Name: "a.csv", Uploaded: base.Add(2 * time.Hour)},
		{Name: "a.csv", Uploaded: base},
	}
	refs := []BlobRef{
		{Filename: "a.csv", Uploaded: base},
		{Filename: "a.csv", Uploaded: base.Add(time.Hour)},
		{Filename: "a.csv", Uploaded: base.Add(2 * time.Hour)},
		{Filename: "b.csv", Uploaded: base},
	}

	orphanDocs, orphanRefs := unpaired(docs, refs)
	if len(orphanDocs) != 0 {
		t.Fatalf("expected every metadata row paired, got %+v", orphanDocs)
	}
	if len(orphanRefs) != 2 {
		t.Fatalf("expected two orphan blobs, got %+v", orphanRefs)
	}
	if !orphanRefs[0].Uploaded.Equal(base.Add(time.Hour)) || orphanRefs[1].Filename != "b.csv" {
		t.Fatalf("unexpected orphans %+v", orphanRefs)
	}
}
