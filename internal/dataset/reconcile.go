package dataset

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Reconcile repairs the damage left by partial dual writes. Within a category,
// metadata rows and blobs of the same name are paired by upload time; whatever
// stays unpaired on either side is an orphan and is removed. Records newer
// than the configured minimum age are left alone.
func (s *service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	cutoff := s.now().Add(-s.minAge)

	for _, category := range AllowedCategories() {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		refsCtx, cancel := s.opContext(ctx)
		refs, err := s.repo.ListBlobRefs(refsCtx, category)
		cancel()
		if err != nil {
			return result, upstream("list "+blobCollection(category), err)
		}

		metaCtx, cancel := s.opContext(ctx)
		docs, err := s.repo.ListMetadataByCategory(metaCtx, category)
		cancel()
		if err != nil {
			return result, upstream("list metadata", err)
		}

		orphanDocs, orphanRefs := unpaired(docs, refs)

		for _, doc := range orphanDocs {
			if !doc.Uploaded.Before(cutoff) {
				continue
			}
			delCtx, cancel := s.opContext(ctx)
			err := s.repo.DeleteMetadataByID(delCtx, doc.ID)
			cancel()
			if err != nil && !errors.Is(err, ErrNotFound) {
				return result, upstream("delete metadata", err)
			}
			if err == nil {
				result.OrphanMetadata++
				s.log.Infow("removed orphan metadata", "category", category, "name", doc.Name, "id", doc.ID.Hex())
			}
		}

		for _, ref := range orphanRefs {
			if !ref.Uploaded.Before(cutoff) {
				continue
			}
			delCtx, cancel := s.opContext(ctx)
			err := s.repo.DeleteBlobByID(delCtx, category, ref.ID)
			cancel()
			if err != nil && !errors.Is(err, ErrNotFound) {
				return result, upstream("delete blob", err)
			}
			if err == nil {
				result.OrphanBlobs++
				s.log.Infow("removed orphan blob", "category", category, "filename", ref.Filename, "id", ref.ID.Hex())
			}
		}
	}

	return result, nil
}

// unpaired matches every metadata row to the blob of the same name with the
// closest upload time, one to one, and returns the rows left on each side.
// Upload stamps both halves with the same instant, so a healthy pair has a
// zero gap.
func unpaired(docs []Metadata, refs []BlobRef) ([]Metadata, []BlobRef) {
	docsByName := make(map[string][]int)
	for i, doc := range docs {
		docsByName[doc.Name] = append(docsByName[doc.Name], i)
	}
	refsByName := make(map[string][]int)
	for i, ref := range refs {
		refsByName[ref.Filename] = append(refsByName[ref.Filename], i)
	}

	pairedDoc := make([]bool, len(docs))
	pairedRef := make([]bool, len(refs))

	type candidate struct {
		doc, ref int
		gap      time.Duration
	}
	for name, docIdx := range docsByName {
		refIdx := refsByName[name]
		if len(refIdx) == 0 {
			continue
		}
		candidates := make([]candidate, 0, len(docIdx)*len(refIdx))
		for _, d := range docIdx {
			for _, r := range refIdx {
				gap := docs[d].Uploaded.Sub(refs[r].Uploaded)
				if gap < 0 {
					gap = -gap
				}
				candidates = append(candidates, candidate{doc: d, ref: r, gap: gap})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].gap < candidates[j].gap
		})
		for _, c := range candidates {
			if pairedDoc[c.doc] || pairedRef[c.ref] {
				continue
			}
			pairedDoc[c.doc] = true
			pairedRef[c.ref] = true
		}
	}

	var orphanDocs []Metadata
	for i, doc := range docs {
		if !pairedDoc[i] {
			orphanDocs = append(orphanDocs, doc)
		}
	}
	var orphanRefs []BlobRef
	for i, ref := range refs {
		if !pairedRef[i] {
			orphanRefs = append(orphanRefs, ref)
		}
	}
	return orphanDocs, orphanRefs
}
