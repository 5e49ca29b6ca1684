package profile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/8w6s/profile-api/internal/document"
)

func TestNewStoreRequiresRecord(t *testing.T) {
	if _, err := NewStore(StoreConfig{}); err == nil {
		t.Fatalf("expected error for missing record")
	}
}

func TestGetReturnsNotFoundBeforeFirstReplace(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetAfterReplaceReturnsReconciledDocument(t *testing.T) {
	store := newTestStore(t)
	submitted := DefaultDocument()
	submitted.Name = "replaced"
	submitted.Posts = []Post{{ID: "post-1", Title: "hello", Views: 50, Likes: 2}}

	reconciled, err := store.Replace(context.Background(), submitted)
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if reconciled.Posts[0].Views != 0 {
		t.Fatalf("new post views should be zeroed, got %d", reconciled.Posts[0].Views)
	}

	got, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "replaced" {
		t.Fatalf("expected persisted name, got %q", got.Name)
	}
	if got.Posts[0].Views != reconciled.Posts[0].Views || got.Posts[0].Likes != reconciled.Posts[0].Likes {
		t.Fatalf("get must round-trip the reconciled result, got %+v want %+v", got.Posts[0], reconciled.Posts[0])
	}
}

func TestReplacePreservesCountersAgainstStaleAdminPayload(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")

	for i := 0; i < 3; i++ {
		fp := NewFingerprint(fmt.Sprintf("10.0.0.%d", i))
		if _, err := store.IncrementPostView(context.Background(), "post-1", fp); err != nil {
			t.Fatalf("view failed: %v", err)
		}
	}

	stale := DefaultDocument()
	stale.Posts = []Post{{ID: "post-1", Title: "stale edit", Views: 0}}
	reconciled, err := store.Replace(context.Background(), stale)
	if err != nil {
		t.Fatalf("replace failed: %v", err)
	}
	if reconciled.Posts[0].Views != 3 {
		t.Fatalf("replace must not clobber views, got %d", reconciled.Posts[0].Views)
	}
	if reconciled.Posts[0].Title != "stale edit" {
		t.Fatalf("client-owned title should win, got %q", reconciled.Posts[0].Title)
	}
}

func TestReplaceRejectsInvalidDocument(t *testing.T) {
	store := newTestStore(t)
	invalid := DefaultDocument()
	invalid.Posts = []Post{{ID: "dup"}, {ID: "dup"}}

	if _, err := store.Replace(context.Background(), invalid); !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestIncrementPostViewDeduplicatesByFingerprint(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")
	fp := NewFingerprint("1.2.3.4")

	first, err := store.IncrementPostView(context.Background(), "post-1", fp)
	if err != nil {
		t.Fatalf("first view failed: %v", err)
	}
	if first.Views != 1 || first.AlreadyCounted {
		t.Fatalf("first view should count once, got %+v", first)
	}

	second, err := store.IncrementPostView(context.Background(), "post-1", fp)
	if err != nil {
		t.Fatalf("second view failed: %v", err)
	}
	if !second.AlreadyCounted {
		t.Fatalf("repeat view must report AlreadyCounted, got %+v", second)
	}
	if second.Views != 1 {
		t.Fatalf("repeat view must not change the count, got %d", second.Views)
	}

	doc, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Posts[0].Views != 1 {
		t.Fatalf("persisted views must stay at 1, got %d", doc.Posts[0].Views)
	}
}

func TestIncrementPostViewUnknownPost(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")

	if _, err := store.IncrementPostView(context.Background(), "missing", NewFingerprint("1.2.3.4")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementSiteViewDeduplicatesByFingerprint(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")
	fp := NewFingerprint("8.8.8.8")

	first, err := store.IncrementSiteView(context.Background(), fp)
	if err != nil {
		t.Fatalf("first site view failed: %v", err)
	}
	if first.Views != 1 {
		t.Fatalf("expected site views 1, got %d", first.Views)
	}
	second, err := store.IncrementSiteView(context.Background(), fp)
	if err != nil {
		t.Fatalf("second site view failed: %v", err)
	}
	if !second.AlreadyCounted || second.Views != 1 {
		t.Fatalf("repeat site view must be a counted no-op, got %+v", second)
	}
}

func TestToggleLikeTogglesNotAccumulates(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")
	fp := NewFingerprint("5.6.7.8")

	wantLikes := []int{1, 0, 1}
	wantLiked := []bool{true, false, true}
	for i := range wantLikes {
		result, err := store.ToggleLike(context.Background(), "post-1", fp)
		if err != nil {
			t.Fatalf("toggle %d failed: %v", i, err)
		}
		if result.Likes != wantLikes[i] || result.Liked != wantLiked[i] {
			t.Fatalf("toggle %d: got likes=%d liked=%t, want likes=%d liked=%t",
				i, result.Likes, result.Liked, wantLikes[i], wantLiked[i])
		}
	}
}

func TestToggleLikeFloorsAtZero(t *testing.T) {
	store := newTestStore(t)
	doc := DefaultDocument()
	// Admin-set like count of zero with a lingering fingerprint: the
	// decrement path must not go negative.
	doc.Posts = []Post{{ID: "post-1", Likes: 0, LikedIPs: nil}}
	if _, err := store.Replace(context.Background(), doc); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	fp := NewFingerprint("4.4.4.4")
	if _, err := store.ToggleLike(context.Background(), "post-1", fp); err != nil {
		t.Fatalf("first toggle failed: %v", err)
	}

	// Stale admin save resets the count but keeps the fingerprint.
	stale, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	stale.Posts[0].Likes = 0
	if _, err := store.Replace(context.Background(), stale); err != nil {
		t.Fatalf("stale replace failed: %v", err)
	}

	result, err := store.ToggleLike(context.Background(), "post-1", fp)
	if err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if result.Liked {
		t.Fatalf("fingerprint was present, expected unlike")
	}
	if result.Likes != 0 {
		t.Fatalf("likes must floor at zero, got %d", result.Likes)
	}
}

func TestToggleLikeUnknownPost(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")
	if _, err := store.ToggleLike(context.Background(), "missing", NewFingerprint("1.2.3.4")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementDownloadIsMonotonicWithoutDedup(t *testing.T) {
	store := newTestStore(t)
	doc := DefaultDocument()
	doc.Files = []File{{ID: "file-1", Name: "release.zip", URL: "https://example.com/release.zip"}}
	if _, err := store.Replace(context.Background(), doc); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		file, err := store.IncrementDownload(context.Background(), "file-1")
		if err != nil {
			t.Fatalf("download %d failed: %v", i, err)
		}
		if file.DownloadCount != i {
			t.Fatalf("download %d: expected count %d, got %d", i, i, file.DownloadCount)
		}
	}
}

func TestIncrementDownloadUnknownFile(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")
	if _, err := store.IncrementDownload(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentToggleLikesLoseNoUpdates(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")

	const viewers = 32
	var wg sync.WaitGroup
	errs := make(chan error, viewers)
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(viewer int) {
			defer wg.Done()
			fp := NewFingerprint(fmt.Sprintf("10.1.%d.%d", viewer/256, viewer%256))
			if _, err := store.ToggleLike(context.Background(), "post-1", fp); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("toggle failed: %v", err)
	}

	doc, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Posts[0].Likes != viewers {
		t.Fatalf("lost updates: expected %d likes, got %d", viewers, doc.Posts[0].Likes)
	}
	if len(doc.Posts[0].LikedIPs) != viewers {
		t.Fatalf("expected %d fingerprints, got %d", viewers, len(doc.Posts[0].LikedIPs))
	}
}

func TestConcurrentViewsAndReplaceKeepCountersConsistent(t *testing.T) {
	store := newTestStore(t)
	seedPost(t, store, "post-1")

	const viewers = 16
	var wg sync.WaitGroup
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func(viewer int) {
			defer wg.Done()
			fp := NewFingerprint(fmt.Sprintf("10.2.0.%d", viewer))
			store.IncrementPostView(context.Background(), "post-1", fp) //nolint:errcheck
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		stale := DefaultDocument()
		stale.Posts = []Post{{ID: "post-1", Title: "racing edit"}}
		store.Replace(context.Background(), stale) //nolint:errcheck
	}()
	wg.Wait()

	doc, err := store.Get(context.Background())
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Posts[0].Views != len(doc.Posts[0].ViewedIPs) {
		t.Fatalf("views %d out of sync with fingerprints %d", doc.Posts[0].Views, len(doc.Posts[0].ViewedIPs))
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	record, err := document.NewFile(document.FileConfig{
		Path: filepath.Join(t.TempDir(), "profile.json"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	store, err := NewStore(StoreConfig{Record: record})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return store
}

func seedPost(t *testing.T, store *Store, postID string) {
	t.Helper()
	doc := DefaultDocument()
	doc.Posts = []Post{{ID: postID, Title: "seed", Date: "2025-01-01"}}
	if _, err := store.Replace(context.Background(), doc); err != nil {
		t.Fatalf("seed replace failed: %v", err)
	}
}
