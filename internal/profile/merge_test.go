package profile

import (
	"encoding/json"
	"testing"
)

func TestReconcilePreservesPostViewCounters(t *testing.T) {
	old := Document{
		Posts: []Post{{
			ID:        "post-1",
			Title:     "persisted title",
			Views:     42,
			ViewedIPs: []string{"1.2.3.4", "5.6.7.8"},
			Likes:     10,
			LikedIPs:  []string{"1.2.3.4"},
		}},
	}
	submitted := Document{
		Posts: []Post{{
			ID:        "post-1",
			Title:     "edited title",
			Views:     0,
			ViewedIPs: nil,
			Likes:     99,
			LikedIPs:  []string{"9.9.9.9"},
		}},
	}

	reconciled := Reconcile(old, submitted)

	post := reconciled.Posts[0]
	if post.Title != "edited title" {
		t.Fatalf("client-owned title should win, got %q", post.Title)
	}
	if post.Views != 42 {
		t.Fatalf("views must survive replace, got %d", post.Views)
	}
	if len(post.ViewedIPs) != 2 {
		t.Fatalf("viewedIps must survive replace, got %v", post.ViewedIPs)
	}
	if post.Likes != 99 {
		t.Fatalf("likes are admin-editable on replace, got %d", post.Likes)
	}
	if len(post.LikedIPs) != 1 || post.LikedIPs[0] != "9.9.9.9" {
		t.Fatalf("likedIps follow the submitted payload, got %v", post.LikedIPs)
	}
}

func TestReconcileZeroesCountersForNewPosts(t *testing.T) {
	old := Document{
		Posts: []Post{{ID: "post-1", Views: 7}},
	}
	submitted := Document{
		Posts: []Post{
			{ID: "post-1", Views: 1},
			{ID: "post-2", Views: 33, ViewedIPs: []string{"1.1.1.1"}, Likes: 5, LikedIPs: []string{"1.1.1.1"}},
		},
	}

	reconciled := Reconcile(old, submitted)

	if reconciled.Posts[0].Views != 7 {
		t.Fatalf("matched post should keep persisted views, got %d", reconciled.Posts[0].Views)
	}
	fresh := reconciled.Posts[1]
	if fresh.Views != 0 || len(fresh.ViewedIPs) != 0 {
		t.Fatalf("new post views must start at zero, got %d %v", fresh.Views, fresh.ViewedIPs)
	}
	if fresh.Likes != 0 || len(fresh.LikedIPs) != 0 {
		t.Fatalf("new post likes must start at zero, got %d %v", fresh.Likes, fresh.LikedIPs)
	}
}

func TestReconcilePreservesSiteStatsVerbatim(t *testing.T) {
	old := Document{
		Stats: SiteStats{Views: 1200, ViewedIPs: []string{"1.2.3.4"}, Posts: 3},
	}
	submitted := Document{
		Stats: SiteStats{Views: 0, ViewedIPs: nil},
	}

	reconciled := Reconcile(old, submitted)

	if reconciled.Stats.Views != 1200 {
		t.Fatalf("site views must never be overwritable by replace, got %d", reconciled.Stats.Views)
	}
	if len(reconciled.Stats.ViewedIPs) != 1 {
		t.Fatalf("site viewedIps must survive, got %v", reconciled.Stats.ViewedIPs)
	}
	if reconciled.Stats.Posts != 3 {
		t.Fatalf("stats are preserved as a block, got %+v", reconciled.Stats)
	}
}

func TestReconcilePreservesDownloadCountsByFileID(t *testing.T) {
	old := Document{
		Files: []File{{ID: "file-1", Name: "old.zip", DownloadCount: 15}},
	}
	submitted := Document{
		Files: []File{
			{ID: "file-1", Name: "renamed.zip", DownloadCount: 0},
			{ID: "file-2", Name: "fresh.zip", DownloadCount: 77},
		},
	}

	reconciled := Reconcile(old, submitted)

	if reconciled.Files[0].DownloadCount != 15 {
		t.Fatalf("matched file keeps its download count, got %d", reconciled.Files[0].DownloadCount)
	}
	if reconciled.Files[0].Name != "renamed.zip" {
		t.Fatalf("file metadata is client-owned, got %q", reconciled.Files[0].Name)
	}
	if reconciled.Files[1].DownloadCount != 0 {
		t.Fatalf("new file download count must start at zero, got %d", reconciled.Files[1].DownloadCount)
	}
}

func TestReconcileWithEmptyOldZeroesEverythingServerOwned(t *testing.T) {
	submitted := Document{
		Stats: SiteStats{Views: 500},
		Posts: []Post{{ID: "post-1", Views: 9, Likes: 9}},
		Files: []File{{ID: "file-1", DownloadCount: 9}},
	}

	reconciled := Reconcile(Document{}, submitted)

	if reconciled.Stats.Views != 0 {
		t.Fatalf("stats reset to zero without a persisted document, got %d", reconciled.Stats.Views)
	}
	if reconciled.Posts[0].Views != 0 || reconciled.Posts[0].Likes != 0 {
		t.Fatalf("post counters reset to zero without a persisted document, got %+v", reconciled.Posts[0])
	}
	if reconciled.Files[0].DownloadCount != 0 {
		t.Fatalf("download count reset to zero without a persisted document, got %d", reconciled.Files[0].DownloadCount)
	}
}

func TestReconcilePassesOpaqueSectionsThrough(t *testing.T) {
	old := Document{
		Theme: json.RawMessage(`{"primaryColor":"#000000"}`),
	}
	submitted := Document{
		Theme: json.RawMessage(`{"primaryColor":"#ffffff","futureField":{"nested":true}}`),
	}

	reconciled := Reconcile(old, submitted)

	if string(reconciled.Theme) != string(submitted.Theme) {
		t.Fatalf("opaque sections must pass through with unknown fields intact, got %s", reconciled.Theme)
	}
}

func TestOwnershipRulesCoverOnlyServerOwnedSections(t *testing.T) {
	for _, rule := range OwnershipRules() {
		if rule.Ownership == ClientOwned {
			t.Fatalf("client-owned sections need no reconcile rule: %s", rule.Section)
		}
	}
}
