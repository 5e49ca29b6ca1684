package profile

// Ownership classifies who may legitimately change a document section.
type Ownership string

const (
	// ClientOwned sections are overwritten wholesale by an admin Replace.
	ClientOwned Ownership = "client"
	// ServerOwned sections are preserved verbatim across a Replace; only
	// the store's dedicated operations change them.
	ServerOwned Ownership = "server"
	// ServerOwnedPerElement sections live inside list elements matched by
	// a stable id: matched elements keep the persisted value, elements
	// with a previously unseen id start from zero.
	ServerOwnedPerElement Ownership = "server-per-element"
)

// FieldRule binds one document section to its ownership and the
// reconciliation step enforcing it.
type FieldRule struct {
	Section   string
	Ownership Ownership
	reconcile func(old Document, next *Document)
}

// OwnershipRules returns the field-ownership table driving Reconcile.
// Sections absent from the table are client-owned and pass through
// untouched, including configuration blobs the store does not model.
func OwnershipRules() []FieldRule {
	return []FieldRule{
		{
			Section:   "stats",
			Ownership: ServerOwned,
			reconcile: preserveSiteStats,
		},
		{
			Section:   "posts[].views,posts[].viewedIps",
			Ownership: ServerOwnedPerElement,
			reconcile: preservePostCounters,
		},
		{
			Section:   "files[].downloadCount",
			Ownership: ServerOwnedPerElement,
			reconcile: preserveDownloadCounts,
		},
	}
}

// Reconcile merges a client-submitted document over the persisted one,
// letting the submitted document win everywhere except the server-owned
// sections of the ownership table. The caller passes the zero Document
// as old when nothing has been persisted yet; every post and file id is
// then unseen and starts with zeroed counters regardless of the payload.
func Reconcile(old Document, submitted Document) Document {
	next := submitted.Clone()
	for _, rule := range OwnershipRules() {
		rule.reconcile(old, &next)
	}
	return next
}

func preserveSiteStats(old Document, next *Document) {
	next.Stats = old.Stats
	if next.Stats.ViewedIPs == nil {
		next.Stats.ViewedIPs = []string{}
	}
}

func preservePostCounters(old Document, next *Document) {
	preserveByID(old.Posts, next.Posts,
		func(p Post) string { return p.ID },
		func(dst *Post, prior Post) {
			dst.Views = prior.Views
			dst.ViewedIPs = append([]string(nil), prior.ViewedIPs...)
		},
		func(dst *Post) {
			dst.Views = 0
			dst.ViewedIPs = nil
			// A post id the store has never seen also gets a clean like
			// slate: whatever like state the client held for it is stale
			// by definition.
			dst.Likes = 0
			dst.LikedIPs = nil
		})
}

func preserveDownloadCounts(old Document, next *Document) {
	preserveByID(old.Files, next.Files,
		func(f File) string { return f.ID },
		func(dst *File, prior File) {
			dst.DownloadCount = prior.DownloadCount
		},
		func(dst *File) {
			dst.DownloadCount = 0
		})
}

// preserveByID walks the submitted list and either carries server-owned
// values over from the id-matched persisted element or initializes them
// for ids the persisted document never contained.
func preserveByID[T any](oldList, nextList []T, id func(T) string, preserve func(dst *T, prior T), initNew func(dst *T)) {
	priorByID := make(map[string]T, len(oldList))
	for _, element := range oldList {
		priorByID[id(element)] = element
	}
	for i := range nextList {
		if prior, ok := priorByID[id(nextList[i])]; ok {
			preserve(&nextList[i], prior)
		} else {
			initNew(&nextList[i])
		}
	}
}
