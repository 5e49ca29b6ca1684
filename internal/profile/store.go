package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/8w6s/profile-api/internal/document"
)

var (
	// ErrNotFound indicates a missing document, post or file reference.
	ErrNotFound = errors.New("profile: not found")
	// ErrPersistence indicates that the backing storage write failed.
	// The caller may retry; the store does not.
	ErrPersistence = errors.New("profile: persistence failure")

	errMissingRecord = errors.New("document record is required")
	noOpLogger       = zap.NewNop()
)

// StoreError carries a dotted operation code alongside the cause.
type StoreError struct {
	code string
	err  error
}

func (e *StoreError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *StoreError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code.
func (e *StoreError) Code() string {
	return e.code
}

const (
	opStoreNew          = "profile.store.new"
	opGet               = "profile.store.get"
	opReplace           = "profile.store.replace"
	opIncrementView     = "profile.store.increment_view"
	opToggleLike        = "profile.store.toggle_like"
	opIncrementDownload = "profile.store.increment_download"
)

func newStoreError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &StoreError{code: code, err: cause}
}

func newPersistenceError(operation string, cause error) error {
	return &StoreError{
		code: operation + ".persist_failed",
		err:  fmt.Errorf("%w: %w", ErrPersistence, cause),
	}
}

// StoreConfig configures the profile store.
type StoreConfig struct {
	Record *document.File
	Logger *zap.Logger
}

// Store is the sole writer of the persisted profile document. Every
// operation is a read-modify-write cycle over the same record, so all of
// them run under one store-wide mutex; interleaving the read and write
// halves of two cycles silently loses one of the updates. When the
// record carries an advisory file lock, that lock is additionally held
// across each cycle for multi-process deployments.
type Store struct {
	mu     sync.Mutex
	record *document.File
	logger *zap.Logger
}

// NewStore validates the configuration and returns a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Record == nil {
		return nil, newStoreError(opStoreNew, "missing_record", errMissingRecord)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Store{record: cfg.Record, logger: logger}, nil
}

// Get reads the current persisted document. ErrNotFound is returned when
// nothing has ever been persisted; callers fall back to the compiled-in
// default document.
func (s *Store) Get(ctx context.Context) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, newStoreError(opGet, "context_done", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists, err := s.loadLocked(opGet)
	if err != nil {
		return Document{}, err
	}
	if !exists {
		return Document{}, newStoreError(opGet, "never_persisted", ErrNotFound)
	}
	return doc, nil
}

// Replace accepts an admin-submitted full document, reconciles the
// server-owned sections against the persisted state per the ownership
// table, and persists the result atomically. The reconciled document is
// returned so the client can adopt it as its new working copy.
func (s *Store) Replace(ctx context.Context, submitted Document) (Document, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, newStoreError(opReplace, "context_done", err)
	}
	if err := ValidateDocument(submitted); err != nil {
		return Document{}, newStoreError(opReplace, "invalid_document", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockRecord(opReplace)
	if err != nil {
		return Document{}, err
	}
	defer unlock()

	old, _, err := s.loadLocked(opReplace)
	if err != nil {
		return Document{}, err
	}

	reconciled := Reconcile(old, submitted)
	if err := s.persistLocked(opReplace, reconciled); err != nil {
		return Document{}, err
	}
	return reconciled, nil
}

// ViewResult reports the outcome of a view increment.
type ViewResult struct {
	Views int
	// AlreadyCounted marks the normal, expected outcome of a repeat view
	// from the same fingerprint. It is not an error.
	AlreadyCounted bool
}

// IncrementPostView counts one view of a post, deduplicated per viewer
// fingerprint. A repeat view reports the unchanged count.
func (s *Store) IncrementPostView(ctx context.Context, postID PostID, fingerprint Fingerprint) (ViewResult, error) {
	var result ViewResult
	err := s.update(ctx, opIncrementView, func(doc *Document) (bool, error) {
		post := doc.FindPost(postID)
		if post == nil {
			return false, newStoreError(opIncrementView, "post_not_found",
				fmt.Errorf("%w: post %q", ErrNotFound, postID.String()))
		}
		if containsFingerprint(post.ViewedIPs, fingerprint) {
			result = ViewResult{Views: post.Views, AlreadyCounted: true}
			return false, nil
		}
		post.ViewedIPs = append(post.ViewedIPs, fingerprint.String())
		post.Views++
		result = ViewResult{Views: post.Views}
		return true, nil
	})
	if err != nil {
		return ViewResult{}, err
	}
	return result, nil
}

// IncrementSiteView counts one view of the whole page, deduplicated per
// viewer fingerprint, against the global site stats.
func (s *Store) IncrementSiteView(ctx context.Context, fingerprint Fingerprint) (ViewResult, error) {
	var result ViewResult
	err := s.update(ctx, opIncrementView, func(doc *Document) (bool, error) {
		if containsFingerprint(doc.Stats.ViewedIPs, fingerprint) {
			result = ViewResult{Views: doc.Stats.Views, AlreadyCounted: true}
			return false, nil
		}
		if doc.Stats.ViewedIPs == nil {
			doc.Stats.ViewedIPs = []string{}
		}
		doc.Stats.ViewedIPs = append(doc.Stats.ViewedIPs, fingerprint.String())
		doc.Stats.Views++
		result = ViewResult{Views: doc.Stats.Views}
		return true, nil
	})
	if err != nil {
		return ViewResult{}, err
	}
	return result, nil
}

// LikeResult reports the outcome of a like toggle.
type LikeResult struct {
	Likes int
	Liked bool
}

// ToggleLike flips the like state of a post for one viewer fingerprint:
// an unseen fingerprint is added and the count incremented, a present
// one is removed and the count decremented, floored at zero.
func (s *Store) ToggleLike(ctx context.Context, postID PostID, fingerprint Fingerprint) (LikeResult, error) {
	var result LikeResult
	err := s.update(ctx, opToggleLike, func(doc *Document) (bool, error) {
		post := doc.FindPost(postID)
		if post == nil {
			return false, newStoreError(opToggleLike, "post_not_found",
				fmt.Errorf("%w: post %q", ErrNotFound, postID.String()))
		}
		if containsFingerprint(post.LikedIPs, fingerprint) {
			post.LikedIPs = removeFingerprint(post.LikedIPs, fingerprint)
			if post.Likes > 0 {
				post.Likes--
			}
			result = LikeResult{Likes: post.Likes, Liked: false}
			return true, nil
		}
		post.LikedIPs = append(post.LikedIPs, fingerprint.String())
		post.Likes++
		result = LikeResult{Likes: post.Likes, Liked: true}
		return true, nil
	})
	if err != nil {
		return LikeResult{}, err
	}
	return result, nil
}

// IncrementDownload counts one download of a file, with no per-viewer
// dedup, and returns the updated file so callers can serve its content.
func (s *Store) IncrementDownload(ctx context.Context, fileID FileID) (File, error) {
	var result File
	err := s.update(ctx, opIncrementDownload, func(doc *Document) (bool, error) {
		file := doc.FindFile(fileID)
		if file == nil {
			return false, newStoreError(opIncrementDownload, "file_not_found",
				fmt.Errorf("%w: file %q", ErrNotFound, fileID.String()))
		}
		file.DownloadCount++
		result = *file
		return true, nil
	})
	if err != nil {
		return File{}, err
	}
	return result, nil
}

// update runs one serialized read-modify-write cycle. The mutator
// reports whether the document changed; unchanged cycles skip the write.
// A document that was never persisted maps to ErrNotFound, matching the
// public interaction endpoints.
func (s *Store) update(ctx context.Context, operation string, mutate func(doc *Document) (bool, error)) error {
	if err := ctx.Err(); err != nil {
		return newStoreError(operation, "context_done", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lockRecord(operation)
	if err != nil {
		return err
	}
	defer unlock()

	doc, exists, err := s.loadLocked(operation)
	if err != nil {
		return err
	}
	if !exists {
		return newStoreError(operation, "never_persisted", ErrNotFound)
	}

	dirty, err := mutate(&doc)
	if err != nil {
		return err
	}
	if !dirty {
		return nil
	}
	return s.persistLocked(operation, doc)
}

func (s *Store) lockRecord(operation string) (func(), error) {
	if err := s.record.Lock(); err != nil {
		s.logError(operation, "file_lock_failed", err)
		return nil, newStoreError(operation, "file_lock_failed", err)
	}
	return func() {
		if err := s.record.Unlock(); err != nil {
			s.logError(operation, "file_unlock_failed", err)
		}
	}, nil
}

func (s *Store) loadLocked(operation string) (Document, bool, error) {
	data, err := s.record.Load()
	if err != nil {
		if errors.Is(err, document.ErrNotExist) {
			return Document{}, false, nil
		}
		s.logError(operation, "load_failed", err)
		return Document{}, false, newStoreError(operation, "load_failed", err)
	}
	doc, err := DecodeDocument(data)
	if err != nil {
		s.logError(operation, "decode_failed", err)
		return Document{}, false, newStoreError(operation, "decode_failed", err)
	}
	return doc, true, nil
}

func (s *Store) persistLocked(operation string, doc Document) error {
	data, err := EncodeDocument(doc)
	if err != nil {
		s.logError(operation, "encode_failed", err)
		return newStoreError(operation, "encode_failed", err)
	}
	if err := s.record.Save(data); err != nil {
		s.logError(operation, "persist_failed", err)
		return newPersistenceError(operation, err)
	}
	return nil
}

func (s *Store) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("profile store error", attrs...)
}
