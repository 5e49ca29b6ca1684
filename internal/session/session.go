// Package session holds a client-side working copy of the profile
// document: it polls the server for refreshes, takes local edits from
// the admin surface, and publishes full-document saves back, adopting
// the server's reconciled response so server-owned counters stay honest.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/8w6s/profile-api/internal/profile"
)

const defaultRequestTimeout = 10 * time.Second

var (
	errMissingBaseURL = errors.New("session: base url is required")

	// ErrSaveInFlight indicates a Save started while another one was
	// still running. The admin surface is single-threaded, so this only
	// trips on a misbehaving caller.
	ErrSaveInFlight = errors.New("session: save already in flight")
)

// State names the session lifecycle phase.
type State string

const (
	// StateUninitialized precedes the first Load.
	StateUninitialized State = "uninitialized"
	// StateLoading covers the first Load only.
	StateLoading State = "loading"
	// StateReady is the steady state; edits, saves and refresh ticks are
	// all self-loops from here.
	StateReady State = "ready"
)

// Config configures a Session.
type Config struct {
	// BaseURL is the profile server root, e.g. "http://localhost:8080".
	BaseURL    string
	HTTPClient *http.Client
	// AuthToken, when set, is sent as a bearer token on saves.
	AuthToken  string
	IDProvider profile.IDProvider
	Logger     *zap.Logger
}

// Session is the in-memory working copy plus its synchronization rules.
// Each browser tab (or CLI invocation) owns one Session; they all point
// at the same server-side store.
type Session struct {
	baseURL    string
	httpClient *http.Client
	authToken  string
	idProvider profile.IDProvider
	logger     *zap.Logger

	mu          sync.Mutex
	state       State
	doc         profile.Document
	saving      bool
	saveEpoch   int64
	subscribers map[int64]chan profile.Document
	nextSubID   int64
}

// New validates the configuration and returns a Session seeded with the
// compiled-in default document.
func New(cfg Config) (*Session, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	idProvider := cfg.IDProvider
	if idProvider == nil {
		idProvider = profile.NewUUIDProvider()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		baseURL:     baseURL,
		httpClient:  httpClient,
		authToken:   cfg.AuthToken,
		idProvider:  idProvider,
		logger:      logger,
		state:       StateUninitialized,
		doc:         profile.DefaultDocument(),
		subscribers: make(map[int64]chan profile.Document),
	}, nil
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Document returns a copy of the current working document.
func (s *Session) Document() profile.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// MintID issues an identifier for a new post, file or comment.
func (s *Session) MintID() (string, error) {
	return s.idProvider.NewID()
}

// Load fetches the persisted document and replaces the working copy with
// it (server wins; unsaved local edits are overwritten, an accepted
// tradeoff of the polling protocol). A server that has never persisted,
// or cannot be reached, is non-fatal: the working copy falls back to the
// default document so the page always renders, and the transport error
// is returned for the caller to log.
func (s *Session) Load(ctx context.Context) (profile.Document, error) {
	s.mu.Lock()
	if s.state == StateUninitialized {
		s.state = StateLoading
	}
	epoch := s.saveEpoch
	s.mu.Unlock()

	doc, err := s.fetchProfile(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateReady
	if err != nil {
		return s.doc.Clone(), err
	}
	// A Save that started after this fetch was issued owns the newer
	// state; its response wins over this stale read.
	if s.saving || s.saveEpoch != epoch {
		return s.doc.Clone(), nil
	}
	s.doc = doc
	s.notifyLocked()
	return s.doc.Clone(), nil
}

// StartAutoRefresh schedules Load on the interval until the returned
// stop function is called or the context ends. Ticks that land while a
// Save is in flight are dropped; refresh failures are logged only.
func (s *Session) StartAutoRefresh(ctx context.Context, interval time.Duration) (stop func()) {
	refreshCtx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				saving := s.saving
				s.mu.Unlock()
				if saving {
					continue
				}
				if _, err := s.Load(refreshCtx); err != nil && refreshCtx.Err() == nil {
					s.logger.Debug("profile refresh failed", zap.Error(err))
				}
			}
		}
	}()
	return cancel
}

// ApplyLocalEdit runs a mutator over a copy of the working document and
// installs the result. Purely in-memory; nothing is persisted until
// Save.
func (s *Session) ApplyLocalEdit(mutate func(doc *profile.Document)) profile.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.doc.Clone()
	mutate(&next)
	s.doc = next
	s.notifyLocked()
	return s.doc.Clone()
}

// Save publishes the working document. On success the working copy is
// replaced with the server's reconciled response, so server-owned
// counters in the UI immediately reflect reality. On failure the working
// copy is left untouched and the error surfaces to the caller; the
// session never retries on its own.
func (s *Session) Save(ctx context.Context) (profile.Document, error) {
	s.mu.Lock()
	if s.saving {
		s.mu.Unlock()
		return profile.Document{}, ErrSaveInFlight
	}
	s.saving = true
	s.saveEpoch++
	submitted := s.doc.Clone()
	s.mu.Unlock()

	reconciled, err := s.postProfile(ctx, submitted)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.saving = false
	if err != nil {
		return profile.Document{}, err
	}
	s.doc = reconciled
	s.notifyLocked()
	return s.doc.Clone(), nil
}

// Reset replaces the working copy with the compiled-in default document
// and immediately saves it.
func (s *Session) Reset(ctx context.Context) (profile.Document, error) {
	s.mu.Lock()
	s.doc = profile.DefaultDocument()
	s.notifyLocked()
	s.mu.Unlock()
	return s.Save(ctx)
}

// Subscribe registers a receiver for each new working copy. Slow
// receivers miss intermediate versions rather than blocking the session.
func (s *Session) Subscribe() (<-chan profile.Document, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	stream := make(chan profile.Document, 16)
	s.subscribers[id] = stream
	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(stream)
		}
	}
	return stream, cancel
}

func (s *Session) notifyLocked() {
	for _, stream := range s.subscribers {
		select {
		case stream <- s.doc.Clone():
		default:
		}
	}
}

func (s *Session) fetchProfile(ctx context.Context) (profile.Document, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/profile", nil)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: build request: %w", err)
	}
	response, err := s.httpClient.Do(request)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: fetch profile: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return profile.Document{}, fmt.Errorf("session: fetch profile: status %d", response.StatusCode)
	}
	body, err := io.ReadAll(response.Body)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: read profile: %w", err)
	}
	doc, err := profile.DecodeDocument(body)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: decode profile: %w", err)
	}
	return doc, nil
}

func (s *Session) postProfile(ctx context.Context, doc profile.Document) (profile.Document, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: encode profile: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/profile", bytes.NewReader(payload))
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		request.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	response, err := s.httpClient.Do(request)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: save profile: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: read save response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return profile.Document{}, fmt.Errorf("session: save profile: status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return profile.Document{}, fmt.Errorf("session: decode save response: %w", err)
	}
	if !envelope.Success {
		return profile.Document{}, errors.New("session: server rejected the save")
	}
	reconciled, err := profile.DecodeDocument(envelope.Data)
	if err != nil {
		return profile.Document{}, fmt.Errorf("session: decode reconciled document: %w", err)
	}
	return reconciled, nil
}
