// Package uploads stores admin-uploaded assets, either on the local
// disk behind the /assets path or forwarded to the catbox file host.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultCatboxURL = "https://catbox.moe/user/api.php"
	defaultTimeout   = 60 * time.Second
)

var (
	errMissingAssetsDir = errors.New("uploads: assets directory is required")
	errMissingFilename  = errors.New("uploads: filename is required")

	// Filenames are flattened to a safe charset before they reach the
	// filesystem, closing directory traversal on the upload path.
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.-]`)
)

// ServiceConfig configures the upload service.
type ServiceConfig struct {
	AssetsDir  string
	CatboxURL  string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Service handles both upload destinations.
type Service struct {
	assetsDir  string
	catboxURL  string
	httpClient *http.Client
	clock      func() time.Time
	logger     *zap.Logger
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if strings.TrimSpace(cfg.AssetsDir) == "" {
		return nil, errMissingAssetsDir
	}
	catboxURL := cfg.CatboxURL
	if catboxURL == "" {
		catboxURL = defaultCatboxURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		assetsDir:  cfg.AssetsDir,
		catboxURL:  catboxURL,
		httpClient: httpClient,
		clock:      clock,
		logger:     logger,
	}, nil
}

// SaveLocal writes an uploaded file under the assets directory with a
// sanitized, timestamp-prefixed name and returns its public URL path.
func (s *Service) SaveLocal(filename string, content io.Reader) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", errMissingFilename
	}
	sanitized := unsafeFilenameChars.ReplaceAllString(filepath.Base(filename), "_")
	unique := fmt.Sprintf("%d-%s", s.clock().UnixMilli(), sanitized)

	if err := os.MkdirAll(s.assetsDir, 0o755); err != nil {
		return "", fmt.Errorf("uploads: create assets directory: %w", err)
	}

	destination, err := os.Create(filepath.Join(s.assetsDir, unique))
	if err != nil {
		return "", fmt.Errorf("uploads: create asset file: %w", err)
	}
	defer destination.Close()

	if _, err := io.Copy(destination, content); err != nil {
		return "", fmt.Errorf("uploads: write asset file: %w", err)
	}

	return "/assets/" + unique, nil
}

// ForwardCatbox rebuilds the upload form and forwards it to the catbox
// host, returning the public URL catbox responds with.
func (s *Service) ForwardCatbox(ctx context.Context, userHash, filename string, content io.Reader) (string, error) {
	if strings.TrimSpace(filename) == "" {
		return "", errMissingFilename
	}

	body := &strings.Builder{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("reqtype", "fileupload"); err != nil {
		return "", fmt.Errorf("uploads: build catbox form: %w", err)
	}
	if err := writer.WriteField("userhash", userHash); err != nil {
		return "", fmt.Errorf("uploads: build catbox form: %w", err)
	}
	part, err := writer.CreateFormFile("fileToUpload", filename)
	if err != nil {
		return "", fmt.Errorf("uploads: build catbox form: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("uploads: copy upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("uploads: finalize catbox form: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.catboxURL, strings.NewReader(body.String()))
	if err != nil {
		return "", fmt.Errorf("uploads: build catbox request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := s.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("uploads: catbox request failed: %w", err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("uploads: read catbox response: %w", err)
	}
	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("uploads: catbox status %d: %s", response.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	return strings.TrimSpace(string(responseBody)), nil
}
