package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/store"
)

// ErrFetch marks a transient feed download failure. The caller defers
// to the next scheduled run instead of retrying in place.
var ErrFetch = errors.New("feed fetch failed")

// Detector downloads the feed and decides whether its content is new
// by comparing digests against the persisted update_hash setting.
type Detector struct {
	url    string
	client *http.Client
	store  store.Store
	logger *zap.Logger
}

func NewDetector(url string, st store.Store, logger *zap.Logger) *Detector {
	return &Detector{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Minute},
		store:  st,
		logger: logger.Named("detector"),
	}
}

// FetchAndHash downloads the feed and computes the SHA-256 digest of
// the raw response bytes.
func (d *Detector) FetchAndHash(ctx context.Context) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: unexpected status %d", ErrFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrFetch, err)
	}

	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	d.logger.Info("feed downloaded", zap.Int("bytes", len(body)), zap.String("digest", digest))
	return body, digest, nil
}

// IsNewFeed reports whether digest differs from the stored
// update_hash. It is a pure check: no settings write happens here, so
// a crash before the post-ingest commit point just re-ingests next
// run.
func (d *Detector) IsNewFeed(ctx context.Context, digest string) (bool, error) {
	prev, ok, err := d.store.Setting(ctx, store.KeyUpdateHash)
	if err != nil {
		return false, err
	}
	return !ok || prev != digest, nil
}
