package reprstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/x448/float16"
	"go.uber.org/zap"

	"sdprobe/logging"
	"sdprobe/similarity"
	"sdprobe/tensor"
)

// DefaultFetchTimeout bounds one HTTP fetch when the caller's context has no deadline.
const DefaultFetchTimeout = 2 * time.Minute

// Cache holds fetched representation buffers keyed by location. Values are
// kept in half precision.
type Cache struct {
	client *http.Client
	logger *logging.Logger

	mu      sync.RWMutex
	entries map[string][]float16.Float16
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithHTTPClient sets the client used for http(s) locations.
func WithHTTPClient(c *http.Client) CacheOption {
	return func(cache *Cache) { cache.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) CacheOption {
	return func(cache *Cache) { cache.logger = l }
}

// NewCache returns an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		client:  &http.Client{Timeout: DefaultFetchTimeout},
		entries: make(map[string][]float16.Float16),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	return c
}

// Fetch loads the float32 little-endian buffer at location into the cache.
// location is an http(s) URL, a file:// URL or a local path. Fetching a
// location that is already cached does nothing.
func (c *Cache) Fetch(ctx context.Context, location string) error {
	if c.Has(location) {
		return nil
	}

	start := time.Now()
	buf, err := c.read(ctx, location)
	if err != nil {
		return err
	}
	if len(buf)%4 != 0 {
		return fmt.Errorf("%w: %s: length %d is not a multiple of 4", ErrInvalidBuffer, location, len(buf))
	}
	values, err := tensor.DecodeFloat32(buf)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBuffer, err)
	}
	half := make([]float16.Float16, len(values))
	for i, v := range values {
		half[i] = float16.Fromfloat32(v)
	}

	c.mu.Lock()
	c.entries[location] = half
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("location", logging.RedactSensitiveData(location)),
		zap.Int("values", len(half)),
	}
	c.logger.Debug("representation fetched", append(fields, logging.TimingFields(start, time.Now())...)...)
	return nil
}

func (c *Cache) read(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("%w: %v", ErrFetchFailed, logging.RedactSensitiveData(err.Error()))
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: %s: HTTP %d", ErrFetchFailed, logging.RedactSensitiveData(location), resp.StatusCode)
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %v", ErrFetchFailed, err)
		}
		return body, nil
	}

	p := strings.TrimPrefix(location, "file://")
	buf, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, p)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return buf, nil
}

// Has reports whether location is cached.
func (c *Cache) Has(location string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[location]
	return ok
}

// Len returns the number of cached locations.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns the cached values widened back to float32.
func (c *Cache) Get(location string) ([]float32, error) {
	c.mu.RLock()
	half, ok := c.entries[location]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCached, location)
	}
	out := make([]float32, len(half))
	for i, h := range half {
		out[i] = h.Float32()
	}
	return out, nil
}

// Similarities compares one spatial vector of the representation at loc1
// against every vector of the one at loc2. Both must have been fetched.
// See similarity.Map for the arguments.
func (c *Cache) Similarities(fn similarity.Func, loc1, loc2 string, q similarity.Query) ([]float64, error) {
	a, err := c.Get(loc1)
	if err != nil {
		return nil, err
	}
	b, err := c.Get(loc2)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := similarity.Map(fn, a, b, q)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("similarities computed",
		zap.String("func", string(fn)),
		zap.Int("values", len(out)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}
