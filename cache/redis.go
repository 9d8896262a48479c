package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"marketlens/config"
	"marketlens/logger"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every cached response
const KeyPrefix = "marketlens:resp:"

// ResponseCache is a read-through cache of GET response bodies.
// A cache built with Disabled() or from a disabled config never stores anything.
type ResponseCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// Disabled returns a cache that passes every request through
func Disabled() *ResponseCache {
	return &ResponseCache{log: logger.L()}
}

// NewResponseCache connects to Redis when the config enables it
func NewResponseCache(ctx context.Context, cfg *config.RedisConfig) (*ResponseCache, error) {
	log := logger.L()
	if !cfg.Enabled {
		log.Info("Response cache disabled", nil)
		return Disabled(), nil
	}

	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Host + ":" + cfg.Port,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		log.Error("Failed to connect to Redis", map[string]interface{}{
			"error": err.Error(),
			"addr":  opts.Addr,
			"db":    opts.DB,
		})
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Response cache initialized", map[string]interface{}{
		"addr": opts.Addr,
		"db":   opts.DB,
		"ttl":  cfg.GetTTL().String(),
	})

	return &ResponseCache{
		client: client,
		ttl:    cfg.GetTTL(),
		log:    log,
	}, nil
}

// Enabled reports whether responses are actually cached
func (c *ResponseCache) Enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Get returns a cached body. Redis errors count as a miss.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if !c.Enabled() {
		return nil, false
	}

	body, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithContext(ctx).Error("Failed to read cached response", map[string]interface{}{
				"error": err.Error(),
				"key":   key,
			})
		}
		return nil, false
	}
	return body, true
}

// Set stores a body for the configured TTL
func (c *ResponseCache) Set(ctx context.Context, key string, body []byte) {
	if !c.Enabled() {
		return
	}

	if err := c.client.Set(ctx, KeyPrefix+key, body, c.ttl).Err(); err != nil {
		c.log.WithContext(ctx).Error("Failed to cache response", map[string]interface{}{
			"error": err.Error(),
			"key":   key,
		})
	}
}

// Close releases the Redis connection pool
func (c *ResponseCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Key identifies a request by path and its sorted query string
func Key(r *http.Request) string {
	q := r.URL.Query().Encode()
	if q == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + q
}

// Middleware serves GET requests from the cache and stores successful
// JSON responses on a miss
func (c *ResponseCache) Middleware(next http.Handler) http.Handler {
	return c.KeyedMiddleware(Key)(next)
}

// KeyedMiddleware is Middleware with a custom cache key, for responses that
// depend on more than the request URL
func (c *ResponseCache) KeyedMiddleware(keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || !c.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			if body, ok := c.Get(r.Context(), key); ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Cache", "HIT")
				w.WriteHeader(http.StatusOK)
				w.Write(body)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status == http.StatusOK && rec.Header().Get("Content-Type") == "application/json" {
				c.Set(r.Context(), key, rec.body.Bytes())
			}
		})
	}
}

// recordingWriter copies the body while passing it through
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}
