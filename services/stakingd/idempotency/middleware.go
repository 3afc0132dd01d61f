package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"arkenstone/services/stakingd/api"
	"arkenstone/services/stakingd/middleware"
)

const (
	maxKeyLength  = 128
	maxBodyBytes  = 64 << 10
	maxCachedBody = 64 << 10
)

// Guard replays stored responses for repeated Idempotency-Key requests.
type Guard struct {
	store  *Store
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewGuard wraps store. A nil logger falls back to slog.Default.
func NewGuard(store *Store, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{store: store, logger: logger, inFlight: make(map[string]struct{})}
}

// Middleware must run after authentication: keys are scoped to the caller.
// Requests without the header pass straight through.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idem := strings.TrimSpace(r.Header.Get(api.HeaderIdempotencyKey))
		if idem == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(idem) > maxKeyLength {
			writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "idempotency key too long")
			return
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil || len(body) > maxBodyBytes {
			writeError(w, r, http.StatusBadRequest, api.CodeBadRequest, "request body unreadable or too large")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(body)
		digest := hex.EncodeToString(sum[:])

		caller, _ := middleware.CallerFromContext(r.Context())
		key := storageKey(caller.Hex(), r.Method, r.URL.Path, idem)

		record, found, err := g.store.Get(key)
		if err != nil {
			g.logger.Error("idempotency lookup failed", slog.String("key", idem), slog.Any("error", err))
			writeError(w, r, http.StatusInternalServerError, api.CodeInternal, http.StatusText(http.StatusInternalServerError))
			return
		}
		if found {
			if record.BodyDigest != digest {
				writeError(w, r, http.StatusConflict, api.CodeIdempotencyConflict, "idempotency key reused with a different request body")
				return
			}
			contentType := record.ContentType
			if contentType == "" {
				contentType = "application/json"
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set(api.HeaderIdempotencyCache, "hit")
			w.WriteHeader(record.StatusCode)
			_, _ = w.Write(record.Body)
			return
		}

		if !g.acquire(key) {
			writeError(w, r, http.StatusConflict, api.CodeIdempotencyConflict, "a request with this idempotency key is in progress")
			return
		}
		defer g.release(key)

		rec := &capture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if !cacheable(rec.status) || rec.truncated {
			return
		}
		if err := g.store.Put(key, Record{
			StatusCode:  rec.status,
			Body:        rec.body.Bytes(),
			BodyDigest:  digest,
			ContentType: rec.Header().Get("Content-Type"),
		}); err != nil {
			g.logger.Error("idempotency store failed", slog.String("key", idem), slog.Any("error", err))
		}
	})
}

func (g *Guard) acquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[key]; busy {
		return false
	}
	g.inFlight[key] = struct{}{}
	return true
}

func (g *Guard) release(key string) {
	g.mu.Lock()
	delete(g.inFlight, key)
	g.mu.Unlock()
}

// cacheable keeps outcomes the ledger decided. Throttling and server
// failures are left for the client to retry.
func cacheable(status int) bool {
	return status < http.StatusInternalServerError && status != http.StatusTooManyRequests
}

func storageKey(caller, method, path, idem string) string {
	return fmt.Sprintf("%s|%s|%s|%s", strings.ToLower(caller), method, path, idem)
}

type capture struct {
	http.ResponseWriter
	status    int
	body      bytes.Buffer
	truncated bool
}

func (c *capture) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *capture) Write(p []byte) (int, error) {
	if c.body.Len()+len(p) > maxCachedBody {
		c.truncated = true
	} else {
		c.body.Write(p)
	}
	return c.ResponseWriter.Write(p)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: middleware.RequestIDFromContext(r.Context()),
	})
}
