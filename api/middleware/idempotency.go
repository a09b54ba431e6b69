package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/mandi-backend/api/responses"
	pkgerrors "github.com/angelmondragon/mandi-backend/pkg/errors"
	"github.com/angelmondragon/mandi-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/mandi-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	// IdempotencyTTL covers ordinary mutations; IdempotencyTTLCritical covers
	// routes that create orders.
	IdempotencyTTL         = 24 * time.Hour
	IdempotencyTTLCritical = 7 * 24 * time.Hour

	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = time.Minute
)

// storedResponse is the Redis value under an idempotency key. A record with
// Pending set marks a request that is still executing.
type storedResponse struct {
	Pending     bool   `json:"pending,omitempty"`
	RequestHash string `json:"request_hash"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        string `json:"body,omitempty"`
}

// Idempotency builds per-route guards that replay the first response sent for
// an Idempotency-Key. A nil store turns every guard into a pass-through.
type Idempotency struct {
	store    pkgredis.IdempotencyStore
	required bool
	logg     *logger.Logger
}

func NewIdempotency(store pkgredis.IdempotencyStore, required bool, logg *logger.Logger) *Idempotency {
	return &Idempotency{store: store, required: required, logg: logg}
}

// Guard keeps responses for ttl. Keys are scoped per actor, method and path.
// A repeat with a different body is rejected; a repeat while the first
// request is still running gets CONFLICT.
func (i *Idempotency) Guard(ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if i == nil || i.store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				if i.required {
					responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			digest := sha256.Sum256(body)
			hash := hex.EncodeToString(digest[:])

			scope := strings.Join([]string{ActorIDFromContext(ctx), r.Method, r.URL.Path}, "|")
			key := i.store.IdempotencyKey(scope, clientKey)

			marker, _ := json.Marshal(storedResponse{Pending: true, RequestHash: hash})
			reserved, err := i.store.SetNX(ctx, key, string(marker), inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key"))
				return
			}
			if !reserved {
				i.replay(w, r, key, hash)
				return
			}

			capture := &capturingWriter{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			i.settle(r, key, hash, capture, ttl)
		})
	}
}

// replay answers a request whose key is already taken.
func (i *Idempotency) replay(w http.ResponseWriter, r *http.Request, key, hash string) {
	ctx := r.Context()
	raw, err := i.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) {
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotent request expired mid-flight, retry"))
		return
	}
	if err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotency record"))
		return
	}
	var saved storedResponse
	if err := json.Unmarshal([]byte(raw), &saved); err != nil {
		responses.WriteError(ctx, i.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return
	}
	switch {
	case saved.RequestHash != hash:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case saved.Pending:
		responses.WriteError(ctx, i.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		body, _ := base64.StdEncoding.DecodeString(saved.Body)
		if saved.ContentType != "" {
			w.Header().Set("Content-Type", saved.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(saved.Status)
		_, _ = w.Write(body)
	}
}

// settle stores the finished response, or frees the key after a server
// fault so the client may retry with the same key.
func (i *Idempotency) settle(r *http.Request, key, hash string, capture *capturingWriter, ttl time.Duration) {
	ctx := r.Context()
	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		if err := i.store.Del(ctx, key); err != nil {
			i.logg.Error(ctx, "idempotency.release_failed", err)
		}
		return
	}
	record, err := json.Marshal(storedResponse{
		RequestHash: hash,
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
	})
	if err != nil {
		i.logg.Error(ctx, "idempotency.marshal_failed", err)
		return
	}
	if _, err := i.store.SetXX(ctx, key, string(record), ttl); err != nil {
		i.logg.Error(ctx, "idempotency.persist_failed", err)
	}
}

type capturingWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capturingWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
