package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/stockledger-backend/api/responses"
	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/stockledger-backend/pkg/redis"
)

// Retention of stored responses. Document transitions and postings move
// stock, so their keys are kept longer than plain edits.
const (
	EditIdempotencyTTL   = 24 * time.Hour
	CommitIdempotencyTTL = 7 * 24 * time.Hour

	inFlightTTL = 2 * time.Minute

	idempotencyKeyHeader   = "Idempotency-Key"
	idempotentReplayHeader = "Idempotent-Replayed"
)

type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
	Fingerprint string `json:"fingerprint"`
}

// Idempotency makes a mutating route safe to retry under the same
// Idempotency-Key. The first non-5xx response is kept for ttl and replayed
// for identical requests; a different body under the same key is rejected,
// as is a duplicate that arrives while the first is still running.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if store == nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
			if clientKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			scope := ActorIDFromContext(ctx) + "|" + r.Method + "|" + r.URL.Path
			call := idempotentCall{
				store:       store,
				key:         store.IdempotencyKey(scope, clientKey),
				lockKey:     store.IdempotencyKey(scope+"|inflight", clientKey),
				fingerprint: fingerprint(body),
			}

			if done, err := call.replay(ctx, w); err != nil || done {
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
				}
				return
			}

			locked, err := store.SetNX(ctx, call.lockKey, call.fingerprint, inFlightTTL)
			switch {
			case err != nil:
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire idempotency lock"))
				return
			case !locked:
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotencyInFlight, "request with this idempotency key is in progress"))
				return
			}
			defer func() {
				if err := store.Del(context.WithoutCancel(ctx), call.lockKey); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency lock", err)
				}
			}()

			// The first request may have finished between the lookup and the lock.
			if done, err := call.replay(ctx, w); err != nil || done {
				if err != nil {
					responses.WriteError(ctx, logg, w, err)
				}
				return
			}

			capture := &bodyCapture{ResponseWriter: w}
			next.ServeHTTP(capture, r)
			if capture.statusCode() >= http.StatusInternalServerError {
				return
			}
			if err := call.save(ctx, capture, ttl); err != nil && logg != nil {
				logg.Error(ctx, "persist idempotency record", err)
			}
		})
	}
}

type idempotentCall struct {
	store       pkgredis.IdempotencyStore
	key         string
	lockKey     string
	fingerprint string
}

// replay writes the stored response when one exists for this key.
func (c idempotentCall) replay(ctx context.Context, w http.ResponseWriter) (bool, error) {
	raw, err := c.store.Get(ctx, c.key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return false, nil
	}
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	if stored.Fingerprint != c.fingerprint {
		return false, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body")
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(idempotentReplayHeader, "true")
	w.WriteHeader(stored.Status)
	_, _ = w.Write(stored.Body)
	return true, nil
}

func (c idempotentCall) save(ctx context.Context, capture *bodyCapture, ttl time.Duration) error {
	payload, err := json.Marshal(storedResponse{
		Status:      capture.statusCode(),
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		Fingerprint: c.fingerprint,
	})
	if err != nil {
		return err
	}
	_, err = c.store.SetNX(ctx, c.key, string(payload), ttl)
	return err
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// bodyCapture tees the response so it can be stored after the handler runs.
type bodyCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *bodyCapture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *bodyCapture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *bodyCapture) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
