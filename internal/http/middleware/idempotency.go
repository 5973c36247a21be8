// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header of create requests and,
// for authenticated callers, asks a lookup whether the key was already used.
// The answer is stashed so the create handler does not repeat the lookup.
// Replays are still charged by the rate limiter.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
)

// DefaultIdempotencyKeyMaxLen is used when IdempotencyOptions.MaxLen is unset.
const DefaultIdempotencyKeyMaxLen = 200

var defaultIdempotencyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key was already used by the same device.
// checked is false when no lookup answered for this request (no lookup
// configured, anonymous caller or lookup error); callers then look it up
// themselves.
func IsReplay(c *gin.Context) (replay, checked bool) {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false, false
	}
	b, _ := v.(bool)
	return b, true
}

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the key length. Values <= 0 use DefaultIdempotencyKeyMaxLen.
	MaxLen int
	// Pattern restricts the allowed characters; nil allows token characters
	// plus ".~-:".
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether an unexpired outcome is stored for the
// device's key. Lookup errors never block the request.
type IdempotencyLookup func(ctx context.Context, groupID, deviceID uint64, key string, now time.Time) (bool, error)

// IdempotencyValidator rejects malformed keys with 400 and stashes valid ones.
// It only applies to POST. When lookup is set and the caller is
// authenticated, its answer is recorded for IsReplay.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultIdempotencyKeyMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdempotencyPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if p, ok := PrincipalFrom(c); ok && lookup != nil {
			exists, err := lookup(c.Request.Context(), p.GroupID, p.DeviceID, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			} else {
				c.Set(ctxKeyIdemReplay, exists)
			}
		}
		c.Next()
	}
}
