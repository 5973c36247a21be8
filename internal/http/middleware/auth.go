// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the calling device from an "Authorization: Bearer" token.
// BearerAuth runs globally and only annotates the context, so the access log,
// the rate limiter and the idempotency lookup can key on the device. Routes
// that need an identity add RequireGroup, which rejects requests without a
// valid token (401) or whose token belongs to another group (403).
package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/auth"
)

const (
	ctxKeyDeviceID = "deviceID"
	ctxKeyGroupID  = "groupID"
	ctxKeyAuthErr  = "auth.err"
)

// TokenVerifier checks a bearer token and returns its principal.
// *auth.TokenService satisfies it.
type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// BearerAuth verifies the bearer token when one is present and stores the
// principal in the context. Invalid tokens are remembered, not rejected.
func BearerAuth(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if tok, ok := bearerToken(c.GetHeader("Authorization")); ok {
			p, err := v.Verify(tok)
			if err != nil {
				c.Set(ctxKeyAuthErr, err)
			} else {
				c.Set(ctxKeyDeviceID, p.DeviceID)
				c.Set(ctxKeyGroupID, p.GroupID)
			}
		}
		c.Next()
	}
}

// RequireGroup rejects requests that are not authenticated for the group
// named by the path parameter param.
func RequireGroup(param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			code, msg := "unauthorized", "missing bearer token"
			if v, found := c.Get(ctxKeyAuthErr); found {
				code, msg = "unauthorized", "invalid token"
				if err, _ := v.(error); errors.Is(err, auth.ErrTokenExpired) {
					code, msg = "token_expired", "token expired"
				}
			}
			c.Header("WWW-Authenticate", `Bearer realm="instalist"`)
			abortJSON(c, http.StatusUnauthorized, code, msg)
			return
		}
		gid, err := strconv.ParseUint(c.Param(param), 10, 64)
		if err != nil || gid != p.GroupID {
			abortJSON(c, http.StatusForbidden, "forbidden", "token is not valid for this group")
			return
		}
		c.Next()
	}
}

// PrincipalFrom returns the authenticated device, if any.
func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	did, ok1 := c.Get(ctxKeyDeviceID)
	gid, ok2 := c.Get(ctxKeyGroupID)
	if !ok1 || !ok2 {
		return auth.Principal{}, false
	}
	d, _ := did.(uint64)
	g, _ := gid.(uint64)
	return auth.Principal{DeviceID: d, GroupID: g}, true
}

func bearerToken(header string) (string, bool) {
	scheme, tok, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// abortJSON stops the chain with the standard error envelope.
func abortJSON(c *gin.Context, status int, code, msg string) {
	rid, _ := c.Get(requestIDKey)
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": asString(rid),
		"code":       code,
		"message":    msg,
	})
}
