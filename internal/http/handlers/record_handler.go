// Record HTTP handlers.
//
// Every kind in the registry gets the same five routes under
// /groups/{groupid}/{path}:
//   - GET    /{path}?changedsince=   (change feed, weak ETag)
//   - GET    /{path}/{uuid}          (single record; 410 once deleted)
//   - POST   /{path}                 (create, honours Idempotency-Key)
//   - PUT    /{path}/{uuid}          (update)
//   - DELETE /{path}/{uuid}          (tombstone)
//
// Bodies are flat JSON objects holding the kind's fields next to uuid,
// lastChanged and deleted.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/instalist/instalist-server/internal/domain"
	"github.com/instalist/instalist-server/internal/http/middleware"
	"github.com/instalist/instalist-server/internal/kinds"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/services"
	"github.com/instalist/instalist-server/internal/utils"
)

// HeaderIdempotencyReplayed marks a create answered from a stored outcome.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

// RecordJSON is the wire form of a record or tombstone: the kind's fields
// plus uuid, lastChanged (ISO 8601, UTC, milliseconds) and deleted.
type RecordJSON map[string]any

func recordJSON(ch services.Change) RecordJSON {
	out := make(RecordJSON, len(ch.Fields)+3)
	for k, v := range ch.Fields {
		out[k] = v
	}
	out[kinds.MemberUUID] = ch.UUID
	out[kinds.MemberLastChanged] = utils.FormatTime(ch.LastChanged)
	out[kinds.MemberDeleted] = ch.Deleted
	return out
}

// RegisterKinds mounts the record routes of every registered kind on g.
func (h *Handlers) RegisterKinds(g gin.IRoutes) {
	for _, s := range kinds.All() {
		base := "/" + s.Path
		g.GET(base, h.ListRecords(s))
		g.POST(base, h.CreateRecord(s))
		g.GET(base+"/:uuid", h.GetRecord(s))
		g.PUT(base+"/:uuid", h.UpdateRecord(s))
		g.DELETE(base+"/:uuid", h.DeleteRecord(s))
	}
}

// ListRecords godoc
// @ID          listRecords
// @Summary     Pull changes of a kind
// @Description Returns every record and tombstone changed strictly after changedsince, oldest first.
// @Description Without changedsince the full feed is returned. Supports weak ETags via If-None-Match.
// @Tags        Records
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid        path    int     true   "Group ID"
// @Param       kind           path    string  true   "Kind collection"  Enums(categories, units, products, recipes, ingredients, tags, taggedproducts, lists, entries)
// @Param       changedsince   query   string  false  "ISO 8601 timestamp"  example(2024-05-01T12:00:00.000Z)
// @Param       If-None-Match  header  string  false  "Return 304 if the ETag matches"
//
// @Success     200  {array}   handlers.RecordJSON
// @Header      200  {string}  ETag  "Weak ETag of the feed"
// @Success     304  {string}  string  "Not Modified"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid changedsince"
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid token"
// @Failure     403  {object}  handlers.ErrorResponse  "Token for another group"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /groups/{groupid}/{kind} [get]
func (h *Handlers) ListRecords(s *kinds.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, valid := groupID(c)
		if !valid {
			return
		}
		since, err := changedSince(c)
		if err != nil {
			failErr(c, err)
			return
		}
		ctx := c.Request.Context()

		if h.stats != nil {
			if st, err := h.stats.KindChangeStats(ctx, gid, s.Kind); err == nil {
				etag := listETag(s.Kind, st, since)
				c.Header("ETag", etag)
				if etagMatches(c.GetHeader("If-None-Match"), etag) {
					c.Status(http.StatusNotModified)
					return
				}
			} else {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("change stats unavailable")
			}
		}

		changes, err := h.sync.List(ctx, gid, s.Kind, since)
		if err != nil {
			failErr(c, err)
			return
		}
		out := make([]RecordJSON, 0, len(changes))
		for _, ch := range changes {
			out = append(out, recordJSON(ch))
		}
		ok(c, http.StatusOK, out)
	}
}

// GetRecord godoc
// @ID          getRecord
// @Summary     Fetch one record
// @Tags        Records
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid  path  int     true  "Group ID"
// @Param       kind     path  string  true  "Kind collection"
// @Param       uuid     path  string  true  "Record UUID"  format(uuid)
//
// @Success     200  {object}  handlers.RecordJSON
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed UUID"
// @Failure     404  {object}  handlers.ErrorResponse  "Never existed"
// @Failure     410  {object}  handlers.ErrorResponse  "Deleted"
// @Router      /groups/{groupid}/{kind}/{uuid} [get]
func (h *Handlers) GetRecord(s *kinds.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, valid := groupID(c)
		if !valid {
			return
		}
		id, valid := pathUUID(c)
		if !valid {
			return
		}
		ch, err := h.sync.Get(c.Request.Context(), gid, s.Kind, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, recordJSON(ch))
	}
}

// CreateRecord godoc
// @ID          createRecord
// @Summary     Create a record
// @Description Creates a record with a client-chosen uuid. lastChanged defaults to the server time.
// @Description A retry carrying the same Idempotency-Key returns the stored outcome.
// @Tags        Records
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid          path    int     true   "Group ID"
// @Param       kind             path    string  true   "Kind collection"
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"
// @Param       body             body    handlers.RecordJSON  true  "Record"
//
// @Success     201  {object}  handlers.RecordJSON
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid data, uuid, date or reference"
// @Failure     409  {object}  handlers.ErrorResponse  "Identity exists or was deleted"
// @Failure     413  {object}  handlers.ErrorResponse  "Body too large"
// @Router      /groups/{groupid}/{kind} [post]
func (h *Handlers) CreateRecord(s *kinds.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, valid := groupID(c)
		if !valid {
			return
		}
		env, valid := decodeRecord(c, s)
		if !valid {
			return
		}
		if env.UUID == "" {
			fail(c, http.StatusBadRequest, ErrCodeInvalidUUID, "uuid is required")
			return
		}

		key, scope, keyed := h.idempotencyScope(c, gid)
		if replay, checked := middleware.IsReplay(c); keyed && (replay || !checked) && h.replay(c, s.Kind, scope, key, env.UUID) {
			return
		}

		ctx := c.Request.Context()
		ch, err := h.sync.Create(ctx, gid, s.Kind, services.RecordInput{
			UUID:        env.UUID,
			LastChanged: env.LastChanged,
			Patch:       env.Patch,
		})
		if err != nil {
			failErr(c, err)
			return
		}
		if keyed {
			err := h.idem.Put(ctx, scope, key, s.Kind, ch.UUID, http.StatusCreated)
			if err != nil && !errors.Is(err, repo.ErrDuplicate) {
				middleware.LoggerFrom(c).Warn().Err(err).Msg("store idempotency key")
			}
		}
		ok(c, http.StatusCreated, recordJSON(ch))
	}
}

// UpdateRecord godoc
// @ID          updateRecord
// @Summary     Update a record
// @Description Applies the supplied fields. A lastChanged older than the stored one is a conflict.
// @Tags        Records
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid  path  int     true  "Group ID"
// @Param       kind     path  string  true  "Kind collection"
// @Param       uuid     path  string  true  "Record UUID"  format(uuid)
// @Param       body     body  handlers.RecordJSON  true  "Changed fields"
//
// @Success     200  {object}  handlers.RecordJSON
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid data, uuid, date or reference"
// @Failure     404  {object}  handlers.ErrorResponse  "Never existed"
// @Failure     409  {object}  handlers.ErrorResponse  "Stale write"
// @Failure     410  {object}  handlers.ErrorResponse  "Deleted"
// @Router      /groups/{groupid}/{kind}/{uuid} [put]
func (h *Handlers) UpdateRecord(s *kinds.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, valid := groupID(c)
		if !valid {
			return
		}
		id, valid := pathUUID(c)
		if !valid {
			return
		}
		env, valid := decodeRecord(c, s)
		if !valid {
			return
		}
		if env.UUID != "" && env.UUID != id {
			fail(c, http.StatusBadRequest, ErrCodeInvalidUUID, "uuid does not match the path")
			return
		}
		ch, err := h.sync.Update(c.Request.Context(), gid, s.Kind, services.RecordInput{
			UUID:        id,
			LastChanged: env.LastChanged,
			Patch:       env.Patch,
		})
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, recordJSON(ch))
	}
}

// DeleteRecord godoc
// @ID          deleteRecord
// @Summary     Delete a record
// @Description Replaces the record with a permanent tombstone and returns it.
// @Tags        Records
// @Produce     json
// @Security    BearerAuth
//
// @Param       groupid  path  int     true  "Group ID"
// @Param       kind     path  string  true  "Kind collection"
// @Param       uuid     path  string  true  "Record UUID"  format(uuid)
//
// @Success     200  {object}  handlers.RecordJSON
// @Failure     404  {object}  handlers.ErrorResponse  "Never existed"
// @Failure     410  {object}  handlers.ErrorResponse  "Already deleted"
// @Router      /groups/{groupid}/{kind}/{uuid} [delete]
func (h *Handlers) DeleteRecord(s *kinds.Schema) gin.HandlerFunc {
	return func(c *gin.Context) {
		gid, valid := groupID(c)
		if !valid {
			return
		}
		id, valid := pathUUID(c)
		if !valid {
			return
		}
		ch, err := h.sync.Delete(c.Request.Context(), gid, s.Kind, id)
		if err != nil {
			failErr(c, err)
			return
		}
		ok(c, http.StatusOK, recordJSON(ch))
	}
}

// idempotencyScope returns the request's key and caller when replay is
// enabled and the request carried a key.
func (h *Handlers) idempotencyScope(c *gin.Context, gid uint64) (string, repo.IdempotencyScope, bool) {
	if h.idem == nil {
		return "", repo.IdempotencyScope{}, false
	}
	key, found := middleware.GetIdempotencyKey(c)
	if !found {
		return "", repo.IdempotencyScope{}, false
	}
	p, found := middleware.PrincipalFrom(c)
	if !found {
		return "", repo.IdempotencyScope{}, false
	}
	return key, repo.IdempotencyScope{GroupID: gid, DeviceID: p.DeviceID}, true
}

// replay answers the request from a stored outcome and reports whether it
// wrote a response.
func (h *Handlers) replay(c *gin.Context, kind domain.Kind, scope repo.IdempotencyScope, key, uuid string) bool {
	ctx := c.Request.Context()
	rec, err := h.idem.Get(ctx, scope, key, h.now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return false
	}
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
		return false
	}
	if rec.Kind != kind || rec.RecordUUID != uuid {
		fail(c, http.StatusConflict, ErrCodeConflict, "Idempotency-Key was used for another record")
		return true
	}
	ch, err := h.sync.Get(ctx, scope.GroupID, kind, rec.RecordUUID)
	if err != nil {
		failErr(c, err)
		return true
	}
	c.Header(HeaderIdempotencyReplayed, "true")
	ok(c, rec.Status, recordJSON(ch))
	return true
}

// decodeRecord binds the body as a JSON object and validates it against s.
func decodeRecord(c *gin.Context, s *kinds.Schema) (kinds.Envelope, bool) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil || body == nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return kinds.Envelope{}, false
		}
		fail(c, http.StatusBadRequest, ErrCodeInvalidData, "body must be a JSON object")
		return kinds.Envelope{}, false
	}
	env, err := s.Decode(body)
	if err != nil {
		failErr(c, err)
		return kinds.Envelope{}, false
	}
	return env, true
}

func pathUUID(c *gin.Context) (string, bool) {
	id, err := kinds.CanonicalUUID(c.Param("uuid"))
	if err != nil {
		failErr(c, err)
		return "", false
	}
	return id, true
}

// changedSince parses the optional changedsince query parameter. A "+" in
// an unescaped offset arrives as a space and is restored.
func changedSince(c *gin.Context) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query("changedsince"))
	if raw == "" {
		return nil, nil
	}
	ts, err := utils.ParseTime(strings.ReplaceAll(raw, " ", "+"))
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// listETag identifies a feed by its size, record revisions, newest change
// and the query. Tombstones only accumulate and every create or update adds
// to the record count or revision sum, so no two feed states share a tag.
func listETag(kind domain.Kind, st repo.ChangeStats, since *time.Time) string {
	var latest, from int64 = 0, -1
	if st.Latest != nil {
		latest = st.Latest.UnixMilli()
	}
	if since != nil {
		from = since.UnixMilli()
	}
	return `W/"` + string(kind) +
		":" + strconv.FormatInt(st.Records, 10) +
		":" + strconv.FormatInt(st.Tombstones, 10) +
		":" + strconv.FormatInt(st.Revisions, 10) +
		":" + strconv.FormatInt(latest, 10) +
		":" + strconv.FormatInt(from, 10) + `"`
}

// etagMatches applies the weak comparison of If-None-Match.
func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, tag := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(tag), "W/") == want {
			return true
		}
	}
	return false
}
