package handlers

import (
	"net/http"
	"net/url"
	"strings"
	"testing"
)

const (
	unitID    = "0b6f3fb2-0f5e-4c1e-9d1f-6a0a3a3c9a11"
	productID = "6f9619ff-8b86-4d11-b42d-00c04fc964ff"
	missingID = "9a3e2b1c-4d5f-4a6b-8c7d-0e1f2a3b4c5d"
)

func TestRecordLifecycle(t *testing.T) {
	env := newTestEnv(t)
	s := env.pair(t)
	auth := s.bearer

	w := env.do(t, http.MethodPost, s.path("/units"), map[string]any{
		"uuid": strings.ToUpper(unitID), "name": "  kg ", "lastChanged": "2024-05-01T12:00:00.000Z",
	}, auth)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", w.Code, w.Body.String())
	}
	var rec map[string]any
	mustDecode(t, w, &rec)
	if rec["uuid"] != unitID || rec["name"] != "kg" || rec["deleted"] != false || rec["lastChanged"] != "2024-05-01T12:00:00.000Z" {
		t.Fatalf("created = %v", rec)
	}

	steps := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"duplicate create", http.MethodPost, "/units", map[string]any{"uuid": unitID, "name": "g"}, http.StatusConflict, ErrCodeConflict},
		{"get", http.MethodGet, "/units/" + unitID, nil, http.StatusOK, ""},
		{"update", http.MethodPut, "/units/" + unitID, map[string]any{"name": "kilogram", "lastChanged": "2024-05-01T13:00:00.000Z"}, http.StatusOK, ""},
		{"same time update", http.MethodPut, "/units/" + unitID, map[string]any{"name": "Kilogram", "lastChanged": "2024-05-01T13:00:00.000Z"}, http.StatusOK, ""},
		{"stale update", http.MethodPut, "/units/" + unitID, map[string]any{"name": "old", "lastChanged": "2024-05-01T11:00:00.000Z"}, http.StatusConflict, ErrCodeConflict},
		{"uuid mismatch", http.MethodPut, "/units/" + unitID, map[string]any{"uuid": missingID, "name": "x"}, http.StatusBadRequest, ErrCodeInvalidUUID},
		{"update unknown", http.MethodPut, "/units/" + missingID, map[string]any{"name": "x"}, http.StatusNotFound, ErrCodeNotFound},
		{"get unknown", http.MethodGet, "/units/" + missingID, nil, http.StatusNotFound, ErrCodeNotFound},
		{"delete unknown", http.MethodDelete, "/units/" + missingID, nil, http.StatusNotFound, ErrCodeNotFound},
		{"delete", http.MethodDelete, "/units/" + unitID, nil, http.StatusOK, ""},
		{"get deleted", http.MethodGet, "/units/" + unitID, nil, http.StatusGone, ErrCodeGone},
		{"delete again", http.MethodDelete, "/units/" + unitID, nil, http.StatusGone, ErrCodeGone},
		{"update deleted", http.MethodPut, "/units/" + unitID, map[string]any{"name": "x"}, http.StatusGone, ErrCodeGone},
		{"recreate deleted", http.MethodPost, "/units", map[string]any{"uuid": unitID, "name": "kg"}, http.StatusConflict, ErrCodeConflict},
		{"malformed uuid", http.MethodGet, "/units/not-a-uuid", nil, http.StatusBadRequest, ErrCodeInvalidUUID},
	}
	for _, st := range steps {
		w := env.do(t, st.method, s.path(st.path), st.body, auth)
		if w.Code != st.status {
			t.Fatalf("%s: status %d, want %d (%s)", st.name, w.Code, st.status, w.Body.String())
		}
		if st.code != "" && errorCode(t, w) != st.code {
			t.Fatalf("%s: code %s, want %s", st.name, w.Body.String(), st.code)
		}
		if st.name == "same time update" {
			rec = nil
			mustDecode(t, w, &rec)
			if rec["name"] != "Kilogram" {
				t.Fatalf("equal timestamp must win: %v", rec)
			}
		}
		if st.name == "delete" {
			rec = nil
			mustDecode(t, w, &rec)
			if rec["deleted"] != true || rec["uuid"] != unitID || rec["name"] != nil {
				t.Fatalf("tombstone body = %v", rec)
			}
		}
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	s := env.pair(t)

	w := env.do(t, http.MethodPost, s.path("/units"), map[string]any{"uuid": unitID, "name": "kg"}, s.bearer)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed unit: %d %s", w.Code, w.Body.String())
	}

	cases := []struct {
		name string
		body any
		code string
	}{
		{"missing name", map[string]any{"uuid": productID}, ErrCodeInvalidData},
		{"empty name", map[string]any{"uuid": productID, "name": "  "}, ErrCodeInvalidData},
		{"amount below minimum", map[string]any{"uuid": productID, "name": "Milk", "defaultAmount": 0}, ErrCodeInvalidData},
		{"wrong type", map[string]any{"uuid": productID, "name": 12}, ErrCodeInvalidData},
		{"unknown field", map[string]any{"uuid": productID, "name": "Milk", "colour": "white"}, ErrCodeInvalidData},
		{"deleted flag", map[string]any{"uuid": productID, "name": "Milk", "deleted": true}, ErrCodeInvalidData},
		{"missing uuid", map[string]any{"name": "Milk"}, ErrCodeInvalidUUID},
		{"malformed uuid", map[string]any{"uuid": "nope", "name": "Milk"}, ErrCodeInvalidUUID},
		{"malformed reference", map[string]any{"uuid": productID, "name": "Milk", "unitUUID": "nope"}, ErrCodeInvalidUUID},
		{"dangling reference", map[string]any{"uuid": productID, "name": "Milk", "unitUUID": missingID}, ErrCodeUnresolvedReference},
		{"future lastChanged", map[string]any{"uuid": productID, "name": "Milk", "lastChanged": "2999-01-01T00:00:00.000Z"}, ErrCodeInvalidDate},
		{"bad lastChanged", map[string]any{"uuid": productID, "name": "Milk", "lastChanged": "yesterday"}, ErrCodeInvalidDate},
		{"not an object", `[1,2]`, ErrCodeInvalidData},
		{"null body", `null`, ErrCodeInvalidData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, s.path("/products"), tc.body, s.bearer)
			if w.Code != http.StatusBadRequest || errorCode(t, w) != tc.code {
				t.Fatalf("got %d %s, want 400 %s", w.Code, w.Body.String(), tc.code)
			}
		})
	}

	w = env.do(t, http.MethodPost, s.path("/products"), map[string]any{
		"uuid": productID, "name": "Milk", "unitUUID": unitID,
	}, s.bearer)
	if w.Code != http.StatusCreated {
		t.Fatalf("valid product: %d %s", w.Code, w.Body.String())
	}
	var rec map[string]any
	mustDecode(t, w, &rec)
	if rec["defaultAmount"] != 1.0 || rec["stepAmount"] != 1.0 || rec["unitUUID"] != unitID {
		t.Fatalf("defaults not applied: %v", rec)
	}

	w = env.do(t, http.MethodPut, s.path("/products/"+productID), map[string]any{"removeUnit": true}, s.bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("remove unit: %d %s", w.Code, w.Body.String())
	}
	rec = nil
	mustDecode(t, w, &rec)
	if _, has := rec["unitUUID"]; has {
		t.Fatalf("unit not cleared: %v", rec)
	}
}

func TestListChangesAndETag(t *testing.T) {
	env := newTestEnv(t)
	s := env.pair(t)

	for i, ts := range []string{"2024-05-01T12:00:00.000Z", "2024-05-01T12:00:01.000Z"} {
		id := []string{unitID, missingID}[i]
		w := env.do(t, http.MethodPost, s.path("/tags"), map[string]any{"uuid": id, "name": "t", "lastChanged": ts}, s.bearer)
		if w.Code != http.StatusCreated {
			t.Fatalf("seed %d: %d %s", i, w.Code, w.Body.String())
		}
	}

	list := func(query string, hdr map[string]string) ([]map[string]any, string, int) {
		t.Helper()
		w := env.do(t, http.MethodGet, s.path("/tags"+query), nil, hdr)
		var out []map[string]any
		if w.Code == http.StatusOK {
			mustDecode(t, w, &out)
		}
		return out, w.Header().Get("ETag"), w.Code
	}

	all, etag, code := list("", s.bearer)
	if code != http.StatusOK || len(all) != 2 || all[0]["uuid"] != unitID || all[1]["uuid"] != missingID {
		t.Fatalf("full pull = %d %v", code, all)
	}
	if !strings.HasPrefix(etag, `W/"`) {
		t.Fatalf("etag = %q", etag)
	}

	since := "?changedsince=" + url.QueryEscape("2024-05-01T12:00:00.000Z")
	if got, _, _ := list(since, s.bearer); len(got) != 1 || got[0]["uuid"] != missingID {
		t.Fatalf("incremental pull = %v", got)
	}
	// An unescaped "+" in the offset arrives as a space.
	if got, _, code := list("?changedsince=2024-05-01T14:00:00.000+02:00", s.bearer); code != http.StatusOK || len(got) != 1 {
		t.Fatalf("offset pull = %d %v", code, got)
	}
	if _, _, code := list("?changedsince=garbage", s.bearer); code != http.StatusBadRequest {
		t.Fatalf("bad changedsince = %d", code)
	}

	if _, _, code := list("", with(s.bearer, "If-None-Match", etag)); code != http.StatusNotModified {
		t.Fatalf("conditional pull = %d", code)
	}

	// Updating the older record leaves the counts and newest change time as
	// they were; the tag must still move.
	w := env.do(t, http.MethodPut, s.path("/tags/"+unitID), map[string]any{"name": "renamed", "lastChanged": "2024-05-01T12:00:00.500Z"}, s.bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("update older: %d %s", w.Code, w.Body.String())
	}
	all, etagUpd, code := list("", with(s.bearer, "If-None-Match", etag))
	if code != http.StatusOK || etagUpd == etag || all[0]["name"] != "renamed" {
		t.Fatalf("etag not refreshed after older update: %d %q %v", code, etagUpd, all)
	}
	// Same again with an equal change time.
	w = env.do(t, http.MethodPut, s.path("/tags/"+unitID), map[string]any{"name": "again", "lastChanged": "2024-05-01T12:00:00.500Z"}, s.bearer)
	if w.Code != http.StatusOK {
		t.Fatalf("update equal: %d %s", w.Code, w.Body.String())
	}
	if _, etagEq, code := list("", with(s.bearer, "If-None-Match", etagUpd)); code != http.StatusOK || etagEq == etagUpd {
		t.Fatalf("etag not refreshed after equal-time update: %d %q", code, etagEq)
	}
	etag = etagUpd

	if w := env.do(t, http.MethodDelete, s.path("/tags/"+unitID), nil, s.bearer); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	all, etag2, code := list("", with(s.bearer, "If-None-Match", etag))
	if code != http.StatusOK || etag2 == etag {
		t.Fatalf("etag not refreshed after delete: %d %q", code, etag2)
	}
	if len(all) != 2 || all[1]["uuid"] != unitID || all[1]["deleted"] != true {
		t.Fatalf("tombstone missing from feed: %v", all)
	}

	if _, _, code := list("", nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous pull = %d", code)
	}
}

func TestIdempotentCreate(t *testing.T) {
	env := newTestEnv(t)
	s := env.pair(t)
	keyed := with(s.bearer, "Idempotency-Key", "create-unit-1")
	body := map[string]any{"uuid": unitID, "name": "kg"}

	first := env.do(t, http.MethodPost, s.path("/units"), body, keyed)
	if first.Code != http.StatusCreated {
		t.Fatalf("first: %d %s", first.Code, first.Body.String())
	}
	// The middleware already found the key unused.
	if env.idemGets != 0 {
		t.Fatalf("fresh key looked up again by the handler: %d", env.idemGets)
	}
	again := env.do(t, http.MethodPost, s.path("/units"), body, keyed)
	if again.Code != http.StatusCreated || again.Header().Get(HeaderIdempotencyReplayed) != "true" {
		t.Fatalf("replay: %d %s", again.Code, again.Body.String())
	}
	if first.Body.String() != again.Body.String() {
		t.Fatalf("replay body differs:\n%s\n%s", first.Body.String(), again.Body.String())
	}

	other := env.do(t, http.MethodPost, s.path("/units"), map[string]any{"uuid": productID, "name": "g"}, keyed)
	if other.Code != http.StatusConflict {
		t.Fatalf("key reuse for another record: %d", other.Code)
	}
	if w := env.do(t, http.MethodPost, s.path("/units"), body, s.bearer); w.Code != http.StatusConflict {
		t.Fatalf("unkeyed duplicate: %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, s.path("/units"), body, with(s.bearer, "Idempotency-Key", "bad key")); w.Code != http.StatusBadRequest {
		t.Fatalf("malformed key: %d", w.Code)
	}
}
