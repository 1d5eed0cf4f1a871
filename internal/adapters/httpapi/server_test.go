package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rentalcore/internal/blob"
	"rentalcore/internal/core"
	"rentalcore/internal/hub"
	"rentalcore/internal/identity"
	"rentalcore/internal/infra/blob/memory"
	"rentalcore/pkg/domain"
)

type fixture struct {
	srv    *httptest.Server
	svc    *core.Service
	hub    *hub.Hub
	tokens *identity.Tokens
	files  *memory.Store
	lord   string
	tenant string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	files := memory.New()
	svc := core.NewInMemoryService(nil, core.WithAssetStore(blob.NewAssets(files, blob.WithBaseURL("/assets"))))
	h := hub.New(svc.Store())
	t.Cleanup(h.Close)
	tokens, err := identity.NewTokens([]byte("test-signing-key"), time.Hour)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	ctx := context.Background()
	for _, u := range []domain.User{
		{Base: domain.Base{ID: "lord"}, Email: "lord@example.com", DisplayName: "Lord", Role: domain.RoleLandlord},
		{Base: domain.Base{ID: "tess"}, Email: "tess@example.com", DisplayName: "Tess", Role: domain.RoleTenant},
	} {
		if _, _, err := svc.RegisterUser(ctx, u); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	f := &fixture{svc: svc, hub: h, tokens: tokens, files: files}
	f.lord = f.token(t, "lord", domain.RoleLandlord)
	f.tenant = f.token(t, "tess", domain.RoleTenant)
	f.srv = httptest.NewServer(New(svc, h, tokens, WithAssetFiles(files), WithHeartbeat(50*time.Millisecond)).Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) token(t *testing.T, id string, role domain.Role) string {
	t.Helper()
	tok, err := f.tokens.Issue(domain.Session{UserID: id, Role: role})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func (f *fixture) createProperty(t *testing.T, title string) string {
	t.Helper()
	status, body := f.do(t, http.MethodPost, "/api/properties", f.lord, map[string]any{
		"title": title, "price": 1200, "address": "1 Main St", "features": []string{" garden ", ""},
	})
	if status != http.StatusCreated {
		t.Fatalf("create property: %d %v", status, body)
	}
	return body["id"].(string)
}

func TestAuthentication(t *testing.T) {
	f := newFixture(t)
	if status, _ := f.do(t, http.MethodGet, "/api/session", "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/session", "not-a-jwt", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", status)
	}
	status, body := f.do(t, http.MethodGet, "/api/session", f.tenant, nil)
	if status != http.StatusOK {
		t.Fatalf("session: %d %v", status, body)
	}
	session := body["session"].(map[string]any)
	if session["userId"] != "tess" || session["role"] != "tenant" {
		t.Fatalf("unexpected session %v", session)
	}

	status, body = f.do(t, http.MethodPost, "/auth/register", "", map[string]any{"email": "new@example.com", "role": "landlord"})
	if status != http.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}
	token, _ := body["token"].(string)
	if status, _ := f.do(t, http.MethodGet, "/api/session", token, nil); status != http.StatusOK {
		t.Fatalf("registered token rejected: %d", status)
	}
	if status, body := f.do(t, http.MethodPost, "/auth/register", "", map[string]any{"email": "x@example.com", "role": "admin"}); status != http.StatusUnprocessableEntity || body["kind"] != "constraint_violation" {
		t.Fatalf("expected invalid role rejection, got %d %v", status, body)
	}
}

func TestRequestWorkflowOverHTTP(t *testing.T) {
	f := newFixture(t)
	pid := f.createProperty(t, "Loft")

	status, body := f.do(t, http.MethodPost, "/api/properties/"+pid+"/requests", f.tenant, map[string]any{})
	if status != http.StatusCreated || body["message"] != domain.DefaultRequestMessage {
		t.Fatalf("submit: %d %v", status, body)
	}
	rid := body["id"].(string)
	status, body = f.do(t, http.MethodPost, "/api/properties/"+pid+"/requests", f.tenant, map[string]any{"message": "again"})
	if status != http.StatusConflict || body["kind"] != "duplicate_request" {
		t.Fatalf("expected duplicate conflict, got %d %v", status, body)
	}

	status, body = f.do(t, http.MethodPost, "/api/requests/"+rid+"/decision", f.lord, map[string]any{"decision": "approved"})
	if status != http.StatusOK || body["status"] != "approved" {
		t.Fatalf("decide: %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPost, "/api/requests/"+rid+"/decision", f.lord, map[string]any{"decision": "denied"})
	if status != http.StatusConflict || body["notice"] != "this request was already decided" {
		t.Fatalf("expected invalid transition, got %d %v", status, body)
	}
	if status, _ := f.do(t, http.MethodDelete, "/api/requests/"+rid, f.tenant, nil); status != http.StatusConflict {
		t.Fatalf("withdrawing a decided request should conflict, got %d", status)
	}
}

func TestRoleEnforcement(t *testing.T) {
	f := newFixture(t)
	pid := f.createProperty(t, "Loft")
	if status, body := f.do(t, http.MethodPost, "/api/properties", f.tenant, map[string]any{"title": "x", "price": 1}); status != http.StatusForbidden || body["kind"] != "forbidden" {
		t.Fatalf("tenant create: %d %v", status, body)
	}
	if status, _ := f.do(t, http.MethodPost, "/api/properties/"+pid+"/shortlist", f.lord, nil); status != http.StatusForbidden {
		t.Fatalf("landlord shortlist: %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/views/listings", f.lord, nil); status != http.StatusForbidden {
		t.Fatalf("landlord listings view: %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/views/unknown", f.lord, nil); status != http.StatusNotFound {
		t.Fatalf("unknown view: %d", status)
	}
	if status, body := f.do(t, http.MethodPatch, "/api/properties/"+pid, f.lord, map[string]any{"landlordId": "someone"}); status != http.StatusUnprocessableEntity {
		t.Fatalf("immutable patch: %d %v", status, body)
	}
	if status, _ := f.do(t, http.MethodPatch, "/api/properties/"+pid, f.lord, map[string]any{"bogus": 1}); status != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", status)
	}
}

func TestPropertyLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	pid := f.createProperty(t, "Loft")

	status, body := f.do(t, http.MethodPatch, "/api/properties/"+pid, f.lord, map[string]any{"title": "Sunny Loft"})
	if status != http.StatusOK || body["title"] != "Sunny Loft" {
		t.Fatalf("patch: %d %v", status, body)
	}
	status, body = f.do(t, http.MethodPost, "/api/properties/"+pid+"/listed/toggle", f.lord, nil)
	if status != http.StatusOK || body["isListed"] != false {
		t.Fatalf("toggle: %d %v", status, body)
	}
	if status, body := f.do(t, http.MethodGet, "/api/properties/"+pid, f.tenant, nil); status != http.StatusConflict || body["kind"] != "not_listed" {
		t.Fatalf("tenant detail of unlisted: %d %v", status, body)
	}
	if status, _ := f.do(t, http.MethodPut, "/api/properties/"+pid+"/listed", f.lord, map[string]any{}); status != http.StatusBadRequest {
		t.Fatalf("missing isListed: %d", status)
	}
	status, body = f.do(t, http.MethodPut, "/api/properties/"+pid+"/listed", f.lord, map[string]any{"isListed": true})
	if status != http.StatusOK || body["isListed"] != true {
		t.Fatalf("set listed: %d %v", status, body)
	}

	status, body = f.do(t, http.MethodPost, "/api/properties/"+pid+"/shortlist", f.tenant, nil)
	if status != http.StatusOK || body["state"] != "added" {
		t.Fatalf("shortlist: %d %v", status, body)
	}
	status, body = f.do(t, http.MethodGet, "/api/properties/"+pid, f.tenant, nil)
	if status != http.StatusOK || body["isShortlisted"] != true || body["isOwner"] != false {
		t.Fatalf("detail: %d %v", status, body)
	}

	status, body = f.do(t, http.MethodGet, "/api/search?q=sun", f.tenant, nil)
	if status != http.StatusOK || len(body["properties"].([]any)) != 1 {
		t.Fatalf("search: %d %v", status, body)
	}
	status, body = f.do(t, http.MethodGet, "/api/search?q=su", f.lord, nil)
	if status != http.StatusOK || len(body["properties"].([]any)) != 0 {
		t.Fatalf("short landlord search: %d %v", status, body)
	}

	if status, _ := f.do(t, http.MethodDelete, "/api/properties/"+pid, f.lord, nil); status != http.StatusNoContent {
		t.Fatalf("delete: %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/properties/"+pid, f.lord, nil); status != http.StatusNotFound {
		t.Fatalf("detail after delete: %d", status)
	}
}

func TestImageUploadAndAssetServing(t *testing.T) {
	f := newFixture(t)
	pid := f.createProperty(t, "Loft")
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/api/properties/"+pid+"/images", strings.NewReader("\x89PNG fake"))
	req.Header.Set("Authorization", "Bearer "+f.lord)
	req.Header.Set("Content-Type", "image/png")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	var prop domain.Property
	_ = json.NewDecoder(resp.Body).Decode(&prop)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || len(prop.Images) != 1 || !strings.HasPrefix(prop.Images[0], "/assets/property_images/") {
		t.Fatalf("unexpected upload response %d %+v", resp.StatusCode, prop)
	}

	resp, err = http.Get(f.srv.URL + prop.Images[0])
	if err != nil {
		t.Fatalf("fetch asset: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "\x89PNG fake" || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("asset: %d %q %s", resp.StatusCode, data, resp.Header.Get("Content-Type"))
	}
	if resp, err := http.Get(f.srv.URL + "/assets/property_images/missing"); err != nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing asset: %v %v", err, resp)
	}
}

func TestViewSnapshot(t *testing.T) {
	f := newFixture(t)
	pid := f.createProperty(t, "Loft")
	status, body := f.do(t, http.MethodGet, "/api/views/listings", f.tenant, nil)
	if status != http.StatusOK || body["view"] != "listings" {
		t.Fatalf("view: %d %v", status, body)
	}
	props := body["properties"].([]any)
	if len(props) != 1 || props[0].(map[string]any)["property"].(map[string]any)["id"] != pid {
		t.Fatalf("unexpected listings %v", props)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/views/property-requests", f.lord, nil); status != http.StatusForbidden {
		t.Fatalf("property-requests without propertyId: %d", status)
	}
	if status, _ := f.do(t, http.MethodGet, "/api/views/property-requests?propertyId="+pid, f.lord, nil); status != http.StatusOK {
		t.Fatalf("property-requests: %d", status)
	}
	waitForSubscriptions(t, f.hub, 0)
}

func TestViewStream(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/views/my-properties?access_token="+f.lord, nil)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	events := make(chan viewPayload, 8)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			line := sc.Text()
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var p viewPayload
				if json.Unmarshal([]byte(data), &p) == nil {
					events <- p
				}
			}
		}
	}()
	next := func() viewPayload {
		t.Helper()
		select {
		case p, ok := <-events:
			if !ok {
				t.Fatalf("stream ended")
			}
			return p
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event")
		}
		return viewPayload{}
	}
	if first := next(); first.View != "my-properties" || len(first.Properties) != 0 {
		t.Fatalf("unexpected first event %+v", first)
	}
	f.createProperty(t, "Loft")
	for {
		p := next()
		if len(p.Properties) == 1 {
			if p.Properties[0].Property.Title != "Loft" {
				t.Fatalf("unexpected property %+v", p.Properties[0])
			}
			break
		}
	}
	if got := f.hub.Stats().Subscriptions; got != 1 {
		t.Fatalf("expected one live subscription, got %d", got)
	}
	cancel()
	waitForSubscriptions(t, f.hub, 0)
}

func waitForSubscriptions(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Stats().Subscriptions != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d subscriptions, have %d", want, h.Stats().Subscriptions)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindNotFound:            http.StatusNotFound,
		domain.KindForbidden:           http.StatusForbidden,
		domain.KindInvalidTransition:   http.StatusConflict,
		domain.KindConstraintViolation: http.StatusUnprocessableEntity,
		domain.KindNotListed:           http.StatusConflict,
		domain.KindDuplicateRequest:    http.StatusConflict,
		domain.KindUpstreamUnavailable: http.StatusServiceUnavailable,
		"":                             http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Fatalf("%q: expected %d, got %d", kind, want, got)
		}
	}
}
