package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/alecgard/taskhub/internal/apperr"
	"github.com/alecgard/taskhub/internal/auth"
	"github.com/alecgard/taskhub/internal/config"
	"github.com/alecgard/taskhub/internal/metrics"
	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/ratelimit"
	"github.com/alecgard/taskhub/internal/session"
	"github.com/alecgard/taskhub/internal/team"
	"github.com/alecgard/taskhub/internal/teamtask"
	"github.com/alecgard/taskhub/internal/todo"
	"github.com/alecgard/taskhub/internal/user"
	"github.com/alecgard/taskhub/internal/verify"
)

const (
	aliceToken = "thk_alice"
	goneToken  = "thk_gone"
	aliceID    = "11111111-1111-1111-1111-111111111111"
	teamID     = "22222222-2222-2222-2222-222222222222"
	taskID     = "33333333-3333-3333-3333-333333333333"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAuth struct {
	lastChannel notify.Channel
	lastValue   string
}

func (f *fakeAuth) Authenticate(_ context.Context, token string) (*user.User, error) {
	switch token {
	case aliceToken:
		return &user.User{ID: aliceID, Username: "alice"}, nil
	case goneToken:
		return nil, session.ErrUserNotFound
	}
	return nil, session.ErrInvalidToken
}

func (f *fakeAuth) RequestCode(_ context.Context, ch notify.Channel, value string) (*auth.CodeRequest, error) {
	f.lastChannel, f.lastValue = ch, value
	if value == "cooldown@example.com" {
		return nil, verify.ErrRateLimited.WithRetryAfter(41500 * time.Millisecond)
	}
	return &auth.CodeRequest{Message: "code sent", ExpiresInSeconds: 300, ChannelValue: value}, nil
}

func (f *fakeAuth) VerifyCode(_ context.Context, ch notify.Channel, value, code string) (*auth.Token, error) {
	if code != "123456" {
		return nil, verify.ErrInvalidCode.WithRemaining(2)
	}
	return &auth.Token{AccessToken: aliceToken, TokenType: "bearer", UserID: aliceID}, nil
}

func (f *fakeAuth) Logout(context.Context, string) (*auth.LogoutResult, error) {
	return &auth.LogoutResult{Revoked: true, Sessions: 1}, nil
}

func (f *fakeAuth) LogoutAll(context.Context, string) (*auth.LogoutResult, error) {
	return &auth.LogoutResult{Revoked: true, Sessions: 3}, nil
}

func (f *fakeAuth) CurrentUser(_ context.Context, id string) (*user.User, error) {
	return &user.User{ID: id, Username: "alice"}, nil
}

func (f *fakeAuth) UpdateUsername(_ context.Context, id, name string) (*user.User, error) {
	if name == "taken" {
		return nil, user.ErrUsernameTaken
	}
	return &user.User{ID: id, Username: name}, nil
}

func (f *fakeAuth) Stats(context.Context) (*auth.Stats, error) {
	return &auth.Stats{TotalUsers: 1, TokenMode: "opaque"}, nil
}

// fakeTeams records the arguments of the last call and returns err when set.
type fakeTeams struct {
	err  error
	args []string
}

func (f *fakeTeams) record(args ...string) { f.args = args }

func (f *fakeTeams) view(id string) *team.View {
	return &team.View{Team: team.Team{ID: id, Name: "core"}, Role: team.RoleOwner, MemberCount: 1}
}

func (f *fakeTeams) Create(_ context.Context, ownerID, name string, _ *string) (*team.View, error) {
	f.record(ownerID, name)
	if f.err != nil {
		return nil, f.err
	}
	return f.view(teamID), nil
}

func (f *fakeTeams) Get(_ context.Context, id, requester string) (*team.View, error) {
	f.record(id, requester)
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeTeams) ListForUser(_ context.Context, userID string) ([]*team.View, error) {
	f.record(userID)
	return nil, f.err
}

func (f *fakeTeams) Update(_ context.Context, id, caller string, in team.UpdateInput) (*team.View, error) {
	f.record(id, caller)
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeTeams) Delete(_ context.Context, id, caller string) error {
	f.record(id, caller)
	return f.err
}

func (f *fakeTeams) Invite(_ context.Context, id, inviter, target string) (*team.Member, error) {
	f.record(id, inviter, target)
	if f.err != nil {
		return nil, f.err
	}
	return &team.Member{UserID: target, Role: team.RoleMember}, nil
}

func (f *fakeTeams) UpdateMemberRole(_ context.Context, id, owner, target string, role team.Role) (*team.Member, error) {
	f.record(id, owner, target, string(role))
	if f.err != nil {
		return nil, f.err
	}
	return &team.Member{UserID: target, Role: role}, nil
}

func (f *fakeTeams) TransferOwnership(_ context.Context, id, owner, target string) (*team.View, error) {
	f.record(id, owner, target)
	if f.err != nil {
		return nil, f.err
	}
	return f.view(id), nil
}

func (f *fakeTeams) RemoveMember(_ context.Context, id, remover, target string) error {
	f.record(id, remover, target)
	return f.err
}

func (f *fakeTeams) ListMembers(_ context.Context, id, requester string) ([]*team.Member, error) {
	f.record(id, requester)
	return nil, f.err
}

type fakeTasks struct {
	err       error
	completed *bool
}

func (f *fakeTasks) Create(_ context.Context, tid, uid string, in teamtask.CreateInput) (*teamtask.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &teamtask.Task{ID: taskID, TeamID: tid, Title: in.Title, CreatedBy: uid}, nil
}

func (f *fakeTasks) List(context.Context, string, string) ([]*teamtask.Task, error) {
	return nil, f.err
}

func (f *fakeTasks) Get(_ context.Context, tid, id, _ string) (*teamtask.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &teamtask.Task{ID: id, TeamID: tid}, nil
}

func (f *fakeTasks) Update(_ context.Context, tid, id, _ string, _ teamtask.UpdateInput) (*teamtask.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &teamtask.Task{ID: id, TeamID: tid}, nil
}

func (f *fakeTasks) Delete(context.Context, string, string, string) error { return f.err }

func (f *fakeTasks) SetCompletion(_ context.Context, _, id, uid string, completed bool) (*teamtask.Aggregate, error) {
	f.completed = &completed
	if f.err != nil {
		return nil, f.err
	}
	return &teamtask.Aggregate{TaskID: id, UserID: uid, Completed: completed, CompletionsCount: 1, TeamMembersCount: 1, IsFullyCompleted: completed}, nil
}

func (f *fakeTasks) Completions(context.Context, string, string, string) ([]teamtask.Completion, error) {
	return nil, f.err
}

type fakeTodos struct {
	params todo.ListParams
}

func (f *fakeTodos) Create(_ context.Context, uid string, in todo.CreateInput) (*todo.Todo, error) {
	return &todo.Todo{ID: "t1", UserID: uid, Title: in.Title}, nil
}

func (f *fakeTodos) List(_ context.Context, _ string, p todo.ListParams) ([]*todo.Todo, error) {
	f.params = p
	return nil, nil
}

func (f *fakeTodos) Get(context.Context, string, string) (*todo.Todo, error) {
	return nil, todo.ErrNotFound
}

func (f *fakeTodos) Update(_ context.Context, uid, id string, _ todo.UpdateInput) (*todo.Todo, error) {
	return &todo.Todo{ID: id, UserID: uid}, nil
}

func (f *fakeTodos) Complete(_ context.Context, uid, id string) (*todo.Todo, error) {
	return &todo.Todo{ID: id, UserID: uid, Completed: true}, nil
}

func (f *fakeTodos) Delete(context.Context, string, string) error { return nil }

// fakePinger implements the Ping(ctx) method used by the health handler.
type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

type fixture struct {
	auth    *fakeAuth
	teams   *fakeTeams
	tasks   *fakeTasks
	todos   *fakeTodos
	handler http.Handler
}

func newFixture(t *testing.T, mutate ...func(*RouterDeps)) *fixture {
	t.Helper()
	f := &fixture{auth: &fakeAuth{}, teams: &fakeTeams{}, tasks: &fakeTasks{}, todos: &fakeTodos{}}
	deps := RouterDeps{
		Auth:           f.auth,
		Teams:          f.teams,
		Tasks:          f.tasks,
		Todos:          f.todos,
		AllowedOrigins: []string{"*"},
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.handler = NewRouter(deps)
	return f
}

func (f *fixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return env.Error
}

// ---------------------------------------------------------------------------
// Health and manifest
// ---------------------------------------------------------------------------

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		db         Pinger
		wantStatus int
		wantDB     string
	}{
		{"no database wired", nil, http.StatusOK, ""},
		{"database reachable", &fakePinger{}, http.StatusOK, "connected"},
		{"database down", &fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(d *RouterDeps) { d.DB = tt.db })
			rec := f.do(http.MethodGet, "/health", "", "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if body["database"] != tt.wantDB {
				t.Errorf("expected database=%q, got %q", tt.wantDB, body["database"])
			}
		})
	}
}

func TestWellKnownHandler_ViaRouter(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodGet, "/.well-known/taskhub.json", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 via router, got %d", rec.Code)
	}

	var manifest map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&manifest); err != nil {
		t.Fatalf("failed to decode manifest: %v", err)
	}
	for _, field := range []string{"name", "version", "api_base", "auth", "endpoints", "health"} {
		if _, ok := manifest[field]; !ok {
			t.Errorf("manifest missing required field %q", field)
		}
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name            string
		allowedOrigins  []string
		requestOrigin   string
		method          string
		wantStatus      int
		wantAllowOrigin string
	}{
		{"wildcard allows any origin", []string{"*"}, "https://example.com", http.MethodGet, http.StatusOK, "*"},
		{"specific origin is echoed back", []string{"https://app.example.com"}, "https://app.example.com", http.MethodGet, http.StatusOK, "https://app.example.com"},
		{"non-matching origin", []string{"https://app.example.com"}, "https://evil.com", http.MethodGet, http.StatusOK, ""},
		{"no origin header", []string{"*"}, "", http.MethodGet, http.StatusOK, ""},
		{"preflight returns 204", []string{"*"}, "https://example.com", http.MethodOptions, http.StatusNoContent, "*"},
		{"empty allowed origins list", nil, "https://example.com", http.MethodGet, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", nil)
			if tt.requestOrigin != "" {
				req.Header.Set("Origin", tt.requestOrigin)
			}
			rec := httptest.NewRecorder()
			corsMiddleware(tt.allowedOrigins)(inner).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllowOrigin {
				t.Errorf("expected Allow-Origin %q, got %q", tt.wantAllowOrigin, got)
			}
		})
	}
}

func TestSecureHeadersAndRequestID(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/health", "", "")
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected X-Content-Type-Options nosniff")
	}
	if id := rec.Header().Get("X-Request-ID"); len(id) != 32 {
		t.Errorf("expected generated 32-char request id, got %q", id)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("expected request id to be propagated, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// Error mapping
// ---------------------------------------------------------------------------

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantCode      string
		wantField     string
		wantRetry     string
		wantRemaining *int
	}{
		{"validation", team.ErrInvalidName, http.StatusBadRequest, "invalid_team_name", "name", "", nil},
		{"rate limited", verify.ErrRateLimited.WithRetryAfter(1500 * time.Millisecond), http.StatusTooManyRequests, "code_rate_limited", "", "2", nil},
		{"not found", teamtask.ErrTaskNotFound, http.StatusNotFound, "task_not_found", "", "", nil},
		{"expired", verify.ErrCodeExpired, http.StatusGone, "code_expired", "", "", nil},
		{"too many attempts", verify.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts", "", "", nil},
		{"invalid code", verify.ErrInvalidCode.WithRemaining(0), http.StatusBadRequest, "invalid_code", "", "", intPtr(0)},
		{"unauthorized", session.ErrTokenExpired, http.StatusUnauthorized, "token_expired", "", "", nil},
		{"forbidden", team.ErrForbidden, http.StatusForbidden, "forbidden", "", "", nil},
		{"conflict", team.ErrDuplicateName, http.StatusConflict, "duplicate_team_name", "name", "", nil},
		{"wrapped", fmt.Errorf("loading: %w", team.ErrTeamNotFound), http.StatusNotFound, "team_not_found", "", "", nil},
		{"unknown", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal_error", "", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			writeAppError(rec, req, tt.err)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if got := rec.Header().Get("Retry-After"); got != tt.wantRetry {
				t.Errorf("expected Retry-After %q, got %q", tt.wantRetry, got)
			}
			body := rec.Body.String()
			d := decodeError(t, rec)
			if d.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, d.Code)
			}
			if d.Field != tt.wantField {
				t.Errorf("expected field %q, got %q", tt.wantField, d.Field)
			}
			switch {
			case tt.wantRemaining == nil && d.RemainingAttempts != nil:
				t.Errorf("unexpected remaining_attempts %d", *d.RemainingAttempts)
			case tt.wantRemaining != nil && (d.RemainingAttempts == nil || *d.RemainingAttempts != *tt.wantRemaining):
				t.Errorf("expected remaining_attempts %d, got %v", *tt.wantRemaining, d.RemainingAttempts)
			}
			if strings.Contains(body, "connection reset") {
				t.Error("internal error details leaked to the client")
			}
		})
	}
}

func intPtr(n int) *int { return &n }

// ---------------------------------------------------------------------------
// Auth routes
// ---------------------------------------------------------------------------

func TestRequestCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/auth/request-code", "", `{"channel":"email","value":"a@example.com"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.auth.lastChannel != notify.ChannelEmail || f.auth.lastValue != "a@example.com" {
		t.Errorf("service got channel=%q value=%q", f.auth.lastChannel, f.auth.lastValue)
	}
	var res auth.CodeRequest
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ExpiresInSeconds != 300 || res.Code != "" {
		t.Errorf("unexpected response %+v", res)
	}
}

func TestRequestCode_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
		wantField  string
	}{
		{"malformed json", `{"channel":`, http.StatusBadRequest, "invalid_body", ""},
		{"missing channel", `{"value":"a@example.com"}`, http.StatusBadRequest, "validation_error", "channel"},
		{"unknown channel", `{"channel":"pigeon","value":"x"}`, http.StatusBadRequest, "validation_error", "channel"},
		{"missing value", `{"channel":"phone"}`, http.StatusBadRequest, "validation_error", "value"},
		{"cooldown", `{"channel":"email","value":"cooldown@example.com"}`, http.StatusTooManyRequests, "code_rate_limited", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPost, "/api/v1/auth/request-code", "", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			d := decodeError(t, rec)
			if d.Code != tt.wantCode || d.Field != tt.wantField {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantCode, tt.wantField, d.Code, d.Field)
			}
		})
	}

	f := newFixture(t)
	rec := f.do(http.MethodPost, "/api/v1/auth/request-code", "", `{"channel":"email","value":"cooldown@example.com"}`)
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Errorf("expected Retry-After 42, got %q", got)
	}
	if d := decodeError(t, rec); d.RetryAfter == nil || *d.RetryAfter != 42 {
		t.Errorf("expected retry_after 42 in body, got %v", d.RetryAfter)
	}
}

func TestVerifyCode(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPost, "/api/v1/auth/verify-code", "", `{"channel":"phone","value":"+7 900 123-45-67","code":"123456"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var tok auth.Token
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tok.AccessToken != aliceToken || tok.TokenType != "bearer" || tok.UserID != aliceID {
		t.Errorf("unexpected token %+v", tok)
	}

	rec = f.do(http.MethodPost, "/api/v1/auth/verify-code", "", `{"channel":"phone","value":"79001234567","code":"000000"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	d := decodeError(t, rec)
	if d.Code != "invalid_code" || d.RemainingAttempts == nil || *d.RemainingAttempts != 2 {
		t.Errorf("expected invalid_code with 2 remaining attempts, got %+v", d)
	}
}

func TestAuthenticatedRoutes_RejectBadTokensUniformly(t *testing.T) {
	f := newFixture(t)

	var bodies []string
	for _, token := range []string{"thk_unknown", goneToken} {
		rec := f.do(http.MethodGet, "/api/v1/auth/me", token, "")
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("token %q: expected 401, got %d", token, rec.Code)
		}
		if rec.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("token %q: expected WWW-Authenticate header", token)
		}
		bodies = append(bodies, rec.Body.String())
	}
	if bodies[0] != bodies[1] {
		t.Errorf("invalid and orphaned tokens must be indistinguishable:\n%s\n%s", bodies[0], bodies[1])
	}

	if rec := f.do(http.MethodGet, "/api/v1/teams", "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("missing token: expected 401, got %d", rec.Code)
	}
}

func TestMeAndLogout(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/auth/me", aliceToken, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"username":"alice"`) {
		t.Fatalf("me: got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPatch, "/api/v1/auth/me", aliceToken, `{"username":"taken"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for taken username, got %d", rec.Code)
	}
	if d := decodeError(t, rec); d.Field != "username" {
		t.Errorf("expected field username, got %q", d.Field)
	}

	rec = f.do(http.MethodPost, "/api/v1/auth/logout-all", aliceToken, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"sessions":3`) {
		t.Errorf("logout-all: got %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/v1/auth/stats", aliceToken, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"tokenMode":"opaque"`) {
		t.Errorf("stats: got %d %s", rec.Code, rec.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Todos
// ---------------------------------------------------------------------------

func TestTodosList_CompletedFilter(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/api/v1/todos?completed=false", aliceToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if f.todos.params.Completed == nil || *f.todos.params.Completed {
		t.Errorf("expected completed=false filter, got %v", f.todos.params.Completed)
	}
	if !strings.Contains(rec.Body.String(), `"todos":[]`) {
		t.Errorf("expected empty list rendered as [], got %s", rec.Body.String())
	}

	rec = f.do(http.MethodGet, "/api/v1/todos?completed=maybe", aliceToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad filter, got %d", rec.Code)
	}
}

func TestTodos_CRUD(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(http.MethodPost, "/api/v1/todos", aliceToken, `{"title":"buy milk"}`); rec.Code != http.StatusCreated {
		t.Errorf("create: expected 201, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/todos", aliceToken, `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("create without title: expected 400, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/todos/t1", aliceToken, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get: expected 404, got %d", rec.Code)
	}
	if rec := f.do(http.MethodPost, "/api/v1/todos/t1/complete", aliceToken, ""); rec.Code != http.StatusOK {
		t.Errorf("complete: expected 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodDelete, "/api/v1/todos/t1", aliceToken, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Teams
// ---------------------------------------------------------------------------

func TestTeams_PassCallerAndPathParams(t *testing.T) {
	f := newFixture(t)
	target := "44444444-4444-4444-4444-444444444444"

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantArgs   []string
	}{
		{"create", http.MethodPost, "/api/v1/teams", `{"name":"core"}`, http.StatusCreated, []string{aliceID, "core"}},
		{"get", http.MethodGet, "/api/v1/teams/" + teamID, "", http.StatusOK, []string{teamID, aliceID}},
		{"update", http.MethodPatch, "/api/v1/teams/" + teamID, `{"name":"ops"}`, http.StatusOK, []string{teamID, aliceID}},
		{"delete", http.MethodDelete, "/api/v1/teams/" + teamID, "", http.StatusNoContent, []string{teamID, aliceID}},
		{"invite", http.MethodPost, "/api/v1/teams/" + teamID + "/members", `{"userId":"` + target + `"}`, http.StatusCreated, []string{teamID, aliceID, target}},
		{"change role", http.MethodPatch, "/api/v1/teams/" + teamID + "/members/" + target, `{"role":"co_owner"}`, http.StatusOK, []string{teamID, aliceID, target, "co_owner"}},
		{"remove", http.MethodDelete, "/api/v1/teams/" + teamID + "/members/" + target, "", http.StatusNoContent, []string{teamID, aliceID, target}},
		{"transfer", http.MethodPost, "/api/v1/teams/" + teamID + "/owner", `{"userId":"` + target + `"}`, http.StatusOK, []string{teamID, aliceID, target}},
		{"members", http.MethodGet, "/api/v1/teams/" + teamID + "/members", "", http.StatusOK, []string{teamID, aliceID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(tt.method, tt.path, aliceToken, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if strings.Join(f.teams.args, ",") != strings.Join(tt.wantArgs, ",") {
				t.Errorf("expected args %v, got %v", tt.wantArgs, f.teams.args)
			}
		})
	}
}

func TestTeams_ServiceErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
	}{
		{team.ErrForbidden, http.StatusForbidden},
		{team.ErrTeamNotFound, http.StatusNotFound},
		{team.ErrAlreadyMember, http.StatusConflict},
		{team.ErrCannotRemoveSelf, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			f := newFixture(t)
			f.teams.err = tt.err
			rec := f.do(http.MethodPost, "/api/v1/teams/"+teamID+"/members", aliceToken, `{"userId":"x"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Team tasks
// ---------------------------------------------------------------------------

func TestTaskCompletion(t *testing.T) {
	f := newFixture(t)
	path := "/api/v1/teams/" + teamID + "/tasks/" + taskID + "/completion"

	rec := f.do(http.MethodPut, path, aliceToken, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing completed: expected 400, got %d", rec.Code)
	}
	if d := decodeError(t, rec); d.Field != "completed" {
		t.Errorf("expected field completed, got %q", d.Field)
	}

	rec = f.do(http.MethodPut, path, aliceToken, `{"completed":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if f.tasks.completed == nil || *f.tasks.completed {
		t.Errorf("expected completed=false to reach the service, got %v", f.tasks.completed)
	}

	rec = f.do(http.MethodPut, path, aliceToken, `{"completed":true}`)
	var agg teamtask.Aggregate
	if err := json.NewDecoder(rec.Body).Decode(&agg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !agg.IsFullyCompleted || agg.TaskID != taskID || agg.UserID != aliceID {
		t.Errorf("unexpected aggregate %+v", agg)
	}
}

func TestTasks_Routes(t *testing.T) {
	f := newFixture(t)
	base := "/api/v1/teams/" + teamID + "/tasks"

	if rec := f.do(http.MethodPost, base, aliceToken, `{"title":"ship it"}`); rec.Code != http.StatusCreated {
		t.Errorf("create: expected 201, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, base, aliceToken, ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"tasks":[]`) {
		t.Errorf("list: got %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(http.MethodGet, base+"/"+taskID+"/completions", aliceToken, ""); rec.Code != http.StatusOK {
		t.Errorf("completions: expected 200, got %d", rec.Code)
	}

	f.tasks.err = apperr.ErrForbidden
	if rec := f.do(http.MethodDelete, base+"/"+taskID, aliceToken, ""); rec.Code != http.StatusForbidden {
		t.Errorf("delete by non-member: expected 403, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Throttling and metrics
// ---------------------------------------------------------------------------

func TestPublicAuthRoutes_IPThrottle(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, func(d *RouterDeps) {
		d.AuthRateLimit = config.AuthRateLimitConfig{RequestsPerSecond: 1, Burst: 1}
		d.Metrics = m
	})

	body := `{"channel":"email","value":"a@example.com"}`
	if rec := f.do(http.MethodPost, "/api/v1/auth/request-code", "", body); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/v1/auth/request-code", "", body)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
	if got := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("ip")); got != 1 {
		t.Errorf("expected 1 ip rejection, got %v", got)
	}
}

func TestAuthenticatedRoutes_UserRateLimit(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, func(d *RouterDeps) {
		d.Limiter = ratelimit.New(1, time.Minute)
		d.Metrics = m
	})

	if rec := f.do(http.MethodGet, "/api/v1/teams", aliceToken, ""); rec.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/v1/teams", aliceToken, ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if got := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("user")); got != 1 {
		t.Errorf("expected 1 user rejection, got %v", got)
	}
}

func TestMetricsMiddleware_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	f := newFixture(t, func(d *RouterDeps) { d.Metrics = m })

	f.do(http.MethodGet, "/api/v1/teams/"+teamID, aliceToken, "")
	f.do(http.MethodGet, "/api/v1/teams/"+teamID+"/tasks/"+taskID, aliceToken, "")

	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/v1/teams/{teamID}/tasks/{taskID}", "200")); got != 1 {
		t.Errorf("expected 1 request under the task pattern, got %v", got)
	}

	rec := f.do(http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "taskhub_http_requests_total") {
		t.Errorf("expected exposition output, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), teamID) {
		t.Error("raw path parameters must not appear in metric labels")
	}
}
