package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/taskhub.json.
const wellKnownManifest = `{
  "name": "Taskhub",
  "description": "Personal and team task lists with one-time code sign-in",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "request_code": "/api/v1/auth/request-code",
    "verify_code": "/api/v1/auth/verify-code"
  },
  "endpoints": {
    "me": "/api/v1/auth/me",
    "todos": "/api/v1/todos",
    "teams": "/api/v1/teams",
    "team_members": "/api/v1/teams/{teamID}/members",
    "team_tasks": "/api/v1/teams/{teamID}/tasks"
  },
  "health": "/health",
  "metrics": "/metrics"
}`

// WellKnownHandler returns the static service manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
