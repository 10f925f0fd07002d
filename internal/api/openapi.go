package api

import (
	"net/http"

	"github.com/mattjoyce/go2voice/internal/auth"
	"github.com/mattjoyce/go2voice/internal/intent"
)

type route struct {
	method  string
	path    string
	summary string
	scope   string
}

var routes = []route{
	{"get", "/healthz", "Liveness and executor state", ""},
	{"get", "/status", "Executor, posture and registry state", auth.ScopeStatusRO},
	{"get", "/history", "Recent dispatch decisions", auth.ScopeHistoryRO},
	{"get", "/events", "Server-sent dispatch and executor events", auth.ScopeEventsRO},
	{"get", "/metrics", "Prometheus metrics", auth.ScopeMetricsRO},
	{"post", "/utterances", "Dispatch a typed utterance", auth.ScopeDispatchRW},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the operator API.
func buildOpenAPIDoc(version string) map[string]any {
	paths := map[string]any{}
	for _, rt := range routes {
		op := map[string]any{
			"summary": rt.summary,
			"responses": map[string]any{
				"200": map[string]any{"description": "OK"},
			},
		}
		if rt.scope != "" {
			op["security"] = []any{map[string]any{"BearerAuth": []string{}}}
			op["x-required-scope"] = rt.scope
			op["responses"].(map[string]any)["401"] = map[string]any{"description": "Missing or invalid token"}
			op["responses"].(map[string]any)["403"] = map[string]any{"description": "Insufficient scope"}
		}
		if rt.path == "/utterances" {
			op["requestBody"] = map[string]any{
				"required": true,
				"content": map[string]any{
					"application/json": map[string]any{"schema": utteranceSchema()},
				},
			}
		}
		paths[rt.path] = map[string]any{rt.method: op}
	}

	if version == "" {
		version = "dev"
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "go2voice operator API",
			"version": version,
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{"type": "http", "scheme": "bearer"},
			},
			"schemas": map[string]any{
				"ActionCode": actionCodeSchema(),
			},
		},
	}
}

func utteranceSchema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"text"},
		"properties": map[string]any{
			"text": map[string]any{"type": "string", "description": "Korean utterance, e.g. 앉아"},
		},
	}
}

func actionCodeSchema() map[string]any {
	codes := intent.MenuCodes()
	enum := make([]int, 0, len(codes)+2)
	names := make([]string, 0, len(codes)+2)
	for _, c := range append(codes, intent.ActionQuit, intent.ActionGo) {
		enum = append(enum, int(c))
		names = append(names, c.String())
	}
	return map[string]any{
		"type":        "integer",
		"enum":        enum,
		"x-enumNames": names,
	}
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildOpenAPIDoc(s.deps.Version))
}
