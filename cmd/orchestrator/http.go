package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/aishacrm/orchestrator-core/internal/apperr"
	"github.com/aishacrm/orchestrator-core/internal/artifacts"
	"github.com/aishacrm/orchestrator-core/internal/auth"
	"github.com/aishacrm/orchestrator-core/internal/gateway"
	"github.com/aishacrm/orchestrator-core/internal/tenant"
)

// httpServer exposes the stable caller-facing surface: /ai/chat and
// /storage/artifacts. The telemetry observer's /events, /sse, /clear
// live on its own mux (observer.Mux()), mounted separately by serve.
type httpServer struct {
	router    *gateway.Router
	artifacts artifacts.Repository
	tenants   tenant.Resolver
}

func newHTTPServer(router *gateway.Router, repo artifacts.Repository, tenants tenant.Resolver) *httpServer {
	return &httpServer{router: router, artifacts: repo, tenants: tenants}
}

func (s *httpServer) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ai/chat", s.handleChat)
	mux.HandleFunc("/storage/artifacts", s.handleArtifacts)
	mux.HandleFunc("/storage/artifacts/", s.handleArtifactByID)
	return mux
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	ConversationID string        `json:"conversation_id"`
	TenantID       string        `json:"tenant_id"`
	Temperature    float64       `json:"temperature"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleChat implements POST /ai/chat. Only the trailing user message
// in the body is routed as the turn's utterance; prior messages are
// accepted for API compatibility but the router carries its own
// conversation state via goalStore, keyed by conversation_id.
func (s *httpServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.ConversationID) == "" || strings.TrimSpace(req.TenantID) == "" {
		writeError(w, http.StatusBadRequest, "conversation_id and tenant_id are required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must not be empty")
		return
	}

	t, err := resolveTenant(r.Context(), s.tenants, req.TenantID)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	resp, err := s.router.HandleTurn(r.Context(), gateway.ChatTurnRequest{
		ConversationID: req.ConversationID,
		TenantID:       t.UUID,
		UserText:       req.Messages[len(req.Messages)-1].Content,
		Caller:         auth.CallerIdentity{TenantUUID: t.UUID}.WithDefaultedRole(),
		Temperature:    req.Temperature,
	})
	if err != nil {
		writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Reply: resp.Reply})
}

// handleArtifacts implements POST and GET /storage/artifacts.
func (s *httpServer) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleArtifactPut(w, r)
	case http.MethodGet:
		s.handleArtifactList(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type artifactPutRequest struct {
	TenantID   string `json:"tenant_id"`
	Kind       string `json:"kind"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	MimeType   string `json:"mime_type"`
	Payload    []byte `json:"payload"` // base64 by encoding/json convention
}

type artifactPutResponse struct {
	ID        string `json:"id"`
	R2Key     string `json:"r2_key"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`
}

func (s *httpServer) handleArtifactPut(w http.ResponseWriter, r *http.Request) {
	var req artifactPutRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 32<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.Kind) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and kind are required")
		return
	}

	t, err := resolveTenant(r.Context(), s.tenants, req.TenantID)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	ref, err := s.artifacts.Put(r.Context(), t.UUID, req.Kind, req.EntityType, req.EntityID, req.Payload, artifacts.PutOptions{
		MimeType: req.MimeType,
	})
	if err != nil {
		writeTurnError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, artifactPutResponse{
		ID:        ref.ID,
		R2Key:     ref.R2Key,
		SizeBytes: ref.SizeBytes,
		SHA256:    ref.SHA256,
	})
}

func (s *httpServer) handleArtifactList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tenantID := q.Get("tenant_id")
	if strings.TrimSpace(tenantID) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	t, err := resolveTenant(r.Context(), s.tenants, tenantID)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	limit := 20
	if raw := q.Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}

	refs, err := s.artifacts.List(r.Context(), artifacts.Filter{
		TenantUUID: t.UUID,
		Kind:       q.Get("kind"),
		EntityID:   q.Get("entity_id"),
		Limit:      limit,
	})
	if err != nil {
		writeTurnError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

// handleArtifactByID implements GET /storage/artifacts/:id.
func (s *httpServer) handleArtifactByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/storage/artifacts/")
	if id == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	tenantID := r.URL.Query().Get("tenant_id")
	if strings.TrimSpace(tenantID) == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}

	t, err := resolveTenant(r.Context(), s.tenants, tenantID)
	if err != nil {
		writeTurnError(w, err)
		return
	}

	ref, body, err := s.artifacts.Get(r.Context(), id, t.UUID)
	if err != nil {
		writeTurnError(w, err)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Artifact-Mime-Type", ref.MimeType)
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ref)
}

// resolveTenant resolves identifier through tenants, tagging a not-found
// result with apperr.CodeTenantNotFound so writeTurnError maps it to 404
// instead of falling through to a generic 500.
func resolveTenant(ctx context.Context, tenants tenant.Resolver, identifier string) (tenant.Tenant, error) {
	t, err := tenants.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return tenant.Tenant{}, apperr.TenantNotFound(identifier)
		}
		return tenant.Tenant{}, err
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeTurnError maps an apperr.Error to an HTTP status without leaking
// internal details: validation/auth failures are 4xx, everything else is
// a generic 5xx, never the underlying error text.
func writeTurnError(w http.ResponseWriter, err error) {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation:
		writeError(w, http.StatusBadRequest, "invalid request")
	case apperr.CodeNotFound, apperr.CodeTenantNotFound:
		writeError(w, http.StatusNotFound, "not found")
	case apperr.CodeForbidden:
		writeError(w, http.StatusForbidden, "forbidden")
	case apperr.CodeUnauthorized:
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case apperr.CodeConflict:
		writeError(w, http.StatusConflict, "conflict")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
