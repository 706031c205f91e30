package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/fivehints/internal/engine"
	"github.com/playperu/fivehints/internal/fivehints"
)

// HealthResponse documents the /healthz body: one entry per dependency.
type HealthResponse map[string]struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
}

type (
	codePath    struct{ Code string `path:"code"` }
	idPath      struct{ ID string `path:"id"` }
	resolveArgs struct{ Token string `query:"token"` }
	dailyArgs   struct {
		Day string `path:"day"`
		AuthoringRequest
	}
)

type operation struct {
	method, path, summary, description string
	req                                any
	resp                               any
	status                             int
	errors                             []int
	contentType                        string
}

var operations = []operation{
	{method: http.MethodGet, path: "/healthz", summary: "Health check",
		description: "Returns the health status of backend dependencies.",
		resp:        HealthResponse{}, status: http.StatusOK, errors: []int{http.StatusServiceUnavailable}},

	{method: http.MethodPost, path: "/api/resolve", summary: "Resolve token",
		description: "Verifies a challenge token and returns its public view. The answer is never included.",
		req:         ResolveRequest{}, resp: fivehints.PublicChallenge{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/resolve", summary: "Resolve token (query)",
		description: "Same as POST /api/resolve with the token in the token query parameter.",
		req:         resolveArgs{}, resp: fivehints.PublicChallenge{}, status: http.StatusOK, errors: []int{http.StatusUnauthorized}},

	{method: http.MethodPost, path: "/api/guess", summary: "Check a guess",
		description: "Evaluates one guess against the token's protected answer. Send __reveal__ to obtain the answer after the last phase.",
		req:         fivehints.GuessCheck{}, resp: fivehints.Verdict{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusTooManyRequests}},
	{method: http.MethodPost, path: "/api/nudge", summary: "Phase 4 nudge",
		description: "Asks the content provider for a secondary hint tailored to the wrong guesses so far.",
		req:         fivehints.EnrichmentRequest{}, resp: fivehints.Nudge{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout}},
	{method: http.MethodPost, path: "/api/analysis", summary: "Phase 5 analysis",
		description: "Asks the content provider to score every wrong guess and summarize the player's thinking.",
		req:         fivehints.EnrichmentRequest{}, resp: fivehints.Analysis{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout}},

	{method: http.MethodPost, path: "/api/challenges", summary: "Create challenge",
		description: "Validates an authored challenge, mints a seven-day token and assigns a short code.",
		req:         AuthoringRequest{}, resp: CreateChallengeResponse{}, status: http.StatusCreated,
		errors: []int{http.StatusBadRequest, http.StatusTooManyRequests}},
	{method: http.MethodGet, path: "/api/c/{code}", summary: "Open short code",
		description: "Returns the token and public view behind a share code.",
		req:         codePath{}, resp: ShortCodeResponse{}, status: http.StatusOK, errors: []int{http.StatusNotFound, http.StatusUnauthorized}},
	{method: http.MethodGet, path: "/api/c/{code}/qr.png", summary: "Share QR code",
		description: "Renders the share URL of a code as a PNG QR code.",
		req:         codePath{}, status: http.StatusOK, contentType: "image/png", errors: []int{http.StatusNotFound}},
	{method: http.MethodGet, path: "/api/challenges/{id}/stats", summary: "Challenge stats",
		description: "Aggregates the guess log: players, guesses and solves per rank.",
		req:         idPath{}, resp: ChallengeStats{}, status: http.StatusOK},

	{method: http.MethodGet, path: "/api/daily", summary: "Today's challenge",
		description: "Returns the UTC day's scheduled challenge.",
		resp:        DailyResponse{}, status: http.StatusOK, errors: []int{http.StatusNotFound}},
	{method: http.MethodPut, path: "/api/admin/daily/{day}", summary: "Schedule daily challenge",
		description: "Mints a daily token for day (YYYY-MM-DD). Requires admin_session cookie.",
		req:         dailyArgs{}, resp: DailyResponse{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized}},

	{method: http.MethodPost, path: "/api/play/start", summary: "Start session",
		description: "Returns a fresh phase 1 session snapshot for the client to persist.",
		req:         PlayStartRequest{}, resp: PlayStartResponse{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/play/guess", summary: "Submit guess",
		description: "Applies one guess to the client's session snapshot and returns the updated snapshot.",
		req:         PlayGuessRequest{}, resp: engine.Outcome{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusTooManyRequests}},
	{method: http.MethodPost, path: "/api/play/confirm", summary: "Confirm suggestion",
		description: "Accepts or declines a pending did-you-mean suggestion.",
		req:         PlayConfirmRequest{}, resp: engine.Outcome{}, status: http.StatusOK,
		errors: []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict}},
	{method: http.MethodDelete, path: "/api/play/sessions/{id}", summary: "Abandon session",
		description: "Cancels in-flight enrichment; late results are discarded.",
		req:         idPath{}, resp: AbandonResponse{}, status: http.StatusOK},
	{method: http.MethodGet, path: "/api/play/sessions/{id}/events", summary: "Enrichment stream",
		description: "Server-Sent Events stream of nudge and analysis results for a session.",
		req:         idPath{}, status: http.StatusOK, contentType: "text/event-stream"},
	{method: http.MethodGet, path: "/api/play/sessions/{id}/ws", summary: "Enrichment socket",
		description: "WebSocket carrying the same events as the SSE stream.",
		req:         idPath{}, status: http.StatusSwitchingProtocols, contentType: "text/plain"},

	{method: http.MethodPost, path: "/api/admin/login", summary: "Admin login",
		description: "Authenticate with email and password. Sets admin_session cookie.",
		req:         AdminLoginRequest{}, resp: AdminMeResponse{}, status: http.StatusOK,
		errors: []int{http.StatusUnauthorized}},
	{method: http.MethodPost, path: "/api/admin/logout", summary: "Admin logout",
		description: "Clears admin session and cookie.", status: http.StatusNoContent},
	{method: http.MethodGet, path: "/api/admin/me", summary: "Current admin",
		description: "Returns the currently authenticated admin. Requires admin_session cookie.",
		resp:        AdminMeResponse{}, status: http.StatusOK, errors: []int{http.StatusUnauthorized}},
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Five Hints API"
	r.Spec.Info.Version = "1.0.0"
	r.Spec.Info.WithDescription("Backend API for the Five Hints guessing game.")

	for _, op := range operations {
		oc, err := r.NewOperationContext(op.method, op.path)
		if err != nil {
			continue
		}
		oc.SetSummary(op.summary)
		oc.SetDescription(op.description)
		if op.req != nil {
			oc.AddReqStructure(op.req)
		}
		if op.contentType != "" {
			oc.AddRespStructure(nil, openapi.WithHTTPStatus(op.status), openapi.WithContentType(op.contentType))
		} else {
			oc.AddRespStructure(op.resp, openapi.WithHTTPStatus(op.status))
		}
		for _, status := range op.errors {
			oc.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(status))
		}
		_ = r.AddOperation(oc)
	}

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
