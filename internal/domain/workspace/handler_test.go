package workspace

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medex/medex/internal/domain/extraction"
	"github.com/medex/medex/internal/domain/result"
	"github.com/medex/medex/internal/platform/auth"
)

const flatPayload = `{
  "disorders": [{"text": "hypertension", "cui": "C0020538", "context": "history of hypertension"}],
  "medications": [{"text": "lisinopril", "cui": "C0065374", "context": "taking lisinopril"}]
}`

const sourceText = "History of hypertension, taking lisinopril daily."

func seededHandler(t *testing.T, userID uuid.UUID) *Handler {
	t.Helper()
	res, err := result.ParsePayload(result.KindFlat, json.RawMessage(flatPayload))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	sessions := extraction.NewSessionStore()
	sessions.Replace(userID.String(), res, sourceText)
	return NewHandler(sessions)
}

func requestContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder, userID uuid.UUID) echo.Context {
	c := e.NewContext(req, rec)
	c.Set(string(auth.UserIDKey), userID.String())
	return c
}

func TestAnnotate(t *testing.T) {
	userID := uuid.New()
	h := seededHandler(t, userID)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/annotate", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)

	if err := h.Annotate(c); err != nil {
		t.Fatalf("Annotate handler error: %v", err)
	}

	var resp AnnotateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Annotated {
		t.Error("expected annotated view")
	}
	if !strings.Contains(resp.HTML, "hypertension") {
		t.Error("expected located mention in HTML")
	}

	var rebuilt strings.Builder
	for _, seg := range resp.Segments {
		rebuilt.WriteString(seg.Text)
	}
	if rebuilt.String() != sourceText {
		t.Errorf("segments do not reproduce source text: %q", rebuilt.String())
	}
}

func TestAnnotate_NoSession(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/annotate", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, uuid.New())

	err := h.Annotate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Errorf("expected 404 without a session, got %v", err)
	}
}

func TestAnnotate_Unauthenticated(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/annotate", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Annotate(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestAnnotateDirect(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())

	body := `{"kind": "flat", "data": ` + flatPayload + `, "source_text": "History of hypertension."}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/annotate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, uuid.New())

	if err := h.AnnotateDirect(c); err != nil {
		t.Fatalf("AnnotateDirect handler error: %v", err)
	}

	var resp AnnotateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Annotated {
		t.Error("expected annotated view")
	}
}

func TestAnnotateDirect_BadKind(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/annotate",
		strings.NewReader(`{"kind": "tabular", "data": {}, "source_text": "x"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, uuid.New())

	err := h.AnnotateDirect(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown kind, got %v", err)
	}
}

func TestSummary(t *testing.T) {
	userID := uuid.New()
	h := seededHandler(t, userID)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/summary", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)

	if err := h.Summary(c); err != nil {
		t.Fatalf("Summary handler error: %v", err)
	}

	var resp SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Kind != result.KindFlat {
		t.Errorf("expected flat kind, got %q", resp.Kind)
	}
	if len(resp.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(resp.Groups))
	}
	for _, g := range resp.Groups {
		if g.Count != 1 {
			t.Errorf("group %s: expected count 1, got %d", g.Key, g.Count)
		}
	}
}

func TestExport(t *testing.T) {
	userID := uuid.New()
	h := seededHandler(t, userID)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)

	if err := h.Export(c); err != nil {
		t.Fatalf("Export handler error: %v", err)
	}

	disposition := rec.Header().Get(echo.HeaderContentDisposition)
	if !strings.HasPrefix(disposition, `attachment; filename="medical-entities-`) {
		t.Errorf("unexpected content disposition: %q", disposition)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("export body is not JSON: %v", err)
	}
	if _, ok := payload["disorders"]; !ok {
		t.Error("expected disorders in exported payload")
	}
}

func TestImport_RoundTrip(t *testing.T) {
	userID := uuid.New()
	h := seededHandler(t, userID)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)
	if err := h.Export(c); err != nil {
		t.Fatalf("Export handler error: %v", err)
	}
	exported := rec.Body.String()

	importBody, err := json.Marshal(map[string]any{
		"kind":        "flat",
		"data":        json.RawMessage(exported),
		"source_text": sourceText,
	})
	if err != nil {
		t.Fatalf("build import body: %v", err)
	}

	otherID := uuid.New()
	req = httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(string(importBody)))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	c = requestContext(e, req, rec, otherID)

	if err := h.Import(c); err != nil {
		t.Fatalf("Import handler error: %v", err)
	}

	var resp SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Groups) != 2 {
		t.Errorf("expected 2 groups after import, got %d", len(resp.Groups))
	}

	sess := h.sessions.Current(otherID.String())
	if sess == nil || sess.SourceText != sourceText {
		t.Error("expected imported result in session")
	}
}

func TestImport_BadPayload(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/import",
		strings.NewReader(`{"kind": "flat", "data": [1, 2, 3]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, uuid.New())

	err := h.Import(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-object payload, got %v", err)
	}
}

func TestImport_EnvelopeDetection(t *testing.T) {
	h := NewHandler(extraction.NewSessionStore())
	userID := uuid.New()

	body := `{"data": {"success": true, "entities": ` + flatPayload + `}, "source_text": "note"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)

	if err := h.Import(c); err != nil {
		t.Fatalf("Import handler error: %v", err)
	}

	var resp SummaryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Kind != result.KindFlat {
		t.Errorf("expected flat kind detected from envelope, got %q", resp.Kind)
	}
	if len(resp.Groups) != 2 {
		t.Errorf("expected 2 groups, got %d", len(resp.Groups))
	}
}

func TestAnnotate_NestedFallbackToPlainView(t *testing.T) {
	res, err := result.ParsePayload(result.KindNested,
		json.RawMessage(`{"problems": [{"name": "Atrial Fibrillation"}]}`))
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	userID := uuid.New()
	sessions := extraction.NewSessionStore()
	sessions.Replace(userID.String(), res, "No mention of the condition here.")
	h := NewHandler(sessions)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/annotate", nil)
	rec := httptest.NewRecorder()
	c := requestContext(e, req, rec, userID)

	if err := h.Annotate(c); err != nil {
		t.Fatalf("Annotate handler error: %v", err)
	}

	var resp AnnotateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Annotated {
		t.Error("expected no annotations")
	}
	if !strings.HasPrefix(resp.HTML, "<pre") {
		t.Errorf("expected plain monospaced fallback, got %q", resp.HTML)
	}
}
