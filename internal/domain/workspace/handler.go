// Package workspace serves the review surface over the most recent
// extraction in a user's session: the annotated source view, the category
// summary tree, and export/import of the structured payload.
package workspace

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medex/medex/internal/domain/annotation"
	"github.com/medex/medex/internal/domain/export"
	"github.com/medex/medex/internal/domain/extraction"
	"github.com/medex/medex/internal/domain/result"
	"github.com/medex/medex/internal/domain/summary"
	"github.com/medex/medex/internal/platform/auth"
)

// Handler reads the per-user extraction session and renders views of it.
type Handler struct {
	sessions *extraction.SessionStore
}

func NewHandler(sessions *extraction.SessionStore) *Handler {
	return &Handler{sessions: sessions}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/annotate", h.Annotate)
	api.POST("/annotate", h.AnnotateDirect)
	api.GET("/summary", h.Summary)
	api.GET("/export", h.Export)
	api.POST("/import", h.Import)
}

// AnnotateResponse carries one rendered annotation view.
type AnnotateResponse struct {
	Success   bool                 `json:"success"`
	Annotated bool                 `json:"annotated"`
	HTML      string               `json:"html"`
	Segments  []annotation.Segment `json:"segments"`
}

// Annotate renders the session's source text with every located mention
// wrapped in a highlight span.
func (h *Handler) Annotate(c echo.Context) error {
	sess, err := h.currentSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, annotateView(sess.Result, sess.SourceText))
}

// AnnotateDirect renders a caller-supplied payload against caller-supplied
// source text without touching the session.
func (h *Handler) AnnotateDirect(c echo.Context) error {
	var req struct {
		Kind       string          `json:"kind"`
		Data       json.RawMessage `json:"data"`
		SourceText string          `json:"source_text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := parsePayload(req.Kind, req.Data)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, annotateView(res, req.SourceText))
}

// SummaryResponse is the aggregated category tree of the session result.
type SummaryResponse struct {
	Success bool            `json:"success"`
	Kind    result.Kind     `json:"kind"`
	Groups  []summary.Group `json:"groups"`
}

func (h *Handler) Summary(c echo.Context) error {
	sess, err := h.currentSession(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SummaryResponse{
		Success: true,
		Kind:    sess.Result.Kind,
		Groups:  summary.Aggregate(sess.Result),
	})
}

// Export streams the session's structured payload as a downloadable JSON
// artifact, named by result kind and date.
func (h *Handler) Export(c echo.Context) error {
	sess, err := h.currentSession(c)
	if err != nil {
		return err
	}
	data, err := export.Marshal(sess.Result)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	name := export.Filename(sess.Result.Kind, time.Now())
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSON, data)
}

// Import loads a previously exported payload back into the session, making
// it the active result for annotation and summary.
func (h *Handler) Import(c echo.Context) error {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	var req struct {
		Kind       string          `json:"kind"`
		Data       json.RawMessage `json:"data"`
		SourceText string          `json:"source_text"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var (
		res *result.Result
		err error
	)
	if req.Kind == "" {
		// No explicit kind: treat the upload as a full extraction response
		// envelope and detect the variant from it.
		res, err = result.ParseResponse(req.Data)
	} else {
		var kind result.Kind
		kind, err = resolveKind(req.Kind)
		if err == nil {
			res, err = export.Import(kind, req.Data)
		}
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("parse imported payload: %v", err))
	}
	h.sessions.Replace(userID, res, req.SourceText)

	return c.JSON(http.StatusOK, SummaryResponse{
		Success: true,
		Kind:    res.Kind,
		Groups:  summary.Aggregate(res),
	})
}

func (h *Handler) currentSession(c echo.Context) (*extraction.Session, error) {
	userID := auth.CurrentUserID(c)
	if userID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	sess := h.sessions.Current(userID)
	if sess == nil || sess.Result == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "no extraction result in session")
	}
	return sess, nil
}

func annotateView(res *result.Result, source string) AnnotateResponse {
	segments := annotation.Annotate(res, source)
	annotated := annotation.HasAnnotations(segments)

	htmlView := annotation.RenderHTML(segments)
	if !annotated && source != "" && res != nil && res.Kind == result.KindNested {
		// A nested result with no highlightable terms falls back to a plain
		// monospaced view of the full note.
		htmlView = annotation.RenderPlainHTML(source)
	}

	return AnnotateResponse{
		Success:   true,
		Annotated: annotated,
		HTML:      htmlView,
		Segments:  segments,
	}
}

func resolveKind(kind string) (result.Kind, error) {
	switch result.Kind(kind) {
	case result.KindFlat, result.KindNested:
		return result.Kind(kind), nil
	default:
		return "", fmt.Errorf("kind must be %q or %q", result.KindFlat, result.KindNested)
	}
}

// parsePayload parses a structured payload of the named kind; with no kind
// it falls back to envelope detection.
func parsePayload(kind string, data json.RawMessage) (*result.Result, error) {
	if kind == "" {
		return result.ParseResponse(data)
	}
	k, err := resolveKind(kind)
	if err != nil {
		return nil, err
	}
	return result.ParsePayload(k, data)
}
