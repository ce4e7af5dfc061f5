package extraction

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medex/medex/internal/domain/result"
	"github.com/medex/medex/internal/platform/auth"
	"github.com/medex/medex/internal/platform/docconv"
	"github.com/medex/medex/pkg/pagination"
)

type Handler struct {
	svc  *Service
	docs *docconv.Service
}

func NewHandler(svc *Service, docs *docconv.Service) *Handler {
	return &Handler{svc: svc, docs: docs}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/extract", h.Extract)
	api.POST("/extract-file", h.ExtractFile)
	api.GET("/models", h.ListModels)
	api.GET("/extractions", h.ListExtractions)
	api.GET("/extractions/:id", h.GetExtraction)

	uscdi := api.Group("/uscdi")
	uscdi.POST("/extract", h.ExtractUSCDI)
	uscdi.POST("/extract-file", h.ExtractUSCDIFile)
	uscdi.POST("/extract-class", h.ExtractClass)
	uscdi.GET("/data-classes", h.ListDataClasses)
}

func currentUser(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.CurrentUserID(c))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return id, nil
}

func (h *Handler) Extract(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run, res, err := h.svc.ExtractFlat(c.Request().Context(), userID, req.MedicalNote, req.Model)
	if err != nil {
		return extractionError(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success:       true,
		Entities:      res.Payload(),
		TotalEntities: run.EntityCount,
	})
}

func (h *Handler) ExtractFile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	note, err := h.readUpload(c)
	if err != nil {
		return err
	}

	run, res, err := h.svc.ExtractFlat(c.Request().Context(), userID, note, c.FormValue("model"))
	if err != nil {
		return extractionError(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success:       true,
		Entities:      res.Payload(),
		TotalEntities: run.EntityCount,
		OriginalText:  note,
	})
}

func (h *Handler) ExtractUSCDI(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	run, res, err := h.svc.ExtractUSCDI(c.Request().Context(), userID, req.MedicalNote, req.Model)
	if err != nil {
		return extractionError(err)
	}

	return c.JSON(http.StatusOK, USCDIResponse{
		Success:          true,
		USCDIData:        res.Payload(),
		DataClassesCount: run.EntityCount,
	})
}

func (h *Handler) ExtractUSCDIFile(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	note, err := h.readUpload(c)
	if err != nil {
		return err
	}

	run, res, err := h.svc.ExtractUSCDI(c.Request().Context(), userID, note, c.FormValue("model"))
	if err != nil {
		return extractionError(err)
	}

	return c.JSON(http.StatusOK, USCDIResponse{
		Success:          true,
		USCDIData:        res.Payload(),
		DataClassesCount: run.EntityCount,
		OriginalText:     note,
	})
}

func (h *Handler) ExtractClass(c echo.Context) error {
	if _, err := currentUser(c); err != nil {
		return err
	}

	class := c.QueryParam("data_class")
	if class == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "data_class query parameter is required")
	}

	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	data, err := h.svc.ExtractClass(c.Request().Context(), req.MedicalNote, class, req.Model)
	if err != nil {
		return extractionError(err)
	}

	return c.JSON(http.StatusOK, ClassResponse{
		Success:   true,
		DataClass: class,
		Data:      data,
	})
}

func (h *Handler) ListDataClasses(c echo.Context) error {
	classes := make(map[string]string, len(result.NestedClasses))
	for _, cls := range result.NestedClasses {
		classes[cls.Key] = dataClassDescriptions[cls.Key]
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"uscdi_version": uscdiVersion,
		"data_classes":  classes,
		"total_classes": len(classes),
	})
}

func (h *Handler) ListModels(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"models": AvailableModels,
	})
}

func (h *Handler) ListExtractions(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	pg := pagination.FromContext(c)
	runs, total, err := h.svc.ListRuns(c.Request().Context(), userID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	summaries := make([]RunSummary, 0, len(runs))
	for _, r := range runs {
		summaries = append(summaries, r.Summary())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(summaries, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetExtraction(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	run, err := h.svc.GetRun(c.Request().Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "extraction not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, run)
}

// readUpload pulls the uploaded document out of the multipart form and
// converts it to text.
func (h *Handler) readUpload(c echo.Context) (string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "file upload is required")
	}

	note, err := h.docs.ConvertUpload(c.Request().Context(), fh)
	if err != nil {
		switch {
		case errors.Is(err, docconv.ErrUnsupportedType):
			return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, docconv.ErrPDFUnavailable):
			return "", echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return "", echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return note, nil
}

func extractionError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyNote), errors.Is(err, ErrUnknownDataClass), errors.Is(err, ErrUnknownModel):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
