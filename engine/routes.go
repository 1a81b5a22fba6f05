package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/drummonds/docpreview/config"
	"github.com/drummonds/docpreview/database"
	"github.com/drummonds/docpreview/engine/pdfrenderer"
	"github.com/drummonds/docpreview/engine/preview"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig
	Renderer     *preview.Renderer
	EngineName   string

	// renders bounds the number of documents decoded at once
	renders *semaphore.Weighted
}

// NewServerHandler wires the renderer over eng with the configured limits
func NewServerHandler(db database.Repository, e *echo.Echo, serverConfig config.ServerConfig, eng preview.Engine) *ServerHandler {
	concurrency := serverConfig.PreviewConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	name := "custom"
	if named, ok := eng.(interface{ Name() string }); ok {
		name = named.Name()
	}
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Renderer:     preview.NewRenderer(eng, serverConfig.PreviewConfig(), Logger),
		EngineName:   name,
		renders:      semaphore.NewWeighted(int64(concurrency)),
	}
}

// RegisterRoutes adds every API route, all under /api/*
func (serverHandler *ServerHandler) RegisterRoutes() {
	e := serverHandler.Echo

	// Session API routes
	sessions := e.Group("/api/sessions")
	sessions.POST("", serverHandler.CreateSession)
	sessions.GET("/:id", serverHandler.GetSession)
	sessions.GET("/:id/pages/:page", serverHandler.GetSessionPage)
	sessions.GET("/:id/info", serverHandler.GetSessionInfo)
	sessions.GET("/:id/download", serverHandler.DownloadSession)
	sessions.DELETE("/:id", serverHandler.DeleteSession)

	// One-shot preview
	e.POST("/api/preview", serverHandler.PreviewUpload)

	// Job tracking API routes
	e.GET("/api/jobs", serverHandler.GetRecentJobs)
	e.GET("/api/jobs/:id", serverHandler.GetJob)

	e.GET("/api/health", serverHandler.Health)
}

// pageResponse is the body of every successful page render
type pageResponse struct {
	Image     string `json:"image"`
	PageCount int    `json:"pageCount"`
	Page      int    `json:"page"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

func newPageResponse(result *preview.Result) pageResponse {
	return pageResponse{
		Image:     result.DataURL(),
		PageCount: result.PageCount,
		Page:      result.PageNumber,
		Width:     result.Width,
		Height:    result.Height,
	}
}

// CreateSession stores an uploaded document for previewing
// @Summary Open a preview session
// @Description Upload a document and keep it while the preview is open
// @Tags Sessions
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document to preview"
// @Success 201 {object} database.Session "Session created"
// @Failure 400 {object} map[string]interface{} "No file provided"
// @Failure 413 {object} map[string]interface{} "File too large"
// @Router /sessions [post]
func (serverHandler *ServerHandler) CreateSession(c echo.Context) error {
	file, err := serverHandler.readUpload(c)
	if err != nil {
		return writeRenderError(c, err)
	}

	session, err := database.NewSession(file.Name, file.MediaType, file.Data, serverHandler.ServerConfig.SessionTTL)
	if err != nil {
		Logger.Error("Failed to build session", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create session",
		})
	}
	if err := serverHandler.DB.CreateSession(c.Request().Context(), session); err != nil {
		Logger.Error("Failed to save session", "fileName", file.Name, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to create session",
		})
	}

	Logger.Info("Preview session opened", "id", session.ID.String(), "fileName", session.FileName, "size", session.Size)
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"id":        session.ID.String(),
		"fileName":  session.FileName,
		"mediaType": session.MediaType,
		"size":      session.Size,
		"expiresAt": session.ExpiresAt,
	})
}

// GetSession returns the metadata of an open session
// @Summary Get session
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (ULID)"
// @Success 200 {object} database.Session "Session details"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /sessions/{id} [get]
func (serverHandler *ServerHandler) GetSession(c echo.Context) error {
	session, err := serverHandler.loadSession(c)
	if session == nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// GetSessionPage renders one page of a session's document
// @Summary Render a page
// @Description Decode the session's document and render one page as a JPEG data URL
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (ULID)"
// @Param page path int true "1-based page number"
// @Success 200 {object} pageResponse "Rendered page"
// @Failure 416 {object} map[string]interface{} "Page out of range, body carries totalPages"
// @Failure 422 {object} map[string]interface{} "Document could not be decoded"
// @Router /sessions/{id}/pages/{page} [get]
func (serverHandler *ServerHandler) GetSessionPage(c echo.Context) error {
	session, err := serverHandler.loadSession(c)
	if session == nil {
		return err
	}
	// a page that is not a number is out of range like any other
	pageNumber, _ := strconv.Atoi(c.Param("page"))

	ctx := c.Request().Context()
	file := preview.NewSourceFile(session.FileName, session.MediaType, session.Data)
	result, renderErr := serverHandler.render(ctx, session.ID.String(), file, pageNumber)

	pageCount := 0
	if result != nil {
		pageCount = result.PageCount
	} else {
		var previewErr *preview.Error
		if errors.As(renderErr, &previewErr) {
			pageCount = previewErr.TotalPages
		}
	}
	expiresAt := time.Now().Add(serverHandler.ServerConfig.SessionTTL)
	if err := serverHandler.DB.TouchSession(ctx, session.ID, pageCount, expiresAt); err != nil && !errors.Is(err, database.ErrNotFound) {
		Logger.Warn("Failed to touch session", "id", session.ID.String(), "error", err)
	}

	if renderErr != nil {
		return writeRenderError(c, renderErr)
	}
	return c.JSON(http.StatusOK, newPageResponse(result))
}

// GetSessionInfo probes the session's document without rendering it
// @Summary Inspect a document
// @Tags Sessions
// @Produce json
// @Param id path string true "Session ID (ULID)"
// @Success 200 {object} pdfrenderer.Info "Document metadata"
// @Router /sessions/{id}/info [get]
func (serverHandler *ServerHandler) GetSessionInfo(c echo.Context) error {
	session, err := serverHandler.loadSession(c)
	if session == nil {
		return err
	}
	if err := preview.Validate(preview.NewSourceFile(session.FileName, session.MediaType, session.Data)); err != nil {
		return writeRenderError(c, err)
	}

	info, err := pdfrenderer.Inspect(session.Data)
	if err != nil {
		Logger.Warn("Unable to inspect document", "id", session.ID.String(), "error", err)
		return writeRenderError(c, &preview.Error{
			Kind:    preview.KindDecodeFailure,
			Message: "unable to read document structure",
			Err:     err,
		})
	}
	return c.JSON(http.StatusOK, info)
}

// DownloadSession returns the original upload as an attachment
// @Summary Download the original document
// @Tags Sessions
// @Produce octet-stream
// @Param id path string true "Session ID (ULID)"
// @Success 200 {file} file "Original document"
// @Router /sessions/{id}/download [get]
func (serverHandler *ServerHandler) DownloadSession(c echo.Context) error {
	session, err := serverHandler.loadSession(c)
	if session == nil {
		return err
	}
	mediaType := session.MediaType
	if mediaType == "" {
		mediaType = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", session.FileName))
	return c.Blob(http.StatusOK, mediaType, session.Data)
}

// DeleteSession closes a preview and drops its document
// @Summary Close a preview session
// @Tags Sessions
// @Param id path string true "Session ID (ULID)"
// @Success 204 "Session closed"
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Router /sessions/{id} [delete]
func (serverHandler *ServerHandler) DeleteSession(c echo.Context) error {
	id, err := ulid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid session ID format",
		})
	}
	if err := serverHandler.DB.DeleteSession(c.Request().Context(), id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"error": "Session not found",
			})
		}
		Logger.Error("Failed to delete session", "id", id.String(), "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to delete session",
		})
	}
	Logger.Info("Preview session closed", "id", id.String())
	return c.NoContent(http.StatusNoContent)
}

// PreviewUpload renders one page of an uploaded document without keeping it
// @Summary One-shot preview
// @Tags Preview
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document to preview"
// @Param page formData int false "1-based page number (default: 1)"
// @Success 200 {object} pageResponse "Rendered page"
// @Router /preview [post]
func (serverHandler *ServerHandler) PreviewUpload(c echo.Context) error {
	file, err := serverHandler.readUpload(c)
	if err != nil {
		return writeRenderError(c, err)
	}
	pageNumber := 1
	if pageStr := c.FormValue("page"); pageStr != "" {
		pageNumber, _ = strconv.Atoi(pageStr)
	}

	result, err := serverHandler.render(c.Request().Context(), "", file, pageNumber)
	if err != nil {
		return writeRenderError(c, err)
	}
	return c.JSON(http.StatusOK, newPageResponse(result))
}

// Health reports the engine in use and whether the database answers
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{} "Service healthy"
// @Failure 503 {object} map[string]interface{} "Database unreachable"
// @Router /health [get]
func (serverHandler *ServerHandler) Health(c echo.Context) error {
	status := http.StatusOK
	body := map[string]interface{}{
		"status":   "healthy",
		"service":  "docpreview",
		"engine":   serverHandler.EngineName,
		"database": serverHandler.ServerConfig.DatabaseType,
	}
	if err := serverHandler.DB.Ping(c.Request().Context()); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}
	return c.JSON(status, body)
}

// render runs one renderer request under the concurrency limit and records it
// in the job log
func (serverHandler *ServerHandler) render(ctx context.Context, sessionID string, file *preview.SourceFile, pageNumber int) (*preview.Result, error) {
	job, err := serverHandler.DB.CreateJob(ctx, database.JobTypeRender, sessionID, pageNumber)
	if err != nil {
		// the job log is best effort, never block a preview on it
		Logger.Warn("Failed to record render job", "error", err)
	}
	started := time.Now()

	result, renderErr := serverHandler.renderLimited(ctx, file, pageNumber)

	if job != nil {
		// the request context may be gone by now
		logCtx := context.WithoutCancel(ctx)
		if renderErr != nil {
			err = serverHandler.DB.FailJob(logCtx, job.ID, string(renderErrorKind(renderErr)), renderErr.Error(), time.Since(started))
		} else {
			err = serverHandler.DB.CompleteJob(logCtx, job.ID, time.Since(started))
		}
		if err != nil {
			Logger.Warn("Failed to finish render job", "jobID", job.ID.String(), "error", err)
		}
	}
	return result, renderErr
}

func (serverHandler *ServerHandler) renderLimited(ctx context.Context, file *preview.SourceFile, pageNumber int) (*preview.Result, error) {
	if err := serverHandler.renders.Acquire(ctx, 1); err != nil {
		kind := preview.KindCanceled
		if errors.Is(err, context.DeadlineExceeded) {
			kind = preview.KindTimeout
		}
		return nil, &preview.Error{Kind: kind, Message: "gave up waiting for a free renderer", Err: err}
	}
	defer serverHandler.renders.Release(1)
	return serverHandler.Renderer.Request(ctx, file, pageNumber)
}

// loadSession resolves the :id parameter. When the session cannot be used it
// writes the error response itself and returns a nil session, with err being
// the result of that write, so callers must check the session rather than err.
func (serverHandler *ServerHandler) loadSession(c echo.Context) (*database.Session, error) {
	idStr := c.Param("id")
	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "Invalid session ID format",
		})
	}

	session, err := serverHandler.DB.GetSession(c.Request().Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "Session not found",
		})
	}
	if err != nil {
		Logger.Error("Failed to get session", "id", idStr, "error", err)
		return nil, c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "Failed to retrieve session",
		})
	}
	return session, nil
}

// readUpload reads the multipart "file" field into a SourceFile. Only a missing
// field is rejected here, everything else is the renderer's call.
func (serverHandler *ServerHandler) readUpload(c echo.Context) (*preview.SourceFile, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
		}
		return nil, &preview.Error{Kind: preview.KindMissingFile, Message: "no file provided", Err: err}
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, &preview.Error{Kind: preview.KindMissingFile, Message: "unable to read uploaded file", Err: err}
	}
	defer src.Close()

	limit := serverHandler.ServerConfig.MaxUploadBytes()
	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, &preview.Error{Kind: preview.KindMissingFile, Message: "unable to read uploaded file", Err: err}
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "file too large")
	}

	return preview.NewSourceFile(filepath.Base(fileHeader.Filename), uploadMediaType(fileHeader), data), nil
}

// uploadMediaType trusts the declared part type, falling back to the file
// extension when the browser sent none
func uploadMediaType(fileHeader *multipart.FileHeader) string {
	declared := fileHeader.Header.Get(echo.HeaderContentType)
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil && mediaType != echo.MIMEOctetStream {
		return mediaType
	}
	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		return preview.PDFMediaType
	}
	if byExt := mime.TypeByExtension(filepath.Ext(fileHeader.Filename)); byExt != "" {
		mediaType, _, _ := mime.ParseMediaType(byExt)
		return mediaType
	}
	return echo.MIMEOctetStream
}
