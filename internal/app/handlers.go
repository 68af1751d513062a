package app

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"storyteller/internal/document"
	"storyteller/internal/flow"
	"storyteller/internal/library"
	"storyteller/internal/story"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type chatRequest struct {
	Content string `json:"content" binding:"required"`
}

type uploadResponse struct {
	SessionID string `json:"session_id"`
	Handle    string `json:"handle"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
}

func (a *App) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": a.sessions.Count(),
	})
}

func (a *App) handleCreateSession(c *gin.Context) {
	s := a.sessions.Create()
	c.JSON(http.StatusCreated, gin.H{"id": s.ID})
}

func (a *App) handleGetSession(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (a *App) handleDeleteSession(c *gin.Context) {
	if err := a.sessions.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleUpload принимает один файл в поле file. Без X-Session-ID создаётся новая сессия,
// но только после того, как файл прошёл проверки.
func (a *App) handleUpload(c *gin.Context) {
	var (
		s       *flow.Session
		created bool
	)
	id := c.GetHeader(sessionHeader)
	if id == "" {
		id = c.PostForm("session_id")
	}
	if id != "" {
		var ok bool
		if s, ok = a.session(c, id); !ok {
			return
		}
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}
	if header.Size > a.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
		return
	}
	if s == nil {
		if !document.Supported(header.Filename) {
			writeError(c, fmt.Errorf("%w: %s", flow.ErrUnsupportedFile, header.Filename))
			return
		}
		s = a.sessions.Create()
		created = true
	}

	file, err := a.upload(c, s, header)
	if err != nil {
		// сессия, созданная под неудачную загрузку, никому не отдана
		if created {
			_ = a.sessions.Delete(s.ID)
		}
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, uploadResponse{
		SessionID: s.ID,
		Handle:    file.Handle,
		Name:      file.Name,
		Size:      file.Size,
	})
}

func (a *App) upload(c *gin.Context, s *flow.Session, header *multipart.FileHeader) (*library.File, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Upload(c.Request.Context(), header.Filename, f)
}

func (a *App) handleRemoveFile(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.RemoveFile(); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

func (a *App) handleExtract(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.Extract(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, s.Snapshot())
}

func (a *App) handleMessages(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": s.Messages()})
}

func (a *App) handleChat(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}

	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required", "details": err.Error()})
		return
	}

	msg, err := s.Chat(c.Request.Context(), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": msg})
}

func (a *App) handleStory(c *gin.Context) {
	s, ok := a.session(c, c.Param("id"))
	if !ok {
		return
	}
	if err := s.GenerateStory(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// handleGenerateStory - эндпоинт генерации истории: сырой ответ модели без нормализации
func (a *App) handleGenerateStory(c *gin.Context) {
	var req story.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, story.ErrorResponse{Error: "Prompt is required"})
		return
	}

	text, err := a.generator.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		logrus.WithError(err).Error("❌ Error generating story")
		c.JSON(http.StatusInternalServerError, story.ErrorResponse{
			Error:   "Failed to generate story",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, story.GenerateResponse{Story: text})
}

func (a *App) session(c *gin.Context, id string) (*flow.Session, bool) {
	s, err := a.sessions.Get(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return s, true
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, flow.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, flow.ErrFileAlreadyPresent),
		errors.Is(err, flow.ErrBusy),
		errors.Is(err, flow.ErrStoryExists),
		errors.Is(err, flow.ErrNoFile),
		errors.Is(err, flow.ErrNoAnalysis):
		return http.StatusConflict
	case errors.Is(err, flow.ErrUnsupportedFile):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, document.ErrEmptyDocument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, story.ErrGenerationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
