package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"violation-service/internal/config"
	"violation-service/internal/service"
	"violation-service/internal/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Handler struct {
	pipeline         *service.Pipeline
	violationService *service.ViolationService
	config           *config.Config
	log              zerolog.Logger
}

func NewHandler(
	pipeline *service.Pipeline,
	violationService *service.ViolationService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		pipeline:         pipeline,
		violationService: violationService,
		config:           cfg,
		log:              log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)

	api := r.Group("/api/v1")
	{
		api.POST("/detection/snapshot", h.detectSnapshot)
		api.POST("/detection/frame", h.detectFrame)
		api.GET("/detection/live", h.detectLive)

		api.POST("/upload/violation", h.uploadViolation)

		api.POST("/violations", h.createViolation)
		api.GET("/violations", h.listViolations)
		api.GET("/violations/:id", h.getViolation)
		api.PUT("/violations/:id", h.updateViolation)
		api.DELETE("/violations/:id", h.deleteViolation)
	}
}

type snapshotRequest struct {
	Frame    string `json:"frame" binding:"required"`
	CameraID string `json:"camera_id"`
	Location string `json:"location"`
}

type createRequest struct {
	VehicleNumber string  `json:"vehicle_number" binding:"required"`
	ViolationType string  `json:"violation_type" binding:"required"`
	Location      string  `json:"location"`
	OfficerID     string  `json:"officer_id"`
	FineAmount    float64 `json:"fine_amount"`
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) detectSnapshot(c *gin.Context) {
	var payload snapshotRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	image, err := utils.DecodeFrame(payload.Frame)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	h.processFrame(c, service.Frame{Image: image, CameraID: payload.CameraID, Location: payload.Location})
}

func (h *Handler) detectFrame(c *gin.Context) {
	image, ok := h.readImage(c)
	if !ok {
		return
	}

	h.processFrame(c, service.Frame{
		Image:    image,
		CameraID: strings.TrimSpace(c.PostForm("camera_id")),
		Location: strings.TrimSpace(c.PostForm("location")),
	})
}

func (h *Handler) processFrame(c *gin.Context, frame service.Frame) {
	result, err := h.pipeline.ProcessFrame(c.Request.Context(), frame)
	if err != nil {
		h.log.Warn().Err(err).Str("camera_id", frame.CameraID).Msg("frame processing aborted")
		c.JSON(http.StatusServiceUnavailable, errorResponse("request cancelled"))
		return
	}

	c.JSON(http.StatusOK, successResponse(result))
}

// detectLive runs every websocket message through the pipeline and answers
// with one frame result per message until the client goes away.
func (h *Handler) detectLive(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	log := h.log.With().Str("remote", c.ClientIP()).Logger()
	log.Info().Msg("live detection client connected")

	for {
		var payload snapshotRequest
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info().Msg("live detection client disconnected")
			} else {
				log.Warn().Err(err).Msg("live detection read failed")
			}
			return
		}

		image, err := utils.DecodeFrame(payload.Frame)
		if err != nil {
			if err := conn.WriteJSON(errorResponse(err.Error())); err != nil {
				return
			}
			continue
		}

		result, err := h.pipeline.ProcessFrame(ctx, service.Frame{
			Image:    image,
			CameraID: payload.CameraID,
			Location: payload.Location,
		})
		if err != nil {
			return
		}
		if err := conn.WriteJSON(successResponse(result)); err != nil {
			log.Warn().Err(err).Msg("live detection write failed")
			return
		}
	}
}

func (h *Handler) uploadViolation(c *gin.Context) {
	image, ok := h.readImage(c)
	if !ok {
		return
	}

	result, err := h.violationService.SubmitUpload(c.Request.Context(), service.UploadRequest{
		VehicleNumber: c.PostForm("vehicle_number"),
		ViolationType: c.PostForm("violation_type"),
		Location:      strings.TrimSpace(c.PostForm("location")),
		OfficerID:     strings.TrimSpace(c.PostForm("officer_id")),
		Image:         image,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(result))
}

func (h *Handler) createViolation(c *gin.Context) {
	var payload createRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	v, err := h.violationService.Create(c.Request.Context(), service.CreateRequest{
		VehicleNumber: payload.VehicleNumber,
		ViolationType: payload.ViolationType,
		Location:      strings.TrimSpace(payload.Location),
		OfficerID:     strings.TrimSpace(payload.OfficerID),
		FineAmount:    payload.FineAmount,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, successResponse(v))
}

func (h *Handler) listViolations(c *gin.Context) {
	var status *string
	if s := strings.ToLower(strings.TrimSpace(c.Query("status"))); s != "" {
		status = &s
	}

	limit := 0
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	skip := 0
	if s := c.Query("skip"); s != "" {
		if parsed, err := parseInt(s); err == nil && parsed >= 0 {
			skip = parsed
		}
	}

	violations, err := h.violationService.List(c.Request.Context(), status, skip, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(violations))
}

func (h *Handler) getViolation(c *gin.Context) {
	v, err := h.violationService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(v))
}

func (h *Handler) updateViolation(c *gin.Context) {
	var payload statusRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	v, err := h.violationService.UpdateStatus(c.Request.Context(), c.Param("id"), payload.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(v))
}

func (h *Handler) deleteViolation(c *gin.Context) {
	if err := h.violationService.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// readImage reads the multipart "file" field, enforcing the upload size
// limit and the allowed extensions.
func (h *Handler) readImage(c *gin.Context) ([]byte, bool) {
	limit := int64(h.config.HTTP.MaxUploadMB) << 20
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse(fmt.Sprintf("file exceeds %d MB", h.config.HTTP.MaxUploadMB)))
			return nil, false
		}
		c.JSON(http.StatusBadRequest, errorResponse("file is required"))
		return nil, false
	}

	if !utils.AllowedImageExtension(header.Filename) {
		c.JSON(http.StatusBadRequest, errorResponse("invalid file type, allowed: jpg, jpeg, png, webp"))
		return nil, false
	}

	image, err := readFile(header)
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("failed to read uploaded file")
		c.JSON(http.StatusBadRequest, errorResponse("failed to read file"))
		return nil, false
	}
	if len(image) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse("file is empty"))
		return nil, false
	}

	return image, true
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNoViolationDetected), errors.Is(err, service.ErrTypeMismatch):
		c.JSON(http.StatusUnprocessableEntity, errorResponse(err.Error()))
	case errors.Is(err, service.ErrDetectionFailed):
		c.JSON(http.StatusBadGateway, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
