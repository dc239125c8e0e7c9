package marketplace

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/contracts"
	"carbonlock/marketplace-portal/internal/export"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/notifications/websocket"
	"carbonlock/marketplace-portal/internal/remote"
)

// ToastSource lists recent toasts for clients that poll.
type ToastSource interface {
	Recent() []notifications.Toast
}

// Handler handles HTTP requests of the contract portal
type Handler struct {
	service *Service
	logger  *zap.Logger
	toasts  ToastSource
	ws      *websocket.Manager
	exports *ExportStore
	now     func() time.Time
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithToasts exposes recent toasts at GET /toasts.
func WithToasts(src ToastSource) HandlerOption {
	return func(h *Handler) { h.toasts = src }
}

// WithWebsocket serves toast fan-out at GET /ws.
func WithWebsocket(m *websocket.Manager) HandlerOption {
	return func(h *Handler) { h.ws = m }
}

// WithExportStore enables upload=true on exports.
func WithExportStore(s *ExportStore) HandlerOption {
	return func(h *Handler) { h.exports = s }
}

// WithHandlerClock overrides the clock used for export names.
func WithHandlerClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a new marketplace handler
func NewHandler(service *Service, logger *zap.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{service: service, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers marketplace routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	mp := router.Group("/marketplace")
	{
		mp.GET("/status", h.getStatus)
		mp.POST("/reload", h.reload)
		mp.GET("/submissions", h.getSubmissions)

		mp.GET("/contracts", h.listContracts)
		mp.POST("/contracts", h.createContract)
		mp.GET("/contracts/export", h.exportContracts)
		mp.GET("/contracts/:id", h.getContract)
		mp.PUT("/contracts/:id", h.updateContract)
		mp.DELETE("/contracts/:id", h.deleteContract)
		mp.POST("/contracts/:id/buy", h.buyContract)
		mp.POST("/contracts/:id/expire", h.expireContract)

		mp.GET("/credits", h.listCredits)
		mp.GET("/dashboard", h.getDashboard)

		if h.toasts != nil {
			mp.GET("/toasts", h.listToasts)
		}
		if h.ws != nil {
			mp.GET("/ws", h.serveWebsocket)
		}
	}
}

// getStatus handles GET /api/v1/marketplace/status
func (h *Handler) getStatus(c *gin.Context) {
	st := h.service.Status()
	code := http.StatusOK
	if !st.Initialized {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, st)
}

// reload handles POST /api/v1/marketplace/reload
func (h *Handler) reload(c *gin.Context) {
	if err := h.service.Reload(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Status())
}

func (h *Handler) getSubmissions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"submissions": h.service.Submissions()})
}

// listContracts handles GET /api/v1/marketplace/contracts
func (h *Handler) listContracts(c *gin.Context) {
	q, err := h.parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.service.View(q)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":       view.Query,
		"items":       contracts.Rows(view.Items),
		"total_count": view.TotalCount,
		"total_pages": view.TotalPages,
		"has_prev":    view.HasPrev,
		"has_next":    view.HasNext,
	})
}

// createContract handles POST /api/v1/marketplace/contracts
func (h *Handler) createContract(c *gin.Context) {
	var form contracts.ContractForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.service.CreateContract(c.Request.Context(), form)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "message": CreatedMessage(id)})
}

// getContract handles GET /api/v1/marketplace/contracts/:id
func (h *Handler) getContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	details, err := h.service.Details(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

// updateContract handles PUT /api/v1/marketplace/contracts/:id
func (h *Handler) updateContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	var form contracts.EditForm
	if err := c.ShouldBind(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.service.UpdateContract(c.Request.Context(), id, form)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract": contracts.NewRow(updated), "message": MsgContractUpdated})
}

// deleteContract handles DELETE /api/v1/marketplace/contracts/:id
func (h *Handler) deleteContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	if err := h.service.DeleteContract(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": MsgContractDeleted})
}

// buyContract handles POST /api/v1/marketplace/contracts/:id/buy
func (h *Handler) buyContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	if err := h.service.BuyContract(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": MsgPurchased})
}

// expireContract handles POST /api/v1/marketplace/contracts/:id/expire
func (h *Handler) expireContract(c *gin.Context) {
	id, ok := h.contractID(c)
	if !ok {
		return
	}
	if err := h.service.ExpireContract(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": ExpiredMessage(id)})
}

// exportContracts handles GET /api/v1/marketplace/contracts/export
func (h *Handler) exportContracts(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	q, err := h.parseQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var list []contracts.Contract
	if c.Query("all") == "true" {
		list, err = h.service.Filtered(q)
	} else {
		var view contracts.View
		view, err = h.service.View(q)
		list = view.Items
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	now := h.now()
	opts := export.Options{GeneratedAt: now, Subtitle: describeQuery(q)}
	data, err := export.RenderBytes(format, list, opts)
	if err != nil {
		h.logger.Error("Failed to render export", zap.String("format", string(format)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render export"})
		return
	}
	name := format.FileName(now)

	if c.Query("upload") == "true" {
		if h.exports == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "export upload is not configured"})
			return
		}
		published, err := h.exports.Publish(c.Request.Context(), name, format.ContentType(), data, now)
		if err != nil {
			h.logger.Error("Failed to upload export", zap.String("file", name), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload export"})
			return
		}
		c.JSON(http.StatusCreated, published)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, format.ContentType(), data)
}

// listCredits handles GET /api/v1/marketplace/credits
func (h *Handler) listCredits(c *gin.Context) {
	credits, err := h.service.Credits()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": credits})
}

// getDashboard handles GET /api/v1/marketplace/dashboard
func (h *Handler) getDashboard(c *gin.Context) {
	d, err := h.service.Dashboard(strings.TrimSpace(c.Query("principal")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handler) listToasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"toasts": h.toasts.Recent()})
}

// serveWebsocket handles GET /api/v1/marketplace/ws
func (h *Handler) serveWebsocket(c *gin.Context) {
	if _, err := h.ws.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Warn("Failed to open websocket", zap.Error(err))
	}
}

// parseQuery reads filter, sort and paging parameters. Unknown sort keys and
// directions fall back inside the view derivation.
func (h *Handler) parseQuery(c *gin.Context) (contracts.ViewQuery, error) {
	q := h.service.DefaultQuery()
	q.StatusFilter = c.Query("status")
	if v := c.Query("sort"); v != "" {
		q.SortKey = contracts.SortKey(v)
	}
	if v := c.Query("direction"); v != "" {
		q.Direction = contracts.SortDirection(v)
	}

	var err error
	if q.Page, err = getIntQuery(c, "page", q.Page); err != nil {
		return q, err
	}
	if q.PageSize, err = getIntQuery(c, "page_size", q.PageSize); err != nil {
		return q, err
	}
	if q.PageSize > contracts.MaxPageSize {
		q.PageSize = contracts.MaxPageSize
	}
	return q, nil
}

func (h *Handler) contractID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contract id"})
		return 0, false
	}
	return id, true
}

// respondError maps shell errors onto status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	var (
		verr *contracts.ValidationError
		ierr *InitError
		rerr *remote.RemoteError
		merr *contracts.MappingError
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "field": verr.Field})
	case errors.Is(err, ErrSubmissionInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &ierr), errors.Is(err, ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": MsgInitFailed, "reload": "/api/v1/marketplace/reload"})
	case errors.Is(err, ErrNotFound), errors.Is(err, remote.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &rerr):
		c.JSON(http.StatusBadGateway, gin.H{"error": rerr.Message})
	case errors.As(err, &merr):
		h.logger.Error("Remote returned malformed data", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func getIntQuery(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return n, nil
}

func describeQuery(q contracts.ViewQuery) string {
	filter := q.StatusFilter
	if filter == "" {
		filter = "all"
	}
	return fmt.Sprintf("Status: %s, sorted by %s %s", filter, contracts.ParseSortKey(string(q.SortKey)), contracts.ParseSortDirection(string(q.Direction)))
}
