package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"chemdash/internal/core/apperror"
	"chemdash/internal/core/period"
	"chemdash/internal/domain/dashboard"
	"chemdash/internal/domain/reports"
	"chemdash/internal/infrastructure/http/v1/dto"
	"chemdash/pkg/logger"
)

// QualityHistory reads persisted data-quality reports.
type QualityHistory interface {
	History(ctx context.Context, limit int) ([]dashboard.QualityEntry, error)
}

// DashboardHandler serves the turnover views.
type DashboardHandler struct {
	*BaseHandler
	service *reports.Service
	views   dashboard.Views
	quality *dashboard.QualityMonitor
	history QualityHistory
	log     *logger.Logger
}

// NewDashboardHandler creates a new dashboard handler. quality and history may be nil.
func NewDashboardHandler(base *BaseHandler, service *reports.Service, views dashboard.Views, quality *dashboard.QualityMonitor, history QualityHistory, log *logger.Logger) *DashboardHandler {
	return &DashboardHandler{
		BaseHandler: base,
		service:     service,
		views:       views,
		quality:     quality,
		history:     history,
		log:         log,
	}
}

// RegisterRoutes registers the dashboard endpoints on rg.
func (h *DashboardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/cards", h.Cards)
	rg.GET("/locations/:location", h.LocationTurnover)
	rg.GET("/locations/:location/products", h.LocationBreakdown)
	rg.GET("/products/:productId/locations/:location", h.ProductTurnover)
	rg.GET("/months/:month/prev", h.PrevMonth)
	rg.GET("/months/:month/next", h.NextMonth)
	rg.GET("/events", h.Events)
	rg.GET("/quality", h.Quality)
	if h.history != nil {
		rg.GET("/quality/history", h.QualityHistory)
	}
	rg.GET("/panel/stream", h.PanelStream)
}

// month parses ?month=, defaulting to the current month.
func (h *DashboardHandler) month(c *gin.Context) (period.Month, bool) {
	var q dto.MonthQuery
	if !h.BindQuery(c, &q) {
		return period.Month{}, false
	}
	m, err := h.service.ParseMonth(q.Month)
	if err != nil {
		h.Error(c, err)
		return period.Month{}, false
	}
	return m, true
}

// LocationTurnover handles GET /locations/:location
func (h *DashboardHandler) LocationTurnover(c *gin.Context) {
	month, ok := h.month(c)
	if !ok {
		return
	}
	view, err := h.service.View(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := h.UseView(c, view)

	t, err := h.service.LocationTurnover(ctx, view, c.Param("location"), month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, t)
}

// LocationBreakdown handles GET /locations/:location/products
func (h *DashboardHandler) LocationBreakdown(c *gin.Context) {
	month, ok := h.month(c)
	if !ok {
		return
	}
	view, err := h.service.View(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := h.UseView(c, view)

	b, err := h.service.LocationBreakdown(ctx, view, c.Param("location"), month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, b)
}

// Cards handles GET /cards
func (h *DashboardHandler) Cards(c *gin.Context) {
	month, ok := h.month(c)
	if !ok {
		return
	}
	view, err := h.service.View(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := h.UseView(c, view)

	cards, err := h.service.LocationCards(ctx, view, nil, month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, cards)
}

// ProductTurnover handles GET /products/:productId/locations/:location
func (h *DashboardHandler) ProductTurnover(c *gin.Context) {
	month, ok := h.month(c)
	if !ok {
		return
	}
	view, err := h.service.View(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	ctx := h.UseView(c, view)

	t, err := h.service.ProductTurnover(ctx, view, c.Param("productId"), c.Param("location"), month)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ProductTurnoverResponse{Turnover: t, Stat: reports.StatOf(t)})
}

// PrevMonth handles GET /months/:month/prev
func (h *DashboardHandler) PrevMonth(c *gin.Context) {
	h.navigate(c, func(m period.Month) period.Month { return m.Prev() })
}

// NextMonth handles GET /months/:month/next. The result never passes the current month.
func (h *DashboardHandler) NextMonth(c *gin.Context) {
	current := h.service.CurrentMonth()
	h.navigate(c, func(m period.Month) period.Month { return m.NextCapped(current) })
}

func (h *DashboardHandler) navigate(c *gin.Context, step func(period.Month) period.Month) {
	m, err := h.service.ParseMonth(c.Param("month"))
	if err != nil {
		h.Error(c, err)
		return
	}
	nav, err := h.service.Navigate(step(m))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, nav)
}

// Events handles GET /events
func (h *DashboardHandler) Events(c *gin.Context) {
	var q dto.EventsQuery
	if !h.BindQuery(c, &q) {
		return
	}
	view, err := h.service.View(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.UseView(c, view)

	limit := q.Limit
	if limit == 0 {
		limit = reports.DefaultEventLimit
	}
	rows, err := h.service.Events(view, reports.EventFilter{
		Location:  q.Location,
		ProductID: q.ProductID,
		Limit:     limit,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewListResponse(rows, limit))
}

// Quality handles GET /quality
func (h *DashboardHandler) Quality(c *gin.Context) {
	if h.quality == nil {
		h.Error(c, apperror.NewNotFound("quality report", "latest"))
		return
	}
	snap, ok := h.quality.Latest()
	if !ok {
		view := h.views.Current()
		var pending []string
		if view != nil {
			pending = view.PendingNames()
		}
		h.Error(c, apperror.NewFeedUnavailable(pending))
		return
	}
	h.OK(c, snap)
}

// QualityHistory handles GET /quality/history
func (h *DashboardHandler) QualityHistory(c *gin.Context) {
	var q dto.HistoryQuery
	if !h.BindQuery(c, &q) {
		return
	}
	entries, err := h.history.History(c.Request.Context(), q.Limit)
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}

	items := make([]dto.QualityHistoryEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, dto.FromQualityEntry(e))
	}
	h.OK(c, dto.NewListResponse(items, q.Limit))
}

// PanelStream handles GET /panel/stream. It opens a dashboard session with
// the requested selection and streams every published panel as a
// server-sent "panel" event until the client disconnects.
func (h *DashboardHandler) PanelStream(c *gin.Context) {
	var q dto.PanelQuery
	if !h.BindQuery(c, &q) {
		return
	}
	month, err := h.service.ParseMonth(q.Month)
	if err != nil {
		h.Error(c, err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	board := dashboard.NewBoard(h.views, h.service, h.log)
	if _, err := board.Select(ctx, month); err != nil {
		h.Error(c, err)
		return
	}
	if q.ProductID != "" {
		board.SelectProduct(ctx, q.ProductID, q.Location)
	}

	panels, unsubscribe := board.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		board.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-panels:
			if !ok {
				return
			}
			c.SSEvent("panel", p)
			c.Writer.Flush()
		}
	}
}
