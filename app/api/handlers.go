package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/rss-relay/app/database"
	"github.com/lysyi3m/rss-relay/app/feed"
	"github.com/lysyi3m/rss-relay/app/tasks"
)

func NewHandler(sourceRepo database.SourceRepository, ledgerRepo database.LedgerRepository,
	subscriptionRepo database.SubscriptionRepository, configCache *feed.SourceConfigCache,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		sourceRepo:       sourceRepo,
		ledgerRepo:       ledgerRepo,
		subscriptionRepo: subscriptionRepo,
		configCache:      configCache,
		scheduler:        scheduler,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if count, err := h.sourceRepo.GetSourceCount(c.Request.Context()); err == nil {
		health["sources"] = count
	}

	if h.configCache != nil {
		health["loaded_configurations"] = h.configCache.GetConfigCount()
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	sources, err := h.sourceRepo.GetSourceCount(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	entries, err := h.ledgerRepo.GetEntryCount(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "count_ledger", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	stats := gin.H{
		"sources":        sources,
		"ledger_entries": entries,
	}

	if h.scheduler != nil {
		queues, err := h.scheduler.Stats(ctx)
		if err != nil {
			slog.Error("Queue stats error", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue error"})
			return
		}
		stats["queues"] = queues
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) APIListSources(c *gin.Context) {
	limit, ok := pageLimit(c)
	if !ok {
		return
	}

	sources, next, err := h.sourceRepo.ListSources(c.Request.Context(), c.Query("after"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := gin.H{
		"sources": sources,
		"total":   len(sources),
	}
	if next != "" {
		response["next"] = next
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APICreateSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required property 'source'"})
		return
	}
	if err := feed.ValidateSourceURL(req.Source); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid source", "details": err.Error()})
		return
	}
	if err := feed.ValidateSourceHeaders(req.Headers); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid headers", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.sourceRepo.GetSource(ctx, req.Source)
	if err != nil {
		slog.Error("Database error", "operation", "get_source", "source", req.Source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	if err := h.sourceRepo.UpsertSource(ctx, database.Source{URL: req.Source, Headers: req.Headers}); err != nil {
		slog.Error("Database error", "operation", "upsert_source", "source", req.Source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	status := http.StatusCreated
	if existing != nil {
		status = http.StatusOK
	}

	slog.Info("Source registered", "source", req.Source, "created", existing == nil)
	c.JSON(status, gin.H{"success": true, "source": req.Source})
}

func (h *Handler) APIDeleteSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required property 'source'"})
		return
	}

	deleted, err := h.sourceRepo.DeleteSource(c.Request.Context(), req.Source)
	if err != nil {
		slog.Error("Database error", "operation", "delete_source", "source", req.Source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Source not found"})
		return
	}

	slog.Info("Source removed", "source", req.Source)
	c.JSON(http.StatusOK, gin.H{"success": true, "source": req.Source})
}

func (h *Handler) APIListSubscriptions(c *gin.Context) {
	subs, err := h.subscriptionRepo.ListSubscriptions(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_subscriptions", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"subscriptions": subs,
		"total":         len(subs),
	})
}

func (h *Handler) APICreateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	u, err := url.Parse(strings.TrimSpace(req.Endpoint))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Endpoint must be an absolute http or https URL"})
		return
	}

	sub, created, err := h.subscriptionRepo.CreateSubscription(c.Request.Context(), u.String())
	if err != nil {
		slog.Error("Database error", "operation", "create_subscription", "endpoint", u.String(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		slog.Info("Subscription created", "id", sub.ID, "endpoint", sub.Endpoint)
	}

	c.JSON(status, sub)
}

func (h *Handler) APIDeleteSubscription(c *gin.Context) {
	id := c.Param("id")

	deleted, err := h.subscriptionRepo.DeleteSubscription(c.Request.Context(), id)
	if err != nil {
		slog.Error("Database error", "operation", "delete_subscription", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscription not found"})
		return
	}

	slog.Info("Subscription removed", "id", id)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (h *Handler) APIListLedger(c *gin.Context) {
	source := c.Query("source")
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing source parameter"})
		return
	}

	limit, ok := pageLimit(c)
	if !ok {
		return
	}

	query := database.LedgerQuery{
		Source: source,
		After:  c.Query("after"),
		Limit:  limit,
	}

	if raw := c.Query("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid since parameter, expected RFC3339"})
			return
		}
		query.Since = since
	}

	entries, next, err := h.ledgerRepo.ListEntries(c.Request.Context(), query)
	if err != nil {
		slog.Error("Database error", "operation", "list_ledger", "source", source, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	response := gin.H{
		"source":  source,
		"entries": entries,
		"total":   len(entries),
	}
	if next != "" {
		response["next"] = next
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) APITriggerScan(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Scheduler not running"})
		return
	}

	queued := h.scheduler.TriggerScan()
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"queued":  queued,
	})
}

func pageLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultPageSize, true
	}

	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return 0, false
	}

	return min(limit, maxPageSize), true
}
