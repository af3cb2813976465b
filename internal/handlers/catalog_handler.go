package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-storefront/internal/backend"
	"ticket-storefront/internal/catalog"
	"ticket-storefront/internal/status"
	"ticket-storefront/models"
)

type CatalogHandler struct {
	catalog *catalog.Service
}

func NewCatalogHandler(catalog *catalog.Service) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListGroups - ticket group list. Past the load ceiling the page gets an
// empty list flagged as degraded instead of waiting. ?refresh=1 drops the
// cached list first.
func (h *CatalogHandler) ListGroups(e *core.RequestEvent) error {
	ctx := e.Request.Context()
	if e.Request.URL.Query().Get("refresh") == "1" {
		if err := h.catalog.Invalidate(ctx); err != nil {
			slog.Warn("catalog cache invalidate", "error", err)
		}
	}

	groups, err := h.catalog.LoadGroups(ctx)
	if errors.Is(err, status.ErrLoadCeiling) {
		return e.JSON(http.StatusOK, map[string]any{
			"items":    []models.TicketGroup{},
			"degraded": true,
		})
	}
	if err != nil {
		return respondError(e, err)
	}
	if groups == nil {
		groups = []models.TicketGroup{}
	}

	return e.JSON(http.StatusOK, map[string]any{
		"items":    groups,
		"degraded": false,
	})
}

func (h *CatalogHandler) GetProfile(e *core.RequestEvent) error {
	id, err := pathID(e, "id")
	if err != nil {
		return err
	}

	profile, err := h.catalog.Profile(e.Request.Context(), id)
	if err != nil {
		return respondError(e, err)
	}
	return e.JSON(http.StatusOK, profile)
}

// GetVariants - priced categories for one visit date (yyyy-MM-dd)
func (h *CatalogHandler) GetVariants(e *core.RequestEvent) error {
	id, err := pathID(e, "id")
	if err != nil {
		return err
	}

	date, err := time.Parse(backend.DateLayout, e.Request.URL.Query().Get("date"))
	if err != nil {
		return apis.NewBadRequestError("date must be yyyy-MM-dd", nil)
	}

	variants, err := h.catalog.Variants(e.Request.Context(), id, date)
	if err != nil {
		return respondError(e, err)
	}
	if variants == nil {
		variants = []models.TicketVariant{}
	}
	return e.JSON(http.StatusOK, map[string]any{
		"ticketGroupId": id,
		"date":          date.Format(backend.DateLayout),
		"items":         variants,
	})
}
