package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"ticket-storefront/internal/session"
	"ticket-storefront/utils"
)

type AdminHandler struct {
	redis    redis.Cmdable
	sessions *session.Registry
	breaker  *utils.CircuitBreaker
}

func NewAdminHandler(redisClient redis.Cmdable, sessions *session.Registry, breaker *utils.CircuitBreaker) *AdminHandler {
	return &AdminHandler{
		redis:    redisClient,
		sessions: sessions,
		breaker:  breaker,
	}
}

// Health - redis reachability plus backend breaker state
func (h *AdminHandler) Health(e *core.RequestEvent) error {
	body := map[string]any{
		"status":          "healthy",
		"active_sessions": h.sessions.Len(),
	}
	if h.breaker != nil {
		body["backend_circuit"] = h.breaker.State().String()
	}

	if err := utils.RedisHealthCheck(e.Request.Context(), h.redis); err != nil {
		body["status"] = "unhealthy"
		body["error"] = err.Error()
		return e.JSON(http.StatusServiceUnavailable, body)
	}
	return e.JSON(http.StatusOK, body)
}
