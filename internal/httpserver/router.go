package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/health"
)

const headerRequestID = "X-Request-ID"

// CustomerService — use case, которые публикует HTTP API.
type CustomerService interface {
	CreateCustomer(ctx context.Context, id, name string) (*domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	PlaceOrder(ctx context.Context, customerID string, shipping, billing *domain.Address) (*domain.Order, error)
	AddItemToOrder(ctx context.Context, customerID, orderID string, item domain.OrderItem) (*domain.Order, error)
	UpdateDefaultAddresses(ctx context.Context, customerID string, shipping, billing *domain.Address) (*domain.Customer, error)
}

// NewRouter регистрирует маршруты API, health-проб и метрик.
func NewRouter(svc CustomerService, healthHandler *health.Handler, gatherer prometheus.Gatherer, logger *log.Entry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())

	if healthHandler != nil {
		router.GET("/healthz", gin.WrapH(healthHandler))
		router.GET("/readyz", gin.WrapF(healthHandler.ReadinessHandler))
	}
	router.GET("/livez", gin.WrapF(health.LivenessHandler))

	metricsHandler := promhttp.Handler()
	if gatherer != nil {
		metricsHandler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	router.GET("/metrics", gin.WrapH(metricsHandler))

	h := &handlers{svc: svc}
	customers := router.Group("/customers")
	customers.POST("", h.createCustomer)
	customers.GET("/:id", h.getCustomer)
	customers.POST("/:id/orders", h.placeOrder)
	customers.POST("/:id/orders/:orderId/items", h.addItem)
	customers.PUT("/:id/addresses", h.updateAddresses)

	return router
}

func requestLogger(logger *log.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(headerRequestID, requestID)

		c.Next()

		entry := logger.WithFields(log.Fields{
			"request_id":  requestID,
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("http request failed")
		case status >= http.StatusBadRequest:
			entry.Warn("http request rejected")
		default:
			entry.Debug("http request served")
		}
	}
}
