package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront/api/controllers"
	"github.com/angelmondragon/storefront/api/middleware"
	"github.com/angelmondragon/storefront/internal/cart"
	"github.com/angelmondragon/storefront/internal/checkout"
	"github.com/angelmondragon/storefront/internal/notifications"
	"github.com/angelmondragon/storefront/internal/orders"
	"github.com/angelmondragon/storefront/internal/session"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db/models"
	"github.com/angelmondragon/storefront/pkg/enums"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// Storefront is the session-bound surface the customer routes drive.
type Storefront interface {
	SignIn(ctx context.Context, token string) (session.Identity, error)
	SignOut(ctx context.Context)
	Identity() *session.Identity
	FeedState() enums.FeedState
	Resubscribe(ctx context.Context) error
	Checkout(ctx context.Context, buyer checkout.BuyerInfo) (*checkout.Receipt, error)
	ResumeCheckout(ctx context.Context, orderID uuid.UUID) (*checkout.Receipt, error)
	History(ctx context.Context) ([]models.Order, error)
	Cart() *cart.Store
	Notifications() *notifications.Store
}

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	Storefront Storefront
	Orders     orders.Service
	Pingers    map[string]controllers.Pinger
	Gatherer   prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg, sf := p.Config, p.Logger, p.Storefront

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Pingers))
	})
	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(p.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/session", func(r chi.Router) {
			r.Get("/", controllers.GetSession(sf))
			r.Post("/", controllers.SignIn(sf, logg))
			r.Delete("/", controllers.SignOut(sf))
			r.Post("/feed", controllers.Resubscribe(sf, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", controllers.GetCart(sf.Cart()))
			r.Delete("/", controllers.ClearCart(sf.Cart()))
			r.Post("/items", controllers.AddCartItem(sf.Cart(), logg))
			r.Post("/items/{productId}/decrease", controllers.DecreaseCartItem(sf.Cart(), logg))
			r.Delete("/items/{productId}", controllers.RemoveCartItem(sf.Cart(), logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireSession(sf, logg))

			r.Post("/checkout", controllers.SubmitCheckout(sf, logg))
			r.Post("/checkout/{orderId}/resume", controllers.ResumeCheckout(sf, logg))
			r.Get("/orders", controllers.OrderHistory(sf, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(sf.Notifications()))
				r.Delete("/", controllers.ClearNotifications(sf.Notifications()))
				r.Post("/read-all", controllers.MarkAllNotificationsRead(sf.Notifications()))
				r.Post("/{notificationId}/read", controllers.MarkNotificationRead(sf.Notifications(), logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.MemberRoleAdmin, logg))

		r.Get("/orders", controllers.AdminListOrders(p.Orders, logg))
		r.Patch("/orders/{orderId}/status", controllers.AdminUpdateOrderStatus(p.Orders, logg))
	})

	return r
}
