package http

import (
	"net/http"
	"time"

	"github.com/fjod/storefront-gateway/internal/backend"
	"github.com/fjod/storefront-gateway/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	SecureCookie       bool
}

type Handlers struct {
	Products   *ProductHandler
	Cart       *CartHandler
	Orders     *OrdersHandler
	FlashSales *FlashSaleHandler
	Auth       *AuthHandler
	Admin      *AdminHandler
}

// NewRouter mounts the storefront and staff surfaces.
func NewRouter(cfg RouterConfig, hs Handlers, sessions session.Store, tokens TokenEnsurer, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(LimitBody(cfg.MaxRequestBodySize))
	r.Use(Session)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			timed(r, cfg.RequestTimeout)

			r.Get("/products", hs.Products.ListProducts)
			r.Get("/products/{product_id}", hs.Products.GetProduct)
			r.Get("/categories", hs.Products.ListCategories)
			r.Get("/products/{product_id}/reviews", hs.Products.ListReviews)
			r.With(RequireCustomer(tokens)).Post("/products/{product_id}/reviews", hs.Products.CreateReview)

			r.With(CartSession(cfg.SecureCookie), OptionalCustomer(tokens)).Post("/checkout", hs.Orders.Checkout)

			r.Route("/orders", func(r chi.Router) {
				r.Use(RequireCustomer(tokens))
				r.Get("/", hs.Orders.ListOrders)
				r.Get("/{order_id}", hs.Orders.GetOrder)
				r.Post("/{order_id}/cancel", hs.Orders.CancelOrder)
			})

			r.Route("/auth", func(r chi.Router) {
				r.Post("/login", hs.Auth.Login)
				r.Post("/google", hs.Auth.GoogleLogin)
				r.Post("/register", hs.Auth.Register)
				r.Post("/logout", hs.Auth.Logout)
				r.With(RequireCustomer(tokens)).Get("/user", hs.Auth.CurrentUser)
			})
		})

		r.Route("/flash-sales", func(r chi.Router) {
			r.Get("/{sale_id}/countdown/stream", hs.FlashSales.StreamCountdown)
			r.Group(func(r chi.Router) {
				timed(r, cfg.RequestTimeout)
				r.Get("/", hs.FlashSales.ListFlashSales)
				r.Get("/{sale_id}", hs.FlashSales.GetFlashSale)
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(CartSession(cfg.SecureCookie))
			r.Use(OptionalCustomer(tokens))

			r.Get("/quote/stream", hs.Cart.StreamQuote)
			r.Group(func(r chi.Router) {
				timed(r, cfg.RequestTimeout)
				r.Get("/", hs.Cart.GetCart)
				r.Delete("/", hs.Cart.ClearCart)
				r.Get("/quote", hs.Cart.GetQuote)
				r.Post("/items", hs.Cart.AddItem)
				r.Put("/items/{product_id}", hs.Cart.UpdateQuantity)
				r.Delete("/items/{product_id}", hs.Cart.RemoveItem)
				r.Post("/coupon", hs.Cart.ApplyCoupon)
				r.Delete("/coupon", hs.Cart.RemoveCoupon)
			})
		})
	})

	r.Route("/admin/api/v1", func(r chi.Router) {
		timed(r, cfg.RequestTimeout)

		r.Post("/login", hs.Admin.Login)
		r.Post("/logout", hs.Admin.Logout)

		r.Group(func(r chi.Router) {
			r.Use(RequireAdmin(sessions))

			r.Get("/dashboard", hs.Admin.Dashboard)
			r.Get("/audit", hs.Admin.ListAudit)

			for _, res := range []backend.Resource{
				backend.ResourceProducts,
				backend.ResourceCategories,
				backend.ResourceCoupons,
				backend.ResourceFlashSales,
			} {
				r.Route("/"+string(res), func(r chi.Router) {
					r.Get("/", hs.Admin.List(res))
					r.Post("/", hs.Admin.Create(res))
					r.Get("/{id}", hs.Admin.Get(res))
					r.Patch("/{id}", hs.Admin.Update(res))
					r.Delete("/{id}", hs.Admin.Delete(res))
				})
			}

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", hs.Admin.List(backend.ResourceOrders))
				r.Get("/{id}", hs.Admin.Get(backend.ResourceOrders))
				r.Patch("/{id}/status", hs.Admin.SetOrderStatus)
			})

			r.Route("/users", func(r chi.Router) {
				r.Get("/", hs.Admin.List(backend.ResourceUsers))
				r.Post("/{id}/activate", hs.Admin.ActivateUser)
				r.Post("/{id}/deactivate", hs.Admin.DeactivateUser)
			})
		})
	})

	return r
}

// timed bounds ordinary request/response routes. Event streams are mounted
// without it.
func timed(r chi.Router, timeout time.Duration) {
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))
}
