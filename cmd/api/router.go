package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pdv/internal/audit"
	"github.com/noah-isme/backend-pdv/internal/auth"
	"github.com/noah-isme/backend-pdv/internal/branch"
	"github.com/noah-isme/backend-pdv/internal/cart"
	"github.com/noah-isme/backend-pdv/internal/catalog"
	"github.com/noah-isme/backend-pdv/internal/checkout"
	"github.com/noah-isme/backend-pdv/internal/commission"
	"github.com/noah-isme/backend-pdv/internal/common"
	"github.com/noah-isme/backend-pdv/internal/customer"
	"github.com/noah-isme/backend-pdv/internal/drawer"
	"github.com/noah-isme/backend-pdv/internal/health"
	guard "github.com/noah-isme/backend-pdv/internal/http/middleware"
	"github.com/noah-isme/backend-pdv/internal/obs"
	"github.com/noah-isme/backend-pdv/internal/ratelimit"
	"github.com/noah-isme/backend-pdv/internal/report"
	"github.com/noah-isme/backend-pdv/internal/security"
)

const (
	accessCookie = "pdv_access"
	csrfHeader   = "X-CSRF-Token"
)

// routes collects everything the router mounts.
type routes struct {
	Logger         zerolog.Logger
	ServiceName    string
	CORSOrigins    string
	BodyLimitBytes int64
	HSTS           bool
	Metrics        *obs.HTTPMetrics

	Auth       *auth.Service
	Login      *ratelimit.Handler
	Idem       common.Idem
	Audit      audit.HTTPRecorder
	Health     health.Handler
	Catalog    *catalog.Handler
	AuthHTTP   *auth.Handler
	Customers  *customer.Handler
	Carts      *cart.Handler
	Checkout   *checkout.Handler
	Commission *commission.Handler
	Reports    *report.Handler
	Drawer     *drawer.Handler
	AuditHTTP  *audit.Handler
}

func (rt routes) handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(obs.Tracing(rt.ServiceName))
	r.Use(obs.HTTPObs{Metrics: rt.Metrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: rt.Logger, Quiet: []string{"/health/live", "/health/ready", "/metrics"}}.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers{EnableHSTS: rt.HSTS}.Middleware)
	r.Use(security.CORS(rt.CORSOrigins))
	r.Use(security.BodyLimit{Max: rt.BodyLimitBytes}.Middleware)

	r.Get("/health/live", rt.Health.Live)
	r.Get("/health/ready", rt.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	authn := auth.Middleware{Service: rt.Auth, AccessCookie: accessCookie}
	supervisors := auth.RequireRole(common.RoleAdmin, common.RoleManager)
	adminOnly := auth.RequireRole(common.RoleAdmin)
	audited := func(action, idParam string) func(http.Handler) http.Handler {
		return rt.Audit.Middleware(audit.HTTPConfig{Action: action, ResourceIDParam: idParam})
	}

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(security.CSRF{Header: csrfHeader, SessionCookie: accessCookie}.Middleware)

		v.Route("/auth", func(a chi.Router) {
			login := http.Handler(http.HandlerFunc(rt.AuthHTTP.Login))
			if rt.Login != nil {
				login = rt.Login.Middleware(login)
			}
			a.Method(http.MethodPost, "/login", login)
			a.Post("/logout", rt.AuthHTTP.Logout)
			a.With(authn.RequireAuth).Get("/me", rt.AuthHTTP.Me)
		})

		v.Group(func(p chi.Router) {
			p.Use(authn.RequireAuth)
			p.Use(branch.NewResolver(branch.DefaultHeader).Middleware)
			p.Use(guard.RequireBranch)

			p.Get("/products/lookup", rt.Catalog.Lookup)
			p.Get("/products", rt.Catalog.Search)
			p.Get("/customers/{id}", rt.Customers.Get)

			p.Route("/carts", func(c chi.Router) {
				c.Post("/", rt.Carts.Open)
				c.Get("/{id}", rt.Carts.Get)
				c.Delete("/{id}", rt.Carts.Reset)
				c.Post("/{id}/items", rt.Carts.AddItem)
				c.Patch("/{id}/items/{productID}", rt.Carts.SetQuantity)
				c.Delete("/{id}/items/{productID}", rt.Carts.RemoveItem)
				c.Post("/{id}/quote", rt.Checkout.Quote)
				c.With(rt.Idem.Middleware).Post("/{id}/checkout", rt.Checkout.Checkout)
			})

			p.Get("/sales/{id}", rt.Checkout.GetSale)
			p.With(supervisors, audited("sale.reverse", "id")).Post("/sales/{id}/reverse", rt.Checkout.Reverse)

			p.Route("/commission/config", func(c chi.Router) {
				c.Get("/", rt.Commission.GetConfig)
				c.With(adminOnly, audited("commission.config.save", "")).Put("/", rt.Commission.PutConfig)
				c.With(adminOnly, audited("commission.tier.add", "")).Post("/tiers", rt.Commission.AddTier)
				c.With(adminOnly, audited("commission.tier.remove", "index")).Delete("/tiers/{index}", rt.Commission.RemoveTier)
			})
			p.Get("/performance/me", rt.Commission.Me)
			p.With(supervisors).Get("/performance/{sellerID}", rt.Commission.Seller)
			p.With(supervisors, audited("goal.set", "")).Put("/goals", rt.Commission.PutGoal)

			p.Route("/advances", func(a chi.Router) {
				a.Use(supervisors)
				a.Get("/", rt.Commission.ListAdvances)
				a.With(audited("advance.record", "")).Post("/", rt.Commission.RecordAdvance)
				a.With(audited("advance.update", "id")).Put("/{id}", rt.Commission.UpdateAdvance)
				a.With(audited("advance.delete", "id")).Delete("/{id}", rt.Commission.DeleteAdvance)
			})

			p.With(supervisors).Get("/reports/branch", rt.Reports.Branch)
			p.With(supervisors).Get("/reports/payouts", rt.Commission.Payouts)

			p.Route("/drawer", func(d chi.Router) {
				d.Use(supervisors)
				d.With(audited("drawer.movement", "")).Post("/movements", rt.Drawer.AddMovement)
				d.Get("/closing", rt.Drawer.Closing)
				d.With(audited("drawer.reconcile", "")).Post("/closing/reconcile", rt.Drawer.Reconcile)
			})

			p.With(supervisors).Get("/audit", rt.AuditHTTP.List)
		})
	})
	return r
}
