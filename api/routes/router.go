package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tillpoint-terminal/api/controllers"
	"github.com/angelmondragon/tillpoint-terminal/api/middleware"
	"github.com/angelmondragon/tillpoint-terminal/internal/authclient"
	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/internal/session"
	"github.com/angelmondragon/tillpoint-terminal/internal/syncer"
	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
)

// Params carries everything the register's local control surface needs.
// Auth, Remote, and Registry may be nil depending on configuration.
type Params struct {
	Config   *config.Config
	Logger   *logger.Logger
	Local    docstore.Pinger
	Remote   docstore.Pinger
	Auth     *authclient.Client
	Session  *session.Session
	Invoices *invoices.Manager
	Syncer   *syncer.Syncer
	Registry *prometheus.Registry
}

// NewRouter builds the terminal's HTTP surface. It listens on localhost
// for the register UI; it is not an internet-facing API.
func NewRouter(p Params) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(p.Logger),
		middleware.RequestID(p.Logger),
		middleware.Logging(p.Logger),
		middleware.Identity(p.Auth, p.Logger),
	)

	r.Get("/healthz", controllers.HealthLive(p.Config))
	r.Get("/readyz", controllers.HealthReady(p.Config, p.Local, p.Remote))

	if p.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", controllers.AuthLogin(p.Auth, p.Logger))

		r.Get("/sync/status", controllers.SyncStatus(p.Syncer, p.Logger))
		r.Post("/sync", controllers.SyncTrigger(p.Syncer, p.Logger))

		r.Post("/session/init", controllers.SessionInit(p.Session, p.Logger))
		r.Post("/session/switch", controllers.SessionSwitch(p.Session, p.Logger))
		r.Post("/session/reset", controllers.SessionReset(p.Session, p.Logger))
		r.Get("/session/profile", controllers.SessionProfile(p.Session, p.Logger))
		r.Get("/prices", controllers.PriceLookup(p.Session, p.Logger))

		r.Get("/cart", controllers.CartView(p.Invoices, p.Logger))
		r.Post("/cart/items", controllers.CartAddItem(p.Invoices, p.Logger))
		r.Post("/cart/items/qty", controllers.CartSetQty(p.Invoices, p.Logger))
		r.Post("/cart/customer", controllers.CartSetCustomer(p.Invoices, p.Logger))
		r.Post("/cart/discount", controllers.CartSetDiscount(p.Invoices, p.Logger))
		r.Post("/cart/payment", controllers.CartSetPayment(p.Invoices, p.Logger))
		r.Post("/cart/cancel", controllers.CartCancel(p.Invoices, p.Logger))

		r.Post("/drafts", controllers.DraftSave(p.Invoices, p.Logger))
		r.Get("/drafts", controllers.DraftList(p.Invoices, p.Logger))
		r.Post("/drafts/resume/*", controllers.DraftResume(p.Invoices, p.Logger))
		r.Delete("/drafts/*", controllers.DraftCancel(p.Invoices, p.Logger))

		r.Post("/invoices", controllers.InvoiceSubmit(p.Invoices, p.Logger))
		r.Get("/invoices", controllers.InvoiceList(p.Invoices, p.Logger))
		r.Get("/invoices/next-number", controllers.InvoiceNumberPreview(p.Invoices, p.Logger))
		r.Get("/invoices/*", controllers.InvoiceGet(p.Invoices, p.Logger))
	})

	return r
}
