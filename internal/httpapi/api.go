// Package httpapi is the JSON HTTP surface of the service. Handlers are
// thin: decode, call the domain service with the actor from the request
// context, map errors to status codes. All authorization lives below, in
// the services and internal/authz.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"biovault.org/internal/auth"
	"biovault.org/internal/donors"
	"biovault.org/internal/obs"
	"biovault.org/internal/recruiting"
	"biovault.org/internal/sponsors"
	"biovault.org/internal/trials"
	"biovault.org/internal/webstore"
)

// Pinger is the readiness dependency, usually the Postgres store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks downstream dependencies for /readyz.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Config wires the domain services into the HTTP layer.
type Config struct {
	Accounts   *auth.Service
	Trials     *trials.Service
	Donors     *donors.Service
	Recruiting *recruiting.Service
	Sponsors   *sponsors.Service
	Webstore   *webstore.Service

	Probe    ReadyProbe
	Version  string
	Logger   *slog.Logger
	TokenTTL time.Duration
}

// API is the HTTP layer.
type API struct {
	router     *mux.Router
	log        *slog.Logger
	accounts   *auth.Service
	trials     *trials.Service
	donors     *donors.Service
	recruiting *recruiting.Service
	sponsors   *sponsors.Service
	webstore   *webstore.Service
	probe      ReadyProbe
	version    string
	tokenTTL   time.Duration
}

const defaultTokenTTL = 24 * time.Hour

func New(cfg Config) *API {
	a := &API{
		router:     mux.NewRouter(),
		log:        cfg.Logger,
		accounts:   cfg.Accounts,
		trials:     cfg.Trials,
		donors:     cfg.Donors,
		recruiting: cfg.Recruiting,
		sponsors:   cfg.Sponsors,
		webstore:   cfg.Webstore,
		probe:      cfg.Probe,
		version:    cfg.Version,
		tokenTTL:   cfg.TokenTTL,
	}
	if a.log == nil {
		a.log = obs.Logger()
	}
	if a.tokenTTL <= 0 {
		a.tokenTTL = defaultTokenTTL
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router

	r.HandleFunc("/healthz", a.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyz).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)

	// Accounts.
	r.HandleFunc("/v1/auth/register", a.register).Methods(http.MethodPost)
	r.HandleFunc("/v1/auth/token", a.issueToken).Methods(http.MethodPost)
	r.HandleFunc("/v1/me", a.me).Methods(http.MethodGet)
	r.HandleFunc("/v1/me", a.updateMe).Methods(http.MethodPatch)
	r.HandleFunc("/v1/actors", a.listActors).Methods(http.MethodGet)
	r.HandleFunc("/v1/actors/{id}", a.getActor).Methods(http.MethodGet)
	r.HandleFunc("/v1/actors/{id}", a.updateActor).Methods(http.MethodPatch)

	// Clinical trials.
	r.HandleFunc("/v1/studies", a.listStudies).Methods(http.MethodGet)
	r.HandleFunc("/v1/studies", a.createStudy).Methods(http.MethodPost)
	r.HandleFunc("/v1/studies/{id}", a.getStudy).Methods(http.MethodGet)
	r.HandleFunc("/v1/studies/{id}", a.updateStudy).Methods(http.MethodPatch)
	r.HandleFunc("/v1/sites", a.listSites).Methods(http.MethodGet)
	r.HandleFunc("/v1/sites", a.createSite).Methods(http.MethodPost)
	r.HandleFunc("/v1/sites/{id}", a.getSite).Methods(http.MethodGet)
	r.HandleFunc("/v1/sites/{id}", a.updateSite).Methods(http.MethodPatch)
	r.HandleFunc("/v1/participants", a.listParticipants).Methods(http.MethodGet)
	r.HandleFunc("/v1/participants", a.enrollParticipant).Methods(http.MethodPost)
	r.HandleFunc("/v1/participants/{id}", a.getParticipant).Methods(http.MethodGet)
	r.HandleFunc("/v1/participants/{id}", a.updateParticipant).Methods(http.MethodPatch)
	r.HandleFunc("/v1/visits", a.listVisits).Methods(http.MethodGet)
	r.HandleFunc("/v1/visits", a.scheduleVisit).Methods(http.MethodPost)
	r.HandleFunc("/v1/visits/{id}", a.getVisit).Methods(http.MethodGet)
	r.HandleFunc("/v1/visits/{id}", a.updateVisit).Methods(http.MethodPatch)
	r.HandleFunc("/v1/adverse-events", a.listAdverseEvents).Methods(http.MethodGet)
	r.HandleFunc("/v1/adverse-events", a.reportAdverseEvent).Methods(http.MethodPost)
	r.HandleFunc("/v1/adverse-events/{id}", a.getAdverseEvent).Methods(http.MethodGet)
	r.HandleFunc("/v1/study-documents", a.listDocuments).Methods(http.MethodGet)
	r.HandleFunc("/v1/study-documents", a.addDocument).Methods(http.MethodPost)
	r.HandleFunc("/v1/study-documents/{id}", a.getDocument).Methods(http.MethodGet)

	// Donor registry. The /me route must precede the {id} routes.
	r.HandleFunc("/v1/donors/me", a.myDonor).Methods(http.MethodGet)
	r.HandleFunc("/v1/donors", a.listDonors).Methods(http.MethodGet)
	r.HandleFunc("/v1/donors", a.registerDonor).Methods(http.MethodPost)
	r.HandleFunc("/v1/donors/{id}", a.getDonor).Methods(http.MethodGet)
	r.HandleFunc("/v1/donors/{id}", a.updateDonor).Methods(http.MethodPatch)
	r.HandleFunc("/v1/donors/{id}/history", a.getHistory).Methods(http.MethodGet)
	r.HandleFunc("/v1/donors/{id}/history", a.putHistory).Methods(http.MethodPut)
	r.HandleFunc("/v1/donation-types", a.listDonationTypes).Methods(http.MethodGet)
	r.HandleFunc("/v1/donation-types", a.createDonationType).Methods(http.MethodPost)
	r.HandleFunc("/v1/appointments", a.listAppointments).Methods(http.MethodGet)
	r.HandleFunc("/v1/appointments", a.bookAppointment).Methods(http.MethodPost)
	r.HandleFunc("/v1/appointments/{id}", a.getAppointment).Methods(http.MethodGet)
	r.HandleFunc("/v1/appointments/{id}", a.updateAppointment).Methods(http.MethodPatch)
	r.HandleFunc("/v1/donations", a.listDonations).Methods(http.MethodGet)
	r.HandleFunc("/v1/donations", a.recordDonation).Methods(http.MethodPost)
	r.HandleFunc("/v1/donations/{id}", a.getDonation).Methods(http.MethodGet)
	r.HandleFunc("/v1/sample-types", a.listSampleTypes).Methods(http.MethodGet)
	r.HandleFunc("/v1/sample-types", a.createSampleType).Methods(http.MethodPost)
	r.HandleFunc("/v1/samples", a.listSamples).Methods(http.MethodGet)
	r.HandleFunc("/v1/samples", a.registerSample).Methods(http.MethodPost)
	r.HandleFunc("/v1/samples/{id}", a.getSample).Methods(http.MethodGet)
	r.HandleFunc("/v1/samples/{id}", a.updateSample).Methods(http.MethodPatch)

	// Recruiting pipeline.
	r.HandleFunc("/v1/prospects", a.listProspects).Methods(http.MethodGet)
	r.HandleFunc("/v1/prospects", a.addProspect).Methods(http.MethodPost)
	r.HandleFunc("/v1/prospects/{id}", a.getProspect).Methods(http.MethodGet)
	r.HandleFunc("/v1/prospects/{id}", a.updateProspect).Methods(http.MethodPatch)
	r.HandleFunc("/v1/contact-logs", a.listContactLogs).Methods(http.MethodGet)
	r.HandleFunc("/v1/contact-logs", a.logContact).Methods(http.MethodPost)
	r.HandleFunc("/v1/referrals", a.listReferrals).Methods(http.MethodGet)
	r.HandleFunc("/v1/referrals", a.addReferral).Methods(http.MethodPost)
	r.HandleFunc("/v1/referrals/{id}", a.updateReferral).Methods(http.MethodPatch)

	// Sponsor and researcher portal.
	r.HandleFunc("/v1/sponsor-profiles", a.listSponsorProfiles).Methods(http.MethodGet)
	r.HandleFunc("/v1/sponsor-profiles", a.createSponsorProfile).Methods(http.MethodPost)
	r.HandleFunc("/v1/sponsor-profiles/{id}", a.getSponsorProfile).Methods(http.MethodGet)
	r.HandleFunc("/v1/sponsor-profiles/{id}", a.updateSponsorProfile).Methods(http.MethodPatch)
	r.HandleFunc("/v1/researcher-profiles", a.listResearcherProfiles).Methods(http.MethodGet)
	r.HandleFunc("/v1/researcher-profiles", a.createResearcherProfile).Methods(http.MethodPost)
	r.HandleFunc("/v1/researcher-profiles/{id}", a.getResearcherProfile).Methods(http.MethodGet)
	r.HandleFunc("/v1/researcher-profiles/{id}", a.updateResearcherProfile).Methods(http.MethodPatch)
	r.HandleFunc("/v1/protocol-drafts", a.listDrafts).Methods(http.MethodGet)
	r.HandleFunc("/v1/protocol-drafts", a.createDraft).Methods(http.MethodPost)
	r.HandleFunc("/v1/protocol-drafts/{id}", a.getDraft).Methods(http.MethodGet)
	r.HandleFunc("/v1/protocol-drafts/{id}", a.updateDraft).Methods(http.MethodPatch)
	r.HandleFunc("/v1/sample-requests", a.listSampleRequests).Methods(http.MethodGet)
	r.HandleFunc("/v1/sample-requests", a.createSampleRequest).Methods(http.MethodPost)
	r.HandleFunc("/v1/sample-requests/{id}", a.getSampleRequest).Methods(http.MethodGet)
	r.HandleFunc("/v1/sample-requests/{id}", a.updateSampleRequest).Methods(http.MethodPatch)

	// Storefront. Product catalog reads are the only anonymous routes.
	r.HandleFunc("/v1/products", a.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/v1/products", a.createProduct).Methods(http.MethodPost)
	r.HandleFunc("/v1/products/{id}", a.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/v1/products/{id}", a.updateProduct).Methods(http.MethodPatch)
	r.HandleFunc("/v1/products/{id}/inventory", a.getInventory).Methods(http.MethodGet)
	r.HandleFunc("/v1/products/{id}/inventory", a.setInventory).Methods(http.MethodPut)
	r.HandleFunc("/v1/cart", a.getCart).Methods(http.MethodGet)
	r.HandleFunc("/v1/cart/items", a.setCartItem).Methods(http.MethodPut)
	r.HandleFunc("/v1/orders", a.listOrders).Methods(http.MethodGet)
	r.HandleFunc("/v1/orders", a.checkout).Methods(http.MethodPost)
	r.HandleFunc("/v1/orders/{id}", a.getOrder).Methods(http.MethodGet)
	r.HandleFunc("/v1/orders/{id}", a.updateOrderStatus).Methods(http.MethodPatch)
	r.HandleFunc("/v1/invoices", a.listInvoices).Methods(http.MethodGet)
	r.HandleFunc("/v1/invoices/{id}", a.getInvoice).Methods(http.MethodGet)
	r.HandleFunc("/v1/invoices/{id}/pay", a.payInvoice).Methods(http.MethodPost)
	r.HandleFunc("/v1/api-keys", a.listAPIKeys).Methods(http.MethodGet)
	r.HandleFunc("/v1/api-keys", a.createAPIKey).Methods(http.MethodPost)
	r.HandleFunc("/v1/api-keys/{id}", a.revokeAPIKey).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = a.withAuth(h)
	h = RateLimit(h, 50, 25)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = a.logging(h)
	h = RequestID(h)
	return h
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "biovault-api",
		"version": a.version,
	})
}

func (a *API) readyz(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "biovault-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
