package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/RFarrand/commis/internal/auth"
	agreementhandler "github.com/RFarrand/commis/internal/http/agreement"
	chargehandler "github.com/RFarrand/commis/internal/http/charge"
	contributionhandler "github.com/RFarrand/commis/internal/http/contribution"
	credithandler "github.com/RFarrand/commis/internal/http/credit"
	partyhandler "github.com/RFarrand/commis/internal/http/party"
	rulehandler "github.com/RFarrand/commis/internal/http/rule"
	runhandler "github.com/RFarrand/commis/internal/http/run"
	vathandler "github.com/RFarrand/commis/internal/http/vat"
)

type Handlers struct {
	Runs          *runhandler.Handler
	Charges       *chargehandler.Handler
	Parties       *partyhandler.Handler
	Agreements    *agreementhandler.Handler
	Rules         *rulehandler.Handler
	VAT           *vathandler.Handler
	Credits       *credithandler.Handler
	Contributions *contributionhandler.Handler
}

func New(jwtSecret string, h Handlers) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(auth.Middleware(jwtSecret))

		r.Post("/evaluate", h.Runs.Evaluate)

		r.Route("/runs", h.Runs.Routes)
		r.Route("/charges", h.Charges.Routes)
		r.Route("/parties", h.Parties.Routes)
		r.Route("/agreements", h.Agreements.Routes)
		r.Route("/rules", h.Rules.Routes)
		r.Route("/vat", h.VAT.Routes)
		r.Route("/credits", h.Credits.Routes)
		r.Route("/contributions", h.Contributions.Routes)
	})

	return router
}
