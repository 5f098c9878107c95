package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/RFarrand/commis/internal/agreement"
	agreementStore "github.com/RFarrand/commis/internal/agreement/store"
	auditStore "github.com/RFarrand/commis/internal/audit/store"
	"github.com/RFarrand/commis/internal/charge"
	chargeStore "github.com/RFarrand/commis/internal/charge/store"
	"github.com/RFarrand/commis/internal/config"
	"github.com/RFarrand/commis/internal/contribution"
	contributionStore "github.com/RFarrand/commis/internal/contribution/store"
	"github.com/RFarrand/commis/internal/credit"
	creditStore "github.com/RFarrand/commis/internal/credit/store"
	"github.com/RFarrand/commis/internal/database"
	"github.com/RFarrand/commis/internal/export"
	"github.com/RFarrand/commis/internal/feature"
	commisHttp "github.com/RFarrand/commis/internal/http"
	agreementHandler "github.com/RFarrand/commis/internal/http/agreement"
	chargeHandler "github.com/RFarrand/commis/internal/http/charge"
	contributionHandler "github.com/RFarrand/commis/internal/http/contribution"
	creditHandler "github.com/RFarrand/commis/internal/http/credit"
	partyHandler "github.com/RFarrand/commis/internal/http/party"
	ruleHandler "github.com/RFarrand/commis/internal/http/rule"
	runHandler "github.com/RFarrand/commis/internal/http/run"
	vatHandler "github.com/RFarrand/commis/internal/http/vat"
	"github.com/RFarrand/commis/internal/party"
	partyStore "github.com/RFarrand/commis/internal/party/store"
	"github.com/RFarrand/commis/internal/rule"
	ruleStore "github.com/RFarrand/commis/internal/rule/store"
	"github.com/RFarrand/commis/internal/run"
	runStore "github.com/RFarrand/commis/internal/run/store"
	vatStore "github.com/RFarrand/commis/internal/vat/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	flags := feature.Override(cfg.Features)
	sink := auditStore.New(db)

	var (
		partyService        = party.NewService(partyStore.New(db))
		agreementService    = agreement.NewService(agreementStore.New(db))
		ruleService         = rule.NewService(ruleStore.New(db))
		contributionService = contribution.NewService(contributionStore.New(db))
		creditService       = credit.NewService(creditStore.New(db), sink)
		exportService       = export.NewService(cfg.Export.Endpoint, cfg.Export.Token)
		runService          = run.NewService(runStore.New(db), flags, sink, exportService)
		chargeService       = charge.NewService(chargeStore.New(db), flags, sink)
	)

	router := commisHttp.New(cfg.Auth.JWTSecret, commisHttp.Handlers{
		Runs:          runHandler.NewHandler(runService),
		Charges:       chargeHandler.NewHandler(chargeService),
		Parties:       partyHandler.NewHandler(partyService),
		Agreements:    agreementHandler.NewHandler(agreementService),
		Rules:         ruleHandler.NewHandler(ruleService),
		VAT:           vatHandler.NewHandler(vatStore.New(db)),
		Credits:       creditHandler.NewHandler(creditService),
		Contributions: contributionHandler.NewHandler(contributionService),
	})

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "app", cfg.App.Name, "port", port)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
