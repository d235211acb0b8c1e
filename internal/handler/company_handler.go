package handler

import (
	"net/http"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// PUT /v1/companies/{companyId}/default-split-rules
// ============================================================

func updateDefaultSplitRulesHandler(companies *service.CompanyService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/companies/{companyId}/default-split-rules")
		defer span.End()

		if companies == nil {
			unavailable(w, "companies")
			return
		}

		companyID := chi.URLParam(r, "companyId")
		span.SetAttributes(attribute.String("company.id", companyID))
		if err := authorizeCompany(ctx, companyID, "configure default split rules"); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var req domain.DefaultSplitRulesRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		company, err := companies.UpdateDefaultSplitRules(ctx, companyID, req.SplitRules)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, company)
	}
}

// ============================================================
// POST /v1/splits/simulate
// ============================================================

func simulateSplitHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/splits/simulate")
		defer span.End()

		var req domain.SplitSimulationRequest
		if err := decodeJSON(r, &req, false); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "amount must be positive")
			return
		}

		resp, err := service.SimulateSplit(&req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
