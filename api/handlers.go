/*
handlers.go - HTTP API handlers for the commission engine

PURPOSE:
  Exposes the commission engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Commissions:
    POST   /api/commissions/calculate       Calculate without persisting
    GET    /api/policies/{id}/commission    Current record for a policy
    POST   /api/policies/{id}/recalculate   Recalculate and replace record

  Policies:
    GET    /api/policies                    List policy snapshots
    POST   /api/policies                    Save snapshot and calculate

  Rules:
    GET    /api/rules                       List payout rules
    POST   /api/rules                       Load rule from JSON

  Partners:
    GET    /api/partners                    List channel partners
    POST   /api/partners                    Create channel partner

  Admin:
    POST   /api/admin/resync                Recompute all records

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Engine: Resolver + calculator + distributor pipeline
  - Stores: Rule, partner, policy and record access
  - RuleFactory: JSON to rule conversion
  - Validator: Request validation

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors
  An unmatched policy is NOT an error: calculation succeeds with
  status "unmatched" and zero amounts.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/factory"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine      *commission.Engine
	Rules       commission.RuleStore
	Partners    commission.PartnerStore
	Policies    commission.PolicyStore
	Results     commission.ResultStore
	RuleFactory *factory.RuleFactory

	validate *validator.Validate
	log      *zap.Logger
}

// Stores bundles the storage interfaces a handler needs. A single struct
// (like the SQLite store) typically satisfies all of them.
type Stores struct {
	Rules    commission.RuleStore
	Partners commission.PartnerStore
	Policies commission.PolicyStore
	Results  commission.ResultStore
}

// NewHandler creates a new handler with the given engine and stores.
func NewHandler(engine *commission.Engine, stores Stores, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Engine:      engine,
		Rules:       stores.Rules,
		Partners:    stores.Partners,
		Policies:    stores.Policies,
		Results:     stores.Results,
		RuleFactory: factory.NewRuleFactory(),
		validate:    validator.New(),
		log:         log,
	}
}

// =============================================================================
// COMMISSION HANDLERS
// =============================================================================

// CalculateCommission computes commission for an ad-hoc policy snapshot
// without persisting anything. Quote-style usage.
// POST /api/commissions/calculate
func (h *Handler) CalculateCommission(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	policy, err := h.policyFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}

	result, err := h.Engine.Calculate(r.Context(), policy)
	if err != nil {
		h.log.Error("calculation failed",
			zap.String("policy_id", string(policy.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Calculation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// GetPolicyCommission returns the current commission record for a policy.
// GET /api/policies/{id}/commission
func (h *Handler) GetPolicyCommission(w http.ResponseWriter, r *http.Request) {
	id := commission.PolicyID(chi.URLParam(r, "id"))

	result, err := h.Results.ByPolicy(r.Context(), id)
	if errors.Is(err, commission.ErrResultNotFound) {
		writeError(w, http.StatusNotFound, "No commission record for policy", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get commission record", err)
		return
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// RecalculatePolicy recomputes a stored policy against the current rules
// and replaces its commission record.
// POST /api/policies/{id}/recalculate
func (h *Handler) RecalculatePolicy(w http.ResponseWriter, r *http.Request) {
	id := commission.PolicyID(chi.URLParam(r, "id"))

	result, err := h.Engine.RecalculateByID(r.Context(), id)
	if errors.Is(err, commission.ErrPolicyNotFound) {
		writeError(w, http.StatusNotFound, "Policy not found", nil)
		return
	}
	if err != nil {
		h.log.Error("recalculation failed",
			zap.String("policy_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Recalculation failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toResultDTO(result))
}

// Resync recomputes commission records for every stored policy,
// optionally scoped by ?org_id=.
// POST /api/admin/resync
func (h *Handler) Resync(w http.ResponseWriter, r *http.Request) {
	orgID := commission.OrgID(r.URL.Query().Get("org_id"))

	report, err := h.Engine.ResyncAll(r.Context(), orgID)
	if err != nil {
		h.log.Error("resync failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Resync failed", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns stored policy snapshots, optionally scoped by ?org_id=.
// GET /api/policies
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	orgID := commission.OrgID(r.URL.Query().Get("org_id"))

	policies, err := h.Policies.ListPolicies(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy saves a policy snapshot and immediately calculates and
// persists its commission record.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return
	}

	policy, err := h.policyFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy", err)
		return
	}

	if err := h.Policies.SavePolicy(r.Context(), policy); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}

	result, err := h.Engine.Recalculate(r.Context(), policy)
	if err != nil {
		h.log.Error("calculation on create failed",
			zap.String("policy_id", string(policy.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Calculation failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toResultDTO(result))
}

// =============================================================================
// RULE HANDLERS
// =============================================================================

// ListRules returns payout rules for an org.
// GET /api/rules?org_id=
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	orgID := commission.OrgID(r.URL.Query().Get("org_id"))
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id query parameter is required", nil)
		return
	}

	rules, err := h.Rules.ListRules(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rules", err)
		return
	}

	dtos := make([]factory.RuleJSON, len(rules))
	for i := range rules {
		dtos[i] = h.RuleFactory.ToJSON(&rules[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateRule loads a payout rule from its JSON definition.
// POST /api/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rule, err := h.RuleFactory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rule definition", err)
		return
	}

	if err := h.Rules.SaveRule(r.Context(), rule); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save rule", err)
		return
	}

	h.log.Info("rule created",
		zap.String("rule_id", string(rule.ID)),
		zap.String("org_id", string(rule.OrgID)),
		zap.String("line", string(rule.Line)))
	writeJSON(w, http.StatusCreated, h.RuleFactory.ToJSON(rule))
}

// =============================================================================
// PARTNER HANDLERS
// =============================================================================

// ListPartners returns channel partners, optionally scoped by ?org_id=.
// GET /api/partners
func (h *Handler) ListPartners(w http.ResponseWriter, r *http.Request) {
	orgID := commission.OrgID(r.URL.Query().Get("org_id"))

	partners, err := h.Partners.ListPartners(r.Context(), orgID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list partners", err)
		return
	}

	dtos := make([]PartnerDTO, len(partners))
	for i := range partners {
		dtos[i] = toPartnerDTO(&partners[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePartner creates a channel partner from its JSON definition.
// POST /api/partners
func (h *Handler) CreatePartner(w http.ResponseWriter, r *http.Request) {
	var req CreatePartnerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	partner, err := h.RuleFactory.PartnerFromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid partner definition", err)
		return
	}

	if err := h.Partners.SavePartner(r.Context(), partner); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save partner", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPartnerDTO(partner))
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports service liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// policyFromRequest converts an API request into a domain policy snapshot.
func (h *Handler) policyFromRequest(req CalculateRequest) (*commission.Policy, error) {
	p := &commission.Policy{
		ID:               commission.PolicyID(req.PolicyID),
		OrgID:            commission.OrgID(req.OrgID),
		PolicyNumber:     req.PolicyNumber,
		Line:             commission.ParseLine(req.LineOfBusiness),
		ProductID:        req.ProductID,
		ProductType:      req.ProductType,
		Provider:         req.Provider,
		GrossPremium:     decimal.NewFromFloat(req.GrossPremium),
		NetPremium:       decimal.NewFromFloat(req.NetPremium),
		PaymentFrequency: commission.ParseFrequency(req.PaymentFrequency),
		SumAssured:       decimal.NewFromFloat(req.SumAssured),
		Channel:          commission.ParseChannel(req.ChannelType),
		PartnerID:        commission.PartnerID(req.PartnerID),
		Renewal:          req.Renewal,
	}
	if p.ID == "" {
		p.ID = commission.PolicyID(uuid.NewString())
	}

	if req.IssuedAt != "" {
		issued, err := time.Parse("2006-01-02", req.IssuedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid issued_at format (use YYYY-MM-DD): %w", err)
		}
		p.IssuedAt = issued
	}

	if req.Details != nil {
		if m := req.Details.Motor; m != nil {
			p.Details.Motor = &commission.MotorDetails{
				ODPremium:   decimal.NewFromFloat(m.ODPremium),
				TPPremium:   decimal.NewFromFloat(m.TPPremium),
				VehicleType: m.VehicleType,
			}
		}
		if l := req.Details.Life; l != nil {
			p.Details.Life = &commission.LifeDetails{
				PolicyTerm:         l.PolicyTerm,
				PremiumPaymentTerm: l.PremiumPaymentTerm,
			}
		}
		if hd := req.Details.Health; hd != nil {
			p.Details.Health = &commission.HealthDetails{
				PlanType: commission.ParsePlanType(hd.PlanType),
			}
		}
		if c := req.Details.Commercial; c != nil {
			p.Details.Commercial = &commission.CommercialDetails{
				SumAssured: decimal.NewFromFloat(c.SumAssured),
			}
		}
	}

	return p, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
