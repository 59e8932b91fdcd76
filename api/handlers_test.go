package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/commission-engine/commission"
	"github.com/warp/commission-engine/commission/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := commission.NewEngine(mem, mem, mem, mem, nil)
	handler := NewHandler(engine, Stores{
		Rules:    mem,
		Partners: mem,
		Policies: mem,
		Results:  mem,
	}, nil)
	server := httptest.NewServer(NewRouter(handler))
	t.Cleanup(server.Close)
	return server, mem
}

func seedMotorRule(t *testing.T, mem *store.Memory) {
	t.Helper()
	rate := decimal.NewFromInt(10)
	err := mem.SaveRule(context.Background(), &commission.Rule{
		ID:            "rule-motor-1",
		OrgID:         "org-1",
		Line:          commission.LineMotor,
		FirstYearRate: rate,
		SourceTable:   "motor_payout_grids",
	})
	require.NoError(t, err, "seeding rule")
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err, "POST %s", url)
	return resp
}

func decodeResult(t *testing.T, resp *http.Response) ResultDTO {
	t.Helper()
	defer resp.Body.Close()
	var dto ResultDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&dto), "decoding result")
	return dto
}

const motorPolicyBody = `{
	"org_id": "org-1",
	"line_of_business": "motor",
	"provider": "Acme General",
	"gross_premium": 10000,
	"channel_type": "agent",
	"partner_id": "agent-1",
	"details": {"motor": {"od_premium": 8000, "tp_premium": 2000}}
}`

func TestCalculateEndpoint(t *testing.T) {
	// GIVEN a motor grid and an agent
	server, mem := newTestServer(t)
	seedMotorRule(t, mem)
	base := decimal.NewFromInt(70)
	mem.SavePartner(context.Background(), &commission.Partner{
		ID: "agent-1", OrgID: "org-1", Channel: commission.ChannelAgent,
		BasePercent: &base, Active: true,
	})

	// WHEN an ad-hoc calculation is requested
	resp := postJSON(t, server.URL+"/api/commissions/calculate", motorPolicyBody)

	// THEN the response carries the full split, rounded for display
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decodeResult(t, resp)
	require.Equal(t, "calculated", dto.Status, "error: %s", dto.Error)
	assert.Equal(t, float64(800), dto.InsurerCommission)
	assert.Equal(t, float64(560), dto.Shares.Agent)
	assert.Equal(t, float64(240), dto.Shares.Broker)

	// AND nothing was persisted
	_, err := mem.ByPolicy(context.Background(), commission.PolicyID(dto.PolicyID))
	assert.Error(t, err, "ad-hoc calculation should not persist a record")
}

func TestCalculateEndpointValidation(t *testing.T) {
	server, _ := newTestServer(t)

	cases := []struct {
		name string
		body string
	}{
		{"missing org", `{"line_of_business": "motor", "gross_premium": 100}`},
		{"negative premium", `{"org_id": "org-1", "line_of_business": "motor", "gross_premium": -5}`},
		{"malformed json", `{"org_id":`},
		{"bad issued_at", `{"org_id": "org-1", "line_of_business": "motor", "gross_premium": 100, "issued_at": "15/06/2025"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/api/commissions/calculate", tc.body)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCalculateUnmatchedIsNotAnError(t *testing.T) {
	// GIVEN no rules at all
	server, _ := newTestServer(t)

	// WHEN a calculation is requested
	resp := postJSON(t, server.URL+"/api/commissions/calculate", motorPolicyBody)

	// THEN the request succeeds with an unmatched result
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dto := decodeResult(t, resp)
	assert.Equal(t, "unmatched", dto.Status)
	assert.Equal(t, float64(0), dto.InsurerCommission)
}

func TestCreatePolicyPersistsRecord(t *testing.T) {
	// GIVEN a motor grid
	server, mem := newTestServer(t)
	seedMotorRule(t, mem)

	// WHEN a policy is created with an explicit id
	body := `{
		"policy_id": "pol-1",
		"org_id": "org-1",
		"line_of_business": "motor",
		"gross_premium": 10000,
		"details": {"motor": {"od_premium": 8000}}
	}`
	resp := postJSON(t, server.URL+"/api/policies/", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	dto := decodeResult(t, resp)
	assert.Equal(t, "pol-1", dto.PolicyID)

	// THEN both the snapshot and its record are stored
	_, err := mem.Policy(context.Background(), "pol-1")
	assert.NoError(t, err, "policy not stored")
	record, err := mem.ByPolicy(context.Background(), "pol-1")
	require.NoError(t, err, "record not stored")
	assert.True(t, record.InsurerCommission.Equal(decimal.NewFromInt(800)),
		"expected 800, got %s", record.InsurerCommission)

	// AND the record endpoint serves it
	getResp, err := http.Get(server.URL + "/api/policies/pol-1/commission")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	got := decodeResult(t, getResp)
	assert.Equal(t, float64(800), got.InsurerCommission)
}

func TestGetCommissionNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/policies/nobody/commission")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecalculateUnknownPolicy(t *testing.T) {
	server, _ := newTestServer(t)
	resp := postJSON(t, server.URL+"/api/policies/nobody/recalculate", "")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRecalculatePicksUpNewRules(t *testing.T) {
	// GIVEN a stored policy with no matching rule yet
	server, mem := newTestServer(t)
	ctx := context.Background()
	mem.SavePolicy(ctx, &commission.Policy{
		ID: "pol-1", OrgID: "org-1", Line: commission.LineMotor,
		GrossPremium: decimal.NewFromInt(10000),
		Details: commission.Details{Motor: &commission.MotorDetails{
			ODPremium: decimal.NewFromInt(8000),
		}},
	})

	resp := postJSON(t, server.URL+"/api/policies/pol-1/recalculate", "")
	first := decodeResult(t, resp)
	require.Equal(t, "unmatched", first.Status, "before rule load")

	// WHEN a grid is loaded and the policy recalculated
	seedMotorRule(t, mem)
	resp = postJSON(t, server.URL+"/api/policies/pol-1/recalculate", "")
	second := decodeResult(t, resp)

	// THEN the record flips to calculated
	assert.Equal(t, "calculated", second.Status)
	assert.Equal(t, float64(800), second.InsurerCommission)
}

func TestResyncEndpoint(t *testing.T) {
	// GIVEN two stored policies, one matchable
	server, mem := newTestServer(t)
	ctx := context.Background()
	seedMotorRule(t, mem)
	mem.SavePolicy(ctx, &commission.Policy{
		ID: "pol-1", OrgID: "org-1", Line: commission.LineMotor,
		GrossPremium: decimal.NewFromInt(10000),
		Details: commission.Details{Motor: &commission.MotorDetails{
			ODPremium: decimal.NewFromInt(8000),
		}},
	})
	mem.SavePolicy(ctx, &commission.Policy{
		ID: "pol-2", OrgID: "org-1", Line: commission.LineHealth,
		GrossPremium: decimal.NewFromInt(20000),
	})

	// WHEN a full resync is triggered
	resp := postJSON(t, server.URL+"/api/admin/resync?org_id=org-1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	defer resp.Body.Close()
	var report commission.ResyncReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report), "decoding report")

	// THEN the report accounts for every policy
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Calculated)
	assert.Equal(t, 1, report.Unmatched)
}

func TestRuleEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	// GIVEN a rule loaded through the API
	resp := postJSON(t, server.URL+"/api/rules/", `{
		"org_id": "org-1",
		"line_of_business": "motor",
		"provider": "Acme General",
		"first_year_rate": 10
	}`)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// AND an invalid one rejected
	resp = postJSON(t, server.URL+"/api/rules/", `{
		"org_id": "org-1",
		"line_of_business": "motor",
		"first_year_rate": 150
	}`)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode, "rate over 100")

	// WHEN rules are listed
	listResp, err := http.Get(server.URL + "/api/rules/?org_id=org-1")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var rules []json.RawMessage
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&rules), "decoding rules")

	// THEN only the valid rule is there
	assert.Len(t, rules, 1)

	// AND listing without an org is rejected
	badResp, err := http.Get(server.URL + "/api/rules/")
	require.NoError(t, err)
	badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode, "missing org_id")
}

func TestPartnerEndpoints(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/partners/", `{
		"org_id": "org-1",
		"channel_type": "agent",
		"name": "North Region Agency",
		"base_percent": 70
	}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	defer resp.Body.Close()
	var partner PartnerDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&partner), "decoding partner")
	assert.NotEmpty(t, partner.ID)
	assert.Equal(t, "agent", partner.ChannelType)

	// Percent outside 0-100 is rejected
	badResp := postJSON(t, server.URL+"/api/partners/", `{
		"org_id": "org-1", "channel_type": "misp", "base_percent": 130
	}`)
	badResp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, badResp.StatusCode)

	listResp, err := http.Get(server.URL + "/api/partners/?org_id=org-1")
	require.NoError(t, err)
	defer listResp.Body.Close()
	var partners []PartnerDTO
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&partners), "decoding partners")
	assert.Len(t, partners, 1)
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
