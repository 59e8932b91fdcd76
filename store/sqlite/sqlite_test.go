package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func dptr(f float64) *decimal.Decimal {
	v := decimal.NewFromFloat(f)
	return &v
}

func date(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestRuleRoundTripMotorGrid(t *testing.T) {
	// GIVEN a motor grid row with a premium band and tiers
	store := newTestStore(t)
	ctx := context.Background()

	from := date(2025, 1, 1)
	rule := commission.Rule{
		ID:            "rule-1",
		OrgID:         "org-1",
		Line:          commission.LineMotor,
		ProductType:   "Private Car",
		Provider:      "Acme General",
		MinPremium:    dptr(1000),
		MaxPremium:    dptr(50000),
		EffectiveFrom: &from,
		FirstYearRate: d(10),
		RenewalRate:   d(5),
		RewardRate:    d(2),
		Tiers:         []commission.TierRange{{MinValue: dptr(0), MaxValue: dptr(10000), Rate: d(12)}},
		CreatedAt:     date(2025, 3, 1),
	}

	// WHEN saved and read back through the candidates query
	if err := store.SaveRule(ctx, &rule); err != nil {
		t.Fatalf("saving rule: %v", err)
	}
	got, err := store.Candidates(ctx, "org-1", commission.LineMotor)
	if err != nil {
		t.Fatalf("reading candidates: %v", err)
	}

	// THEN the row survives with its source table and tiers intact
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	r := got[0]
	if r.ID != "rule-1" || r.SourceTable != "motor_payout_grids" || r.Line != commission.LineMotor {
		t.Errorf("unexpected identity: id=%s table=%s line=%s", r.ID, r.SourceTable, r.Line)
	}
	if !r.FirstYearRate.Equal(d(10)) || !r.RenewalRate.Equal(d(5)) {
		t.Errorf("rates lost: first=%s renewal=%s", r.FirstYearRate, r.RenewalRate)
	}
	if r.MinPremium == nil || !r.MinPremium.Equal(d(1000)) {
		t.Errorf("min premium lost: %v", r.MinPremium)
	}
	if r.EffectiveFrom == nil || !r.EffectiveFrom.Equal(from) {
		t.Errorf("effective window lost: %v", r.EffectiveFrom)
	}
	if len(r.Tiers) != 1 || !r.Tiers[0].Rate.Equal(d(12)) {
		t.Errorf("tiers lost: %+v", r.Tiers)
	}
}

func TestLifeGridWindowColumnsNormalized(t *testing.T) {
	// GIVEN a life row whose window lives in the legacy start/end columns
	store := newTestStore(t)
	ctx := context.Background()

	from := date(2025, 1, 1)
	to := date(2025, 12, 31)
	rule := commission.Rule{
		ID:            "life-1",
		OrgID:         "org-1",
		Line:          commission.LineLife,
		EffectiveFrom: &from,
		EffectiveTo:   &to,
		FirstYearRate: d(25),
		CreatedAt:     date(2025, 2, 1),
	}
	if err := store.SaveRule(ctx, &rule); err != nil {
		t.Fatalf("saving rule: %v", err)
	}

	// WHEN read back
	got, err := store.Candidates(ctx, "org-1", commission.LineLife)
	if err != nil {
		t.Fatalf("reading candidates: %v", err)
	}

	// THEN the window appears under the shared effective fields
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}
	r := got[0]
	if r.SourceTable != "life_payout_grids" {
		t.Errorf("expected life table, got %s", r.SourceTable)
	}
	if r.EffectiveFrom == nil || !r.EffectiveFrom.Equal(from) {
		t.Errorf("start date lost: %v", r.EffectiveFrom)
	}
	if r.EffectiveTo == nil || !r.EffectiveTo.Equal(to) {
		t.Errorf("end date lost: %v", r.EffectiveTo)
	}
}

func TestGenericRulesCarryLine(t *testing.T) {
	// GIVEN a commercial rule, which has no dedicated grid table
	store := newTestStore(t)
	ctx := context.Background()

	rule := commission.Rule{
		ID:            "com-1",
		OrgID:         "org-1",
		Line:          commission.LineCommercial,
		FirstYearRate: d(8),
		CreatedAt:     date(2025, 1, 1),
	}
	if err := store.SaveRule(ctx, &rule); err != nil {
		t.Fatalf("saving rule: %v", err)
	}

	// WHEN queried per line
	commercial, err := store.Candidates(ctx, "org-1", commission.LineCommercial)
	if err != nil {
		t.Fatalf("reading commercial candidates: %v", err)
	}
	other, err := store.Candidates(ctx, "org-1", commission.LineOther)
	if err != nil {
		t.Fatalf("reading other candidates: %v", err)
	}

	// THEN only the matching line sees the row
	if len(commercial) != 1 || commercial[0].SourceTable != "commission_rules" {
		t.Fatalf("expected commercial rule from commission_rules, got %+v", commercial)
	}
	if len(other) != 0 {
		t.Errorf("line filter leaked: %+v", other)
	}
}

func TestCandidatesNewestFirst(t *testing.T) {
	// GIVEN three motor rows created on different days
	store := newTestStore(t)
	ctx := context.Background()

	for i, day := range []int{10, 25, 5} {
		rule := commission.Rule{
			ID:            commission.RuleID([]string{"a", "b", "c"}[i]),
			OrgID:         "org-1",
			Line:          commission.LineMotor,
			FirstYearRate: d(10),
			CreatedAt:     date(2025, 1, day),
		}
		if err := store.SaveRule(ctx, &rule); err != nil {
			t.Fatalf("saving rule: %v", err)
		}
	}

	// WHEN listed as candidates
	got, err := store.Candidates(ctx, "org-1", commission.LineMotor)
	if err != nil {
		t.Fatalf("reading candidates: %v", err)
	}

	// THEN ordering is newest first - the resolver's tie-break relies on it
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	want := []commission.RuleID{"b", "a", "c"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestPartnerUpsertAndMiss(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN a saved agent
	p := commission.Partner{
		ID:                 "agent-1",
		OrgID:              "org-1",
		Channel:            commission.ChannelAgent,
		Name:               "North Region Agency",
		BasePercent:        dptr(70),
		ReportingManagerID: "mgr-1",
		Active:             true,
	}
	if err := store.SavePartner(ctx, &p); err != nil {
		t.Fatalf("saving partner: %v", err)
	}

	// WHEN the same id is saved again with an override
	p.OverridePercent = dptr(80)
	if err := store.SavePartner(ctx, &p); err != nil {
		t.Fatalf("re-saving partner: %v", err)
	}

	// THEN the read reflects the latest write
	got, err := store.Partner(ctx, "agent-1")
	if err != nil {
		t.Fatalf("reading partner: %v", err)
	}
	if got.OverridePercent == nil || !got.OverridePercent.Equal(d(80)) {
		t.Errorf("override not persisted: %v", got.OverridePercent)
	}
	if got.ReportingManagerID != "mgr-1" || got.Channel != commission.ChannelAgent {
		t.Errorf("partner fields lost: %+v", got)
	}

	// AND a missing id yields the sentinel
	_, err = store.Partner(ctx, "nobody")
	if !errors.Is(err, commission.ErrPartnerNotFound) {
		t.Errorf("expected ErrPartnerNotFound, got %v", err)
	}
}

func TestPolicyRoundTripWithDetails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN a motor policy with line-specific details
	p := commission.Policy{
		ID:               "pol-1",
		OrgID:            "org-1",
		PolicyNumber:     "MTR-0001",
		Line:             commission.LineMotor,
		ProductType:      "Private Car",
		Provider:         "Acme General",
		GrossPremium:     d(10000),
		NetPremium:       d(9000),
		PaymentFrequency: commission.FrequencyAnnual,
		Channel:          commission.ChannelAgent,
		PartnerID:        "agent-1",
		Details: commission.Details{
			Motor: &commission.MotorDetails{
				ODPremium:   d(8000),
				TPPremium:   d(2000),
				VehicleType: "private_car",
			},
		},
		IssuedAt: date(2025, 6, 15),
	}
	if err := store.SavePolicy(ctx, &p); err != nil {
		t.Fatalf("saving policy: %v", err)
	}

	got, err := store.Policy(ctx, "pol-1")
	if err != nil {
		t.Fatalf("reading policy: %v", err)
	}
	if got.Details.Motor == nil || !got.Details.Motor.ODPremium.Equal(d(8000)) {
		t.Errorf("motor details lost: %+v", got.Details.Motor)
	}
	if !got.GrossPremium.Equal(d(10000)) || got.PaymentFrequency != commission.FrequencyAnnual {
		t.Errorf("policy fields lost: %+v", got)
	}
	if !got.IssuedAt.Equal(date(2025, 6, 15)) {
		t.Errorf("issued_at lost: %v", got.IssuedAt)
	}

	// AND a missing id yields the sentinel
	_, err = store.Policy(ctx, "nobody")
	if !errors.Is(err, commission.ErrPolicyNotFound) {
		t.Errorf("expected ErrPolicyNotFound, got %v", err)
	}
}

func TestRecordUpsertReplaces(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN an initial record for a policy
	first := commission.Result{
		PolicyID:          "pol-1",
		OrgID:             "org-1",
		RuleID:            "rule-1",
		RuleTable:         "motor_payout_grids",
		BaseRate:          d(10),
		TotalRate:         d(10),
		InsurerCommission: d(800),
		Distribution: commission.Distribution{
			Channel:         commission.ChannelAgent,
			ChannelPercent:  d(70),
			ChannelAmount:   d(560),
			Remainder:       commission.RemainderToBroker,
			RemainderAmount: d(240),
		},
		Status:       commission.StatusCalculated,
		CalculatedAt: date(2025, 7, 1),
	}
	if err := store.Upsert(ctx, &first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// WHEN a recomputation writes a new record for the same policy
	second := first
	second.RuleID = "rule-2"
	second.BaseRate = d(12)
	second.TotalRate = d(12)
	second.InsurerCommission = d(960)
	second.Distribution.ChannelAmount = d(672)
	second.Distribution.RemainderAmount = d(288)
	second.CalculatedAt = date(2025, 8, 1)
	if err := store.Upsert(ctx, &second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	// THEN the record is replaced whole, not appended
	got, err := store.ByPolicy(ctx, "pol-1")
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if got.RuleID != "rule-2" || !got.InsurerCommission.Equal(d(960)) {
		t.Errorf("record not replaced: rule=%s commission=%s", got.RuleID, got.InsurerCommission)
	}
	if !got.Distribution.ChannelAmount.Equal(d(672)) || got.Distribution.Remainder != commission.RemainderToBroker {
		t.Errorf("distribution lost: %+v", got.Distribution)
	}
	if !got.CalculatedAt.Equal(date(2025, 8, 1)) {
		t.Errorf("calculated_at not updated: %v", got.CalculatedAt)
	}

	// AND a missing policy yields the sentinel
	_, err = store.ByPolicy(ctx, "nobody")
	if !errors.Is(err, commission.ErrResultNotFound) {
		t.Errorf("expected ErrResultNotFound, got %v", err)
	}
}

func TestRecordFlattenedShareColumns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN an agent sale whose remainder goes to the reporting manager
	rec := commission.Result{
		PolicyID:          "pol-1",
		OrgID:             "org-1",
		RuleID:            "rule-1",
		RuleTable:         "motor_payout_grids",
		BaseRate:          d(10),
		TotalRate:         d(10),
		InsurerCommission: d(1000),
		Distribution: commission.Distribution{
			Channel:         commission.ChannelAgent,
			ChannelPercent:  d(70),
			ChannelAmount:   d(700),
			Remainder:       commission.RemainderToManager,
			RemainderAmount: d(300),
		},
		Status:       commission.StatusCalculated,
		CalculatedAt: date(2025, 7, 1),
	}
	if err := store.Upsert(ctx, &rec); err != nil {
		t.Fatalf("upserting record: %v", err)
	}

	// WHEN reading the denormalized share columns directly
	var agent, misp, employee, manager, broker string
	err := store.db.QueryRowContext(ctx, `
		SELECT agent_commission, misp_commission, employee_commission,
			reporting_employee_commission, broker_share
		FROM commission_records WHERE policy_id = ?`, "pol-1").
		Scan(&agent, &misp, &employee, &manager, &broker)
	if err != nil {
		t.Fatalf("reading share columns: %v", err)
	}

	// THEN they carry the flattened split without reassembling the
	// structural distribution
	for name, got := range map[string]struct{ val, want string }{
		"agent_commission":              {agent, "700"},
		"misp_commission":               {misp, "0"},
		"employee_commission":           {employee, "0"},
		"reporting_employee_commission": {manager, "300"},
		"broker_share":                  {broker, "0"},
	} {
		if !commission.MustParseDecimal(got.val).Equal(commission.MustParseDecimal(got.want)) {
			t.Errorf("%s = %s, want %s", name, got.val, got.want)
		}
	}
}

func TestEngineOverSQLite(t *testing.T) {
	// GIVEN an engine wired to the SQLite store end to end
	store := newTestStore(t)
	ctx := context.Background()

	rule := commission.Rule{
		ID:            "rule-1",
		OrgID:         "org-1",
		Line:          commission.LineMotor,
		FirstYearRate: d(10),
		CreatedAt:     date(2025, 1, 1),
	}
	if err := store.SaveRule(ctx, &rule); err != nil {
		t.Fatalf("saving rule: %v", err)
	}
	agent := commission.Partner{
		ID: "agent-1", OrgID: "org-1", Channel: commission.ChannelAgent,
		BasePercent: dptr(70), ReportingManagerID: "mgr-1", Active: true,
	}
	if err := store.SavePartner(ctx, &agent); err != nil {
		t.Fatalf("saving partner: %v", err)
	}
	policy := commission.Policy{
		ID: "pol-1", OrgID: "org-1", Line: commission.LineMotor,
		GrossPremium: d(10000), Channel: commission.ChannelAgent, PartnerID: "agent-1",
		Details: commission.Details{Motor: &commission.MotorDetails{
			ODPremium: d(8000), TPPremium: d(2000),
		}},
		IssuedAt: date(2025, 6, 15),
	}
	if err := store.SavePolicy(ctx, &policy); err != nil {
		t.Fatalf("saving policy: %v", err)
	}

	engine := commission.NewEngine(store, store, store, store, nil)

	// WHEN the policy is recalculated by id
	result, err := engine.RecalculateByID(ctx, "pol-1")
	if err != nil {
		t.Fatalf("recalculating: %v", err)
	}

	// THEN the persisted record matches the in-memory result
	if result.Status != commission.StatusCalculated {
		t.Fatalf("expected calculated, got %s (%s)", result.Status, result.Error)
	}
	if !result.InsurerCommission.Equal(d(800)) {
		t.Errorf("expected 800 insurer commission, got %s", result.InsurerCommission)
	}
	stored, err := store.ByPolicy(ctx, "pol-1")
	if err != nil {
		t.Fatalf("reading record: %v", err)
	}
	if !stored.InsurerCommission.Equal(result.InsurerCommission) ||
		!stored.Distribution.ChannelAmount.Equal(result.Distribution.ChannelAmount) {
		t.Errorf("stored record diverges: stored=%+v result=%+v", stored, result)
	}
}
