/*
Package sqlite provides a SQLite-backed implementation of the commission
storage interfaces.

PURPOSE:
  Implements RuleStore, PartnerStore, PolicyStore and ResultStore using
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences.

KEY TABLES:
  motor_payout_grids:   Motor line grid rows
  health_payout_grids:  Health line grid rows
  life_payout_grids:    Life line grid rows. Life's effective window lives
                        in commission_start_date / commission_end_date;
                        queries normalize those into the shared Rule shape.
  commission_rules:     Generic rule table for all other lines
  channel_partners:     Agent / MISP / POSP records with percent chains
  policies:             Immutable policy snapshots
  commission_records:   One active record per policy, replaced via upsert

ORDERING CONTRACT:
  Every candidates query is ORDER BY created_at DESC. The resolver's
  recency tie-break depends on that ordering; see commission/store.go.

UPSERT CONTRACT:
  commission_records is keyed by policy_id. Recomputation replaces the
  record whole (INSERT .. ON CONFLICT DO UPDATE); it never appends.

DECIMALS:
  Money and rates are stored as TEXT and parsed back through
  decimal.NewFromString, so no precision is lost crossing the database.

WAL MODE:
  Opened with WAL for better read concurrency and crash recovery.

USAGE:
  store, err := sqlite.New("./data/commissions.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := commission.NewEngine(store, store, store, store, logger)

SEE ALSO:
  - commission/store.go: Interface definitions
  - commission/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/commission-engine/commission"
)

// Store implements all commission storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

// Compile-time interface checks.
var (
	_ commission.RuleStore    = (*Store)(nil)
	_ commission.PartnerStore = (*Store)(nil)
	_ commission.PolicyStore  = (*Store)(nil)
	_ commission.ResultStore  = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Motor line grid rows
	CREATE TABLE IF NOT EXISTS motor_payout_grids (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		product_type TEXT,
		product_type_alt TEXT,
		provider TEXT,
		min_premium TEXT,
		max_premium TEXT,
		effective_from TEXT,
		effective_to TEXT,
		first_year_rate TEXT NOT NULL DEFAULT '0',
		first_year_amount TEXT NOT NULL DEFAULT '0',
		renewal_rate TEXT NOT NULL DEFAULT '0',
		renewal_amount TEXT NOT NULL DEFAULT '0',
		reward_rate TEXT NOT NULL DEFAULT '0',
		bonus_rate TEXT NOT NULL DEFAULT '0',
		tiers_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Health line grid rows (same shape as motor)
	CREATE TABLE IF NOT EXISTS health_payout_grids (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		product_type TEXT,
		product_type_alt TEXT,
		provider TEXT,
		min_premium TEXT,
		max_premium TEXT,
		effective_from TEXT,
		effective_to TEXT,
		first_year_rate TEXT NOT NULL DEFAULT '0',
		first_year_amount TEXT NOT NULL DEFAULT '0',
		renewal_rate TEXT NOT NULL DEFAULT '0',
		renewal_amount TEXT NOT NULL DEFAULT '0',
		reward_rate TEXT NOT NULL DEFAULT '0',
		bonus_rate TEXT NOT NULL DEFAULT '0',
		tiers_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Life line grid rows. The effective window columns carry the legacy
	-- names; reads alias them onto the shared shape.
	CREATE TABLE IF NOT EXISTS life_payout_grids (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		product_type TEXT,
		product_type_alt TEXT,
		provider TEXT,
		min_premium TEXT,
		max_premium TEXT,
		commission_start_date TEXT,
		commission_end_date TEXT,
		first_year_rate TEXT NOT NULL DEFAULT '0',
		first_year_amount TEXT NOT NULL DEFAULT '0',
		renewal_rate TEXT NOT NULL DEFAULT '0',
		renewal_amount TEXT NOT NULL DEFAULT '0',
		reward_rate TEXT NOT NULL DEFAULT '0',
		bonus_rate TEXT NOT NULL DEFAULT '0',
		tiers_json TEXT,
		created_at TEXT NOT NULL
	);

	-- Generic rule table for lines without a dedicated grid
	CREATE TABLE IF NOT EXISTS commission_rules (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		line_of_business TEXT NOT NULL,
		product_type TEXT,
		product_type_alt TEXT,
		provider TEXT,
		min_premium TEXT,
		max_premium TEXT,
		effective_from TEXT,
		effective_to TEXT,
		first_year_rate TEXT NOT NULL DEFAULT '0',
		first_year_amount TEXT NOT NULL DEFAULT '0',
		renewal_rate TEXT NOT NULL DEFAULT '0',
		renewal_amount TEXT NOT NULL DEFAULT '0',
		reward_rate TEXT NOT NULL DEFAULT '0',
		bonus_rate TEXT NOT NULL DEFAULT '0',
		tiers_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_motor_grids_org ON motor_payout_grids(org_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_health_grids_org ON health_payout_grids(org_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_life_grids_org ON life_payout_grids(org_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_rules_org_line ON commission_rules(org_id, line_of_business, created_at DESC);

	-- Channel partners
	CREATE TABLE IF NOT EXISTS channel_partners (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		channel_type TEXT NOT NULL,
		name TEXT,
		base_percent TEXT,
		override_percent TEXT,
		reporting_manager_id TEXT,
		parent_employee_id TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_partners_org ON channel_partners(org_id);

	-- Policy snapshots (immutable for commission purposes)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		policy_number TEXT,
		line_of_business TEXT NOT NULL,
		product_id TEXT,
		product_type TEXT,
		provider TEXT,
		gross_premium TEXT NOT NULL DEFAULT '0',
		net_premium TEXT NOT NULL DEFAULT '0',
		payment_frequency TEXT,
		sum_assured TEXT NOT NULL DEFAULT '0',
		channel_type TEXT,
		partner_id TEXT,
		renewal INTEGER NOT NULL DEFAULT 0,
		details_json TEXT,
		issued_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_policies_org ON policies(org_id);

	-- Commission records: one active record per policy, replaced whole
	CREATE TABLE IF NOT EXISTS commission_records (
		policy_id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		product_type TEXT,
		rule_id TEXT,
		rule_table TEXT,
		commission_rate TEXT NOT NULL DEFAULT '0',
		reward_rate TEXT NOT NULL DEFAULT '0',
		bonus_rate TEXT NOT NULL DEFAULT '0',
		total_rate TEXT NOT NULL DEFAULT '0',
		insurer_commission TEXT NOT NULL DEFAULT '0',
		channel_type TEXT,
		channel_percent TEXT NOT NULL DEFAULT '0',
		channel_amount TEXT NOT NULL DEFAULT '0',
		remainder_party TEXT,
		remainder_amount TEXT NOT NULL DEFAULT '0',
		agent_commission TEXT NOT NULL DEFAULT '0',
		misp_commission TEXT NOT NULL DEFAULT '0',
		employee_commission TEXT NOT NULL DEFAULT '0',
		reporting_employee_commission TEXT NOT NULL DEFAULT '0',
		broker_share TEXT NOT NULL DEFAULT '0',
		breakdown_json TEXT,
		commission_status TEXT NOT NULL,
		error TEXT,
		calculated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_org ON commission_records(org_id);
	CREATE INDEX IF NOT EXISTS idx_records_status ON commission_records(commission_status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RULE STORE
// =============================================================================

// gridTables maps grid-backed lines to their table. Anything else lives in
// the generic commission_rules table.
var gridTables = map[commission.LineOfBusiness]string{
	commission.LineMotor:  "motor_payout_grids",
	commission.LineHealth: "health_payout_grids",
	commission.LineLife:   "life_payout_grids",
}

// ruleColumns is the shared projection every rule query produces.
const ruleColumns = `id, org_id, product_type, product_type_alt, provider,
	min_premium, max_premium, effective_from, effective_to,
	first_year_rate, first_year_amount, renewal_rate, renewal_amount,
	reward_rate, bonus_rate, tiers_json, created_at`

// lifeRuleColumns aliases Life's legacy window columns onto the shared shape.
const lifeRuleColumns = `id, org_id, product_type, product_type_alt, provider,
	min_premium, max_premium,
	commission_start_date AS effective_from, commission_end_date AS effective_to,
	first_year_rate, first_year_amount, renewal_rate, renewal_amount,
	reward_rate, bonus_rate, tiers_json, created_at`

// SaveRule persists a rule into its line's table.
func (s *Store) SaveRule(ctx context.Context, rule *commission.Rule) error {
	tiersJSON, err := marshalTiers(rule.Tiers)
	if err != nil {
		return fmt.Errorf("marshaling tiers: %w", err)
	}
	createdAt := rule.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	args := []any{
		string(rule.ID), string(rule.OrgID),
		rule.ProductType, rule.ProductTypeAlt, rule.Provider,
		nullDecimal(rule.MinPremium), nullDecimal(rule.MaxPremium),
		nullTime(rule.EffectiveFrom), nullTime(rule.EffectiveTo),
		rule.FirstYearRate.String(), rule.FirstYearAmount.String(),
		rule.RenewalRate.String(), rule.RenewalAmount.String(),
		rule.RewardRate.String(), rule.BonusRate.String(),
		tiersJSON, createdAt.Format(time.RFC3339),
	}

	if table, ok := gridTables[rule.Line]; ok {
		from, to := "effective_from", "effective_to"
		if rule.Line == commission.LineLife {
			from, to = "commission_start_date", "commission_end_date"
		}
		query := fmt.Sprintf(`INSERT INTO %s (
			id, org_id, product_type, product_type_alt, provider,
			min_premium, max_premium, %s, %s,
			first_year_rate, first_year_amount, renewal_rate, renewal_amount,
			reward_rate, bonus_rate, tiers_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table, from, to)
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	}

	// Generic table carries the line explicitly.
	query := `INSERT INTO commission_rules (
		id, org_id, line_of_business, product_type, product_type_alt, provider,
		min_premium, max_premium, effective_from, effective_to,
		first_year_rate, first_year_amount, renewal_rate, renewal_amount,
		reward_rate, bonus_rate, tiers_json, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	generic := make([]any, 0, len(args)+1)
	generic = append(generic, args[0], args[1], string(rule.Line))
	generic = append(generic, args[2:]...)
	_, err = s.db.ExecContext(ctx, query, generic...)
	return err
}

// Candidates returns the org's rows for a line, newest first.
func (s *Store) Candidates(ctx context.Context, orgID commission.OrgID, line commission.LineOfBusiness) ([]commission.Rule, error) {
	if table, ok := gridTables[line]; ok {
		cols := ruleColumns
		if line == commission.LineLife {
			cols = lifeRuleColumns
		}
		query := fmt.Sprintf(`SELECT %s FROM %s WHERE org_id = ? ORDER BY created_at DESC`, cols, table)
		return s.queryRules(ctx, query, line, table, string(orgID))
	}

	query := `SELECT ` + ruleColumns + ` FROM commission_rules
		WHERE org_id = ? AND line_of_business = ? ORDER BY created_at DESC`
	return s.queryRules(ctx, query, line, "commission_rules", string(orgID), string(line))
}

// ListRules returns all rows for an org across every table, newest first
// within each table.
func (s *Store) ListRules(ctx context.Context, orgID commission.OrgID) ([]commission.Rule, error) {
	var all []commission.Rule
	for _, line := range []commission.LineOfBusiness{
		commission.LineMotor, commission.LineHealth, commission.LineLife,
	} {
		rules, err := s.Candidates(ctx, orgID, line)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}

	query := `SELECT ` + ruleColumns + `, line_of_business FROM commission_rules
		WHERE org_id = ? ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query, string(orgID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		rule, err := scanRuleWithLine(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, rule)
	}
	return all, rows.Err()
}

func (s *Store) queryRules(ctx context.Context, query string, line commission.LineOfBusiness, table string, args ...any) ([]commission.Rule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rule.Line = line
		rule.SourceTable = table
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ruleRow holds the scanned nullable columns before normalization.
type ruleRow struct {
	id, orgID                      string
	productType, productTypeAlt    sql.NullString
	provider                       sql.NullString
	minPremium, maxPremium         sql.NullString
	effectiveFrom, effectiveTo     sql.NullString
	firstYearRate, firstYearAmount string
	renewalRate, renewalAmount     string
	rewardRate, bonusRate          string
	tiersJSON                      sql.NullString
	createdAt                      string
}

func (rr *ruleRow) fields() []any {
	return []any{
		&rr.id, &rr.orgID, &rr.productType, &rr.productTypeAlt, &rr.provider,
		&rr.minPremium, &rr.maxPremium, &rr.effectiveFrom, &rr.effectiveTo,
		&rr.firstYearRate, &rr.firstYearAmount, &rr.renewalRate, &rr.renewalAmount,
		&rr.rewardRate, &rr.bonusRate, &rr.tiersJSON, &rr.createdAt,
	}
}

func (rr *ruleRow) toRule() (commission.Rule, error) {
	rule := commission.Rule{
		ID:              commission.RuleID(rr.id),
		OrgID:           commission.OrgID(rr.orgID),
		ProductType:     rr.productType.String,
		ProductTypeAlt:  rr.productTypeAlt.String,
		Provider:        rr.provider.String,
		MinPremium:      parseNullDecimal(rr.minPremium),
		MaxPremium:      parseNullDecimal(rr.maxPremium),
		EffectiveFrom:   parseNullTime(rr.effectiveFrom),
		EffectiveTo:     parseNullTime(rr.effectiveTo),
		FirstYearRate:   commission.MustParseDecimal(rr.firstYearRate),
		FirstYearAmount: commission.MustParseDecimal(rr.firstYearAmount),
		RenewalRate:     commission.MustParseDecimal(rr.renewalRate),
		RenewalAmount:   commission.MustParseDecimal(rr.renewalAmount),
		RewardRate:      commission.MustParseDecimal(rr.rewardRate),
		BonusRate:       commission.MustParseDecimal(rr.bonusRate),
	}
	if t, err := time.Parse(time.RFC3339, rr.createdAt); err == nil {
		rule.CreatedAt = t
	}
	if rr.tiersJSON.Valid && rr.tiersJSON.String != "" {
		if err := json.Unmarshal([]byte(rr.tiersJSON.String), &rule.Tiers); err != nil {
			return rule, fmt.Errorf("unmarshaling tiers for rule %s: %w", rr.id, err)
		}
	}
	return rule, nil
}

func scanRule(rows *sql.Rows) (commission.Rule, error) {
	var rr ruleRow
	if err := rows.Scan(rr.fields()...); err != nil {
		return commission.Rule{}, err
	}
	return rr.toRule()
}

func scanRuleWithLine(rows *sql.Rows) (commission.Rule, error) {
	var rr ruleRow
	var line string
	if err := rows.Scan(append(rr.fields(), &line)...); err != nil {
		return commission.Rule{}, err
	}
	rule, err := rr.toRule()
	if err != nil {
		return rule, err
	}
	rule.Line = commission.LineOfBusiness(line)
	rule.SourceTable = "commission_rules"
	return rule, nil
}

// marshalTiers serializes tier ranges, writing NULL for empty lists.
func marshalTiers(tiers []commission.TierRange) (any, error) {
	if len(tiers) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tiers)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// =============================================================================
// PARTNER STORE
// =============================================================================

// SavePartner inserts or replaces a channel partner record.
func (s *Store) SavePartner(ctx context.Context, p *commission.Partner) error {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel_partners (
			id, org_id, channel_type, name, base_percent, override_percent,
			reporting_manager_id, parent_employee_id, active, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			org_id = excluded.org_id,
			channel_type = excluded.channel_type,
			name = excluded.name,
			base_percent = excluded.base_percent,
			override_percent = excluded.override_percent,
			reporting_manager_id = excluded.reporting_manager_id,
			parent_employee_id = excluded.parent_employee_id,
			active = excluded.active`,
		string(p.ID), string(p.OrgID), string(p.Channel), p.Name,
		nullDecimal(p.BasePercent), nullDecimal(p.OverridePercent),
		p.ReportingManagerID, p.ParentEmployeeID,
		boolInt(p.Active), createdAt.Format(time.RFC3339),
	)
	return err
}

// Partner returns the partner or ErrPartnerNotFound.
func (s *Store) Partner(ctx context.Context, id commission.PartnerID) (*commission.Partner, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, channel_type, name, base_percent, override_percent,
			reporting_manager_id, parent_employee_id, active, created_at
		FROM channel_partners WHERE id = ?`, string(id))
	p, err := scanPartner(row)
	if err == sql.ErrNoRows {
		return nil, commission.ErrPartnerNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListPartners returns an org's partners (all orgs when orgID is empty).
func (s *Store) ListPartners(ctx context.Context, orgID commission.OrgID) ([]commission.Partner, error) {
	query := `SELECT id, org_id, channel_type, name, base_percent, override_percent,
		reporting_manager_id, parent_employee_id, active, created_at
		FROM channel_partners`
	var args []any
	if orgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, string(orgID))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []commission.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner) (*commission.Partner, error) {
	var (
		id, orgID, channel           string
		name                         sql.NullString
		basePercent, overridePercent sql.NullString
		managerID, parentEmployeeID  sql.NullString
		active                       int
		createdAt                    string
	)
	if err := row.Scan(&id, &orgID, &channel, &name, &basePercent, &overridePercent,
		&managerID, &parentEmployeeID, &active, &createdAt); err != nil {
		return nil, err
	}
	p := &commission.Partner{
		ID:                 commission.PartnerID(id),
		OrgID:              commission.OrgID(orgID),
		Channel:            commission.ChannelType(channel),
		Name:               name.String,
		BasePercent:        parseNullDecimal(basePercent),
		OverridePercent:    parseNullDecimal(overridePercent),
		ReportingManagerID: managerID.String,
		ParentEmployeeID:   parentEmployeeID.String,
		Active:             active != 0,
	}
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		p.CreatedAt = t
	}
	return p, nil
}

// =============================================================================
// POLICY STORE
// =============================================================================

// SavePolicy inserts or replaces a policy snapshot.
func (s *Store) SavePolicy(ctx context.Context, p *commission.Policy) error {
	detailsJSON, err := json.Marshal(p.Details)
	if err != nil {
		return fmt.Errorf("marshaling details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policies (
			id, org_id, policy_number, line_of_business, product_id, product_type,
			provider, gross_premium, net_premium, payment_frequency, sum_assured,
			channel_type, partner_id, renewal, details_json, issued_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			policy_number = excluded.policy_number,
			line_of_business = excluded.line_of_business,
			product_id = excluded.product_id,
			product_type = excluded.product_type,
			provider = excluded.provider,
			gross_premium = excluded.gross_premium,
			net_premium = excluded.net_premium,
			payment_frequency = excluded.payment_frequency,
			sum_assured = excluded.sum_assured,
			channel_type = excluded.channel_type,
			partner_id = excluded.partner_id,
			renewal = excluded.renewal,
			details_json = excluded.details_json,
			issued_at = excluded.issued_at`,
		string(p.ID), string(p.OrgID), p.PolicyNumber, string(p.Line),
		p.ProductID, p.ProductType, p.Provider,
		p.GrossPremium.String(), p.NetPremium.String(),
		string(p.PaymentFrequency), p.SumAssured.String(),
		string(p.Channel), string(p.PartnerID), boolInt(p.Renewal),
		string(detailsJSON), nullTime(timePtrOrNil(p.IssuedAt)),
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

const policySelect = `SELECT id, org_id, policy_number, line_of_business,
	product_id, product_type, provider, gross_premium, net_premium,
	payment_frequency, sum_assured, channel_type, partner_id, renewal,
	details_json, issued_at FROM policies`

// Policy returns the snapshot or ErrPolicyNotFound.
func (s *Store) Policy(ctx context.Context, id commission.PolicyID) (*commission.Policy, error) {
	row := s.db.QueryRowContext(ctx, policySelect+` WHERE id = ?`, string(id))
	p, err := scanPolicy(row)
	if err == sql.ErrNoRows {
		return nil, commission.ErrPolicyNotFound
	}
	return p, err
}

// ListPolicies returns all snapshots, scoped to an org when orgID is set.
func (s *Store) ListPolicies(ctx context.Context, orgID commission.OrgID) ([]*commission.Policy, error) {
	query := policySelect
	var args []any
	if orgID != "" {
		query += ` WHERE org_id = ?`
		args = append(args, string(orgID))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*commission.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPolicy(row rowScanner) (*commission.Policy, error) {
	var (
		id, orgID, line               string
		policyNumber, productID       sql.NullString
		productType, provider         sql.NullString
		grossPremium, netPremium      string
		frequency, channel, partnerID sql.NullString
		sumAssured                    string
		renewal                       int
		detailsJSON, issuedAt         sql.NullString
	)
	if err := row.Scan(&id, &orgID, &policyNumber, &line, &productID, &productType,
		&provider, &grossPremium, &netPremium, &frequency, &sumAssured,
		&channel, &partnerID, &renewal, &detailsJSON, &issuedAt); err != nil {
		return nil, err
	}

	p := &commission.Policy{
		ID:               commission.PolicyID(id),
		OrgID:            commission.OrgID(orgID),
		PolicyNumber:     policyNumber.String,
		Line:             commission.LineOfBusiness(line),
		ProductID:        productID.String,
		ProductType:      productType.String,
		Provider:         provider.String,
		GrossPremium:     commission.MustParseDecimal(grossPremium),
		NetPremium:       commission.MustParseDecimal(netPremium),
		PaymentFrequency: commission.PaymentFrequency(frequency.String),
		SumAssured:       commission.MustParseDecimal(sumAssured),
		Channel:          commission.ChannelType(channel.String),
		PartnerID:        commission.PartnerID(partnerID.String),
		Renewal:          renewal != 0,
	}
	if detailsJSON.Valid && detailsJSON.String != "" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &p.Details); err != nil {
			return nil, fmt.Errorf("unmarshaling details for policy %s: %w", id, err)
		}
	}
	if t := parseNullTime(issuedAt); t != nil {
		p.IssuedAt = *t
	}
	return p, nil
}

// =============================================================================
// RESULT STORE - upsert keyed by policy id
// =============================================================================

// Upsert creates or replaces the commission record for the policy.
// The record is always written whole; recomputation replaces, never appends.
// The structural distribution (channel + remainder) is the authoritative
// form; the five flattened share columns are denormalized from it so
// reporting queries can read the split without reassembling it.
func (s *Store) Upsert(ctx context.Context, r *commission.Result) error {
	breakdownJSON, err := json.Marshal(r.Breakdown)
	if err != nil {
		return fmt.Errorf("marshaling breakdown: %w", err)
	}
	shares := r.Shares()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO commission_records (
			policy_id, org_id, product_type, rule_id, rule_table,
			commission_rate, reward_rate, bonus_rate, total_rate,
			insurer_commission, channel_type, channel_percent, channel_amount,
			remainder_party, remainder_amount,
			agent_commission, misp_commission, employee_commission,
			reporting_employee_commission, broker_share,
			breakdown_json, commission_status, error, calculated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(policy_id) DO UPDATE SET
			org_id = excluded.org_id,
			product_type = excluded.product_type,
			rule_id = excluded.rule_id,
			rule_table = excluded.rule_table,
			commission_rate = excluded.commission_rate,
			reward_rate = excluded.reward_rate,
			bonus_rate = excluded.bonus_rate,
			total_rate = excluded.total_rate,
			insurer_commission = excluded.insurer_commission,
			channel_type = excluded.channel_type,
			channel_percent = excluded.channel_percent,
			channel_amount = excluded.channel_amount,
			remainder_party = excluded.remainder_party,
			remainder_amount = excluded.remainder_amount,
			agent_commission = excluded.agent_commission,
			misp_commission = excluded.misp_commission,
			employee_commission = excluded.employee_commission,
			reporting_employee_commission = excluded.reporting_employee_commission,
			broker_share = excluded.broker_share,
			breakdown_json = excluded.breakdown_json,
			commission_status = excluded.commission_status,
			error = excluded.error,
			calculated_at = excluded.calculated_at`,
		string(r.PolicyID), string(r.OrgID), r.ProductType,
		string(r.RuleID), r.RuleTable,
		r.BaseRate.String(), r.RewardRate.String(), r.BonusRate.String(),
		r.TotalRate.String(), r.InsurerCommission.String(),
		string(r.Distribution.Channel), r.Distribution.ChannelPercent.String(),
		r.Distribution.ChannelAmount.String(),
		string(r.Distribution.Remainder), r.Distribution.RemainderAmount.String(),
		shares.Agent.String(), shares.MISP.String(), shares.Employee.String(),
		shares.ReportingManager.String(), shares.Broker.String(),
		string(breakdownJSON), string(r.Status), r.Error,
		r.CalculatedAt.Format(time.RFC3339),
	)
	return err
}

// ByPolicy returns the current record or ErrResultNotFound.
func (s *Store) ByPolicy(ctx context.Context, id commission.PolicyID) (*commission.Result, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT policy_id, org_id, product_type, rule_id, rule_table,
			commission_rate, reward_rate, bonus_rate, total_rate,
			insurer_commission, channel_type, channel_percent, channel_amount,
			remainder_party, remainder_amount, breakdown_json,
			commission_status, error, calculated_at
		FROM commission_records WHERE policy_id = ?`, string(id))

	var (
		policyID, orgID                string
		productType, ruleID, ruleTable sql.NullString
		commissionRate, rewardRate     string
		bonusRate, totalRate           string
		insurerCommission              string
		channelType, remainderParty    sql.NullString
		channelPercent, channelAmount  string
		remainderAmount                string
		breakdownJSON, errStr          sql.NullString
		status, calculatedAt           string
	)
	err := row.Scan(&policyID, &orgID, &productType, &ruleID, &ruleTable,
		&commissionRate, &rewardRate, &bonusRate, &totalRate,
		&insurerCommission, &channelType, &channelPercent, &channelAmount,
		&remainderParty, &remainderAmount, &breakdownJSON,
		&status, &errStr, &calculatedAt)
	if err == sql.ErrNoRows {
		return nil, commission.ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}

	r := &commission.Result{
		PolicyID:          commission.PolicyID(policyID),
		OrgID:             commission.OrgID(orgID),
		ProductType:       productType.String,
		RuleID:            commission.RuleID(ruleID.String),
		RuleTable:         ruleTable.String,
		BaseRate:          commission.MustParseDecimal(commissionRate),
		RewardRate:        commission.MustParseDecimal(rewardRate),
		BonusRate:         commission.MustParseDecimal(bonusRate),
		TotalRate:         commission.MustParseDecimal(totalRate),
		InsurerCommission: commission.MustParseDecimal(insurerCommission),
		Distribution: commission.Distribution{
			Channel:         commission.ChannelType(channelType.String),
			ChannelPercent:  commission.MustParseDecimal(channelPercent),
			ChannelAmount:   commission.MustParseDecimal(channelAmount),
			Remainder:       commission.RemainderParty(remainderParty.String),
			RemainderAmount: commission.MustParseDecimal(remainderAmount),
		},
		Status: commission.Status(status),
		Error:  errStr.String,
	}
	if breakdownJSON.Valid && breakdownJSON.String != "" {
		if err := json.Unmarshal([]byte(breakdownJSON.String), &r.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshaling breakdown for policy %s: %w", policyID, err)
		}
	}
	if t, err := time.Parse(time.RFC3339, calculatedAt); err == nil {
		r.CalculatedAt = t
	}
	return r, nil
}

// =============================================================================
// NULLABLE HELPERS
// =============================================================================

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func parseNullDecimal(s sql.NullString) *decimal.Decimal {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func timePtrOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
