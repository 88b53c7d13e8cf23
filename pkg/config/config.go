package config

import (
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "GUILDWORKS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "GUILDWORKS_DB_DSN"
	EnvDBHost = "GUILDWORKS_DB_HOST"
	EnvDBUser = "GUILDWORKS_DB_USER"
	EnvDBName = "GUILDWORKS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App      AppConfig
	Service  ServiceConfig
	Upstream UpstreamConfig
	DB       DBConfig
	Redis   RedisConfig
	Policy  PolicyConfig
	Outbox  OutboxConfig
	GCP     GCPConfig
	PubSub  PubSubConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GUILDWORKS_APP_ENV" required:"true"`
	Port         string `envconfig:"GUILDWORKS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GUILDWORKS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GUILDWORKS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GUILDWORKS_SERVICE_KIND" default:"api"`
}

// UpstreamConfig authenticates the surrounding product systems that call this
// core. Requests carry the shared token as a bearer credential.
type UpstreamConfig struct {
	APIToken string `envconfig:"GUILDWORKS_UPSTREAM_API_TOKEN"`
}

type DBConfig struct {
	DSN    string `envconfig:"GUILDWORKS_DB_DSN"`
	Driver string `envconfig:"GUILDWORKS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GUILDWORKS_DB_HOST"`
	LegacyPort     int    `envconfig:"GUILDWORKS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GUILDWORKS_DB_USER"`
	LegacyPassword string `envconfig:"GUILDWORKS_DB_PASSWORD"`
	LegacyName     string `envconfig:"GUILDWORKS_DB_NAME"`
	LegacySSLMode  string `envconfig:"GUILDWORKS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GUILDWORKS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GUILDWORKS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GUILDWORKS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GUILDWORKS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"GUILDWORKS_DB_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GUILDWORKS_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"GUILDWORKS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GUILDWORKS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GUILDWORKS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GUILDWORKS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GUILDWORKS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// BonusBasis selects which balance a bonus run is measured against.
type BonusBasis string

const (
	// BonusBasisPostInflow checks the threshold and snapshots balance_before
	// after the triggering inflow has been applied.
	BonusBasisPostInflow BonusBasis = "post_inflow"
	// BonusBasisPreInflow evaluates against the balance as it stood before
	// the triggering inflow.
	BonusBasisPreInflow BonusBasis = "pre_inflow"
)

// MultiplierMode selects what a performance multiplier scales.
type MultiplierMode string

const (
	// MultiplierModeCash scales the derived cash base share; stored
	// percentages stay untouched so they keep summing to 100.
	MultiplierModeCash MultiplierMode = "cash"
)

// PolicyConfig carries the allocation and treasury policy knobs. The three
// behaviors the data model leaves open (bonus basis, multiplier target,
// council approval floor for promotions) are pinned here instead of being
// decided ad hoc in code.
type PolicyConfig struct {
	// Assignment scorer weights; must sum to 1.0.
	WeightSkillMatch    float64 `envconfig:"GUILDWORKS_SCORE_WEIGHT_SKILL" default:"0.30"`
	WeightWorkload      float64 `envconfig:"GUILDWORKS_SCORE_WEIGHT_WORKLOAD" default:"0.20"`
	WeightConsistency   float64 `envconfig:"GUILDWORKS_SCORE_WEIGHT_CONSISTENCY" default:"0.25"`
	WeightRankFit       float64 `envconfig:"GUILDWORKS_SCORE_WEIGHT_RANK" default:"0.15"`
	WeightPreferredRole float64 `envconfig:"GUILDWORKS_SCORE_WEIGHT_PREFERRED" default:"0.10"`

	// Base revenue percentages per role slot. Core and support split the
	// remainder (100 - lead - pm - treasury) by workload-hours proportion.
	LeadPercent     int64 `envconfig:"GUILDWORKS_ATTRIBUTION_LEAD_PERCENT" default:"30"`
	PMPercent       int64 `envconfig:"GUILDWORKS_ATTRIBUTION_PM_PERCENT" default:"15"`
	TreasuryPercent int64 `envconfig:"GUILDWORKS_ATTRIBUTION_TREASURY_PERCENT" default:"15"`

	// PercentTolerance is the rounding tolerance, in basis points, applied
	// when verifying attribution percentages sum to 100.
	PercentToleranceBps int64 `envconfig:"GUILDWORKS_ATTRIBUTION_TOLERANCE_BPS" default:"10"`

	MultiplierMode MultiplierMode `envconfig:"GUILDWORKS_ATTRIBUTION_MULTIPLIER_MODE" default:"cash"`

	// Treasury bonus policy.
	BonusThresholdCents int64      `envconfig:"GUILDWORKS_BONUS_THRESHOLD_CENTS" default:"10000000"`
	BonusBasis          BonusBasis `envconfig:"GUILDWORKS_BONUS_BASIS" default:"post_inflow"`
	BonusExcludeCouncil bool       `envconfig:"GUILDWORKS_BONUS_EXCLUDE_COUNCIL" default:"false"`
	// BonusPoolPercent is how much of the surplus above the last trigger is
	// distributed in a single run.
	BonusPoolPercent int64 `envconfig:"GUILDWORKS_BONUS_POOL_PERCENT" default:"50"`

	// Rank multipliers indexed by tier (tier 1 first); applied to bonus shares.
	RankMultipliers []float64 `envconfig:"GUILDWORKS_RANK_MULTIPLIERS" default:"1.0,1.05,1.1,1.2,1.35,1.5"`

	// Cumulative revenue thresholds, in cents, for tiers 1..6. Tier 1 is the
	// entry tier so its threshold is zero.
	TierThresholdsCents []int64 `envconfig:"GUILDWORKS_TIER_THRESHOLDS_CENTS" default:"0,2500000,10000000,50000000,200000000,500000000"`

	// Promotions into this tier or above require a council approver;
	// promotions below it apply immediately.
	RankCouncilApprovalMinTier int `envconfig:"GUILDWORKS_RANK_COUNCIL_APPROVAL_MIN_TIER" default:"4"`

	// Minimum tier whose memberships may verify another membership's skill.
	SkillVerifierMinTier int `envconfig:"GUILDWORKS_SKILL_VERIFIER_MIN_TIER" default:"4"`
}

// Validate rejects policy combinations the engines cannot honor.
func (p PolicyConfig) Validate() error {
	weightSum := p.WeightSkillMatch + p.WeightWorkload + p.WeightConsistency + p.WeightRankFit + p.WeightPreferredRole
	if math.Abs(weightSum-1.0) > 1e-9 {
		return fmt.Errorf("scorer weights must sum to 1.0, got %v", weightSum)
	}
	if p.LeadPercent < 0 || p.PMPercent < 0 || p.TreasuryPercent < 0 {
		return fmt.Errorf("slot percentages must be non-negative")
	}
	if p.LeadPercent+p.PMPercent+p.TreasuryPercent > 100 {
		return fmt.Errorf("lead+pm+treasury percentages exceed 100")
	}
	if p.BonusThresholdCents <= 0 {
		return fmt.Errorf("bonus threshold must be positive")
	}
	if p.BonusPoolPercent <= 0 || p.BonusPoolPercent > 100 {
		return fmt.Errorf("bonus pool percent must be in (0,100]")
	}
	switch p.BonusBasis {
	case BonusBasisPostInflow, BonusBasisPreInflow:
	default:
		return fmt.Errorf("unknown bonus basis %q", p.BonusBasis)
	}
	if p.MultiplierMode != MultiplierModeCash {
		return fmt.Errorf("unknown multiplier mode %q", p.MultiplierMode)
	}
	if len(p.RankMultipliers) != 6 {
		return fmt.Errorf("expected 6 rank multipliers, got %d", len(p.RankMultipliers))
	}
	if len(p.TierThresholdsCents) != 6 {
		return fmt.Errorf("expected 6 tier thresholds, got %d", len(p.TierThresholdsCents))
	}
	for i := 1; i < len(p.TierThresholdsCents); i++ {
		if p.TierThresholdsCents[i] <= p.TierThresholdsCents[i-1] {
			return fmt.Errorf("tier thresholds must be strictly increasing")
		}
	}
	if p.RankCouncilApprovalMinTier < 1 || p.RankCouncilApprovalMinTier > 6 {
		return fmt.Errorf("rank council approval tier must be within 1..6")
	}
	if p.SkillVerifierMinTier < 1 || p.SkillVerifierMinTier > 6 {
		return fmt.Errorf("skill verifier tier must be within 1..6")
	}
	return nil
}

// RankMultiplier returns the bonus multiplier for the given tier, defaulting
// to 1.0 when the tier falls outside the configured table.
func (p PolicyConfig) RankMultiplier(tier int) float64 {
	if tier < 1 || tier > len(p.RankMultipliers) {
		return 1.0
	}
	return p.RankMultipliers[tier-1]
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GUILDWORKS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GUILDWORKS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GUILDWORKS_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GUILDWORKS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GUILDWORKS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GUILDWORKS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	AllocationTopic string `envconfig:"GUILDWORKS_PUBSUB_ALLOCATION_TOPIC" default:"gw-allocation-events"`
	TreasuryTopic   string `envconfig:"GUILDWORKS_PUBSUB_TREASURY_TOPIC" default:"gw-treasury-events"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
