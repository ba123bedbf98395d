package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Plan describes a purchasable subscription tier: how many letter credits it
// grants per period and what it costs.
type Plan struct {
	Code       string `mapstructure:"code" json:"code"`
	Name       string `mapstructure:"name" json:"name"`
	Credits    int    `mapstructure:"credits" json:"credits"`
	PriceCents int64  `mapstructure:"priceCents" json:"price_cents"`
	PeriodDays int    `mapstructure:"periodDays" json:"period_days"`
}

type PlanCatalog struct {
	Plans []Plan `mapstructure:"plans"`
}

func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []Plan{
			{Code: "starter", Name: "Starter", Credits: 1, PriceCents: 2900, PeriodDays: 30},
			{Code: "standard", Name: "Standard", Credits: 4, PriceCents: 9900, PeriodDays: 30},
			{Code: "premium", Name: "Premium", Credits: 8, PriceCents: 19900, PeriodDays: 30},
		},
	}
}

// PlanCatalogHolder exposes the current plan catalog and hot-reloads it when
// the backing file changes.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/letterflow")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LETTERFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanCatalog()
		v.SetDefault("plans", defaults.Plans)
	}

	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[plan-config] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Current() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

// FindPlan returns the plan with the given code, or false.
func (h *PlanCatalogHolder) FindPlan(code string) (Plan, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	for _, plan := range h.Current().Plans {
		if strings.ToLower(plan.Code) == code {
			return plan, true
		}
	}
	return Plan{}, false
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plan catalog must define at least one plan")
	}
	seen := make(map[string]bool, len(catalog.Plans))
	for _, plan := range catalog.Plans {
		code := strings.ToLower(strings.TrimSpace(plan.Code))
		if code == "" {
			return errors.New("plan code is required")
		}
		if seen[code] {
			return errors.New("duplicate plan code: " + code)
		}
		seen[code] = true
		if plan.Credits <= 0 {
			return errors.New("plan credits must be positive: " + code)
		}
		if plan.PriceCents < 0 {
			return errors.New("plan price must not be negative: " + code)
		}
		if plan.PeriodDays <= 0 {
			return errors.New("plan period must be positive: " + code)
		}
	}
	return nil
}
