package subscription

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Plan describes a subscription plan. Plans referenced by billing history
// are never edited destructively; pricing changes ship as new plans.
type Plan struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	// Price is the monthly price in the smallest currency unit.
	Price     int64    `yaml:"price"`
	Features  []string `yaml:"features"`
	TrialDays int      `yaml:"trial_days"`
	Public    bool     `yaml:"public"`
}

// AmountFor returns the total charge for one term of the given period.
func (p Plan) AmountFor(period BillingPeriod) int64 {
	return p.Price * int64(period.Months())
}

// TrialEndsAt computes when a trial starting at the given time ends.
// Returns startedAt unchanged for plans without a trial.
func (p Plan) TrialEndsAt(startedAt time.Time) time.Time {
	if p.TrialDays <= 0 {
		return startedAt
	}
	return startedAt.AddDate(0, 0, p.TrialDays)
}

// PlansSource loads the plan catalog.
type PlansSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

func validatePlans(plans map[string]Plan) error {
	if len(plans) == 0 {
		return errors.New("plan catalog is empty")
	}
	for id, p := range plans {
		if p.ID == "" || p.ID != id {
			return fmt.Errorf("plan %q: inconsistent id %q", id, p.ID)
		}
		if p.Name == "" {
			return fmt.Errorf("plan %q: name is required", id)
		}
		if p.Price < 0 {
			return fmt.Errorf("plan %q: negative price", id)
		}
		if p.TrialDays < 0 {
			return fmt.Errorf("plan %q: negative trial days", id)
		}
	}
	return nil
}

type inMemSource struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewInMemSource returns a PlansSource serving a fixed plan list. Panics
// when no plans are given so a misconfigured service fails at startup.
func NewInMemSource(plans ...Plan) PlansSource {
	if len(plans) == 0 {
		panic("subscription: at least one plan is required")
	}

	byID := make(map[string]Plan, len(plans))
	for _, p := range plans {
		p.Features = slices.Clone(p.Features)
		byID[p.ID] = p
	}
	return &inMemSource{plans: byID}
}

func (s *inMemSource) Load(ctx context.Context) (map[string]Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.plans), nil
}

type yamlFileSource struct {
	path string
}

// NewYAMLSource returns a PlansSource reading the catalog from a YAML
// file. The file holds a list of plan documents:
//
//	- id: starter
//	  name: Starter
//	  price: 5000
//	  trial_days: 14
//	  public: true
func NewYAMLSource(path string) PlansSource {
	return &yamlFileSource{path: path}
}

func (s *yamlFileSource) Load(ctx context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading plan catalog: %w", err)
	}
	return ParsePlans(raw)
}

// ParsePlans decodes and validates a YAML plan list.
func ParsePlans(raw []byte) (map[string]Plan, error) {
	var list []Plan
	if err := yaml.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decoding plan catalog: %w", err)
	}

	byID := make(map[string]Plan, len(list))
	for _, p := range list {
		if _, dup := byID[p.ID]; dup {
			return nil, fmt.Errorf("plan %q: duplicate id", p.ID)
		}
		byID[p.ID] = p
	}

	if err := validatePlans(byID); err != nil {
		return nil, err
	}
	return byID, nil
}
