package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drgood/goodsale-sub002/svc/subscription"
)

func TestPlanAmountFor(t *testing.T) {
	t.Parallel()

	p := subscription.Plan{ID: "starter", Price: 5000}
	assert.Equal(t, int64(5000), p.AmountFor(subscription.PeriodMonthly))
	assert.Equal(t, int64(60000), p.AmountFor(subscription.PeriodAnnual))
}

func TestPlanTrialEndsAt(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	p := subscription.Plan{ID: "starter", TrialDays: 14}
	assert.Equal(t, start.AddDate(0, 0, 14), p.TrialEndsAt(start))

	noTrial := subscription.Plan{ID: "enterprise"}
	assert.Equal(t, start, noTrial.TrialEndsAt(start))
}

func TestParsePlans(t *testing.T) {
	t.Parallel()

	t.Run("parses a valid catalog", func(t *testing.T) {
		t.Parallel()

		plans, err := subscription.ParsePlans([]byte(`
- id: starter
  name: Starter
  price: 5000
  trial_days: 14
  public: true
  features:
    - "1 store"
- id: pro
  name: Pro
  price: 12000
  trial_days: 14
  public: true
`))
		require.NoError(t, err)
		require.Len(t, plans, 2)
		assert.Equal(t, int64(5000), plans["starter"].Price)
		assert.Equal(t, []string{"1 store"}, plans["starter"].Features)
	})

	t.Run("rejects duplicate ids", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.ParsePlans([]byte(`
- id: starter
  name: Starter
  price: 5000
- id: starter
  name: Starter Again
  price: 6000
`))
		assert.ErrorContains(t, err, "duplicate id")
	})

	t.Run("rejects an empty catalog", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.ParsePlans([]byte(`[]`))
		assert.Error(t, err)
	})

	t.Run("rejects negative prices", func(t *testing.T) {
		t.Parallel()

		_, err := subscription.ParsePlans([]byte(`
- id: broken
  name: Broken
  price: -1
`))
		assert.ErrorContains(t, err, "negative price")
	})
}

func TestInMemSource(t *testing.T) {
	t.Parallel()

	src := subscription.NewInMemSource(subscription.Plan{ID: "starter", Name: "Starter", Price: 5000})

	plans, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, plans, "starter")

	// Mutating the returned map must not affect the source.
	delete(plans, "starter")
	plans, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, plans, "starter")

	assert.Panics(t, func() { subscription.NewInMemSource() })
}
