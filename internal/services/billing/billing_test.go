package billing_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/render-ledger/internal/ledger"
	"github.com/magabrotheeeer/render-ledger/internal/models"
	"github.com/magabrotheeeer/render-ledger/internal/plans"
	"github.com/magabrotheeeer/render-ledger/internal/services/billing"
	"github.com/magabrotheeeer/render-ledger/internal/storage"
	"github.com/magabrotheeeer/render-ledger/internal/storage/memstore"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, recs ...models.AccountRecord) (*billing.Service, *storage.Store, *memstore.Backend) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := memstore.New()
	store := storage.New(backend, log)
	t.Cleanup(func() { _ = store.Close() })

	err := store.Update(context.Background(), func(c *storage.Collection) error {
		for _, r := range recs {
			c.Insert(r)
		}
		return nil
	})
	require.NoError(t, err)

	engine := ledger.NewEngine(plans.Default(), ledger.DefaultSettings())
	svc := billing.New(store, engine, log, billing.WithClock(func() time.Time { return testNow }))
	return svc, store, backend
}

func record(t *testing.T, store *storage.Store, email string) models.AccountRecord {
	t.Helper()
	var rec models.AccountRecord
	err := store.Update(context.Background(), func(c *storage.Collection) error {
		i, ok := c.Find(email)
		require.True(t, ok)
		rec = c.Accounts[i]
		return nil
	})
	require.NoError(t, err)
	return rec
}

func intPtr(v int) *int { return &v }

func verifiedAccount() models.AccountRecord {
	return models.AccountRecord{
		ID:                     "1",
		Email:                  "ana@x.com",
		EmailVerified:          true,
		PlanID:                 plans.FreeID,
		FreeMonthlyRendersUsed: intPtr(3),
		FreeMonthlyPeriod:      "2024-05",
	}
}

func TestService_ApplyPlanChange(t *testing.T) {
	tests := []struct {
		name        string
		email       string
		planID      string
		wantOutcome billing.Outcome
		wantPlan    string
	}{
		{name: "known plan", email: "ana@x.com", planID: plans.BasicID, wantOutcome: billing.OutcomeApplied, wantPlan: plans.BasicID},
		{name: "email is normalized", email: " ANA@x.com", planID: plans.ProfessionalID, wantOutcome: billing.OutcomeApplied, wantPlan: plans.ProfessionalID},
		{name: "unknown plan", email: "ana@x.com", planID: "platinum", wantOutcome: billing.OutcomeUnknownPlan, wantPlan: plans.FreeID},
		{name: "unknown account", email: "ghost@x.com", planID: plans.BasicID, wantOutcome: billing.OutcomeUnknownAccount, wantPlan: plans.FreeID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t, verifiedAccount())

			outcome, err := svc.ApplyPlanChange(context.Background(), tt.email, tt.planID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, outcome)

			rec := record(t, store, "ana@x.com")
			assert.Equal(t, tt.wantPlan, rec.PlanID)
		})
	}
}

func TestService_ApplyPlanChangeStartsFreshCycle(t *testing.T) {
	svc, store, _ := newService(t, verifiedAccount())

	_, err := svc.ApplyPlanChange(context.Background(), "ana@x.com", plans.BasicID)
	require.NoError(t, err)

	rec := record(t, store, "ana@x.com")
	assert.Equal(t, "2024-05", rec.FreeMonthlyPeriod)
	assert.Equal(t, 0, *rec.FreeMonthlyRendersUsed)
	assert.Equal(t, 50, *rec.FreeMonthlyRendersLimit)
	require.NotNil(t, rec.TrialStartedAt)
	assert.True(t, rec.TrialStartedAt.Equal(testNow))
}

func TestService_ApplyPlanChangeIsIdempotent(t *testing.T) {
	svc, store, _ := newService(t, verifiedAccount())
	ctx := context.Background()

	outcome, err := svc.ApplyPlanChange(ctx, "ana@x.com", plans.BasicID)
	require.NoError(t, err)
	require.Equal(t, billing.OutcomeApplied, outcome)
	once := record(t, store, "ana@x.com")

	outcome, err = svc.ApplyPlanChange(ctx, "ana@x.com", plans.BasicID)
	require.NoError(t, err)
	assert.Equal(t, billing.OutcomeUnchanged, outcome)
	assert.Equal(t, once, record(t, store, "ana@x.com"))
}

func TestService_ApplyPlanChangeUnknownAccountDoesNotWrite(t *testing.T) {
	svc, _, backend := newService(t)
	before := backend.Saves()

	_, err := svc.ApplyPlanChange(context.Background(), "ghost@x.com", plans.BasicID)
	require.NoError(t, err)
	assert.Equal(t, before, backend.Saves())
}

func TestService_ApplyPlanChangePersistenceFailure(t *testing.T) {
	svc, _, backend := newService(t, verifiedAccount())
	backend.FailSaves(errors.New("disk full"))

	_, err := svc.ApplyPlanChange(context.Background(), "ana@x.com", plans.BasicID)
	require.ErrorIs(t, err, ledger.ErrPersistence)
}

func TestService_ProcessWebhookEvent(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantOutcome billing.Outcome
		wantErr     error
		wantPlan    string
	}{
		{
			name: "checkout completed",
			payload: `{"id":"evt_1","type":"checkout.session.completed",
				"data":{"object":{"customer_email":"Ana@x.com","metadata":{"planId":"basic"}}}}`,
			wantOutcome: billing.OutcomeApplied,
			wantPlan:    plans.BasicID,
		},
		{
			name: "invoice paid with customer details",
			payload: `{"id":"evt_2","type":"invoice.paid",
				"data":{"object":{"customer_details":{"email":"ana@x.com"},"metadata":{"planId":"business"}}}}`,
			wantOutcome: billing.OutcomeApplied,
			wantPlan:    plans.BusinessID,
		},
		{
			name: "subscription deleted is ignored",
			payload: `{"id":"evt_3","type":"customer.subscription.deleted",
				"data":{"object":{"customer_email":"ana@x.com"}}}`,
			wantOutcome: billing.OutcomeIgnored,
			wantPlan:    plans.FreeID,
		},
		{
			name:        "missing plan",
			payload:     `{"type":"checkout.session.completed","data":{"object":{"customer_email":"ana@x.com"}}}`,
			wantOutcome: billing.OutcomeIgnored,
			wantPlan:    plans.FreeID,
		},
		{
			name:     "not json",
			payload:  `{"type":`,
			wantErr:  billing.ErrMalformedEvent,
			wantPlan: plans.FreeID,
		},
		{
			name:     "missing type",
			payload:  `{"data":{}}`,
			wantErr:  billing.ErrMalformedEvent,
			wantPlan: plans.FreeID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newService(t, verifiedAccount())

			outcome, err := svc.ProcessWebhookEvent(context.Background(), []byte(tt.payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantOutcome, outcome)
			}
			assert.Equal(t, tt.wantPlan, record(t, store, "ana@x.com").PlanID)
		})
	}
}

func TestService_PlanChangeThenConsume(t *testing.T) {
	svc, store, _ := newService(t, verifiedAccount())
	engine := ledger.NewEngine(plans.Default(), ledger.DefaultSettings())

	_, err := svc.ApplyPlanChange(context.Background(), "ana@x.com", plans.BasicID)
	require.NoError(t, err)

	res := engine.Consume(record(t, store, "ana@x.com"), testNow)
	require.True(t, res.Allowed)
	assert.Equal(t, models.QuotaPaidLimited, res.Snapshot.State)
	require.NotNil(t, res.Snapshot.Limit)
	assert.Equal(t, 50, *res.Snapshot.Limit)
}
