package license

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/powerflow/licensing/internal/auth"
	"github.com/powerflow/licensing/internal/models"
	"github.com/powerflow/licensing/internal/store"
	"github.com/powerflow/licensing/internal/store/memory"
)

const testPhone = "0966262458"

func newTestService(t *testing.T) (*Service, *memory.MemoryStore) {
	t.Helper()
	st := memory.NewMemoryStore()
	return NewService(st, NewStubVerifier(testPhone), nil), st
}

func seedOrg(t *testing.T, st store.Store, email string) auth.Principal {
	t.Helper()
	org := &models.Organization{
		Email:     email,
		FirstName: "Ada",
		LastName:  "Lovelace",
		Type:      models.OrgTypeIndividual,
	}
	require.NoError(t, st.Orgs().Create(context.Background(), org))
	return auth.Principal{
		AccountID:      "acct-" + org.ID,
		OrganizationID: org.ID,
		Role:           models.RoleOwner,
	}
}

func TestPurchaseCreatesSeatBatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 5, testPhone)
	require.NoError(t, err)
	require.Len(t, batch, 5)

	keys := make(map[string]bool)
	for i, l := range batch {
		assert.Equal(t, i+1, l.SeatNumber)
		assert.Equal(t, p.OrganizationID, l.OrganizationID)
		assert.Equal(t, models.PlanYearly, l.Plan)
		assert.True(t, l.IsActive)
		assert.Nil(t, l.MachineID)
		assert.False(t, keys[l.Key], "license keys must be unique")
		keys[l.Key] = true
		// All seats in a batch share issue and expiry dates.
		assert.Equal(t, batch[0].IssueDate, l.IssueDate)
		assert.Equal(t, batch[0].ExpiryDate, l.ExpiryDate)
	}

	assert.Equal(t, batch[0].IssueDate.AddDate(1, 0, 0), batch[0].ExpiryDate)
}

func TestPurchasePlanDurations(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		plan  models.PlanType
		years int
	}{
		{models.PlanYearly, 1},
		{models.PlanThreeYears, 3},
		{models.PlanFloating, 100},
	}
	for _, tc := range cases {
		p := seedOrg(t, st, fmt.Sprintf("%s@example.com", tc.plan))
		batch, err := svc.Purchase(ctx, p, tc.plan, 1, testPhone)
		require.NoError(t, err)
		assert.Equal(t, batch[0].IssueDate.AddDate(tc.years, 0, 0), batch[0].ExpiryDate)
	}
}

func TestPurchaseRejectsBadInput(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	_, err := svc.Purchase(ctx, p, "monthly", 1, testPhone)
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = svc.Purchase(ctx, p, models.PlanYearly, 0, testPhone)
	assert.ErrorIs(t, err, ErrInvalidSeatCount)

	_, err = svc.Purchase(ctx, p, models.PlanYearly, 1, "0000000000")
	assert.ErrorIs(t, err, ErrPaymentRejected)

	licenses, err := st.Licenses().ListByOrg(ctx, p.OrganizationID)
	require.NoError(t, err)
	assert.Empty(t, licenses)
}

// failAfterStore wraps a store and fails license creation after a set
// number of writes, to exercise batch atomicity.
type failAfterStore struct {
	store.Store
	mu      sync.Mutex
	creates int
	failAt  int
}

func (f *failAfterStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return f.Store.WithTx(ctx, func(tx store.Store) error {
		return fn(&failAfterStore{Store: tx, failAt: f.failAt, creates: f.creates})
	})
}

func (f *failAfterStore) Licenses() store.LicenseStore {
	return &failAfterLicenses{LicenseStore: f.Store.Licenses(), parent: f}
}

type failAfterLicenses struct {
	store.LicenseStore
	parent *failAfterStore
}

func (f *failAfterLicenses) Create(ctx context.Context, l *models.License) error {
	f.parent.mu.Lock()
	f.parent.creates++
	n := f.parent.creates
	f.parent.mu.Unlock()
	if n >= f.parent.failAt {
		return errors.New("disk full")
	}
	return f.LicenseStore.Create(ctx, l)
}

func TestPurchaseFailureLeavesNoRows(t *testing.T) {
	mem := memory.NewMemoryStore()
	wrapped := &failAfterStore{Store: mem, failAt: 3}
	svc := NewService(wrapped, NewStubVerifier(testPhone), nil)
	ctx := context.Background()
	p := seedOrg(t, mem, "ada@example.com")

	_, err := svc.Purchase(ctx, p, models.PlanYearly, 5, testPhone)
	require.Error(t, err)

	licenses, err := mem.Licenses().ListByOrg(ctx, p.OrganizationID)
	require.NoError(t, err)
	assert.Empty(t, licenses, "a failed batch must leave no partial rows")
}

func TestValidateBindsOnFirstUse(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 1, testPhone)
	require.NoError(t, err)
	key := batch[0].Key

	result, err := svc.Validate(ctx, key, "machine-1", "alice")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Empty(t, result.Reason)
	assert.Equal(t, models.PlanYearly, result.Plan)
	require.NotNil(t, result.Expiry)

	stored, err := st.Licenses().GetByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored.MachineID)
	assert.Equal(t, "machine-1", *stored.MachineID)
	require.NotNil(t, stored.Username)
	assert.Equal(t, "alice", *stored.Username)
	require.NotNil(t, stored.LastActivity)
}

func TestValidateDefaultsUsername(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 1, testPhone)
	require.NoError(t, err)

	_, err = svc.Validate(ctx, batch[0].Key, "machine-1", "")
	require.NoError(t, err)

	stored, err := st.Licenses().GetByKey(ctx, batch[0].Key)
	require.NoError(t, err)
	require.NotNil(t, stored.Username)
	assert.Equal(t, "Unknown", *stored.Username)
}

func TestValidateSameMachineSucceeds(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 1, testPhone)
	require.NoError(t, err)
	key := batch[0].Key

	_, err = svc.Validate(ctx, key, "machine-1", "alice")
	require.NoError(t, err)

	before, err := st.Licenses().GetByKey(ctx, key)
	require.NoError(t, err)

	result, err := svc.Validate(ctx, key, "machine-1", "alice")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	after, err := st.Licenses().GetByKey(ctx, key)
	require.NoError(t, err)
	assert.False(t, after.LastActivity.Before(*before.LastActivity))
}

func TestValidateMachineMismatch(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 1, testPhone)
	require.NoError(t, err)
	key := batch[0].Key

	_, err = svc.Validate(ctx, key, "machine-1", "alice")
	require.NoError(t, err)

	result, err := svc.Validate(ctx, key, "machine-2", "bob")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonMachineMismatch, result.Reason)

	// The binding is permanent, the loser never overwrites it.
	stored, err := st.Licenses().GetByKey(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "machine-1", *stored.MachineID)
}

func TestValidateUnknownKey(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Validate(context.Background(), "LIC-DEADBEEF-0", "machine-1", "alice")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNotFound, result.Reason)
}

func TestValidateExpiredLicense(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	// An expired license rejects even while still marked active.
	expired := &models.License{
		OrganizationID: p.OrganizationID,
		Key:            "LIC-EXPIRED1-1",
		Plan:           models.PlanYearly,
		SeatNumber:     1,
		IssueDate:      time.Now().AddDate(-2, 0, 0),
		ExpiryDate:     time.Now().AddDate(-1, 0, 0),
		IsActive:       true,
	}
	require.NoError(t, st.Licenses().Create(ctx, expired))

	result, err := svc.Validate(ctx, expired.Key, "machine-1", "alice")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonExpired, result.Reason)

	// Expired licenses never bind.
	stored, err := st.Licenses().GetByKey(ctx, expired.Key)
	require.NoError(t, err)
	assert.Nil(t, stored.MachineID)
}

func TestValidateInactiveLicense(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	inactive := &models.License{
		OrganizationID: p.OrganizationID,
		Key:            "LIC-INACTIVE-1",
		Plan:           models.PlanYearly,
		SeatNumber:     1,
		IssueDate:      time.Now(),
		ExpiryDate:     time.Now().AddDate(1, 0, 0),
		IsActive:       false,
	}
	require.NoError(t, st.Licenses().Create(ctx, inactive))

	result, err := svc.Validate(ctx, inactive.Key, "machine-1", "alice")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, ReasonInactive, result.Reason)
}

func TestValidateConcurrentFirstBind(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 1, testPhone)
	require.NoError(t, err)
	key := batch[0].Key

	const contenders = 16
	results := make([]*ValidationResult, contenders)
	errs := make([]error, contenders)

	var wg sync.WaitGroup
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Validate(ctx, key, fmt.Sprintf("machine-%d", i), "alice")
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < contenders; i++ {
		require.NoError(t, errs[i])
		if results[i].Valid {
			winners++
		} else {
			assert.Equal(t, ReasonMachineMismatch, results[i].Reason)
		}
	}
	assert.Equal(t, 1, winners, "exactly one machine may win the first bind")

	stored, err := st.Licenses().GetByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, stored.MachineID)
}

func TestListIsTenantScoped(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	pA := seedOrg(t, st, "a@example.com")
	pB := seedOrg(t, st, "b@example.com")

	_, err := svc.Purchase(ctx, pA, models.PlanYearly, 3, testPhone)
	require.NoError(t, err)
	_, err = svc.Purchase(ctx, pB, models.PlanThreeYears, 2, testPhone)
	require.NoError(t, err)

	listA, err := svc.List(ctx, pA)
	require.NoError(t, err)
	assert.Len(t, listA, 3)
	for _, l := range listA {
		assert.Equal(t, pA.OrganizationID, l.OrganizationID)
	}

	listB, err := svc.List(ctx, pB)
	require.NoError(t, err)
	assert.Len(t, listB, 2)
}

func TestStats(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()
	p := seedOrg(t, st, "ada@example.com")

	// Empty organization gets the free plan baseline.
	stats, err := svc.Stats(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ActiveLicenses)
	assert.Equal(t, "Free Plan", stats.PlanName)
	assert.Nil(t, stats.ExpiryDate)
	assert.Equal(t, "Ada Lovelace", stats.CustomerName)

	batch, err := svc.Purchase(ctx, p, models.PlanYearly, 3, testPhone)
	require.NoError(t, err)

	// Bind one seat.
	_, err = svc.Validate(ctx, batch[0].Key, "machine-1", "alice")
	require.NoError(t, err)

	// An expired license must not count.
	require.NoError(t, st.Licenses().Create(ctx, &models.License{
		OrganizationID: p.OrganizationID,
		Key:            "LIC-EXPIRED2-2",
		Plan:           models.PlanThreeYears,
		SeatNumber:     9,
		IssueDate:      time.Now().AddDate(-4, 0, 0),
		ExpiryDate:     time.Now().AddDate(-1, 0, 0),
		IsActive:       true,
	}))

	stats, err = svc.Stats(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.ActiveLicenses)
	assert.Equal(t, 6, stats.TotalSeats)
	assert.Equal(t, 1, stats.SeatsUsed)
	assert.Equal(t, string(models.PlanYearly), stats.PlanName)
	require.NotNil(t, stats.ExpiryDate)
}

func TestGenerateKeyFormat(t *testing.T) {
	key := generateKey()
	assert.Regexp(t, `^LIC-[0-9A-F]{8}-\d+$`, key)
}
