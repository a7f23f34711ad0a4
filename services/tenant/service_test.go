package tenant

import (
	"context"
	"errors"
	"testing"
	"time"

	"barbershop-billing/pkg/db/option"
	"barbershop-billing/pkg/errutil"
	"barbershop-billing/pkg/repository"
	"barbershop-billing/services/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockTenantRepository struct {
	findFn    func(ctx context.Context, query *Tenant, opts ...option.QueryOption) ([]*Tenant, error)
	findOneFn func(ctx context.Context, query *Tenant, opts ...option.QueryOption) (*Tenant, error)
}

func (m *mockTenantRepository) WithTrx(tx *gorm.DB) repository.Repository[Tenant] {
	return m
}

func (m *mockTenantRepository) Find(ctx context.Context, query *Tenant, opts ...option.QueryOption) ([]*Tenant, error) {
	if m.findFn != nil {
		return m.findFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockTenantRepository) FindOne(ctx context.Context, query *Tenant, opts ...option.QueryOption) (*Tenant, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}

func (m *mockTenantRepository) Create(context.Context, *Tenant) error         { return nil }
func (m *mockTenantRepository) Update(context.Context, string, any) error     { return nil }
func (m *mockTenantRepository) BatchCreate(context.Context, []*Tenant) error  { return nil }
func (m *mockTenantRepository) BatchUpdate(context.Context, []*Tenant) error  { return nil }
func (m *mockTenantRepository) Count(context.Context, *Tenant) (int64, error) { return 0, nil }

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	db := testutil.NewTestDB(t, &Tenant{})
	return NewService(ServiceParams{DB: db}), db
}

func TestListActiveTenantsSkipsInactive(t *testing.T) {
	svc, db := newTestService(t)

	now := time.Now()
	require.NoError(t, db.Create(&Tenant{ID: "shop-1", Name: "One", Active: true, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&Tenant{ID: "shop-2", Name: "Two", Active: true, CreatedAt: now.Add(time.Minute)}).Error)
	require.NoError(t, db.Create(&Tenant{ID: "shop-3", Name: "Three", Active: true}).Error)
	require.NoError(t, db.Model(&Tenant{}).Where("id = ?", "shop-3").Update("active", false).Error)

	tenants, err := svc.ListActiveTenants(context.Background())
	require.NoError(t, err)
	require.Len(t, tenants, 2)
	require.Equal(t, "shop-1", tenants[0].ID)
	require.Equal(t, "shop-2", tenants[1].ID)
}

func TestListActiveTenantsRepositoryError(t *testing.T) {
	repo := &mockTenantRepository{}
	repo.findFn = func(ctx context.Context, _ *Tenant, _ ...option.QueryOption) ([]*Tenant, error) {
		return nil, errors.New("boom")
	}
	svc := &Service{repo: repo}

	_, err := svc.ListActiveTenants(context.Background())
	require.Error(t, err)
	require.Equal(t, errutil.KindInternal, errutil.Kind(err))
}

func TestGetTenantNotFound(t *testing.T) {
	svc := &Service{repo: &mockTenantRepository{}}

	_, err := svc.GetTenant(context.Background(), "missing")
	require.True(t, errutil.IsNotFound(err))

	_, err = svc.GetTenant(context.Background(), "")
	require.True(t, errutil.IsValidation(err))
}

func TestUpdatePlatformFee(t *testing.T) {
	svc, db := newTestService(t)
	require.NoError(t, db.Create(&Tenant{ID: "shop-1", Name: "One", Active: true, PlatformFee: decimal.RequireFromString("1.50")}).Error)

	updated, err := svc.UpdatePlatformFee(context.Background(), "shop-1", decimal.RequireFromString("2.755"))
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("2.76").Equal(updated.PlatformFee))
}

func TestUpdatePlatformFeeRejectsNegative(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.UpdatePlatformFee(context.Background(), "shop-1", decimal.NewFromInt(-1))
	require.True(t, errutil.IsValidation(err))
}

func TestHasGlobalTrial(t *testing.T) {
	start := testutil.Date(2026, time.January, 1)
	end := testutil.Date(2026, time.January, 31)

	require.False(t, (&Tenant{FreeTrialActive: true}).HasGlobalTrial())
	require.False(t, (&Tenant{FreeTrialStartDate: &start, FreeTrialEndDate: &end}).HasGlobalTrial())
	require.True(t, (&Tenant{FreeTrialActive: true, FreeTrialStartDate: &start, FreeTrialEndDate: &end}).HasGlobalTrial())
}
