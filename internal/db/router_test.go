package db

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basehub/internal/db/crypto"
	"basehub/internal/domain"
)

type memCredentialRepo struct {
	creds map[poolKey]string
}

func (m *memCredentialRepo) Upsert(ctx context.Context, cred *domain.TenantCredential) error {
	m.creds[poolKey{tenant: cred.TenantID, role: cred.Role}] = cred.Ciphertext
	return nil
}

func (m *memCredentialRepo) Get(ctx context.Context, tenantID domain.TenantID, role domain.Role) (*domain.TenantCredential, error) {
	ct, ok := m.creds[poolKey{tenant: tenantID, role: role}]
	if !ok {
		return nil, domain.ErrNotFound("no %s credential for tenant %q", role, tenantID)
	}
	return &domain.TenantCredential{TenantID: tenantID, Role: role, Ciphertext: ct}, nil
}

type fakePool struct {
	dsn    string
	closed atomic.Bool
}

func (p *fakePool) query(ctx context.Context, _ time.Duration, sql string, args ...any) ([]map[string]any, error) {
	return nil, nil
}

func (p *fakePool) exec(ctx context.Context, _ time.Duration, sql string, args ...any) (int64, error) {
	return 0, nil
}

func (p *fakePool) close() { p.closed.Store(true) }

func newTestRouter(t *testing.T) (*Router, *memCredentialRepo, *crypto.Encryptor, *atomic.Int32) {
	t.Helper()
	enc, err := crypto.NewEncryptor("test-master-key")
	require.NoError(t, err)

	creds := &memCredentialRepo{creds: make(map[poolKey]string)}
	router := NewRouter(creds, enc, PoolConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var dials atomic.Int32
	router.newPool = func(ctx context.Context, dsn string, cfg PoolConfig) (tenantPool, error) {
		dials.Add(1)
		return &fakePool{dsn: dsn}, nil
	}
	return router, creds, enc, &dials
}

func storeCred(t *testing.T, creds *memCredentialRepo, enc *crypto.Encryptor, tenant domain.TenantID, role domain.Role, dsn string) {
	t.Helper()
	ct, err := enc.Encrypt(dsn)
	require.NoError(t, err)
	require.NoError(t, creds.Upsert(context.Background(), &domain.TenantCredential{
		TenantID: tenant, Role: role, Ciphertext: ct,
	}))
}

func TestRouter_PoolPerTenantAndRole(t *testing.T) {
	router, creds, enc, dials := newTestRouter(t)
	ctx := context.Background()

	storeCred(t, creds, enc, "t1", domain.RoleApp, "postgres://app_t1@db/t1")
	storeCred(t, creds, enc, "t1", domain.RoleOwner, "postgres://owner_t1@db/t1")
	storeCred(t, creds, enc, "t2", domain.RoleApp, "postgres://app_t2@db/t2")

	for _, pair := range []struct {
		tenant domain.TenantID
		role   domain.Role
	}{
		{"t1", domain.RoleApp}, {"t1", domain.RoleOwner}, {"t2", domain.RoleApp},
	} {
		_, err := router.Acquire(ctx, pair.tenant, pair.role)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(3), dials.Load())
	assert.Equal(t, 3, router.PoolCount())

	// Re-acquisition reuses the existing pools.
	_, err := router.Acquire(ctx, "t1", domain.RoleApp)
	require.NoError(t, err)
	assert.Equal(t, int32(3), dials.Load())
}

func TestRouter_DecryptsTheRightDSN(t *testing.T) {
	router, creds, enc, _ := newTestRouter(t)
	ctx := context.Background()

	storeCred(t, creds, enc, "t1", domain.RoleApp, "postgres://app_t1@db/t1")
	_, err := router.Acquire(ctx, "t1", domain.RoleApp)
	require.NoError(t, err)

	pool := router.pools[poolKey{tenant: "t1", role: domain.RoleApp}].(*fakePool)
	assert.Equal(t, "postgres://app_t1@db/t1", pool.dsn)
}

func TestRouter_UnknownRole(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	_, err := router.Acquire(context.Background(), "t1", "superuser")
	require.Error(t, err)
}

func TestRouter_MissingCredential(t *testing.T) {
	router, _, _, _ := newTestRouter(t)
	_, err := router.Acquire(context.Background(), "ghost", domain.RoleApp)
	var nf *domain.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestRouter_DecryptionFailureIsNotRetryable(t *testing.T) {
	router, creds, _, dials := newTestRouter(t)
	ctx := context.Background()

	// Ciphertext sealed under a different master key.
	otherEnc, err := crypto.NewEncryptor("some-other-master-key")
	require.NoError(t, err)
	storeCred(t, creds, otherEnc, "t1", domain.RoleApp, "postgres://app@db/t1")

	_, err = router.Acquire(ctx, "t1", domain.RoleApp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
	var unavailable *domain.UnavailableError
	assert.False(t, errors.As(err, &unavailable), "decryption failure must not be classified retryable")
	assert.Equal(t, int32(0), dials.Load())
}

func TestClassifyAcquireError(t *testing.T) {
	t.Run("timeout_with_live_caller_is_retryable", func(t *testing.T) {
		err := classifyAcquireError(context.DeadlineExceeded, context.Background())
		var unavailable *domain.UnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Contains(t, err.Error(), "pool exhausted")
	})

	t.Run("expired_caller_deadline_is_not_retryable", func(t *testing.T) {
		ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
		defer cancel()

		err := classifyAcquireError(context.DeadlineExceeded, ctx)
		var unavailable *domain.UnavailableError
		assert.False(t, errors.As(err, &unavailable), "caller-owned deadline must not be classified retryable")
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancelled_caller_is_not_retryable", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := classifyAcquireError(context.Canceled, ctx)
		var unavailable *domain.UnavailableError
		assert.False(t, errors.As(err, &unavailable))
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("other_errors_pass_through_wrapped", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := classifyAcquireError(cause, context.Background())
		assert.ErrorIs(t, err, cause)
		var unavailable *domain.UnavailableError
		assert.False(t, errors.As(err, &unavailable))
	})
}

func TestRouter_EvictTenant(t *testing.T) {
	router, creds, enc, dials := newTestRouter(t)
	ctx := context.Background()

	storeCred(t, creds, enc, "t1", domain.RoleApp, "postgres://app_t1@db/t1")
	_, err := router.Acquire(ctx, "t1", domain.RoleApp)
	require.NoError(t, err)
	pool := router.pools[poolKey{tenant: "t1", role: domain.RoleApp}].(*fakePool)

	router.EvictTenant("t1")
	assert.True(t, pool.closed.Load())
	assert.Equal(t, 0, router.PoolCount())

	// Next acquisition re-dials.
	_, err = router.Acquire(ctx, "t1", domain.RoleApp)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())
}
