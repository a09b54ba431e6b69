package seed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/mandi-backend/internal/catalog"
	"github.com/angelmondragon/mandi-backend/pkg/auth"
	"github.com/angelmondragon/mandi-backend/pkg/config"
	"github.com/angelmondragon/mandi-backend/pkg/db/dbtest"
	"github.com/angelmondragon/mandi-backend/pkg/enums"
	"github.com/angelmondragon/mandi-backend/pkg/locks"
	"github.com/angelmondragon/mandi-backend/pkg/outbox"
)

var testJWT = config.JWTConfig{Secret: "seed-secret", Issuer: "mandi-seed", ExpirationMinutes: 30}

func newCatalog(t *testing.T) catalog.Service {
	t.Helper()
	client := dbtest.Open(t)
	emitter := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	svc, err := catalog.NewService(catalog.NewRepository(client.DB()), client, locks.NewLocal(), emitter, nil)
	require.NoError(t, err)
	return svc
}

func TestRunCreatesFixturesOnce(t *testing.T) {
	svc := newCatalog(t)
	ctx := context.Background()
	now := time.Now()

	first, err := Run(ctx, svc, testJWT, now, DefaultFixtures)
	require.NoError(t, err)
	assert.Len(t, first.Created, len(DefaultFixtures))
	assert.Empty(t, first.Skipped)
	for _, p := range first.Created {
		assert.Equal(t, SupplierID, p.SupplierID)
	}

	second, err := Run(ctx, svc, testJWT, now, DefaultFixtures)
	require.NoError(t, err)
	assert.Empty(t, second.Created)
	assert.Len(t, second.Skipped, len(DefaultFixtures))
}

func TestRunMintsParseableTokens(t *testing.T) {
	result, err := Run(context.Background(), newCatalog(t), testJWT, time.Now(), DefaultFixtures[:1])
	require.NoError(t, err)

	expected := map[enums.ActorRole]string{
		enums.ActorRoleSupplier: SupplierID.String(),
		enums.ActorRoleVendor:   VendorID.String(),
		enums.ActorRoleAdmin:    AdminID.String(),
	}
	require.Len(t, result.Tokens, len(expected))
	for role, id := range expected {
		claims, err := auth.ParseAccessToken(testJWT, result.Tokens[role])
		require.NoError(t, err, role)
		actor := claims.Actor()
		assert.Equal(t, role, actor.Role)
		assert.Equal(t, id, actor.ID.String())
	}
}

func TestRunRejectsBadPrice(t *testing.T) {
	_, err := Run(context.Background(), newCatalog(t), testJWT, time.Now(), []Fixture{
		{Name: "Broken", Category: enums.ProductCategorySnacks, Unit: enums.ProductUnitPiece, Price: "abc", Stock: 1},
	})
	require.Error(t, err)
}
