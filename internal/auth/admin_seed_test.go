package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hiddengems/hiddengems-backend/internal/users"
	"github.com/hiddengems/hiddengems-backend/pkg/config"
	"github.com/hiddengems/hiddengems-backend/pkg/db/dbtest"
	"github.com/hiddengems/hiddengems-backend/pkg/enums"
	pkgerrors "github.com/hiddengems/hiddengems-backend/pkg/errors"
)

func TestAdminSeederCreatesAndPromotes(t *testing.T) {
	client := dbtest.Client(t)
	seeder, err := NewAdminSeeder(client, config.PasswordConfig{})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = seeder.Seed(ctx, SeedAdminRequest{Email: "root@example.com"})
	require.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation), "new admin without password")

	res, err := seeder.Seed(ctx, SeedAdminRequest{Email: "Root@Example.com", Password: "bootstrap99"})
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, enums.RoleAdmin, res.User.Role)

	repo := users.NewRepository(client.DB())
	owner, err := repo.Create(ctx, users.CreateUserDTO{Email: "owner@example.com", FullName: "Owner", Role: enums.RoleOwner})
	require.NoError(t, err)

	res, err = seeder.Seed(ctx, SeedAdminRequest{Email: "owner@example.com"})
	require.NoError(t, err)
	require.True(t, res.Promoted)
	require.False(t, res.Created)

	reloaded, err := repo.FindByID(ctx, owner.ID)
	require.NoError(t, err)
	require.Equal(t, enums.RoleAdmin, reloaded.Role)

	res, err = seeder.Seed(ctx, SeedAdminRequest{Email: "owner@example.com"})
	require.NoError(t, err)
	require.False(t, res.Promoted, "second run is a no-op")
}
