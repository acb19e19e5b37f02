package tomlrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wealthmesh/wealthmesh/records"
)

func TestClientsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "clients.toml")
	repo := NewClients(path)

	_, err := repo.Get(ctx, "c-1")
	assert.ErrorIs(t, err, records.ErrNotFound)

	require.NoError(t, repo.Put(ctx, records.Client{
		ID: "c-1", FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com",
	}))

	// A fresh repo over the same file sees the persisted record.
	c, err := NewClients(path).Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.FirstName)

	updated, err := repo.Update(ctx, "c-1", map[string]string{"marital_status": "married"})
	require.NoError(t, err)
	assert.Equal(t, "married", updated.MaritalStatus)

	c, err = NewClients(path).Get(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "married", c.MaritalStatus)
}

func TestBeneficiariesRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "beneficiaries.toml")
	repo := NewBeneficiaries(path)

	b, err := repo.Add(ctx, "c-1", records.Beneficiary{FirstName: "Grace", LastName: "Hopper", Relationship: "daughter"})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)

	_, err = repo.Add(ctx, "c-2", records.Beneficiary{FirstName: "Alan", LastName: "Turing", Relationship: "son"})
	require.NoError(t, err)

	list, err := NewBeneficiaries(path).List(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Grace", list[0].FirstName)

	require.NoError(t, repo.Delete(ctx, "c-1", b.ID))
	assert.ErrorIs(t, repo.Delete(ctx, "c-1", b.ID), records.ErrNotFound)

	list, err = NewBeneficiaries(path).List(ctx, "c-2")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestInvestmentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "investments.toml")
	repo := NewInvestments(path)

	acct, err := repo.Open(ctx, "c-1", "Index Fund", 1000)
	require.NoError(t, err)

	list, err := NewInvestments(path).List(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Index Fund", list[0].Name)
	assert.Equal(t, 1000.0, list[0].Balance)

	require.NoError(t, repo.Close(ctx, "c-1", acct.ID))
	list, err = NewInvestments(path).List(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSaveFileLeavesNoTempArtifacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clients.toml")
	require.NoError(t, NewClients(path).Put(context.Background(), records.Client{ID: "c-1"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "clients.toml", entries[0].Name())
}
