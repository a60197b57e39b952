package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SnapshotResolvesSuppliers(t *testing.T) {
	reg := NewRegistry()
	port := "5432"
	reg.Add(KeyDatasourceURL, func() string { return "postgres://localhost:" + port + "/app" })
	reg.Add(KeyDatasourceUsername, func() string { return "sa" })

	// suppliers are evaluated when the registry is read, not when registered
	port = "55432"

	assert.Equal(t, map[string]string{
		KeyDatasourceURL:      "postgres://localhost:55432/app",
		KeyDatasourceUsername: "sa",
	}, reg.Snapshot())
	assert.Equal(t, []string{KeyDatasourceURL, KeyDatasourceUsername}, reg.Keys())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.Add(KeyDatasourcePassword, func() string { return "" })
	reg.Add(KeyDatasourceUsername, nil)

	v, ok := reg.Lookup(KeyDatasourcePassword)
	require.True(t, ok, "an empty value is still defined")
	assert.Empty(t, v)

	_, ok = reg.Lookup(KeyDatasourceUsername)
	assert.False(t, ok, "nil suppliers are ignored")
}

func TestRegistry_AddReplaces(t *testing.T) {
	reg := NewRegistry()
	reg.Add(KeyDatasourceUsername, func() string { return "first" })
	reg.Add(KeyDatasourceUsername, func() string { return "second" })

	v, ok := reg.Lookup(KeyDatasourceUsername)
	require.True(t, ok)
	assert.Equal(t, "second", v)
	assert.Equal(t, 1, reg.Len())
}

func TestEnvSource(t *testing.T) {
	t.Setenv("PGSMOKE_T_SOURCE", "value")

	v, ok := EnvSource{}.Lookup("PGSMOKE_T_SOURCE")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = EnvSource{}.Lookup("PGSMOKE_T_SOURCE_MISSING")
	assert.False(t, ok)
}
