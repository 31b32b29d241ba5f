package adminauth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "admin-config.json"))
}

func TestBootstrapDefaultPassword(t *testing.T) {
	m := newTestManager(t)
	password, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, defaultAdminPassword, password)

	// the bootstrap must persist, not regenerate
	again, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, password, again)
}

func TestChangeValidation(t *testing.T) {
	m := newTestManager(t)
	assert.ErrorIs(t, m.Change("   "), ErrEmptyPassword)
	assert.ErrorIs(t, m.Change("abc"), ErrShortPassword)
	assert.NoError(t, m.Change("  secret  "))

	password, err := m.Password()
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
}

func TestRotationInvalidatesToken(t *testing.T) {
	m := newTestManager(t)
	token, err := m.Password()
	require.NoError(t, err)

	ok, err := m.Validate(token)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Change("rotated-secret"))

	ok, err = m.Validate(token)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.Validate("rotated-secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidateRejectsEmptyToken(t *testing.T) {
	m := newTestManager(t)
	ok, err := m.Validate("")
	require.NoError(t, err)
	assert.False(t, ok)
}
