package store

import (
	"path/filepath"
	"testing"

	"github.com/glowchat/glowchat/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStoreReactionInvariants(t *testing.T) {
	cfg := &config.Config{}
	cfg.PersistenceConfig.Type = "gorm"
	cfg.PersistenceConfig.Dialect = "sqlite"
	cfg.PersistenceConfig.DSN = filepath.Join(t.TempDir(), "test.db")
	st, err := New(cfg)
	require.NoError(t, err)
	defer st.Close()

	msg, err := st.AppendMessage(draft("uA", "A", "hello"))
	require.NoError(t, err)

	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
	assert.Equal(t, CodeDuplicateReaction, CodeOf(err))
	_, err = st.AddReaction(msg.Id, "u1", "👍", "Ann")
	require.NoError(t, err)
	_, err = st.AddReaction(msg.Id, "u1", "❤️", "Ann")
	assert.Equal(t, CodeLimitExceeded, CodeOf(err))

	require.NoError(t, st.DeleteMessage(msg.Id))
	reactions, err := st.ReactionsFor(msg.Id)
	require.NoError(t, err)
	assert.Empty(t, reactions)
}
