package store

import (
	"path/filepath"
	"testing"

	"github.com/glowchat/glowchat/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// backendOpeners covers every backend that can run without an external
// database server.
func backendOpeners() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"buntdb": func(t *testing.T) Store {
			cfg := &config.Config{}
			cfg.PersistenceConfig.Type = "buntdb"
			cfg.PersistenceConfig.DSN = ":memory:"
			st, err := New(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
		"sqlite": func(t *testing.T) Store {
			cfg := &config.Config{}
			cfg.PersistenceConfig.Type = "sqlite"
			cfg.PersistenceConfig.DSN = filepath.Join(t.TempDir(), "test.db")
			st, err := New(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
		"gorm": func(t *testing.T) Store {
			cfg := &config.Config{}
			cfg.PersistenceConfig.Type = "gorm"
			cfg.PersistenceConfig.Dialect = "sqlite"
			cfg.PersistenceConfig.DSN = filepath.Join(t.TempDir(), "test.db")
			st, err := New(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { st.Close() })
			return st
		},
	}
}

// A user at the reaction cap re-adding an emoji they already hold must get
// the duplicate rejection, not the limit one, on every backend.
func TestDuplicateReactionWhileAtCap(t *testing.T) {
	for name, open := range backendOpeners() {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			msg, err := st.AppendMessage(draft("uA", "A", "hello"))
			require.NoError(t, err)

			_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
			require.NoError(t, err)
			_, err = st.AddReaction(msg.Id, "u1", "👍", "Ann")
			require.NoError(t, err)

			_, err = st.AddReaction(msg.Id, "u1", "😀", "Ann")
			assert.Equal(t, CodeDuplicateReaction, CodeOf(err))
			_, err = st.AddReaction(msg.Id, "u1", "❤️", "Ann")
			assert.Equal(t, CodeLimitExceeded, CodeOf(err))

			reactions, err := st.ReactionsFor(msg.Id)
			require.NoError(t, err)
			assert.Len(t, reactions, 2)
		})
	}
}
