package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestLevelFromString(t *testing.T) {
	require := require.New(t)

	lvl, err := LevelFromString("debug")
	require.NoError(err)
	require.Equal(logging.DEBUG, lvl)

	_, err = LevelFromString("loud")
	require.Error(err)
}

func TestBackend_FileAndRotate(t *testing.T) {
	require := require.New(t)

	path := filepath.Join(t.TempDir(), "relay.log")
	b, err := New(path, "INFO", false)
	require.NoError(err)

	l := b.GetLogger("session")
	l.Info("created session")
	l.Debug("hidden")

	require.NoError(b.Rotate())
	l.Notice("after rotate")
	require.NoError(b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(err)
	out := string(raw)
	require.Contains(out, "session: created session")
	require.Contains(out, "after rotate")
	require.False(strings.Contains(out, "hidden"))
}
