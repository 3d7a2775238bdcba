package cache

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpenCreatesDirectory(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, c)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestOpenRejectsEmptyDir(t *testing.T) {
	t.Parallel()

	_, err := Open("   ", zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestOpenRejectsFilePath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err := Open(path, zaptest.NewLogger(t))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a directory")
}

func TestGetOrComputeMissPersistsResult(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	data, err := c.GetOrCompute("series_Alias", func() ([]byte, error) {
		return []byte(`{"id":622}`), nil
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":622}`, string(data))

	onDisk, err := os.ReadFile(filepath.Join(dir, "series_Alias.json"))
	require.NoError(t, err)
	require.Equal(t, data, onDisk)
}

func TestGetOrComputeHitShortCircuitsCompute(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.GetOrCompute("comics_2258", func() ([]byte, error) {
		return []byte(`[1,2,3]`), nil
	})
	require.NoError(t, err)

	data, err := c.GetOrCompute("comics_2258", func() ([]byte, error) {
		t.Fatal("compute must not run on a cache hit")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte(`[1,2,3]`), data)
}

func TestGetOrComputeErrorIsNotCached(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	boom := errors.New("gateway down")
	_, err = c.GetOrCompute("series_Flaky", func() ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	// The failed lookup left nothing behind; the next call computes again.
	data, err := c.GetOrCompute("series_Flaky", func() ([]byte, error) {
		return []byte(`{"id":1}`), nil
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"id":1}`, string(data))
}

func TestKeysWithUnsafeCharactersMapToDistinctFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := Open(dir, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = c.GetOrCompute("series_Spider-Man/Deadpool", func() ([]byte, error) {
		return []byte(`{"id":1}`), nil
	})
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "series_Spider-Man_Deadpool.json", entries[0].Name())
}

func TestSanitizeKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"comics_2258":       "comics_2258",
		"series_X-Men 2.0":  "series_X-Men_2.0",
		"a/b\\c:d*e":        "a_b_c_d_e",
		"Uncanny X-Men '92": "Uncanny_X-Men__92",
	}
	for in, want := range cases {
		require.Equal(t, want, sanitizeKey(in), "input %q", in)
	}
}
