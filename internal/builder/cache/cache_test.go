package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "collection_hashes.txt")

	ok, err := Exists(path)
	require.NoError(t, err)
	require.False(t, ok)

	entries := []Entry{
		{Checksum: "d41d8cd98f00b204e9800998ecf8427e", BeatmapsetID: 1},
		{Checksum: "0cc175b9c0f1b6a831c399e269772661", BeatmapsetID: 41},
	}

	w, err := Create(path)
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, w.Add(e))
	}

	// Entries are on disk before Close.
	content, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	require.Equal(t,
		"d41d8cd98f00b204e9800998ecf8427e|1\n0cc175b9c0f1b6a831c399e269772661|41\n",
		string(content),
	)
	require.NoError(t, w.Close())

	ok, err = Exists(path)
	require.NoError(t, err)
	require.True(t, ok)

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, entries, loaded)
}

func TestCreateTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection_hashes.txt")
	require.NoError(t, os.WriteFile(path, []byte("stale|1\nstale|2\n"), 0o600))

	w, err := Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Add(Entry{Checksum: "fresh", BeatmapsetID: 3}))
	require.NoError(t, w.Close())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []Entry{{Checksum: "fresh", BeatmapsetID: 3}}, loaded)
}

func TestLoad(t *testing.T) {
	tests := []struct {
		description string
		content     string
		expected    []Entry
	}{
		{
			description: "empty file",
			content:     "",
			expected:    nil,
		},
		{
			description: "blank lines and whitespace",
			content:     "\n  d41d8cd98f00b204e9800998ecf8427e | 7 \n\n   \n",
			expected:    []Entry{{Checksum: "d41d8cd98f00b204e9800998ecf8427e", BeatmapsetID: 7}},
		},
		{
			description: "checksum only",
			content:     "d41d8cd98f00b204e9800998ecf8427e\n",
			expected:    []Entry{{Checksum: "d41d8cd98f00b204e9800998ecf8427e"}},
		},
		{
			description: "unparsable beatmapset",
			content:     "d41d8cd98f00b204e9800998ecf8427e|abc|extra\n",
			expected:    []Entry{{Checksum: "d41d8cd98f00b204e9800998ecf8427e"}},
		},
		{
			description: "malformed checksums are kept for validation",
			content:     "NOT-A-HASH|1\nno newline at end|2",
			expected: []Entry{
				{Checksum: "NOT-A-HASH", BeatmapsetID: 1},
				{Checksum: "no newline at end", BeatmapsetID: 2},
			},
		},
		{
			description: "windows line endings",
			content:     "d41d8cd98f00b204e9800998ecf8427e|5\r\n",
			expected:    []Entry{{Checksum: "d41d8cd98f00b204e9800998ecf8427e", BeatmapsetID: 5}},
		},
	}

	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "collection_hashes.txt")
			require.NoError(t, os.WriteFile(path, []byte(test.content), 0o600))

			entries, err := Load(path)
			require.NoError(t, err)
			require.Equal(t, test.expected, entries)
		})
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestOrderedWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection_hashes.txt")
	w, err := Create(path)
	require.NoError(t, err)

	o := NewOrderedWriter(w, 4)

	// Slot 2 finishes first and waits for 0 and 1.
	require.NoError(t, o.Complete(2, &Entry{Checksum: "c", BeatmapsetID: 3}))
	require.Equal(t, 0, o.Written())

	require.NoError(t, o.Complete(0, &Entry{Checksum: "a", BeatmapsetID: 1}))
	require.Equal(t, 1, o.Written())

	// A failed lookup releases the slots behind it.
	require.NoError(t, o.Complete(1, nil))
	require.Equal(t, 2, o.Written())

	content, err := os.ReadFile(path) //nolint:gosec // test file
	require.NoError(t, err)
	require.Equal(t, "a|1\nc|3\n", string(content))

	require.EqualError(t, o.Complete(1, nil), "cache slot 1 completed twice")
	require.EqualError(t, o.Complete(4, nil), "cache slot 4 out of range")

	require.NoError(t, o.Complete(3, &Entry{Checksum: "d", BeatmapsetID: 4}))
	require.Equal(t, 3, o.Written())
	require.NoError(t, w.Close())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, []Entry{
		{Checksum: "a", BeatmapsetID: 1},
		{Checksum: "c", BeatmapsetID: 3},
		{Checksum: "d", BeatmapsetID: 4},
	}, loaded)
}
