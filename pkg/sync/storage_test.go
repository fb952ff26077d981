package sync

import (
	"io/ioutil"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sidkik/dfsync/pkg/errors"
)

func newMemStorage(t *testing.T) (*Storage, afero.Fs) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/share", 0755))
	return NewStorage(fs, "/share"), fs
}

func TestValidateName(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		expErr bool
	}{
		{"Plain", "notes.txt", false},
		{"Spaces", "my notes.txt", false},
		{"Hidden", ".profile", false},
		{"Empty", "", true},
		{"Dot", ".", true},
		{"DotDot", "..", true},
		{"Nested", "dir/notes.txt", true},
		{"Escape", "../etc/passwd", true},
		{"Backslash", `dir\notes.txt`, true},
		{"Quote", `a"b`, true},
		{"Newline", "a\nb", true},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			err := ValidateName(test.file)
			if test.expErr {
				_, ok := err.(errors.InvalidFilename)
				assert.True(t, ok, "expected InvalidFilename, got %v", err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorage(t *testing.T) {
	storage, fs := newMemStorage(t)

	exists, err := storage.Exists("a.txt")
	assert.NoError(t, err)
	assert.False(t, exists)

	_, err = storage.Open("a.txt")
	assert.Equal(t, errors.FileNotFound{Path: "a.txt"}, err)

	f, err := storage.Create("a.txt")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Close())

	contents, err := afero.ReadFile(fs, "/share/a.txt")
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(contents))

	f, err = storage.Open("a.txt")
	require.NoError(t, err)
	contents, err = ioutil.ReadAll(f)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(contents))
	f.Close()

	exists, err = storage.Exists("a.txt")
	assert.NoError(t, err)
	assert.True(t, exists)

	assert.NoError(t, storage.Remove("a.txt"))
	assert.NoError(t, storage.Remove("a.txt"))

	exists, err = storage.Exists("a.txt")
	assert.NoError(t, err)
	assert.False(t, exists)

	_, err = storage.Create("../escape")
	assert.Error(t, err)
}

func TestStorageList(t *testing.T) {
	storage, fs := newMemStorage(t)
	require.NoError(t, afero.WriteFile(fs, "/share/b.txt", []byte("b"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/share/a.txt", []byte("a"), 0644))
	require.NoError(t, fs.MkdirAll("/share/subdir", 0755))
	require.NoError(t, afero.WriteFile(fs, "/elsewhere.txt", []byte("x"), 0644))

	names, err := storage.List()
	assert.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	exists, err := storage.Exists("subdir")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestStorageHash(t *testing.T) {
	storage, fs := newMemStorage(t)
	require.NoError(t, afero.WriteFile(fs, "/share/a.txt", []byte("same"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/share/b.txt", []byte("same"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/share/c.txt", []byte("different"), 0644))

	a, err := storage.Hash("a.txt")
	assert.NoError(t, err)
	b, err := storage.Hash("b.txt")
	assert.NoError(t, err)
	c, err := storage.Hash("c.txt")
	assert.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err = storage.Hash("missing.txt")
	assert.Equal(t, errors.FileNotFound{Path: "missing.txt"}, err)
}
