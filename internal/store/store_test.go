package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Record
		wantErr bool
	}{
		{name: "plain", input: "1.2.3", want: Record{1, 2, 3}},
		{name: "v prefix", input: "v10.0.42", want: Record{10, 0, 42}},
		{name: "surrounding space", input: " 0.0.1 ", want: Record{0, 0, 1}},
		{name: "two components", input: "1.2", wantErr: true},
		{name: "four components", input: "1.2.3.4", wantErr: true},
		{name: "not a number", input: "1.x.3", wantErr: true},
		{name: "negative", input: "1.-2.3", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersion(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidVersion)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Version(), got.Version())
		})
	}
}

func TestRecord_Version(t *testing.T) {
	assert.Equal(t, "0.0.0", Record{}.Version())
	assert.Equal(t, "3.14.159", Record{VersionMajor: 3, VersionMinor: 14, VersionBuild: 159}.Version())
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope", "record.yaml"))

	r, err := s.Load()

	require.NoError(t, err)
	assert.Equal(t, Record{}, r)
}

func TestStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "record.yaml")
	s := New(path)

	require.NoError(t, s.Save(Record{VersionMajor: 1, VersionMinor: 4, VersionBuild: 7}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "version_major: 1\nversion_minor: 4\nversion_build: 7\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not be left behind")

	r, err := New(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "1.4.7", r.Version())
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version_major: [oops"), 0o600))

	_, err := New(path).Load()

	assert.ErrorContains(t, err, "failed to parse")
}

func TestStore_Update(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "record.yaml"))
	require.NoError(t, s.Save(Record{VersionMajor: 2}))

	r, err := s.Update(func(r *Record) error {
		r.VersionBuild++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", r.Version())

	boom := errors.New("boom")
	_, err = s.Update(func(r *Record) error {
		r.VersionMajor = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "2.0.1", loaded.Version())
}

func TestRecord_SetVersion(t *testing.T) {
	var r Record
	r.SetVersion(Record{VersionMajor: 5, VersionMinor: 6, VersionBuild: 7})
	assert.Equal(t, "5.6.7", r.Version())
}
