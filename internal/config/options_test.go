package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePreserve(t *testing.T) {
	tests := []struct {
		input string
		want  Preserve
	}{
		{"mode", PreserveMode},
		{"mode,ownership", PreserveMode | PreserveOwnership},
		{"timestamps, links", PreserveTimestamps | PreserveLinks},
		{"all", PreserveAll},
		{"xattr,context", PreserveXattr},
		{"", PreserveNone},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePreserve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParsePreserve("mode,colour")
	assert.Error(t, err)
}

func TestPreserveString(t *testing.T) {
	assert.Equal(t, "none", PreserveNone.String())
	assert.Equal(t, "mode,ownership,timestamps", PreserveDefault.String())
	assert.True(t, PreserveArchive.Has(PreserveXattr))
	assert.False(t, PreserveArchive.Has(PreserveACL))
	assert.False(t, PreserveAll.Has(PreserveNone))
}

func TestDereferenceFollow(t *testing.T) {
	assert.True(t, DerefCommandLine.Follow(true))
	assert.False(t, DerefCommandLine.Follow(false))
	assert.True(t, DerefAlways.Follow(false))
	assert.False(t, DerefNever.Follow(true))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("ALWAYS")
	require.NoError(t, err)
	assert.Equal(t, Always, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Auto, m)

	_, err = ParseMode("maybe")
	assert.Error(t, err)
}

func TestParseUpdate(t *testing.T) {
	for in, want := range map[string]Update{
		"":          UpdateOlder,
		"older":     UpdateOlder,
		"all":       UpdateAll,
		"none":      UpdateNone,
		"none-fail": UpdateNoneFail,
	} {
		got, err := ParseUpdate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseUpdate("newer")
	assert.Error(t, err)
}

func TestParseBackupControl(t *testing.T) {
	assert.Equal(t, BackupNone, ParseBackupControl("off"))
	assert.Equal(t, BackupNumbered, ParseBackupControl("t"))
	assert.Equal(t, BackupSimple, ParseBackupControl("never"))
	assert.Equal(t, BackupExisting, ParseBackupControl("nil"))
	assert.Equal(t, BackupExisting, ParseBackupControl(""))
}

func TestOptionsSimple(t *testing.T) {
	assert.True(t, Options{}.Simple())
	assert.False(t, Options{NoClobber: true}.Simple())
	assert.False(t, Options{Update: UpdateOlder}.Simple())
	assert.False(t, Options{Backup: BackupNumbered}.Simple())
	assert.False(t, Options{Dereference: DerefAlways}.Simple())
	assert.True(t, Options{Dereference: DerefNever, Force: true}.Simple())
}

func TestOptionsFails(t *testing.T) {
	o := Options{Required: PreserveXattr}
	assert.True(t, o.Fails(PreserveMode))
	assert.True(t, o.Fails(PreserveOwnership))
	assert.True(t, o.Fails(PreserveXattr))
	assert.False(t, o.Fails(PreserveACL))

	o.AttrPolicy = PolicyStrict
	assert.True(t, o.Fails(PreserveACL))

	o.AttrPolicy = PolicyLenient
	assert.False(t, o.Fails(PreserveXattr))
	assert.True(t, o.Fails(PreserveMode))
}
