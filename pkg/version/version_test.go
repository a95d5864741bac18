package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo_ReportsPlatform(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestGetInfo_LdflagsWin(t *testing.T) {
	// Given: values injected at link time
	oldV, oldC, oldD := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
	Version, Commit, Date = "v1.4.0", "abc1234", "2026-05-01T00:00:00Z"

	// Then: they are reported unchanged
	info := GetInfo()
	assert.Equal(t, "v1.4.0", info.Version)
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, "2026-05-01T00:00:00Z", info.Date)
	assert.Equal(t, "v1.4.0", Short())
	assert.True(t, strings.HasPrefix(String(), "ftsindex v1.4.0 (commit: abc1234"))
}

func TestGetInfo_IsJSONSerializable(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, decoded, key)
	}
}

func TestShortRev(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortRev("0123456789abcdef0123"))
	assert.Equal(t, "abc", shortRev("abc"))
}
