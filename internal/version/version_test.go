package version

import (
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func saveVars(t *testing.T) {
	v, r, d := Version, Revision, BuildDate
	t.Cleanup(func() { Version, Revision, BuildDate = v, r, d })
}

func TestInfoString(t *testing.T) {
	info := Get()
	assert.Equal(t, AppName, info.App)
	assert.Contains(t, info.Platform, "/")

	s := info.String()
	assert.True(t, strings.HasPrefix(s, AppName+" "+Version+" ("))
	assert.Contains(t, s, info.GoVersion)
}

func TestFillFromBuildInfo(t *testing.T) {
	saveVars(t)
	Version, Revision, BuildDate = devVersion, "HEAD", ""

	fillFromBuildInfo(&debug.BuildInfo{
		Main: debug.Module{Version: "v2.3.4"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "cafe1234"},
			{Key: "vcs.modified", Value: "true"},
			{Key: "vcs.time", Value: "2024-06-01T10:00:00Z"},
		},
	})

	assert.Equal(t, "2.3.4", Version)
	assert.Equal(t, "cafe1234-dirty", Revision)
	assert.Equal(t, "2024-06-01T10:00:00Z", BuildDate)
}

func TestFillFromBuildInfoKeepsLinkerValues(t *testing.T) {
	saveVars(t)
	Version, Revision, BuildDate = "1.0.0", "beef", "yesterday"

	fillFromBuildInfo(&debug.BuildInfo{
		Main:     debug.Module{Version: "v2.3.4"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "cafe"}},
	})

	assert.Equal(t, "1.0.0", Version)
	assert.Equal(t, "beef", Revision)
	assert.Equal(t, "yesterday", BuildDate)
}

func TestFillFromBuildInfoDevel(t *testing.T) {
	saveVars(t)
	Version = devVersion

	fillFromBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, devVersion, Version)

	fillFromBuildInfo(nil)
	assert.Equal(t, devVersion, Version)
}
