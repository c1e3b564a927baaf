package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const devVersion = "0.1.0-dev"

// Set at link time with -X. Anything left unset is filled from the
// binary's embedded build info.
var (
	AppName   = "VaultSync"
	Version   = devVersion
	Revision  = "HEAD"
	BuildDate = ""
)

// Info describes the running binary
type Info struct {
	App       string `json:"app"`
	Version   string `json:"version"`
	Revision  string `json:"revision"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func Get() Info {
	return Info{
		App:       AppName,
		Version:   Version,
		Revision:  Revision,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// String renders `VaultSync 0.1.0 (5e23a4; go1.23.6; linux/amd64; <date>)`
func (i Info) String() string {
	return fmt.Sprintf("%s %s (%s; %s; %s; %s)", i.App, i.Version, i.Revision, i.GoVersion, i.Platform, i.BuildDate)
}

func fillFromBuildInfo(bi *debug.BuildInfo) {
	if bi == nil {
		return
	}

	vcs := make(map[string]string, len(bi.Settings))
	for _, s := range bi.Settings {
		if strings.HasPrefix(s.Key, "vcs.") {
			vcs[strings.TrimPrefix(s.Key, "vcs.")] = s.Value
		}
	}

	if Version == "" || Version == devVersion {
		if v := bi.Main.Version; v != "" && v != "(devel)" {
			Version = strings.TrimPrefix(v, "v")
		}
	}
	if Revision == "" || Revision == "HEAD" {
		if rev := vcs["revision"]; rev != "" {
			if vcs["modified"] == "true" {
				rev += "-dirty"
			}
			Revision = rev
		}
	}
	if BuildDate == "" {
		BuildDate = vcs["time"]
	}
}

func init() {
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuildInfo(bi)
	}
	if BuildDate == "" {
		BuildDate = time.Now().UTC().Format(time.RFC3339)
	}
}
