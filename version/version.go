package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at build time with:
// go build -ldflags "-X github.com/etudelab/scoresync/version.Version=$(git describe --dirty)"
var Version string

// Revision is the short VCS revision the binary was built from, with a
// "-dirty" suffix for modified trees, or "" if unknown.
var Revision = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	revision, dirty := "", false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if revision != "" && dirty {
		revision += "-dirty"
	}
	return revision
}()

// Short is Version if set, then the module version for go install builds,
// then Revision.
var Short = func() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	if Revision != "" {
		return Revision
	}
	return "dev"
}()

// String describes the build for the -version flag.
func String() string {
	return fmt.Sprintf("scoresync %s (%s, %s/%s)", Short, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
