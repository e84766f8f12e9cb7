package version

import "runtime/debug"

var (
	// Version is stamped with -ldflags "-X .../version.Version=v1.2.3".
	// When unset it falls back to the module version recorded by go install.
	Version = "dev"

	// Commit is the VCS revision the binary was built from, if known.
	Commit = ""
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	if Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
	if Commit != "" {
		return
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			Commit = setting.Value
			if len(Commit) > 12 {
				Commit = Commit[:12]
			}
			return
		}
	}
}
