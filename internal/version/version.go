package version

// Set via -ldflags "-X github.com/neox5/bbexporter/internal/version.version=..."
var (
	version = "dev"
	commit  = ""
)

// String returns the build version, with the commit when known.
func String() string {
	if commit == "" {
		return version
	}
	return version + " (" + commit + ")"
}
