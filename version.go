package sitesync

// Version is the current version of the sitesync library.
const Version = "v0.1.0"

// VersionInfo provides version information.
type VersionInfo struct {
	Version   string
	GoVersion string
}

// GetVersionInfo returns the current version information.
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version: Version,
	}
}
