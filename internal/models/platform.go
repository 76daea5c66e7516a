package models

// Canonical platform identifiers. Storage, lookups and publishers all use
// these values; nothing else may spell a platform name.
const (
	PlatformLinkedin = "LINKEDIN"
	PlatformX        = "X"
)

var supportedPlatforms = map[string]struct{}{
	PlatformLinkedin: {},
	PlatformX:        {},
}

func IsSupportedPlatform(platform string) bool {
	_, ok := supportedPlatforms[platform]
	return ok
}
