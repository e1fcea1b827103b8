package enum

import "strings"

// Platform is the upstream price source the feed connects to.
type Platform uint8

const (
	_platform_beg Platform = iota
	PlatformBinance
	PlatformSimulated
	_platform_end
)

func (p Platform) IsAvailable() bool {
	return p > _platform_beg && p < _platform_end
}

func (p Platform) String() string {
	switch p {
	case PlatformBinance:
		return "binance"
	case PlatformSimulated:
		return "simulated"
	default:
		return "unknown"
	}
}

// ParsePlatform returns the platform named s, or an unavailable value.
func ParsePlatform(s string) Platform {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "binance":
		return PlatformBinance
	case "simulated", "simulator", "sim":
		return PlatformSimulated
	default:
		return _platform_beg
	}
}
