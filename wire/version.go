package wire

import (
	"strings"

	"golang.org/x/mod/semver"
)

// ProtocolVersion is stamped on every message this build produces.
const ProtocolVersion = "0.1.0"

func canonical(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// ValidVersion reports whether v is a semantic version, with or without a leading "v".
func ValidVersion(v string) bool { return semver.IsValid(canonical(v)) }

// Compatible reports whether a peer speaking remote can exchange messages with
// a local implementation of local.
//
// Before 1.0.0 every minor release may break the wire, so major.minor must
// match; afterwards only the major version must.
func Compatible(local, remote string) bool {
	l, r := canonical(local), canonical(remote)
	if !semver.IsValid(l) || !semver.IsValid(r) {
		return false
	}
	if semver.Major(l) == "v0" {
		return semver.MajorMinor(l) == semver.MajorMinor(r)
	}
	return semver.Major(l) == semver.Major(r)
}
