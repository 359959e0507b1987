package util

import "regexp"

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.:\-]{1,128}$`)

// IsSafeIdentifier reports whether s can be used as a session, provider or account id.
func IsSafeIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}
