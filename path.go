package dbusvalue

import "strings"

// ObjectPath is a DBus OBJECT_PATH.
//
// ObjectPath is a distinct type from [String] so that paths cannot be
// confused with ordinary strings. It does not validate the DBus
// object path syntax, see [ObjectPath.Valid].
type ObjectPath string

func (ObjectPath) SignatureDBus() Signature { return "o" }

func (p ObjectPath) String() string { return string(p) }

// Valid reports whether p is a syntactically valid DBus object path.
func (p ObjectPath) Valid() bool {
	s := string(p)
	if s == "/" {
		return true
	}
	if !strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return false
	}
	for _, elem := range strings.Split(s[1:], "/") {
		if elem == "" {
			return false
		}
		for _, c := range elem {
			switch {
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			default:
				return false
			}
		}
	}
	return true
}
