package webhook

import "crypto/subtle"

// SecretEqual reports whether a presented credential equals the configured
// one. The comparison takes the same time wherever the first difference is.
func SecretEqual(presented, configured string) bool {
	return subtle.ConstantTimeCompare([]byte(presented), []byte(configured)) == 1
}
