package webhook

import "crypto/subtle"

// VerifySubscription answers the provider's GET handshake. It returns the
// challenge and true only when mode is "subscribe" and token equals expected.
func VerifySubscription(mode, token, challenge, expected string) (string, bool) {
	if mode != "subscribe" || expected == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", false
	}
	return challenge, true
}
