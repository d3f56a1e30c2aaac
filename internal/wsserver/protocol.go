// Package wsserver is the control-plane WebSocket transport: it accepts
// connections at /taurus, tracks per-client auth state, and hands text
// frames to a Dispatcher . The verb grammar itself is
// parsed and routed by internal/control; this package only owns the
// connection lifecycle, the constant-time password gate, and outbound
// fan-out (broadcast + per-client reply) for a multi-client
// fleet-operator Hub.
package wsserver

// CheckPassword reports whether candidate matches want, comparing every
// byte and OR-accumulating the differences rather than returning on the
// first mismatch . The length
// check happens first, same as the source; only the per-byte loop is
// branch-free.
func CheckPassword(candidate, want string) bool {
	if len(candidate) != len(want) {
		return false
	}
	var diff byte
	for i := 0; i < len(want); i++ {
		diff |= candidate[i] ^ want[i]
	}
	return diff == 0
}
