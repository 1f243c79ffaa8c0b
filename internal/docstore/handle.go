package docstore

import "strings"

// maxHandleLength caps generated handles; the remote system rejects longer ones.
const maxHandleLength = 64

// Handle derives a deterministic, human-legible unique key from domain
// identifiers: parts are joined with "-", lower-cased, runs of
// non-alphanumerics collapse to a single "-", and the result is truncated.
// The same logical entity always yields the same handle, which is what makes
// lookup-before-create idempotent.
func Handle(parts ...string) string {
	joined := strings.ToLower(strings.Join(parts, "-"))

	var b strings.Builder
	b.Grow(len(joined))
	lastDash := true // suppress a leading dash
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	handle := strings.TrimRight(b.String(), "-")
	if len(handle) > maxHandleLength {
		handle = strings.TrimRight(handle[:maxHandleLength], "-")
	}
	return handle
}
