package ports

import "errors"

// Exchange-side failure classes. Adapters map wire responses onto these so
// the risk layer can react without knowing transport details.
var (
	// ErrBlocked is an anti-bot / edge-block response (e.g. HTTP 403 with
	// the known markers). Submissions must pause for a cooldown.
	ErrBlocked = errors.New("blocked by exchange")

	// ErrAuthFailed is an authentication failure (HTTP 401). Submissions
	// pause and the system drops to detect-only mode.
	ErrAuthFailed = errors.New("authentication failed")
)
