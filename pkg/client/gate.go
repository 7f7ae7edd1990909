package client

import "net/url"

// State is the coarse navigation state a session resolves to.
type State int

const (
	StateAnonymous State = iota
	StateUnverified
	StateVerified
)

// StateOf maps a session (possibly nil) to its navigation state.
func StateOf(session *Session) State {
	switch {
	case session == nil:
		return StateAnonymous
	case session.EmailVerified:
		return StateVerified
	default:
		return StateUnverified
	}
}

// Gate decides whether a navigation target is reachable in the current state.
// Unverified sessions are pinned to the pending-verification view except for
// an allow-list; verified sessions are bounced off that view back to where
// they came from.
type Gate struct {
	loginPath   string
	pendingPath string
	landingPath string
	allow       map[string]struct{}
}

// NewGate builds a gate. The allow-list holds paths an unverified session may
// still visit; the login and pending views are always reachable.
func NewGate(loginPath, pendingPath, landingPath string, allowed []string) *Gate {
	allow := make(map[string]struct{}, len(allowed))
	for _, path := range allowed {
		allow[path] = struct{}{}
	}
	return &Gate{
		loginPath:   loginPath,
		pendingPath: pendingPath,
		landingPath: landingPath,
		allow:       allow,
	}
}

// Decision is the outcome of routing one navigation.
type Decision struct {
	Allow      bool
	RedirectTo string
}

// Route evaluates a navigation to target in the given state. Redirects away
// from a page carry the original URL in the r query parameter so the user
// can be sent back once the blocking condition clears.
func (g *Gate) Route(state State, target string) Decision {
	parsed, err := url.Parse(target)
	if err != nil {
		return Decision{RedirectTo: g.landingPath}
	}
	path := parsed.Path

	switch state {
	case StateAnonymous:
		if path == g.loginPath || g.allowed(path) {
			return Decision{Allow: true}
		}
		return Decision{RedirectTo: withReturn(g.loginPath, target)}
	case StateUnverified:
		if path == g.pendingPath || path == g.loginPath || g.allowed(path) {
			return Decision{Allow: true}
		}
		return Decision{RedirectTo: withReturn(g.pendingPath, target)}
	default:
		if path == g.pendingPath {
			if back := parsed.Query().Get("r"); back != "" {
				return Decision{RedirectTo: back}
			}
			return Decision{RedirectTo: g.landingPath}
		}
		return Decision{Allow: true}
	}
}

func (g *Gate) allowed(path string) bool {
	_, ok := g.allow[path]
	return ok
}

func withReturn(base, original string) string {
	return base + "?r=" + url.QueryEscape(original)
}
