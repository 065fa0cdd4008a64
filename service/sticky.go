package service

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// StickyConfig configures cookie-based session affinity for a
// load-balanced service.
type StickyConfig struct {
	CookieName string
	Path       string
	Secure     bool
	HTTPOnly   bool
	TTL        time.Duration
}

// DefaultStickyConfig matches spec.md's sticky-session data model: a
// 1-hour session TTL, path "/", HttpOnly set.
func DefaultStickyConfig(cookieName string) StickyConfig {
	return StickyConfig{
		CookieName: cookieName,
		Path:       "/",
		HTTPOnly:   true,
		TTL:        time.Hour,
	}
}

type stickyEntry struct {
	serverIndex int
	lastAccess  time.Time
}

// StickySessions maps a session id (carried in a cookie) to the backend
// server index it was last routed to, evicting entries that have been idle
// longer than the configured TTL.
type StickySessions struct {
	cfg     StickyConfig
	mu      sync.Mutex
	entries map[string]*stickyEntry
}

func NewStickySessions(cfg StickyConfig) *StickySessions {
	return &StickySessions{cfg: cfg, entries: make(map[string]*stickyEntry)}
}

// Lookup reads the sticky cookie off the request and returns the server
// index it was bound to, if any and not expired.
func (s *StickySessions) Lookup(r *http.Request) (int, bool) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[cookie.Value]
	if !ok {
		return 0, false
	}
	if s.cfg.TTL > 0 && time.Since(e.lastAccess) > s.cfg.TTL {
		delete(s.entries, cookie.Value)
		return 0, false
	}
	e.lastAccess = time.Now()
	return e.serverIndex, true
}

// Bind creates (or refreshes) a sticky-session cookie pinning the caller to
// serverIndex, setting it on w.
func (s *StickySessions) Bind(w http.ResponseWriter, r *http.Request, serverIndex int) {
	sessionID := ""
	if cookie, err := r.Cookie(s.cfg.CookieName); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.entries[sessionID] = &stickyEntry{serverIndex: serverIndex, lastAccess: time.Now()}
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    sessionID,
		Path:     s.cfg.Path,
		Secure:   s.cfg.Secure,
		HttpOnly: s.cfg.HTTPOnly,
		MaxAge:   int(s.cfg.TTL.Seconds()),
	})
}

// Evict removes every sticky entry bound to serverIndex, called when a
// backend server is permanently removed from the pool.
func (s *StickySessions) Evict(serverIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if e.serverIndex == serverIndex {
			delete(s.entries, id)
		}
	}
}

// Len reports the number of tracked sessions, for tests and diagnostics.
func (s *StickySessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
