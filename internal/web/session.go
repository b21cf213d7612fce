package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/vizagent/internal/analysis"
	"github.com/KaramelBytes/vizagent/internal/render"
)

const cookieName = "vizagent_session"

// FlashLevel styles a one-shot message.
type FlashLevel string

const (
	FlashInfo    FlashLevel = "info"
	FlashSuccess FlashLevel = "success"
	FlashWarn    FlashLevel = "warning"
	FlashError   FlashLevel = "error"
)

// Flash is a message shown once on the next page render.
type Flash struct {
	Level FlashLevel
	Text  string
}

// Dataset is the uploaded CSV as the sandbox will see it.
type Dataset struct {
	Name    string
	Data    []byte
	Profile *analysis.Profile
}

// Analysis is the last completed run, kept for display.
type Analysis struct {
	Question string
	Model    string
	Response string
	Code     string
	Progress []Flash
	Views    []render.View
	Attempts int
	Duration time.Duration
}

// Session holds one browser's state. Model is empty while a premium model is
// selected without a license. Fields are guarded by Lock/Unlock, except
// lastTouched which belongs to the Store.
type Session struct {
	mu sync.Mutex

	ID            string
	OpenRouterKey string
	E2BKey        string
	Model         string
	ModelLabel    string
	Premium       bool
	Dataset       *Dataset
	Last          *Analysis
	flashes       []Flash
	lastTouched   time.Time
}

func (s *Session) Lock() { s.mu.Lock() }

func (s *Session) Unlock() { s.mu.Unlock() }

// AddFlash queues a message; callers hold the lock.
func (s *Session) AddFlash(level FlashLevel, text string) {
	s.flashes = append(s.flashes, Flash{Level: level, Text: text})
}

// TakeFlashes drains queued messages; callers hold the lock.
func (s *Session) TakeFlashes() []Flash {
	out := s.flashes
	s.flashes = nil
	return out
}

// Store keeps sessions in memory, keyed by a uuid cookie.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	defaults func(*Session)
}

// NewStore returns an empty store. init seeds new sessions.
func NewStore(init func(*Session)) *Store {
	return &Store{sessions: map[string]*Session{}, defaults: init}
}

// Get returns the request's session, creating one and setting the cookie
// when the request has none or an unknown id.
func (st *Store) Get(w http.ResponseWriter, r *http.Request) *Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	if c, err := r.Cookie(cookieName); err == nil {
		if s, ok := st.sessions[c.Value]; ok {
			s.lastTouched = time.Now()
			return s
		}
	}
	s := &Session{ID: uuid.NewString(), lastTouched: time.Now()}
	if st.defaults != nil {
		st.defaults(s)
	}
	st.sessions[s.ID] = s
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    s.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return s
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (st *Store) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.lastTouched.Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
