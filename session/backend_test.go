package session_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/users"
)

// fakeBackend issues "A<n>"/"R<n>" token pairs and accepts only the most
// recent pair of each user.
type fakeBackend struct {
	mu        sync.Mutex
	accounts  map[string]users.User // by id
	passwords map[string]string     // email to password
	access    map[string]string     // token to user id
	refresh   map[string]string     // token to user id
	google    map[string]interface{}
	seq       int

	refreshDelay time.Duration
	refreshCalls atomic.Int32
	profileCalls atomic.Int32
	googleCalls  atomic.Int32
}

func newFakeBackend(t *testing.T) (*fakeBackend, *httptest.Server) {
	b := &fakeBackend{
		accounts:  map[string]users.User{},
		passwords: map[string]string{},
		access:    map[string]string{},
		refresh:   map[string]string{},
		google:    map[string]interface{}{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", b.login)
	mux.HandleFunc("POST /auth/refreshToken", b.refreshToken)
	mux.HandleFunc("POST /auth/google", b.googleExchange)
	mux.HandleFunc("GET /auth/profile", b.profile)
	mux.HandleFunc("PATCH /auth/profile", b.patchProfile)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *fakeBackend) addUser(u users.User, password string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.accounts[u.ID] = u
	b.passwords[u.Email] = password
}

// issue returns a fresh pair for userID and revokes the previous one.
func (b *fakeBackend) issue(userID string) (string, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.issueLocked(userID)
}

func (b *fakeBackend) issueLocked(userID string) (string, string) {
	for tok, id := range b.access {
		if id == userID {
			delete(b.access, tok)
		}
	}
	for tok, id := range b.refresh {
		if id == userID {
			delete(b.refresh, tok)
		}
	}
	b.seq++
	access, refresh := fmt.Sprintf("A%d", b.seq), fmt.Sprintf("R%d", b.seq)
	b.access[access] = userID
	b.refresh[refresh] = userID
	return access, refresh
}

// expireAccess makes every issued access token stale.
func (b *fakeBackend) expireAccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.access = map[string]string{}
}

func (b *fakeBackend) login(w http.ResponseWriter, r *http.Request) {
	var body struct{ Authenticator, Pass string }
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	if body.Pass == "" || b.passwords[body.Authenticator] != body.Pass {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	for id, u := range b.accounts {
		if u.Email == body.Authenticator {
			access, refresh := b.issueLocked(id)
			writeJSON(w, map[string]string{"accessToken": access, "refreshToken": refresh})
			return
		}
	}
}

func (b *fakeBackend) refreshToken(w http.ResponseWriter, r *http.Request) {
	b.refreshCalls.Add(1)
	time.Sleep(b.refreshDelay)

	var body struct{ RefreshToken string }
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.refresh[body.RefreshToken]
	if !ok {
		http.Error(w, "invalid refresh token", http.StatusUnauthorized)
		return
	}
	access, refresh := b.issueLocked(userID)
	writeJSON(w, map[string]string{"accessToken": access, "refreshToken": refresh})
}

func (b *fakeBackend) googleExchange(w http.ResponseWriter, r *http.Request) {
	b.googleCalls.Add(1)
	var body struct{ AccessToken string }
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	resp, ok := b.google[body.AccessToken]
	b.mu.Unlock()
	if !ok {
		http.Error(w, "unknown provider token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, resp)
}

func (b *fakeBackend) authenticate(w http.ResponseWriter, r *http.Request) (users.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	defer b.mu.Unlock()
	userID, ok := b.access[token]
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return users.User{}, false
	}
	return b.accounts[userID], true
}

func (b *fakeBackend) profile(w http.ResponseWriter, r *http.Request) {
	b.profileCalls.Add(1)
	user, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	writeJSON(w, user)
}

func (b *fakeBackend) patchProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := b.authenticate(w, r)
	if !ok {
		return
	}
	var patch users.ProfilePatch
	_ = json.NewDecoder(r.Body).Decode(&patch)
	user = patch.Apply(user)

	b.mu.Lock()
	b.accounts[user.ID] = user
	b.mu.Unlock()
	writeJSON(w, user)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type navRecorder struct {
	mu   sync.Mutex
	navs []session.Navigation
}

func (n *navRecorder) navigate(nav session.Navigation) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.navs = append(n.navs, nav)
}

func (n *navRecorder) all() []session.Navigation {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]session.Navigation(nil), n.navs...)
}

func (n *navRecorder) last() session.Navigation {
	navs := n.all()
	if len(navs) == 0 {
		return session.Navigation{}
	}
	return navs[len(navs)-1]
}
