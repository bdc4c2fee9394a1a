// Package backendtest is an in-memory loans REST API for tests. It issues a
// session cookie from POST /jwt and answers 401 on every other route when
// the cookie is missing.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/FACorreiaa/go-loanhub/internal/app/models"
)

const CookieName = "token"

type Server struct {
	*httptest.Server

	mu           sync.Mutex
	users        map[string]models.UserRecord
	loans        []models.LoanOffer
	applications []models.LoanApplication
	payments     []models.Payment
	stats        map[string]models.Stats
	hits         map[string]int
	failures     map[string][]int
	holds        map[string]chan struct{}
}

func NewServer() *Server {
	s := &Server{
		users:    make(map[string]models.UserRecord),
		stats:    make(map[string]models.Stats),
		hits:     make(map[string]int),
		failures: make(map[string][]int),
		holds:    make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /jwt", s.handleJWT)
	mux.HandleFunc("POST /logout", s.handleLogout)
	mux.HandleFunc("GET /users/{email}", s.authed(s.handleUserRole))
	mux.HandleFunc("GET /users", s.authed(s.handleListUsers))
	mux.HandleFunc("POST /users", s.authed(s.handleUpsertUser))
	mux.HandleFunc("PATCH /users/admin/{id}", s.authed(s.handleAdminUpdate))
	mux.HandleFunc("GET /loans", s.authed(s.handleLoans))
	mux.HandleFunc("GET /applications", s.authed(s.handleApplications))
	mux.HandleFunc("GET /applications/{id}", s.authed(s.handleApplication))
	mux.HandleFunc("POST /payments", s.authed(s.handlePayment))
	for _, scope := range []string{"admin", "manager", "user"} {
		mux.HandleFunc("GET /"+scope+"/stats", s.authed(s.handleStats))
	}

	s.Server = httptest.NewServer(s.intercept(mux))
	return s
}

// Key is how routes are addressed by Hits, Fail and Hold, e.g. "POST /jwt"
// or "GET /users/a@x.com".
func Key(method, path string) string { return method + " " + path }

func (s *Server) Hits(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key]
}

// Fail queues status codes returned by the next requests to key.
func (s *Server) Fail(key string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = append(s.failures[key], statuses...)
}

// Hold blocks requests to key until release is called.
func (s *Server) Hold(key string) (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.holds[key] = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.holds[key] == ch {
				delete(s.holds, key)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Server) PutUser(u models.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = fmt.Sprintf("u%d", len(s.users)+1)
	}
	if u.Status == "" {
		u.Status = models.StatusActive
	}
	s.users[strings.ToLower(u.Email)] = u
}

func (s *Server) User(email string) (models.UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(email)]
	return u, ok
}

func (s *Server) PutLoans(loans ...models.LoanOffer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans = append(s.loans, loans...)
}

func (s *Server) PutApplications(apps ...models.LoanApplication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applications = append(s.applications, apps...)
}

func (s *Server) PutStats(scope string, st models.Stats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[scope] = st
}

func (s *Server) Payments() []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Payment(nil), s.payments...)
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := Key(r.Method, r.URL.Path)

		s.mu.Lock()
		s.hits[key]++
		hold := s.holds[key]
		var status int
		if queue := s.failures[key]; len(queue) > 0 {
			status, s.failures[key] = queue[0], queue[1:]
		}
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(CookieName); err != nil || c.Value == "" {
			http.Error(w, "unauthorized access", http.StatusUnauthorized)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleJWT(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		http.Error(w, "email required", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: body.Email, Path: "/", HttpOnly: true})
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: CookieName, Value: "", Path: "/", MaxAge: -1, Expires: time.Unix(0, 0)})
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleUserRole(w http.ResponseWriter, r *http.Request) {
	u, ok := s.User(r.PathValue("email"))
	if !ok {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, models.RoleRecord{Role: u.Role, Status: u.Status, SuspendReason: u.SuspendReason})
}

func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	users := make([]models.UserRecord, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()
	sort.Slice(users, func(i, j int) bool { return users[i].Email < users[j].Email })
	writeJSON(w, users)
}

// handleUpsertUser keeps the role and status of an existing user.
func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var u models.UserRecord
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil || u.Email == "" {
		http.Error(w, "invalid user", http.StatusBadRequest)
		return
	}
	if existing, ok := s.User(u.Email); ok {
		u.ID, u.Role, u.Status, u.SuspendReason = existing.ID, existing.Role, existing.Status, existing.SuspendReason
	}
	s.PutUser(u)
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleAdminUpdate(w http.ResponseWriter, r *http.Request) {
	var upd models.AdminUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	id := r.PathValue("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	for email, u := range s.users {
		if u.ID != id {
			continue
		}
		if upd.Role != "" {
			u.Role = upd.Role
		}
		if upd.Status != "" {
			u.Status = upd.Status
			u.SuspendReason = upd.SuspendReason
		}
		s.users[email] = u
		writeJSON(w, map[string]bool{"success": true})
		return
	}
	http.Error(w, "user not found", http.StatusNotFound)
}

func (s *Server) handleLoans(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, append([]models.LoanOffer{}, s.loans...))
}

func (s *Server) handleApplications(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	email := r.URL.Query().Get("email")

	s.mu.Lock()
	defer s.mu.Unlock()
	apps := []models.LoanApplication{}
	for _, a := range s.applications {
		if status != "" && string(a.Status) != status {
			continue
		}
		if email != "" && !strings.EqualFold(a.BorrowerEmail, email) {
			continue
		}
		apps = append(apps, a)
	}
	writeJSON(w, apps)
}

func (s *Server) handleApplication(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.applications {
		if a.ID == id {
			writeJSON(w, a)
			return
		}
	}
	http.Error(w, "application not found", http.StatusNotFound)
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var p models.Payment
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payment", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, p)
	for i, a := range s.applications {
		if a.ID == p.ApplicationID {
			s.applications[i].FeeStatus = models.FeePaid
		}
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scope := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/stats")
	st, ok := s.stats[scope]
	if !ok {
		st = models.Stats{}
	}
	writeJSON(w, st)
}
