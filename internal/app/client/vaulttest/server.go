// Package vaulttest содержит in-process реализацию Passwords API для тестов.
package vaulttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"ncpass/internal/domain/vault"
)

const (
	LoginName   = "alice"
	AppPassword = "app-password-123"

	apiPath = "/index.php/apps/passwords/api/1.0"
)

// Server - фейковый сервер Nextcloud с приложением Passwords
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	passwords map[string]vault.Password
	folders   map[string]vault.Folder
	tags      map[string]vault.Tag
	failing   map[string]bool
	hits      map[string]int

	// ApproveOnPoll - номер попытки опроса, на которой вход подтверждается (0 - никогда)
	ApproveOnPoll int
	pollCount     int
	revoked       bool
	generated     string
}

func NewServer() *Server {
	s := &Server{
		passwords: make(map[string]vault.Password),
		folders:   make(map[string]vault.Folder),
		tags:      make(map[string]vault.Tag),
		failing:   make(map[string]bool),
		hits:      make(map[string]int),
		generated: "Generated-Passw0rd!",
	}
	s.Server = httptest.NewServer(s.routes())
	return s
}

// Credentials возвращает данные для входа на этот сервер
func (s *Server) Credentials() vault.Credentials {
	return vault.Credentials{Server: s.URL, LoginName: LoginName, AppPassword: AppPassword}
}

// Fail заставляет маршрут (например, "GET /password/list") отвечать 500
func (s *Server) Fail(route string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[route] = fail
}

// Hits возвращает число обращений к маршруту
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

func (s *Server) PollCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pollCount
}

func (s *Server) Revoked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked
}

func (s *Server) SetGenerated(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generated = password
}

// SeedPassword добавляет запись напрямую, минуя API
func (s *Server) SeedPassword(p vault.Password) vault.Password {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Folder == "" {
		p.Folder = vault.BaseFolderID
	}
	p.Status = strength(p.Password)
	s.passwords[p.ID] = p
	return p
}

func (s *Server) SeedFolder(f vault.Folder) vault.Folder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.folders[f.ID] = f
	return f
}

func (s *Server) SeedTag(t vault.Tag) vault.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.tags[t.ID] = t
	return t
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countAndFail)

	r.Post("/index.php/login/v2", s.startLogin)
	r.Post("/index.php/login/v2/poll", s.pollLogin)

	r.Route(apiPath, func(r chi.Router) {
		r.Use(s.basicAuth)

		r.Get("/password/list", s.listPasswords)
		r.Post("/password/show", s.showPassword)
		r.Post("/password/create", s.savePassword)
		r.Patch("/password/update", s.savePassword)
		r.Delete("/password/delete", s.deletePassword)

		r.Get("/folder/list", s.listFolders)
		r.Post("/folder/show", s.showFolder)
		r.Post("/folder/create", s.saveFolder)
		r.Patch("/folder/update", s.saveFolder)
		r.Delete("/folder/delete", s.deleteFolder)

		r.Get("/tag/list", s.listTags)
		r.Post("/tag/show", s.showTag)
		r.Post("/tag/create", s.saveTag)
		r.Patch("/tag/update", s.saveTag)
		r.Delete("/tag/delete", s.deleteTag)

		r.Get("/service/password", s.generatePassword)
		r.Get("/service/favicon/{host}/{size}", s.favicon)
	})

	r.With(s.basicAuth).Delete("/ocs/v2.php/core/apppassword", s.revoke)

	return r
}

func routeKey(r *http.Request) string {
	path := r.URL.Path
	if len(path) > len(apiPath) && path[:len(apiPath)] == apiPath {
		path = path[len(apiPath):]
	}
	return r.Method + " " + path
}

func (s *Server) countAndFail(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := routeKey(r)

		s.mu.Lock()
		s.hits[key]++
		fail := s.failing[key]
		s.mu.Unlock()

		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "injected failure"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()

		s.mu.Lock()
		revoked := s.revoked
		s.mu.Unlock()

		if !ok || user != LoginName || pass != AppPassword || revoked {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, map[string]string{"message": "not found"})
}

func (s *Server) mutated(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusOK, vault.MutationResponse{ID: id, Revision: uuid.NewString()})
}

// strength - упрощенная оценка надежности, которую считает сервер
func strength(secret string) vault.Status {
	switch {
	case len(secret) < 8:
		return vault.StatusBad
	case len(secret) < 12:
		return vault.StatusWeak
	}
	return vault.StatusGood
}

// ==================== Login flow ====================

func (s *Server) startLogin(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"poll": map[string]string{
			"token":    "poll-token",
			"endpoint": s.URL + "/index.php/login/v2/poll",
		},
		"login": s.URL + "/index.php/login/v2/flow/approve",
	})
}

func (s *Server) pollLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("token") != "poll-token" {
		notFound(w)
		return
	}

	s.mu.Lock()
	s.pollCount++
	approved := s.ApproveOnPoll > 0 && s.pollCount >= s.ApproveOnPoll
	s.mu.Unlock()

	if !approved {
		writeJSON(w, http.StatusNotFound, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.Credentials())
}

func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("OCS-APIREQUEST") != "true" {
		writeJSON(w, http.StatusPreconditionFailed, map[string]string{"message": "CSRF check failed"})
		return
	}

	s.mu.Lock()
	s.revoked = true
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{"ocs": map[string]interface{}{"data": []string{}}})
}

// ==================== Passwords ====================

func (s *Server) listPasswords(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]vault.Password, 0, len(s.passwords))
	for _, p := range s.passwords {
		list = append(list, p)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) showPassword(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	s.mu.Lock()
	p, ok := s.passwords[r.PostForm.Get("id")]
	s.mu.Unlock()

	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) savePassword(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	form := r.PostForm

	var fields []vault.CustomField
	if raw := form.Get("customFields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid customFields"})
			return
		}
	}
	if form.Get("hash") != vault.SecretHash(form.Get("password")) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "hash mismatch"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	p := vault.Password{ID: form.Get("id"), Created: now}
	if r.Method == http.MethodPatch {
		old, ok := s.passwords[p.ID]
		if !ok {
			notFound(w)
			return
		}
		p.Created = old.Created
		p.Shared = old.Shared
	} else {
		p.ID = uuid.NewString()
	}

	p.Label = form.Get("label")
	p.Username = form.Get("username")
	p.Password = form.Get("password")
	p.Hash = form.Get("hash")
	p.URL = form.Get("url")
	p.Notes = form.Get("notes")
	p.Folder = form.Get("folder")
	p.CustomFields = fields
	p.Favorite, _ = strconv.ParseBool(form.Get("favorite"))
	p.Status = strength(p.Password)
	p.Edited = now
	p.Tags = nil
	for _, id := range form["tags[]"] {
		if t, ok := s.tags[id]; ok {
			p.Tags = append(p.Tags, t)
		}
	}

	s.passwords[p.ID] = p
	s.mutated(w, p.ID)
}

func (s *Server) deletePassword(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.passwords[id]; !ok {
		notFound(w)
		return
	}
	delete(s.passwords, id)
	s.mutated(w, id)
}

// ==================== Folders ====================

func (s *Server) listFolders(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Сервер включает базовую папку в список
	list := []vault.Folder{{ID: vault.BaseFolderID, Label: "Home", Parent: vault.BaseFolderID}}
	for _, f := range s.folders {
		list = append(list, f)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) showFolder(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	s.mu.Lock()
	f, ok := s.folders[r.PostForm.Get("id")]
	s.mu.Unlock()

	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) saveFolder(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	form := r.PostForm

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	f := vault.Folder{ID: form.Get("id"), Created: now}
	if r.Method == http.MethodPatch {
		old, ok := s.folders[f.ID]
		if !ok {
			notFound(w)
			return
		}
		f.Created = old.Created
	} else {
		f.ID = uuid.NewString()
	}

	f.Label = form.Get("label")
	f.Parent = form.Get("parent")
	f.Favorite, _ = strconv.ParseBool(form.Get("favorite"))
	f.Edited = now

	s.folders[f.ID] = f
	s.mutated(w, f.ID)
}

func (s *Server) deleteFolder(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.folders[id]; !ok {
		notFound(w)
		return
	}
	delete(s.folders, id)
	s.mutated(w, id)
}

// ==================== Tags ====================

func (s *Server) listTags(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]vault.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		list = append(list, t)
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) showTag(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	s.mu.Lock()
	t, ok := s.tags[r.PostForm.Get("id")]
	s.mu.Unlock()

	if !ok {
		notFound(w)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) saveTag(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	form := r.PostForm

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Unix()
	t := vault.Tag{ID: form.Get("id"), Created: now}
	if r.Method == http.MethodPatch {
		old, ok := s.tags[t.ID]
		if !ok {
			notFound(w)
			return
		}
		t.Created = old.Created
	} else {
		t.ID = uuid.NewString()
	}

	t.Label = form.Get("label")
	t.Color = form.Get("color")
	t.Favorite, _ = strconv.ParseBool(form.Get("favorite"))
	t.Edited = now

	s.tags[t.ID] = t
	s.mutated(w, t.ID)
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tags[id]; !ok {
		notFound(w)
		return
	}
	delete(s.tags, id)
	s.mutated(w, id)
}

// ==================== Services ====================

func (s *Server) generatePassword(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	generated := s.generated
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, vault.GeneratedPassword{
		Password: generated,
		Words:    []string{"generated"},
		Strength: 1,
	})
}

// favicon отдает имя хоста в качестве "картинки"
func (s *Server) favicon(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("icon:" + chi.URLParam(r, "host")))
}
