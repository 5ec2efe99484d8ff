package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mcordes92/da-quizly/internal/auth"
	"github.com/mcordes92/da-quizly/internal/database"
	"github.com/mcordes92/da-quizly/internal/middleware"
	"github.com/mcordes92/da-quizly/internal/models"
	"github.com/mcordes92/da-quizly/internal/quiz"
)

type fakeCreator struct {
	created *models.Quiz
	err     error
}

func (f *fakeCreator) CreateFromVideo(ctx context.Context, userID uint, url string) (*models.Quiz, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.created, nil
}

type testEnv struct {
	db      *gorm.DB
	issuer  auth.TokenIssuer
	creator *fakeCreator
	router  *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	issuer := auth.TokenIssuer{
		Key:        []byte("test-secret"),
		AccessTTL:  time.Minute,
		RefreshTTL: time.Hour,
	}
	creator := &fakeCreator{}
	h := New(db, issuer, creator, "")

	r := gin.New()
	api := r.Group("/api")
	{
		api.POST("/register/", h.RegisterHandler)
		api.POST("/login/", h.LoginHandler)
		api.POST("/token/refresh/", h.RefreshHandler)

		authorized := api.Group("/")
		authorized.Use(middleware.JWTMiddleware(issuer))
		{
			authorized.POST("/logout/", h.LogoutHandler)
			authorized.POST("/createQuiz/", h.CreateQuizHandler)
			authorized.GET("/quizzes/", h.ListQuizzesHandler)
			authorized.GET("/quizzes/:id/", h.GetQuizHandler)
			authorized.PATCH("/quizzes/:id/", h.UpdateQuizHandler)
			authorized.DELETE("/quizzes/:id/", h.DeleteQuizHandler)
		}
	}

	return &testEnv{db: db, issuer: issuer, creator: creator, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) seedUser(t *testing.T, username string) models.User {
	t.Helper()
	hash, err := auth.HashPassword("pass-" + username)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := models.User{Username: username, Email: username + "@example.com", PasswordHash: hash}
	if err := e.db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func (e *testEnv) accessCookie(t *testing.T, u models.User) *http.Cookie {
	t.Helper()
	token, err := e.issuer.IssueAccess(u.ID, u.Username)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	return &http.Cookie{Name: middleware.AccessCookie, Value: token}
}

func (e *testEnv) seedQuiz(t *testing.T, u models.User, title string, questions int) models.Quiz {
	t.Helper()
	q := models.Quiz{UserID: u.ID, Title: title, Description: "d", VideoURL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"}
	if err := e.db.Create(&q).Error; err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	for i := 0; i < questions; i++ {
		opts, _ := json.Marshal([]string{"A", "B", "C", "D"})
		question := models.Question{QuizID: q.ID, QuestionTitle: fmt.Sprintf("Q%d", i+1), QuestionOptions: opts, Answer: "A"}
		if err := e.db.Create(&question).Error; err != nil {
			t.Fatalf("seed question: %v", err)
		}
	}
	return q
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, ck := range cookies {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

func TestRegisterCreatesUser(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/register/",
		`{"username":"marie","email":"marie@example.com","password":"pw123456","confirmed_password":"pw123456"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var count int64
	e.db.Model(&models.User{}).Where("username = ?", "marie").Count(&count)
	if count != 1 {
		t.Errorf("user rows = %d, want 1", count)
	}
}

func TestRegisterPasswordMismatch(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/register/",
		`{"username":"marie","email":"marie@example.com","password":"pw123456","confirmed_password":"different"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var errs map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &errs); err != nil {
		t.Fatalf("body is not field errors: %v", err)
	}
	if len(errs["confirmed_password"]) == 0 {
		t.Errorf("expected confirmed_password error, got %v", errs)
	}
}

func TestRegisterDuplicateUsernameAndEmail(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "marie")

	w := e.do(t, http.MethodPost, "/api/register/",
		`{"username":"marie","email":"marie@example.com","password":"pw123456","confirmed_password":"pw123456"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var errs map[string][]string
	if err := json.Unmarshal(w.Body.Bytes(), &errs); err != nil {
		t.Fatalf("body is not field errors: %v", err)
	}
	if len(errs["username"]) == 0 || len(errs["email"]) == 0 {
		t.Errorf("expected username and email errors, got %v", errs)
	}
}

func TestLoginSetsBothCookies(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "marie")

	w := e.do(t, http.MethodPost, "/api/login/", `{"username":"marie","password":"pass-marie"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	cookies := w.Result().Cookies()
	access := cookieByName(cookies, "access_token")
	refresh := cookieByName(cookies, "refresh_token")
	if access == nil || access.Value == "" {
		t.Error("access_token cookie not set")
	}
	if refresh == nil || refresh.Value == "" {
		t.Error("refresh_token cookie not set")
	}
	if access != nil && !access.HttpOnly {
		t.Error("access_token cookie is not HTTP-only")
	}
	if refresh != nil && !refresh.HttpOnly {
		t.Error("refresh_token cookie is not HTTP-only")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	e.seedUser(t, "marie")

	w := e.do(t, http.MethodPost, "/api/login/", `{"username":"marie","password":"nope"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestRefreshIssuesNewAccessToken(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t, "marie")

	refresh, _ := e.issuer.IssueRefresh(u.ID, u.Username)
	w := e.do(t, http.MethodPost, "/api/token/refresh/", "",
		&http.Cookie{Name: "refresh_token", Value: refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if cookieByName(w.Result().Cookies(), "access_token") == nil {
		t.Error("refresh did not set a new access cookie")
	}
}

func TestRefreshRejectsMissingAndInvalidToken(t *testing.T) {
	e := newTestEnv(t)

	if w := e.do(t, http.MethodPost, "/api/token/refresh/", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("missing cookie: status = %d, want 401", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/token/refresh/", "",
		&http.Cookie{Name: "refresh_token", Value: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("garbage token: status = %d, want 401", w.Code)
	}
}

func TestLogoutBlacklistsRefreshToken(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t, "marie")

	refresh, _ := e.issuer.IssueRefresh(u.ID, u.Username)
	refreshCk := &http.Cookie{Name: "refresh_token", Value: refresh}

	// Token works before logout.
	if w := e.do(t, http.MethodPost, "/api/token/refresh/", "", refreshCk); w.Code != http.StatusOK {
		t.Fatalf("pre-logout refresh: status = %d", w.Code)
	}

	w := e.do(t, http.MethodPost, "/api/logout/", "", e.accessCookie(t, u), refreshCk)
	if w.Code != http.StatusOK {
		t.Fatalf("logout: status = %d, body %s", w.Code, w.Body.String())
	}

	// Reuse after logout is rejected.
	if w := e.do(t, http.MethodPost, "/api/token/refresh/", "", refreshCk); w.Code != http.StatusUnauthorized {
		t.Errorf("post-logout refresh: status = %d, want 401", w.Code)
	}

	var revoked int64
	e.db.Model(&models.RevokedToken{}).Count(&revoked)
	if revoked != 1 {
		t.Errorf("revoked rows = %d, want 1", revoked)
	}
}

func TestCreateQuizReturnsCreated(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t, "marie")
	seeded := e.seedQuiz(t, u, "Go Quiz", 10)
	e.db.Preload("Questions").First(&seeded, seeded.ID)
	e.creator.created = &seeded

	w := e.do(t, http.MethodPost, "/api/createQuiz/",
		`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, e.accessCookie(t, u))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var got models.Quiz
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Title != "Go Quiz" || len(got.Questions) != 10 {
		t.Errorf("got title %q with %d questions", got.Title, len(got.Questions))
	}
}

func TestCreateQuizRequiresURL(t *testing.T) {
	e := newTestEnv(t)
	u := e.seedUser(t, "marie")

	w := e.do(t, http.MethodPost, "/api/createQuiz/", `{}`, e.accessCookie(t, u))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateQuizPipelineErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid url", quiz.ErrInvalidURL, http.StatusBadRequest},
		{"no transcript", quiz.ErrNoTranscript, http.StatusBadRequest},
		{"download failure", &quiz.DownloadError{Err: fmt.Errorf("upstream 403")}, http.StatusBadGateway},
		{"transcription failure", &quiz.TranscriptionError{Err: fmt.Errorf("bad audio")}, http.StatusBadGateway},
		{"generation failure", &quiz.GenerationError{Err: fmt.Errorf("model down")}, http.StatusBadGateway},
		{"parse failure", &quiz.ParseError{Reason: "quiz must contain exactly 10 questions, got 8"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			u := e.seedUser(t, "marie")
			e.creator.err = tt.err

			w := e.do(t, http.MethodPost, "/api/createQuiz/",
				`{"url":"https://youtu.be/dQw4w9WgXcQ"}`, e.accessCookie(t, u))
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d, body %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestListQuizzesScopedToOwner(t *testing.T) {
	e := newTestEnv(t)
	alice := e.seedUser(t, "alice")
	bob := e.seedUser(t, "bob")
	e.seedQuiz(t, alice, "Alice Quiz", 2)
	e.seedQuiz(t, bob, "Bob Quiz", 2)

	w := e.do(t, http.MethodGet, "/api/quizzes/", "", e.accessCookie(t, alice))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var quizzes []models.Quiz
	if err := json.Unmarshal(w.Body.Bytes(), &quizzes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(quizzes) != 1 || quizzes[0].Title != "Alice Quiz" {
		t.Errorf("got %d quizzes, want just Alice's", len(quizzes))
	}
}

func TestGetQuizOwnership(t *testing.T) {
	e := newTestEnv(t)
	alice := e.seedUser(t, "alice")
	bob := e.seedUser(t, "bob")
	q := e.seedQuiz(t, alice, "Alice Quiz", 3)

	path := fmt.Sprintf("/api/quizzes/%d/", q.ID)

	w := e.do(t, http.MethodGet, path, "", e.accessCookie(t, alice))
	if w.Code != http.StatusOK {
		t.Fatalf("owner get: status = %d", w.Code)
	}
	var got models.Quiz
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Questions) != 3 {
		t.Errorf("nested questions = %d, want 3", len(got.Questions))
	}

	if w := e.do(t, http.MethodGet, path, "", e.accessCookie(t, bob)); w.Code != http.StatusForbidden {
		t.Errorf("other user get: status = %d, want 403", w.Code)
	}

	if w := e.do(t, http.MethodGet, "/api/quizzes/9999/", "", e.accessCookie(t, alice)); w.Code != http.StatusNotFound {
		t.Errorf("unknown id get: status = %d, want 404", w.Code)
	}
}

func TestUpdateQuiz(t *testing.T) {
	e := newTestEnv(t)
	alice := e.seedUser(t, "alice")
	bob := e.seedUser(t, "bob")
	q := e.seedQuiz(t, alice, "Old Title", 1)
	path := fmt.Sprintf("/api/quizzes/%d/", q.ID)

	w := e.do(t, http.MethodPatch, path, `{"title":"New Title"}`, e.accessCookie(t, alice))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var updated models.Quiz
	e.db.First(&updated, q.ID)
	if updated.Title != "New Title" {
		t.Errorf("title = %q after patch", updated.Title)
	}

	if w := e.do(t, http.MethodPatch, path, `{"title":"  "}`, e.accessCookie(t, alice)); w.Code != http.StatusBadRequest {
		t.Errorf("blank title: status = %d, want 400", w.Code)
	}

	if w := e.do(t, http.MethodPatch, path, `{"title":"Hijack"}`, e.accessCookie(t, bob)); w.Code != http.StatusForbidden {
		t.Errorf("other user patch: status = %d, want 403", w.Code)
	}
}

func TestDeleteQuizRemovesQuestions(t *testing.T) {
	e := newTestEnv(t)
	alice := e.seedUser(t, "alice")
	bob := e.seedUser(t, "bob")
	q := e.seedQuiz(t, alice, "Doomed", 10)
	path := fmt.Sprintf("/api/quizzes/%d/", q.ID)

	if w := e.do(t, http.MethodDelete, path, "", e.accessCookie(t, bob)); w.Code != http.StatusForbidden {
		t.Fatalf("other user delete: status = %d, want 403", w.Code)
	}

	w := e.do(t, http.MethodDelete, path, "", e.accessCookie(t, alice))
	if w.Code != http.StatusNoContent {
		t.Fatalf("owner delete: status = %d, body %s", w.Code, w.Body.String())
	}

	var quizzes, questions int64
	e.db.Model(&models.Quiz{}).Count(&quizzes)
	e.db.Model(&models.Question{}).Where("quiz_id = ?", q.ID).Count(&questions)
	if quizzes != 0 {
		t.Errorf("quiz rows = %d, want 0", quizzes)
	}
	if questions != 0 {
		t.Errorf("orphan question rows = %d, want 0", questions)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/api/createQuiz/"},
		{http.MethodGet, "/api/quizzes/"},
		{http.MethodGet, "/api/quizzes/1/"},
		{http.MethodPatch, "/api/quizzes/1/"},
		{http.MethodDelete, "/api/quizzes/1/"},
		{http.MethodPost, "/api/logout/"},
	}
	for _, p := range paths {
		if w := e.do(t, p.method, p.path, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without cookie: status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}
