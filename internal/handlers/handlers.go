package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/api/idtoken"
	"gorm.io/gorm"

	"github.com/mcordes92/da-quizly/internal/auth"
	"github.com/mcordes92/da-quizly/internal/middleware"
	"github.com/mcordes92/da-quizly/internal/models"
	"github.com/mcordes92/da-quizly/internal/quiz"
)

const (
	accessCookie  = middleware.AccessCookie
	refreshCookie = "refresh_token"

	// The refresh cookie is scoped to /api so both the refresh and logout
	// endpoints receive it; the access cookie rides on every request.
	accessCookiePath  = "/"
	refreshCookiePath = "/api"
)

// QuizCreator runs the synthesis pipeline for a single video URL.
type QuizCreator interface {
	CreateFromVideo(ctx context.Context, userID uint, url string) (*models.Quiz, error)
}

type Handler struct {
	DB             *gorm.DB
	Issuer         auth.TokenIssuer
	Quizzes        QuizCreator
	GoogleClientID string
}

func New(db *gorm.DB, issuer auth.TokenIssuer, quizzes QuizCreator, googleClientID string) Handler {
	return Handler{DB: db, Issuer: issuer, Quizzes: quizzes, GoogleClientID: googleClientID}
}

type registerRequest struct {
	Username          string `json:"username"`
	Email             string `json:"email"`
	Password          string `json:"password"`
	ConfirmedPassword string `json:"confirmed_password"`
}

func (h *Handler) RegisterHandler(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	errs := map[string][]string{}
	if req.Username == "" {
		errs["username"] = append(errs["username"], "This field is required.")
	}
	if req.Email == "" {
		errs["email"] = append(errs["email"], "This field is required.")
	}
	if req.Password == "" {
		errs["password"] = append(errs["password"], "This field is required.")
	}
	if req.Password != "" && req.ConfirmedPassword != req.Password {
		errs["confirmed_password"] = append(errs["confirmed_password"], "Passwords do not match")
	}

	if len(errs) == 0 {
		var count int64
		h.DB.Model(&models.User{}).Where("username = ?", req.Username).Count(&count)
		if count > 0 {
			errs["username"] = append(errs["username"], "Username already exists")
		}
		h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count)
		if count > 0 {
			errs["email"] = append(errs["email"], "Email already exists")
		}
	}

	if len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errs)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not create user"})
		return
	}

	user := models.User{Username: req.Username, Email: req.Email, PasswordHash: hash}
	if err := h.DB.Create(&user).Error; err != nil {
		log.Printf("ERROR: could not create user %s: %v", req.Username, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not create user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"detail": "User created successfully!"})
}

func (h *Handler) LoginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username and password are required"})
		return
	}

	var user models.User
	if err := h.DB.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "No active account found with the given credentials"})
		return
	}

	if !h.issueSession(c, user) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detail": "Login successfully!",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

// GoogleAuthHandler verifies a Google ID token and signs the user in,
// creating the account on first sight.
func (h *Handler) GoogleAuthHandler(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request: token is required"})
		return
	}

	payload, err := idtoken.Validate(c.Request.Context(), req.Token, h.GoogleClientID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid Google ID Token"})
		return
	}

	googleID := payload.Subject
	email, _ := payload.Claims["email"].(string)

	var user models.User
	err = h.DB.Where("google_id = ?", googleID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		username := email
		if at := strings.Index(email, "@"); at > 0 {
			username = email[:at]
		}
		var count int64
		h.DB.Model(&models.User{}).Where("username = ?", username).Count(&count)
		if count > 0 {
			username = email
		}
		user = models.User{Username: username, Email: email, GoogleID: &googleID}
		err = h.DB.Create(&user).Error
	}
	if err != nil {
		log.Printf("ERROR: could not process Google user %s: %v", googleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not process user"})
		return
	}

	if !h.issueSession(c, user) {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detail": "Login successfully!",
		"user": gin.H{
			"id":       user.ID,
			"username": user.Username,
			"email":    user.Email,
		},
	})
}

func (h *Handler) RefreshHandler(c *gin.Context) {
	token, err := c.Cookie(refreshCookie)
	if err != nil || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token invalid or missing."})
		return
	}

	claims, err := h.Issuer.Parse(token, auth.TokenTypeRefresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Refresh token invalid or missing."})
		return
	}

	var revoked int64
	h.DB.Model(&models.RevokedToken{}).Where("jti = ?", claims.ID).Count(&revoked)
	if revoked > 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is blacklisted"})
		return
	}

	access, err := h.Issuer.IssueAccess(claims.UserID, claims.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not refresh token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, access, int(h.Issuer.AccessTTL.Seconds()), accessCookiePath, "", true, true)
	c.JSON(http.StatusOK, gin.H{"detail": "Token refreshed", "access": access})
}

func (h *Handler) LogoutHandler(c *gin.Context) {
	if token, err := c.Cookie(refreshCookie); err == nil && token != "" {
		if claims, err := h.Issuer.Parse(token, auth.TokenTypeRefresh); err == nil {
			revoked := models.RevokedToken{
				JTI:       claims.ID,
				UserID:    claims.UserID,
				ExpiresAt: claims.ExpiresAt.Time,
			}
			if err := h.DB.Where("jti = ?", claims.ID).FirstOrCreate(&revoked).Error; err != nil {
				log.Printf("ERROR: could not blacklist token %s: %v", claims.ID, err)
			}
		}
	}

	h.clearSession(c)
	c.JSON(http.StatusOK, gin.H{
		"detail": "Log-Out successfully! All Tokens will be deleted. Refresh token is now invalid.",
	})
}

func (h *Handler) issueSession(c *gin.Context, user models.User) bool {
	access, err := h.Issuer.IssueAccess(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not generate token"})
		return false
	}
	refresh, err := h.Issuer.IssueRefresh(user.ID, user.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Could not generate token"})
		return false
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, access, int(h.Issuer.AccessTTL.Seconds()), accessCookiePath, "", true, true)
	c.SetCookie(refreshCookie, refresh, int(h.Issuer.RefreshTTL.Seconds()), refreshCookiePath, "", true, true)
	return true
}

func (h *Handler) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(accessCookie, "", -1, accessCookiePath, "", true, true)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, "", true, true)
}

func (h *Handler) CreateQuizHandler(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User ID not found in token"})
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"url": []string{"This field is required."}})
		return
	}

	created, err := h.Quizzes.CreateFromVideo(c.Request.Context(), userID, req.URL)
	if err != nil {
		h.respondPipelineError(c, err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// respondPipelineError maps synthesis failures onto status codes: caller
// mistakes are 400, upstream failures (download, transcription, generation,
// unusable model output) are 502, everything else is 500. The pipeline has
// already guaranteed nothing was persisted.
func (h *Handler) respondPipelineError(c *gin.Context, err error) {
	var (
		downloadErr      *quiz.DownloadError
		transcriptionErr *quiz.TranscriptionError
		generationErr    *quiz.GenerationError
		parseErr         *quiz.ParseError
	)

	switch {
	case errors.Is(err, quiz.ErrInvalidURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid YouTube URL."})
	case errors.Is(err, quiz.ErrNoTranscript):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "No Transcript Found."})
	case errors.As(err, &downloadErr), errors.As(err, &transcriptionErr),
		errors.As(err, &generationErr), errors.As(err, &parseErr):
		log.Printf("ERROR: quiz pipeline failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"detail": err.Error()})
	default:
		log.Printf("ERROR: quiz creation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to create quiz"})
	}
}

func (h *Handler) ListQuizzesHandler(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User ID not found in token"})
		return
	}

	var quizzes []models.Quiz
	err := h.DB.
		Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Find(&quizzes).Error
	if err != nil {
		log.Printf("ERROR: could not list quizzes for user %d: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch quizzes"})
		return
	}

	if quizzes == nil {
		quizzes = []models.Quiz{}
	}
	c.JSON(http.StatusOK, quizzes)
}

func (h *Handler) GetQuizHandler(c *gin.Context) {
	q, ok := h.ownedQuiz(c, true)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) UpdateQuizHandler(c *gin.Context) {
	q, ok := h.ownedQuiz(c, false)
	if !ok {
		return
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid request body"})
		return
	}

	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"title": []string{"This field may not be blank."}})
			return
		}
		q.Title = *req.Title
	}
	if req.Description != nil {
		q.Description = *req.Description
	}

	if err := h.DB.Save(q).Error; err != nil {
		log.Printf("ERROR: could not update quiz %d: %v", q.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to update quiz"})
		return
	}

	if err := h.DB.Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(q, q.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch quiz"})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) DeleteQuizHandler(c *gin.Context) {
	q, ok := h.ownedQuiz(c, false)
	if !ok {
		return
	}

	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("quiz_id = ?", q.ID).Delete(&models.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(q).Error
	})
	if err != nil {
		log.Printf("ERROR: could not delete quiz %d: %v", q.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to delete quiz"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ownedQuiz loads the quiz addressed by the id path param and enforces
// ownership: unknown ids are 404, someone else's quiz is 403.
func (h *Handler) ownedQuiz(c *gin.Context, withQuestions bool) (*models.Quiz, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "User ID not found in token"})
		return nil, false
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		return nil, false
	}

	tx := h.DB
	if withQuestions {
		tx = tx.Preload("Questions", func(db *gorm.DB) *gorm.DB { return db.Order("id") })
	}

	var q models.Quiz
	if err := tx.First(&q, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		} else {
			log.Printf("ERROR: could not load quiz %d: %v", id, err)
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "Failed to fetch quiz"})
		}
		return nil, false
	}

	if q.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Access denied - Quiz does not belong to the user."})
		return nil, false
	}

	return &q, true
}
