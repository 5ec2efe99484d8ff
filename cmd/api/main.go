package main

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/lrstanley/go-ytdlp"
	"github.com/spf13/viper"

	"github.com/mcordes92/da-quizly/internal/ai"
	"github.com/mcordes92/da-quizly/internal/auth"
	"github.com/mcordes92/da-quizly/internal/database"
	"github.com/mcordes92/da-quizly/internal/handlers"
	"github.com/mcordes92/da-quizly/internal/media"
	"github.com/mcordes92/da-quizly/internal/middleware"
	"github.com/mcordes92/da-quizly/internal/quiz"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("gemini.model", "gemini-2.5-flash")
	viper.SetDefault("auth.access_ttl_minutes", 30)
	viper.SetDefault("auth.refresh_ttl_hours", 14*24)
	viper.SetDefault("ffmpeg.path", "ffmpeg")
	viper.SetDefault("whisper.bin", "whisper-cli")
	viper.SetDefault("whisper.model", "models/ggml-base.bin")

	if err := viper.ReadInConfig(); err != nil {
		log.Println("Could not find config.yaml, using environment variables only.")
	}

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Could not connect to the database: %v", err)
	}

	jwtSecret := viper.GetString("jwt.secret_key")
	if jwtSecret == "" {
		log.Fatal("JWT secret key not found in config")
	}
	geminiAPIKey := viper.GetString("gemini.api_key")
	if geminiAPIKey == "" {
		log.Fatal("Gemini API key not found in config")
	}

	aiService, err := ai.NewService(geminiAPIKey, viper.GetString("gemini.model"))
	if err != nil {
		log.Fatalf("Could not initialize AI service: %v", err)
	}

	// Fetch the yt-dlp binary if it is not already on PATH.
	ytdlp.MustInstall(context.Background(), nil)

	downloader := media.NewAudioDownloader(viper.GetString("ffmpeg.path"))
	transcriber := media.NewWhisperTranscriber(
		viper.GetString("whisper.bin"),
		viper.GetString("whisper.model"),
	)

	issuer := auth.TokenIssuer{
		Key:        []byte(jwtSecret),
		AccessTTL:  time.Duration(viper.GetInt("auth.access_ttl_minutes")) * time.Minute,
		RefreshTTL: time.Duration(viper.GetInt("auth.refresh_ttl_hours")) * time.Hour,
	}

	quizService := quiz.NewService(db, downloader, transcriber, aiService)
	h := handlers.New(db, issuer, quizService, viper.GetString("google.client_id"))

	router := gin.Default()
	api := router.Group("/api")
	{
		api.POST("/register/", h.RegisterHandler)
		api.POST("/login/", h.LoginHandler)
		api.POST("/token/refresh/", h.RefreshHandler)
		api.POST("/auth/google/", h.GoogleAuthHandler)

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

	addr := viper.GetString("server.addr")
	log.Printf("Starting server on %s...", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal("Failed to start server: ", err)
	}
}
