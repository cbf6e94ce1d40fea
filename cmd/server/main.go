package main

import (
	"flag"
	"log/slog"
	"os"

	"crewmind/internal/config"
	"crewmind/internal/handler"
	"crewmind/internal/logger"
	"crewmind/internal/middleware"
	"crewmind/internal/model"
	"crewmind/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	configFile := flag.String("config", "", "config file path (e.g. etc/config-dev.yaml)")
	flag.Parse()

	cfg := config.Load(*configFile)
	logger.Init(cfg.Log)

	db, err := cfg.OpenGormDB()
	if err != nil {
		slog.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	if err := db.AutoMigrate(
		&model.User{}, &model.Team{}, &model.Task{}, &model.Meeting{},
		&model.Note{}, &model.TeamNote{}, &model.Attendance{},
		&model.Insight{}, &model.AIActionLog{},
	); err != nil {
		slog.Error("db migrate failed", "err", err)
		os.Exit(1)
	}

	aiSvc := service.NewAIService(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model)
	scheduler := service.NewScheduler(cfg.Scheduler.BaseURL, cfg.Scheduler.APIKey)
	audit := service.NewAudit(db)
	assistant := service.NewAssistant(db, aiSvc, scheduler, audit)
	insights := service.NewInsightService(db, aiSvc)
	authSvc := service.NewAuthService(db)

	chatH := handler.NewChatHandler(assistant, authSvc)
	insightH := handler.NewInsightHandler(insights, audit, authSvc)
	emailH := handler.NewEmailHandler(assistant, authSvc)
	authH := handler.NewAuthHandler(authSvc)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
	}))

	r.POST("/api/login", authH.Login)
	api := r.Group("/api", middleware.JWTAuth())
	api.POST("/chat/ask", chatH.Ask)
	api.GET("/insights", insightH.List)
	api.PUT("/insights/:id/read", insightH.MarkRead)
	api.GET("/ai/logs", insightH.Logs)
	api.POST("/emails/draft", emailH.Draft)

	slog.Info("server starting", "addr", cfg.Addr())
	if err := r.Run(cfg.Addr()); err != nil {
		slog.Error("server failed", "err", err)
	}
}
