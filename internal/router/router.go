package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/chatline/backend/api/handler"
)

type Handlers struct {
	Chat       *apiHandler.ChatHandler
	Operator   *apiHandler.OperatorHandler
	Assignment *apiHandler.AssignmentHandler
	Health     *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)

	// Chat lifecycle
	r.POST("/api/v1/chats", authMiddleware(handlers.Chat.Create))
	r.GET("/api/v1/chats", authMiddleware(handlers.Chat.List))
	r.GET("/api/v1/chats/{id}", authMiddleware(handlers.Chat.Get))
	r.POST("/api/v1/chats/{id}/close", authMiddleware(handlers.Chat.Close))
	r.POST("/api/v1/chats/{id}/abandon", authMiddleware(handlers.Chat.Abandon))
	r.POST("/api/v1/chats/{id}/messages", authMiddleware(handlers.Chat.SendMessage))
	r.GET("/api/v1/chats/{id}/messages", authMiddleware(handlers.Chat.ListMessages))

	// Assignment
	r.POST("/api/v1/chats/{id}/assign", authMiddleware(handlers.Assignment.Assign))
	r.POST("/api/v1/chats/{id}/transfer", authMiddleware(handlers.Assignment.Transfer))
	r.POST("/api/v1/chats/{id}/release", authMiddleware(handlers.Assignment.Release))
	r.GET("/api/v1/assignments/queue", authMiddleware(handlers.Assignment.Queue))

	// Operators
	r.POST("/api/v1/operators", authMiddleware(handlers.Operator.Onboard))
	r.GET("/api/v1/operators/available", authMiddleware(handlers.Operator.ListAvailable))
	r.GET("/api/v1/operators/{id}", authMiddleware(handlers.Operator.Get))
	r.POST("/api/v1/operators/{id}/connect", authMiddleware(handlers.Operator.Connect))
	r.POST("/api/v1/operators/{id}/disconnect", authMiddleware(handlers.Operator.Disconnect))
	r.PUT("/api/v1/operators/{id}/status", authMiddleware(handlers.Operator.SetStatus))
	r.PUT("/api/v1/operators/{id}/capacity", authMiddleware(handlers.Operator.UpdateCapacity))
	r.POST("/api/v1/operators/{id}/skills", authMiddleware(handlers.Operator.AddSkill))
	r.DELETE("/api/v1/operators/{id}/skills", authMiddleware(handlers.Operator.RemoveSkill))

	return r
}
