package routes

import (
	"github.com/arcrelay/geminiproxy/internal/handler"
	"github.com/arcrelay/geminiproxy/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterGatewayRoutes registers the six ingress routes spec §6 names.
// Unlike the teacher's ApiKeyAuth-gated groups, this module has no
// caller-auth layer — every group only carries RequestContext, which
// extracts the conversation/session/client-IP correlation fields.
func RegisterGatewayRoutes(r *gin.Engine, h *handler.Handlers) {
	r.Use(middleware.RequestContext())

	openai := r.Group("/v1")
	{
		openai.POST("/chat/completions", h.ChatCompletions)
		openai.POST("/responses", h.Responses)
		openai.POST("/messages", h.Messages)
		openai.POST("/messages/count_tokens", h.CountTokens)
	}

	gemini := r.Group("/v1beta")
	{
		gemini.POST("/models/*modelAction", h.RouteModelAction)
	}
}
