package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/authgraph/internal/graph"
)

// RegisterGraphQLRoutes mounts the GraphQL endpoint for GET and POST.
func RegisterGraphQLRoutes(r fiber.Router, h *graph.Handler) {
	r.Get("/graphql", h.Serve)
	r.Post("/graphql", h.Serve)
}
