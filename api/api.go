package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/sahilchouksey/study-artifacts/utils/response"
)

type APIServer struct {
	app           *fiber.App
	listenAddress string
}

func NewAPIServer(listenAddress string) *APIServer {
	return &APIServer{
		app: fiber.New(fiber.Config{
			AppName:      "study-artifacts",
			ErrorHandler: errorHandler,
		}),
		listenAddress: listenAddress,
	}
}

func (s *APIServer) GetEngine() *fiber.App {
	return s.app
}

func (s *APIServer) Run() error {
	log.Info("Starting API Server")
	log.Infof("Listening on %s", s.listenAddress)

	return s.app.Listen(s.listenAddress)
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends
func (s *APIServer) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// errorHandler keeps errors returned by handlers and middleware in the
// standard response envelope
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Code, fe.Message, response.CodeHTTP)
	}
	log.Errorf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	return response.InternalServerError(c, "Internal server error")
}
