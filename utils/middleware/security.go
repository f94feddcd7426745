package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/sahilchouksey/study-artifacts/utils/response"
)

type SecurityConfig struct {
	AllowedOrigins    string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// Paths exempt from rate limiting, such as load balancer health checks
	UnlimitedPaths []string
}

// SetupSecurity installs the middleware chain shared by every route, in
// order: request id, access log, panic recovery, headers, CORS, rate limit
func SetupSecurity(app *fiber.App, config SecurityConfig) {
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${locals:requestid} | ${status} | ${latency} | ${method} ${path} | ${ip}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "no-referrer",
	}))
	app.Use(cors.New(corsConfig(config.AllowedOrigins)))

	if config.RateLimitRequests > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        config.RateLimitRequests,
			Expiration: config.RateLimitWindow,
			Next: func(c *fiber.Ctx) bool {
				for _, p := range config.UnlimitedPaths {
					if c.Path() == p {
						return true
					}
				}
				return false
			},
			KeyGenerator: func(c *fiber.Ctx) string { return c.IP() },
			LimitReached: func(c *fiber.Ctx) error {
				return response.TooManyRequests(c, "Too many requests. Please try again later.")
			},
		}))
	}
}

// corsConfig allows the session API and its event stream to be used from
// browser clients. Credentials are only allowed with an explicit origin list.
func corsConfig(origins string) cors.Config {
	origins = strings.ReplaceAll(origins, " ", "")
	if origins == "" {
		origins = "*"
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,Last-Event-ID",
		ExposeHeaders:    "X-Request-Id",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}
}
