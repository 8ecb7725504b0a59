package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/identity"
)

const callerKey = "caller"

// authenticate resolves the bearer token into the caller identity.
func (s *Server) authenticate(c *fiber.Ctx) error {
	caller, err := s.resolver.ResolveHeader(c.Get(fiber.HeaderAuthorization))
	if err != nil {
		s.logger.Debug("authentication failed", zap.String("path", c.Path()), zap.Error(err))
		return s.writeError(c, err)
	}
	c.Locals(callerKey, caller)
	return c.Next()
}

func callerOf(c *fiber.Ctx) identity.Caller {
	caller, _ := c.Locals(callerKey).(identity.Caller)
	return caller
}

// rateLimiter limits requests per caller. A non-positive limit disables it.
func (s *Server) rateLimiter() fiber.Handler {
	if s.cfg.RateLimit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return limiter.New(limiter.Config{
		Max:        s.cfg.RateLimit,
		Expiration: s.cfg.RateWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "caller:" + strconv.FormatInt(callerOf(c).UserID, 10)
		},
		LimitReached: func(c *fiber.Ctx) error {
			caller := callerOf(c)
			s.logger.Warn("rate limit reached",
				zap.Int64("user_id", caller.UserID),
				zap.String("path", c.Path()),
			)
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(s.cfg.RateWindow.Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(errorResponse{
				Error:     "too many requests",
				Code:      codeRateLimited,
				Retryable: true,
			})
		},
	})
}
