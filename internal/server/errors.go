package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/interview"
)

const codeRateLimited = "rate_limited"

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	Progress  any    `json:"progress,omitempty"`
}

func statusFor(code interview.Code) int {
	switch code {
	case interview.CodeNotFound:
		return fiber.StatusNotFound
	case interview.CodeForbidden:
		return fiber.StatusForbidden
	case interview.CodeInvalidState, interview.CodeAlreadyAnswered, interview.CodeDuplicateSession, interview.CodeConflict:
		return fiber.StatusConflict
	case interview.CodeInvalidInput:
		return fiber.StatusBadRequest
	case interview.CodeUnauthenticated:
		return fiber.StatusUnauthorized
	case interview.CodeUpstreamUnavailable:
		return fiber.StatusServiceUnavailable
	case interview.CodeUpstreamRejected:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// writeError renders err as {error, code, retryable}. A report requested for
// an unfinished session also carries its progress.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	code := interview.CodeOf(err)
	status := statusFor(code)

	resp := errorResponse{
		Error:     err.Error(),
		Code:      string(code),
		Retryable: code.Retryable(),
	}

	var notDone *engine.NotCompletedError
	if errors.As(err, &notDone) {
		resp.Progress = notDone.Progress
	}

	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("code", resp.Code),
			zap.Error(err),
		)
		if code == interview.CodeInternal || code == interview.CodeCorrupt {
			resp.Error = "internal error"
		}
	}

	return c.Status(status).JSON(resp)
}

// handleError is the fiber error handler for errors escaping the handlers,
// such as unknown routes and recovered panics.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := interview.CodeInternal
		switch fe.Code {
		case fiber.StatusNotFound:
			code = interview.CodeNotFound
		case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge, fiber.StatusMethodNotAllowed:
			code = interview.CodeInvalidInput
		}
		return c.Status(fe.Code).JSON(errorResponse{Error: fe.Message, Code: string(code)})
	}
	return s.writeError(c, err)
}
