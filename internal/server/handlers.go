package server

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spigell/interviewpilot/internal/health"
	"github.com/spigell/interviewpilot/internal/interview"
)

type startRequest struct {
	ResumeID   int64 `json:"resume_id"`
	TopicCount int   `json:"topic_count"`
}

type answerRequest struct {
	SessionID  string `json:"session_id"`
	QuestionID int    `json:"question_id"`
	Answer     string `json:"answer"`
}

type cancelResponse struct {
	SessionID string           `json:"session_id"`
	Status    interview.Status `json:"status"`
}

func (s *Server) parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("decode request body: %v: %w", err, interview.ErrInvalidInput)
	}
	return nil
}

func (s *Server) startInterview(c *fiber.Ctx) error {
	var req startRequest
	if err := s.parseBody(c, &req); err != nil {
		return s.writeError(c, err)
	}
	if req.ResumeID <= 0 {
		return s.writeError(c, fmt.Errorf("resume_id is required: %w", interview.ErrInvalidInput))
	}

	res, err := s.engine.Start(c.UserContext(), callerOf(c).UserID, req.ResumeID, req.TopicCount)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (s *Server) submitAnswer(c *fiber.Ctx) error {
	var req answerRequest
	if err := s.parseBody(c, &req); err != nil {
		return s.writeError(c, err)
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return s.writeError(c, fmt.Errorf("session_id is required: %w", interview.ErrInvalidInput))
	}

	res, err := s.engine.SubmitAnswer(c.UserContext(), callerOf(c).UserID, req.SessionID, req.QuestionID, req.Answer)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(res)
}

func (s *Server) cancelInterview(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	status, err := s.engine.Cancel(c.UserContext(), callerOf(c).UserID, sessionID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(cancelResponse{SessionID: sessionID, Status: status})
}

func (s *Server) interviewReport(c *fiber.Ctx) error {
	rep, err := s.engine.Report(c.UserContext(), callerOf(c).UserID, c.Params("session_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(rep)
}

func (s *Server) interviewProgress(c *fiber.Ctx) error {
	p, err := s.engine.Progress(c.UserContext(), callerOf(c).UserID, c.Params("session_id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(p)
}

func (s *Server) listInterviews(c *fiber.Ctx) error {
	list, err := s.engine.List(c.UserContext(), callerOf(c).UserID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(fiber.Map{"interviews": list})
}

func (s *Server) healthLive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "service": app})
}

func (s *Server) healthFull(c *fiber.Ctx) error {
	return s.writeHealth(c, health.Run(c.UserContext(), s.logger, s.cfg.HealthTimeout, s.checks...))
}

func (s *Server) healthOne(c *fiber.Ctx) error {
	check, ok := health.Find(s.checks, c.Params("check"))
	if !ok {
		return s.writeError(c, fmt.Errorf("health check %q: %w", c.Params("check"), interview.ErrNotFound))
	}
	return s.writeHealth(c, health.Run(c.UserContext(), s.logger, s.cfg.HealthTimeout, check))
}

func (s *Server) writeHealth(c *fiber.Ctx, report health.Report) error {
	status := fiber.StatusOK
	if !report.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}
