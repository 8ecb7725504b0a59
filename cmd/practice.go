package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/interview"
	"github.com/spigell/interviewpilot/internal/logger"
	"github.com/spigell/interviewpilot/internal/report"
	"github.com/spigell/interviewpilot/internal/resume"
)

const (
	PromptCancel = "Cancel interview"
	PromptQuit   = "Quit (the interview stays open)"
)

var errQuit = errors.New("quit requested")

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run an interview interactively in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		practice(cmd)
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().Int64P("user", "u", 1, "user id the interview belongs to")
	practiceCmd.Flags().Int64P("resume", "r", 1, "resume id to build the interview from")
	practiceCmd.Flags().StringP("resume-file", "f", "", "plain text resume to use instead of the configured resume store")
	practiceCmd.Flags().IntP("topics", "t", 0, "number of questions (0 uses interview.topic-count)")
}

func practice(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	userID, _ := cmd.Flags().GetInt64("user")
	resumeID, _ := cmd.Flags().GetInt64("resume")
	topics, _ := cmd.Flags().GetInt("topics")
	resumeFile, _ := cmd.Flags().GetString("resume-file")

	var opts buildOptions
	if resumeFile != "" {
		r, err := resumeFromFile(resumeFile, resumeID, userID)
		if err != nil {
			logger.Fatal("reading resume file", zap.Error(err))
		}
		opts.resumes = resume.NewMemory(*r)
	}

	svc, err := buildServices(ctx, config, logger, opts)
	if err != nil {
		logger.Fatal("building services", zap.Error(err))
	}
	defer svc.Close()

	sessionID, err := startOrResume(ctx, svc.engine, userID, resumeID, topics, logger)
	if err != nil {
		logger.Fatal("starting the interview", zap.Error(err))
	}

	if err := askQuestions(ctx, svc.engine, userID, sessionID, logger); err != nil {
		if errors.Is(err, errQuit) {
			logger.Info("exiting", zap.String("session_id", sessionID), zap.String("reason", "quit from prompt"))
			return
		}
		logger.Fatal("exiting", zap.Error(err))
	}

	rep, err := svc.engine.Report(ctx, userID, sessionID)
	if err != nil {
		var notDone *engine.NotCompletedError
		if errors.As(err, &notDone) {
			logger.Info("interview finished without a report", zap.Stringer("status", notDone.Progress.Status))
			return
		}
		logger.Fatal("building the report", zap.Error(err))
	}

	// do not bother error since the report is always serializable
	pretty, _ := json.MarshalIndent(rep, "", "  ")
	logger.Info(string(pretty), zap.Int("overall_score", rep.OverallScore))
}

func resumeFromFile(path string, resumeID, userID int64) (*resume.Resume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("resume file %q is empty", path)
	}
	return &resume.Resume{
		ID:            resumeID,
		UserID:        userID,
		Filename:      filepath.Base(path),
		ExtractedText: text,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// startOrResume starts a new interview or continues the active one for the
// same resume.
func startOrResume(ctx context.Context, eng *engine.Engine, userID, resumeID int64, topics int, logger *zap.Logger) (string, error) {
	started, err := eng.Start(ctx, userID, resumeID, topics)
	if err == nil {
		logger.Info("interview started",
			zap.String("session_id", started.SessionID),
			zap.Int("questions", len(started.Questions)),
		)
		return started.SessionID, nil
	}
	if !errors.Is(err, interview.ErrDuplicateSession) {
		return "", err
	}

	list, listErr := eng.List(ctx, userID)
	if listErr != nil {
		return "", errors.Join(err, listErr)
	}
	for _, s := range list {
		if s.ResumeID == resumeID && s.Status == interview.StatusInProgress {
			logger.Info("continuing the active interview", zap.String("session_id", s.SessionID))
			return s.SessionID, nil
		}
	}
	return "", err
}

func askQuestions(ctx context.Context, eng *engine.Engine, userID int64, sessionID string, logger *zap.Logger) error {
	for {
		progress, err := eng.Progress(ctx, userID, sessionID)
		if err != nil {
			return err
		}
		if progress.Status != interview.StatusInProgress {
			return nil
		}

		open := openQuestions(progress)
		items := make([]string, 0, len(open)+2)
		for _, q := range open {
			items = append(items, q.label)
		}
		items = append(items, PromptCancel, PromptQuit)

		questionPrompt := promptui.Select{
			Label: fmt.Sprintf("Choose a question (%d of %d left)", progress.Remaining, progress.Total),
			Items: items,
			Size:  10,
		}
		idx, selected, err := questionPrompt.Run()
		if err != nil {
			return err
		}

		switch selected {
		case PromptQuit:
			return errQuit
		case PromptCancel:
			if _, err := eng.Cancel(ctx, userID, sessionID); err != nil {
				return err
			}
			logger.Info("interview cancelled", zap.String("session_id", sessionID))
			return nil
		}

		q := open[idx]
		fmt.Println(q.text)

		answerPrompt := promptui.Prompt{
			Label: "Your answer",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("answer must not be empty")
				}
				return nil
			},
		}
		answer, err := answerPrompt.Run()
		if err != nil {
			return err
		}

		res, err := eng.SubmitAnswer(ctx, userID, sessionID, q.id, answer)
		if err != nil {
			if interview.CodeOf(err).Retryable() {
				logger.Warn("scoring failed, try again", zap.Error(err))
				continue
			}
			return err
		}

		logger.Info(res.Feedback,
			zap.Int("question_id", res.QuestionID),
			zap.Int("score", res.Score),
			zap.Int("remaining", res.Remaining),
		)
	}
}

type openQuestion struct {
	id    int
	text  string
	label string
}

func openQuestions(p *report.Progress) []openQuestion {
	out := make([]openQuestion, 0, p.Remaining)
	for _, q := range p.Questions {
		if q.Answered {
			continue
		}
		label := fmt.Sprintf("%d. [%s] %s", q.QuestionID, q.Topic, q.Question)
		out = append(out, openQuestion{id: q.QuestionID, text: q.Question, label: label})
	}
	return out
}
