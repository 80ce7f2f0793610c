package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/apperr"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/interview"
	"github.com/spigell/resume-agent/internal/logger"
)

const (
	PromptAnswer   = "Answer"
	PromptSkip     = "Skip question"
	PromptFinish   = "Finish interview"
	PromptContinue = "Next question"
)

var errFinish = errors.New("interview finished")

var practiceCmd = &cobra.Command{
	Use:   "practice",
	Short: "Run a mock interview in the terminal",
	Run: func(cmd *cobra.Command, _ []string) {
		practice(cmd)
	},
}

func init() {
	rootCmd.AddCommand(practiceCmd)

	practiceCmd.Flags().String("role", "", "role to interview for (asked interactively when empty)")
	practiceCmd.Flags().String("difficulty", "", "easy, medium or hard (asked interactively when empty)")
	practiceCmd.Flags().String("language", interview.DefaultLanguage, "interview language")
}

// practice is an interactive mock interview on top of the interview service.
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

	app, err := newCore(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the application core", zap.Error(err))
	}
	defer app.Close()

	role := cmd.Flag("role").Value.String()
	if role == "" {
		role, err = (&promptui.Prompt{Label: "Role", Validate: notBlank}).Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}
	difficulty := cmd.Flag("difficulty").Value.String()
	if difficulty == "" {
		_, difficulty, err = (&promptui.Select{
			Label: "Difficulty",
			Items: []string{"easy", "medium", "hard"},
		}).Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	session, err := app.interview.CreateSession(role, difficulty, cmd.Flag("language").Value.String())
	if err != nil {
		logger.Fatal("creating a session", zap.Error(err))
	}
	logger.Info("interview started",
		zap.String("session_id", session.ID),
		zap.String("role", session.Role),
		zap.String("difficulty", session.Difficulty),
		zap.String("question_source", app.interview.Source()),
	)

	var scores []float64
	for {
		s, err := askQuestion(ctx, app.interview, session.ID)
		if err != nil {
			if errors.Is(err, errFinish) {
				break
			}
			logger.Fatal("exiting", zap.Error(err))
		}
		if s != nil {
			scores = append(scores, *s)
		}

		_, action, err := (&promptui.Select{
			Label: "Proceed?",
			Items: []string{PromptContinue, PromptFinish},
		}).Run()
		if err != nil || action == PromptFinish {
			break
		}
	}

	logger.Info("interview finished", zap.Int("answered", len(scores)), zap.Float64s("scores", scores))
}

// askQuestion hands out one question and evaluates the answer. A nil score
// means the question was skipped.
func askQuestion(ctx context.Context, svc *interview.Service, sessionID string) (*float64, error) {
	q, err := svc.NextQuestion(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fmt.Printf("\n[%s] %s\n\n", q.ID, q.Text)

	_, action, err := (&promptui.Select{
		Label: "What next?",
		Items: []string{PromptAnswer, PromptSkip, PromptFinish},
	}).Run()
	if err != nil {
		return nil, err
	}
	switch action {
	case PromptSkip:
		return nil, nil
	case PromptFinish:
		return nil, errFinish
	}

	answer, err := (&promptui.Prompt{Label: "Your answer", Validate: notBlank}).Run()
	if err != nil {
		return nil, err
	}

	result, err := svc.SubmitAnswer(ctx, sessionID, answer)
	if err != nil {
		if isUpstream(err) {
			fmt.Printf("could not evaluate the answer: %s\n", apperr.Message(err))
			return nil, nil
		}
		return nil, err
	}
	printEvaluation(result)
	return &result.Score, nil
}

func printEvaluation(r *evaluation.ScoreResult) {
	fmt.Printf("\nScore: %.0f/100\n", r.Score)
	if r.Feedback != "" {
		fmt.Printf("Feedback: %s\n", r.Feedback)
	}
	if len(r.MatchedKeywords) > 0 {
		fmt.Printf("Covered: %s\n", strings.Join(r.MatchedKeywords, ", "))
	}
	if len(r.MissingKeywords) > 0 {
		fmt.Printf("Missing: %s\n", strings.Join(r.MissingKeywords, ", "))
	}
	for _, b := range r.SuggestedBullets {
		fmt.Printf("  - %s\n", b)
	}
}

func isUpstream(err error) bool {
	return errors.Is(err, apperr.ErrUpstreamUnavailable) ||
		errors.Is(err, apperr.ErrUpstreamTimeout) ||
		errors.Is(err, apperr.ErrUpstreamParse)
}

func notBlank(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("must not be empty")
	}
	return nil
}
