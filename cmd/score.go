package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/document"
	"github.com/spigell/resume-agent/internal/logger"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a resume file against a job description file",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().StringP("resume", "r", "", "resume file (text, markdown or html)")
	scoreCmd.Flags().StringP("job", "J", "", "job description file")
	scoreCmd.MarkFlagRequired("resume")
	scoreCmd.MarkFlagRequired("job")
}

func score(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	resume, err := readDocument(cmd.Flag("resume").Value.String())
	if err != nil {
		logger.Fatal("reading the resume", zap.Error(err))
	}
	job, err := readDocument(cmd.Flag("job").Value.String())
	if err != nil {
		logger.Fatal("reading the job description", zap.Error(err))
	}

	app, err := newCore(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the application core", zap.Error(err))
	}
	defer app.Close()

	result, err := app.pipeline.ScoreResume(ctx, resume, job)
	if err != nil {
		logger.Fatal("scoring the resume", zap.Error(err))
	}

	// do not bother error since the result is a plain struct
	pretty, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(pretty))
}

func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return document.Extract(filepath.Base(path), "", data)
}
