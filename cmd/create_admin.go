package cmd

import (
	"context"
	"log"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/logger"
	"github.com/spigell/resume-agent/internal/store"
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an administrator account",
	Run: func(cmd *cobra.Command, _ []string) {
		createAdmin(cmd)
	},
}

func init() {
	rootCmd.AddCommand(createAdminCmd)

	createAdminCmd.Flags().String("email", "", "administrator email")
	createAdminCmd.Flags().String("name", "Administrator", "full name")
	createAdminCmd.Flags().String("password", "", "password (asked interactively when empty)")
	createAdminCmd.MarkFlagRequired("email")
}

func createAdmin(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config.Database.DSN == "" {
		logger.Fatal("database.dsn is required", zap.String("hint", "an in-memory database would lose the account on exit"))
	}

	password := cmd.Flag("password").Value.String()
	if password == "" {
		password, err = (&promptui.Prompt{Label: "Password", Mask: '*', Validate: notBlank}).Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Fatal("hashing the password", zap.Error(err))
	}

	db, err := openStore(ctx, config.Database)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}
	defer db.Close()

	user := &store.User{
		Email:          cmd.Flag("email").Value.String(),
		HashedPassword: hash,
		FullName:       cmd.Flag("name").Value.String(),
		IsActive:       true,
		IsAdmin:        true,
	}
	if err := db.CreateUser(ctx, user); err != nil {
		logger.Fatal("creating the administrator", zap.Error(err))
	}

	logger.Info("administrator created", zap.String("user_id", user.ID), zap.String("email", user.Email))
}
