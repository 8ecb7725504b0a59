package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/identity"
	"github.com/spigell/interviewpilot/internal/logger"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for a user (development only)",
	Run: func(cmd *cobra.Command, _ []string) {
		issueToken(cmd)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().Int64P("user", "u", 0, "user id to issue the token for")
	tokenCmd.Flags().String("username", "", "username claim")
	tokenCmd.MarkFlagRequired("user")
}

func issueToken(cmd *cobra.Command) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	secret, err := loadAuthSecret(config.Auth)
	if err != nil {
		logger.Fatal("loading jwt secret", zap.Error(err))
	}

	issuer, err := identity.NewIssuer(secret, config.Auth.Issuer, config.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("creating token issuer", zap.Error(err))
	}

	userID, _ := cmd.Flags().GetInt64("user")
	username, _ := cmd.Flags().GetString("username")

	token, err := issuer.Issue(userID, username)
	if err != nil {
		logger.Fatal("issuing token", zap.Error(err))
	}

	fmt.Println(token)
}
