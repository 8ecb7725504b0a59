package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/interviewpilot/internal/logger"
	"github.com/spigell/interviewpilot/internal/resume"
	"github.com/spigell/interviewpilot/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending session store migrations",
	Run: func(cmd *cobra.Command, _ []string) {
		migrate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("with-resumes", false, "also create the resumes table in the same database")
}

func migrate(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	st, err := store.OpenSQL(config.Database.DSN, logger)
	if err != nil {
		logger.Fatal("opening session store", zap.Error(err))
	}
	defer st.Close()

	applied, err := st.Migrate(ctx)
	if err != nil {
		logger.Fatal("applying migrations", zap.Error(err))
	}

	if withResumes, _ := cmd.Flags().GetBool("with-resumes"); withResumes {
		if err := resume.NewSQL(st.DB()).EnsureSchema(ctx); err != nil {
			logger.Fatal("creating resumes table", zap.Error(err))
		}
	}

	logger.Info("migrations applied",
		zap.String("dialect", st.Dialect()),
		zap.Int("applied", applied),
		zap.Int("schema_version", store.SchemaVersion()),
	)
}
