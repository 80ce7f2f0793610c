package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/logger"
	"github.com/spigell/resume-agent/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Run: func(_ *cobra.Command, _ []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "address to listen on (default :8000)")
	serveCmd.Flags().String("question-source", "", "where interview questions come from: ai or bank")

	viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	viper.BindPFlag("interview.question-source", serveCmd.Flags().Lookup("question-source"))
}

func serve() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	defer logger.Sync()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the resume-agent api", zap.String("version", version))

	app, err := newCore(ctx, config, logger)
	if err != nil {
		logger.Fatal("building the application core", zap.Error(err))
	}
	defer app.Close()

	if config.Database.DSN == "" {
		logger.Warn("database.dsn is not set, accounts live in an in-memory database")
	}
	db, err := openStore(ctx, config.Database)
	if err != nil {
		logger.Fatal("opening the database", zap.Error(err))
	}
	defer db.Close()

	issuer, err := newIssuer(config.Auth, logger)
	if err != nil {
		logger.Fatal("building the token issuer", zap.Error(err))
	}

	objects, err := newObjectStore(ctx, config.Storage, logger)
	if err != nil {
		logger.Fatal("connecting to the object store", zap.Error(err))
	}

	payments, err := newPayments(config.Payments, config.Server.FrontendURL, db, logger)
	if err != nil {
		logger.Fatal("building payments", zap.Error(err))
	}

	oauth := auth.NewProviders(config.Auth.OAuth)
	logger.Info("oauth providers", zap.Strings("configured", oauth.Names()))

	deps := server.Deps{
		Interview: app.interview,
		Registry:  app.registry,
		Pipeline:  app.pipeline,
		Store:     db,
		Issuer:    issuer,
		OAuth:     oauth,
		Billing:   payments,
		Recorder:  app.recorder,
		Model:     app.models.gen.Model(),
		Version:   version,
		Logger:    logger.Named("http"),
	}
	if objects != nil {
		deps.Objects = objects
	}

	srv, err := server.New(config.Server, deps)
	if err != nil {
		logger.Fatal("building the http server", zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.registry.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		logger.Error("exiting", zap.Error(err))
		return
	}
	logger.Info("exiting", zap.String("reason", "shutdown requested"))
}
