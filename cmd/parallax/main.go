package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fatih/color"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	"github.com/google/uuid"
	"github.com/hokaccha/go-prettyjson"
	"github.com/joho/godotenv"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	parallax "github.com/parallaxml/parallax"
	"github.com/parallaxml/parallax/coordinator"
	coordapi "github.com/parallaxml/parallax/coordinator/api"
	"github.com/parallaxml/parallax/coordinator/middleware"
	"github.com/parallaxml/parallax/grad"
	"github.com/parallaxml/parallax/model"
	"github.com/parallaxml/parallax/pkg/data"
	"github.com/parallaxml/parallax/pkg/mqtt"
	"github.com/parallaxml/parallax/pkg/storage"
	"github.com/parallaxml/parallax/trainer"
)

const (
	svcName = "parallax"
	pathEnv = ".env"
)

type envConfig struct {
	LogLevel   string `env:"PARALLAX_LOG_LEVEL"  envDefault:"info"`
	InstanceID string `env:"PARALLAX_INSTANCE_ID"`
	HTTPPort   string `env:"PARALLAX_HTTP_PORT"  envDefault:"7070"`
	HTTPServe  bool   `env:"PARALLAX_HTTP_SERVE" envDefault:"true"`
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "parallax",
		Short: "Parallax parallel training coordinator",
		Long:  `Train a model across a fleet of parallel workers under one of four synchronization strategies.`,
	}

	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Run a training job",
		Long:  `Run a training job described by a TOML configuration file against a CSV dataset.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain(cmd.Context(), configPath)
		},
	}
	trainCmd.Flags().StringVarP(&configPath, "config", "c", "config.toml", "path to the training configuration file")

	rootCmd.AddCommand(trainCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runTrain(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if _, err := os.Stat(pathEnv); err == nil {
		_ = godotenv.Load(pathEnv)
	}

	ecfg := envConfig{}
	if err := env.Parse(&ecfg); err != nil {
		log.Fatalf("failed to load configuration : %s", err.Error())
	}
	if ecfg.InstanceID == "" {
		ecfg.InstanceID = uuid.NewString()
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(ecfg.LogLevel)); err != nil {
		log.Fatalf("failed to parse log level: %s", err.Error())
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := parallax.LoadConfig(configPath)
	if err != nil {
		return err
	}

	set, err := data.LoadCSV(cfg.Data.Path)
	if err != nil {
		return err
	}
	if len(set) == 0 {
		return errors.New("dataset is empty")
	}

	tracer := noop.NewTracerProvider().Tracer(svcName)
	counter := kitprometheus.NewCounterFrom(stdprometheus.CounterOpts{
		Namespace: svcName,
		Subsystem: "coordinator",
		Name:      "request_count",
		Help:      "Number of coordinator operations.",
	}, []string{"method"})
	latency := kitprometheus.NewSummaryFrom(stdprometheus.SummaryOpts{
		Namespace: svcName,
		Subsystem: "coordinator",
		Name:      "request_latency_microseconds",
		Help:      "Total duration of coordinator operations in microseconds.",
	}, []string{"method"})

	checkpoints := storage.NewInMemoryStorage()
	opts := []trainer.Option{
		trainer.WithLogger(logger),
		trainer.WithCheckpoints(checkpoints),
		trainer.WithDecorator(func(svc coordinator.Service) coordinator.Service {
			svc = middleware.Logging(logger, svc)
			svc = middleware.Tracing(tracer, svc)
			svc = middleware.Metrics(counter, latency, svc)

			return svc
		}),
	}

	if cfg.Broker.Address != "" {
		clientID := cfg.Broker.ClientID
		if clientID == "" {
			clientID = svcName + "-" + ecfg.InstanceID
		}
		timeout := time.Duration(cfg.Broker.TimeoutS) * time.Second
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		pubsub, err := mqtt.NewPubSub(cfg.Broker.Address, cfg.Broker.QoS, clientID, cfg.Broker.Username, cfg.Broker.Password, timeout, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize mqtt pubsub: %w", err)
		}
		defer func() {
			if err := pubsub.Disconnect(context.Background()); err != nil {
				logger.Warn("failed to disconnect from broker", slog.Any("error", err))
			}
		}()
		topic := cfg.Broker.Topic
		if topic == "" {
			topic = svcName + "/runs"
		}
		opts = append(opts, trainer.WithNotifier(pubsub, topic))
	}

	computer := grad.NewLeastSquares()
	t, err := trainer.New(cfg.Training, computer, opts...)
	if err != nil {
		return err
	}

	var srv *http.Server
	if ecfg.HTTPServe {
		srv = &http.Server{
			Addr:    ":" + ecfg.HTTPPort,
			Handler: lazyHandler(t, checkpoints, logger, ecfg.InstanceID),
		}
		g.Go(func() error {
			logger.Info("coordinator API server starting", slog.String("port", ecfg.HTTPPort))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	initial := model.Zeros(len(set[0].Features) + 1)

	var final model.Snapshot
	var trainErr error
	g.Go(func() error {
		final, trainErr = t.Train(ctx, set, initial)
		if srv != nil {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			_ = srv.Shutdown(shutdownCtx)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	report(computer, set, final, trainErr)

	return trainErr
}

// lazyHandler defers building the API router until the trainer has created
// its coordinator; requests arriving before then get 503.
func lazyHandler(t *trainer.Trainer, checkpoints storage.Storage, logger *slog.Logger, instanceID string) http.Handler {
	var once sync.Once
	var handler http.Handler

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		coord := t.Coordinator()
		if coord == nil {
			http.Error(w, "no active training run", http.StatusServiceUnavailable)

			return
		}
		once.Do(func() {
			handler = coordapi.MakeHandler(coord, checkpoints, logger, instanceID)
		})
		handler.ServeHTTP(w, r)
	})
}

func report(computer grad.Computer, set data.Set, final model.Snapshot, trainErr error) {
	if trainErr != nil {
		color.Yellow("training finished with worker failures: %s", trainErr)
	} else {
		color.Green("training finished")
	}

	_, loss, err := computer.Compute(context.Background(), final.Parameters, data.Batch(set))
	if err == nil {
		color.Cyan("final loss over full training set: %f (version %d)", loss, final.Version)
	}

	out, err := prettyjson.Marshal(final)
	if err != nil {
		return
	}
	fmt.Println(string(out))
}
