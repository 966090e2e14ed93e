package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/freekieb7/wicket/brig"
	"github.com/freekieb7/wicket/filesystem"
	"github.com/freekieb7/wicket/http"
	"github.com/freekieb7/wicket/schedule"
	"go.opentelemetry.io/contrib/bridges/otelslog"
)

const name = "github.com/freekieb7/wicket"

func main() {
	if err := run(context.Background()); err != nil {
		log.Fatalln(err)
	}
}

func run(ctx context.Context) (err error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := http.ConfigFromEnv(os.Getenv)
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if os.Getenv("WICKET_OTEL") != "" {
		otelShutdown, setupErr := setupOTelSDK(ctx)
		if setupErr != nil {
			return setupErr
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = errors.Join(err, otelShutdown(shutdownCtx))
		}()
		logger = otelslog.NewLogger(name)
	} else {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level:       logLevel(os.Getenv("WICKET_LOG_LEVEL")),
			ReplaceAttr: http.ReplaceLevelNames,
		}))
	}
	slog.SetDefault(logger)

	sentence := 10 * time.Minute
	if v := os.Getenv("WICKET_JAIL_DURATION"); v != "" {
		if sentence, err = time.ParseDuration(v); err != nil {
			return err
		}
	}
	jail := brig.New(sentence,
		brig.WithDuration(http.ClassVulnSeeking, 4*sentence),
		brig.WithLogger(logger))

	scheduler := schedule.NewScheduler(logger)
	if err := scheduler.AddJob(schedule.NewJob("brig-sweep").
		WithTasks(jail.Sweep).
		WithInterval(time.Minute).
		WithTimeout(10 * time.Second)); err != nil {
		return err
	}
	go func() {
		if err := scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	opts := []http.Option{http.WithLogger(logger), http.WithAbuseSink(jail)}

	router := http.NewRouter()
	router.Get("", func(req *http.Request) (*http.Response, error) {
		return http.NewResponse(http.StatusOK).WithHTML(indexPage), nil
	}, http.LogMiddleware(logger))
	router.Post("echo", func(req *http.Request) (*http.Response, error) {
		return http.NewResponse(http.StatusOK).WithJSON(map[string]any{
			"kind": req.Body().Kind.String(),
			"form": req.Body().Form,
		}), nil
	}, http.LogMiddleware(logger))

	if dir := os.Getenv("WICKET_STATIC_DIR"); dir != "" {
		files, err := filesystem.NewLocalFileSystem(dir, logger)
		if err != nil {
			return err
		}
		opts = append(opts, http.WithFileSource(files))

		router.GetPrefix("static/", func(req *http.Request) (*http.Response, error) {
			file := strings.TrimPrefix(req.Path(), "static/")
			return http.FileResponse(file, filesystem.ContentType(file)), nil
		}, http.LogMiddleware(logger))
	}

	server := http.NewServer(cfg, router, opts...)
	return server.ListenAndServe(ctx)
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "trace":
		return http.LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const indexPage = `<!DOCTYPE html>
<html>
<head><title>wicket</title></head>
<body>
<form method="post" action="/echo">
<input name="name" placeholder="name">
<button type="submit">send</button>
</form>
</body>
</html>
`
