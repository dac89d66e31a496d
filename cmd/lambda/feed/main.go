// =============================================================================
// Lambda: bankier-feed
// =============================================================================
//
// Function-URL handler that scrapes the listing on every request and
// returns the feed directly:
//
//	GET  -> 200 application/rss+xml   feed with at least one article
//	     -> 503                       no articles found
//	     -> 500                       configuration or pipeline failure
//	     -> 504                       invocation deadline hit mid-run
//	other methods -> 405
//
// Configuration comes from the function's environment variables (the same
// names the CLI reads). The first page is dumped under /tmp when a run
// comes back empty.
//
// =============================================================================
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	_ "time/tzdata"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"bankier-feed/internal/config"
	"bankier-feed/internal/logger"
	"bankier-feed/internal/pipeline"
)

type handler struct {
	loadConfig func() (*config.Config, error)
	client     pipeline.HTTPDoer
	sleep      pipeline.SleepFunc
	log        logger.Logger
}

func (h *handler) handle(ctx context.Context, req events.LambdaFunctionURLRequest) (events.LambdaFunctionURLResponse, error) {
	method := req.RequestContext.HTTP.Method
	if method != "" && method != http.MethodGet && method != http.MethodHead {
		return textResponse(http.StatusMethodNotAllowed, "method not allowed"), nil
	}

	cfg, err := h.loadConfig()
	if err != nil {
		h.log.Error("invalid configuration", logger.Error(err))
		return textResponse(http.StatusInternalServerError, "configuration error"), nil
	}
	if cfg.DiagnosticPath != "" && !filepath.IsAbs(cfg.DiagnosticPath) {
		cfg.DiagnosticPath = filepath.Join(os.TempDir(), filepath.Base(cfg.DiagnosticPath))
	}

	opts := pipeline.FetcherOptionsFromConfig(cfg)
	opts.Sleep = h.sleep
	fetcher, err := pipeline.NewFetcher(h.client, opts, h.log)
	if err != nil {
		h.log.Error("failed to set up fetcher", logger.Error(err))
		return textResponse(http.StatusInternalServerError, "configuration error"), nil
	}

	var buf pipeline.BufferWriter
	driver := pipeline.NewDriver(cfg, pipeline.Deps{
		Fetcher:  fetcher,
		Writer:   &buf,
		Notifier: pipeline.NewNotifier(cfg, h.log),
		Log:      h.log,
		Sleep:    h.sleep,
	})

	res, err := driver.Run(ctx)
	switch {
	case pipeline.IsInterrupt(err) || ctx.Err() != nil:
		h.log.Warn("invocation cancelled before the feed was built")
		return textResponse(http.StatusGatewayTimeout, "timed out"), nil
	case err != nil:
		h.log.Error("run failed", logger.Error(err))
		return textResponse(http.StatusInternalServerError, "feed generation failed"), nil
	case res.Status != pipeline.StatusDone:
		return textResponse(http.StatusServiceUnavailable, "no articles found"), nil
	}

	h.log.Info("feed served", logger.Int("articles", len(res.Articles)), logger.Int("bytes", buf.Len()))
	resp := events.LambdaFunctionURLResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":  "application/rss+xml; charset=utf-8",
			"Cache-Control": "public, max-age=900",
		},
		Body: buf.String(),
	}
	if method == http.MethodHead {
		resp.Body = ""
	}
	return resp, nil
}

func textResponse(status int, msg string) events.LambdaFunctionURLResponse {
	return events.LambdaFunctionURLResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       msg,
	}
}

func main() {
	log, err := logger.New(logger.Config{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: "json",
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	h := &handler{
		loadConfig: func() (*config.Config, error) { return config.Load(os.Getenv("BANKIER_CONFIG")) },
		client:     &http.Client{},
		log:        log,
	}
	lambda.Start(h.handle)
}
