package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/ghuser/campusreserve/pkg/config"
)

// sensitiveHeaders never leave the process with a Sentry event.
var sensitiveHeaders = []string{"Authorization", "Cookie", "X-Auth-Token"}

// SetupSentry initializes the Sentry SDK. No-ops if DSN is empty.
// Transactions are sampled at the same ratio as OTel traces.
func SetupSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	if err := sentry.Init(sentryOptions(cfg)); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

func sentryOptions(cfg *config.Config) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          cfg.ServiceName + "@" + cfg.ServiceVersion,
		ServerName:       cfg.ServiceName,
		TracesSampleRate: cfg.OtelSampleRatio,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			scrubRequest(event)
			return event
		},
	}
}

// scrubRequest removes credentials from the captured request.
func scrubRequest(event *sentry.Event) {
	if event == nil || event.Request == nil {
		return
	}
	event.Request.Cookies = ""
	for name := range event.Request.Headers {
		for _, s := range sensitiveHeaders {
			if strings.EqualFold(name, s) {
				delete(event.Request.Headers, name)
			}
		}
	}
}

// SentryFlush flushes buffered events before process exit.
func SentryFlush() {
	sentry.Flush(2 * time.Second)
}

// SentryMiddleware captures panics and re-raises them for logger.Recovery.
func SentryMiddleware() func(http.Handler) http.Handler {
	h := sentryhttp.New(sentryhttp.Options{Repanic: true})
	return h.Handle
}

// CaptureCritical reports err to Sentry with severity fatal and the given tags.
// It uses the request hub from ctx when one is attached. No-ops when Sentry is
// not initialised.
func CaptureCritical(ctx context.Context, err error, tags map[string]string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTags(tags)
		hub.CaptureException(err)
	})
}
