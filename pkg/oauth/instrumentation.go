package oauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-training/authz-server/pkg/core"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/go-training/authz-server/pkg/oauth"

// Span attribute keys. Never attach secrets, codes or token values.
const (
	AttrClientID  = "oauth.client_id"
	AttrGrantType = "oauth.grant_type"
	AttrResult    = "oauth.result"
)

const resultOK = "ok"

type instruments struct {
	tracer         trace.Tracer
	authorizations metric.Int64Counter
	codesIssued    metric.Int64Counter
	tokensIssued   metric.Int64Counter
	rejections     metric.Int64Counter
}

// newInstruments uses the global providers, which are no-ops unless the host installs SDK providers.
func newInstruments() *instruments {
	meter := otel.Meter(instrumentationName)

	return &instruments{
		tracer:         otel.Tracer(instrumentationName),
		authorizations: counter(meter, "oauth.authorization.requests", "Authorization requests received"),
		codesIssued:    counter(meter, "oauth.codes.issued", "Authorization codes issued"),
		tokensIssued:   counter(meter, "oauth.tokens.issued", "Access tokens issued"),
		rejections:     counter(meter, "oauth.rejections", "Rejected authorization and token requests"),
	}
}

func counter(meter metric.Meter, name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		otel.Handle(err)
		c, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter(name)
	}
	return c
}

func (in *instruments) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return in.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// succeed marks the span successful.
func (in *instruments) succeed(span trace.Span) {
	span.SetAttributes(attribute.String(AttrResult, resultOK))
	span.SetStatus(codes.Ok, "")
}

// reject counts and logs a rejection and records it on the span.
func (in *instruments) reject(ctx context.Context, span trace.Span, operation string, err error, attrs ...any) {
	result := reasonOf(err)
	level := slog.LevelWarn

	var jsonErr *JSONError
	if errors.As(err, &jsonErr) && jsonErr.Status >= http.StatusInternalServerError {
		result = CodeServerError
		level = slog.LevelError
	}

	in.rejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String(AttrResult, result),
	))

	span.SetAttributes(attribute.String(AttrResult, result))
	span.RecordError(err)
	span.SetStatus(codes.Error, result)

	core.LoggerFromCtx(ctx).Log(ctx, level, operation+" rejected", append(attrs, "reason", err.Error())...)
}

func metricAttrs(grantType string) metric.AddOption {
	return metric.WithAttributes(attribute.String(AttrGrantType, grantType))
}
