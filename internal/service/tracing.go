package service

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/timmy/tubechat/internal/service")
