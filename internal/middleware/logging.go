package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"connectrpc.com/connect"
)

// LoggingInterceptor logs one line per unary call. Client mistakes log at
// warn level and server faults at error level.
func LoggingInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			attrs := rpcAttrs(ctx, req)
			attrs = append(attrs, slog.Int64("duration_ms", time.Since(start).Milliseconds()))
			if err == nil {
				slog.LogAttrs(ctx, slog.LevelInfo, "RPC ok", attrs...)
				return resp, nil
			}

			code := connect.CodeOf(err)
			msg := err.Error()
			var connectErr *connect.Error
			if errors.As(err, &connectErr) {
				msg = connectErr.Message()
			}
			attrs = append(attrs, slog.String("code", code.String()), slog.String("error", msg))
			slog.LogAttrs(ctx, levelFor(code), "RPC failed", attrs...)
			return resp, err
		}
	}
}

func rpcAttrs(ctx context.Context, req connect.AnyRequest) []slog.Attr {
	service, method := splitProcedure(req.Spec().Procedure)
	attrs := []slog.Attr{
		slog.String("service", service),
		slog.String("method", method),
	}
	if callerID := GetCallerID(ctx); callerID != "" {
		attrs = append(attrs, slog.String("caller_id", callerID))
	}
	if addr := req.Peer().Addr; addr != "" {
		attrs = append(attrs, slog.String("peer", addr))
	}
	return attrs
}

// splitProcedure turns "/pkg.Service/Method" into its two parts.
func splitProcedure(procedure string) (string, string) {
	procedure = strings.TrimPrefix(procedure, "/")
	service, method, ok := strings.Cut(procedure, "/")
	if !ok {
		return procedure, ""
	}
	return service, method
}

func levelFor(code connect.Code) slog.Level {
	switch code {
	case connect.CodeInternal, connect.CodeUnknown, connect.CodeDataLoss, connect.CodeUnavailable:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
