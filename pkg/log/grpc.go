package log

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const metadataKeyRequestID = "x-request-id"

// Health checks arrive every few seconds; successful ones log at debug.
const healthMethodPrefix = "/grpc.health.v1.Health/"

// callLogger derives the per call logger from incoming metadata.
func callLogger(ctx context.Context, base zerolog.Logger, method string) zerolog.Logger {
	reqID := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(metadataKeyRequestID); len(vals) > 0 {
			reqID = vals[0]
		}
	}
	if reqID == "" {
		reqID = uuid.NewString()
	}
	return base.With().Str(FieldRequestID, reqID).Str(FieldGRPCMethod, method).Logger()
}

func logCall(l zerolog.Logger, method string, start time.Time, err error, msg string) {
	evt := l.Info()
	if err == nil && strings.HasPrefix(method, healthMethodPrefix) {
		evt = l.Debug()
	}
	evt.Str(FieldGRPCCode, status.Code(err).String()).
		Int64(FieldLatency, time.Since(start).Milliseconds()).
		Err(err).
		Msg(msg)
}

// UnaryServerInterceptor stores a per call logger in the handler context
// and logs the outcome.
func UnaryServerInterceptor(logger zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		l := callLogger(ctx, logger, info.FullMethod)
		resp, err := handler(l.WithContext(ctx), req)
		logCall(l, info.FullMethod, start, err, "unary call completed")
		return resp, err
	}
}

// StreamServerInterceptor is the streaming counterpart, used by Health/Watch.
func StreamServerInterceptor(logger zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		l := callLogger(ss.Context(), logger, info.FullMethod)
		err := handler(srv, &loggedStream{ServerStream: ss, ctx: l.WithContext(ss.Context())})
		logCall(l, info.FullMethod, start, err, "stream call completed")
		return err
	}
}

type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context { return s.ctx }
