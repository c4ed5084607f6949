package log

import (
	"context"
	"log/slog"

	cerrors "github.com/cockroachdb/errors"

	"github.com/YuminosukeSato/medimg/pkg/errors"
)

// ErrContextHandler is a slog handler that expands the "error" attribute of a
// record into a stacktrace plus the fields carried by the medimg error types.
type ErrContextHandler struct {
	handler slog.Handler
}

// WrapByErrContextHandler wraps handler so that records carrying an "error"
// attribute also get "stacktrace", "error.type" and, when the error knows
// them, "image.path" and "ml.operation". Attributes set by the caller win.
func WrapByErrContextHandler(handler slog.Handler) slog.Handler {
	return &ErrContextHandler{
		handler: handler,
	}
}

func (eh *ErrContextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return eh.handler.Enabled(ctx, l)
}

func (eh *ErrContextHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	present := map[string]bool{}
	r.Attrs(func(attr slog.Attr) bool {
		present[attr.Key] = true
		if attr.Key == ErrAttrKey && err == nil {
			err, _ = attr.Value.Any().(error)
		}
		return true
	})
	if err == nil {
		return eh.handler.Handle(ctx, r)
	}

	for _, attr := range errorAttrs(err) {
		if !present[attr.Key] {
			r.AddAttrs(attr)
		}
	}
	return eh.handler.Handle(ctx, r)
}

func (eh *ErrContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ErrContextHandler{handler: eh.handler.WithAttrs(attrs)}
}

func (eh *ErrContextHandler) WithGroup(g string) slog.Handler {
	return &ErrContextHandler{handler: eh.handler.WithGroup(g)}
}

func errorAttrs(err error) []slog.Attr {
	var attrs []slog.Attr
	if st := extractStacktrace(err); st != "" {
		attrs = append(attrs, slog.String(StacktraceAttrKey, st))
	}

	var (
		notFound *errors.NotFoundError
		dim      *errors.DimensionError
		hazard   *errors.DivisionHazardError
		cfg      *errors.ConfigurationError
		invalid  *errors.ValidationError
		unfitted *errors.NotFittedError
	)
	switch {
	case errors.As(err, &notFound):
		attrs = append(attrs, slog.String(ErrorTypeKey, "not_found"), slog.String(ImagePathKey, notFound.Path))
	case errors.As(err, &dim):
		attrs = append(attrs, slog.String(ErrorTypeKey, "dimension"), slog.String(OperationKey, dim.Op))
	case errors.As(err, &hazard):
		attrs = append(attrs, slog.String(ErrorTypeKey, "division_hazard"), slog.String(OperationKey, hazard.Op))
	case errors.As(err, &cfg):
		attrs = append(attrs, slog.String(ErrorTypeKey, "configuration"))
	case errors.As(err, &invalid):
		attrs = append(attrs, slog.String(ErrorTypeKey, "validation"))
	case errors.As(err, &unfitted):
		attrs = append(attrs, slog.String(ErrorTypeKey, "not_fitted"), slog.String(OperationKey, unfitted.ModelName+"."+unfitted.Method))
	}
	return attrs
}

func extractStacktrace(err error) string {
	safeDetails := cerrors.GetSafeDetails(err).SafeDetails
	if len(safeDetails) > 0 {
		return safeDetails[0]
	}
	return ""
}
