package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	dErrors "docverify/pkg/domain-errors"
)

// Normalizable request types trim and canonicalize their fields before
// validation.
type Normalizable interface {
	Normalize()
}

type Validatable interface {
	Validate() error
}

// DecodeAndPrepare reads exactly one JSON value into T, then runs Normalize
// and Validate when T implements them. On failure it writes the error
// response and returns false; the handler just returns.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	var req T
	if err := decodeSingle(r, &req); err != nil {
		logger.WarnContext(ctx, "failed to decode request body",
			"error", err,
			"request_id", requestID,
		)
		WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return nil, false
	}

	if n, ok := any(&req).(Normalizable); ok {
		n.Normalize()
	}
	if v, ok := any(&req).(Validatable); ok {
		if err := v.Validate(); err != nil {
			logger.WarnContext(ctx, "invalid request",
				"error", err,
				"request_id", requestID,
			)
			var domainErr *dErrors.Error
			if !errors.As(err, &domainErr) {
				err = dErrors.New(dErrors.CodeValidation, err.Error())
			}
			WriteError(w, err)
			return nil, false
		}
	}
	return &req, true
}

func decodeSingle(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON body")
	}
	return nil
}
