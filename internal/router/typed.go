package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vyrodovalexey/clusterdesk/internal/parser"
)

// ErrPayloadBinding is returned when a payload cannot be decoded into the
// type a route expects.
var ErrPayloadBinding = errors.New("invalid request payload")

// TypedHandlerFunc is a handler that receives its payload already decoded.
type TypedHandlerFunc[P any] func(ctx context.Context, req *Request, payload P) (Response, error)

// Typed adapts fn to a HandlerFunc. The request payload is bound to P
// before fn runs; a binding failure is answered with 400 and fn is not
// called.
func Typed[P any](fn TypedHandlerFunc[P]) HandlerFunc {
	return func(ctx context.Context, req *Request) (Response, error) {
		payload, err := Bind[P](req.Payload)
		if err != nil {
			return Response{Error: err.Error(), StatusCode: http.StatusBadRequest}, nil
		}
		return fn(ctx, req, payload)
	}
}

// Bind decodes payload into a value of type P. An empty payload yields
// the zero value. JSON and YAML bodies are decoded using the JSON field
// names of P.
func Bind[P any](payload parser.Payload) (P, error) {
	var out P

	if payload.Empty() {
		return out, nil
	}
	if v, ok := payload.Value.(P); ok {
		return v, nil
	}

	var raw []byte
	switch {
	case payload.MediaType == parser.MediaTypeJSON || payload.MediaType == "":
		raw = payload.Raw
	case parser.IsYAML(payload.MediaType):
		data, err := json.Marshal(payload.Value)
		if err != nil {
			return out, fmt.Errorf("%w: %w", ErrPayloadBinding, err)
		}
		raw = data
	default:
		return out, fmt.Errorf("%w: cannot bind %s to %T", ErrPayloadBinding, payload.MediaType, out)
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("%w: %w", ErrPayloadBinding, err)
	}
	return out, nil
}
