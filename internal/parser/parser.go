package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/clusterdesk/internal/observability"
)

// DefaultMaxBodySize is the body limit used when none is configured.
const DefaultMaxBodySize int64 = 10 << 20

// Media types understood by the default parser.
const (
	MediaTypeJSON     = "application/json"
	MediaTypeYAML     = "application/yaml"
	MediaTypeXYAML    = "application/x-yaml"
	MediaTypeTextYAML = "text/yaml"
	MediaTypeForm     = "application/x-www-form-urlencoded"
)

// Parser errors.
var (
	ErrBodyTooLarge         = errors.New("request body too large")
	ErrMalformedBody        = errors.New("malformed request body")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
)

// Payload is the decoded request body.
type Payload struct {
	// MediaType is the Content-Type without parameters, lowercased.
	MediaType string
	// Raw holds the body bytes as read.
	Raw []byte
	// Value is the decoded body. Its dynamic type depends on MediaType.
	Value any
}

// Empty reports whether the request carried no body.
func (p Payload) Empty() bool {
	return len(p.Raw) == 0
}

// Parser produces a Payload from an inbound request.
type Parser interface {
	Parse(r *http.Request) (Payload, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(r *http.Request) (Payload, error)

// Parse calls f(r).
func (f ParserFunc) Parse(r *http.Request) (Payload, error) {
	return f(r)
}

// Option configures the default parser.
type Option func(*bodyParser)

// WithMaxBodySize sets the maximum accepted body size in bytes.
// Non-positive values keep the default.
func WithMaxBodySize(n int64) Option {
	return func(p *bodyParser) {
		if n > 0 {
			p.maxBodySize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *bodyParser) {
		p.logger = logger
	}
}

type decodeFunc func(data []byte) (any, error)

type bodyParser struct {
	maxBodySize int64
	logger      observability.Logger
	decoders    map[string]decodeFunc
}

// New creates the default body parser.
func New(opts ...Option) Parser {
	p := &bodyParser{
		maxBodySize: DefaultMaxBodySize,
		logger:      observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.decoders = map[string]decodeFunc{
		MediaTypeJSON:     decodeJSON,
		MediaTypeYAML:     decodeYAML,
		MediaTypeXYAML:    decodeYAML,
		MediaTypeTextYAML: decodeYAML,
		MediaTypeForm:     decodeForm,
	}

	return p
}

// Parse reads and decodes the request body.
func (p *bodyParser) Parse(r *http.Request) (Payload, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return Payload{}, nil
	}

	if r.ContentLength > p.maxBodySize {
		return Payload{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrBodyTooLarge, r.ContentLength, p.maxBodySize)
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, p.maxBodySize+1))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return Payload{}, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
		}
		return Payload{}, fmt.Errorf("reading request body: %w", err)
	}
	if int64(len(data)) > p.maxBodySize {
		return Payload{}, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, p.maxBodySize)
	}
	if len(data) == 0 {
		return Payload{}, nil
	}

	mediaType, err := mediaTypeOf(r.Header.Get("Content-Type"))
	if err != nil {
		return Payload{}, err
	}

	payload := Payload{MediaType: mediaType, Raw: data}

	switch decode, ok := p.decoders[mediaType]; {
	case ok:
		v, decErr := decode(data)
		if decErr != nil {
			p.logger.Debug("request body decode failed",
				observability.String("media_type", mediaType),
				observability.Error(decErr),
			)
			return Payload{}, fmt.Errorf("%w: %w", ErrMalformedBody, decErr)
		}
		payload.Value = v
	case strings.HasPrefix(mediaType, "text/"):
		payload.Value = string(data)
	default:
		payload.Value = data
	}

	return payload, nil
}

func mediaTypeOf(header string) (string, error) {
	if strings.TrimSpace(header) == "" {
		return "", nil
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, header)
	}
	return strings.ToLower(mediaType), nil
}

func decodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func decodeYAML(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeForm(data []byte) (any, error) {
	return url.ParseQuery(string(data))
}

// IsYAML reports whether mediaType is one of the YAML media types.
func IsYAML(mediaType string) bool {
	switch mediaType {
	case MediaTypeYAML, MediaTypeXYAML, MediaTypeTextYAML:
		return true
	}
	return false
}
