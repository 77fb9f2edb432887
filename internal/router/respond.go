package router

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/vyrodovalexey/clusterdesk/internal/contenttype"
)

// ErrStructuredBinaryBody is reported when a handler pairs a structured
// body with a binary content type.
var ErrStructuredBinaryBody = errors.New("structured body cannot be sent with a binary content type")

// streamChunkSize bounds a single write on the streaming path.
const streamChunkSize = 32 << 10

// body is a response body resolved before any header is written.
type body struct {
	stream io.Reader
	final  []byte
}

// resolveBody decides how v is written. Encoding happens here so that a
// failure can still change the status line.
func resolveBody(v any, ct contenttype.Type) (body, error) {
	switch b := v.(type) {
	case nil:
		return body{}, nil
	case []byte:
		return body{stream: bytes.NewReader(b)}, nil
	case io.Reader:
		return body{stream: b}, nil
	case string:
		return body{final: []byte(b)}, nil
	case error:
		return body{final: []byte(b.Error())}, nil
	}

	if ct.IsBinary() {
		return body{}, fmt.Errorf("%w: %T as %s", ErrStructuredBinaryBody, v, ct.MIME())
	}

	data, err := json.Marshal(v)
	if err != nil {
		return body{}, fmt.Errorf("encoding %T as JSON: %w", v, err)
	}
	return body{final: data}, nil
}

// writeResponse writes resp to w: Content-Type first, extra headers in
// key order, status, then the body. It returns the status written and the
// encoding error, if the original body had to be replaced by a 500.
func writeResponse(w http.ResponseWriter, resp Response) (int, error) {
	ct := resp.ContentType.OrDefault(contenttype.JSON)

	value := resp.Body
	if value == nil {
		value = resp.Error
	}

	b, encodeErr := resolveBody(value, ct)
	if encodeErr != nil {
		resp = Response{Error: encodeErr.Error(), StatusCode: http.StatusInternalServerError}
		ct = contenttype.JSON
		b = body{final: []byte(encodeErr.Error())}
	}

	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
		if resp.Error != nil {
			status = http.StatusBadRequest
		}
	}

	h := w.Header()
	h.Set("Content-Type", ct.MIME())
	if len(resp.Headers) > 0 {
		keys := make([]string, 0, len(resp.Headers))
		for k := range resp.Headers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Set(k, resp.Headers[k])
		}
	}

	w.WriteHeader(status)

	switch {
	case b.stream != nil:
		streamBody(w, b.stream)
	case b.final != nil:
		_, _ = w.Write(b.final)
	}

	return status, encodeErr
}

// streamBody copies r to w chunk by chunk, flushing after each chunk. The
// router never ends the response itself: net/http completes it once the
// handler returns.
func streamBody(w http.ResponseWriter, r io.Reader) {
	if c, ok := r.(io.Closer); ok {
		defer c.Close()
	}

	rc := http.NewResponseController(w)
	buf := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			_ = rc.Flush()
		}
		if err != nil {
			return
		}
	}
}
