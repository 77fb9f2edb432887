package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/clusterdesk/internal/parser"
)

type forwardRequest struct {
	Port        int    `json:"port"`
	ForwardPort int    `json:"forwardPort"`
	Address     string `json:"address,omitempty"`
}

func TestBind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		want        forwardRequest
		wantErr     bool
	}{
		{name: "empty", want: forwardRequest{}},
		{name: "json", body: `{"port":80,"forwardPort":9000}`, contentType: "application/json", want: forwardRequest{Port: 80, ForwardPort: 9000}},
		{name: "yaml", body: "port: 443\naddress: 127.0.0.1\n", contentType: "application/yaml", want: forwardRequest{Port: 443, Address: "127.0.0.1"}},
		{name: "wrong field type", body: `{"port":"eighty"}`, contentType: "application/json", wantErr: true},
		{name: "unsupported media type", body: "port=80", contentType: "application/x-www-form-urlencoded", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var r *http.Request
			if tt.body == "" {
				r = httptest.NewRequest(http.MethodPost, "/", nil)
			} else {
				r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
				r.Header.Set("Content-Type", tt.contentType)
			}

			payload, err := parser.New().Parse(r)
			require.NoError(t, err)

			got, err := Bind[forwardRequest](payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPayloadBinding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBind_DirectValue(t *testing.T) {
	t.Parallel()

	got, err := Bind[string](parser.Payload{MediaType: "text/plain", Raw: []byte("hi"), Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)
}

func TestTyped(t *testing.T) {
	t.Parallel()

	var seen forwardRequest
	rt := newTestRouter(t, nil, Route{
		Method: "post",
		Path:   "/forward",
		Handler: Typed(func(_ context.Context, _ *Request, in forwardRequest) (Response, error) {
			seen = in
			return Response{Body: map[string]int{"port": in.Port}}, nil
		}),
	})

	ok := httptest.NewRequest(http.MethodPost, "/forward", strings.NewReader(`{"port":8080}`))
	ok.Header.Set("Content-Type", "application/json")
	w := newRecordingWriter()
	require.True(t, rt.Route(nil, w, ok))
	assert.Equal(t, http.StatusOK, w.status)
	assert.Equal(t, `{"port":8080}`, w.body())
	assert.Equal(t, 8080, seen.Port)

	bad := httptest.NewRequest(http.MethodPost, "/forward", strings.NewReader(`{"port":true}`))
	bad.Header.Set("Content-Type", "application/json")
	w = newRecordingWriter()
	require.True(t, rt.Route(nil, w, bad))
	assert.Equal(t, http.StatusBadRequest, w.status)
	assert.Contains(t, w.body(), ErrPayloadBinding.Error())
}
