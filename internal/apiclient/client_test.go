package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aixgo-dev/travelintel/pkg/identity"
)

func TestClientDo(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		response   string
		in         any
		wantErr    bool
		wantStatus int
		wantValue  string
	}{
		{
			name:      "successful GET",
			status:    http.StatusOK,
			response:  `{"value":"ok"}`,
			wantValue: "ok",
		},
		{
			name:      "successful POST with body",
			status:    http.StatusCreated,
			response:  `{"value":"created"}`,
			in:        map[string]string{"k": "v"},
			wantValue: "created",
		},
		{
			name:       "non-2xx returns StatusError",
			status:     http.StatusBadRequest,
			response:   `{"detail":"nope"}`,
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			response: `{"value":`,
			wantErr:  true,
		},
		{
			name:     "empty body",
			status:   http.StatusOK,
			response: ``,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/thing/", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				if tt.in != nil {
					assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
					var got map[string]string
					assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
					assert.Equal(t, "v", got["k"])
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer server.Close()

			client := New(server.URL+"/v1/", nil)
			method := http.MethodGet
			if tt.in != nil {
				method = http.MethodPost
			}

			var out struct {
				Value string `json:"value"`
			}
			_, err := client.Do(context.Background(), method, "thing/", tt.in, &out)

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantStatus != 0 {
					se, ok := AsStatusError(err)
					require.True(t, ok)
					assert.Equal(t, tt.wantStatus, se.StatusCode)
					assert.JSONEq(t, tt.response, string(se.Body))
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantValue, out.Value)
		})
	}
}

func TestClientDo_AuthorizationHeader(t *testing.T) {
	var seen []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ident := identity.NewSessionContextWithID("s")
	client := New(server.URL, ident)
	ctx := context.Background()

	_, err := client.Do(ctx, http.MethodGet, "/a", nil, nil)
	require.NoError(t, err)

	ident.Install("secret", "1")
	_, err = client.Do(ctx, http.MethodGet, "/a", nil, nil)
	require.NoError(t, err)

	ident.Clear()
	_, err = client.Do(ctx, http.MethodGet, "/a", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Token secret", ""}, seen)
}

func TestClientDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := New(url, nil, WithTimeout(time.Second))
	_, err := client.Do(context.Background(), http.MethodGet, "/", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	_, ok := AsStatusError(err)
	assert.False(t, ok)
}

func TestClientDo_TimeoutWithSuppliedHTTPClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	shared := &http.Client{}
	client := New(server.URL, nil, WithTimeout(100*time.Millisecond), WithHTTPClient(shared))

	start := time.Now()
	_, err := client.Do(context.Background(), http.MethodGet, "/slow", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
	assert.Zero(t, shared.Timeout)
}

func TestClientURL(t *testing.T) {
	client := New("http://api.test/api/", nil)

	assert.Equal(t, "http://api.test/api", client.BaseURL())
	assert.Equal(t, "http://api.test/api/auth/login/", client.URL("/auth/login/"))
	assert.Equal(t, "http://api.test/api/auth/login/", client.URL("auth/login/"))
	assert.Equal(t, "https://other.test/x", client.URL("https://other.test/x"))
}

func TestStatusErrorMessage(t *testing.T) {
	assert.Equal(t, "API error (status 502)", (&StatusError{StatusCode: 502}).Error())
	assert.Contains(t, (&StatusError{StatusCode: 400, Body: []byte(`{"error":"bad"}`)}).Error(), `"error":"bad"`)
}
