package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAccount = "0x36e4418dafb9d1e5fff7408f5a57981e240c8f8e"

type recordedUpload struct {
	path           string
	query          string
	contentType    string
	idempotencyKey string
	acl            string
	body           []byte
}

func uploadServer(t *testing.T, status int) (*httptest.Server, *[]recordedUpload) {
	t.Helper()
	var uploads []recordedUpload

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		uploads = append(uploads, recordedUpload{
			path:           r.URL.Path,
			query:          r.URL.RawQuery,
			contentType:    r.Header.Get("Content-Type"),
			idempotencyKey: r.Header.Get("Idempotency-Key"),
			acl:            r.Header.Get("X-Access-Control"),
			body:           body,
		})
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"uri": "beacon://abc123"})
	}))
	t.Cleanup(server.Close)
	return server, &uploads
}

func TestUploadFile(t *testing.T) {
	t.Run("uploads raw bytes with content type", func(t *testing.T) {
		server, uploads := uploadServer(t, http.StatusOK)
		client, err := NewClient(Config{BaseURL: server.URL})
		require.NoError(t, err)

		resource, err := client.UploadFile(context.Background(), &File{
			Name:        "photo.png",
			ContentType: "image/png",
			Data:        []byte{0x89, 0x50},
		})
		require.NoError(t, err)
		assert.Equal(t, "beacon://abc123", resource.URI)

		require.Len(t, *uploads, 1)
		upload := (*uploads)[0]
		assert.Equal(t, "/uploads", upload.path)
		assert.Equal(t, "name=photo.png", upload.query)
		assert.Equal(t, "image/png", upload.contentType)
		assert.NotEmpty(t, upload.idempotencyKey)
		assert.Empty(t, upload.acl)
		assert.Equal(t, []byte{0x89, 0x50}, upload.body)
	})

	t.Run("account ACL is attached when requested", func(t *testing.T) {
		server, uploads := uploadServer(t, http.StatusOK)
		client, err := NewClient(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.UploadFile(context.Background(),
			&File{Data: []byte("x")},
			WithAccountACL(testAccount),
		)
		require.NoError(t, err)

		var acl map[string]string
		require.NoError(t, json.Unmarshal([]byte((*uploads)[0].acl), &acl))
		assert.Equal(t, "account_only", acl["template"])
		assert.Equal(t, testAccount, acl["account"])
	})

	t.Run("invalid ACL address", func(t *testing.T) {
		server, uploads := uploadServer(t, http.StatusOK)
		client, err := NewClient(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.UploadFile(context.Background(),
			&File{Data: []byte("x")},
			WithAccountACL("not-an-address"),
		)
		var uploadErr *UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Empty(t, *uploads)
	})

	t.Run("empty file", func(t *testing.T) {
		client, err := NewClient(Config{BaseURL: "http://localhost"})
		require.NoError(t, err)

		_, err = client.UploadFile(context.Background(), nil)
		var uploadErr *UploadError
		require.ErrorAs(t, err, &uploadErr)
	})

	t.Run("storage node failure preserves the cause", func(t *testing.T) {
		server, _ := uploadServer(t, http.StatusServiceUnavailable)
		client, err := NewClient(Config{BaseURL: server.URL})
		require.NoError(t, err)

		_, err = client.UploadFile(context.Background(), &File{Data: []byte("x")})
		var uploadErr *UploadError
		require.ErrorAs(t, err, &uploadErr)
		assert.Contains(t, err.Error(), "503")
	})
}

func TestUploadJSON(t *testing.T) {
	server, uploads := uploadServer(t, http.StatusOK)
	client, err := NewClient(Config{BaseURL: server.URL})
	require.NoError(t, err)

	doc := map[string]interface{}{"content": "hello"}
	resource, err := client.UploadJSON(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "beacon://abc123", resource.URI)

	upload := (*uploads)[0]
	assert.Equal(t, "application/json", upload.contentType)

	var uploaded map[string]interface{}
	require.NoError(t, json.Unmarshal(upload.body, &uploaded))
	assert.Equal(t, "hello", uploaded["content"])
}

func TestResolveURI(t *testing.T) {
	client, err := NewClient(Config{
		BaseURL:    "https://storage.example",
		GatewayURL: "https://gateway.example",
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		uri  string
		want string
	}{
		{
			name: "storage URI is rewritten to the gateway",
			uri:  "beacon://abc123",
			want: "https://gateway.example/content/abc123",
		},
		{
			name: "https URL passes through",
			uri:  "https://example.com/image.png",
			want: "https://example.com/image.png",
		},
		{
			name: "empty string passes through",
			uri:  "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, client.ResolveURI(tt.uri))
		})
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.ErrorContains(t, err, "base URL is required")

	client, err := NewClient(Config{BaseURL: "https://storage.example/"})
	require.NoError(t, err)
	// Gateway defaults to the base URL, trailing slash trimmed.
	assert.Equal(t, "https://storage.example/content/x", client.ResolveURI("beacon://x"))
}
