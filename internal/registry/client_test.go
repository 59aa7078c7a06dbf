package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateFileExtractsAssignedID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response string
		want     string
	}{
		{name: "direct string id", response: `{"id":"rec-123"}`, want: "rec-123"},
		{name: "numeric id", response: `{"id": 42}`, want: "42"},
		{name: "data wrapped id", response: `{"data":{"id":"rec-9"}}`, want: "rec-9"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/filemanagement/upload", r.URL.Path)
				require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tc.response))
			}))
			defer srv.Close()

			client := NewClient(srv.URL)
			id, err := client.CreateFile(context.Background(), "tok", Record{S3Key: "owner/alice/others/x.bin"})
			require.NoError(t, err)
			require.Equal(t, tc.want, id)
		})
	}
}

func TestCreateFileWithoutIDFails(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.CreateFile(context.Background(), "tok", Record{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing record id")
}

func TestNon2xxSurfacesAsRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.CreateFile(context.Background(), "tok", Record{})

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, http.StatusForbidden, rejected.Status)
	require.Contains(t, rejected.Body, "quota exceeded")
}

func TestGetFileNotFound(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.GetFile(context.Background(), "tok", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	// Point at a closed server so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewClient(srv.URL)
	_, err := client.ListFiles(context.Background(), "tok")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestListFilesToleratesAnyShape(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","note":"no data field"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	records, err := client.ListFiles(context.Background(), "tok")
	require.NoError(t, err, "unrecognized payload shape must not fail the call")
	require.Empty(t, records)
}

func TestProxyPassesReplyThrough(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/userauthflow/login", r.URL.Path)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	resp, err := client.Login(context.Background(), []byte(`{"username":"alice","password":"wrong"}`))
	require.NoError(t, err, "proxying preserves registry errors instead of failing")
	require.Equal(t, http.StatusUnauthorized, resp.Status)
	require.JSONEq(t, `{"message":"bad credentials"}`, string(resp.Body))
}
