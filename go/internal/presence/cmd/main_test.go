package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/kiosk/go/internal/gateway"
	"github.com/mcdev12/kiosk/go/internal/presence"
	"github.com/mcdev12/kiosk/go/internal/staff"
)

func TestSocketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		server string
		want   string
	}{
		{server: "http://localhost:8080", want: "ws://localhost:8080/realtime/ws"},
		{server: "https://kiosk.example.com/", want: "wss://kiosk.example.com/realtime/ws"},
		{server: "http://host/base?x=1", want: "ws://host/base/realtime/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.server, func(t *testing.T) {
			t.Parallel()

			got, err := socketURL(tt.server)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := socketURL("ftp://host")
	assert.Error(t, err)
}

func TestSaveSession(t *testing.T) {
	t.Parallel()

	store := presence.NewLocalStore(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, saveSession(store, &staff.LoginResponse{
		Token:    "tok",
		Identity: presence.Identity{ID: "42", Username: "alice"},
	}))

	identity, err := presence.LoadIdentity(store)
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.Equal(t, "42", identity.ID)
	assert.Equal(t, "alice", identity.Username)

	token, ok, err := store.Get(presence.TokenKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", token)
}

func TestDispatch(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, dispatch(context.Background(), nil, &out))
	assert.Contains(t, out.String(), "kiosk-beacon login")

	assert.Error(t, dispatch(context.Background(), []string{"dance"}, &out))
	assert.Error(t, dispatch(context.Background(), []string{"run", "--transport", "carrier-pigeon", "--store", filepath.Join(t.TempDir(), "s.json")}, &out))
}

func TestStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/rooms/kitchen-presence/presence", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(gateway.PresenceResponse{
			Room:  "kitchen-presence",
			Count: 1,
			Records: map[string][]json.RawMessage{
				"42": {json.RawMessage(`{"staffId":"42"}`)},
			},
		})
	}))
	t.Cleanup(srv.Close)

	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, saveSession(presence.NewLocalStore(path), &staff.LoginResponse{
		Token:    "tok",
		Identity: presence.Identity{ID: "42", Username: "alice"},
	}))

	var out bytes.Buffer
	require.NoError(t, dispatch(context.Background(), []string{"status", "--server", srv.URL, "--store", path}, &out))
	assert.Contains(t, out.String(), "signed in as alice (42)")
	assert.Contains(t, out.String(), "kitchen-presence: 1 present")
	assert.Contains(t, out.String(), "42 (1 connections)")
}
