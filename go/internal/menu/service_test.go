package menu

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/rpc"
)

type testServer struct {
	url    string
	http   *http.Client
	issuer *auth.Issuer
	putter *fakePutter
}

func newMenuServer(t *testing.T, withImages bool) *testServer {
	t.Helper()

	issuer := auth.NewIssuer([]byte("menu-test-secret"), time.Hour, clockwork.NewRealClock())
	putter := &fakePutter{}

	var svc *Service
	var uploads *UploadHandler
	if withImages {
		store, _ := newTestStore(t, putter)
		svc = NewService(store)
		uploads = NewUploadHandler(store)
	} else {
		svc = NewService(nil)
		uploads = NewUploadHandler(nil)
	}

	mux := http.NewServeMux()
	path, handler := NewHandler(svc, connect.WithInterceptors(rpc.AuthInterceptor(issuer)))
	mux.Handle(path, handler)
	uploads.RegisterRoutes(mux)

	srv := httptest.NewServer(auth.Middleware(issuer, mux))
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, http: srv.Client(), issuer: issuer, putter: putter}
}

func (s *testServer) client(t *testing.T, role auth.Role) *Client {
	t.Helper()

	if role == "" {
		return NewClient(s.http, s.url)
	}
	token, err := s.issuer.Issue("staff-1", "ana", role)
	require.NoError(t, err)
	return NewClient(s.http, s.url, connect.WithInterceptors(rpc.BearerAuth(token)))
}

func TestService_ListCategoriesAndValidateCart(t *testing.T) {
	t.Parallel()

	srv := newMenuServer(t, false)
	client := srv.client(t, "")
	ctx := context.Background()

	cats, err := client.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, Categories(), cats)

	resp, err := client.ValidateCart(ctx, ValidateCartRequest{Items: []CartItem{burger()}})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.Equal(t, "$19.98", resp.Subtotal)
}

func TestService_AdminOnlyProcedures(t *testing.T) {
	t.Parallel()

	srv := newMenuServer(t, true)
	ctx := context.Background()
	draft := ProductDraft{Name: "Shake", Category: "desserts", Price: 450}

	_, err := srv.client(t, "").PresignImageUpload(ctx, "p-shake", "image/png")
	assert.Equal(t, connect.CodeUnauthenticated, connect.CodeOf(err))

	_, err = srv.client(t, auth.RoleKitchen).ValidateProduct(ctx, draft)
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	admin := srv.client(t, auth.RoleAdmin)
	checked, err := admin.ValidateProduct(ctx, draft)
	require.NoError(t, err)
	assert.True(t, checked.Valid)

	upload, err := admin.PresignImageUpload(ctx, "p-shake", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "products/p-shake/fixed.png", upload.Key)

	_, err = admin.PresignImageUpload(ctx, "p-shake", "text/plain")
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))
}

func TestService_PresignWithoutStorage(t *testing.T) {
	t.Parallel()

	srv := newMenuServer(t, false)
	_, err := srv.client(t, auth.RoleAdmin).PresignImageUpload(context.Background(), "p-shake", "image/png")
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestUploadHandler(t *testing.T) {
	t.Parallel()

	srv := newMenuServer(t, true)
	adminToken, err := srv.issuer.Issue("staff-1", "ana", auth.RoleAdmin)
	require.NoError(t, err)
	waiterToken, err := srv.issuer.Issue("staff-2", "ben", auth.RoleWaiter)
	require.NoError(t, err)

	put := func(token, contentType string, body []byte) *http.Response {
		req, err := http.NewRequest(http.MethodPut, srv.url+"/api/products/p-burger/image", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", contentType)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := srv.http.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	assert.Equal(t, http.StatusUnauthorized, put("", "image/png", []byte("x")).StatusCode)
	assert.Equal(t, http.StatusForbidden, put(waiterToken, "image/png", []byte("x")).StatusCode)
	assert.Equal(t, http.StatusUnsupportedMediaType, put(adminToken, "image/gif", []byte("x")).StatusCode)

	resp := put(adminToken, "image/png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "http://127.0.0.1:9000/kiosk-images/products/p-burger/fixed.png", body["url"])
	require.Len(t, srv.putter.bodies, 1)
	assert.Equal(t, []byte("png-bytes"), srv.putter.bodies[0])
}
