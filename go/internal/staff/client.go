package staff

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/kiosk/go/internal/rpc"
)

// Client calls StaffService over Connect
type Client struct {
	register           *connect.Client[RegisterRequest, RegisterResponse]
	login              *connect.Client[LoginRequest, LoginResponse]
	checkKitchenAccess *connect.Client[CheckKitchenAccessRequest, CheckKitchenAccessResponse]
}

// NewClient creates a StaffService client for the server at baseURL
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = rpc.ClientOptions(opts...)

	return &Client{
		register:           connect.NewClient[RegisterRequest, RegisterResponse](httpClient, baseURL+RegisterProcedure, opts...),
		login:              connect.NewClient[LoginRequest, LoginResponse](httpClient, baseURL+LoginProcedure, opts...),
		checkKitchenAccess: connect.NewClient[CheckKitchenAccessRequest, CheckKitchenAccessResponse](httpClient, baseURL+CheckKitchenAccessProcedure, opts...),
	}
}

// Register creates a staff account
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	resp, err := c.register.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Login exchanges credentials for a token and identity
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.login.CallUnary(ctx, connect.NewRequest(&LoginRequest{Username: username, Password: password}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// CheckKitchenAccess asks whether token grants kitchen access
func (c *Client) CheckKitchenAccess(ctx context.Context, token string) (*CheckKitchenAccessResponse, error) {
	req := connect.NewRequest(&CheckKitchenAccessRequest{})
	if token != "" {
		req.Header().Set("Authorization", "Bearer "+token)
	}
	resp, err := c.checkKitchenAccess.CallUnary(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
