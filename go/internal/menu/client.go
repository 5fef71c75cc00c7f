package menu

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mcdev12/kiosk/go/internal/rpc"
)

// Client calls MenuService over Connect. Pass rpc.BearerAuth for admin calls.
type Client struct {
	listCategories     *connect.Client[ListCategoriesRequest, ListCategoriesResponse]
	validateCart       *connect.Client[ValidateCartRequest, ValidateCartResponse]
	validateProduct    *connect.Client[ValidateProductRequest, ValidateProductResponse]
	presignImageUpload *connect.Client[PresignImageUploadRequest, PresignedUpload]
}

func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = rpc.ClientOptions(opts...)

	return &Client{
		listCategories:     connect.NewClient[ListCategoriesRequest, ListCategoriesResponse](httpClient, baseURL+ListCategoriesProcedure, opts...),
		validateCart:       connect.NewClient[ValidateCartRequest, ValidateCartResponse](httpClient, baseURL+ValidateCartProcedure, opts...),
		validateProduct:    connect.NewClient[ValidateProductRequest, ValidateProductResponse](httpClient, baseURL+ValidateProductProcedure, opts...),
		presignImageUpload: connect.NewClient[PresignImageUploadRequest, PresignedUpload](httpClient, baseURL+PresignImageUploadProcedure, opts...),
	}
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	resp, err := c.listCategories.CallUnary(ctx, connect.NewRequest(&ListCategoriesRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Categories, nil
}

func (c *Client) ValidateCart(ctx context.Context, req ValidateCartRequest) (*ValidateCartResponse, error) {
	resp, err := c.validateCart.CallUnary(ctx, connect.NewRequest(&req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) ValidateProduct(ctx context.Context, draft ProductDraft) (*ValidateProductResponse, error) {
	resp, err := c.validateProduct.CallUnary(ctx, connect.NewRequest(&ValidateProductRequest{Draft: draft}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) PresignImageUpload(ctx context.Context, productID, contentType string) (*PresignedUpload, error) {
	resp, err := c.presignImageUpload.CallUnary(ctx, connect.NewRequest(&PresignImageUploadRequest{
		ProductID:   productID,
		ContentType: contentType,
	}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}
