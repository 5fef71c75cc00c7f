package menu

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/rpc"
)

const (
	// ServiceName is the fully-qualified name of the menu service
	ServiceName = "kiosk.menu.v1.MenuService"

	ListCategoriesProcedure     = "/" + ServiceName + "/ListCategories"
	ValidateCartProcedure       = "/" + ServiceName + "/ValidateCart"
	ValidateProductProcedure    = "/" + ServiceName + "/ValidateProduct"
	PresignImageUploadProcedure = "/" + ServiceName + "/PresignImageUpload"
)

// ImageSigner hands out upload URLs for product images
type ImageSigner interface {
	PresignUpload(ctx context.Context, productID, contentType string) (*PresignedUpload, error)
}

// Service implements the MenuService Connect interface
type Service struct {
	images ImageSigner
}

// NewService creates the menu service. images may be nil when no bucket is
// configured; PresignImageUpload then fails with FailedPrecondition.
func NewService(images ImageSigner) *Service {
	return &Service{
		images: images,
	}
}

func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)

	mux := http.NewServeMux()
	mux.Handle(ListCategoriesProcedure, connect.NewUnaryHandler(ListCategoriesProcedure, svc.ListCategories, opts...))
	mux.Handle(ValidateCartProcedure, connect.NewUnaryHandler(ValidateCartProcedure, svc.ValidateCart, opts...))
	mux.Handle(ValidateProductProcedure, connect.NewUnaryHandler(ValidateProductProcedure, svc.ValidateProduct, opts...))
	mux.Handle(PresignImageUploadProcedure, connect.NewUnaryHandler(PresignImageUploadProcedure, svc.PresignImageUpload, opts...))
	return "/" + ServiceName + "/", mux
}

func (s *Service) ListCategories(_ context.Context, _ *connect.Request[ListCategoriesRequest]) (*connect.Response[ListCategoriesResponse], error) {
	return connect.NewResponse(&ListCategoriesResponse{Categories: Categories()}), nil
}

// ValidateCart reports line problems or the formatted subtotal
func (s *Service) ValidateCart(_ context.Context, req *connect.Request[ValidateCartRequest]) (*connect.Response[ValidateCartResponse], error) {
	resp, err := ValidateCart(*req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(&resp), nil
}

// ValidateProduct checks an admin's product draft
func (s *Service) ValidateProduct(ctx context.Context, req *connect.Request[ValidateProductRequest]) (*connect.Response[ValidateProductResponse], error) {
	if _, err := rpc.RequireRole(ctx, auth.RoleAdmin); err != nil {
		return nil, err
	}
	problems := ValidateProductDraft(req.Msg.Draft)
	return connect.NewResponse(&ValidateProductResponse{
		Valid:    len(problems) == 0,
		Problems: problems,
	}), nil
}

// PresignImageUpload returns a direct upload URL. Admin only.
func (s *Service) PresignImageUpload(ctx context.Context, req *connect.Request[PresignImageUploadRequest]) (*connect.Response[PresignedUpload], error) {
	claims, err := rpc.RequireRole(ctx, auth.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, ErrStorageDisabled)
	}

	upload, err := s.images.PresignUpload(ctx, req.Msg.ProductID, req.Msg.ContentType)
	if err != nil {
		if errors.Is(err, ErrUnsupportedImageType) || errors.Is(err, ErrInvalidProductID) {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		log.Error().Err(err).Str("product_id", req.Msg.ProductID).Msg("presign image upload")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	log.Info().
		Str("staff_id", claims.StaffID).
		Str("key", upload.Key).
		Msg("image upload presigned")
	return connect.NewResponse(upload), nil
}
