package staff

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/kiosk/go/internal/models"
	"github.com/mcdev12/kiosk/go/internal/presence"
	"github.com/mcdev12/kiosk/go/internal/rpc"
)

const (
	// ServiceName is the fully-qualified name of the staff service
	ServiceName = "kiosk.staff.v1.StaffService"

	RegisterProcedure           = "/" + ServiceName + "/Register"
	LoginProcedure              = "/" + ServiceName + "/Login"
	CheckKitchenAccessProcedure = "/" + ServiceName + "/CheckKitchenAccess"
)

// StaffApp defines what the service layer needs from the staff application
type StaffApp interface {
	Register(ctx context.Context, req RegisterRequest) (*models.Staff, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResponse, error)
	CheckKitchenAccess(ctx context.Context) CheckKitchenAccessResponse
}

// Service implements the StaffService Connect interface
type Service struct {
	app StaffApp
}

// NewService creates a new staff Connect service
func NewService(app StaffApp) *Service {
	return &Service{
		app: app,
	}
}

// NewHandler builds the HTTP handler serving every StaffService procedure
// and returns the path prefix to mount it on
func NewHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = rpc.HandlerOptions(opts...)

	mux := http.NewServeMux()
	mux.Handle(RegisterProcedure, connect.NewUnaryHandler(RegisterProcedure, svc.Register, opts...))
	mux.Handle(LoginProcedure, connect.NewUnaryHandler(LoginProcedure, svc.Login, opts...))
	mux.Handle(CheckKitchenAccessProcedure, connect.NewUnaryHandler(CheckKitchenAccessProcedure, svc.CheckKitchenAccess, opts...))
	return "/" + ServiceName + "/", mux
}

// Register creates a staff account
func (s *Service) Register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error) {
	member, err := s.app.Register(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&RegisterResponse{
		Identity: presence.Identity{ID: member.ID.String(), Username: member.Username},
		Role:     string(member.Role),
	}), nil
}

// Login exchanges credentials for a token and identity
func (s *Service) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	resp, err := s.app.Login(ctx, *req.Msg)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(resp), nil
}

// CheckKitchenAccess reports whether the caller may use the kitchen display
func (s *Service) CheckKitchenAccess(ctx context.Context, _ *connect.Request[CheckKitchenAccessRequest]) (*connect.Response[CheckKitchenAccessResponse], error) {
	resp := s.app.CheckKitchenAccess(ctx)
	return connect.NewResponse(&resp), nil
}

func toConnectError(err error) error {
	var validation *ValidationError
	switch {
	case errors.As(err, &validation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrUsernameTaken):
		return connect.NewError(connect.CodeAlreadyExists, err)
	case errors.Is(err, ErrInvalidCredentials):
		return connect.NewError(connect.CodeUnauthenticated, err)
	case errors.Is(err, ErrRegistrationClosed):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
