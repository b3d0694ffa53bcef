package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"svcmarket/internal/ledger"
	"svcmarket/internal/model"
	"svcmarket/internal/service"
)

// Server exposes the marketplace over gRPC. It also accepts events from a
// remote GrpcBus and hands them to the recorder, acting as the event worker
// when the bus provider is grpc.
type Server struct {
	svc      service.MarketService
	recorder service.EventRecorder
	srv      *grpc.Server
	addr     string
}

// NewServer builds the gRPC server. recorder may be nil, in which case the
// EventService is not registered.
func NewServer(addr string, svc service.MarketService, recorder service.EventRecorder) *Server {
	s := &Server{svc: svc, recorder: recorder, addr: addr, srv: grpc.NewServer()}
	RegisterMarketplaceServer(s.srv, s)
	if recorder != nil {
		RegisterEventServiceServer(s.srv, s)
	}
	return s
}

func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	slog.Info("gRPC server is running", "addr", s.addr)
	return s.srv.Serve(lis)
}

func (s *Server) Stop(ctx context.Context) error {
	s.srv.GracefulStop()
	return nil
}

// callerFrom prefers the authenticated identity in metadata over the one in
// the request body.
func callerFrom(ctx context.Context, fallback string) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(CallerMetadataKey); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return fallback
}

func response(res *model.Result, err error) (*OperationResponse, error) {
	if err != nil {
		return &OperationResponse{Success: false, Code: codeOf(err), ErrorMessage: err.Error()}, nil
	}
	return &OperationResponse{Success: true, Seq: res.Seq, Code: ledger.CodeOK}, nil
}

func codeOf(err error) string {
	if errors.Is(err, service.ErrInvalidRequest) {
		return "INVALID_REQUEST"
	}
	return ledger.Code(err)
}

func (s *Server) AddListing(ctx context.Context, req *model.AddListingRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.AddListing(ctx, *req))
}

func (s *Server) RemoveListing(ctx context.Context, req *model.RemoveListingRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.RemoveListing(ctx, *req))
}

func (s *Server) Purchase(ctx context.Context, req *model.PurchaseRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.Purchase(ctx, *req))
}

func (s *Server) RequestRefund(ctx context.Context, req *model.RefundRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.RequestRefund(ctx, *req))
}

func (s *Server) UpdateConfig(ctx context.Context, req *model.ConfigUpdateRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.UpdateConfig(ctx, *req))
}

func (s *Server) Issue(ctx context.Context, req *model.IssueRequest) (*OperationResponse, error) {
	req.Caller = callerFrom(ctx, req.Caller)
	return response(s.svc.Issue(ctx, *req))
}

func (s *Server) GetConfig(ctx context.Context, _ *GetConfigRequest) (*model.ConfigView, error) {
	cfg, err := s.svc.GetConfig(ctx)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return cfg, nil
}

func (s *Server) GetAccount(ctx context.Context, req *GetAccountRequest) (*model.AccountView, error) {
	acc, err := s.svc.GetAccount(ctx, req.AccountID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return acc, nil
}

// Publish receives an event from a remote GrpcBus.
func (s *Server) Publish(ctx context.Context, req *EventRequest) (*EventResponse, error) {
	if !strings.HasPrefix(req.Topic, model.EventTopicPrefix) {
		return nil, status.Errorf(codes.InvalidArgument, "unknown topic %q", req.Topic)
	}
	var event model.LedgerEvent
	if err := json.Unmarshal(req.Payload, &event); err != nil {
		return nil, status.Error(codes.InvalidArgument, fmt.Sprintf("decode event: %v", err))
	}
	if err := s.recorder.Record(ctx, event); err != nil {
		slog.Error("grpc: failed to record event", "event_id", event.ID, "seq", event.Seq, "error", err)
		return &EventResponse{Success: false}, nil
	}
	return &EventResponse{Success: true}, nil
}
