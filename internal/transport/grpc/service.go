package grpc

import (
	"context"

	"google.golang.org/grpc"

	"svcmarket/internal/model"
)

const (
	marketplaceService = "svcmarket.v1.Marketplace"
	eventService       = "svcmarket.v1.EventService"
)

// CallerMetadataKey carries the authenticated account identity.
const CallerMetadataKey = "x-account-id"

type OperationResponse struct {
	Success      bool   `json:"success"`
	Seq          uint64 `json:"seq,omitempty"`
	Code         string `json:"code"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type GetConfigRequest struct{}

type GetAccountRequest struct {
	AccountID string `json:"account_id"`
}

type EventRequest struct {
	Topic   string `json:"topic"`
	Payload []byte `json:"payload"`
}

type EventResponse struct {
	Success bool `json:"success"`
}

// MarketplaceServer is the server API for svcmarket.v1.Marketplace.
type MarketplaceServer interface {
	AddListing(context.Context, *model.AddListingRequest) (*OperationResponse, error)
	RemoveListing(context.Context, *model.RemoveListingRequest) (*OperationResponse, error)
	Purchase(context.Context, *model.PurchaseRequest) (*OperationResponse, error)
	RequestRefund(context.Context, *model.RefundRequest) (*OperationResponse, error)
	UpdateConfig(context.Context, *model.ConfigUpdateRequest) (*OperationResponse, error)
	Issue(context.Context, *model.IssueRequest) (*OperationResponse, error)
	GetConfig(context.Context, *GetConfigRequest) (*model.ConfigView, error)
	GetAccount(context.Context, *GetAccountRequest) (*model.AccountView, error)
}

// EventServiceServer is the server API for svcmarket.v1.EventService.
type EventServiceServer interface {
	Publish(context.Context, *EventRequest) (*EventResponse, error)
}

// unary builds a method descriptor that decodes Req and dispatches to call.
func unary[S any, Req any, Resp any](service, method string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var marketplaceServiceDesc = grpc.ServiceDesc{
	ServiceName: marketplaceService,
	HandlerType: (*MarketplaceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(marketplaceService, "AddListing", MarketplaceServer.AddListing),
		unary(marketplaceService, "RemoveListing", MarketplaceServer.RemoveListing),
		unary(marketplaceService, "Purchase", MarketplaceServer.Purchase),
		unary(marketplaceService, "RequestRefund", MarketplaceServer.RequestRefund),
		unary(marketplaceService, "UpdateConfig", MarketplaceServer.UpdateConfig),
		unary(marketplaceService, "Issue", MarketplaceServer.Issue),
		unary(marketplaceService, "GetConfig", MarketplaceServer.GetConfig),
		unary(marketplaceService, "GetAccount", MarketplaceServer.GetAccount),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "svcmarket/v1/marketplace",
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: eventService,
	HandlerType: (*EventServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(eventService, "Publish", EventServiceServer.Publish),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "svcmarket/v1/events",
}

// RegisterMarketplaceServer registers srv on s.
func RegisterMarketplaceServer(s grpc.ServiceRegistrar, srv MarketplaceServer) {
	s.RegisterService(&marketplaceServiceDesc, srv)
}

// RegisterEventServiceServer registers srv on s.
func RegisterEventServiceServer(s grpc.ServiceRegistrar, srv EventServiceServer) {
	s.RegisterService(&eventServiceDesc, srv)
}

// MarketplaceClient calls svcmarket.v1.Marketplace over conn.
type MarketplaceClient struct {
	conn grpc.ClientConnInterface
}

func NewMarketplaceClient(conn grpc.ClientConnInterface) *MarketplaceClient {
	return &MarketplaceClient{conn: conn}
}

func invoke[Req any, Resp any](ctx context.Context, conn grpc.ClientConnInterface, service, method string, in *Req, opts ...grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := conn.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *MarketplaceClient) AddListing(ctx context.Context, in *model.AddListingRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.AddListingRequest, OperationResponse](ctx, c.conn, marketplaceService, "AddListing", in, opts...)
}

func (c *MarketplaceClient) RemoveListing(ctx context.Context, in *model.RemoveListingRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.RemoveListingRequest, OperationResponse](ctx, c.conn, marketplaceService, "RemoveListing", in, opts...)
}

func (c *MarketplaceClient) Purchase(ctx context.Context, in *model.PurchaseRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.PurchaseRequest, OperationResponse](ctx, c.conn, marketplaceService, "Purchase", in, opts...)
}

func (c *MarketplaceClient) RequestRefund(ctx context.Context, in *model.RefundRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.RefundRequest, OperationResponse](ctx, c.conn, marketplaceService, "RequestRefund", in, opts...)
}

func (c *MarketplaceClient) UpdateConfig(ctx context.Context, in *model.ConfigUpdateRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.ConfigUpdateRequest, OperationResponse](ctx, c.conn, marketplaceService, "UpdateConfig", in, opts...)
}

func (c *MarketplaceClient) Issue(ctx context.Context, in *model.IssueRequest, opts ...grpc.CallOption) (*OperationResponse, error) {
	return invoke[model.IssueRequest, OperationResponse](ctx, c.conn, marketplaceService, "Issue", in, opts...)
}

func (c *MarketplaceClient) GetConfig(ctx context.Context, opts ...grpc.CallOption) (*model.ConfigView, error) {
	return invoke[GetConfigRequest, model.ConfigView](ctx, c.conn, marketplaceService, "GetConfig", &GetConfigRequest{}, opts...)
}

func (c *MarketplaceClient) GetAccount(ctx context.Context, accountID string, opts ...grpc.CallOption) (*model.AccountView, error) {
	return invoke[GetAccountRequest, model.AccountView](ctx, c.conn, marketplaceService, "GetAccount", &GetAccountRequest{AccountID: accountID}, opts...)
}
