package wire

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "logmux.driver.v1.Driver"

// DriverServer is implemented by the container driver.
type DriverServer interface {
	CreateContainer(context.Context, *CreateContainerRequest) (*ContainerReply, error)
	OpenContainer(context.Context, *OpenContainerRequest) (*ContainerReply, error)
	DeleteContainer(context.Context, *DeleteContainerRequest) (*Ack, error)
	CloseContainer(context.Context, *HandleRequest) (*Ack, error)
	StatContainer(context.Context, *HandleRequest) (*StatsReply, error)
	ContainerFunctional(context.Context, *HandleRequest) (*FunctionalReply, error)

	CreateStream(context.Context, *StreamRequest) (*StreamReply, error)
	OpenStream(context.Context, *StreamRequest) (*StreamReply, error)
	DeleteStream(context.Context, *StreamRequest) (*Ack, error)
	AssignAlias(context.Context, *AliasRequest) (*Ack, error)
	ResolveAlias(context.Context, *AliasRequest) (*AliasReply, error)
	RemoveAlias(context.Context, *AliasRequest) (*Ack, error)

	Write(context.Context, *WriteRequest) (*Ack, error)
	ReadContaining(context.Context, *ReadRequest) (*ReadReply, error)
	ReadMulti(context.Context, *ReadRequest) (*ReadReply, error)
	Truncate(context.Context, *TruncateRequest) (*Ack, error)
	Control(context.Context, *ControlRequest) (*ControlReply, error)
	WaitNotification(context.Context, *WaitRequest) (*Ack, error)
	StreamFunctional(context.Context, *HandleRequest) (*FunctionalReply, error)
	CloseStream(context.Context, *HandleRequest) (*Ack, error)
}

func unary[Req, Resp any](name string, call func(DriverServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DriverServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: full}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DriverServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes the driver service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DriverServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("CreateContainer", DriverServer.CreateContainer),
		unary("OpenContainer", DriverServer.OpenContainer),
		unary("DeleteContainer", DriverServer.DeleteContainer),
		unary("CloseContainer", DriverServer.CloseContainer),
		unary("StatContainer", DriverServer.StatContainer),
		unary("ContainerFunctional", DriverServer.ContainerFunctional),
		unary("CreateStream", DriverServer.CreateStream),
		unary("OpenStream", DriverServer.OpenStream),
		unary("DeleteStream", DriverServer.DeleteStream),
		unary("AssignAlias", DriverServer.AssignAlias),
		unary("ResolveAlias", DriverServer.ResolveAlias),
		unary("RemoveAlias", DriverServer.RemoveAlias),
		unary("Write", DriverServer.Write),
		unary("ReadContaining", DriverServer.ReadContaining),
		unary("ReadMulti", DriverServer.ReadMulti),
		unary("Truncate", DriverServer.Truncate),
		unary("Control", DriverServer.Control),
		unary("WaitNotification", DriverServer.WaitNotification),
		unary("StreamFunctional", DriverServer.StreamFunctional),
		unary("CloseStream", DriverServer.CloseStream),
	},
	Metadata: "driver.proto",
}

// RegisterDriverServer registers srv on s.
func RegisterDriverServer(s grpc.ServiceRegistrar, srv DriverServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// DriverClient issues driver calls over a client connection using the
// driver codec.
type DriverClient struct {
	cc grpc.ClientConnInterface
}

// NewDriverClient wraps cc.
func NewDriverClient(cc grpc.ClientConnInterface) *DriverClient {
	return &DriverClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, c *DriverClient, name string, in *Req) (*Resp, error) {
	out := new(Resp)
	err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+name, in, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, FromStatus(err)
	}
	return out, nil
}

func (c *DriverClient) CreateContainer(ctx context.Context, in *CreateContainerRequest) (*ContainerReply, error) {
	return invoke[CreateContainerRequest, ContainerReply](ctx, c, "CreateContainer", in)
}

func (c *DriverClient) OpenContainer(ctx context.Context, in *OpenContainerRequest) (*ContainerReply, error) {
	return invoke[OpenContainerRequest, ContainerReply](ctx, c, "OpenContainer", in)
}

func (c *DriverClient) DeleteContainer(ctx context.Context, in *DeleteContainerRequest) (*Ack, error) {
	return invoke[DeleteContainerRequest, Ack](ctx, c, "DeleteContainer", in)
}

func (c *DriverClient) CloseContainer(ctx context.Context, in *HandleRequest) (*Ack, error) {
	return invoke[HandleRequest, Ack](ctx, c, "CloseContainer", in)
}

func (c *DriverClient) StatContainer(ctx context.Context, in *HandleRequest) (*StatsReply, error) {
	return invoke[HandleRequest, StatsReply](ctx, c, "StatContainer", in)
}

func (c *DriverClient) ContainerFunctional(ctx context.Context, in *HandleRequest) (*FunctionalReply, error) {
	return invoke[HandleRequest, FunctionalReply](ctx, c, "ContainerFunctional", in)
}

func (c *DriverClient) CreateStream(ctx context.Context, in *StreamRequest) (*StreamReply, error) {
	return invoke[StreamRequest, StreamReply](ctx, c, "CreateStream", in)
}

func (c *DriverClient) OpenStream(ctx context.Context, in *StreamRequest) (*StreamReply, error) {
	return invoke[StreamRequest, StreamReply](ctx, c, "OpenStream", in)
}

func (c *DriverClient) DeleteStream(ctx context.Context, in *StreamRequest) (*Ack, error) {
	return invoke[StreamRequest, Ack](ctx, c, "DeleteStream", in)
}

func (c *DriverClient) AssignAlias(ctx context.Context, in *AliasRequest) (*Ack, error) {
	return invoke[AliasRequest, Ack](ctx, c, "AssignAlias", in)
}

func (c *DriverClient) ResolveAlias(ctx context.Context, in *AliasRequest) (*AliasReply, error) {
	return invoke[AliasRequest, AliasReply](ctx, c, "ResolveAlias", in)
}

func (c *DriverClient) RemoveAlias(ctx context.Context, in *AliasRequest) (*Ack, error) {
	return invoke[AliasRequest, Ack](ctx, c, "RemoveAlias", in)
}

func (c *DriverClient) Write(ctx context.Context, in *WriteRequest) (*Ack, error) {
	return invoke[WriteRequest, Ack](ctx, c, "Write", in)
}

func (c *DriverClient) ReadContaining(ctx context.Context, in *ReadRequest) (*ReadReply, error) {
	return invoke[ReadRequest, ReadReply](ctx, c, "ReadContaining", in)
}

func (c *DriverClient) ReadMulti(ctx context.Context, in *ReadRequest) (*ReadReply, error) {
	return invoke[ReadRequest, ReadReply](ctx, c, "ReadMulti", in)
}

func (c *DriverClient) Truncate(ctx context.Context, in *TruncateRequest) (*Ack, error) {
	return invoke[TruncateRequest, Ack](ctx, c, "Truncate", in)
}

func (c *DriverClient) Control(ctx context.Context, in *ControlRequest) (*ControlReply, error) {
	return invoke[ControlRequest, ControlReply](ctx, c, "Control", in)
}

func (c *DriverClient) WaitNotification(ctx context.Context, in *WaitRequest) (*Ack, error) {
	return invoke[WaitRequest, Ack](ctx, c, "WaitNotification", in)
}

func (c *DriverClient) StreamFunctional(ctx context.Context, in *HandleRequest) (*FunctionalReply, error) {
	return invoke[HandleRequest, FunctionalReply](ctx, c, "StreamFunctional", in)
}

func (c *DriverClient) CloseStream(ctx context.Context, in *HandleRequest) (*Ack, error) {
	return invoke[HandleRequest, Ack](ctx, c, "CloseStream", in)
}
