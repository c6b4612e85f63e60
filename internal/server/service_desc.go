package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const ReviewServiceName = "claimsreview.v1.ReviewService"

// ReviewServiceServer is the review API. Requests carry their arguments as struct
// fields; state-returning calls answer with the session snapshot as a struct.
type ReviewServiceServer interface {
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Edit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reset(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Navigate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Save(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Refresh(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddLineItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveLineItem(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RenderRegion(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	Export(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
	ClearExport(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func unary[Resp any](name string, call func(ReviewServiceServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	fullMethod := FullMethod(name)
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ReviewServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ReviewServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// FullMethod returns the invoke path of a ReviewService method.
func FullMethod(name string) string { return "/" + ReviewServiceName + "/" + name }

var ReviewServiceDesc = grpc.ServiceDesc{
	ServiceName: ReviewServiceName,
	HandlerType: (*ReviewServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetState", ReviewServiceServer.GetState),
		unary("Open", ReviewServiceServer.Open),
		unary("Edit", ReviewServiceServer.Edit),
		unary("Reset", ReviewServiceServer.Reset),
		unary("Navigate", ReviewServiceServer.Navigate),
		unary("Save", ReviewServiceServer.Save),
		unary("Refresh", ReviewServiceServer.Refresh),
		unary("AddLineItem", ReviewServiceServer.AddLineItem),
		unary("RemoveLineItem", ReviewServiceServer.RemoveLineItem),
		unary("RenderRegion", ReviewServiceServer.RenderRegion),
		unary("Export", ReviewServiceServer.Export),
		unary("ClearExport", ReviewServiceServer.ClearExport),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "claimsreview/v1/review.proto",
}

func RegisterReviewServiceServer(s grpc.ServiceRegistrar, srv ReviewServiceServer) {
	s.RegisterService(&ReviewServiceDesc, srv)
}
