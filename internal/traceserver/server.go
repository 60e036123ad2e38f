package traceserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/danielpatrickdp/active-learning/internal/trace"
)

const (
	serviceName    = "alloop.TraceService"
	listRunsMethod = "/" + serviceName + "/ListRuns"
	getRunMethod   = "/" + serviceName + "/GetRun"

	// DefaultListLimit applies when a ListRuns request carries no limit.
	DefaultListLimit = 50
)

// #region service
// RunReader is the part of the trace store the service reads from.
type RunReader interface {
	ListRuns(limit int) ([]trace.RunRecord, error)
	GetRun(id string) (trace.RunRecord, error)
}

// TraceServiceServer is the server API of alloop.TraceService.
type TraceServiceServer interface {
	ListRuns(ctx context.Context, limit *wrapperspb.Int32Value) (*structpb.Struct, error)
	GetRun(ctx context.Context, id *wrapperspb.StringValue) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TraceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRuns", Handler: listRunsHandler},
		{MethodName: "GetRun", Handler: getRunHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "alloop/trace.proto",
}

// Register attaches the trace service backed by runs to s.
func Register(s *grpc.Server, runs RunReader, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	s.RegisterService(&serviceDesc, &server{runs: runs, log: log})
}

// #endregion service

// #region handlers
func listRunsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.Int32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TraceServiceServer).ListRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listRunsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TraceServiceServer).ListRuns(ctx, req.(*wrapperspb.Int32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func getRunHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TraceServiceServer).GetRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getRunMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TraceServiceServer).GetRun(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// #endregion handlers

// #region server
type server struct {
	runs RunReader
	log  *zap.Logger
}

func (s *server) ListRuns(_ context.Context, in *wrapperspb.Int32Value) (*structpb.Struct, error) {
	limit := int(in.GetValue())
	if limit <= 0 {
		limit = DefaultListLimit
	}
	recs, err := s.runs.ListRuns(limit)
	if err != nil {
		s.log.Error("list runs", zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	items := make([]interface{}, len(recs))
	for i, rec := range recs {
		items[i] = runFields(rec)
	}
	out, err := structpb.NewStruct(map[string]interface{}{"runs": items})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *server) GetRun(_ context.Context, in *wrapperspb.StringValue) (*structpb.Struct, error) {
	if in.GetValue() == "" {
		return nil, status.Error(codes.InvalidArgument, "run id required")
	}
	rec, err := s.runs.GetRun(in.GetValue())
	if errors.Is(err, trace.ErrNotFound) {
		return nil, status.Error(codes.NotFound, err.Error())
	}
	if err != nil {
		s.log.Error("get run", zap.String("run_id", in.GetValue()), zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}
	fields := runFields(rec)
	fields["ledger"] = ledgerFields(rec)
	out, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode run: %v", err))
	}
	return out, nil
}

// #endregion server
