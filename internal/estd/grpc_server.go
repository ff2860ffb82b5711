package estd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "pkengine.v1.EstimationService"

const (
	methodEstimate    = "/" + ServiceName + "/Estimate"
	methodGetEstimate = "/" + ServiceName + "/GetEstimate"
	methodPredict     = "/" + ServiceName + "/Predict"
)

// EstimationServer is the gRPC surface of the service. Messages are
// google.protobuf.Struct values holding the same JSON documents as the REST API.
type EstimationServer interface {
	Estimate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetEstimate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Predict(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// EstimationServiceDesc describes EstimationServer for grpc.Server.RegisterService
var EstimationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EstimationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Estimate", Handler: unaryHandler(methodEstimate, EstimationServer.Estimate)},
		{MethodName: "GetEstimate", Handler: unaryHandler(methodGetEstimate, EstimationServer.GetEstimate)},
		{MethodName: "Predict", Handler: unaryHandler(methodPredict, EstimationServer.Predict)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pkengine/v1/estimation.proto",
}

func unaryHandler(fullMethod string, call func(EstimationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(EstimationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(EstimationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// RegisterEstimationServer registers srv and a health service reporting it
// as serving.
func RegisterEstimationServer(s *grpc.Server, srv EstimationServer) *health.Server {
	s.RegisterService(&EstimationServiceDesc, srv)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

// EstimationGRPCServer implements EstimationServer on top of a Service
type EstimationGRPCServer struct {
	service *Service
}

func NewEstimationGRPCServer(service *Service) *EstimationGRPCServer {
	return &EstimationGRPCServer{service: service}
}

func (s *EstimationGRPCServer) Estimate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "case is required")
	}
	data, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, c, err := DecodeEstimateRequest(data)
	if err != nil {
		return nil, toStatus(err)
	}

	rec, err := s.service.Estimate(ctx, id, c)
	if err != nil {
		return nil, toStatus(err)
	}

	return toStruct(map[string]any{"estimate": rec})
}

func (s *EstimationGRPCServer) GetEstimate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["estimate_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "estimate_id is required")
	}
	rec, err := s.service.Get(id)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(map[string]any{"estimate": rec})
}

func (s *EstimationGRPCServer) Predict(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := protojson.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	var in PredictRequest
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid request: "+err.Error())
	}
	resp, err := s.service.Predict(&in)
	if err != nil {
		return nil, toStatus(err)
	}
	return toStruct(resp)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrEstimateNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrEstimateExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// toStruct converts a JSON-encodable value to a Struct
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode response: %v", err))
	}
	return out, nil
}
