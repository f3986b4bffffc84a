// Package grpc serves the world dataset over gRPC. Messages are
// google.protobuf.Struct values, so the service needs no generated code.
package grpc

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	werrors "github.com/arkilian/worlddb/internal/errors"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/observability"
	"github.com/arkilian/worlddb/internal/world"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "worlddb.World"

const (
	mostPopulatedMethod = "/" + ServiceName + "/MostPopulated"
	getCityMethod       = "/" + ServiceName + "/GetCity"
)

// WorldServer is the server API of worlddb.World.
type WorldServer interface {
	// MostPopulated takes {limit} and returns the ranking rows.
	MostPopulated(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error)
	// GetCity takes {id} and returns the city or NotFound.
	GetCity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes worlddb.World for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorldServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "MostPopulated", Handler: mostPopulatedHandler},
		{MethodName: "GetCity", Handler: getCityHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "worlddb/world.proto",
}

func mostPopulatedHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorldServer).MostPopulated(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: mostPopulatedMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorldServer).MostPopulated(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func getCityHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorldServer).GetCity(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCityMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorldServer).GetCity(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Server implements WorldServer on the world service.
type Server struct {
	service      *world.Service
	defaultLimit int
}

// NewServer creates a world gRPC server. A defaultLimit below 1 uses 10.
func NewServer(svc *world.Service, defaultLimit int) *Server {
	if defaultLimit < 1 {
		defaultLimit = 10
	}
	return &Server{service: svc, defaultLimit: defaultLimit}
}

// MostPopulated returns up to limit ranking rows.
func (s *Server) MostPopulated(ctx context.Context, req *structpb.Struct) (*structpb.ListValue, error) {
	limit := s.defaultLimit
	if v, ok := req.GetFields()["limit"]; ok {
		n, err := integerField("limit", v)
		if err != nil {
			return nil, err
		}
		limit = int(n)
	}

	rows, err := s.service.MostPopulated(ctx, limit)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}
	values := make([]interface{}, len(rows))
	for i, r := range rows {
		values[i] = map[string]interface{}{
			"cityName":    r.CityName,
			"population":  r.Population,
			"countryName": r.CountryName,
		}
	}
	list, err := structpb.NewList(values)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode rows: %v", err)
	}
	return list, nil
}

// GetCity returns one city.
func (s *Server) GetCity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	v, ok := req.GetFields()["id"]
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}
	id, err := integerField("id", v)
	if err != nil {
		return nil, err
	}

	city, found, err := s.service.City(ctx, id)
	if err != nil {
		return nil, statusFromError(ctx, err)
	}
	if !found {
		return nil, status.Errorf(codes.NotFound, "city %d not found", id)
	}
	return cityStruct(city)
}

func cityStruct(c model.City) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(map[string]interface{}{
		"id":          c.ID,
		"countryCode": c.CountryCode,
		"name":        c.Name,
		"district":    c.District,
		"population":  c.Population,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode city: %v", err)
	}
	return out, nil
}

func integerField(name string, v *structpb.Value) (int64, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}

func statusFromError(ctx context.Context, err error) error {
	if werrors.IsValidation(err) {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.Printf("RPC failed (request_id=%s): %v", extractRequestID(ctx), err)
	return status.Error(codes.Internal, err.Error())
}

// extractRequestID returns the x-request-id metadata value, or a fresh id.
func extractRequestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get("x-request-id"); len(ids) > 0 {
			return ids[0]
		}
	}
	return uuid.New().String()
}

// NewGRPCServer builds a grpc.Server with the world service, the standard
// health service and RPC metrics.
func NewGRPCServer(srv WorldServer, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	opts = append([]grpc.ServerOption{
		grpc.ChainUnaryInterceptor(observability.GRPCMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.GRPCMetrics.StreamServerInterceptor()),
	}, opts...)
	s := grpc.NewServer(opts...)
	s.RegisterService(&ServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	observability.GRPCMetrics.InitializeMetrics(s)
	return s, hs
}

// Client calls worlddb.World on an existing connection.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps a connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// MostPopulated fetches up to limit ranking rows. A limit of 0 lets the
// server apply its default.
func (c *Client) MostPopulated(ctx context.Context, limit int) ([]model.PopulousCity, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	if limit != 0 {
		req.Fields["limit"] = structpb.NewNumberValue(float64(limit))
	}
	out := new(structpb.ListValue)
	if err := c.conn.Invoke(ctx, mostPopulatedMethod, req, out); err != nil {
		return nil, err
	}

	rows := make([]model.PopulousCity, 0, len(out.GetValues()))
	for _, v := range out.GetValues() {
		f := v.GetStructValue().GetFields()
		rows = append(rows, model.PopulousCity{
			CityName:    f["cityName"].GetStringValue(),
			Population:  int64(f["population"].GetNumberValue()),
			CountryName: f["countryName"].GetStringValue(),
		})
	}
	return rows, nil
}

// GetCity fetches one city. A NotFound status is reported as absence.
func (c *Client) GetCity(ctx context.Context, id int64) (model.City, bool, error) {
	req := &structpb.Struct{Fields: map[string]*structpb.Value{
		"id": structpb.NewNumberValue(float64(id)),
	}}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getCityMethod, req, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return model.City{}, false, nil
		}
		return model.City{}, false, fmt.Errorf("get city %d: %w", id, err)
	}
	f := out.GetFields()
	return model.City{
		ID:          int64(f["id"].GetNumberValue()),
		CountryCode: f["countryCode"].GetStringValue(),
		Name:        f["name"].GetStringValue(),
		District:    f["district"].GetStringValue(),
		Population:  int64(f["population"].GetNumberValue()),
	}, true, nil
}
