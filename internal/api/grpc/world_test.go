package grpc

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/arkilian/worlddb/internal/dataset/datasettest"
	"github.com/arkilian/worlddb/internal/model"
	"github.com/arkilian/worlddb/internal/repository"
	"github.com/arkilian/worlddb/internal/world"
)

func dialWorld(t *testing.T) *grpc.ClientConn {
	t.Helper()
	s := datasettest.OpenWorld(t)
	cities, err := repository.NewCityRepository(s)
	if err != nil {
		t.Fatal(err)
	}
	countries, err := repository.NewCountryRepository(s)
	if err != nil {
		t.Fatal(err)
	}

	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(NewServer(world.NewService(cities, countries, nil), 10))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestClient_MostPopulated(t *testing.T) {
	client := NewClient(dialWorld(t))
	ctx := context.Background()

	tests := []struct {
		limit int
		want  int
	}{
		{limit: 0, want: 10},
		{limit: 1, want: 1},
		{limit: 5, want: 5},
	}
	for _, tt := range tests {
		rows, err := client.MostPopulated(ctx, tt.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tt.limit, err)
		}
		if len(rows) != tt.want {
			t.Errorf("limit %d: got %d rows, want %d", tt.limit, len(rows), tt.want)
		}
		for i := 1; i < len(rows); i++ {
			if rows[i].Population > rows[i-1].Population {
				t.Errorf("limit %d: row %d out of order", tt.limit, i)
			}
		}
	}

	rows, err := client.MostPopulated(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := model.PopulousCity{CityName: "Mumbai (Bombay)", Population: 10500000, CountryName: "India"}
	if rows[0] != want {
		t.Errorf("first = %+v", rows[0])
	}

	if _, err := client.MostPopulated(ctx, -1); status.Code(err) != codes.InvalidArgument {
		t.Errorf("negative limit: got %v", err)
	}
}

func TestClient_GetCity(t *testing.T) {
	client := NewClient(dialWorld(t))
	ctx := context.Background()

	city, ok, err := client.GetCity(ctx, 34)
	if err != nil || !ok {
		t.Fatalf("GetCity(34): ok=%v err=%v", ok, err)
	}
	want := model.City{ID: 34, CountryCode: "ALB", Name: "Tirana", District: "Tirana", Population: 270000}
	if city != want {
		t.Errorf("city = %+v", city)
	}

	if _, ok, err := client.GetCity(ctx, 999999); ok || err != nil {
		t.Errorf("unknown city: ok=%v err=%v", ok, err)
	}
}

func TestInvalidArguments(t *testing.T) {
	conn := dialWorld(t)
	ctx := context.Background()

	tests := []struct {
		method string
		req    map[string]interface{}
	}{
		{method: mostPopulatedMethod, req: map[string]interface{}{"limit": "ten"}},
		{method: mostPopulatedMethod, req: map[string]interface{}{"limit": 2.5}},
		{method: getCityMethod, req: map[string]interface{}{}},
		{method: getCityMethod, req: map[string]interface{}{"id": "34"}},
	}
	for _, tt := range tests {
		in, err := structpb.NewStruct(tt.req)
		if err != nil {
			t.Fatal(err)
		}
		var out structpb.Struct
		if tt.method == mostPopulatedMethod {
			err = conn.Invoke(ctx, tt.method, in, new(structpb.ListValue))
		} else {
			err = conn.Invoke(ctx, tt.method, in, &out)
		}
		if status.Code(err) != codes.InvalidArgument {
			t.Errorf("%s %v: got %v", tt.method, tt.req, err)
		}
	}
}

func TestHealth(t *testing.T) {
	resp, err := healthpb.NewHealthClient(dialWorld(t)).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.Status)
	}
}
