package qdrant

import (
	"context"
	"errors"
	"testing"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/store"
)

// mockPoints records requests and plays back canned responses.
type mockPoints struct {
	upserts  []*pb.UpsertPoints
	deletes  []*pb.DeletePoints
	queries  []*pb.QueryPoints
	searches []*pb.SearchPoints
	counts   []*pb.CountPoints

	queryResp  *pb.QueryResponse
	searchResp *pb.SearchResponse
	countResp  *pb.CountResponse
	err        error
}

func (m *mockPoints) Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserts = append(m.upserts, in)
	return &pb.PointsOperationResponse{}, m.err
}

func (m *mockPoints) Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deletes = append(m.deletes, in)
	return &pb.PointsOperationResponse{}, m.err
}

func (m *mockPoints) Query(ctx context.Context, in *pb.QueryPoints, opts ...grpc.CallOption) (*pb.QueryResponse, error) {
	m.queries = append(m.queries, in)
	if m.err != nil {
		return nil, m.err
	}
	if m.queryResp != nil {
		return m.queryResp, nil
	}
	return &pb.QueryResponse{}, nil
}

func (m *mockPoints) Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searches = append(m.searches, in)
	if m.err != nil {
		return nil, m.err
	}
	if m.searchResp != nil {
		return m.searchResp, nil
	}
	return &pb.SearchResponse{}, nil
}

func (m *mockPoints) Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error) {
	m.counts = append(m.counts, in)
	if m.err != nil {
		return nil, m.err
	}
	if m.countResp != nil {
		return m.countResp, nil
	}
	return &pb.CountResponse{}, nil
}

// mockCollections serves a fixed collection listing.
type mockCollections struct {
	existing []string
	creates  []*pb.CreateCollection
	deletes  []*pb.DeleteCollection
	gets     []*pb.GetCollectionInfoRequest
	err      error
}

func (m *mockCollections) List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (m *mockCollections) Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.creates = append(m.creates, in)
	return &pb.CollectionOperationResponse{}, m.err
}

func (m *mockCollections) Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deletes = append(m.deletes, in)
	return &pb.CollectionOperationResponse{}, m.err
}

func (m *mockCollections) Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	m.gets = append(m.gets, in)
	return &pb.GetCollectionInfoResponse{}, m.err
}

func newTestDriver() (*Driver, *mockPoints, *mockCollections) {
	points := &mockPoints{}
	collections := &mockCollections{}
	return NewWithClients(points, collections), points, collections
}

func docRow() orm.Row {
	return orm.Row{
		"id":        "2b1c2e44-9b5e-4f10-b8a7-2d7b9f3b4a01",
		"title":     "go",
		"views":     int64(12),
		"rating":    4.5,
		"published": true,
		"created":   time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		"attrs":     map[string]any{"lang": "en"},
		"embedding": []float32{0.1, 0.9},
	}
}

func TestCreateCollection(t *testing.T) {
	d, _, collections := newTestDriver()

	if err := d.CreateCollection(context.Background(), docSchema()); err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	if len(collections.creates) != 1 {
		t.Fatalf("creates = %d, want 1", len(collections.creates))
	}
	req := collections.creates[0]
	if req.GetCollectionName() != "docs" {
		t.Errorf("name = %q", req.GetCollectionName())
	}
	params := req.GetVectorsConfig().GetParams()
	if params.GetSize() != 2 || params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("vector params = %v", params)
	}
}

func TestCreateCollectionIdempotent(t *testing.T) {
	d, _, collections := newTestDriver()
	collections.existing = []string{"docs"}

	if err := d.CreateCollection(context.Background(), docSchema()); err != nil {
		t.Fatalf("CreateCollection on existing: %v", err)
	}
	if len(collections.creates) != 0 {
		t.Errorf("creates = %d, want 0", len(collections.creates))
	}
}

func TestHasCollection(t *testing.T) {
	d, _, collections := newTestDriver()
	collections.existing = []string{"docs", "other"}

	ok, err := d.HasCollection(context.Background(), "docs")
	if err != nil || !ok {
		t.Errorf("HasCollection(docs) = %v, %v", ok, err)
	}
	ok, err = d.HasCollection(context.Background(), "missing")
	if err != nil || ok {
		t.Errorf("HasCollection(missing) = %v, %v", ok, err)
	}
}

func TestUpsertEncodesPoint(t *testing.T) {
	d, points, _ := newTestDriver()

	if err := d.Upsert(context.Background(), "docs", docSchema(), []orm.Row{docRow()}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if len(points.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(points.upserts))
	}
	req := points.upserts[0]
	if !req.GetWait() {
		t.Error("upsert does not wait for durability")
	}
	if len(req.GetPoints()) != 1 {
		t.Fatalf("points = %d, want 1", len(req.GetPoints()))
	}

	p := req.GetPoints()[0]
	if got := p.GetId().GetUuid(); got != "2b1c2e44-9b5e-4f10-b8a7-2d7b9f3b4a01" {
		t.Errorf("point id = %q", got)
	}
	if vec := p.GetVectors().GetVector().GetData(); len(vec) != 2 || vec[1] != 0.9 {
		t.Errorf("vector = %v", vec)
	}

	payload := p.GetPayload()
	wantValues := map[string]*pb.Value{
		"id":        {Kind: &pb.Value_StringValue{StringValue: "2b1c2e44-9b5e-4f10-b8a7-2d7b9f3b4a01"}},
		"title":     {Kind: &pb.Value_StringValue{StringValue: "go"}},
		"views":     {Kind: &pb.Value_IntegerValue{IntegerValue: 12}},
		"rating":    {Kind: &pb.Value_DoubleValue{DoubleValue: 4.5}},
		"published": {Kind: &pb.Value_BoolValue{BoolValue: true}},
		"created":   {Kind: &pb.Value_StringValue{StringValue: "2026-08-29T10:00:00Z"}},
		"attrs":     {Kind: &pb.Value_StringValue{StringValue: `{"lang":"en"}`}},
	}
	for key, want := range wantValues {
		if !proto.Equal(payload[key], want) {
			t.Errorf("payload[%s] = %v, want %v", key, payload[key], want)
		}
	}
	if _, ok := payload["embedding"]; ok {
		t.Error("vector leaked into the payload")
	}
}

func TestInsertDelegatesToUpsert(t *testing.T) {
	d, points, _ := newTestDriver()
	if err := d.Insert(context.Background(), "docs", docSchema(), []orm.Row{docRow()}); err != nil {
		t.Fatal(err)
	}
	if len(points.upserts) != 1 {
		t.Errorf("upserts = %d, want 1", len(points.upserts))
	}
}

func TestUpsertBadPrimaryKey(t *testing.T) {
	d, points, _ := newTestDriver()

	row := docRow()
	row["id"] = ""
	err := d.Upsert(context.Background(), "docs", docSchema(), []orm.Row{row})
	if !errors.Is(err, orm.ErrSerialization) {
		t.Errorf("err = %v, want ErrSerialization", err)
	}
	if len(points.upserts) != 0 {
		t.Error("bad row reached the store")
	}
}

func TestQueryRequestAndDecode(t *testing.T) {
	d, points, _ := newTestDriver()
	points.queryResp = &pb.QueryResponse{Result: []*pb.ScoredPoint{{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "u-1"}},
		Payload: map[string]*pb.Value{
			"title":   {Kind: &pb.Value_StringValue{StringValue: "go"}},
			"views":   {Kind: &pb.Value_IntegerValue{IntegerValue: 3}},
			"created": {Kind: &pb.Value_StringValue{StringValue: "2026-08-29T10:00:00Z"}},
			"attrs":   {Kind: &pb.Value_StringValue{StringValue: `{"lang":"en"}`}},
		},
		Vectors: &pb.VectorsOutput{VectorsOptions: &pb.VectorsOutput_Vector{
			Vector: &pb.VectorOutput{Data: []float32{0.1, 0.9}},
		}},
	}}}

	rows, err := d.Query(context.Background(), "docs", docSchema(), store.Query{
		Expr:    `views > 1`,
		Offset:  10,
		Limit:   50,
		OrderBy: "views",
		Desc:    true,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	req := points.queries[0]
	if req.GetLimit() != 50 || req.GetOffset() != 10 {
		t.Errorf("limit/offset = %d/%d", req.GetLimit(), req.GetOffset())
	}
	orderBy := req.GetQuery().GetOrderBy()
	if orderBy.GetKey() != "views" || orderBy.GetDirection() != pb.Direction_Desc {
		t.Errorf("order by = %v", orderBy)
	}
	if len(req.GetFilter().GetMust()) != 1 {
		t.Errorf("filter = %v", req.GetFilter())
	}
	if !req.GetWithPayload().GetEnable() {
		t.Error("full retrieval should enable the whole payload")
	}

	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(rows))
	}
	row := rows[0]
	if row["id"] != "u-1" {
		t.Errorf("id = %v (from point id)", row["id"])
	}
	if row["views"] != int64(3) {
		t.Errorf("views = %v (%T)", row["views"], row["views"])
	}
	if ts, ok := row["created"].(time.Time); !ok || !ts.Equal(time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %v", row["created"])
	}
	if m, ok := row["attrs"].(map[string]any); !ok || m["lang"] != "en" {
		t.Errorf("attrs = %v", row["attrs"])
	}
	if vec, ok := row["embedding"].([]float32); !ok || len(vec) != 2 {
		t.Errorf("embedding = %v", row["embedding"])
	}
}

func TestQueryUnboundedUsesMaxPage(t *testing.T) {
	d, points, _ := newTestDriver()
	if _, err := d.Query(context.Background(), "docs", docSchema(), store.Query{}); err != nil {
		t.Fatal(err)
	}
	if got := points.queries[0].GetLimit(); got != maxPage {
		t.Errorf("limit = %d, want %d", got, maxPage)
	}
}

func TestQueryProjection(t *testing.T) {
	d, points, _ := newTestDriver()
	if _, err := d.Query(context.Background(), "docs", docSchema(), store.Query{
		OutputFields: []string{"title"},
	}); err != nil {
		t.Fatal(err)
	}
	req := points.queries[0]
	include := req.GetWithPayload().GetInclude().GetFields()
	if len(include) != 1 || include[0] != "title" {
		t.Errorf("payload include = %v", include)
	}
	if req.GetWithVectors().GetEnable() {
		t.Error("projection without the vector field still fetches vectors")
	}
}

func TestQueryUnknownOrderBy(t *testing.T) {
	d, _, _ := newTestDriver()
	_, err := d.Query(context.Background(), "docs", docSchema(), store.Query{OrderBy: "nope"})
	if !errors.Is(err, orm.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
}

func TestCount(t *testing.T) {
	d, points, _ := newTestDriver()
	count := uint64(42)
	points.countResp = &pb.CountResponse{Result: &pb.CountResult{Count: count}}

	n, err := d.Count(context.Background(), "docs", docSchema(), `published == true`)
	if err != nil {
		t.Fatal(err)
	}
	if n != 42 {
		t.Errorf("count = %d, want 42", n)
	}
	req := points.counts[0]
	if !req.GetExact() {
		t.Error("count is not exact")
	}
	if len(req.GetFilter().GetMust()) != 1 {
		t.Errorf("filter = %v", req.GetFilter())
	}
}

func TestDeleteByExpr(t *testing.T) {
	d, points, _ := newTestDriver()
	if err := d.Delete(context.Background(), "docs", docSchema(), `views < 1`); err != nil {
		t.Fatal(err)
	}
	req := points.deletes[0]
	if !req.GetWait() {
		t.Error("delete does not wait for durability")
	}
	if req.GetPoints().GetFilter() == nil {
		t.Errorf("selector = %v, want a filter selector", req.GetPoints())
	}
}

func TestSearchRequest(t *testing.T) {
	d, points, _ := newTestDriver()
	points.searchResp = &pb.SearchResponse{Result: []*pb.ScoredPoint{{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: "best"}},
		Payload: map[string]*pb.Value{
			"title": {Kind: &pb.Value_StringValue{StringValue: "hit"}},
		},
	}}}

	rows, err := d.Search(context.Background(), "docs", docSchema(), store.Search{
		Vector: []float32{0.5, 0.5},
		Limit:  3,
		Expr:   `published == true`,
		Params: map[string]any{"hnsw_ef": 128, "exact": true},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	req := points.searches[0]
	if req.GetLimit() != 3 || len(req.GetVector()) != 2 {
		t.Errorf("request = limit %d vector %v", req.GetLimit(), req.GetVector())
	}
	if req.GetParams().GetHnswEf() != 128 || !req.GetParams().GetExact() {
		t.Errorf("params = %v", req.GetParams())
	}
	if len(req.GetFilter().GetMust()) != 1 {
		t.Errorf("filter = %v", req.GetFilter())
	}
	if len(rows) != 1 || rows[0]["id"] != "best" {
		t.Errorf("rows = %v", rows)
	}
}

func TestLoadProbesCollection(t *testing.T) {
	d, _, collections := newTestDriver()
	if err := d.Load(context.Background(), "docs"); err != nil {
		t.Fatal(err)
	}
	if len(collections.gets) != 1 || collections.gets[0].GetCollectionName() != "docs" {
		t.Errorf("gets = %v", collections.gets)
	}
	if err := d.Release(context.Background(), "docs"); err != nil {
		t.Errorf("Release: %v", err)
	}
}

func TestUnavailabilityClassification(t *testing.T) {
	d, points, _ := newTestDriver()

	for _, code := range []codes.Code{codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted} {
		points.err = status.Error(code, "down")
		_, err := d.Count(context.Background(), "docs", docSchema(), "")
		if !errors.Is(err, orm.ErrStoreUnavailable) {
			t.Errorf("code %s: err = %v, want ErrStoreUnavailable", code, err)
		}
	}

	points.err = status.Error(codes.InvalidArgument, "bad request")
	_, err := d.Count(context.Background(), "docs", docSchema(), "")
	if err == nil || errors.Is(err, orm.ErrStoreUnavailable) {
		t.Errorf("invalid argument misclassified: %v", err)
	}
}

func TestIntegerPrimaryKey(t *testing.T) {
	schema := orm.Schema{
		Collection: "events",
		Fields: []orm.Field{
			{Name: "seq", Kind: orm.KindInt64, PrimaryKey: true},
			{Name: "kind", Kind: orm.KindString},
		},
		Index: orm.IndexSpec{Metric: orm.MetricL2},
	}
	d, points, _ := newTestDriver()

	if err := d.Upsert(context.Background(), "events", schema, []orm.Row{{"seq": int64(7), "kind": "tick"}}); err != nil {
		t.Fatal(err)
	}
	if got := points.upserts[0].GetPoints()[0].GetId().GetNum(); got != 7 {
		t.Errorf("point id = %d, want 7", got)
	}

	err := d.Upsert(context.Background(), "events", schema, []orm.Row{{"seq": int64(-1), "kind": "tick"}})
	if !errors.Is(err, orm.ErrSerialization) {
		t.Errorf("negative key err = %v, want ErrSerialization", err)
	}
}
