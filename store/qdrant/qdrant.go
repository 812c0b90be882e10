// Package qdrant implements the store.Driver boundary against Qdrant's gRPC
// API.
//
// Row values cross the wire as point payloads keyed by field name; the
// primary key doubles as the point id, so string primary keys must be UUIDs
// (orm.NewID) and integer primary keys must be non-negative. The vector
// field, when declared, becomes the point vector.
package qdrant

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vormlabs/vorm/codec"
	"github.com/vormlabs/vorm/orm"
	"github.com/vormlabs/vorm/store"

	"golang.org/x/time/rate"
)

// maxPage caps a single query page when the caller asks for an unbounded
// retrieval.
const maxPage = 16384

// PointsAPI is the slice of Qdrant's points service the driver uses.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Query(ctx context.Context, in *pb.QueryPoints, opts ...grpc.CallOption) (*pb.QueryResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the slice of Qdrant's collections service the driver uses.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Get(ctx context.Context, in *pb.GetCollectionInfoRequest, opts ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error)
}

// Driver talks to Qdrant. It implements store.Driver.
type Driver struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	limiter     *rate.Limiter
}

// Option customizes a Driver.
type Option func(*Driver)

// WithRateLimit bounds outgoing store calls to r per second with the given
// burst. Zero r disables limiting.
func WithRateLimit(r float64, burst int) Option {
	return func(d *Driver) {
		if r > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(r), burst)
		}
	}
}

// New creates a Driver connected to Qdrant at the given gRPC address.
func New(addr string, opts ...Option) (*Driver, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	d := &Driver{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// NewWithClients creates a Driver on pre-built service clients. Used by tests.
func NewWithClients(points PointsAPI, collections CollectionsAPI, opts ...Option) *Driver {
	d := &Driver{points: points, collections: collections}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close closes the underlying gRPC connection.
func (d *Driver) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

func (d *Driver) wait(ctx context.Context) error {
	if d.limiter == nil {
		return nil
	}
	return d.limiter.Wait(ctx)
}

// wrapRPC classifies a gRPC failure. Connectivity-shaped codes are wrapped
// in orm.ErrStoreUnavailable so the engine can retry them; everything else
// propagates as-is.
func wrapRPC(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("qdrant: %s: %w: %w", op, orm.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("qdrant: %s: %w", op, err)
}

func distanceOf(m orm.Metric) (pb.Distance, error) {
	switch m {
	case orm.MetricL2:
		return pb.Distance_Euclid, nil
	case orm.MetricIP:
		return pb.Distance_Dot, nil
	case orm.MetricCosine:
		return pb.Distance_Cosine, nil
	}
	return pb.Distance_UnknownDistance, &orm.SchemaError{Reason: fmt.Sprintf("unsupported metric %s", m)}
}

// CreateCollection creates the collection for schema if it does not exist.
// Creation is idempotent: an existing collection with the same name is left
// untouched.
func (d *Driver) CreateCollection(ctx context.Context, schema orm.Schema) error {
	ok, err := d.HasCollection(ctx, schema.Collection)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	var vectors *pb.VectorsConfig
	if vf, has := schema.VectorField(); has {
		dist, err := distanceOf(schema.Index.Metric)
		if err != nil {
			return err
		}
		vectors = &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(vf.Dim),
					Distance: dist,
				},
			},
		}
	}

	if err := d.wait(ctx); err != nil {
		return err
	}
	_, err = d.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: schema.Collection,
		VectorsConfig:  vectors,
	})
	if err != nil {
		return wrapRPC("create collection "+schema.Collection, err)
	}
	return nil
}

// DropCollection deletes the collection.
func (d *Driver) DropCollection(ctx context.Context, name string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	if _, err := d.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return wrapRPC("drop collection "+name, err)
	}
	return nil
}

// HasCollection reports whether the collection exists.
func (d *Driver) HasCollection(ctx context.Context, name string) (bool, error) {
	if err := d.wait(ctx); err != nil {
		return false, err
	}
	list, err := d.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, wrapRPC("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			return true, nil
		}
	}
	return false, nil
}

// Insert stores rows as new points. Qdrant's write primitive is an upsert,
// so a row whose primary key collides with an existing point replaces it;
// keeping inserts fresh is the caller's contract.
func (d *Driver) Insert(ctx context.Context, collection string, schema orm.Schema, rows []orm.Row) error {
	return d.upsert(ctx, "insert", collection, schema, rows)
}

// Upsert stores rows, replacing any existing points with the same primary key.
func (d *Driver) Upsert(ctx context.Context, collection string, schema orm.Schema, rows []orm.Row) error {
	return d.upsert(ctx, "upsert", collection, schema, rows)
}

func (d *Driver) upsert(ctx context.Context, op, collection string, schema orm.Schema, rows []orm.Row) error {
	if len(rows) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(rows))
	for i, row := range rows {
		p, err := encodePoint(schema, row)
		if err != nil {
			return err
		}
		points[i] = p
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	wait := true
	_, err := d.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return wrapRPC(fmt.Sprintf("%s %d points", op, len(points)), err)
	}
	return nil
}

// Delete removes all points matching expr. An empty expr matches everything.
func (d *Driver) Delete(ctx context.Context, collection string, schema orm.Schema, expr string) error {
	filter, err := CompileExpr(schema, expr)
	if err != nil {
		return err
	}
	if err := d.wait(ctx); err != nil {
		return err
	}
	wait := true
	_, err = d.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return wrapRPC("delete by expr", err)
	}
	return nil
}

// Count returns the exact number of points matching expr.
func (d *Driver) Count(ctx context.Context, collection string, schema orm.Schema, expr string) (int64, error) {
	filter, err := CompileExpr(schema, expr)
	if err != nil {
		return 0, err
	}
	if err := d.wait(ctx); err != nil {
		return 0, err
	}
	exact := true
	resp, err := d.points.Count(ctx, &pb.CountPoints{
		CollectionName: collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, wrapRPC("count", err)
	}
	return int64(resp.GetResult().GetCount()), nil
}

// Query retrieves rows matching q.Expr with offset/limit paging and optional
// field ordering.
func (d *Driver) Query(ctx context.Context, collection string, schema orm.Schema, q store.Query) ([]orm.Row, error) {
	filter, err := CompileExpr(schema, q.Expr)
	if err != nil {
		return nil, err
	}

	limit := uint64(maxPage)
	if q.Limit > 0 {
		limit = uint64(q.Limit)
	}
	req := &pb.QueryPoints{
		CollectionName: collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    payloadSelector(q.OutputFields),
		WithVectors:    vectorSelector(schema, q.OutputFields),
	}
	if q.Offset > 0 {
		offset := uint64(q.Offset)
		req.Offset = &offset
	}
	if q.OrderBy != "" {
		if _, ok := schema.Field(q.OrderBy); !ok {
			return nil, fmt.Errorf("qdrant: order by %q: %w: unknown field", q.OrderBy, orm.ErrInvalidQuery)
		}
		dir := pb.Direction_Asc
		if q.Desc {
			dir = pb.Direction_Desc
		}
		req.Query = &pb.Query{
			Variant: &pb.Query_OrderBy{
				OrderBy: &pb.OrderBy{Key: q.OrderBy, Direction: &dir},
			},
		}
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.points.Query(ctx, req)
	if err != nil {
		return nil, wrapRPC("query", err)
	}

	rows := make([]orm.Row, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		row, err := decodePoint(schema, p.GetId(), p.GetPayload(), p.GetVectors())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Search performs k-NN similarity search, best match first.
func (d *Driver) Search(ctx context.Context, collection string, schema orm.Schema, s store.Search) ([]orm.Row, error) {
	filter, err := CompileExpr(schema, s.Expr)
	if err != nil {
		return nil, err
	}

	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         s.Vector,
		Limit:          uint64(s.Limit),
		Filter:         filter,
		WithPayload:    payloadSelector(s.OutputFields),
		WithVectors:    vectorSelector(schema, s.OutputFields),
		Params:         searchParams(s.Params),
	}

	if err := d.wait(ctx); err != nil {
		return nil, err
	}
	resp, err := d.points.Search(ctx, req)
	if err != nil {
		return nil, wrapRPC("search", err)
	}

	rows := make([]orm.Row, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		row, err := decodePoint(schema, p.GetId(), p.GetPayload(), p.GetVectors())
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Load verifies the collection is reachable. Qdrant keeps collections
// queryable without an explicit load step, so this is a warm-up probe that
// surfaces unavailability early; Release is its no-op counterpart.
func (d *Driver) Load(ctx context.Context, collection string) error {
	if err := d.wait(ctx); err != nil {
		return err
	}
	if _, err := d.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: collection}); err != nil {
		return wrapRPC("load "+collection, err)
	}
	return nil
}

// Release frees store-side resources for the collection. No-op on Qdrant.
func (d *Driver) Release(ctx context.Context, collection string) error {
	return nil
}

func searchParams(params map[string]any) *pb.SearchParams {
	if len(params) == 0 {
		return nil
	}
	out := &pb.SearchParams{}
	if v, ok := params["hnsw_ef"]; ok {
		if n, ok := toUint64(v); ok {
			out.HnswEf = &n
		}
	}
	if v, ok := params["exact"]; ok {
		if b, ok := v.(bool); ok {
			out.Exact = &b
		}
	}
	return out
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case int:
		if n >= 0 {
			return uint64(n), true
		}
	case int64:
		if n >= 0 {
			return uint64(n), true
		}
	case uint64:
		return n, true
	case float64:
		if n >= 0 {
			return uint64(n), true
		}
	}
	return 0, false
}

func payloadSelector(outputFields []string) *pb.WithPayloadSelector {
	if len(outputFields) == 0 {
		return &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		}
	}
	return &pb.WithPayloadSelector{
		SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: outputFields},
		},
	}
}

func vectorSelector(schema orm.Schema, outputFields []string) *pb.WithVectorsSelector {
	vf, has := schema.VectorField()
	include := has && len(outputFields) == 0
	if has && !include {
		for _, f := range outputFields {
			if f == vf.Name {
				include = true
				break
			}
		}
	}
	return &pb.WithVectorsSelector{
		SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: include},
	}
}

// encodePoint converts a canonical row into a Qdrant point. The primary key
// becomes the point id and is also kept in the payload so filter expressions
// can reference it.
func encodePoint(schema orm.Schema, row orm.Row) (*pb.PointStruct, error) {
	pk := schema.PrimaryKey()
	id, err := pointID(pk, row[pk.Name])
	if err != nil {
		return nil, err
	}

	point := &pb.PointStruct{Id: id, Payload: make(map[string]*pb.Value, len(schema.Fields))}
	for _, f := range schema.Fields {
		v, ok := row[f.Name]
		if f.Kind == orm.KindFloatVector {
			if !ok || v == nil {
				continue
			}
			vec, ok := v.([]float32)
			if !ok || len(vec) != f.Dim {
				return nil, &orm.FieldError{Field: f.Name, Value: v, Wrapped: orm.ErrSerialization, Reason: "bad vector value"}
			}
			point.Vectors = &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
			}
			continue
		}
		if !ok || v == nil {
			continue
		}
		val, err := encodeValue(f, v)
		if err != nil {
			return nil, err
		}
		point.Payload[f.Name] = val
	}
	return point, nil
}

func pointID(pk orm.Field, v any) (*pb.PointId, error) {
	switch pk.Kind {
	case orm.KindString:
		s, ok := v.(string)
		if !ok || s == "" {
			return nil, &orm.FieldError{Field: pk.Name, Value: v, Wrapped: orm.ErrSerialization, Reason: "primary key is not a non-empty string"}
		}
		return &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: s}}, nil
	case orm.KindInt64:
		n, ok := v.(int64)
		if !ok || n < 0 {
			return nil, &orm.FieldError{Field: pk.Name, Value: v, Wrapped: orm.ErrSerialization, Reason: "primary key is not a non-negative integer"}
		}
		return &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(n)}}, nil
	}
	return nil, &orm.SchemaError{Field: pk.Name, Reason: "primary key must be a string or int64 field"}
}

func encodeValue(f orm.Field, v any) (*pb.Value, error) {
	switch f.Kind {
	case orm.KindInt64:
		if n, ok := v.(int64); ok {
			return &pb.Value{Kind: &pb.Value_IntegerValue{IntegerValue: n}}, nil
		}
	case orm.KindFloat64:
		if n, ok := v.(float64); ok {
			return &pb.Value{Kind: &pb.Value_DoubleValue{DoubleValue: n}}, nil
		}
	case orm.KindString:
		if s, ok := v.(string); ok {
			return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}, nil
		}
	case orm.KindBool:
		if b, ok := v.(bool); ok {
			return &pb.Value{Kind: &pb.Value_BoolValue{BoolValue: b}}, nil
		}
	case orm.KindTimestamp:
		if t, ok := v.(time.Time); ok {
			return &pb.Value{Kind: &pb.Value_StringValue{StringValue: t.Format(time.RFC3339Nano)}}, nil
		}
	case orm.KindJSON:
		if m, ok := v.(map[string]any); ok {
			data, err := codec.Default.Marshal(m)
			if err != nil {
				return nil, &orm.FieldError{Field: f.Name, Wrapped: orm.ErrSerialization, Reason: err.Error()}
			}
			return &pb.Value{Kind: &pb.Value_StringValue{StringValue: string(data)}}, nil
		}
	}
	return nil, &orm.FieldError{Field: f.Name, Value: v, Wrapped: orm.ErrSerialization, Reason: "value does not match kind " + f.Kind.String()}
}

// decodePoint converts a returned point back into a canonical row. Fields
// the selector excluded are simply absent.
func decodePoint(schema orm.Schema, id *pb.PointId, payload map[string]*pb.Value, vectors *pb.VectorsOutput) (orm.Row, error) {
	row := make(orm.Row, len(schema.Fields))
	pk := schema.PrimaryKey()

	for _, f := range schema.Fields {
		if f.Kind == orm.KindFloatVector {
			if data := vectors.GetVector().GetData(); len(data) > 0 {
				row[f.Name] = data
			}
			continue
		}
		val, ok := payload[f.Name]
		if !ok {
			continue
		}
		dv, err := decodeValue(f, val)
		if err != nil {
			return nil, err
		}
		row[f.Name] = dv
	}

	// The id is authoritative for the primary key when the payload selector
	// dropped it.
	if _, ok := row[pk.Name]; !ok && id != nil {
		switch pk.Kind {
		case orm.KindString:
			row[pk.Name] = id.GetUuid()
		case orm.KindInt64:
			row[pk.Name] = int64(id.GetNum())
		}
	}
	return row, nil
}

func decodeValue(f orm.Field, v *pb.Value) (any, error) {
	switch f.Kind {
	case orm.KindInt64:
		return v.GetIntegerValue(), nil
	case orm.KindFloat64:
		return v.GetDoubleValue(), nil
	case orm.KindString:
		return v.GetStringValue(), nil
	case orm.KindBool:
		return v.GetBoolValue(), nil
	case orm.KindTimestamp:
		t, err := time.Parse(time.RFC3339Nano, v.GetStringValue())
		if err != nil {
			return nil, &orm.FieldError{Field: f.Name, Value: v.GetStringValue(), Wrapped: orm.ErrDeserialization, Reason: "bad timestamp"}
		}
		return t, nil
	case orm.KindJSON:
		var m map[string]any
		if err := codec.Default.Unmarshal([]byte(v.GetStringValue()), &m); err != nil {
			return nil, &orm.FieldError{Field: f.Name, Wrapped: orm.ErrDeserialization, Reason: "bad json payload"}
		}
		return m, nil
	}
	return nil, &orm.FieldError{Field: f.Name, Wrapped: orm.ErrDeserialization, Reason: "unsupported kind"}
}
