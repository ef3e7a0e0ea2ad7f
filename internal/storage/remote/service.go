// Package remote exposes a storage.Provider over gRPC and implements the
// Cloud storage kind as a client of that service.
//
// The service has no generated stubs: every method takes and returns a
// google.protobuf.Struct, described by the hand-written ServiceDesc below.
package remote

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"persistence-engine/internal/storage"
)

const ServiceName = "persistence.v1.Storage"

const (
	methodSave       = "Save"
	methodLoad       = "Load"
	methodDelete     = "Delete"
	methodExists     = "Exists"
	methodListKeys   = "ListKeys"
	methodClear      = "Clear"
	methodStatistics = "Statistics"
)

// Wire field names.
const (
	fieldKey        = "key"
	fieldData       = "data"
	fieldResult     = "result"
	fieldExists     = "exists"
	fieldKeys       = "keys"
	fieldStatistics = "statistics"
)

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

type handlerFunc func(ctx context.Context, p storage.Provider, req *structpb.Struct) (*structpb.Struct, error)

// ServiceDesc registers any storage.Provider as the service implementation.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*storage.Provider)(nil),
	Methods: []grpc.MethodDesc{
		method(methodSave, handleSave),
		method(methodLoad, handleLoad),
		method(methodDelete, handleDelete),
		method(methodExists, handleExists),
		method(methodListKeys, handleListKeys),
		method(methodClear, handleClear),
		method(methodStatistics, handleStatistics),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "persistence/v1/storage.proto",
}

func method(name string, fn handlerFunc) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			p := srv.(storage.Provider)
			if interceptor == nil {
				return fn(ctx, p, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return fn(ctx, p, req.(*structpb.Struct))
			})
		},
	}
}

func RegisterStorageServer(s grpc.ServiceRegistrar, p storage.Provider) {
	s.RegisterService(&ServiceDesc, p)
}

func handleSave(ctx context.Context, p storage.Provider, req *structpb.Struct) (*structpb.Struct, error) {
	data, err := bytesField(req, fieldData)
	if err != nil {
		return nil, err
	}
	return response(p.Save(ctx, stringField(req, fieldKey), data)), nil
}

func handleLoad(ctx context.Context, p storage.Provider, req *structpb.Struct) (*structpb.Struct, error) {
	data, result := p.Load(ctx, stringField(req, fieldKey))
	resp := response(result)
	if result.OK() {
		resp.Fields[fieldData] = bytesValue(data)
	}
	return resp, nil
}

func handleDelete(ctx context.Context, p storage.Provider, req *structpb.Struct) (*structpb.Struct, error) {
	return response(p.Delete(ctx, stringField(req, fieldKey))), nil
}

func handleExists(ctx context.Context, p storage.Provider, req *structpb.Struct) (*structpb.Struct, error) {
	exists, result := p.Exists(ctx, stringField(req, fieldKey))
	resp := response(result)
	resp.Fields[fieldExists] = structpb.NewBoolValue(exists)
	return resp, nil
}

func handleListKeys(ctx context.Context, p storage.Provider, _ *structpb.Struct) (*structpb.Struct, error) {
	keys, result := p.ListKeys(ctx)
	resp := response(result)
	values := make([]*structpb.Value, len(keys))
	for i, k := range keys {
		values[i] = structpb.NewStringValue(k)
	}
	resp.Fields[fieldKeys] = structpb.NewListValue(&structpb.ListValue{Values: values})
	return resp, nil
}

func handleClear(ctx context.Context, p storage.Provider, _ *structpb.Struct) (*structpb.Struct, error) {
	return response(p.Clear(ctx)), nil
}

func handleStatistics(ctx context.Context, p storage.Provider, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, result := p.Statistics(ctx)
	resp := response(result)
	encoded, err := statisticsValue(stats)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode statistics: %v", err)
	}
	resp.Fields[fieldStatistics] = encoded
	return resp, nil
}

func request(key string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldKey: structpb.NewStringValue(key),
	}}
}

func response(r storage.Result) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldResult: structpb.NewStringValue(r.String()),
	}}
}

// resultOf reads the result name; anything unrecognised is Failed.
func resultOf(s *structpb.Struct) storage.Result {
	r, ok := storage.ParseResult(stringField(s, fieldResult))
	if !ok {
		return storage.Failed
	}
	return r
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func bytesValue(b []byte) *structpb.Value {
	return structpb.NewStringValue(base64.StdEncoding.EncodeToString(b))
}

func bytesField(s *structpb.Struct, name string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(stringField(s, name))
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "field %s: %v", name, err)
	}
	return b, nil
}

// statisticsValue converts through the JSON form of storage.Statistics.
func statisticsValue(stats storage.Statistics) (*structpb.Value, error) {
	raw, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, err
	}
	return structpb.NewStructValue(s), nil
}

func statisticsFrom(v *structpb.Value) (storage.Statistics, error) {
	var stats storage.Statistics
	if v.GetStructValue() == nil {
		return stats, fmt.Errorf("%w: response carries no statistics", storage.ErrCorrupted)
	}
	raw, err := v.GetStructValue().MarshalJSON()
	if err != nil {
		return stats, err
	}
	if err := json.Unmarshal(raw, &stats); err != nil {
		return stats, fmt.Errorf("%w: %w", storage.ErrCorrupted, err)
	}
	return stats, nil
}
