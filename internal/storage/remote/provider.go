package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"persistence-engine/internal/config"
	"persistence-engine/internal/logging"
	"persistence-engine/internal/serializer"
	"persistence-engine/internal/storage"
)

// Provider is the Cloud storage kind: every operation is a call to a remote
// Server. The connection is established lazily, so an unreachable server
// surfaces as NetworkError on the first operation rather than in Initialize.
type Provider struct {
	life  storage.Lifecycle
	touch storage.Touch
	sink  logging.Sink

	dialOpts []grpc.DialOption
	conn     *grpc.ClientConn
	timeout  time.Duration
	ser      serializer.Serializer
}

var (
	_ storage.Provider           = (*Provider)(nil)
	_ storage.SerializerProvider = (*Provider)(nil)
)

type Option func(*Provider)

// WithDialOptions adds options used when connecting, e.g. a custom dialer.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(p *Provider) { p.dialOpts = append(p.dialOpts, opts...) }
}

func NewProvider(sink logging.Sink, opts ...Option) *Provider {
	if sink == nil {
		sink = logging.Nop()
	}
	p := &Provider{
		sink:     sink,
		dialOpts: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithUnaryInterceptor(propagateIDs),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Kind() storage.Kind { return storage.Cloud }

func (p *Provider) Serializer() serializer.Serializer { return p.ser }

func (p *Provider) Initialize(ctx context.Context, cfg *config.Config) storage.Result {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return p.life.Initialize(func() storage.Result {
		opts, err := serializer.OptionsFromConfig(cfg)
		if err != nil {
			return p.fail(ctx, "initialize", "", err)
		}
		p.ser = serializer.NewBaseline(serializer.Binary, opts)

		conn, err := grpc.NewClient(cfg.Remote.Address, p.dialOpts...)
		if err != nil {
			return p.fail(ctx, "initialize", "", err)
		}
		p.conn = conn
		p.timeout = cfg.Remote.Timeout

		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Remote provider initialized", "address", cfg.Remote.Address)
		return storage.Success
	})
}

// call invokes method and returns the response together with its Result.
func (p *Provider) call(ctx context.Context, method, key string, req *structpb.Struct) (*structpb.Struct, storage.Result) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	start := time.Now()
	resp := new(structpb.Struct)
	if err := p.conn.Invoke(ctx, fullMethod(method), req, resp); err != nil {
		return nil, p.fail(ctx, method, key, err)
	}
	result := resultOf(resp)
	logging.Operation(ctx, p.sink, storage.Cloud.String(), method, key, time.Since(start), result.String())
	return resp, result
}

func (p *Provider) Save(ctx context.Context, key string, data []byte) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return p.fail(ctx, "save", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	req := request(key)
	req.Fields[fieldData] = bytesValue(data)
	_, result := p.call(ctx, methodSave, key, req)
	if result.OK() {
		p.touch.Modified()
	}
	return result
}

func (p *Provider) Load(ctx context.Context, key string) ([]byte, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return nil, p.fail(ctx, "load", key, err)
	}

	resp, result := p.call(ctx, methodLoad, key, request(key))
	if !result.OK() {
		return nil, result
	}
	data, err := bytesField(resp, fieldData)
	if err != nil {
		return nil, p.fail(ctx, "load", key, fmt.Errorf("%w: %w", storage.ErrCorrupted, err))
	}
	p.touch.Accessed()
	return data, storage.Success
}

func (p *Provider) Delete(ctx context.Context, key string) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return p.fail(ctx, "delete", key, err)
	}
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	_, result := p.call(ctx, methodDelete, key, request(key))
	if result.OK() {
		p.touch.Modified()
	}
	return result
}

func (p *Provider) Exists(ctx context.Context, key string) (bool, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return false, storage.NotInitialized
	}
	defer done()
	if err := storage.ValidateKey(key); err != nil {
		return false, p.fail(ctx, "exists", key, err)
	}

	resp, result := p.call(ctx, methodExists, key, request(key))
	if !result.OK() {
		return false, result
	}
	return resp.GetFields()[fieldExists].GetBoolValue(), storage.Success
}

func (p *Provider) ListKeys(ctx context.Context) ([]string, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return nil, storage.NotInitialized
	}
	defer done()

	resp, result := p.call(ctx, methodListKeys, "", &structpb.Struct{})
	if !result.OK() {
		return nil, result
	}
	values := resp.GetFields()[fieldKeys].GetListValue().GetValues()
	keys := make([]string, 0, len(values))
	for _, v := range values {
		keys = append(keys, v.GetStringValue())
	}
	return keys, storage.Success
}

func (p *Provider) Clear(ctx context.Context) storage.Result {
	done, ok := p.life.Enter()
	if !ok {
		return storage.NotInitialized
	}
	defer done()
	if r, cancelled := storage.Cancelled(ctx); cancelled {
		return r
	}

	_, result := p.call(ctx, methodClear, "", &structpb.Struct{})
	if result.OK() || result == storage.PartialSuccess {
		p.touch.Modified()
	}
	return result
}

// Statistics reports the remote medium's counts under the Cloud kind.
func (p *Provider) Statistics(ctx context.Context) (storage.Statistics, storage.Result) {
	done, ok := p.life.Enter()
	if !ok {
		return storage.Statistics{}, storage.NotInitialized
	}
	defer done()

	resp, result := p.call(ctx, methodStatistics, "", &structpb.Struct{})
	if resp == nil {
		return storage.Statistics{Kind: storage.Cloud, AvailableSpaceBytes: -1}, result
	}
	stats, err := statisticsFrom(resp.GetFields()[fieldStatistics])
	if err != nil {
		return storage.Statistics{Kind: storage.Cloud, AvailableSpaceBytes: -1}, p.fail(ctx, "statistics", "", err)
	}
	stats.Kind = storage.Cloud
	p.touch.Apply(&stats)
	return stats, result
}

func (p *Provider) Dispose(ctx context.Context) storage.Result {
	return p.life.Dispose(func() storage.Result {
		if err := p.conn.Close(); err != nil {
			return p.fail(ctx, "dispose", "", err)
		}
		p.conn = nil
		p.sink.Log(ctx, slog.LevelInfo, logging.CategoryStorage, "Remote provider disposed")
		return storage.Success
	})
}

// resultFromStatus maps transport failures. Status codes raised by the server
// handlers keep their meaning; everything else is a network problem.
func resultFromStatus(err error) storage.Result {
	if errors.Is(err, context.Canceled) {
		return storage.Failed
	}
	st, ok := status.FromError(err)
	if !ok {
		return storage.ResultFromError(err)
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return storage.InvalidData
	case codes.NotFound:
		return storage.NotFound
	case codes.PermissionDenied, codes.Unauthenticated:
		return storage.Unauthorized
	case codes.Unimplemented:
		return storage.NotImplemented
	case codes.Canceled, codes.Internal, codes.Unknown, codes.DataLoss:
		return storage.Failed
	default:
		return storage.NetworkError
	}
}

func (p *Provider) fail(ctx context.Context, op, key string, err error) storage.Result {
	result := resultFromStatus(err)
	p.sink.LogException(ctx, slog.LevelError, logging.CategoryStorage, "Remote operation failed", err,
		"operation", op,
		"key", key,
		"result", result.String(),
	)
	return result
}

// propagateIDs forwards the caller's correlation and request IDs so the
// server logs under the same IDs.
func propagateIDs(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
	if pairs := logging.CorrelationPairs(ctx); len(pairs) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, pairs...)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}
