package ledger

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"cosmossdk.io/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"

	"github.com/bayareaeagle/VBJC/pkg/bridge"
)

// gRPC method names of the watch/submit services.
const (
	methodWatchTx   = "/utxorpc.v1alpha.watch.WatchService/WatchTx"
	methodSubmitTx  = "/utxorpc.v1alpha.submit.SubmitService/SubmitTx"
	methodWaitForTx = "/utxorpc.v1alpha.submit.SubmitService/WaitForTx"
)

const codecName = "bridge-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec carries the adapter's wire structs over gRPC. The node side
// negotiates the same subtype, so no generated protobuf types are needed.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                               { return codecName }

// apiKeyCreds attaches the dmtr-api-key header to every RPC.
type apiKeyCreds struct {
	key    string
	secure bool
}

func (c apiKeyCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"dmtr-api-key": c.key}, nil
}

func (c apiKeyCreds) RequireTransportSecurity() bool { return c.secure }

// DialConfig describes one chain endpoint.
type DialConfig struct {
	URL       string
	APIKey    string
	Bech32HRP string
	AssetType string
}

// Client is the production ledger adapter. It implements both Watcher and
// Submitter; the bridge dials it once for the source chain and once for the
// destination chain.
type Client struct {
	conn      *grpc.ClientConn
	logger    log.Logger
	hrp       string
	assetType string
}

// Dial connects to a UTxORPC endpoint. https endpoints use TLS and require
// the API key to travel over the secure transport.
func Dial(cfg DialConfig, logger log.Logger) (*Client, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.URL, err)
	}

	secure := u.Scheme == "https"
	target := u.Host
	if !strings.Contains(target, ":") {
		if secure {
			target += ":443"
		} else {
			target += ":80"
		}
	}

	transport := insecure.NewCredentials()
	if secure {
		transport = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(transport),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCreds{key: cfg.APIKey, secure: secure}))
	}

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	return &Client{
		conn:      conn,
		logger:    logger.With("module", "bridge/ledger", "endpoint", target),
		hrp:       cfg.Bech32HRP,
		assetType: cfg.AssetType,
	}, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

type watchTxRequest struct {
	Addresses [][]byte `json:"addresses"`
}

// WatchAddresses opens the per-address transaction stream and emits one
// deposit per matching output. The error channel receives exactly one error
// when the stream dies; decode failures are logged and skipped.
func (c *Client) WatchAddresses(ctx context.Context, addresses []string) (<-chan bridge.DepositEvent, <-chan error) {
	events := make(chan bridge.DepositEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		dec := newDecoder(c.hrp, c.assetType, addresses)

		raw, err := addressBytes(addresses)
		if err != nil {
			errs <- err
			return
		}

		desc := &grpc.StreamDesc{StreamName: "WatchTx", ServerStreams: true}
		stream, err := c.conn.NewStream(ctx, desc, methodWatchTx)
		if err != nil {
			errs <- classify(err)
			return
		}
		if err := stream.SendMsg(&watchTxRequest{Addresses: raw}); err != nil {
			errs <- classify(err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- classify(err)
			return
		}

		for {
			var ev TxEvent
			if err := stream.RecvMsg(&ev); err != nil {
				errs <- classify(err)
				return
			}
			deposits, err := dec.DepositsFromEvent(ev)
			if err != nil {
				c.logger.Warn("skipping undecodable transaction event", "error", err)
				continue
			}
			for _, d := range deposits {
				select {
				case events <- d:
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
		}
	}()

	return events, errs
}

type submitTxRequest struct {
	Tx []byte `json:"tx"`
}

type submitTxResponse struct {
	Ref []byte `json:"ref"`
}

// SubmitTx submits a signed transaction and returns the ledger's hash for it
// as lowercase hex.
func (c *Client) SubmitTx(ctx context.Context, txBytes []byte) (string, error) {
	var resp submitTxResponse
	if err := c.conn.Invoke(ctx, methodSubmitTx, &submitTxRequest{Tx: txBytes}, &resp); err != nil {
		return "", classify(err)
	}
	if len(resp.Ref) == 0 {
		return "", fmt.Errorf("submit returned empty transaction reference")
	}
	return hex.EncodeToString(resp.Ref), nil
}

type waitForTxRequest struct {
	Ref []byte `json:"ref"`
}

type waitForTxResponse struct {
	Stage Stage `json:"stage"`
}

// WaitForTx streams confirmation stages for a submitted transaction until the
// stream ends or the context is cancelled.
func (c *Client) WaitForTx(ctx context.Context, txHash string) (<-chan Stage, <-chan error) {
	stages := make(chan Stage)
	errs := make(chan error, 1)

	go func() {
		defer close(stages)
		defer close(errs)

		ref, err := hex.DecodeString(txHash)
		if err != nil {
			errs <- fmt.Errorf("invalid transaction hash %q: %w", txHash, err)
			return
		}

		desc := &grpc.StreamDesc{StreamName: "WaitForTx", ServerStreams: true}
		stream, err := c.conn.NewStream(ctx, desc, methodWaitForTx)
		if err != nil {
			errs <- classify(err)
			return
		}
		if err := stream.SendMsg(&waitForTxRequest{Ref: ref}); err != nil {
			errs <- classify(err)
			return
		}
		if err := stream.CloseSend(); err != nil {
			errs <- classify(err)
			return
		}

		for {
			var resp waitForTxResponse
			if err := stream.RecvMsg(&resp); err != nil {
				errs <- classify(err)
				return
			}
			select {
			case stages <- resp.Stage:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return stages, errs
}
