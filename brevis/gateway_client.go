package brevis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/brevis-network/brevis-sdk/sdk/proto/gwproto"
	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// GatewayClient queries the Brevis gateway directly. It is used to follow up
// on queries after the BrevisApp that created them is gone.
type GatewayClient struct {
	c    gwproto.GatewayClient
	conn *grpc.ClientConn
}

var _ StatusQuerier = &GatewayClient{}

// NewGatewayClient dials the gateway over TLS unless plaintext is set.
func NewGatewayClient(url string, plaintext bool) (*GatewayClient, error) {
	if url == "" {
		url = DefaultGatewayURL
	}
	creds := credentials.NewTLS(&tls.Config{})
	if plaintext {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.Dial(url, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("grpc.Dial %s err: %w", url, err)
	}
	return &GatewayClient{c: gwproto.NewGatewayClient(conn), conn: conn}, nil
}

func (c *GatewayClient) QueryStatus(ctx context.Context, key QueryKey, dstChainId uint64) (QueryStatus, common.Hash, error) {
	resp, err := c.c.GetQueryStatus(ctx, &gwproto.GetQueryStatusRequest{
		QueryKey: &gwproto.QueryKey{
			QueryHash: key.QueryHash.Hex(),
			Nonce:     key.Nonce,
		},
		TargetChainId: dstChainId,
	})
	if err != nil {
		return QueryPending, common.Hash{}, err
	}
	if resp.Err != nil {
		return QueryPending, common.Hash{}, fmt.Errorf("invalid resp, code %s msg %s", resp.Err.GetCode(), resp.Err.GetMsg())
	}
	switch resp.Status {
	case gwproto.QueryStatus_QS_COMPLETE:
		return QueryComplete, common.HexToHash(resp.TxHash), nil
	case gwproto.QueryStatus_QS_FAILED:
		return QueryFailed, common.Hash{}, nil
	default:
		return QueryPending, common.Hash{}, nil
	}
}

func (c *GatewayClient) Close() error {
	return c.conn.Close()
}
