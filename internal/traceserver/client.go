package traceserver

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// #region client
// Client reads run traces from a remote alloop.TraceService.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to addr without transport security.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// ListRuns returns up to limit runs, newest first. limit <= 0 uses the
// server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, listRunsMethod, wrapperspb.Int32(int32(limit)), out); err != nil {
		return nil, fmt.Errorf("ListRuns RPC: %w", err)
	}
	items := out.GetFields()["runs"].GetListValue().GetValues()
	runs := make([]RunInfo, 0, len(items))
	for _, v := range items {
		runs = append(runs, decodeRun(v.GetStructValue()))
	}
	return runs, nil
}

// GetRun fetches one run with its ledger.
func (c *Client) GetRun(ctx context.Context, id string) (RunDetail, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, getRunMethod, wrapperspb.String(id), out); err != nil {
		return RunDetail{}, fmt.Errorf("GetRun RPC: %w", err)
	}
	detail := RunDetail{RunInfo: decodeRun(out)}
	for _, v := range out.GetFields()["ledger"].GetListValue().GetValues() {
		detail.Ledger = append(detail.Ledger, decodeCycle(v.GetStructValue()))
	}
	return detail, nil
}

// #endregion client
