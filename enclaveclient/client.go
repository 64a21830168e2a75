// Package enclaveclient talks to the escrow enclave: one JSON request per
// connection, half-closed after writing, answered by one JSON response.
package enclaveclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/mdlayher/vsock"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/enclaveapi"
)

const DefaultTimeout = 30 * time.Second

// Client sends requests to one enclave address.
type Client struct {
	addr    Address
	timeout time.Duration
	now     func() time.Time
}

func New(rawAddr string) (*Client, error) {
	addr, err := ParseAddress(rawAddr)
	if err != nil {
		return nil, err
	}
	if addr.Network == "vsock" && addr.CID == 0 {
		return nil, fmt.Errorf("vsock address %q needs a CID", rawAddr)
	}
	return &Client{addr: addr, timeout: DefaultTimeout, now: time.Now}, nil
}

// WithTimeout returns a copy of c with a different per-request timeout.
func (c *Client) WithTimeout(d time.Duration) *Client {
	cp := *c
	cp.timeout = d
	return &cp
}

func (c *Client) Address() Address { return c.addr }

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.addr.Network == "vsock" {
		return vsock.Dial(c.addr.CID, c.addr.Port, nil)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", c.addr.HostPort)
}

// Do sends req and decodes the response. A response with Success false is
// returned as is, not as an error; errors are transport failures.
func (c *Client) Do(ctx context.Context, req enclaveapi.EnclaveRequest) (*enclaveapi.EnclaveResponse, error) {
	if req.Timestamp.IsZero() {
		req.Timestamp = c.now().UTC()
	}
	if enclaveapi.Mutating(req.Type) && req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to enclave at %s: %w", c.addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", req.Type, err)
	}
	if err := closeWrite(conn); err != nil {
		return nil, fmt.Errorf("failed to half-close connection: %w", err)
	}

	var resp enclaveapi.EnclaveResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("enclave closed the connection without a response (worker pool full?)")
		}
		return nil, fmt.Errorf("failed to decode %s response: %w", req.Type, err)
	}
	return &resp, nil
}

func closeWrite(conn net.Conn) error {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}

// Ping checks that the enclave answers.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.Do(ctx, enclaveapi.EnclaveRequest{Type: enclaveapi.TypePing})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("ping failed: %s", resp.Message)
	}
	return nil
}

// Query sends a read-only request.
func (c *Client) Query(ctx context.Context, typ string, account core.Identity, offset, limit int) (*enclaveapi.EnclaveResponse, error) {
	return c.Do(ctx, enclaveapi.EnclaveRequest{Type: typ, Account: account, Offset: offset, Limit: limit})
}

// Call sends a mutating request as caller. amount may be nil for calls that
// carry no value.
func (c *Client) Call(ctx context.Context, typ string, caller core.Identity, amount *decimal.Decimal) (*enclaveapi.EnclaveResponse, error) {
	return c.Do(ctx, enclaveapi.EnclaveRequest{Type: typ, Caller: caller, Amount: amount})
}
