// Package ipfs is a thin client over the subset of the Kubo HTTP API
// this system needs: pin, unpin and dag/stat. No retries, no
// connection pooling beyond what http.Client already gives us — the
// teacher's tutorials talk to RPC endpoints the same way, a bare
// *http.Client with no abstraction layer in between (see
// geth-14-explorer's client construction).
package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Node is one configured pinning target.
type Node struct {
	APIURL   string
	Gateway  string
	Login    string
	Password string
}

// Client wraps an *http.Client for IPFS node calls.
type Client struct {
	http *http.Client
}

// New returns a Client using the given http.Client, or http.DefaultClient
// if nil.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient}
}

func (c *Client) do(ctx context.Context, node Node, path string, query url.Values) (*http.Response, error) {
	u := fmt.Sprintf("%s%s?%s", node.APIURL, path, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if node.Login != "" {
		req.SetBasicAuth(node.Login, node.Password)
	}
	return c.http.Do(req)
}

// Pin calls POST {api_url}/api/v0/pin/add?arg=<cid>. Returns an error
// unless the node replies with a 2xx status.
func (c *Client) Pin(ctx context.Context, node Node, cid string) error {
	q := url.Values{"arg": []string{cid}}
	resp, err := c.do(ctx, node, "/api/v0/pin/add", q)
	if err != nil {
		return fmt.Errorf("pinning %s on %s: %w", cid, node.APIURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("pinning %s on %s: node returned %s", cid, node.APIURL, resp.Status)
	}
	return nil
}

// Unpin calls POST {api_url}/api/v0/pin/rm?arg=<cid>.
func (c *Client) Unpin(ctx context.Context, node Node, cid string) error {
	q := url.Values{"arg": []string{cid}}
	resp, err := c.do(ctx, node, "/api/v0/pin/rm", q)
	if err != nil {
		return fmt.Errorf("unpinning %s on %s: %w", cid, node.APIURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("unpinning %s on %s: node returned %s", cid, node.APIURL, resp.Status)
	}
	return nil
}

// DagStat is the subset of /api/v0/dag/stat's response this system
// cares about: the CID's total size in bytes.
type DagStat struct {
	Size      int64 `json:"Size"`
	NumBlocks int64 `json:"NumBlocks"`
}

// DagStat calls POST {api_url}/api/v0/dag/stat?arg=<cid>&progress=false,
// used by the admin pin-cid endpoint to decide whether a CID is small
// enough to grant a permanent pin rather than a fixed window.
func (c *Client) DagStat(ctx context.Context, node Node, cid string) (DagStat, error) {
	q := url.Values{"arg": []string{cid}, "progress": []string{"false"}}
	resp, err := c.do(ctx, node, "/api/v0/dag/stat", q)
	if err != nil {
		return DagStat{}, fmt.Errorf("dag stat %s on %s: %w", cid, node.APIURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return DagStat{}, fmt.Errorf("dag stat %s on %s: node returned %s", cid, node.APIURL, resp.Status)
	}

	var stat DagStat
	if err := json.NewDecoder(resp.Body).Decode(&stat); err != nil {
		return DagStat{}, fmt.Errorf("decoding dag stat response: %w", err)
	}
	return stat, nil
}
