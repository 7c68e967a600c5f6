// Package proxy streams upload and download traffic through to a
// randomly chosen IPFS node. Stateless, independent of chain or store.
// Grounded on original_source/src/routes/proxy.rs and
// src/utils/proxy.rs: hyper/reqwest's streaming request/response
// bodies translate directly to io.Copy over http.Client, the same
// "don't buffer the whole body" intent in Go's idiom.
package proxy

import (
	"io"
	"math/rand"
	"net/http"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/anspar/hosq/internal/ipfs"
)

// Proxy picks a node uniformly at random per request (bypassing
// randomness entirely for a single configured node) and streams
// requests/responses through to it without buffering.
type Proxy struct {
	Nodes []ipfs.Node
	HTTP  *http.Client
}

// New returns a Proxy using httpClient, or http.DefaultClient if nil.
func New(nodes []ipfs.Node, httpClient *http.Client) *Proxy {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Proxy{Nodes: nodes, HTTP: httpClient}
}

func (p *Proxy) pickNode() ipfs.Node {
	if len(p.Nodes) == 1 {
		return p.Nodes[0]
	}
	return p.Nodes[rand.Intn(len(p.Nodes))]
}

// Upload streams the multipart request body from r into
// POST {node}/api/v0/add?... and copies the node's JSON response back
// to w. dir selects the directory-wrapping query template, per
// spec.md §4.5.
func (p *Proxy) Upload(w http.ResponseWriter, r *http.Request, dir bool) {
	reqID := uuid.NewString()
	node := p.pickNode()

	query := "progress=false&pin=false&cid-version=1&quieter=true"
	if dir {
		query = "progress=false&pin=false&wrap-with-directory=true&cid-version=1&silent=true"
	}
	target := node.APIURL + "/api/v0/add?" + query

	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodPost, target, r.Body)
	if err != nil {
		log.Error("proxy: building upload request failed", "request_id", reqID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	proxyReq.Header = r.Header.Clone()
	if node.Login != "" {
		proxyReq.SetBasicAuth(node.Login, node.Password)
	}

	resp, err := p.HTTP.Do(proxyReq)
	if err != nil {
		log.Error("proxy: upload to node failed", "request_id", reqID, "node", node.APIURL, "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Error("proxy: streaming upload response failed", "request_id", reqID, "err", err)
	}
}

// Download streams GET {node.gateway}/ipfs/<path> back to the client,
// copying every response header byte-for-byte, per spec.md §4.5.
func (p *Proxy) Download(w http.ResponseWriter, r *http.Request, path string) {
	reqID := uuid.NewString()
	node := p.pickNode()
	target := node.Gateway + "/ipfs/" + path

	proxyReq, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		log.Error("proxy: building download request failed", "request_id", reqID, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	proxyReq.Header = r.Header.Clone()
	if node.Login != "" {
		proxyReq.SetBasicAuth(node.Login, node.Password)
	}

	resp, err := p.HTTP.Do(proxyReq)
	if err != nil {
		log.Error("proxy: fetching from gateway failed", "request_id", reqID, "node", node.Gateway, "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		log.Error("proxy: streaming download response failed", "request_id", reqID, "err", err)
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
