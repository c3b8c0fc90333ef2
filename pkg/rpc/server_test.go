package rpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProvider is a JSON-RPC server answering canned results per method.
type fakeProvider struct {
	t       *testing.T
	mu      sync.Mutex
	results map[string]any
	errors  map[string]*RPCError
	calls   []rpcRequest
	paths   []string
}

func newFakeProvider(t *testing.T) (*fakeProvider, *httptest.Server) {
	t.Helper()
	fp := &fakeProvider{t: t, results: map[string]any{}, errors: map[string]*RPCError{}}
	srv := httptest.NewServer(http.HandlerFunc(fp.serve))
	t.Cleanup(srv.Close)
	return fp, srv
}

func (fp *fakeProvider) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	require.NoError(fp.t, json.NewDecoder(r.Body).Decode(&req))

	fp.mu.Lock()
	fp.calls = append(fp.calls, req)
	fp.paths = append(fp.paths, r.URL.Path)
	result, ok := fp.results[req.Method]
	rpcErr := fp.errors[req.Method]
	fp.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	switch {
	case rpcErr != nil:
		resp["error"] = rpcErr
	case ok:
		resp["result"] = result
	default:
		resp["error"] = &RPCError{Code: -32601, Message: "method not found"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func (fp *fakeProvider) methods() []string {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	out := make([]string, 0, len(fp.calls))
	for _, c := range fp.calls {
		out = append(out, c.Method)
	}
	return out
}

// rawJSON embeds a literal JSON document as a result.
func rawJSON(s string) json.RawMessage { return json.RawMessage(s) }
