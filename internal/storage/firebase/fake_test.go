package firebase

import (
	stdjson "encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeRTDB mimics the parts of the Realtime Database REST API the store uses
type fakeRTDB struct {
	t          *testing.T
	collection string
	auth       string

	mu       sync.Mutex
	keys     []string
	nodes    map[string]map[string]stdjson.RawMessage
	nextKey  int
	requests []string
}

func newFakeRTDB(t *testing.T, collection string) (*fakeRTDB, *httptest.Server) {
	fake := &fakeRTDB{
		t:          t,
		collection: collection,
		nodes:      make(map[string]map[string]stdjson.RawMessage),
	}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server
}

func (f *fakeRTDB) put(key string, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var node map[string]stdjson.RawMessage
	if err := stdjson.Unmarshal([]byte(raw), &node); err != nil {
		f.t.Fatalf("invalid fixture: %v", err)
	}
	if _, ok := f.nodes[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.nodes[key] = node
}

func (f *fakeRTDB) requireAuth(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = token
}

func (f *fakeRTDB) node(key string) map[string]stdjson.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nodes[key]
}

func (f *fakeRTDB) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

func (f *fakeRTDB) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, r.Method)

	if f.auth != "" && r.URL.Query().Get("auth") != f.auth {
		http.Error(w, `{"error" : "Permission denied"}`, http.StatusUnauthorized)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/")
	if !strings.HasSuffix(path, ".json") {
		http.Error(w, `{"error" : "Invalid path"}`, http.StatusBadRequest)
		return
	}
	segments := strings.Split(strings.TrimSuffix(path, ".json"), "/")
	if segments[0] != f.collection || len(segments) > 2 {
		http.Error(w, `{"error" : "Unexpected path"}`, http.StatusBadRequest)
		return
	}

	if len(segments) == 1 {
		f.serveCollection(w, r)
		return
	}
	f.serveNode(w, r, segments[1])
}

func (f *fakeRTDB) serveCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if len(f.keys) == 0 {
			io.WriteString(w, "null")
			return
		}
		var b strings.Builder
		b.WriteByte('{')
		for i, key := range f.keys {
			if i > 0 {
				b.WriteByte(',')
			}
			raw, _ := stdjson.Marshal(f.nodes[key])
			fmt.Fprintf(&b, "%q:%s", key, raw)
		}
		b.WriteByte('}')
		io.WriteString(w, b.String())
	case http.MethodPost:
		node, ok := f.decodeBody(w, r)
		if !ok {
			return
		}
		f.nextKey++
		key := fmt.Sprintf("-Nfake%04d", f.nextKey)
		f.keys = append(f.keys, key)
		f.nodes[key] = node
		fmt.Fprintf(w, `{"name":%q}`, key)
	default:
		http.Error(w, `{"error" : "Method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (f *fakeRTDB) serveNode(w http.ResponseWriter, r *http.Request, key string) {
	node, exists := f.nodes[key]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			io.WriteString(w, "null")
			return
		}
		if r.URL.Query().Get("shallow") == "true" {
			shallow := make(map[string]bool, len(node))
			for field := range node {
				shallow[field] = true
			}
			stdjson.NewEncoder(w).Encode(shallow)
			return
		}
		stdjson.NewEncoder(w).Encode(node)
	case http.MethodPut, http.MethodPatch:
		body, ok := f.decodeBody(w, r)
		if !ok {
			return
		}
		if !exists {
			f.keys = append(f.keys, key)
			node = make(map[string]stdjson.RawMessage)
		}
		if r.Method == http.MethodPut {
			node = body
		} else {
			for field, value := range body {
				node[field] = value
			}
		}
		f.nodes[key] = node
		stdjson.NewEncoder(w).Encode(body)
	case http.MethodDelete:
		if exists {
			delete(f.nodes, key)
			for i, k := range f.keys {
				if k == key {
					f.keys = append(f.keys[:i], f.keys[i+1:]...)
					break
				}
			}
		}
		io.WriteString(w, "null")
	default:
		http.Error(w, `{"error" : "Method not allowed"}`, http.StatusMethodNotAllowed)
	}
}

func (f *fakeRTDB) decodeBody(w http.ResponseWriter, r *http.Request) (map[string]stdjson.RawMessage, bool) {
	if r.Header.Get("Content-Type") != "application/json" {
		f.t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
	}
	var node map[string]stdjson.RawMessage
	if err := stdjson.NewDecoder(r.Body).Decode(&node); err != nil {
		http.Error(w, `{"error" : "Invalid data; couldn't parse JSON object."}`, http.StatusBadRequest)
		return nil, false
	}
	if _, ok := node["id"]; ok {
		f.t.Errorf("record body must not carry an id field")
	}
	return node, true
}
