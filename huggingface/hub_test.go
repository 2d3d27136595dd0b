package huggingface

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// fakeCommit is the commit main points at on the fake hub.
const fakeCommit = "4c2ab2d1a0e4f5b6c7d8e9f00112233445566778"

// fakeHub serves one repository with the given files.
type fakeHub struct {
	*httptest.Server
	repo      string
	commit    string
	files     map[string]string
	downloads atomic.Int32

	mu       sync.Mutex
	fail     map[string]int
	truncate map[string]int
	ranges   []string
}

// truncateNext makes the next n downloads of name stop halfway through the
// body.
func (h *fakeHub) truncateNext(name string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.truncate[name] = n
}

func (h *fakeHub) shouldTruncate(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.truncate[name] > 0 {
		h.truncate[name]--
		return true
	}
	return false
}

// failNext makes the next n downloads of name fail with 502.
func (h *fakeHub) failNext(name string, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fail[name] = n
}

func (h *fakeHub) shouldFail(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail[name] > 0 {
		h.fail[name]--
		return true
	}
	return false
}

func newFakeHub(t *testing.T, repo string, files map[string]string) *fakeHub {
	t.Helper()
	h := &fakeHub{repo: repo, commit: fakeCommit, files: files, fail: map[string]int{}, truncate: map[string]int{}}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serve))
	t.Cleanup(h.Close)
	return h
}

func (h *fakeHub) rangeRequests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.ranges...)
}

// moveMain points main at another commit.
func (h *fakeHub) moveMain(commit string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commit = commit
}

func (h *fakeHub) currentCommit() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.commit
}

func (h *fakeHub) serve(w http.ResponseWriter, r *http.Request) {
	commit := h.currentCommit()

	if got := r.Header.Get("User-Agent"); got == "" {
		http.Error(w, "missing user agent", http.StatusBadRequest)
		return
	}

	switch {
	case r.URL.Path == "/api/models/"+h.repo:
		info := APIModelInfo{ID: h.repo, SHA: commit}
		for name, content := range h.files {
			info.Siblings = append(info.Siblings, APISibling{Filename: name, Size: int64(len(content))})
		}
		json.NewEncoder(w).Encode(info)
	case strings.HasPrefix(r.URL.Path, "/"+h.repo+"/resolve/"):
		revision, name, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"+h.repo+"/resolve/"), "/")
		if revision != "main" && revision != commit {
			http.NotFound(w, r)
			return
		}
		if h.shouldFail(name) {
			http.Error(w, "flaky", http.StatusBadGateway)
			return
		}
		content, ok := h.files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h.downloads.Add(1)
		w.Header().Set(HeaderRepoCommit, commit)

		status := http.StatusOK
		if rng := r.Header.Get("Range"); rng != "" {
			h.mu.Lock()
			h.ranges = append(h.ranges, rng)
			h.mu.Unlock()

			start, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rng, "bytes="), "-"))
			if err != nil || start > len(content) {
				http.Error(w, "bad range", http.StatusRequestedRangeNotSatisfiable)
				return
			}
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, len(content)-1, len(content)))
			content = content[start:]
			status = http.StatusPartialContent
		}

		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.WriteHeader(status)
		if h.shouldTruncate(name) {
			w.Write([]byte(content[:len(content)/2]))
			w.(http.Flusher).Flush()
			return
		}
		w.Write([]byte(content))
	default:
		http.NotFound(w, r)
	}
}

func (h *fakeHub) client(t *testing.T) *Client {
	return NewClient(WithBaseURL(h.URL), WithCacheDir(t.TempDir()), WithToken(""))
}

const bertNERConfig = `{
  "model_type": "bert",
  "architectures": ["BertForTokenClassification"],
  "id2label": {"0": "O", "1": "B-MISC", "2": "I-MISC", "3": "B-PER", "4": "I-PER", "5": "B-ORG", "6": "I-ORG", "7": "B-LOC", "8": "I-LOC"},
  "hidden_size": 768
}`

func bertNERFiles() map[string]string {
	return map[string]string{
		"config.json":             bertNERConfig,
		"vocab.txt":               "[PAD]\n[UNK]\n",
		"tokenizer_config.json":   `{"do_lower_case": false}`,
		"special_tokens_map.json": `{}`,
		"model.safetensors":       "weights",
		"pytorch_model.bin":       "pickle",
		"tf_model.h5":             "tf",
		"onnx/model.onnx":         "graph",
		"README.md":               "# bert",
	}
}
