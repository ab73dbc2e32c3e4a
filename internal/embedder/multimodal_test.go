package embedder

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// embedServer fakes an OpenAI-compatible embeddings endpoint. It echoes back
// one fixed-size vector per input item, tagged with the input index.
func embedServer(t *testing.T, dim int, capture *embedRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if capture != nil {
			*capture = req
		}
		resp := embedResponse{}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedText(t *testing.T) {
	t.Parallel()

	var captured embedRequest
	srv := embedServer(t, 8, &captured)
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "jina-clip-v2",
	})

	vec, err := emb.EmbedText(context.Background(), "the water cycle")
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	if len(vec) != 8 {
		t.Errorf("len(vec) = %d, want 8", len(vec))
	}
	if captured.Model != "jina-clip-v2" {
		t.Errorf("model = %q", captured.Model)
	}
	if len(captured.Input) != 1 || captured.Input[0].Text != "the water cycle" {
		t.Errorf("input = %+v", captured.Input)
	}
	if captured.Input[0].Image != "" {
		t.Error("text input should not carry an image field")
	}
}

func TestEmbedTextSendsBearerToken(t *testing.T) {
	t.Parallel()

	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"data":[{"embedding":[0.1],"index":0}]}`)
	}))
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{BaseURL: srv.URL, APIKey: "sekret", Model: "m"})
	if _, err := emb.EmbedText(context.Background(), "x"); err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	if auth != "Bearer sekret" {
		t.Errorf("Authorization = %q", auth)
	}
}

func TestEmbedImagesRemapsSuccessIndices(t *testing.T) {
	t.Parallel()

	// The middle image 404s; the batch should carry on without it.
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "broken") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("fake png bytes"))
	}))
	defer imgSrv.Close()

	var captured embedRequest
	srv := embedServer(t, 4, &captured)
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{BaseURL: srv.URL, Model: "m"})

	urls := []string{
		imgSrv.URL + "/a.png",
		imgSrv.URL + "/broken.png",
		imgSrv.URL + "/c.png",
	}
	vectors, indices, err := emb.EmbedImages(context.Background(), urls)
	if err != nil {
		t.Fatalf("EmbedImages() error = %v", err)
	}
	if len(vectors) != 2 {
		t.Fatalf("len(vectors) = %d, want 2", len(vectors))
	}
	if len(indices) != 2 || indices[0] != 0 || indices[1] != 2 {
		t.Errorf("indices = %v, want [0 2]", indices)
	}
	for _, in := range captured.Input {
		if in.Image == "" || in.Text != "" {
			t.Errorf("batch input should be image-only: %+v", in)
		}
	}
}

func TestEmbedImagesAllFetchesFail(t *testing.T) {
	t.Parallel()

	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer imgSrv.Close()

	embedCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		embedCalls++
		fmt.Fprint(w, `{"data":[]}`)
	}))
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{BaseURL: srv.URL, Model: "m"})

	vectors, indices, err := emb.EmbedImages(context.Background(), []string{imgSrv.URL + "/a", imgSrv.URL + "/b"})
	if err != nil {
		t.Fatalf("EmbedImages() error = %v", err)
	}
	if vectors != nil || indices != nil {
		t.Errorf("vectors = %v, indices = %v, want nil/nil", vectors, indices)
	}
	if embedCalls != 0 {
		t.Errorf("embed endpoint called %d times with an empty batch", embedCalls)
	}
}

func TestEmbedImagesBatchCallFailure(t *testing.T) {
	t.Parallel()

	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("bytes"))
	}))
	defer imgSrv.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"model overloaded"}}`)
	}))
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{BaseURL: srv.URL, Model: "m"})

	_, _, err := emb.EmbedImages(context.Background(), []string{imgSrv.URL + "/a.jpg"})
	if err == nil {
		t.Fatal("expected error when the embedding call fails")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("error = %v, want API message surfaced", err)
	}
}

func TestEmbedReordersOutOfOrderResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"data":[{"embedding":[2],"index":1},{"embedding":[1],"index":0}]}`)
	}))
	defer srv.Close()

	emb := NewMultimodalEmbedder(&MultimodalConfig{BaseURL: srv.URL, Model: "m"})
	vectors, err := emb.embed(context.Background(), []embedInput{{Text: "a"}, {Text: "b"}})
	if err != nil {
		t.Fatalf("embed() error = %v", err)
	}
	if vectors[0][0] != 1 || vectors[1][0] != 2 {
		t.Errorf("vectors not reordered by index: %v", vectors)
	}
}

func TestFetchRejectsNonImage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not an image</html>")
	}))
	defer srv.Close()

	f := newImageFetcher(0)
	if _, err := f.fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for non-image content type")
	}
}

func TestFetchEnforcesSizeCap(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	f := newImageFetcher(512)
	if _, err := f.fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for oversized image")
	}
}
