package whisper

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0600))
	return path
}

func TestNewClient(t *testing.T) {
	logger := zap.NewNop()
	client := NewClient("http://localhost:9000/", logger)

	if client == nil {
		t.Fatal("клиент не должен быть nil")
	}

	if client.apiURL != "http://localhost:9000" {
		t.Errorf("ожидался apiURL 'http://localhost:9000', получен '%s'", client.apiURL)
	}

	// Время запроса ограничивает только контекст вызова
	if client.httpClient.Timeout != 0 {
		t.Errorf("ожидался клиент без таймаута, получен %v", client.httpClient.Timeout)
	}

	if client.httpClient == nil {
		t.Error("httpClient не должен быть nil")
	}
}

func TestTranscribeFile_FileNotExists(t *testing.T) {
	client := NewClient("http://localhost:9000", zap.NewNop())

	_, err := client.TranscribeFile(context.Background(), "nonexistent.wav", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "аудио файл не найден")
}

func TestTranscribeFile_SelfHosted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/asr", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("output"))
		assert.Equal(t, "ru", r.URL.Query().Get("language"))

		file, header, err := r.FormFile("audio_file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "speech.wav", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" привет мир ","language":"ru"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	resp, err := client.TranscribeFile(context.Background(), writeAudio(t), "ru")
	require.NoError(t, err)
	assert.Equal(t, " привет мир ", resp.Text)
	assert.Equal(t, "ru", resp.Language)

	text, err := client.Transcribe(context.Background(), writeAudio(t), "ru")
	require.NoError(t, err)
	assert.Equal(t, " привет мир ", text)
}

func TestTranscribeFile_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"model not loaded"}`)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	_, err := client.TranscribeFile(context.Background(), writeAudio(t), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "статус 500")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestTranscribeFile_UnexpectedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html></html>")
	}))
	defer srv.Close()

	client := NewClient(srv.URL, zap.NewNop())
	_, err := client.TranscribeFile(context.Background(), writeAudio(t), "")
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, NewClient(srv.URL, zap.NewNop()).HealthCheck(context.Background()))

	// Тест с остановленным сервером должен вернуть ошибку
	srv.Close()
	assert.Error(t, NewClient(srv.URL, zap.NewNop()).HealthCheck(context.Background()))
}

func newOpenAIClient(baseURL string) *openai.Client {
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = baseURL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func TestOpenAITranscriber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"Hello there"}`)
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(newOpenAIClient(srv.URL), "", zap.NewNop())
	text, err := tr.Transcribe(context.Background(), writeAudio(t), "en")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", text)
}

func TestOpenAITranscriber_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"Invalid file format.","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	tr := NewOpenAITranscriber(newOpenAIClient(srv.URL), "whisper-1", zap.NewNop())
	_, err := tr.Transcribe(context.Background(), writeAudio(t), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid file format.")
}

func TestNewTranscriber(t *testing.T) {
	logger := zap.NewNop()

	tr, err := NewTranscriber(Config{Provider: "openai", APIKey: "k", Model: "whisper-1"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &OpenAITranscriber{}, tr)

	tr, err = NewTranscriber(Config{Provider: "whisper", APIURL: "http://whisper:9000"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &Client{}, tr)

	_, err = NewTranscriber(Config{Provider: "vosk"}, logger)
	assert.Error(t, err)
}
