package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeMP3 начинается с ID3 тега, как настоящий ответ /audio/speech
var fakeMP3 = []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFB, 0x90, 0x64}

func newTestOpenAIService(t *testing.T, handler http.HandlerFunc) *OpenAIService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewOpenAIService(openai.NewClientWithConfig(cfg), "", zap.NewNop())
}

func TestOpenAIService_SynthesizeText(t *testing.T) {
	svc := newTestOpenAIService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/speech", r.URL.Path)

		var req openai.CreateSpeechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, openai.TTSModel1, req.Model)
		assert.Equal(t, "Hello back", req.Input)
		assert.Equal(t, openai.VoiceOnyx, req.Voice)
		assert.Equal(t, openai.SpeechResponseFormatMp3, req.ResponseFormat)
		assert.InDelta(t, 1.25, req.Speed, 0.0001)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write(fakeMP3)
	})

	data, err := svc.SynthesizeText(context.Background(), "Hello back", SynthesizeOptions{Voice: "onyx", Speed: 1.25})
	require.NoError(t, err)
	assert.Equal(t, fakeMP3, data)
	assert.Equal(t, "audio/mpeg", svc.ContentType())
}

func TestOpenAIService_Error(t *testing.T) {
	svc := newTestOpenAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`)
	})

	_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{Voice: "onyx", Speed: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ошибка синтеза речи")
}

func TestOpenAIService_EmptyAudio(t *testing.T) {
	svc := newTestOpenAIService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	})

	_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{Voice: "onyx", Speed: 1})
	assert.Error(t, err)
}

func TestPiperService_SynthesizeText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/synthesize-raw", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Привет", r.FormValue("text"))
		assert.Equal(t, "ru_RU-denis", r.FormValue("voice"))
		assert.Equal(t, "0.500", r.FormValue("length_scale"))

		w.Header().Set("Content-Type", "audio/wav")
		_, _ = io.WriteString(w, "RIFF0000WAVE")
	}))
	defer srv.Close()

	svc := NewPiperService(zap.NewNop(), srv.URL+"/")
	assert.Zero(t, svc.client.Timeout)
	data, err := svc.SynthesizeText(context.Background(), "Привет", SynthesizeOptions{Voice: "ru_RU-denis", Speed: 2})
	require.NoError(t, err)
	assert.Equal(t, "RIFF0000WAVE", string(data))
	assert.Equal(t, "audio/wav", svc.ContentType())
}

func TestPiperService_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model missing", http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewPiperService(zap.NewNop(), srv.URL)
	_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestNewTTSService(t *testing.T) {
	logger := zap.NewNop()

	svc, err := NewTTSService(Config{Provider: "openai", APIKey: "k"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", svc.ContentType())

	svc, err = NewTTSService(Config{Provider: "piper", PiperBaseURL: "http://piper:5000"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "audio/wav", svc.ContentType())

	for _, provider := range []string{"alltalk", "festival", "mozilla"} {
		svc, err = NewTTSService(Config{Provider: provider, TempDir: t.TempDir()}, logger)
		require.NoError(t, err, provider)
		assert.Equal(t, "audio/wav", svc.ContentType(), provider)
	}

	_, err = NewTTSService(Config{Provider: "espeak"}, logger)
	assert.Error(t, err)
}

func TestAllTalkService_SynthesizeText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tts-generate", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "Привет", r.PostFormValue("text_input"))
		assert.Equal(t, "male_02.wav", r.PostFormValue("character_voice_gen"))
		assert.Equal(t, "ru", r.PostFormValue("language"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"generate-success","output_file_path":"/app/outputs/voice.wav","output_file_url":"/audio/voice.wav"}`)
	})
	mux.HandleFunc("/audio/voice.wav", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = io.WriteString(w, "RIFF0000WAVE")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := NewAllTalkService(zap.NewNop(), srv.URL+"/", "ru")
	data, err := svc.SynthesizeText(context.Background(), "Привет", SynthesizeOptions{Voice: "male_02.wav", Speed: 1})
	require.NoError(t, err)
	assert.Equal(t, "RIFF0000WAVE", string(data))
	assert.Equal(t, "audio/wav", svc.ContentType())
}

func TestAllTalkService_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"ошибка генерации", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"неуспешный статус", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"status":"generate-failure"}`)
		}},
		{"нет адреса файла", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, `{"status":"generate-success"}`)
		}},
		{"файл не найден", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/api/tts-generate" {
				_, _ = io.WriteString(w, `{"status":"generate-success","output_file_url":"/audio/missing.wav"}`)
				return
			}
			http.NotFound(w, r)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			svc := NewAllTalkService(zap.NewNop(), srv.URL, "")
			_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{})
			assert.Error(t, err)
		})
	}
}

// writeFakeSynth создает скрипт, имитирующий локальный синтезатор.
// Аргументы скрипт дописывает в файл из переменной FAKE_SYNTH_LOG.
func writeFakeSynth(t *testing.T, body string) (bin, logPath string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell скрипты не поддерживаются на windows")
	}

	dir := t.TempDir()
	bin = filepath.Join(dir, "synth")
	logPath = filepath.Join(dir, "args.log")
	t.Setenv("FAKE_SYNTH_LOG", logPath)

	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> \"$FAKE_SYNTH_LOG\"; done\n" + body + "\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	return bin, logPath
}

// text2waveScript пишет в файл после -o заголовок RIFF и входной текст
const text2waveScript = `out=""; txt=""
while [ $# -gt 0 ]; do
  case "$1" in
    -o) out="$2"; shift 2 ;;
    -eval) shift 2 ;;
    *) txt="$1"; shift ;;
  esac
done
printf 'RIFF' > "$out"
cat "$txt" >> "$out"`

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestFestivalService_SynthesizeText(t *testing.T) {
	bin, logPath := writeFakeSynth(t, text2waveScript)
	tempDir := t.TempDir()

	svc := NewFestivalService(zap.NewNop(), bin, tempDir)
	data, err := svc.SynthesizeText(context.Background(), "Hello there", SynthesizeOptions{Speed: 2})
	require.NoError(t, err)
	assert.Equal(t, "RIFFHello there", string(data))
	assert.Equal(t, "audio/wav", svc.ContentType())

	args := readArgs(t, logPath)
	assert.Contains(t, args, "(voice_kal_diphone)")
	assert.Contains(t, args, "(Parameter.set 'Duration_Stretch 0.500)")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "временные файлы должны быть удалены")
}

func TestFestivalService_RejectsUnsafeVoice(t *testing.T) {
	bin, logPath := writeFakeSynth(t, text2waveScript)

	svc := NewFestivalService(zap.NewNop(), bin, t.TempDir())
	_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{Voice: "voice_x) (system \"rm\")"})
	require.Error(t, err)
	assert.NoFileExists(t, logPath)
}

func TestFestivalService_Failure(t *testing.T) {
	bin, _ := writeFakeSynth(t, `echo "SIOD ERROR: unbound variable" >&2
exit 1`)
	tempDir := t.TempDir()

	svc := NewFestivalService(zap.NewNop(), bin, tempDir)
	_, err := svc.SynthesizeText(context.Background(), "Hi", SynthesizeOptions{Voice: "voice_rab_diphone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIOD ERROR")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMozillaService_SynthesizeText(t *testing.T) {
	bin, logPath := writeFakeSynth(t, `out=""; text=""
while [ $# -gt 0 ]; do
  case "$1" in
    --out_path) out="$2"; shift 2 ;;
    --text) text="$2"; shift 2 ;;
    *) shift ;;
  esac
done
printf 'RIFF%s' "$text" > "$out"`)
	tempDir := t.TempDir()

	svc := NewMozillaService(zap.NewNop(), bin, "", tempDir)
	data, err := svc.SynthesizeText(context.Background(), "Hello", SynthesizeOptions{Voice: "p225"})
	require.NoError(t, err)
	assert.Equal(t, "RIFFHello", string(data))
	assert.Equal(t, "audio/wav", svc.ContentType())

	args := readArgs(t, logPath)
	assert.Contains(t, args, "tts_models/en/ljspeech/tacotron2-DDC")
	assert.Contains(t, args, "p225")

	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMozillaService_EmptyOutput(t *testing.T) {
	bin, _ := writeFakeSynth(t, "exit 0")

	svc := NewMozillaService(zap.NewNop(), bin, "", t.TempDir())
	_, err := svc.SynthesizeText(context.Background(), "Hello", SynthesizeOptions{})
	assert.Error(t, err)
}

func TestMozillaService_Cancelled(t *testing.T) {
	bin, _ := writeFakeSynth(t, "exec sleep 5")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	svc := NewMozillaService(zap.NewNop(), bin, "", t.TempDir())
	_, err := svc.SynthesizeText(ctx, "Hello", SynthesizeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
