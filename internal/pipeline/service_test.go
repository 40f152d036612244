package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"voice-server/internal/ai"
	"voice-server/internal/audio"
	"voice-server/internal/tts"
)

var fakeMP3 = []byte{'I', 'D', '3', 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xFF, 0xFB, 0x90, 0x64}

type stubConverter struct {
	err   error
	calls int
}

func (c *stubConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	c.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.err != nil {
		return c.err
	}
	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, data, 0600)
}

func (c *stubConverter) Format() string { return "wav" }

type stubTranscriber struct {
	text     string
	err      error
	block    bool
	calls    int
	path     string
	language string
	content  string
}

func (s *stubTranscriber) Transcribe(ctx context.Context, filePath, language string) (string, error) {
	s.calls++
	s.path = filePath
	s.language = language
	if data, err := os.ReadFile(filePath); err == nil {
		s.content = string(data)
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return s.text, s.err
}

type stubChat struct {
	reply    string
	err      error
	nilResp  bool
	calls    int
	messages []ai.Message
	options  ai.GenerationOptions
}

func (c *stubChat) GenerateResponse(ctx context.Context, messages []ai.Message, options ai.GenerationOptions) (*ai.Response, error) {
	c.calls++
	c.messages = messages
	c.options = options
	if c.err != nil {
		return nil, c.err
	}
	if c.nilResp {
		return nil, nil
	}
	return &ai.Response{Content: c.reply, Model: "stub-model", Provider: "stub"}, nil
}

func (c *stubChat) GetName() string { return "stub" }

type stubSpeech struct {
	data  []byte
	err   error
	calls int
	text  string
	opts  tts.SynthesizeOptions
}

func (s *stubSpeech) SynthesizeText(ctx context.Context, text string, opts tts.SynthesizeOptions) ([]byte, error) {
	s.calls++
	s.text = text
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return s.data, nil
}

func (s *stubSpeech) ContentType() string { return "audio/mpeg" }

type fixture struct {
	svc       *Service
	workspace *audio.Workspace
	conv      *stubConverter
	stt       *stubTranscriber
	chat      *stubChat
	speech    *stubSpeech
}

func testOptions() Options {
	return Options{
		SystemPrompt:    "Be brief.",
		FallbackPrompt:  "Say that you did not hear me.",
		DefaultLanguage: "en",
		DefaultVoice:    "onyx",
		DefaultSpeed:    1.0,
		AllowedVoices:   []string{"alloy", "onyx", "nova"},
		UpstreamTimeout: time.Second,
		Generation:      ai.GenerationOptions{Temperature: 0.7, MaxTokens: 200},
		SanitizeSpeech:  true,
	}
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()

	ws, err := audio.NewWorkspace(filepath.Join(t.TempDir(), "tmp"), zap.NewNop())
	require.NoError(t, err)

	f := &fixture{
		workspace: ws,
		conv:      &stubConverter{},
		stt:       &stubTranscriber{text: "  hello there \n"},
		chat:      &stubChat{reply: "Hello back"},
		speech:    &stubSpeech{data: fakeMP3},
	}

	f.svc, err = New(Deps{
		Workspace:   ws,
		Converter:   f.conv,
		Transcriber: f.stt,
		Chat:        f.chat,
		Speech:      f.speech,
		Logger:      zap.NewNop(),
	}, opts)
	require.NoError(t, err)

	return f
}

func (f *fixture) assertWorkspaceEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workspace.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries, "временные файлы остались на диске")
}

func upload(data string) InboundAudio {
	return InboundAudio{Filename: "recording.webm", Body: strings.NewReader(data)}
}

func assertKind(t *testing.T, err error, kind Kind, msg string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), "неверная категория ошибки: %v", err)
	assert.Equal(t, msg, MessageOf(err))
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)

	ws, err := audio.NewWorkspace(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	_, err = New(Deps{
		Workspace:   ws,
		Converter:   &stubConverter{},
		Transcriber: &stubTranscriber{},
		Chat:        &stubChat{},
		Speech:      &stubSpeech{},
	}, Options{DefaultVoice: "robot", AllowedVoices: []string{"onyx"}})
	assert.Error(t, err)
}

func TestTranscribe_Success(t *testing.T) {
	f := newFixture(t, testOptions())

	text, err := f.svc.Transcribe(context.Background(), upload("webm-bytes"), "")
	require.NoError(t, err)

	assert.Equal(t, "hello there", text)
	assert.Equal(t, 1, f.conv.calls)
	assert.Equal(t, 1, f.stt.calls)
	assert.Equal(t, "en", f.stt.language)
	assert.Equal(t, ".wav", filepath.Ext(f.stt.path))
	assert.Equal(t, "webm-bytes", f.stt.content)
	f.assertWorkspaceEmpty(t)
}

func TestTranscribe_LanguageHint(t *testing.T) {
	f := newFixture(t, testOptions())

	_, err := f.svc.Transcribe(context.Background(), upload("x"), "ru")
	require.NoError(t, err)
	assert.Equal(t, "ru", f.stt.language)
}

func TestTranscribe_NoAudio(t *testing.T) {
	f := newFixture(t, testOptions())

	_, err := f.svc.Transcribe(context.Background(), InboundAudio{}, "")
	assertKind(t, err, InvalidInput, MsgNoAudio)
	assert.Equal(t, 0, f.conv.calls)
	assert.Equal(t, 0, f.stt.calls)
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	f := newFixture(t, testOptions())

	_, err := f.svc.Transcribe(context.Background(), upload(""), "")
	assertKind(t, err, InvalidInput, MsgEmptyAudio)
	assert.Equal(t, 0, f.conv.calls)
	assert.Equal(t, 0, f.stt.calls)
	f.assertWorkspaceEmpty(t)
}

func TestTranscribe_ConversionFailure(t *testing.T) {
	f := newFixture(t, testOptions())
	f.conv.err = errors.New("Invalid data found when processing input")

	_, err := f.svc.Transcribe(context.Background(), upload("garbage"), "")
	assertKind(t, err, ConversionFailure, "Audio conversion failed")
	assert.Equal(t, 0, f.stt.calls)
	f.assertWorkspaceEmpty(t)
}

func TestTranscribe_UpstreamFailure(t *testing.T) {
	f := newFixture(t, testOptions())
	f.stt.err = errors.New("status 502")

	_, err := f.svc.Transcribe(context.Background(), upload("webm-bytes"), "")
	assertKind(t, err, UpstreamFailure, MsgTranscription)
	f.assertWorkspaceEmpty(t)
}

func TestTranscribe_UpstreamTimeout(t *testing.T) {
	opts := testOptions()
	opts.UpstreamTimeout = 20 * time.Millisecond
	f := newFixture(t, opts)
	f.stt.block = true

	_, err := f.svc.Transcribe(context.Background(), upload("webm-bytes"), "")
	assertKind(t, err, UpstreamFailure, MsgTranscription)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	f.assertWorkspaceEmpty(t)
}

func TestTranscribe_Cancelled(t *testing.T) {
	f := newFixture(t, testOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.Transcribe(ctx, upload("webm-bytes"), "")
	assertKind(t, err, UpstreamFailure, MsgCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, f.stt.calls)
	f.assertWorkspaceEmpty(t)
}

func TestConverse(t *testing.T) {
	f := newFixture(t, testOptions())

	reply, err := f.svc.Converse(context.Background(), "  Hello ", "")
	require.NoError(t, err)
	assert.Equal(t, "Hello back", reply)

	require.Len(t, f.chat.messages, 2)
	assert.Equal(t, ai.Message{Role: ai.RoleSystem, Content: "Be brief."}, f.chat.messages[0])
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "Hello"}, f.chat.messages[1])
	assert.Equal(t, 200, f.chat.options.MaxTokens)

	_, err = f.svc.Converse(context.Background(), "Hello", "Answer in French.")
	require.NoError(t, err)
	assert.Equal(t, "Answer in French.", f.chat.messages[0].Content)
}

func TestConverse_Errors(t *testing.T) {
	f := newFixture(t, testOptions())

	_, err := f.svc.Converse(context.Background(), "   ", "")
	assertKind(t, err, InvalidInput, MsgNoPrompt)
	assert.Equal(t, 0, f.chat.calls)

	f.chat.err = errors.New("нет вариантов ответа")
	_, err = f.svc.Converse(context.Background(), "Hello", "")
	assertKind(t, err, UpstreamFailure, MsgChat)

	f.chat.err = nil
	f.chat.reply = "  "
	_, err = f.svc.Converse(context.Background(), "Hello", "")
	assertKind(t, err, UpstreamFailure, MsgChat)

	// Клиент без ошибки и без ответа
	f.chat.nilResp = true
	_, err = f.svc.Converse(context.Background(), "Hello", "")
	assertKind(t, err, UpstreamFailure, MsgChat)
}

func TestSynthesize(t *testing.T) {
	f := newFixture(t, testOptions())

	out, err := f.svc.Synthesize(context.Background(), "**Hello** there", "", 0)
	require.NoError(t, err)

	assert.NotEmpty(t, out.Data)
	assert.True(t, bytes.HasPrefix(out.Data, []byte("ID3")) || (out.Data[0] == 0xFF && out.Data[1]&0xE0 == 0xE0),
		"ожидалась сигнатура MP3")
	assert.Equal(t, "audio/mpeg", out.ContentType)
	assert.Equal(t, "Hello there", f.speech.text)
	assert.Equal(t, tts.SynthesizeOptions{Voice: "onyx", Speed: 1.0}, f.speech.opts)

	// Повторный вызов возвращает независимый валидный результат
	again, err := f.svc.Synthesize(context.Background(), "**Hello** there", "nova", 1.5)
	require.NoError(t, err)
	assert.NotEmpty(t, again.Data)
	assert.Equal(t, tts.SynthesizeOptions{Voice: "nova", Speed: 1.5}, f.speech.opts)
}

func TestSynthesize_Validation(t *testing.T) {
	f := newFixture(t, testOptions())

	tests := []struct {
		name  string
		text  string
		voice string
		speed float64
		msg   string
	}{
		{"пустой текст", "", "", 0, MsgNoText},
		{"только пробелы", " \n\t", "", 0, MsgNoText},
		{"слишком медленно", "Hi", "", 0.1, MsgInvalidSpeed},
		{"слишком быстро", "Hi", "", 4.5, MsgInvalidSpeed},
		{"неизвестный голос", "Hi", "robot", 1, MsgUnsupportedVoice},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Synthesize(context.Background(), tt.text, tt.voice, tt.speed)
			assertKind(t, err, InvalidInput, tt.msg)
		})
	}

	assert.Equal(t, 0, f.speech.calls)
}

func TestSynthesize_UpstreamErrors(t *testing.T) {
	f := newFixture(t, testOptions())

	f.speech.err = errors.New("status 500")
	_, err := f.svc.Synthesize(context.Background(), "Hi", "", 0)
	assertKind(t, err, UpstreamFailure, MsgSpeech)

	f.speech.err = nil
	f.speech.data = nil
	_, err = f.svc.Synthesize(context.Background(), "Hi", "", 0)
	assertKind(t, err, UpstreamFailure, MsgSpeech)
}

func TestSpeakReply(t *testing.T) {
	f := newFixture(t, testOptions())

	reply, out, err := f.svc.SpeakReply(context.Background(), "Hello", "", "alloy")
	require.NoError(t, err)
	assert.Equal(t, "Hello back", reply)
	assert.Equal(t, fakeMP3, out.Data)
	assert.Equal(t, "Hello back", f.speech.text)
	assert.Equal(t, "alloy", f.speech.opts.Voice)

	_, _, err = f.svc.SpeakReply(context.Background(), "", "", "")
	assertKind(t, err, InvalidInput, MsgNoPrompt)
}

func TestVoiceRoundTrip(t *testing.T) {
	f := newFixture(t, testOptions())

	result, err := f.svc.VoiceRoundTrip(context.Background(), upload("webm-bytes"), "")
	require.NoError(t, err)

	assert.Equal(t, "hello there", result.Transcript)
	assert.Equal(t, "Hello back", result.Reply)
	assert.Equal(t, fakeMP3, result.Audio.Data)
	assert.Equal(t, "hello there", f.chat.messages[1].Content)
	f.assertWorkspaceEmpty(t)
}

func TestVoiceRoundTrip_FallbackPrompt(t *testing.T) {
	f := newFixture(t, testOptions())
	f.stt.text = "   "

	result, err := f.svc.VoiceRoundTrip(context.Background(), upload("silence"), "")
	require.NoError(t, err)

	assert.Empty(t, result.Transcript)
	assert.Equal(t, "Say that you did not hear me.", f.chat.messages[1].Content)
	f.assertWorkspaceEmpty(t)
}

func TestVoiceRoundTrip_StopsOnFailure(t *testing.T) {
	f := newFixture(t, testOptions())
	f.chat.err = errors.New("boom")

	_, err := f.svc.VoiceRoundTrip(context.Background(), upload("webm-bytes"), "")
	assertKind(t, err, UpstreamFailure, MsgChat)
	assert.Equal(t, 0, f.speech.calls)
	f.assertWorkspaceEmpty(t)
}
