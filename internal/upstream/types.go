package upstream

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultAudioMIME is the capture format the live API expects from the microphone.
const DefaultAudioMIME = "audio/pcm;rate=16000"

// SessionConfig describes the conversation to open. ResumeHandle, when set, asks the
// upstream to continue a previous session.
type SessionConfig struct {
	Model               string            `json:"model" yaml:"model"`
	VoiceName           string            `json:"voice_name" yaml:"voice_name"`
	SystemInstruction   string            `json:"system_instruction,omitempty" yaml:"system_instruction"`
	ResponseModalities  []string          `json:"response_modalities" yaml:"response_modalities"`
	InputTranscription  bool              `json:"input_transcription" yaml:"input_transcription"`
	OutputTranscription bool              `json:"output_transcription" yaml:"output_transcription"`
	Tools               []json.RawMessage `json:"tools,omitempty" yaml:"-"`
	ResumeHandle        string            `json:"-" yaml:"-"`
}

// MessageKind selects which payload of a Message is sent.
type MessageKind int

const (
	MessageAudio MessageKind = iota
	MessageText
	MessageFunctionResponses
)

func (k MessageKind) String() string {
	switch k {
	case MessageAudio:
		return "audio"
	case MessageText:
		return "text"
	case MessageFunctionResponses:
		return "function_responses"
	default:
		return "unknown"
	}
}

// Message is one outbound unit: an audio chunk, a text turn or tool results.
type Message struct {
	Kind              MessageKind
	Data              []byte
	MIMEType          string
	Text              string
	EndOfTurn         bool
	FunctionResponses []FunctionResponse
}

// AudioMessage wraps a PCM chunk.
func AudioMessage(pcm []byte) Message {
	return Message{Kind: MessageAudio, Data: pcm, MIMEType: DefaultAudioMIME}
}

// TextMessage wraps a user text turn.
func TextMessage(text string, endOfTurn bool) Message {
	return Message{Kind: MessageText, Text: text, EndOfTurn: endOfTurn}
}

// FunctionResponsesMessage wraps results for earlier tool calls.
func FunctionResponsesMessage(responses []FunctionResponse) Message {
	return Message{Kind: MessageFunctionResponses, FunctionResponses: responses}
}

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse answers a FunctionCall.
type FunctionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Response is one inbound message. Only the fields the upstream filled are set.
type Response struct {
	Audio               []byte
	AudioMIME           string
	Text                string
	InputTranscription  string
	OutputTranscription string
	Interrupted         bool
	TurnComplete        bool
	FunctionCalls       []FunctionCall
	// ResumeHandle is the newest session resumption handle, when Resumable.
	ResumeHandle string
	Resumable    bool
	// GoAway is set when the upstream announced it will close the session soon.
	GoAway   bool
	TimeLeft time.Duration
}

// Transport opens upstream sessions authenticated with secret.
type Transport interface {
	Open(ctx context.Context, secret string, cfg SessionConfig) (Session, error)
}

// Session is an open bidirectional stream. Recv returns io.EOF when the upstream ends
// the session normally. Send may be called concurrently with Recv.
type Session interface {
	Send(ctx context.Context, msg Message) error
	Recv(ctx context.Context) (*Response, error)
	Close() error
}
