package live

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"geminivoice-go/internal/upstream"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// buildSetup renders the first frame of a session.
func buildSetup(cfg upstream.SessionConfig) ([]byte, error) {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("session model is required")
	}
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}

	msg := []byte(`{"setup":{}}`)
	var err error
	set := func(path string, value any) {
		if err != nil {
			return
		}
		msg, err = sjson.SetBytes(msg, path, value)
	}
	setRaw := func(path string, raw []byte) {
		if err != nil {
			return
		}
		msg, err = sjson.SetRawBytes(msg, path, raw)
	}

	set("setup.model", model)
	modalities := cfg.ResponseModalities
	if len(modalities) == 0 {
		modalities = []string{"AUDIO"}
	}
	set("setup.generationConfig.responseModalities", modalities)
	if v := strings.TrimSpace(cfg.VoiceName); v != "" {
		set("setup.generationConfig.speechConfig.voiceConfig.prebuiltVoiceConfig.voiceName", v)
	}
	if s := strings.TrimSpace(cfg.SystemInstruction); s != "" {
		set("setup.systemInstruction.parts.0.text", s)
	}
	if cfg.InputTranscription {
		setRaw("setup.inputAudioTranscription", []byte(`{}`))
	}
	if cfg.OutputTranscription {
		setRaw("setup.outputAudioTranscription", []byte(`{}`))
	}
	// always ask for resumption updates so a dropped session can be continued
	setRaw("setup.sessionResumption", []byte(`{}`))
	if cfg.ResumeHandle != "" {
		set("setup.sessionResumption.handle", cfg.ResumeHandle)
	}
	for i, tool := range cfg.Tools {
		setRaw(fmt.Sprintf("setup.tools.%d", i), tool)
	}
	if err != nil {
		return nil, fmt.Errorf("build setup: %w", err)
	}
	return msg, nil
}

// buildMessage renders a client frame for msg.
func buildMessage(msg upstream.Message) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch msg.Kind {
	case upstream.MessageAudio:
		mime := msg.MIMEType
		if mime == "" {
			mime = upstream.DefaultAudioMIME
		}
		out, err = sjson.SetBytes([]byte(`{}`), "realtimeInput.audio.mimeType", mime)
		if err == nil {
			out, err = sjson.SetBytes(out, "realtimeInput.audio.data", base64.StdEncoding.EncodeToString(msg.Data))
		}
	case upstream.MessageText:
		out, err = sjson.SetBytes([]byte(`{}`), "clientContent.turns.0.role", "user")
		if err == nil {
			out, err = sjson.SetBytes(out, "clientContent.turns.0.parts.0.text", msg.Text)
		}
		if err == nil {
			out, err = sjson.SetBytes(out, "clientContent.turnComplete", msg.EndOfTurn)
		}
	case upstream.MessageFunctionResponses:
		if len(msg.FunctionResponses) == 0 {
			return nil, fmt.Errorf("no function responses to send")
		}
		out, err = sjson.SetBytes([]byte(`{}`), "toolResponse.functionResponses", msg.FunctionResponses)
	default:
		return nil, fmt.Errorf("unsupported message kind %s", msg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("build %s message: %w", msg.Kind, err)
	}
	return out, nil
}

// frameKind distinguishes the handshake ack from content frames.
type frameKind int

const (
	frameContent frameKind = iota
	frameSetupComplete
	frameIgnored
)

// parseFrame decodes one server frame.
func parseFrame(raw []byte) (*upstream.Response, frameKind, error) {
	if !gjson.ValidBytes(raw) {
		return nil, frameIgnored, fmt.Errorf("malformed server frame")
	}
	root := gjson.ParseBytes(raw)
	if root.Get("setupComplete").Exists() {
		return nil, frameSetupComplete, nil
	}
	if e := root.Get("error"); e.Exists() {
		msg := e.Get("message").String()
		if msg == "" {
			msg = e.Raw
		}
		return nil, frameIgnored, fmt.Errorf("upstream error %s: %s", e.Get("code").String(), msg)
	}

	resp := &upstream.Response{}
	seen := false

	if sc := root.Get("serverContent"); sc.Exists() {
		seen = true
		sc.Get("modelTurn.parts").ForEach(func(_, part gjson.Result) bool {
			if data := part.Get("inlineData.data"); data.Exists() {
				if chunk, err := base64.StdEncoding.DecodeString(data.String()); err == nil {
					resp.Audio = append(resp.Audio, chunk...)
					resp.AudioMIME = part.Get("inlineData.mimeType").String()
				}
			}
			if text := part.Get("text"); text.Exists() {
				resp.Text += text.String()
			}
			return true
		})
		resp.Interrupted = sc.Get("interrupted").Bool()
		resp.TurnComplete = sc.Get("turnComplete").Bool()
		resp.InputTranscription = sc.Get("inputTranscription.text").String()
		resp.OutputTranscription = sc.Get("outputTranscription.text").String()
	}

	if calls := root.Get("toolCall.functionCalls"); calls.Exists() {
		seen = true
		calls.ForEach(func(_, call gjson.Result) bool {
			fc := upstream.FunctionCall{
				ID:   call.Get("id").String(),
				Name: call.Get("name").String(),
			}
			if args := call.Get("args"); args.Exists() {
				fc.Args = []byte(args.Raw)
			}
			resp.FunctionCalls = append(resp.FunctionCalls, fc)
			return true
		})
	}

	if upd := root.Get("sessionResumptionUpdate"); upd.Exists() {
		seen = true
		resp.Resumable = upd.Get("resumable").Bool()
		resp.ResumeHandle = upd.Get("newHandle").String()
	}

	if ga := root.Get("goAway"); ga.Exists() {
		seen = true
		resp.GoAway = true
		if d, err := time.ParseDuration(ga.Get("timeLeft").String()); err == nil {
			resp.TimeLeft = d
		}
	}

	if !seen {
		return nil, frameIgnored, nil
	}
	return resp, frameContent, nil
}
