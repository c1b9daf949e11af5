package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	moderr "github.com/lizzyg/llmbridge/errors"
)

const (
	DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1alpha.GenerativeService.BidiGenerateContent"

	defaultVoiceName   = "Aoede"
	defaultSetupWait   = 10 * time.Second
	liveWriteWait      = 5 * time.Second
	liveAudioMimeType  = "audio/pcm;rate=16000"
	liveAudioTurnMime  = "audio/wav"
	liveVideoFrameMime = "image/jpeg"
	modalityAudio      = "AUDIO"
)

// LiveConfig configures a BidiGenerateContent session.
type LiveConfig struct {
	URL                string
	APIKey             string
	Model              string
	ResponseModalities []string
	VoiceName          string
	ThinkingBudget     *int
	SystemInstruction  string
	SetupTimeout       time.Duration
}

// LiveHandlers receive server output on the session's reader goroutine.
// Nil handlers are skipped.
type LiveHandlers struct {
	OnText         func(text string)
	OnAudio        func(pcm []byte)
	OnTurnComplete func()
	OnError        func(err error)
}

type (
	liveClientMessage struct {
		Setup         *liveSetup         `json:"setup,omitempty"`
		ClientContent *liveClientContent `json:"clientContent,omitempty"`
		RealtimeInput *liveRealtimeInput `json:"realtimeInput,omitempty"`
	}
	liveSetup struct {
		Model               string               `json:"model"`
		GenerationConfig    *GenerationConfig    `json:"generationConfig,omitempty"`
		SystemInstruction   *Content             `json:"systemInstruction,omitempty"`
		RealtimeInputConfig *realtimeInputConfig `json:"realtimeInputConfig,omitempty"`
	}
	realtimeInputConfig struct {
		AutomaticActivityDetection *activityDetection `json:"automaticActivityDetection,omitempty"`
	}
	activityDetection struct {
		Disabled bool `json:"disabled"`
	}
	liveClientContent struct {
		Turns        []Content `json:"turns,omitempty"`
		TurnComplete bool      `json:"turnComplete,omitempty"`
	}
	liveRealtimeInput struct {
		Audio          *Blob `json:"audio,omitempty"`
		AudioStreamEnd bool  `json:"audioStreamEnd,omitempty"`
	}
	liveServerMessage struct {
		SetupComplete *struct{}          `json:"setupComplete,omitempty"`
		ServerContent *liveServerContent `json:"serverContent,omitempty"`
	}
	liveServerContent struct {
		ModelTurn    *Content `json:"modelTurn,omitempty"`
		TurnComplete bool     `json:"turnComplete,omitempty"`
		Interrupted  bool     `json:"interrupted,omitempty"`
	}
)

// LiveSession is an open BidiGenerateContent websocket. Writes are
// serialized; a single goroutine reads and dispatches to the handlers.
type LiveSession struct {
	id       string
	conn     *websocket.Conn
	handlers LiveHandlers
	logger   *slog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
	readDone  chan struct{}
	setupOnce sync.Once
	setupDone chan struct{}
}

// Live opens a session for the configured model. An empty system
// instruction is omitted from the setup message.
func (c *Client) Live(ctx context.Context, systemInstruction string, h LiveHandlers) (*LiveSession, error) {
	cfg := LiveConfig{
		APIKey:             c.cfg.APIKey,
		Model:              c.model,
		ResponseModalities: c.cfg.ResponseModalities,
		VoiceName:          c.cfg.VoiceName,
		ThinkingBudget:     c.cfg.ThinkingBudget,
		SystemInstruction:  systemInstruction,
		SetupTimeout:       c.cfg.Timeout,
	}
	return DialLive(ctx, cfg, h, c.logger)
}

// DialLive connects, sends the setup message and waits for setupComplete.
func DialLive(ctx context.Context, cfg LiveConfig, h LiveHandlers, logger *slog.Logger) (*LiveSession, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint := cfg.URL
	if endpoint == "" {
		endpoint = DefaultLiveURL
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("gemini live url: %w", err)
	}
	q := u.Query()
	q.Set("key", cfg.APIKey)
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	hdr.Set("User-Agent", userAgent)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), hdr)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gemini live connect: %s: %w", resp.Status, err)
		}
		return nil, fmt.Errorf("gemini live connect: %w", err)
	}

	s := &LiveSession{
		id:        uuid.NewString(),
		conn:      conn,
		handlers:  h,
		logger:    logger,
		closed:    make(chan struct{}),
		readDone:  make(chan struct{}),
		setupDone: make(chan struct{}),
	}
	go s.readLoop()

	if err := s.write(liveClientMessage{Setup: liveSetupFor(cfg)}); err != nil {
		s.Close()
		return nil, err
	}

	wait := cfg.SetupTimeout
	if wait <= 0 {
		wait = defaultSetupWait
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-s.setupDone:
	case <-s.readDone:
		s.Close()
		return nil, fmt.Errorf("gemini live: connection closed before setup completed")
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("gemini live: timeout waiting for setup confirmation")
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
	logger.Info("live session opened",
		slog.String("provider", providerName),
		slog.String("model", cfg.Model),
		slog.String("session", s.id),
	)
	return s, nil
}

func liveSetupFor(cfg LiveConfig) *liveSetup {
	setup := &liveSetup{
		Model: modelPath(cfg.Model),
		RealtimeInputConfig: &realtimeInputConfig{
			AutomaticActivityDetection: &activityDetection{Disabled: false},
		},
	}
	gc := &GenerationConfig{ResponseModalities: cfg.ResponseModalities}
	for _, m := range cfg.ResponseModalities {
		if strings.EqualFold(m, modalityAudio) {
			voice := cfg.VoiceName
			if voice == "" {
				voice = defaultVoiceName
			}
			gc.SpeechConfig = &SpeechConfig{VoiceConfig: &VoiceConfig{
				PrebuiltVoiceConfig: &PrebuiltVoiceConfig{VoiceName: voice},
			}}
		}
	}
	if cfg.ThinkingBudget != nil {
		gc.ThinkingConfig = &ThinkingConfig{ThinkingBudget: cfg.ThinkingBudget}
	}
	if gc.ResponseModalities != nil || gc.ThinkingConfig != nil {
		setup.GenerationConfig = gc
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &Content{Parts: []Part{{Text: cfg.SystemInstruction}}}
	}
	return setup
}

func (s *LiveSession) ID() string { return s.id }

// IsConnected reports whether Close has not been called and the reader is
// still running.
func (s *LiveSession) IsConnected() bool {
	select {
	case <-s.closed:
		return false
	case <-s.readDone:
		return false
	default:
		return true
	}
}

// SendText sends a complete user turn.
func (s *LiveSession) SendText(text string) error {
	return s.write(liveClientMessage{ClientContent: &liveClientContent{
		Turns:        []Content{{Role: roleUser, Parts: []Part{{Text: text}}}},
		TurnComplete: true,
	}})
}

// SendAudio streams a chunk of 16kHz PCM as realtime input.
func (s *LiveSession) SendAudio(pcm []byte) error {
	return s.write(liveClientMessage{RealtimeInput: &liveRealtimeInput{
		Audio: &Blob{MimeType: liveAudioMimeType, Data: base64.StdEncoding.EncodeToString(pcm)},
	}})
}

// SendAudioAsTurn sends a whole WAV recording as one user turn.
func (s *LiveSession) SendAudioAsTurn(wav []byte) error {
	return s.write(liveClientMessage{ClientContent: &liveClientContent{
		Turns: []Content{{Role: roleUser, Parts: []Part{{InlineData: &Blob{
			MimeType: liveAudioTurnMime,
			Data:     base64.StdEncoding.EncodeToString(wav),
		}}}}},
		TurnComplete: true,
	}})
}

func (s *LiveSession) SendAudioStreamEnd() error {
	return s.write(liveClientMessage{RealtimeInput: &liveRealtimeInput{AudioStreamEnd: true}})
}

// SendVideoFrame sends a JPEG frame without completing the turn.
func (s *LiveSession) SendVideoFrame(jpeg []byte) error {
	return s.write(liveClientMessage{ClientContent: &liveClientContent{
		Turns: []Content{{Parts: []Part{{InlineData: &Blob{
			MimeType: liveVideoFrameMime,
			Data:     base64.StdEncoding.EncodeToString(jpeg),
		}}}}},
	}})
}

func (s *LiveSession) SendTurnComplete() error {
	return s.write(liveClientMessage{ClientContent: &liveClientContent{TurnComplete: true}})
}

func (s *LiveSession) write(msg liveClientMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gemini live encode: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	select {
	case <-s.closed:
		return moderr.ErrSessionClosed
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return fmt.Errorf("gemini live send: %w", err)
	}
	return nil
}

// Close sends a close frame and releases the connection. Safe to call more
// than once.
func (s *LiveSession) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		close(s.closed)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(liveWriteWait))
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
		s.logger.Debug("live session closed", slog.String("session", s.id))
	})
	return s.closeErr
}

func (s *LiveSession) readLoop() {
	defer close(s.readDone)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.reportError(fmt.Errorf("gemini live read: %w", err))
			}
			return
		}
		if err := s.dispatch(data); err != nil {
			s.reportError(err)
		}
	}
}

func (s *LiveSession) dispatch(data []byte) error {
	var msg liveServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("gemini live decode: %w", err)
	}
	if msg.SetupComplete != nil {
		s.setupOnce.Do(func() { close(s.setupDone) })
		return nil
	}
	sc := msg.ServerContent
	if sc == nil {
		return nil
	}
	var errs []error
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.Text != "" && s.handlers.OnText != nil {
				s.handlers.OnText(p.Text)
			}
			if p.InlineData != nil && p.InlineData.Data != "" && s.handlers.OnAudio != nil {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					errs = append(errs, fmt.Errorf("gemini live audio: %w", err))
					continue
				}
				s.handlers.OnAudio(pcm)
			}
		}
	}
	if sc.TurnComplete && s.handlers.OnTurnComplete != nil {
		s.handlers.OnTurnComplete()
	}
	return errors.Join(errs...)
}

func (s *LiveSession) reportError(err error) {
	s.logger.Warn("live session error", slog.String("session", s.id), slog.Any("error", err))
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}
