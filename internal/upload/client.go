// Package upload ships committed voice samples to the remote voice-model
// service over a websocket. Uploads are fire-and-forget relative to the edit
// session: failures are logged and counted, never surfaced to the user.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"avatarmail/internal/domain"
)

// SampleLoader reads committed audio bytes by file name.
type SampleLoader interface {
	Load(fileName string) ([]byte, error)
}

// Config controls the voice-model service connection.
type Config struct {
	APIKey     string
	APIBaseURL string
}

// Result is what the service reported for one avatar.
type Result struct {
	VoiceID string
	Acked   int
}

// ServiceError is an error reported by the voice-model service itself.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return "voice service: " + e.Message
}

// Client uploads one avatar's samples per websocket connection.
type Client struct {
	cfg    Config
	loader SampleLoader
	dialer *websocket.Dialer
}

func NewClient(cfg Config, loader SampleLoader) *Client {
	return &Client{cfg: cfg, loader: loader, dialer: websocket.DefaultDialer}
}

// Upload streams every recording of avatar and waits for the service to
// confirm the batch.
func (c *Client) Upload(ctx context.Context, avatar domain.AvatarRecord) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, errors.New("voice upload API key is not configured")
	}

	// Load everything before dialing so a missing file fails without a half-sent batch.
	payloads := make([][]byte, len(avatar.Recordings))
	for i, sample := range avatar.Recordings {
		data, err := c.loader.Load(sample.FileName)
		if err != nil {
			return Result{}, fmt.Errorf("load %s: %w", sample.FileName, err)
		}
		payloads[i] = data
	}

	wsURL, err := buildVoiceURL(c.cfg.APIBaseURL, avatar.ID)
	if err != nil {
		return Result{}, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return Result{}, fmt.Errorf("failed to connect to voice service: %w", err)
	}
	defer conn.Close()

	group, groupCtx := errgroup.WithContext(ctx)
	go func() {
		<-groupCtx.Done()
		_ = conn.Close()
	}()

	var (
		result  Result
		readErr error
	)
	group.Go(func() error {
		return writeBatch(conn, avatar, payloads)
	})
	group.Go(func() error {
		result, readErr = readReplies(conn, len(avatar.Recordings))
		return readErr
	})

	if err := group.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		// A service-reported error explains a write that failed afterwards.
		var serviceErr *ServiceError
		if errors.As(readErr, &serviceErr) {
			return Result{}, serviceErr
		}
		return Result{}, err
	}
	return result, nil
}

type clientMessage struct {
	Type        string  `json:"type"`
	AvatarID    string  `json:"avatarId,omitempty"`
	Name        string  `json:"name,omitempty"`
	SpeechStyle string  `json:"speechStyle,omitempty"`
	SampleCount int     `json:"sampleCount,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	Contents    string  `json:"contents,omitempty"`
	Duration    float64 `json:"duration,omitempty"`
}

type serverMessage struct {
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	VoiceID  string `json:"voiceId"`
	Message  string `json:"message"`
}

func writeBatch(conn *websocket.Conn, avatar domain.AvatarRecord, payloads [][]byte) error {
	begin := clientMessage{
		Type:        "Begin",
		AvatarID:    avatar.ID,
		Name:        avatar.Name,
		SpeechStyle: avatar.SpeechStyle,
		SampleCount: len(avatar.Recordings),
	}
	if err := conn.WriteJSON(begin); err != nil {
		return fmt.Errorf("failed to begin upload: %w", err)
	}

	for i, sample := range avatar.Recordings {
		header := clientMessage{
			Type:     "Sample",
			FileName: sample.FileName,
			Contents: sample.Contents,
			Duration: sample.Duration,
		}
		if err := conn.WriteJSON(header); err != nil {
			return fmt.Errorf("failed to send sample header: %w", err)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, payloads[i]); err != nil {
			return fmt.Errorf("failed to send sample audio: %w", err)
		}
	}

	if err := conn.WriteJSON(clientMessage{Type: "End"}); err != nil {
		return fmt.Errorf("failed to end upload: %w", err)
	}
	return nil
}

func readReplies(conn *websocket.Conn, expected int) (Result, error) {
	var result Result
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return result, fmt.Errorf("failed to read service reply: %w", err)
		}

		var reply serverMessage
		if err := json.Unmarshal(payload, &reply); err != nil {
			continue
		}

		switch strings.ToLower(reply.Type) {
		case "ack":
			result.Acked++
		case "done":
			result.VoiceID = reply.VoiceID
			if result.Acked != expected {
				return result, fmt.Errorf("voice service acknowledged %d of %d samples", result.Acked, expected)
			}
			return result, nil
		case "error":
			message := strings.TrimSpace(reply.Message)
			if message == "" {
				message = "voice service returned an unknown error"
			}
			return result, &ServiceError{Message: message}
		}
	}
}

func buildVoiceURL(base, avatarID string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		return "", errors.New("voice upload URL is not configured")
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	voiceURL, err := url.Parse(base + "/voices/" + url.PathEscape(avatarID))
	if err != nil {
		return "", fmt.Errorf("invalid voice upload URL: %w", err)
	}
	if voiceURL.Scheme != "ws" && voiceURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid voice upload URL scheme %q", voiceURL.Scheme)
	}
	return voiceURL.String(), nil
}
