package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Client is an HTTP implementation of API against the bot HTTP endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger
}

// NewClient constructs a Client. An empty baseURL selects the public
// endpoint; tests point it at a local stub.
func NewClient(token, baseURL string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
}

type apiResponse struct {
	Ok          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram: marshal %s params: %w", method, err)
	}
	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s: %w", method, err)
	}
	defer resp.Body.Close()

	return c.decode(method, resp.Body, out)
}

func (c *Client) decode(method string, r io.Reader, out any) error {
	var envelope apiResponse
	if err := json.NewDecoder(r).Decode(&envelope); err != nil {
		return fmt.Errorf("telegram: decode %s response: %w", method, err)
	}
	if !envelope.Ok {
		return fmt.Errorf("telegram: %s failed: %s (code %d)", method, envelope.Description, envelope.ErrorCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) sendReturningMessage(ctx context.Context, method string, params map[string]any) (Message, error) {
	var msg Message
	if err := c.call(ctx, method, params, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// SendMessage sends plain text.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
}

// SendPhoto re-sends a photo by file id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendPhoto", map[string]any{
		"chat_id": chatID,
		"photo":   fileID,
		"caption": caption,
	})
}

// SendVideo re-sends a video by file id.
func (c *Client) SendVideo(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendVideo", map[string]any{
		"chat_id": chatID,
		"video":   fileID,
		"caption": caption,
	})
}

// SendVideoNote re-sends a video note by file id.
func (c *Client) SendVideoNote(ctx context.Context, chatID int64, fileID string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendVideoNote", map[string]any{
		"chat_id":    chatID,
		"video_note": fileID,
	})
}

// SendAudio re-sends an audio file by file id.
func (c *Client) SendAudio(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendAudio", map[string]any{
		"chat_id": chatID,
		"audio":   fileID,
		"caption": caption,
	})
}

// SendVoice re-sends a voice note by file id.
func (c *Client) SendVoice(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendVoice", map[string]any{
		"chat_id": chatID,
		"voice":   fileID,
		"caption": caption,
	})
}

// SendDocument re-sends a document by file id.
func (c *Client) SendDocument(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendDocument", map[string]any{
		"chat_id":  chatID,
		"document": fileID,
		"caption":  caption,
	})
}

// SendSticker re-sends a sticker by file id.
func (c *Client) SendSticker(ctx context.Context, chatID int64, fileID string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendSticker", map[string]any{
		"chat_id": chatID,
		"sticker": fileID,
	})
}

// SendAnimation re-sends an animation by file id.
func (c *Client) SendAnimation(ctx context.Context, chatID int64, fileID, caption string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendAnimation", map[string]any{
		"chat_id":   chatID,
		"animation": fileID,
		"caption":   caption,
	})
}

// SendContact re-sends a contact card.
func (c *Client) SendContact(ctx context.Context, chatID int64, contact Contact) (Message, error) {
	return c.sendReturningMessage(ctx, "sendContact", map[string]any{
		"chat_id":      chatID,
		"phone_number": contact.PhoneNumber,
		"first_name":   contact.FirstName,
		"last_name":    contact.LastName,
	})
}

// SendLocation re-sends a location pin.
func (c *Client) SendLocation(ctx context.Context, chatID int64, location Location) (Message, error) {
	return c.sendReturningMessage(ctx, "sendLocation", map[string]any{
		"chat_id":   chatID,
		"latitude":  location.Latitude,
		"longitude": location.Longitude,
	})
}

// SendPoll creates a fresh native poll.
func (c *Client) SendPoll(ctx context.Context, chatID int64, question string, options []string) (Message, error) {
	return c.sendReturningMessage(ctx, "sendPoll", map[string]any{
		"chat_id":      chatID,
		"question":     question,
		"options":      options,
		"is_anonymous": true,
	})
}

// SendPhotoBytes uploads a rendered image (captcha challenges).
func (c *Client) SendPhotoBytes(ctx context.Context, chatID int64, image []byte, caption string) (Message, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", fmt.Sprintf("%d", chatID)); err != nil {
		return Message{}, err
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return Message{}, err
		}
	}
	part, err := writer.CreateFormFile("photo", "challenge.png")
	if err != nil {
		return Message{}, err
	}
	if _, err := part.Write(image); err != nil {
		return Message{}, err
	}
	if err := writer.Close(); err != nil {
		return Message{}, err
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return Message{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Message{}, fmt.Errorf("telegram: sendPhoto upload: %w", err)
	}
	defer resp.Body.Close()

	var msg Message
	if err := c.decode("sendPhoto", resp.Body, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// ForwardMessage forwards attributably, keeping the original sender visible.
func (c *Client) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (Message, error) {
	return c.sendReturningMessage(ctx, "forwardMessage", map[string]any{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	})
}

// DeleteMessage removes a previously sent message.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SetMyCommands publishes the public command list.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand) error {
	return c.call(ctx, "setMyCommands", map[string]any{"commands": commands}, nil)
}

// ResolveUsername maps an @username to a user id via getChat.
func (c *Client) ResolveUsername(ctx context.Context, username string) (int64, error) {
	var chat struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "getChat", map[string]any{"chat_id": "@" + username}, &chat); err != nil {
		return 0, err
	}
	return chat.ID, nil
}

// GetUpdates long-polls the platform update stream.
func (c *Client) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	var updates []Update
	err := c.call(ctx, "getUpdates", map[string]any{
		"offset":  offset,
		"timeout": 25,
	}, &updates)
	if err != nil {
		return nil, err
	}
	return updates, nil
}
