package telegram

import "context"

// BotCommand is one entry of the public command list shown by the platform.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// API is the outbound surface of the messaging platform. The engine treats
// delivery, media handling and update dispatch as an external collaborator.
type API interface {
	SendMessage(ctx context.Context, chatID int64, text string) (Message, error)
	SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendVideo(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendVideoNote(ctx context.Context, chatID int64, fileID string) (Message, error)
	SendAudio(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendVoice(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendSticker(ctx context.Context, chatID int64, fileID string) (Message, error)
	SendAnimation(ctx context.Context, chatID int64, fileID, caption string) (Message, error)
	SendContact(ctx context.Context, chatID int64, contact Contact) (Message, error)
	SendLocation(ctx context.Context, chatID int64, location Location) (Message, error)
	SendPoll(ctx context.Context, chatID int64, question string, options []string) (Message, error)
	SendPhotoBytes(ctx context.Context, chatID int64, image []byte, caption string) (Message, error)
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) (Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SetMyCommands(ctx context.Context, commands []BotCommand) error
	ResolveUsername(ctx context.Context, username string) (int64, error)
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}
