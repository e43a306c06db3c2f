// Package discord exposes the course chat over a Discord bot.
package discord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/campusify/coursechat/internal/domain/entities"
)

const maxMessageLength = 2000

// SessionService is the session side of the chat used by the bot.
type SessionService interface {
	StartSession(ctx context.Context, filter entities.SessionFilter, userID string) (*entities.SessionSummary, error)
	GetHistory(ctx context.Context, sessionID, userID string) (*entities.History, error)
}

// ChatService answers questions within a session.
type ChatService interface {
	AskQuestion(ctx context.Context, sessionID, question string) (*entities.Answer, error)
}

// Bot routes prefixed Discord messages to the chat use cases. Each user has
// one active session per channel.
type Bot struct {
	session  *discordgo.Session
	sessions SessionService
	chat     ChatService
	prefix   string
	timeout  time.Duration
	send     func(channelID, content string) error

	mu     sync.Mutex
	active map[string]string // user/channel key -> chat ID
}

// NewBot creates a Bot for the given token. Call Start to connect.
func NewBot(token, prefix string, timeout time.Duration, sessions SessionService, chat ChatService) (*Bot, error) {
	if token == "" {
		return nil, errors.New("missing Discord bot token")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}

	b := newBot(prefix, timeout, sessions, chat)
	b.session = dg
	b.send = func(channelID, content string) error {
		_, err := dg.ChannelMessageSend(channelID, content)
		return err
	}

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		log.Printf("[OK] Discord bot online as %s in %d servers", r.User.Username, len(r.Guilds))
	})
	dg.AddHandler(b.messageCreate)
	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent

	return b, nil
}

func newBot(prefix string, timeout time.Duration, sessions SessionService, chat ChatService) *Bot {
	if prefix == "" {
		prefix = "!course"
	}
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Bot{
		sessions: sessions,
		chat:     chat,
		prefix:   strings.TrimSpace(prefix),
		timeout:  timeout,
		active:   make(map[string]string),
	}
}

// Start opens the gateway connection.
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("opening Discord connection: %w", err)
	}
	log.Printf("[INFO] Discord bot listening for '%s' commands", b.prefix)
	return nil
}

// Stop closes the gateway connection.
func (b *Bot) Stop() error {
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if strings.HasPrefix(strings.TrimSpace(m.Content), b.prefix+" ask") {
		_ = s.ChannelTyping(m.ChannelID)
	}

	reply, ok := b.Handle(ctx, m.Author.ID, m.ChannelID, m.Content)
	if !ok {
		return
	}
	b.reply(m.ChannelID, reply)
}

// Handle runs one command and returns the reply. ok is false when content
// is not addressed to the bot.
func (b *Bot) Handle(ctx context.Context, authorID, channelID, content string) (reply string, ok bool) {
	content = strings.TrimSpace(content)
	if content != b.prefix && !strings.HasPrefix(content, b.prefix+" ") {
		return "", false
	}

	rest := strings.TrimSpace(strings.TrimPrefix(content, b.prefix))
	command, args, _ := strings.Cut(rest, " ")
	args = strings.TrimSpace(args)
	userID := "discord:" + authorID
	key := authorID + "/" + channelID

	switch strings.ToLower(command) {
	case "start":
		return b.start(ctx, key, userID, args), true
	case "ask":
		return b.ask(ctx, key, args), true
	case "history":
		return b.history(ctx, key, userID), true
	case "resume":
		return b.resume(ctx, key, userID, args), true
	default:
		return b.usage(), true
	}
}

func (b *Bot) start(ctx context.Context, key, userID, args string) string {
	parts := strings.Split(args, "|")
	if len(parts) != 5 {
		return fmt.Sprintf("Usage: `%s start <year> | <semester> | <subject> | <regulation> | <unit>`", b.prefix)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	summary, err := b.sessions.StartSession(ctx, entities.SessionFilter{
		Year:       parts[0],
		Semester:   parts[1],
		Subject:    parts[2],
		Regulation: parts[3],
		Unit:       parts[4],
	}, userID)
	if err != nil {
		return describeError(err)
	}

	b.mu.Lock()
	b.active[key] = summary.SessionID
	b.mu.Unlock()

	return fmt.Sprintf("Started a %s (%s) chat. Ask away with `%s ask <question>`.\nChat ID: `%s`",
		summary.Subject, summary.Regulation, b.prefix, summary.SessionID)
}

func (b *Bot) ask(ctx context.Context, key, question string) string {
	if question == "" {
		return fmt.Sprintf("Usage: `%s ask <question>`", b.prefix)
	}
	chatID, ok := b.activeSession(key)
	if !ok {
		return fmt.Sprintf("No active chat. Start one with `%s start ...`.", b.prefix)
	}

	answer, err := b.chat.AskQuestion(ctx, chatID, question)
	if err != nil {
		log.Printf("[ERROR] Discord ask in %s: %v", chatID, err)
		return describeError(err)
	}
	return answer.Response
}

func (b *Bot) history(ctx context.Context, key, userID string) string {
	chatID, ok := b.activeSession(key)
	if !ok {
		return fmt.Sprintf("No active chat. Start one with `%s start ...`.", b.prefix)
	}

	history, err := b.sessions.GetHistory(ctx, chatID, userID)
	if err != nil {
		return describeError(err)
	}
	if len(history.Messages) == 0 {
		return "No messages yet."
	}

	var sb strings.Builder
	for _, msg := range history.Messages {
		label := "**You**"
		if msg.Role == entities.RoleSystem {
			label = "**Bot**"
		}
		fmt.Fprintf(&sb, "%s: %s\n", label, msg.Content)
	}
	return strings.TrimSpace(sb.String())
}

func (b *Bot) resume(ctx context.Context, key, userID, chatID string) string {
	if chatID == "" {
		return fmt.Sprintf("Usage: `%s resume <chatId>`", b.prefix)
	}
	if _, err := b.sessions.GetHistory(ctx, chatID, userID); err != nil {
		return describeError(err)
	}

	b.mu.Lock()
	b.active[key] = chatID
	b.mu.Unlock()
	return fmt.Sprintf("Resumed chat `%s`.", chatID)
}

func (b *Bot) activeSession(key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.active[key]
	return id, ok
}

func (b *Bot) usage() string {
	p := b.prefix
	return strings.Join([]string{
		"Commands:",
		fmt.Sprintf("`%s start <year> | <semester> | <subject> | <regulation> | <unit>`", p),
		fmt.Sprintf("`%s ask <question>`", p),
		fmt.Sprintf("`%s history`", p),
		fmt.Sprintf("`%s resume <chatId>`", p),
	}, "\n")
}

func (b *Bot) reply(channelID, message string) {
	for i, chunk := range splitMessage(message, maxMessageLength-100) {
		if i > 0 {
			time.Sleep(200 * time.Millisecond)
		}
		if err := b.send(channelID, chunk); err != nil {
			log.Printf("[ERROR] Sending Discord message: %v", err)
			return
		}
	}
}

func describeError(err error) string {
	switch {
	case errors.Is(err, entities.ErrInvalidRequest):
		return "That request is missing something: " + err.Error()
	case errors.Is(err, entities.ErrNoMaterialFound):
		return "No course material found for the selected criteria."
	case errors.Is(err, entities.ErrNotFound):
		return "Chat not found."
	case errors.Is(err, entities.ErrConflict):
		return "That chat was just updated elsewhere. Please try again."
	case entities.IsUpstreamFailure(err):
		return "I couldn't reach the answering service. Please try again shortly."
	default:
		return "Something went wrong. Please try again."
	}
}

// splitMessage splits a message into chunks of at most maxLength bytes,
// preferring word boundaries.
func splitMessage(message string, maxLength int) []string {
	if len(message) <= maxLength {
		return []string{message}
	}

	var chunks []string
	for len(message) > maxLength {
		splitIndex := maxLength
		if spaceIndex := strings.LastIndex(message[:maxLength], " "); spaceIndex > maxLength/2 {
			splitIndex = spaceIndex
		}
		for splitIndex > 0 && !utf8Start(message[splitIndex]) {
			splitIndex--
		}

		chunks = append(chunks, message[:splitIndex])
		message = strings.TrimPrefix(message[splitIndex:], " ")
	}

	if len(message) > 0 {
		chunks = append(chunks, message)
	}
	return chunks
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
