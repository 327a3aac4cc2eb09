package line

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/calamars-bot/calamars-go/internal/message"
)

// inbound is a LINE event the bot can answer.
type inbound struct {
	msg        *message.Message
	replyToken string
	eventID    string
	redelivery bool
	personal   bool
}

// convert maps text message and postback events to a canonical message.
// Group and room text is only kept when it mentions the bot, with the
// mention removed. ok is false for events the bot does not answer.
func convert(event webhook.EventInterface) (in inbound, ok bool) {
	var (
		source    webhook.SourceInterface
		text      string
		messageID string
		ts        int64
	)

	switch e := event.(type) {
	case webhook.MessageEvent:
		content, isText := e.Message.(webhook.TextMessageContent)
		if !isText {
			return inbound{}, false
		}
		text = content.Text
		if !isPersonal(e.Source) {
			if !isBotMentioned(content) {
				return inbound{}, false
			}
			text = removeBotMentions(text, content.Mention)
		}
		source, messageID, ts = e.Source, content.Id, e.Timestamp
		in.replyToken, in.eventID, in.redelivery = e.ReplyToken, e.WebhookEventId, isRedelivery(e.DeliveryContext)
	case webhook.PostbackEvent:
		if e.Postback == nil || e.Postback.Data == "" {
			return inbound{}, false
		}
		text = e.Postback.Data
		source, ts = e.Source, e.Timestamp
		in.replyToken, in.eventID, in.redelivery = e.ReplyToken, e.WebhookEventId, isRedelivery(e.DeliveryContext)
	default:
		return inbound{}, false
	}

	chatID := chatIDOf(source)
	if chatID == "" {
		return inbound{}, false
	}
	in.personal = isPersonal(source)
	in.msg = &message.Message{
		Text:      &text,
		Timestamp: ts,
		MessageID: messageID,
		SenderID:  userIDOf(source),
		ChatID:    chatID,
		Platform:  message.PlatformLINE,
	}
	return in, true
}

func isRedelivery(ctx *webhook.DeliveryContext) bool {
	return ctx != nil && ctx.IsRedelivery
}

// chatIDOf returns the user, group or room id a reply should go to.
func chatIDOf(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	}
	return ""
}

// userIDOf returns the sending user regardless of chat type.
func userIDOf(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	}
	return ""
}

func isPersonal(source webhook.SourceInterface) bool {
	_, ok := source.(webhook.UserSource)
	return ok
}

// isBotMentioned reports whether any mentionee is the bot itself.
func isBotMentioned(content webhook.TextMessageContent) bool {
	if content.Mention == nil {
		return false
	}
	for _, m := range content.Mention.Mentionees {
		if um, ok := m.(webhook.UserMentionee); ok && um.IsSelf {
			return true
		}
	}
	return false
}

type span struct{ start, end int }

// removeBotMentions cuts the bot's own mentions out of text. LINE reports
// mention positions in characters, so the text is edited as runes.
func removeBotMentions(text string, mention *webhook.Mention) string {
	if mention == nil {
		return text
	}
	var spans []span
	for _, m := range mention.Mentionees {
		if um, ok := m.(webhook.UserMentionee); ok && um.IsSelf {
			spans = append(spans, span{int(um.Index), int(um.Index + um.Length)})
		}
	}
	if len(spans) == 0 {
		return text
	}

	// Back to front keeps earlier indexes valid
	slices.SortFunc(spans, func(a, b span) int { return b.start - a.start })

	runes := []rune(text)
	for _, s := range spans {
		start, end := max(s.start, 0), min(s.end, len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}
