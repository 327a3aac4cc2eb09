package bot

import (
	"fmt"

	domerrors "github.com/calamars-bot/calamars-go/internal/errors"
)

// Reply is what the bot answers to one inbound message. Each text is sent
// as a separate platform message, in order.
type Reply struct {
	Texts []string
}

// Text builds a Reply from texts, dropping empty ones.
func Text(texts ...string) Reply {
	var r Reply
	for _, t := range texts {
		if t != "" {
			r.Texts = append(r.Texts, t)
		}
	}
	return r
}

// IsEmpty reports whether there is nothing to send.
func (r Reply) IsEmpty() bool {
	return len(r.Texts) == 0
}

// toReply converts a route result into a Reply. Handlers may return an
// error to signal failure; other unsupported types are rejected with
// errors.ErrUnsupportedReply.
func toReply(result any) (Reply, error) {
	switch v := result.(type) {
	case nil:
		return Reply{}, nil
	case string:
		return Text(v), nil
	case []string:
		return Text(v...), nil
	case Reply:
		return Text(v.Texts...), nil
	case *Reply:
		if v == nil {
			return Reply{}, nil
		}
		return Text(v.Texts...), nil
	case error:
		return Reply{}, v
	case fmt.Stringer:
		return Text(v.String()), nil
	default:
		return Reply{}, fmt.Errorf("%w: %T", domerrors.ErrUnsupportedReply, result)
	}
}
