package realtime

import "encoding/json"

const (
	messageTypeSessionUpdate          = "session.update"
	messageTypeConversationItemCreate = "conversation.item.create"
	messageTypeResponseCreate         = "response.create"
	messageTypeResponseCancel         = "response.cancel"

	serverEventResponseCreated   = "response.created"
	serverEventResponseTextDelta = "response.text.delta"
	serverEventResponseTextDone  = "response.text.done"
	serverEventResponseDone      = "response.done"

	itemTypeMessage      = "message"
	contentTypeInputText = "input_text"

	roleSystem = "system"
	roleUser   = "user"
)

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

func newConversationItemCreate(role, text string) conversationItemCreate {
	return conversationItemCreate{
		Type: messageTypeConversationItemCreate,
		Item: conversationItem{
			Type:    itemTypeMessage,
			Role:    role,
			Content: []contentPart{{Type: contentTypeInputText, Text: text}},
		},
	}
}

type responseCreate struct {
	Type     string `json:"type"`
	Response struct {
		Modalities   []string `json:"modalities"`
		Instructions string   `json:"instructions,omitempty"`
	} `json:"response"`
}

func newResponseCreate(instructions string) responseCreate {
	msg := responseCreate{Type: messageTypeResponseCreate}
	msg.Response.Modalities = []string{"text"}
	msg.Response.Instructions = instructions
	return msg
}

type sessionUpdate struct {
	Type    string `json:"type"`
	Session struct {
		Response struct {
			MaxOutputTokens int      `json:"max_output_tokens"`
			Modalities      []string `json:"modalities"`
		} `json:"response"`
	} `json:"session"`
}

func newSessionUpdate(maxOutputTokens int) sessionUpdate {
	msg := sessionUpdate{Type: messageTypeSessionUpdate}
	msg.Session.Response.MaxOutputTokens = maxOutputTokens
	msg.Session.Response.Modalities = []string{"text"}
	return msg
}

type typeOnlyMessage struct {
	Type string `json:"type"`
}

type textDeltaEvent struct {
	Type  string `json:"type"`
	Delta string `json:"delta"`
}

type textDoneEvent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// serverEnvelope decodes only the fields needed for dispatch; everything
// else in a server event is ignored unless it embeds an error.
type serverEnvelope struct {
	Type  string          `json:"type"`
	Error json.RawMessage `json:"error,omitempty"`
}

func unmarshal(msg []byte, v any) error {
	return json.Unmarshal(msg, v)
}
