package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/pkg/errors"

	"github.com/zhouzirui/supportbot/internal/model/chat"
)

// ContextWindow is how many trailing transcript entries accompany a remote request.
const ContextWindow = 5

// UnsureReply is used when the endpoint answers without any recognised reply field.
const UnsureReply = "I received your message, but I'm not sure how to respond."

// ErrRemoteStatus wraps non-2xx answers from the endpoint.
var ErrRemoteStatus = errors.New("remote endpoint returned non-success status")

// RemoteRequest is the JSON body posted to the endpoint.
type RemoteRequest struct {
	Message string         `json:"message"`
	Context []chat.Message `json:"context"`
}

// RemoteReply lists the response shapes the endpoint may use. Fields are
// decoded loosely: a non-string value such as a number still counts as a
// reply, while empty strings, zero, false and null do not. Reply applies the
// precedence response > message > text > choices[0].message.content.
type RemoteReply struct {
	Response any           `json:"response,omitempty"`
	Message  any           `json:"message,omitempty"`
	Text     any           `json:"text,omitempty"`
	Choices  []ReplyChoice `json:"choices,omitempty"`
}

// ReplyChoice mirrors an OpenAI chat completion choice.
type ReplyChoice struct {
	Message struct {
		Content any `json:"content"`
	} `json:"message"`
}

// Reply returns the first populated field, or UnsureReply.
func (r RemoteReply) Reply() string {
	for _, v := range []any{r.Response, r.Message, r.Text} {
		if text := replyText(v); text != "" {
			return text
		}
	}
	if len(r.Choices) > 0 {
		if text := replyText(r.Choices[0].Message.Content); text != "" {
			return text
		}
	}
	return UnsureReply
}

// replyText renders a decoded JSON value as reply text. Values that would be
// falsy in a browser yield "".
func replyText(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
		return "true"
	case float64:
		if val == 0 {
			return ""
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

// RemoteClient posts user messages to a configured HTTP endpoint.
type RemoteClient struct {
	endpoint string
	apiKey   string
	headers  map[string]string
	client   *http.Client
}

// NewRemoteClient builds a client. A nil httpClient uses http.DefaultClient,
// whose only timeouts are the transport's.
func NewRemoteClient(endpoint, apiKey string, headers map[string]string, httpClient *http.Client) *RemoteClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &RemoteClient{endpoint: endpoint, apiKey: apiKey, headers: copied, client: httpClient}
}

// GenerateResponse sends one request and extracts the reply.
func (c *RemoteClient) GenerateResponse(ctx context.Context, userText string, transcript []chat.Message) (string, error) {
	window := transcript
	if len(window) > ContextWindow {
		window = window[len(window)-ContextWindow:]
	}
	if window == nil {
		window = []chat.Message{}
	}

	body, err := json.Marshal(RemoteRequest{Message: userText, Context: window})
	if err != nil {
		return "", errors.Wrap(err, "encode remote request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build remote request")
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "remote request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", errors.Wrap(ErrRemoteStatus, fmt.Sprintf("status %d", resp.StatusCode))
	}

	var reply RemoteReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", errors.Wrap(err, "decode remote response")
	}
	return reply.Reply(), nil
}
