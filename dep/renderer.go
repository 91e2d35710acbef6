package dep

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"newsletter/entity"
)

type Message struct {
	Subject     string
	HtmlContent string
}

// Renderer turns a stored newsletter into the message sent to recipients.
type Renderer interface {
	Render(ctx context.Context, n *entity.Newsletter, pixelToken string) (*Message, error)
}

type storedRenderer struct {
	trackingBaseURL string
}

// NewStoredRenderer sends the stored subject and content as they are,
// appending an open pixel when a tracking base url is set.
func NewStoredRenderer(trackingBaseURL string) Renderer {
	return &storedRenderer{
		trackingBaseURL: strings.TrimSuffix(trackingBaseURL, "/"),
	}
}

func (r *storedRenderer) Render(_ context.Context, n *entity.Newsletter, pixelToken string) (*Message, error) {
	content := n.GetContent()
	if r.trackingBaseURL != "" && pixelToken != "" {
		content += fmt.Sprintf(`<img src="%s/t/open?token=%s" width="1" height="1" alt="" style="display:none">`,
			r.trackingBaseURL, url.QueryEscape(pixelToken))
	}

	return &Message{
		Subject:     n.GetSubject(),
		HtmlContent: content,
	}, nil
}
