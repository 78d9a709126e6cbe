package widgets

import (
	"context"
	"net/http"
)

// MailerClient asks the email backend to send the download link
type MailerClient struct {
	backend
}

func NewMailerClient(url string, httpClient *http.Client) *MailerClient {
	return &MailerClient{backend: newBackend(url, httpClient)}
}

type mailRequest struct {
	Email string `json:"email"`
}

// RequestLink posts the address to the email backend. A rejection carries
// the backend's message in an *UpstreamError.
func (c *MailerClient) RequestLink(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, c.url, mailRequest{Email: email}, nil)
}
