package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const notificationTitle = "rewardrunner"

// Summary is the outcome of one run as reported to the notification endpoint.
type Summary struct {
	RunID        string
	Trigger      string
	Attempted    int
	Submitted    int
	LinksFound   int
	LinksClicked int
	Duration     time.Duration
	Err          string
}

// Message renders the summary as a single plain-text line.
func (s Summary) Message() string {
	if s.Err != "" {
		return fmt.Sprintf("Run %s (%s) failed after %s: %s",
			s.RunID, s.Trigger, s.Duration.Round(time.Second), s.Err)
	}
	return fmt.Sprintf("Run %s (%s) finished in %s: %d/%d searches submitted, %d/%d reward activities clicked",
		s.RunID, s.Trigger, s.Duration.Round(time.Second),
		s.Submitted, s.Attempted, s.LinksClicked, s.LinksFound)
}

// Notifier posts run summaries to an ntfy-style endpoint.
type Notifier struct {
	client   *http.Client
	endpoint string
}

// NewNotifier returns a Notifier for endpoint. A nil client uses
// http.DefaultClient.
func NewNotifier(client *http.Client, endpoint string) *Notifier {
	return &Notifier{client: client, endpoint: endpoint}
}

// SendRunSummary posts the summary message.
func (n *Notifier) SendRunSummary(ctx context.Context, s Summary) error {
	return Send(ctx, n.client, n.endpoint, s.Message())
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", notificationTitle)

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
