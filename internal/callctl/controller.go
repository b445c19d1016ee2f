// Package callctl talks to the telephony provider's REST control plane.
// The voice pipeline only ever needs one operation from it: hanging a
// call up once the conversation is over.
package callctl

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voxline-ai/voxline-core/internal/config"
)

// Controller ends live calls. Implementations are fire-and-forget from
// the relay's point of view; a failed hangup is logged, not retried.
type Controller interface {
	EndCall(ctx context.Context, callID string) error
}

type twilioController struct {
	cfg    config.TelephonyConfig
	log    *slog.Logger
	client *http.Client
}

func NewTwilioController(cfg config.TelephonyConfig, logger *slog.Logger) Controller {
	return &twilioController{
		cfg:    cfg,
		log:    logger.With(slog.String("component", "callctl")),
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EndCall marks the call completed through the provider REST API, which
// drops the media leg on the carrier side.
func (c *twilioController) EndCall(ctx context.Context, callID string) error {
	if callID == "" || callID == "unknown" {
		return fmt.Errorf("refusing to end call with invalid id %q", callID)
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json",
		strings.TrimRight(c.cfg.APIBaseURL, "/"), c.cfg.AccountSID, callID)
	form := url.Values{"Status": []string{"completed"}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("end call %s: %w", callID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("end call %s: status %s: %s", callID, resp.Status, strings.TrimSpace(string(data)))
	}
	c.log.Info("call terminated", slog.String("call_id", callID))
	return nil
}

// NopController ignores hangup requests; used in mock mode where no
// real telephony provider is attached.
type NopController struct{}

func (NopController) EndCall(context.Context, string) error { return nil }
