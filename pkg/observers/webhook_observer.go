package observers

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/anggasct/exflow"
	"github.com/anggasct/exflow/pkg/config"
	"github.com/anggasct/exflow/pkg/httpclient"
)

// Webhook event names
const (
	WebhookSubmitted     = "submitted"
	WebhookStatusChanged = "status_changed"
	WebhookVoided        = "voided"
)

// WebhookPayload is the JSON body posted for every notification
type WebhookPayload struct {
	Event      string        `json:"event"`
	RequestID  string        `json:"requestID"`
	Phase      exflow.Phase  `json:"phase"`
	Status     exflow.Status `json:"status"`
	ServerName string        `json:"serverName"`
	Requester  string        `json:"requester"`
	// ApproverRole is the form label for the approving role
	ApproverRole string `json:"approverRole"`
	Approver     string `json:"approver"`
}

// WebhookObserver posts submissions, status changes and voids to a URL.
// Delivery failures are logged and never affect the workflow.
type WebhookObserver struct {
	exflow.BaseObserver

	url     string
	client  *resty.Client
	logger  hclog.Logger
	timeout time.Duration
}

// NewWebhookObserver creates a webhook observer for cfg.WebhookURL
func NewWebhookObserver(logger hclog.Logger, cfg config.Notify) *WebhookObserver {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	client := httpclient.New(logger, cfg.HTTPClient).
		SetHeader("Content-Type", "application/json")

	return &WebhookObserver{
		url:     cfg.WebhookURL,
		client:  client,
		logger:  logger,
		timeout: config.SetThen(cfg.HTTPClient.Timeout, config.DefaultHTTPClient().Timeout),
	}
}

// OnSubmitted posts a submission notification
func (o *WebhookObserver) OnSubmitted(request *exflow.ExceptionRequest) {
	o.post(WebhookSubmitted, request)
}

// OnStatusChange posts a status change notification. Voids are posted by OnVoided.
func (o *WebhookObserver) OnStatusChange(from, to exflow.Status, request *exflow.ExceptionRequest) {
	if to == exflow.StatusVoided {
		return
	}
	o.post(WebhookStatusChanged, request)
}

// OnVoided posts a void notification
func (o *WebhookObserver) OnVoided(request *exflow.ExceptionRequest) {
	o.post(WebhookVoided, request)
}

func approverName(c exflow.Contact) string {
	if name := c.FullName(); name != "" {
		return name
	}
	return c.Username
}

func (o *WebhookObserver) post(event string, request *exflow.ExceptionRequest) {
	payload := WebhookPayload{
		Event:      event,
		RequestID:  request.RequestID,
		Phase:      request.Phase,
		Status:     request.Status,
		ServerName: request.ServerName(),
		Requester:  request.RequestedBy,

		ApproverRole: request.ApproverLabel(),
		Approver:     approverName(request.Approver),
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(o.url)
	if err != nil {
		o.logger.Warn("webhook delivery failed", "event", event, "requestID", request.RequestID, "error", err)
		return
	}
	if resp.IsError() {
		o.logger.Warn("webhook rejected", "event", event, "requestID", request.RequestID, "status", resp.StatusCode())
		return
	}
	o.logger.Debug("webhook delivered", "event", event, "requestID", request.RequestID)
}
