package common

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jetrmm/sysprobe/agent/config"
	"github.com/jetrmm/sysprobe/shared"
)

// Reporter ships a finished report somewhere other than stdout.
type Reporter interface {
	Report(ctx context.Context, r *shared.Report) error
	Close()
}

// sysinfoPayload is the body the server expects on the sysinfo endpoint.
type sysinfoPayload struct {
	AgentID string         `json:"agent_id"`
	SysInfo *shared.Report `json:"sysinfo"`
}

// NewRestyClient builds the HTTP client used to talk to the RMM server.
func NewRestyClient(cfg *config.Config, logger *logrus.Logger) *resty.Client {
	headers := make(map[string]string)
	headers["Content-Type"] = "application/json"
	if len(cfg.Token) > 0 {
		headers["Authorization"] = fmt.Sprintf("Token %s", cfg.Token)
	}

	restyC := resty.New()
	restyC.SetBaseURL(cfg.ServerURL)
	restyC.SetCloseConnection(true)
	restyC.SetHeaders(headers)
	restyC.SetTimeout(cfg.Timeout)
	restyC.SetDebug(logger.IsLevelEnabled(logrus.DebugLevel))
	if len(cfg.Cert) > 0 {
		restyC.SetRootCertificate(cfg.Cert)
	}
	return restyC
}

// HTTPReporter PATCHes the report to the server's sysinfo endpoint.
type HTTPReporter struct {
	client  *resty.Client
	agentID string
	logger  *logrus.Logger
}

func NewHTTPReporter(client *resty.Client, agentID string, logger *logrus.Logger) *HTTPReporter {
	return &HTTPReporter{client: client, agentID: agentID, logger: logger}
}

func (h *HTTPReporter) Report(ctx context.Context, r *shared.Report) error {
	body, err := EncodeJSON(sysinfoPayload{AgentID: h.agentID, SysInfo: r})
	if err != nil {
		return errors.Wrap(err, "encode sysinfo")
	}

	resp, err := h.client.R().SetContext(ctx).SetBody(body).Patch(API_URL_SYSINFO)
	if err != nil {
		return errors.Wrap(err, "patch sysinfo")
	}
	if resp.IsError() {
		return errors.Errorf("patch sysinfo: server returned %s", resp.Status())
	}
	h.logger.Debugln("Sysinfo sent:", resp.Status())
	return nil
}

func (h *HTTPReporter) Close() {}

// SetupNatsOptions returns the connection options for publishing reports.
func SetupNatsOptions(cfg *config.Config, logger *logrus.Logger) []nats.Option {
	name := cfg.AgentID
	if name == "" {
		name = AGENT_NAME_LONG
	}

	opts := make([]nats.Option, 0)
	opts = append(opts, nats.Name(name))
	if cfg.Token != "" {
		opts = append(opts, nats.UserInfo(cfg.AgentID, cfg.Token))
	}
	opts = append(opts, nats.Timeout(cfg.Timeout))
	opts = append(opts, nats.NoReconnect())
	opts = append(opts, nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
		if err != nil {
			logger.Debugln("NATS disconnected:", err)
		}
	}))
	opts = append(opts, nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
		logger.Errorln("NATS error:", err)
	}))
	return opts
}

// NATSReporter publishes the msgpack-encoded report on one subject.
type NATSReporter struct {
	nc      *nats.Conn
	subject string
	logger  *logrus.Logger
}

func NewNATSReporter(cfg *config.Config, logger *logrus.Logger) (*NATSReporter, error) {
	nc, err := nats.Connect(cfg.NatsURL, SetupNatsOptions(cfg, logger)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", cfg.NatsURL)
	}
	return &NATSReporter{nc: nc, subject: cfg.NatsSubject, logger: logger}, nil
}

func (n *NATSReporter) Report(ctx context.Context, r *shared.Report) error {
	b, err := EncodeMsgpack(r)
	if err != nil {
		return errors.Wrap(err, "encode sysinfo")
	}
	if err := n.nc.Publish(n.subject, b); err != nil {
		return errors.Wrapf(err, "publish %s", n.subject)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return errors.Wrap(err, "flush")
	}
	n.logger.Debugf("Sysinfo published on %s (%d bytes)", n.subject, len(b))
	return nil
}

func (n *NATSReporter) Close() { n.nc.Close() }

// NewReporters builds one reporter per configured destination. A failed
// reporter closes the ones already opened.
func NewReporters(cfg *config.Config, logger *logrus.Logger) ([]Reporter, error) {
	var reps []Reporter
	if cfg.ServerURL != "" {
		// resty only logs an unreadable root certificate
		if cfg.Cert != "" && !FileExists(cfg.Cert) {
			return nil, errors.Errorf("cert %s not found", cfg.Cert)
		}
		reps = append(reps, NewHTTPReporter(NewRestyClient(cfg, logger), cfg.AgentID, logger))
	}
	if cfg.NatsURL != "" {
		nr, err := NewNATSReporter(cfg, logger)
		if err != nil {
			for _, r := range reps {
				r.Close()
			}
			return nil, err
		}
		reps = append(reps, nr)
	}
	return reps, nil
}

// Ship sends r to every reporter, stopping at the first failure.
func Ship(ctx context.Context, r *shared.Report, reps []Reporter, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, rep := range reps {
		if err := rep.Report(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
