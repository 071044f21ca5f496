package common

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jetrmm/sysprobe/agent/config"
	"github.com/jetrmm/sysprobe/shared"
)

// Sources are the platform inputs a report is built from.
type Sources struct {
	Querier Querier
	Reader  ValueReader
	Env     Environment
}

// Agent holds what every platform agent shares.
type Agent struct {
	*config.Config
	Logger  *logrus.Logger
	Version string
}

func NewAgent(logger *logrus.Logger, cfg *config.Config, version string) Agent {
	return Agent{Config: cfg, Logger: logger, Version: version}
}

// Collect runs every record builder. A failed section is left nil and its
// error recorded on the report; the other sections are still collected.
func (a *Agent) Collect(src Sources, now time.Time) (*shared.Report, error) {
	r, err := NewReport(a.AgentID, now)
	if err != nil {
		return nil, err
	}

	if host, err := CollectHostInfo(a.Logger); err != nil {
		a.Logger.Warnln("Host info:", err)
		r.Fail("host", err)
	} else {
		r.Host = host
	}

	if osInfo, err := BuildOSInfo(src.Querier, src.Reader, src.Env); err != nil {
		a.Logger.Warnln("OS info:", err)
		r.Fail("os", err)
	} else {
		r.OS = osInfo
	}

	if hw, err := BuildHardwareInfo(src.Querier); err != nil {
		a.Logger.Warnln("Hardware info:", err)
		r.Fail("hardware", err)
	} else {
		r.Hardware = hw
	}
	return r, nil
}

// Publish renders r to w and ships it to every configured reporter.
func (a *Agent) Publish(ctx context.Context, w io.Writer, r *shared.Report) error {
	if err := RenderReport(w, r, a.Format()); err != nil {
		return err
	}

	reps, err := NewReporters(a.Config, a.Logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, rep := range reps {
			rep.Close()
		}
	}()
	return Ship(ctx, r, reps, a.Timeout)
}
