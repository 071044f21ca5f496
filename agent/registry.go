package agent

import (
	"fmt"
	"runtime"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/jetrmm/sysprobe/agent/config"
	"github.com/jetrmm/sysprobe/shared"
)

var (
	agentProvider AgentProvider
)

type AgentProvider interface {
	Agent(logger *logrus.Logger, cfg *config.Config, version string) (Agent, error)
}

func Register(provider interface{}) {
	if a, ok := provider.(AgentProvider); ok {
		if agentProvider != nil {
			panic(fmt.Sprintf("AgentProvider already registered: %v", agentProvider))
		}
		agentProvider = a
	}
}

func GetAgentProvider() AgentProvider { return agentProvider }

// New builds the agent for this platform, or returns shared.ErrUnsupported
// when no platform package registered one.
func New(logger *logrus.Logger, cfg *config.Config, version string) (Agent, error) {
	p := GetAgentProvider()
	if p == nil {
		return nil, errors.Wrapf(shared.ErrUnsupported, "no agent for %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	return p.Agent(logger, cfg, version)
}
