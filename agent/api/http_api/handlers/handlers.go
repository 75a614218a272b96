package handlers

import (
	"github.com/meetd/meetd/agent/services"
	"github.com/meetd/meetd/agent/services/availabilityservice"
	"github.com/meetd/meetd/agent/services/node"
	"github.com/meetd/meetd/agent/services/proposalservice"
	"github.com/meetd/meetd/agent/services/userservice"
	"github.com/meetd/meetd/webhook"
)

type HTTPApp struct {
	proposals     proposalservice.ProposalService
	availability  availabilityservice.AvailabilityService
	users         userservice.UserService
	node          node.NodeService
	webhookClient *webhook.Client
}

func NewHTTPApp(sp *services.ServiceProvider) *HTTPApp {
	return &HTTPApp{
		proposals:     sp.GetProposalService(),
		availability:  sp.GetAvailabilityService(),
		users:         sp.GetUserService(),
		node:          sp.GetNodeService(),
		webhookClient: webhook.NewClient(),
	}
}
