package services

import (
	"context"
	"fmt"

	"github.com/meetd/meetd/agent/config"
	"github.com/meetd/meetd/agent/modules/keystore"
	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/modules/state"
	"github.com/meetd/meetd/agent/repositories/noncerepo"
	"github.com/meetd/meetd/agent/repositories/proposalrepo"
	"github.com/meetd/meetd/agent/repositories/userrepo"
	"github.com/meetd/meetd/agent/services/availabilityservice"
	"github.com/meetd/meetd/agent/services/node"
	"github.com/meetd/meetd/agent/services/proposalservice"
	"github.com/meetd/meetd/agent/services/userservice"
	"github.com/meetd/meetd/calendar"
	"github.com/meetd/meetd/relay"
	"github.com/meetd/meetd/relay/file_relay"
	"github.com/meetd/meetd/relay/kafka_relay"
	"github.com/meetd/meetd/webhook"
)

// ServiceProvider owns the daemon's object graph: storage, relay,
// repositories and services, built once from the config.
type ServiceProvider struct {
	state      state.State
	keyStore   keystore.KeyStore
	relay      relay.Relay
	dispatcher *webhook.Dispatcher

	userRepo     userrepo.UserRepo
	proposalRepo proposalrepo.ProposalRepo
	nonceRepo    noncerepo.NonceRepo

	proposalService     proposalservice.ProposalService
	availabilityService availabilityservice.AvailabilityService
	userService         userservice.UserService
	nodeService         node.NodeService
}

func InitServices(ctx context.Context, cfg *config.Config, log logger.Logger) (*ServiceProvider, error) {
	p := &ServiceProvider{}

	stg, err := state.NewLevelDBState(cfg.StateDBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init state: %w", err)
	}
	p.state = stg

	p.keyStore, err = keystore.NewLevelDBKeyStore(cfg.KeyStoreDBDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to init keystore: %w", err)
	}

	p.relay, err = initRelay(cfg.RelayConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to init relay: %w", err)
	}

	p.userRepo, err = userrepo.NewUserRepo(p.state, cfg.Topic)
	if err != nil {
		return nil, err
	}
	p.proposalRepo, err = proposalrepo.NewProposalRepo(p.state, cfg.Topic)
	if err != nil {
		return nil, err
	}
	p.nonceRepo, err = noncerepo.NewNonceRepo(p.state, cfg.Topic)
	if err != nil {
		return nil, err
	}

	p.dispatcher = webhook.NewDispatcher(webhook.NewClient(), log)

	calendars := func(refreshToken string) calendar.Provider {
		return calendar.NewGoogleCalendar(
			cfg.GoogleConfig.ClientID, cfg.GoogleConfig.ClientSecret, refreshToken)
	}

	p.proposalService = proposalservice.NewProposalService(
		p.proposalRepo, p.nonceRepo, p.userRepo, p.keyStore,
		proposalservice.CalendarFactory(calendars), p.dispatcher, log, cfg.BaseUrl)

	p.availabilityService = availabilityservice.NewAvailabilityService(
		p.userRepo, availabilityservice.CalendarFactory(calendars), log)

	p.userService = userservice.NewUserService(p.userRepo, p.keyStore)

	p.nodeService = node.NewNodeService(
		ctx, p.relay, p.state, p.userRepo, p.nonceRepo, p.proposalService, log, cfg.Topic)

	return p, nil
}

func initRelay(cfg *config.RelayConfig) (relay.Relay, error) {
	switch cfg.Type {
	case "file":
		return file_relay.NewFileRelay(cfg.Path)
	case "kafka":
		return kafka_relay.NewKafkaRelay(
			cfg.DBDSN,
			cfg.Topic,
			cfg.ConsumerGroup,
			cfg.TlsConfig,
			cfg.ProducerCredentials,
			cfg.ConsumerCredentials,
			cfg.Timeout,
		)
	}
	return nil, fmt.Errorf("unknown relay type %q", cfg.Type)
}

// Close releases the provider's resources in reverse dependency order.
func (p *ServiceProvider) Close() error {
	p.dispatcher.Close()
	if err := p.relay.Close(); err != nil {
		return fmt.Errorf("failed to close relay: %w", err)
	}
	if err := p.keyStore.Close(); err != nil {
		return fmt.Errorf("failed to close keystore: %w", err)
	}
	if err := p.state.Close(); err != nil {
		return fmt.Errorf("failed to close state: %w", err)
	}
	return nil
}

func (p *ServiceProvider) GetState() state.State {
	return p.state
}

func (p *ServiceProvider) GetKeyStore() keystore.KeyStore {
	return p.keyStore
}

func (p *ServiceProvider) GetRelay() relay.Relay {
	return p.relay
}

func (p *ServiceProvider) GetUserRepo() userrepo.UserRepo {
	return p.userRepo
}

func (p *ServiceProvider) GetProposalService() proposalservice.ProposalService {
	return p.proposalService
}

func (p *ServiceProvider) GetAvailabilityService() availabilityservice.AvailabilityService {
	return p.availabilityService
}

func (p *ServiceProvider) GetUserService() userservice.UserService {
	return p.userService
}

func (p *ServiceProvider) GetNodeService() node.NodeService {
	return p.nodeService
}
