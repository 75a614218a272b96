package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/meetd/meetd/agent/api/http_api"
	"github.com/meetd/meetd/agent/config"
	"github.com/meetd/meetd/agent/modules/logger"
	"github.com/meetd/meetd/agent/services"
	"github.com/meetd/meetd/relay/kafka_relay"

	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/spf13/cobra"
)

const (
	flagConfig                   = "config"
	flagUserName                 = "username"
	flagListenHost               = "host"
	flagListenPort               = "port"
	flagBaseUrl                  = "base_url"
	flagStateDBDSN               = "state_dbdsn"
	flagStoreDBDSN               = "key_store_dbdsn"
	flagTopic                    = "topic"
	flagRelayType                = "relay_type"
	flagRelayPath                = "relay_path"
	flagRelayDBDSN               = "relay_dbdsn"
	flagRelayTopic               = "relay_topic"
	flagRelayConsumerGroup       = "relay_consumer_group"
	flagKafkaProducerCredentials = "producer_credentials"
	flagKafkaConsumerCredentials = "consumer_credentials"
	flagKafkaTrustStorePath      = "kafka_truststore_path"
	flagGoogleClientID           = "google_client_id"
	flagGoogleClientSecret       = "google_client_secret"
)

func init() {
	rootCmd.PersistentFlags().String(flagConfig, "", "Path to a config file")
	rootCmd.PersistentFlags().String(flagUserName, "meetd", "Username")
	rootCmd.PersistentFlags().String(flagListenHost, "0.0.0.0", "Listen host")
	rootCmd.PersistentFlags().Int(flagListenPort, 8080, "Listen port")
	rootCmd.PersistentFlags().String(flagBaseUrl, "http://localhost:8080", "Public base URL, used in accept links")
	rootCmd.PersistentFlags().String(flagStateDBDSN, "./meetd_state", "State DBDSN")
	rootCmd.PersistentFlags().String(flagStoreDBDSN, "./meetd_key_store", "Key Store DBDSN")
	rootCmd.PersistentFlags().String(flagTopic, "meetd", "Storage namespace topic")
	rootCmd.PersistentFlags().String(flagRelayType, "file", "Relay type: file or kafka")
	rootCmd.PersistentFlags().String(flagRelayPath, "./meetd_relay", "Relay data file (file relay)")
	rootCmd.PersistentFlags().String(flagRelayDBDSN, "localhost:9092", "Kafka broker endpoint (kafka relay)")
	rootCmd.PersistentFlags().String(flagRelayTopic, "meetd_envelopes", "Relay topic")
	rootCmd.PersistentFlags().String(flagRelayConsumerGroup, "", "Kafka consumer group (kafka relay)")
	rootCmd.PersistentFlags().String(flagKafkaProducerCredentials, "", "Producer credentials for Kafka: username:password")
	rootCmd.PersistentFlags().String(flagKafkaConsumerCredentials, "", "Consumer credentials for Kafka: username:password")
	rootCmd.PersistentFlags().String(flagKafkaTrustStorePath, "", "Path to kafka truststore")
	rootCmd.PersistentFlags().String(flagGoogleClientID, "", "Google OAuth client id")
	rootCmd.PersistentFlags().String(flagGoogleClientSecret, "", "Google OAuth client secret")
}

func parseKafkaSaslPlain(creds string) (*plain.Mechanism, error) {
	if creds == "" {
		return nil, nil
	}
	credsSplit := strings.SplitN(creds, ":", 2)
	if len(credsSplit) == 1 {
		return nil, fmt.Errorf("failed to parse credentials, expected <username>:<password>")
	}
	return &plain.Mechanism{
		Username: credsSplit[0],
		Password: credsSplit[1],
	}, nil
}

func buildConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration: %v", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed(flagUserName) {
		cfg.Username, _ = flags.GetString(flagUserName)
	}
	if flags.Changed(flagListenHost) {
		cfg.HttpApiConfig.Host, _ = flags.GetString(flagListenHost)
	}
	if flags.Changed(flagListenPort) {
		cfg.HttpApiConfig.Port, _ = flags.GetInt(flagListenPort)
	}
	if flags.Changed(flagBaseUrl) {
		cfg.BaseUrl, _ = flags.GetString(flagBaseUrl)
	}
	if flags.Changed(flagStateDBDSN) {
		cfg.StateDBDSN, _ = flags.GetString(flagStateDBDSN)
	}
	if flags.Changed(flagStoreDBDSN) {
		cfg.KeyStoreDBDSN, _ = flags.GetString(flagStoreDBDSN)
	}
	if flags.Changed(flagTopic) {
		cfg.Topic, _ = flags.GetString(flagTopic)
	}
	if flags.Changed(flagRelayType) {
		cfg.RelayConfig.Type, _ = flags.GetString(flagRelayType)
	}
	if flags.Changed(flagRelayPath) {
		cfg.RelayConfig.Path, _ = flags.GetString(flagRelayPath)
	}
	if flags.Changed(flagRelayDBDSN) {
		cfg.RelayConfig.DBDSN, _ = flags.GetString(flagRelayDBDSN)
	}
	if flags.Changed(flagRelayTopic) {
		cfg.RelayConfig.Topic, _ = flags.GetString(flagRelayTopic)
	}
	if flags.Changed(flagRelayConsumerGroup) {
		cfg.RelayConfig.ConsumerGroup, _ = flags.GetString(flagRelayConsumerGroup)
	}
	if flags.Changed(flagGoogleClientID) {
		cfg.GoogleConfig.ClientID, _ = flags.GetString(flagGoogleClientID)
	}
	if flags.Changed(flagGoogleClientSecret) {
		cfg.GoogleConfig.ClientSecret, _ = flags.GetString(flagGoogleClientSecret)
	}

	if cfg.RelayConfig.Type == "kafka" {
		trustStorePath, _ := flags.GetString(flagKafkaTrustStorePath)
		tlsConfig, err := kafka_relay.GetTLSConfig(trustStorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create tls config: %v", err)
		}
		cfg.RelayConfig.TlsConfig = tlsConfig

		producerCredsString, _ := flags.GetString(flagKafkaProducerCredentials)
		if cfg.RelayConfig.ProducerCredentials, err = parseKafkaSaslPlain(producerCredsString); err != nil {
			return nil, err
		}
		consumerCredsString, _ := flags.GetString(flagKafkaConsumerCredentials)
		if cfg.RelayConfig.ConsumerCredentials, err = parseKafkaSaslPlain(consumerCredsString); err != nil {
			return nil, err
		}
	}
	if cfg.RelayConfig.Timeout == 0 {
		cfg.RelayConfig.Timeout = 10 * time.Second
	}

	return cfg, nil
}

func startAgentCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "starts the meetd agent daemon",
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := buildConfig(cmd)
			if err != nil {
				log.Fatalf("failed to read configuration: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			appLogger := logger.NewLogger(cfg.Username)

			sp, err := services.InitServices(ctx, cfg, appLogger)
			if err != nil {
				log.Fatalf("failed to init services: %v", err)
			}

			server := &http_api.RESTApiProvider{}
			if err := server.NewServer(cfg, sp); err != nil {
				log.Fatalf("failed to init http server: %v", err)
			}

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigs

				log.Println("received signal, stopping agent...")
				cancel()

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := server.Stop(shutdownCtx); err != nil {
					log.Printf("failed to stop http server: %v", err)
				}
				if err := sp.Close(); err != nil {
					log.Printf("failed to close services: %v", err)
				}
				os.Exit(0)
			}()

			go func() {
				if err := server.Start(); err != nil {
					log.Printf("http server stopped: %v", err)
				}
			}()

			nodeService := sp.GetNodeService()
			go func() {
				if err := nodeService.Sweep(); err != nil {
					appLogger.Log("sweep loop stopped: %v", err)
				}
			}()

			appLogger.Log("starting to poll envelopes from the relay...")
			if err := nodeService.Poll(); err != nil {
				log.Fatalf("error while polling the relay: %v", err)
			}
			appLogger.Log("polling is stopped")
		},
	}
}

var rootCmd = &cobra.Command{
	Use:   "meetd_d",
	Short: "meetd scheduling agent daemon",
}

func main() {
	rootCmd.AddCommand(
		startAgentCommand(),
	)
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute root command: %v", err)
	}
}
