package notify

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tabladeV/manager.tabla-sub002/internal/conf"
	"github.com/tabladeV/manager.tabla-sub002/internal/logger"
	"github.com/tabladeV/manager.tabla-sub002/internal/mqtt"
	"github.com/tabladeV/manager.tabla-sub002/internal/push"
	"github.com/tabladeV/manager.tabla-sub002/internal/push/native"
	"github.com/tabladeV/manager.tabla-sub002/internal/storage"
)

// Command returns the notify command group
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send notifications to native devices",
	}

	cmd.AddCommand(sendTestCommand(settings))

	return cmd
}

// sendTestCommand returns a cobra command that publishes a test message to a
// device topic on the configured broker
func sendTestCommand(settings *conf.Settings) *cobra.Command {
	var (
		title    string
		body     string
		link     string
		device   string
		metadata []string
	)

	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Publish a test push message to a native device",
		Long: `Publish a test push message to a native device over MQTT.

The device id defaults to the one stored by the local agent.

Examples:
  # Basic notification
  tabla-push notify send-test --title="Test" --body="Hello"

  # Notification that opens a reservation when tapped
  tabla-push notify send-test --link=/reservations/42 --metadata="reservation_id=42"

  # Another device
  tabla-push notify send-test --device=3f0c9a52-7d1e-4a8b-9c55-0e4f1b2d6a77`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if device == "" {
				id, err := storedDeviceID(settings)
				if err != nil {
					return err
				}
				device = id
			}

			envelope, err := buildEnvelope(title, body, link, metadata)
			if err != nil {
				return err
			}
			payload, err := json.Marshal(envelope)
			if err != nil {
				return fmt.Errorf("failed to encode message: %w", err)
			}

			cfg := settings.Push.Native
			client, err := mqtt.NewClient(mqtt.Config{
				Broker:   cfg.Broker,
				ClientID: "tabla-push-cli-" + uuid.NewString()[:8],
				Username: cfg.Username,
				Password: cfg.Password,
				QoS:      cfg.QoS,
			}, logger.Global().Module("notify"))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
			}
			defer client.Disconnect()

			topic := native.DeviceTopic(cfg.TopicPrefix, device)
			if err := client.Publish(ctx, topic, payload); err != nil {
				return fmt.Errorf("failed to publish test message: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Test message sent: topic=%s title=%q", topic, title)
			if len(envelope.Data) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), " data=%d_keys", len(envelope.Data))
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "Test Notification", "Notification title")
	cmd.Flags().StringVar(&body, "body", "This is a test push notification", "Notification body")
	cmd.Flags().StringVar(&link, "link", "", "Deep link opened when the notification is tapped")
	cmd.Flags().StringVar(&device, "device", "", "Target device id (default: the locally stored one)")
	cmd.Flags().StringSliceVar(&metadata, "metadata", nil, "Data key-value pairs in format key=value (supports numbers, booleans, and strings)")

	return cmd
}

// buildEnvelope assembles the message body. The link travels in data, where
// receivers look for it.
func buildEnvelope(title, body, link string, metadata []string) (*native.Envelope, error) {
	data, err := parseMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if link != "" {
		data["link"] = link
	}

	envelope := &native.Envelope{
		Notification: &push.Notification{Title: title, Body: body},
	}
	if len(data) > 0 {
		envelope.Data = data
	}
	return envelope, nil
}

// parseMetadata parses key=value pairs, keeping numbers and booleans typed
func parseMetadata(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid metadata format: %s (expected key=value)", kv)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			return nil, fmt.Errorf("invalid metadata format: %s (empty key)", kv)
		}

		// Try to parse as number (float64), then boolean, otherwise keep as string
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			out[key] = floatVal
		} else if boolVal, err := strconv.ParseBool(value); err == nil {
			out[key] = boolVal
		} else {
			out[key] = value
		}
	}
	return out, nil
}

func storedDeviceID(settings *conf.Settings) (string, error) {
	kv, err := storage.Open(settings)
	if err != nil {
		return "", err
	}
	defer func() { _ = kv.Close() }()

	id, ok := kv.Get(storage.KeyPushDeviceID)
	if !ok || id == "" {
		return "", fmt.Errorf("no device id stored; start the agent on a native platform or pass --device")
	}
	return id, nil
}
