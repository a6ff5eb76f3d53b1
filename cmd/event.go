package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/trufflehub/farm-management/internal/core/events"
	"github.com/trufflehub/farm-management/pkg/logger"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Manage events: publish test events, monitor event bus, inspect handlers`,
}

var publishEventCmd = &cobra.Command{
	Use:   "publish [event-type]",
	Short: "Publish a test event",
	Long:  `Publish a test event to the event bus for testing and debugging`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		publishTestEvent(args[0])
	},
}

var eventData string

func publishTestEvent(eventType string) {
	lg := logger.LoggerWrapper()

	eventBus := events.NewEventBus(lg)

	eventBus.Subscribe(eventType, func(ctx context.Context, event events.Event) error {
		lg.Info("test handler received event",
			"event_id", event.EventID(),
			"event_type", event.EventType(),
			"payload", event.Payload())
		return nil
	})

	evt := events.BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"data": eventData},
	}

	if err := eventBus.Publish(context.Background(), evt); err != nil {
		fmt.Printf("failed to publish event: %v\n", err)
		return
	}

	// Give the async handler a moment before the process exits.
	time.Sleep(200 * time.Millisecond)
	fmt.Println("event published:", eventType)
}

func init() {
	publishEventCmd.Flags().StringVar(&eventData, "data", "", "Payload data for the test event")

	eventCmd.AddCommand(publishEventCmd)
	rootCmd.AddCommand(eventCmd)
}
