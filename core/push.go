package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoPayload is returned for push events without data
	ErrNoPayload = errors.New("push event has no payload")

	// ErrMalformedPayload is returned when push data is not a JSON object
	ErrMalformedPayload = errors.New("malformed push payload")
)

// PushPayload is the JSON body of a push message. Every field is optional.
type PushPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	URL   string `json:"url,omitempty"`
}

// NotificationDefaults fills in whatever a push payload leaves out
type NotificationDefaults struct {
	Title   string
	Body    string
	URL     string
	Icon    string
	Badge   string
	Vibrate []int
}

// DefaultNotificationDefaults returns the storefront's notification settings.
func DefaultNotificationDefaults() NotificationDefaults {
	return NotificationDefaults{
		Title:   "Punto y Lana",
		Body:    "¡Tienes una notificación!",
		URL:     "/",
		Icon:    "/icons/icon-192x192.png",
		Badge:   "/icons/badge-72x72.png",
		Vibrate: []int{100, 50, 100},
	}
}

// ParsePush decodes push data and builds the notification to display.
func ParsePush(data []byte, defaults NotificationDefaults) (Notification, error) {
	if len(data) == 0 {
		return Notification{}, ErrNoPayload
	}

	var payload PushPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return Notification{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return NewNotification(payload, defaults), nil
}

// NewNotification builds a notification with the open/close actions.
func NewNotification(payload PushPayload, defaults NotificationDefaults) Notification {
	n := Notification{
		ID:      uuid.NewString(),
		Title:   firstNonEmpty(payload.Title, defaults.Title),
		Body:    firstNonEmpty(payload.Body, defaults.Body),
		Icon:    defaults.Icon,
		Badge:   defaults.Badge,
		Vibrate: append([]int(nil), defaults.Vibrate...),
		Data: NotificationData{
			URL: firstNonEmpty(payload.URL, defaults.URL, "/"),
		},
		Actions: []NotificationAction{
			{Action: ActionOpen, Title: "Ver"},
			{Action: ActionClose, Title: "Cerrar"},
		},
		CreatedAt: time.Now(),
	}
	return n
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
