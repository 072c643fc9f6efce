package websocket

import "github.com/tunecraft/api/internal/model"

// Notifier implements the tracking engine's notification boundary by
// pushing toast messages to the surface's browser clients.
type Notifier struct {
	hub *Hub
}

// NewNotifier creates a hub-backed notifier
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// NotifySuccess emits a success toast to the surface
func (n *Notifier) NotifySuccess(surfaceID, message string) {
	n.hub.send(surfaceID, model.WSToastMessage{
		Type:      model.WSMessageTypeToast,
		SurfaceID: surfaceID,
		Kind:      "success",
		Message:   message,
	})
}

// NotifyError emits an error toast to the surface
func (n *Notifier) NotifyError(surfaceID, message string) {
	n.hub.send(surfaceID, model.WSToastMessage{
		Type:      model.WSMessageTypeToast,
		SurfaceID: surfaceID,
		Kind:      "error",
		Message:   message,
	})
}
