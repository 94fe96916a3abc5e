package notify

import "fmt"

// AdapterNotFoundError marks an action whose channel has no registered
// adapter. The run continues; the miss is counted and audited.
type AdapterNotFoundError struct {
	Channel string
}

func (e *AdapterNotFoundError) Error() string {
	return fmt.Sprintf("no existe un adaptador configurado para el canal '%s'", e.Channel)
}

// DeliveryError wraps an adapter failure with the channel and adapter
// that produced it
type DeliveryError struct {
	Channel string
	Adapter string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("error al entregar la notificación por '%s' usando '%s': %v", e.Channel, e.Adapter, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
