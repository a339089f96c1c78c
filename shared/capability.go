package shared

// HandlerFunc serves one inbound Request or Notification. For a Request the
// returned value or error becomes the Response; for a Notification the value
// is dropped and an error is only logged.
type HandlerFunc func(msg *Message) (interface{}, error)

// ICapability groups a set of handlers registered together, for example the
// methods a robot exposes to the orchestrator.
type ICapability interface {
	GetHandlers() map[string]HandlerFunc
}
