package cache

// Metrics reports what the cache is doing.
// Each method is called once per matching event.
type Metrics interface {
	Hit()
	Miss()
	Expire()
	Write()
	Failure()
}

// NoopMetrics ignores every event, it is the default.
type NoopMetrics struct{}

func (NoopMetrics) Hit()     {}
func (NoopMetrics) Miss()    {}
func (NoopMetrics) Expire()  {}
func (NoopMetrics) Write()   {}
func (NoopMetrics) Failure() {}

// Key namespaces shared by the session, notification and message layers.
const (
	SessionPrefix      = "session:"
	NotificationPrefix = "notification:"
	MessagePrefix      = "message:"
)
