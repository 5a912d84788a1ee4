package metrics

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncClickRecorded is a no-op.
func (n *NoopRecorder) IncClickRecorded() {}

// IncClickDeduplicated is a no-op.
func (n *NoopRecorder) IncClickDeduplicated() {}

// IncBotClick is a no-op.
func (n *NoopRecorder) IncBotClick() {}

// IncRedirectNotFound is a no-op.
func (n *NoopRecorder) IncRedirectNotFound() {}

// IncLinkCreated is a no-op.
func (n *NoopRecorder) IncLinkCreated() {}

// IncLinkUpdated is a no-op.
func (n *NoopRecorder) IncLinkUpdated() {}

// IncLinkDeactivated is a no-op.
func (n *NoopRecorder) IncLinkDeactivated() {}

// IncResolution is a no-op.
func (n *NoopRecorder) IncResolution(source string) {}

// IncUnresolved is a no-op.
func (n *NoopRecorder) IncUnresolved() {}

// IncConversionRecorded is a no-op.
func (n *NoopRecorder) IncConversionRecorded() {}

// IncConversionDuplicate is a no-op.
func (n *NoopRecorder) IncConversionDuplicate() {}
