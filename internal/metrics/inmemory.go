package metrics

import "sync"

// InMemoryRecorder implements Recorder with in-process counters.
// Useful for the /metrics debug endpoint and for tests.
type InMemoryRecorder struct {
	mu sync.Mutex

	clicksRecorded       int64
	clicksDeduplicated   int64
	botClicks            int64
	redirectNotFound     int64
	linksCreated         int64
	linksUpdated         int64
	linksDeactivated     int64
	resolutions          map[string]int64
	unresolved           int64
	conversionsRecorded  int64
	conversionsDuplicate int64
}

// NewInMemory returns a Recorder backed by in-process counters.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{resolutions: make(map[string]int64)}
}

func (m *InMemoryRecorder) IncClickRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicksRecorded++
}

func (m *InMemoryRecorder) IncClickDeduplicated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clicksDeduplicated++
}

func (m *InMemoryRecorder) IncBotClick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botClicks++
}

func (m *InMemoryRecorder) IncRedirectNotFound() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.redirectNotFound++
}

func (m *InMemoryRecorder) IncLinkCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linksCreated++
}

func (m *InMemoryRecorder) IncLinkUpdated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linksUpdated++
}

func (m *InMemoryRecorder) IncLinkDeactivated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linksDeactivated++
}

func (m *InMemoryRecorder) IncResolution(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolutions[source]++
}

func (m *InMemoryRecorder) IncUnresolved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unresolved++
}

func (m *InMemoryRecorder) IncConversionRecorded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversionsRecorded++
}

func (m *InMemoryRecorder) IncConversionDuplicate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversionsDuplicate++
}

// Snapshot returns a copy of all counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	resolutions := make(map[string]int64, len(m.resolutions))
	for k, v := range m.resolutions {
		resolutions[k] = v
	}

	return Snapshot{
		ClicksRecorded:       m.clicksRecorded,
		ClicksDeduplicated:   m.clicksDeduplicated,
		BotClicks:            m.botClicks,
		RedirectNotFound:     m.redirectNotFound,
		LinksCreated:         m.linksCreated,
		LinksUpdated:         m.linksUpdated,
		LinksDeactivated:     m.linksDeactivated,
		Resolutions:          resolutions,
		Unresolved:           m.unresolved,
		ConversionsRecorded:  m.conversionsRecorded,
		ConversionsDuplicate: m.conversionsDuplicate,
	}
}
