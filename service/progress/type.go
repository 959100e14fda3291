package progress

// Snapshot is the progress of one render run.
type Snapshot struct {
	Type   string `json:"type"`
	RunID  string `json:"runId,omitempty"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Finish bool   `json:"finish"`
}

type IService interface {
	Report(done, total int)
	Finish()
}

type noopService struct{}

func NewNoop() IService {
	return noopService{}
}

func (noopService) Report(_, _ int) {}

func (noopService) Finish() {}

type multiService struct {
	svcs []IService
}

// NewMulti fans every report out to svcs in order.
func NewMulti(svcs ...IService) IService {
	return &multiService{svcs: svcs}
}

func (m *multiService) Report(done, total int) {
	for _, s := range m.svcs {
		s.Report(done, total)
	}
}

func (m *multiService) Finish() {
	for _, s := range m.svcs {
		s.Finish()
	}
}
