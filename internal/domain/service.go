package domain

// ServiceRecord is the canonical runtime truth of one traffic-managed service.
//
// It mirrors what the control server reports, verbatim. The registry never
// normalizes ratios: a record whose backend ratios do not sum to 100 is
// stored as-is, and the sum-to-100 invariant is only enforced when an edit
// is submitted back to the server.
//
// A ServiceRecord is uniquely identified by Service.
type ServiceRecord struct {
	// Service is the unique name of the service on the control server.
	// Example: web-service
	Service string `json:"service"`

	// Status is the server-reported availability of the service.
	// Empty on update frames that do not carry it.
	Status string `json:"status,omitempty"`

	// Backends is the ordered list of targets traffic is split across.
	// Order is preserved across updates because it drives display and
	// edit ordering.
	Backends []Backend `json:"backends"`

	// TotalTraffic is an informational figure reported by the server.
	// It is carried through untouched and never edited locally.
	TotalTraffic string `json:"totalTraffic,omitempty"`

	// UpdatedAt is the server-side timestamp of the last change,
	// as an opaque string.
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Service status values reported by the control server.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Backend is one traffic target of a service.
type Backend struct {
	// ID is unique within a ServiceRecord. Some server payloads omit it,
	// in which case Name identifies the backend (see Key).
	ID string `json:"id,omitempty"`

	// Name is the backend workload name. Example: backend-1
	Name string `json:"name"`

	// Namespace the backend runs in.
	Namespace string `json:"namespace,omitempty"`

	// Port the backend listens on.
	Port int `json:"port,omitempty"`

	// Ratio is the percentage of traffic routed to this backend (0..100).
	Ratio int `json:"ratio"`
}

// Key returns the identifier used to address this backend within its
// service: the ID when present, the Name otherwise.
func (b Backend) Key() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// Clone returns a deep copy of the record. Callers that hand records across
// ownership boundaries (registry snapshots, editor working copies) must
// clone so later edits never alias shared backing arrays.
func (s ServiceRecord) Clone() ServiceRecord {
	out := s
	out.Backends = CloneBackends(s.Backends)
	return out
}

// CloneBackends returns a deep copy of a backend list. A nil input yields
// an empty, non-nil slice so JSON renders "backends": [] rather than null.
func CloneBackends(backends []Backend) []Backend {
	out := make([]Backend, len(backends))
	copy(out, backends)
	return out
}

// RatioSum returns the total of all backend ratios.
func RatioSum(backends []Backend) int {
	sum := 0
	for _, b := range backends {
		sum += b.Ratio
	}
	return sum
}
