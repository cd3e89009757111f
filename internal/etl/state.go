package etl

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
)

// Identity names a pipeline together with where it loads. State is kept
// separately for every identity.
type Identity struct {
	Name        string `json:"pipeline_name"`
	Destination string `json:"destination"`
	Dataset     string `json:"dataset_name"`
}

// ResourceState is what a resource carries from one run to the next.
type ResourceState struct {
	CursorPath string `json:"cursor_path,omitempty"`
	LastValue  any    `json:"last_value,omitempty"`
	// UniqueHashes identify the records whose cursor equals LastValue.
	UniqueHashes []string `json:"unique_hashes,omitempty"`
}

type PipelineState struct {
	Identity
	LastLoadID string                    `json:"last_load_id,omitempty"`
	UpdatedAt  time.Time                 `json:"updated_at,omitempty"`
	Resources  map[string]*ResourceState `json:"resources"`
}

// Resource returns the persisted state of a resource, or nil when there is
// none for this cursor path.
func (s *PipelineState) Resource(resource, cursorPath string) *ResourceState {
	rs, ok := s.Resources[resource]
	if !ok || rs == nil || rs.CursorPath != cursorPath {
		return nil
	}
	return rs
}

// LastValue returns the persisted cursor of a resource, or nil.
func (s *PipelineState) LastValue(resource, cursorPath string) any {
	if rs := s.Resource(resource, cursorPath); rs != nil {
		return rs.LastValue
	}
	return nil
}

// StateStore keeps pipeline state as JSON files under Dir.
type StateStore struct {
	Dir string
}

func NewStateStore(dir string) *StateStore {
	return &StateStore{Dir: dir}
}

// Path returns the state file of an identity.
func (s *StateStore) Path(id Identity) string {
	return filepath.Join(s.Dir, id.Name, id.Destination, id.Dataset, "state.json")
}

// Load returns the stored state, or an empty state on the first run.
func (s *StateStore) Load(id Identity) (*PipelineState, error) {
	state := &PipelineState{Identity: id, Resources: map[string]*ResourceState{}}

	data, err := os.ReadFile(s.Path(id))
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading pipeline state %s", s.Path(id))
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, errors.Wrapf(err, "parsing pipeline state %s", s.Path(id))
	}
	if state.Resources == nil {
		state.Resources = map[string]*ResourceState{}
	}
	return state, nil
}

// Save writes state atomically.
func (s *StateStore) Save(state *PipelineState) error {
	path := s.Path(state.Identity)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating state dir for %s", state.Name)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding pipeline state")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing pipeline state %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "replacing pipeline state %s", path)
	}
	return nil
}
