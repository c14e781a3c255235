package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MintHotspot/hotspot-backend-go/src/session"
	"github.com/MintHotspot/hotspot-backend-go/src/status_publisher"
	"github.com/sirupsen/logrus"
)

const DefaultStatePath = "/tmp/hotspot_state.json"

// StateStore persists the session record shared by every invocation.
type StateStore struct {
	path string
	now  func() time.Time
}

// NewStateStore creates a store at path, or at the default location.
func NewStateStore(path string) *StateStore {
	if path == "" {
		path = DefaultStatePath
	}
	return &StateStore{path: path, now: time.Now}
}

// Path returns the state file location.
func (s *StateStore) Path() string {
	return s.path
}

// Load returns the persisted state. A missing file is an Idle machine. An
// unreadable record is moved aside and also treated as Idle, since nothing
// in it can be trusted to drive a revert.
func (s *StateStore) Load() (*session.State, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return session.NewIdleState(), nil
		}
		return nil, session.NewError(session.ConfigurationError, "state_unreadable",
			"failed to read session state", err)
	}

	st := session.NewIdleState()
	if err := json.Unmarshal(data, st); err != nil || st.Phase == "" {
		aside := s.path + ".corrupt"
		logger.WithFields(logrus.Fields{
			"path":  s.path,
			"moved": aside,
		}).WithError(err).Warn("Session state is corrupt, starting from idle")
		_ = os.Rename(s.path, aside)
		return session.NewIdleState(), nil
	}
	if st.Version > session.StateVersion {
		return nil, session.NewError(session.ConfigurationError, "state_version",
			fmt.Sprintf("session state version %d is newer than supported version %d", st.Version, session.StateVersion), nil)
	}
	if st.Actions == nil {
		st.Actions = []session.Action{}
	}
	return st, nil
}

// Save atomically replaces the persisted state.
func (s *StateStore) Save(st *session.State) error {
	st.Version = session.StateVersion
	st.UpdatedAt = s.now()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}
	if err := status_publisher.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}
