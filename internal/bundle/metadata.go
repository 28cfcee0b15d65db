package bundle

import (
	"encoding/json"

	"github.com/cathedral-fabric/fabric/pkg/core"
)

// Metadata is the bundle's metadata.json: a run's identifying and
// descriptive envelope, per section 6.
type Metadata struct {
	RunID                 string            `json:"run_id"`
	WorkflowName          string            `json:"workflow_name"`
	WorkflowVersion       string            `json:"workflow_version"`
	StartLogicalTime      core.LogicalTime  `json:"start_logical_time"`
	CompletionLogicalTime *core.LogicalTime `json:"completion_logical_time,omitempty"`
	Status                string            `json:"status"`
	NodeCount             int               `json:"node_count"`
	EventCount            int               `json:"event_count"`
	Platform              string            `json:"platform"`
	EngineVersion         string            `json:"engine_version"`
}

func (m *Metadata) encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeMetadata(b []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
