package testtree

import "time"

// NodeProjection is the serializable view of a node handed to reporters.
type NodeProjection struct {
	Name        string           `json:"name"`
	Path        string           `json:"path"`
	Description string           `json:"description,omitempty"`
	MinVersion  string           `json:"minVersion,omitempty"`
	MaxVersion  string           `json:"maxVersion,omitempty"`
	Children    []NodeProjection `json:"children,omitempty"`
	ID          string           `json:"id,omitempty"`
	Status      string           `json:"status,omitempty"`
	StartedAt   *time.Time       `json:"startedAt,omitempty"`
	EndedAt     *time.Time       `json:"endedAt,omitempty"`
}

// Project returns the projection of a suite or test, recursively for suites.
func Project(n Node) NodeProjection {
	info := n.Info()
	p := NodeProjection{
		Name:        info.name,
		Path:        info.path,
		Description: info.description,
	}
	if info.minVersion.IsDefined() {
		p.MinVersion = info.minVersion.String()
	}
	if info.maxVersion.IsDefined() {
		p.MaxVersion = info.maxVersion.String()
	}
	switch node := n.(type) {
	case *Suite:
		p.Children = make([]NodeProjection, 0, len(node.children))
		for _, c := range node.children {
			p.Children = append(p.Children, Project(c))
		}
	case *Test:
		p.ID = node.id
		p.Status = node.status.String()
		if !node.startedAt.IsZero() {
			started := node.startedAt
			p.StartedAt = &started
		}
		if !node.endedAt.IsZero() {
			ended := node.endedAt
			p.EndedAt = &ended
		}
	}
	return p
}
