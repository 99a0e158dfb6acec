package models

import "encoding/json"

type NodeType string

const (
	NodeFolder   NodeType = "folder"
	NodeTemplate NodeType = "template"
)

func (t NodeType) Valid() bool {
	return t == NodeFolder || t == NodeTemplate
}

// TemplateNode is a folder or a leaf template in the course template hierarchy.
// Children is only meaningful for folders.
type TemplateNode struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     NodeType       `json:"type"`
	Children []TemplateNode `json:"children,omitempty"`
}

func (n TemplateNode) IsFolder() bool { return n.Type == NodeFolder }

// MarshalJSON always emits children for folders, even when empty, and never for templates.
func (n TemplateNode) MarshalJSON() ([]byte, error) {
	type leaf struct {
		ID   string   `json:"id"`
		Name string   `json:"name"`
		Type NodeType `json:"type"`
	}
	if !n.IsFolder() {
		return json.Marshal(leaf{ID: n.ID, Name: n.Name, Type: n.Type})
	}
	children := n.Children
	if children == nil {
		children = []TemplateNode{}
	}
	return json.Marshal(struct {
		leaf
		Children []TemplateNode `json:"children"`
	}{leaf{ID: n.ID, Name: n.Name, Type: n.Type}, children})
}
