package convflow

import (
	"errors"
	"fmt"
	"time"
)

// NodeType classifies a node in a conversation flow.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeMessage      NodeType = "message"
	NodeCondition    NodeType = "condition"
	NodeDelay        NodeType = "delay"
	NodeHumanHandoff NodeType = "human_handoff"
	NodeEnd          NodeType = "end"
)

var (
	ErrFlowNotFound         = errors.New("flow not found")
	ErrConversationNotFound = errors.New("conversation not found")
)

// Node is one step in a conversation flow. Message nodes carry either a
// spintax template reference or literal content.
type Node struct {
	ID           string            `json:"id" yaml:"id"`
	Type         NodeType          `json:"type" yaml:"type"`
	Content      string            `json:"content,omitempty" yaml:"content,omitempty"`
	TemplateID   string            `json:"template_id,omitempty" yaml:"template_id,omitempty"`
	DelaySeconds int               `json:"delay_seconds,omitempty" yaml:"delay_seconds,omitempty"`
	NextNodes    map[string]string `json:"next_nodes,omitempty" yaml:"next_nodes,omitempty"` // intent -> node id
	DefaultNext  string            `json:"default_next,omitempty" yaml:"default_next,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Flow is a complete conversation flow definition.
type Flow struct {
	ID          string            `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description" yaml:"description"`
	Nodes       map[string]*Node  `json:"nodes" yaml:"-"`
	StartNodeID string            `json:"start_node_id" yaml:"start_node_id"`
	Variables   map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`
	Platform    string            `json:"platform" yaml:"platform"`
	Active      bool              `json:"active" yaml:"active"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
}

// Validate checks structural integrity: the start node exists and every
// edge points at a defined node.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return errors.New("flow id is required")
	}
	if len(f.Nodes) == 0 {
		return fmt.Errorf("flow %s has no nodes", f.ID)
	}
	start := f.StartNodeID
	if start == "" {
		start = "start"
	}
	if _, ok := f.Nodes[start]; !ok {
		return fmt.Errorf("flow %s: start node %q not defined", f.ID, start)
	}
	for id, node := range f.Nodes {
		if node.DefaultNext != "" {
			if _, ok := f.Nodes[node.DefaultNext]; !ok {
				return fmt.Errorf("flow %s: node %s default_next %q not defined", f.ID, id, node.DefaultNext)
			}
		}
		for intent, next := range node.NextNodes {
			if _, ok := f.Nodes[next]; !ok {
				return fmt.Errorf("flow %s: node %s edge %q points at undefined node %q", f.ID, id, intent, next)
			}
		}
	}
	return nil
}

// ConversationState tracks one conversation's position in its flow.
type ConversationState struct {
	ConversationID string            `json:"conversation_id" bson:"_id"`
	FlowID         string            `json:"flow_id" bson:"flow_id"`
	CurrentNodeID  string            `json:"current_node_id" bson:"current_node_id"`
	Variables      map[string]string `json:"variables,omitempty" bson:"variables,omitempty"`
	MessageCount   int               `json:"message_count" bson:"message_count"`
	FailedIntents  int               `json:"failed_intents" bson:"failed_intents"`
	StartedAt      time.Time         `json:"started_at" bson:"started_at"`
	LastActivity   time.Time         `json:"last_activity" bson:"last_activity"`
}

// Response is the outcome of running one incoming message through a flow.
type Response struct {
	ShouldRespond   bool              `json:"should_respond"`
	ResponseText    string            `json:"response_text,omitempty"`
	NextNodeID      string            `json:"next_node_id,omitempty"`
	DetectedIntent  Intent            `json:"detected_intent"`
	RequiresHuman   bool              `json:"requires_human"`
	EndConversation bool              `json:"end_conversation"`
	DelaySeconds    int               `json:"delay_seconds,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}
