package convflow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grigta/outreach/pkg/logger"
	"github.com/grigta/outreach/pkg/messaging"
	"github.com/grigta/outreach/pkg/spintax"
)

// DefaultEscalationThreshold is how many consecutive unclassifiable
// replies a conversation tolerates before handing off to a human.
const DefaultEscalationThreshold = 3

const escalationText = "I want to make sure I give you the best answer. Let me connect you with someone who can help!"

// Generator renders a message template with variables. Satisfied by
// spintax.Registry.
type Generator interface {
	Generate(id string, vars map[string]string) (*spintax.GeneratedMessage, error)
}

// Engine walks conversations through their flows, classifying each
// incoming message and producing the scripted response.
type Engine struct {
	mu     sync.RWMutex
	flows  map[string]*Flow
	states map[string]*ConversationState

	classifier Classifier
	templates  Generator
	escalation int

	now    func() time.Time
	log    logger.Logger
	events messaging.Publisher
}

type Option func(*Engine)

func WithEscalationThreshold(n int) Option {
	return func(e *Engine) { e.escalation = n }
}

func WithClassifier(c Classifier) Option {
	return func(e *Engine) { e.classifier = c }
}

// WithClock replaces the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(templates Generator, log logger.Logger, events messaging.Publisher, opts ...Option) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if events == nil {
		events = messaging.NopPublisher{}
	}
	e := &Engine{
		flows:      make(map[string]*Flow),
		states:     make(map[string]*ConversationState),
		classifier: NewKeywordClassifier(),
		templates:  templates,
		escalation: DefaultEscalationThreshold,
		now:        time.Now,
		log:        log,
		events:     events,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.AddFlow(StandardOutreachFlow())
	return e
}

// AddFlow registers or replaces a flow. Invalid flows are rejected.
func (e *Engine) AddFlow(flow *Flow) error {
	if err := flow.Validate(); err != nil {
		return err
	}
	if flow.StartNodeID == "" {
		flow.StartNodeID = "start"
	}
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = e.now()
	}

	e.mu.Lock()
	e.flows[flow.ID] = flow
	e.mu.Unlock()

	e.log.Info("Conversation flow registered", logger.Field{Key: "flow_id", Value: flow.ID})
	return nil
}

func (e *Engine) Flow(id string) (*Flow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	flow, ok := e.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}
	return flow, nil
}

// ListFlows returns registered flows, optionally only active ones.
func (e *Engine) ListFlows(activeOnly bool) []*Flow {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []*Flow
	for _, flow := range e.flows {
		if activeOnly && !flow.Active {
			continue
		}
		out = append(out, flow)
	}
	return out
}

// StartConversation binds a conversation to a flow at its start node.
func (e *Engine) StartConversation(conversationID, flowID string, variables map[string]string) (*ConversationState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	flow, ok := e.flows[flowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}
	if variables == nil {
		variables = make(map[string]string)
	}

	now := e.now()
	state := &ConversationState{
		ConversationID: conversationID,
		FlowID:         flowID,
		CurrentNodeID:  flow.StartNodeID,
		Variables:      variables,
		StartedAt:      now,
		LastActivity:   now,
	}
	e.states[conversationID] = state

	cp := *state
	return &cp, nil
}

// State returns a copy of the conversation's current state.
func (e *Engine) State(conversationID string) (*ConversationState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	state, ok := e.states[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	cp := *state
	return &cp, nil
}

// ProcessMessage classifies the incoming message, advances the flow and
// returns what to do next.
func (e *Engine) ProcessMessage(conversationID, incoming string) *Response {
	e.mu.Lock()
	defer e.mu.Unlock()

	state, ok := e.states[conversationID]
	if !ok {
		return &Response{
			RequiresHuman:  true,
			DetectedIntent: IntentUnknown,
			Metadata:       map[string]string{"error": "conversation not found"},
		}
	}
	flow, ok := e.flows[state.FlowID]
	if !ok {
		return &Response{
			RequiresHuman:  true,
			DetectedIntent: IntentUnknown,
			Metadata:       map[string]string{"error": "flow not found"},
		}
	}
	current, ok := flow.Nodes[state.CurrentNodeID]
	if !ok {
		return &Response{EndConversation: true, DetectedIntent: IntentUnknown}
	}

	intent := e.classifier.Classify(incoming)
	state.MessageCount++
	state.LastActivity = e.now()

	if intent == IntentUnknown {
		state.FailedIntents++
		if state.FailedIntents >= e.escalation {
			e.publishHandoff(conversationID, "escalation_threshold")
			return &Response{
				ShouldRespond:  true,
				ResponseText:   escalationText,
				RequiresHuman:  true,
				DetectedIntent: intent,
			}
		}
	} else {
		state.FailedIntents = 0
	}

	nextID, ok := current.NextNodes[string(intent)]
	if !ok {
		nextID = current.DefaultNext
	}
	if nextID == "" {
		e.publishEnded(conversationID)
		return &Response{EndConversation: true, DetectedIntent: intent}
	}
	next, ok := flow.Nodes[nextID]
	if !ok {
		e.publishEnded(conversationID)
		return &Response{EndConversation: true, DetectedIntent: intent}
	}

	response := e.processNode(conversationID, next, state)
	response.DetectedIntent = intent
	state.CurrentNodeID = nextID
	return response
}

func (e *Engine) processNode(conversationID string, node *Node, state *ConversationState) *Response {
	switch node.Type {
	case NodeEnd:
		e.publishEnded(conversationID)
		return &Response{EndConversation: true}

	case NodeHumanHandoff:
		e.publishHandoff(conversationID, "flow_node")
		return &Response{
			ShouldRespond: true,
			ResponseText:  replaceVariables(node.Content, state.Variables),
			RequiresHuman: true,
			NextNodeID:    node.ID,
		}

	case NodeDelay:
		return &Response{
			DelaySeconds: node.DelaySeconds,
			NextNodeID:   node.DefaultNext,
		}

	case NodeMessage:
		return &Response{
			ShouldRespond: true,
			ResponseText:  e.renderNode(node, state.Variables),
			NextNodeID:    node.ID,
		}
	}
	return &Response{}
}

func (e *Engine) renderNode(node *Node, vars map[string]string) string {
	if node.TemplateID != "" && e.templates != nil {
		msg, err := e.templates.Generate(node.TemplateID, vars)
		if err != nil {
			e.log.Warn("Template generation failed, falling back to literal content",
				logger.Field{Key: "template_id", Value: node.TemplateID},
				logger.Field{Key: "error", Value: err.Error()},
			)
		} else {
			return msg.Text
		}
	}
	return replaceVariables(node.Content, vars)
}

// InitialMessage renders the flow's first message node, the opener sent
// before the target has said anything.
func (e *Engine) InitialMessage(flowID string, variables map[string]string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	flow, ok := e.flows[flowID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrFlowNotFound, flowID)
	}

	node := flow.Nodes[flow.StartNodeID]
	for node != nil && node.Type != NodeMessage {
		if node.DefaultNext == "" {
			node = nil
			break
		}
		node = flow.Nodes[node.DefaultNext]
	}
	if node == nil {
		return "", fmt.Errorf("flow %s has no reachable message node", flowID)
	}
	return e.renderNode(node, variables), nil
}

// EndConversation drops the conversation's state.
func (e *Engine) EndConversation(conversationID string) {
	e.mu.Lock()
	delete(e.states, conversationID)
	e.mu.Unlock()
	e.publishEnded(conversationID)
}

func (e *Engine) publishHandoff(conversationID, reason string) {
	if err := e.events.Publish(messaging.EventsExchange, messaging.EventConversationHandoff, messaging.NewMessage(messaging.EventConversationHandoff, map[string]interface{}{
		"conversation_id": conversationID,
		"reason":          reason,
	})); err != nil {
		e.log.Error("Failed to publish handoff event", logger.Field{Key: "error", Value: err.Error()})
	}
}

func (e *Engine) publishEnded(conversationID string) {
	if err := e.events.Publish(messaging.EventsExchange, messaging.EventConversationEnded, messaging.NewMessage(messaging.EventConversationEnded, map[string]interface{}{
		"conversation_id": conversationID,
	})); err != nil {
		e.log.Error("Failed to publish conversation end event", logger.Field{Key: "error", Value: err.Error()})
	}
}

func replaceVariables(text string, vars map[string]string) string {
	result := text
	for name, value := range vars {
		result = strings.ReplaceAll(result, "["+name+"]", value)
	}
	return result
}
