package convflow

// StandardOutreachFlow is the built-in flow that nudges a follower
// towards the WhatsApp group. Custom flows loaded from YAML can replace
// it by reusing its id.
func StandardOutreachFlow() *Flow {
	nodes := []*Node{
		{
			ID:          "start",
			Type:        NodeStart,
			DefaultNext: "opening",
		},
		{
			ID:         "opening",
			Type:       NodeMessage,
			TemplateID: "opening_friendly",
			NextNodes: map[string]string{
				"positive":      "value_prop",
				"interest":      "value_prop",
				"question":      "answer_question",
				"negative":      "polite_end",
				"request_human": "human_handoff",
			},
			DefaultNext: "follow_up_1",
		},
		{
			ID:         "value_prop",
			Type:       NodeMessage,
			TemplateID: "value_proposition",
			NextNodes: map[string]string{
				"positive":  "whatsapp_invite",
				"interest":  "whatsapp_invite",
				"objection": "handle_objection",
				"negative":  "polite_end",
			},
			DefaultNext: "follow_up_2",
		},
		{
			ID:         "handle_objection",
			Type:       NodeMessage,
			TemplateID: "objection_why_whatsapp",
			NextNodes: map[string]string{
				"positive": "whatsapp_invite",
				"negative": "polite_end",
			},
			DefaultNext: "whatsapp_invite",
		},
		{
			ID:   "answer_question",
			Type: NodeMessage,
			Content: "That's a great question! [kol_name] shares insights on [niche] " +
				"that you won't find anywhere else. Would you like to learn more?",
			NextNodes: map[string]string{
				"positive": "value_prop",
				"negative": "polite_end",
			},
			DefaultNext: "value_prop",
		},
		{
			ID:          "whatsapp_invite",
			Type:        NodeMessage,
			TemplateID:  "whatsapp_invite",
			DefaultNext: "conversion_check",
		},
		{
			ID:      "conversion_check",
			Type:    NodeMessage,
			Content: "Did you manage to join? Let me know if you have any issues! 😊",
			NextNodes: map[string]string{
				"positive": "success_end",
				"negative": "retry_invite",
			},
			DefaultNext: "end",
		},
		{
			ID:           "follow_up_1",
			Type:         NodeDelay,
			DelaySeconds: 3600,
			DefaultNext:  "follow_up_message_1",
		},
		{
			ID:          "follow_up_message_1",
			Type:        NodeMessage,
			TemplateID:  "follow_up_no_reply",
			DefaultNext: "end",
		},
		{
			ID:           "follow_up_2",
			Type:         NodeDelay,
			DelaySeconds: 86400,
			DefaultNext:  "follow_up_message_2",
		},
		{
			ID:          "follow_up_message_2",
			Type:        NodeMessage,
			Content:     "Hey! Just wanted to check in one more time. The invite is still open if you're interested! 🙌",
			DefaultNext: "end",
		},
		{
			ID:          "retry_invite",
			Type:        NodeMessage,
			Content:     "No worries! Here's the link again: [whatsapp_link]. Feel free to join whenever you're ready!",
			DefaultNext: "end",
		},
		{
			ID:      "human_handoff",
			Type:    NodeHumanHandoff,
			Content: "I'll connect you with someone who can help better. One moment!",
		},
		{
			ID:          "polite_end",
			Type:        NodeMessage,
			Content:     "No problem at all! Thanks for your time. Take care! 👋",
			DefaultNext: "end",
		},
		{
			ID:          "success_end",
			Type:        NodeMessage,
			Content:     "Awesome! Welcome aboard! 🎉 See you in the group!",
			DefaultNext: "end",
		},
		{
			ID:   "end",
			Type: NodeEnd,
		},
	}

	flow := &Flow{
		ID:          "standard_outreach",
		Name:        "Standard Outreach Flow",
		Description: "Basic flow for converting followers to WhatsApp",
		Nodes:       make(map[string]*Node, len(nodes)),
		StartNodeID: "start",
		Platform:    "all",
		Active:      true,
	}
	for _, node := range nodes {
		flow.Nodes[node.ID] = node
	}
	return flow
}
