package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedPayload is returned when a webhook body is not JSON or does not
// have the entry/changes/value skeleton. The whole payload is discarded.
var ErrMalformedPayload = errors.New("malformed webhook payload")

// Normalize parses a webhook body into events, messages before statuses
// within each change value. Missing optional fields become empty strings.
// Normalize has no side effects and either returns every event or none.
func Normalize(body []byte) ([]Event, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var events []Event
	for _, e := range p.Entry {
		for _, c := range e.Changes {
			v := c.Value
			phoneNumberID := string(v.Metadata.PhoneNumberID)

			var contact *Contact
			if len(v.Contacts) > 0 {
				contact = &Contact{
					WaID: string(v.Contacts[0].WaID),
					Name: v.Contacts[0].Profile.Name,
				}
			}

			for _, raw := range v.Messages {
				var m wireMessage
				if err := json.Unmarshal(raw, &m); err != nil {
					return nil, fmt.Errorf("%w: message: %v", ErrMalformedPayload, err)
				}
				events = append(events, Event{
					Kind:              KindMessage,
					ProviderMessageID: string(m.ID),
					ConversationID:    string(m.From),
					Timestamp:         string(m.Timestamp),
					PhoneNumberID:     phoneNumberID,
					Message: &Message{
						Text:    messageText(&m),
						Type:    m.Type,
						Contact: contact,
					},
					Raw: raw,
				})
			}

			for _, raw := range v.Statuses {
				var s wireStatus
				if err := json.Unmarshal(raw, &s); err != nil {
					return nil, fmt.Errorf("%w: status: %v", ErrMalformedPayload, err)
				}
				sc := &StatusChange{
					Status:      s.Status,
					RecipientID: string(s.RecipientID),
				}
				if len(s.Errors) > 0 {
					sc.Error = fmt.Sprintf("%d: %s", s.Errors[0].Code, s.Errors[0].Title)
				}
				events = append(events, Event{
					Kind:              KindStatus,
					ProviderMessageID: string(s.ID),
					ConversationID:    string(s.RecipientID),
					Timestamp:         string(s.Timestamp),
					PhoneNumberID:     phoneNumberID,
					Status:            sc,
					Raw:               raw,
				})
			}
		}
	}
	return events, nil
}

// messageText picks the human-readable text for the message type.
func messageText(m *wireMessage) string {
	switch m.Type {
	case "button":
		return m.Button.Text
	case "interactive":
		if t := m.Interactive.ButtonReply.Title; t != "" {
			return t
		}
		return m.Interactive.ListReply.Title
	case "image":
		return m.Image.Caption
	case "video":
		return m.Video.Caption
	case "document":
		return m.Document.Caption
	default:
		return m.Text.Body
	}
}
