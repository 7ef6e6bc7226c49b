package feduser

import (
	"fmt"
	"strings"
)

// NotificationSubject is the subject of the untagged resources message.
const NotificationSubject = "Regarding Untagged Resources"

// Message renders the notification sent to the team.
func (n *Notification) Message() string {
	var b strings.Builder
	b.WriteString("Dear Team and Administrator,\n\n")
	b.WriteString("I hope this message finds you well. I wanted to bring to your attention a list of untagged resources and the resources that does not have proper tags for proper cost allocation.\n")
	b.WriteString("Below is the list of resources found without proper tags for cost allocation.\n\n\n")
	for i, r := range n.Untagged {
		fmt.Fprintf(&b, "%d. %s\n\n", i+1, r)
	}
	if len(n.NonCompliant) > 0 {
		b.WriteString("\nFollowing are the resources without proper tags for cost allocation:\n")
		for i, r := range n.NonCompliant {
			fmt.Fprintf(&b, "%d. %s\n\n", i+1, r)
		}
	}
	b.WriteString("\n\nYour assistance in reviewing these resources and assigning appropriate tags to them would be greatly appreciated.\n")
	b.WriteString("Thank you for your attention to this matter.\n\nBest Regards")
	return b.String()
}

// Notify publishes the notification to the topic and posts it to Slack.
func (s *Scanner) Notify(n *Notification) (string, error) {
	msg := n.Message()
	if err := s.Topic.Publish(NotificationSubject, msg); err != nil {
		return "", err
	}
	if s.Slack != nil {
		if err := s.Slack.Send("", msg); err != nil {
			return "", err
		}
	}
	return msg, nil
}
