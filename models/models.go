package models

import (
	"errors"
	"fmt"
)

// ErrTopicNotFound is returned when a label is outside the taxonomy
var ErrTopicNotFound = errors.New("topic not found")

// Topic is one label of the fixed ticket taxonomy.
type Topic string

const (
	TopicAccessIssue   Topic = "access_issue"
	TopicEmailIssue    Topic = "email_issue"
	TopicEndpointIssue Topic = "endpoint_issue"
	TopicNetworkIssue  Topic = "network_issue"
	TopicCloudIssue    Topic = "cloud_issue"
	TopicVPNIssue      Topic = "vpn_issue"
	TopicSecurityIssue Topic = "security_issue"
	TopicPhishing      Topic = "phishing"
	TopicMalware       Topic = "malware"
	TopicOther         Topic = "other"
)

// Taxonomy lists every label in a stable order.
var Taxonomy = []Topic{
	TopicAccessIssue,
	TopicEmailIssue,
	TopicEndpointIssue,
	TopicNetworkIssue,
	TopicCloudIssue,
	TopicVPNIssue,
	TopicSecurityIssue,
	TopicPhishing,
	TopicMalware,
	TopicOther,
}

// Valid reports whether t is a member of the taxonomy.
func (t Topic) Valid() bool {
	for _, known := range Taxonomy {
		if t == known {
			return true
		}
	}
	return false
}

func (t Topic) String() string { return string(t) }

// ParseTopic accepts only exact taxonomy labels.
func ParseTopic(s string) (Topic, error) {
	t := Topic(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrTopicNotFound, s)
	}
	return t, nil
}

// TopicCount is the number of tickets currently carrying a label.
type TopicCount struct {
	Topic Topic `json:"topic"`
	Count int   `json:"count"`
}
