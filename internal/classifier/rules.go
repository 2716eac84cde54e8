package classifier

import (
	"regexp"

	"github.com/mohammad-safakhou/runbooker/models"
)

type rule struct {
	topic    models.Topic
	patterns []*regexp.Regexp
}

func compile(topic models.Topic, patterns ...string) rule {
	r := rule{topic: topic}
	for _, p := range patterns {
		r.patterns = append(r.patterns, regexp.MustCompile(p))
	}
	return r
}

// rules is evaluated in order; the first topic to reach the hit threshold
// wins. Specific threats come before the generic categories they overlap.
var rules = []rule{
	compile(models.TopicPhishing,
		`phish`, `spoof`, `suspicious\s+(?:email|link|attachment|sender)`,
		`credential\s+harvest`, `fake\s+login`, `reported\s+(?:email|message)`,
	),
	compile(models.TopicMalware,
		`malware`, `virus`, `trojan`, `ransom`, `\bworm\b`, `infect`,
		`spyware`, `keylogger`, `cryptominer`,
	),
	compile(models.TopicSecurityIssue,
		`security`, `compromis`, `\bedr\b`, `falcon`, `crowdstrike`,
		`\bioc\b`, `threat`, `breach`, `suspicious\s+activity`, `\bsiem\b`,
	),
	compile(models.TopicVPNIssue,
		`\bvpn\b`, `globalprotect`, `anyconnect`, `remote\s+access`, `tunnel`,
	),
	compile(models.TopicAccessIssue,
		`access`, `permission`, `privilege`, `log\s?in`, `credential`,
		`username`, `password`, `locked\s*out`, `lockout`, `unlock`,
		`\bmfa\b`, `\b2fa\b`, `\bduo\b`, `okta`, `\bsso\b`, `authenticat`,
	),
	compile(models.TopicEmailIssue,
		`mail`, `outlook`, `exchange`, `\bo365\b`, `office\s*365`,
		`spam`, `junk`, `undeliver`, `bounce`, `inbox`, `smtp`, `recipient`,
	),
	compile(models.TopicCloudIssue,
		`\baws\b`, `azure`, `\bgcp\b`, `cloud`, `\bs3\b`, `bucket`,
		`sharepoint`, `onedrive`, `virtual\s+machine`,
	),
	compile(models.TopicNetworkIssue,
		`network`, `switch`, `router`, `firewall`, `wireless`, `wi-?fi`,
		`\blan\b`, `\bwan\b`, `\bdns\b`, `\bdhcp\b`, `packet\s+loss`, `latency`,
	),
	compile(models.TopicEndpointIssue,
		`laptop`, `desktop`, `workstation`, `computer`, `blue\s*screen`,
		`\bbsod\b`, `crash`, `freez`, `\bboot`, `no\s+power`, `slow`,
		`printer`, `endpoint`, `device`,
	),
}

// matchRules returns the first topic with at least minHits matching patterns.
func matchRules(blob string, minHits int) (models.Topic, bool) {
	if minHits < 1 {
		minHits = 1
	}
	for _, r := range rules {
		hits := 0
		for _, p := range r.patterns {
			if p.MatchString(blob) {
				hits++
				if hits >= minHits {
					return r.topic, true
				}
			}
		}
	}
	return "", false
}
