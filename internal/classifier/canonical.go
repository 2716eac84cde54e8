package classifier

import (
	"strings"
	"unicode"

	"github.com/mohammad-safakhou/runbooker/models"
)

var synonyms = map[string]models.Topic{
	"vpn":               models.TopicVPNIssue,
	"vpn_failure":       models.TopicVPNIssue,
	"vpn_error":         models.TopicVPNIssue,
	"remote_access":     models.TopicVPNIssue,
	"identity":          models.TopicAccessIssue,
	"identity_issue":    models.TopicAccessIssue,
	"access":            models.TopicAccessIssue,
	"acess_issue":       models.TopicAccessIssue,
	"auth_issue":        models.TopicAccessIssue,
	"authentication":    models.TopicAccessIssue,
	"login_issue":       models.TopicAccessIssue,
	"password_reset":    models.TopicAccessIssue,
	"account_lockout":   models.TopicAccessIssue,
	"email":             models.TopicEmailIssue,
	"mail":              models.TopicEmailIssue,
	"emial_issue":       models.TopicEmailIssue,
	"mail_issue":        models.TopicEmailIssue,
	"spam":              models.TopicEmailIssue,
	"endpoint":          models.TopicEndpointIssue,
	"hardware":          models.TopicEndpointIssue,
	"hardware_issue":    models.TopicEndpointIssue,
	"device_issue":      models.TopicEndpointIssue,
	"network":           models.TopicNetworkIssue,
	"netowrk_issue":     models.TopicNetworkIssue,
	"connectivity":      models.TopicNetworkIssue,
	"dns_issue":         models.TopicNetworkIssue,
	"cloud":             models.TopicCloudIssue,
	"security":          models.TopicSecurityIssue,
	"security_alert":    models.TopicSecurityIssue,
	"security_incident": models.TopicSecurityIssue,
	"phish":             models.TopicPhishing,
	"phishing_email":    models.TopicPhishing,
	"phishing_issue":    models.TopicPhishing,
	"ransomware":        models.TopicMalware,
	"virus":             models.TopicMalware,
	"trojan":            models.TopicMalware,
	"malware_issue":     models.TopicMalware,
	"uncategorized":     models.TopicOther,
	"unknown":           models.TopicOther,
}

// Canonicalize maps free text onto the taxonomy. It is total: anything it
// cannot place becomes other. The second result reports whether the text was
// recognised.
func Canonicalize(s string) (models.Topic, bool) {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			b.WriteByte('_')
		}
	}
	label := strings.Trim(b.String(), "_")
	if t := models.Topic(label); t.Valid() {
		return t, true
	}
	if t, ok := synonyms[label]; ok {
		return t, true
	}
	if strings.HasSuffix(label, "s") {
		if t := models.Topic(strings.TrimSuffix(label, "s")); t.Valid() {
			return t, true
		}
	}
	return models.TopicOther, false
}
