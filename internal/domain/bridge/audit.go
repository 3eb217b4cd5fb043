package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Security audit actions.
const (
	AuditReportEvent    = "report_security_event"
	AuditSecurityStatus = "get_security_status"
	AuditValidate       = "validate_content"
)

// AuditRequest is the payload of security_audit.
type AuditRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// SecurityStatus is a static attestation of the bridge's protections.
type SecurityStatus struct {
	BridgeSecured   bool   `json:"bridgeSecured"`
	OriginValidated bool   `json:"originValidated"`
	AppID           string `json:"appId"`
	Timestamp       int64  `json:"timestamp"`
}

// ContentVerdict answers validate_content.
type ContentVerdict struct {
	Safe      bool   `json:"safe"`
	Reason    string `json:"reason,omitempty"`
	Sanitized string `json:"sanitized"`
}

// Heuristics only; a clean verdict does not make content safe to render.
var suspiciousContent = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<script\b.*?</script>`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)<iframe\b`),
}

var ugcPolicy = bluemonday.UGCPolicy()

// ValidateContent runs the suspicious-content heuristics and returns a
// sanitized copy for display.
func ValidateContent(content string) ContentVerdict {
	verdict := ContentVerdict{Safe: true, Sanitized: ugcPolicy.Sanitize(content)}
	for _, re := range suspiciousContent {
		if re.MatchString(content) {
			verdict.Safe = false
			verdict.Reason = "Potentially malicious content detected"
			break
		}
	}
	return verdict
}

func (s Services) handleSecurityAudit(_ context.Context, req AuditRequest, bc *Context) error {
	switch req.Action {
	case AuditReportEvent:
		s.Log.Warn("Security event reported by micro-app",
			zap.String("app_id", bc.AppID),
			zap.ByteString("event", req.Data))
		bc.Resolve(map[string]bool{"logged": true})

	case AuditSecurityStatus:
		bc.Resolve(SecurityStatus{
			BridgeSecured:   true,
			OriginValidated: true,
			AppID:           bc.AppID,
			Timestamp:       s.Now().UnixMilli(),
		})

	case AuditValidate:
		var body struct {
			Content *string `json:"content"`
		}
		if err := json.Unmarshal(req.Data, &body); err != nil || body.Content == nil {
			bc.Reject("Invalid content type")
			return nil
		}
		verdict := ValidateContent(*body.Content)
		if !verdict.Safe {
			s.Log.Warn("Suspicious content detected", zap.String("app_id", bc.AppID))
		}
		bc.Resolve(verdict)

	default:
		bc.Reject(fmt.Sprintf("Unknown security audit action: %s", req.Action))
	}
	return nil
}
