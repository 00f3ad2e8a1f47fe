package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectInstalled, SubjectUninstalled, SubjectPinned, SubjectUsed:
		var p InstalledAppPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.InstalledAppID == "" || p.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: installed_app_id and tenant_id are required", subject)
		}
	case SubjectReconciled:
		var p ReconciledPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.TenantID == "" {
			return fmt.Errorf("schema validation failed for %s: tenant_id is required", subject)
		}
	case SubjectSubscriptionsChanged:
		var p SubscriptionsChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.AccountID == "" {
			return errors.New("schema validation failed for subscriptions.changed: account_id is required")
		}
	}
	return nil
}
