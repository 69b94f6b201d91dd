package enrich

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bizcrawl/internal/model"
)

// StopPolicy reports whether the contacts gathered so far are enough to
// stop visiting further candidate pages.
type StopPolicy func(model.ContactBundle) bool

// StopOnEmail stops as soon as any email address is known.
func StopOnEmail(b model.ContactBundle) bool { return b.HasEmail() }

// StopOnEmailAndPhone stops once both an email and a phone are known.
func StopOnEmailAndPhone(b model.ContactBundle) bool { return b.HasEmail() && b.HasPhone() }

// NeverStop visits every candidate page.
func NeverStop(model.ContactBundle) bool { return false }

// ParseStopPolicy maps a config name to a StopPolicy. The empty name is
// "email".
func ParseStopPolicy(name string) (StopPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "email":
		return StopOnEmail, nil
	case "email_and_phone", "email+phone":
		return StopOnEmailAndPhone, nil
	case "never", "none", "all":
		return NeverStop, nil
	default:
		return nil, eris.Errorf("enrich: unknown stop policy %q", name)
	}
}
