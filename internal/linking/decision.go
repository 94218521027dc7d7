package linking

import (
	"net/url"

	"github.com/signon/signon/internal/models"
)

// LinkAccountPath is where redirect decisions send the browser; the UI layer
// renders the error/message query parameters.
const LinkAccountPath = "/auth/linkaccount"

// Outcome is the kind of decision the policy reaches for one sign-in attempt.
type Outcome int

const (
	OutcomeAllow Outcome = iota
	OutcomeDeny
	OutcomeRedirect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAllow:
		return "allow"
	case OutcomeDeny:
		return "deny"
	case OutcomeRedirect:
		return "redirect"
	}
	return "unknown"
}

// Reason classifies redirect decisions.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonUnverifiedEmail Reason = "unverified_email" // known provider reported the email as unverified
	ReasonNoVerification  Reason = "no_verification"  // no provider check exists for this sign-in method
	ReasonAlreadyLinked   Reason = "already_linked"   // credential already linked during an authenticated link attempt
)

// Decision is the structured result of the link policy. Allow carries the
// resolved user; Redirect carries a reason plus a newline-delimited message
// that only RedirectURL serializes into a query string.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	Message string
	User    *models.User
}

func Allow(u *models.User) Decision {
	return Decision{Outcome: OutcomeAllow, User: u}
}

func Deny() Decision {
	return Decision{Outcome: OutcomeDeny}
}

func RedirectWith(reason Reason, message string) Decision {
	return Decision{Outcome: OutcomeRedirect, Reason: reason, Message: message}
}

// RedirectURL serializes a redirect decision into the linking-page URL with a
// url-encoded error message. Only meaningful for OutcomeRedirect.
func (d Decision) RedirectURL() string {
	v := url.Values{}
	v.Set("error", d.Message)
	return LinkAccountPath + "?" + v.Encode()
}

// MessageURL builds a linking-page URL carrying a benign informational
// message rather than an error.
func MessageURL(message string) string {
	v := url.Values{}
	v.Set("message", message)
	return LinkAccountPath + "?" + v.Encode()
}
