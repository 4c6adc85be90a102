// Callback-data parsing.
//
// Inline keyboards persist their callback strings inside old messages, so the
// wire prefixes (pay:, payc:, doncur:, don:, post:) must stay stable. Instead
// of string-prefix dispatch scattered across handlers, the data is decoded
// here into one tagged variant and matched in a single place.
package dispatch

import (
	"errors"
	"strings"
)

// ErrUnknownCallback is returned for callback data outside the known wire set.
var ErrUnknownCallback = errors.New("unknown callback data")

// Action is the decoded form of one inline-keyboard callback.
type Action interface{ isAction() }

// PayPlan initiates an invoice for a paid-access plan ("pay:<plan_code>").
type PayPlan struct{ PlanCode string }

// CancelInvoice aborts a pending invoice ("payc:<invoice_id>").
type CancelInvoice struct{ InvoiceID string }

// DonateCurrency picks the donation currency ("doncur:<asset>").
type DonateCurrency struct{ Currency string }

// DonateCancel aborts the donate flow ("don:cancel").
type DonateCancel struct{}

// PostTarget picks the posting destination ("post:target:<segment>").
// Segment is a chat id, or one of the named segments the planner resolves.
type PostTarget struct{ Target string }

// PostConfirm commits the drafted post plan ("post:confirm").
type PostConfirm struct{}

// PostCancel aborts the post-plan flow ("post:cancel").
type PostCancel struct{}

func (PayPlan) isAction()        {}
func (CancelInvoice) isAction()  {}
func (DonateCurrency) isAction() {}
func (DonateCancel) isAction()   {}
func (PostTarget) isAction()     {}
func (PostConfirm) isAction()    {}
func (PostCancel) isAction()     {}

// ParseCallback decodes callback data into an Action.
func ParseCallback(data string) (Action, error) {
	switch {
	case strings.HasPrefix(data, "pay:"):
		code := strings.TrimPrefix(data, "pay:")
		if code == "" {
			return nil, ErrUnknownCallback
		}
		return PayPlan{PlanCode: code}, nil

	case strings.HasPrefix(data, "payc:"):
		id := strings.TrimPrefix(data, "payc:")
		if id == "" {
			return nil, ErrUnknownCallback
		}
		return CancelInvoice{InvoiceID: id}, nil

	case strings.HasPrefix(data, "doncur:"):
		cur := strings.TrimPrefix(data, "doncur:")
		if cur == "" {
			return nil, ErrUnknownCallback
		}
		return DonateCurrency{Currency: cur}, nil

	case data == "don:cancel":
		return DonateCancel{}, nil

	case strings.HasPrefix(data, "post:target:"):
		t := strings.TrimPrefix(data, "post:target:")
		if t == "" {
			return nil, ErrUnknownCallback
		}
		return PostTarget{Target: t}, nil

	case data == "post:confirm":
		return PostConfirm{}, nil

	case data == "post:cancel":
		return PostCancel{}, nil
	}
	return nil, ErrUnknownCallback
}
