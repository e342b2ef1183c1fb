package paymaya

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ShapeCheckoutCompletion = "checkout_completion"
	ShapeDirectStatus       = "direct_status"
	ShapeGenericEvent       = "generic_event"
	ShapeUnrecognized       = "unrecognized"
)

// Payload is one of CheckoutCompletion, DirectStatus, GenericEvent or Unrecognized.
type Payload interface {
	Shape() string
	Intent() Intent
	sealed()
}

// CheckoutCompletion is sent when a hosted checkout finishes: status and paymentStatus
// without isPaid.
type CheckoutCompletion struct {
	ID                     string
	Status                 string
	PaymentStatus          string
	RequestReferenceNumber string
	Body                   map[string]interface{}
}

// DirectStatus reports a payment directly: status and isPaid at the top level.
type DirectStatus struct {
	ID     string
	Status string
	IsPaid bool
	Body   map[string]interface{}
}

// GenericEvent is the {id, type, data} envelope.
type GenericEvent struct {
	ID   string
	Type string
	Data map[string]interface{}
}

type Unrecognized struct {
	Reason string
}

func (CheckoutCompletion) Shape() string { return ShapeCheckoutCompletion }
func (DirectStatus) Shape() string { return ShapeDirectStatus }
func (GenericEvent) Shape() string { return ShapeGenericEvent }
func (Unrecognized) Shape() string { return ShapeUnrecognized }

func (CheckoutCompletion) sealed() {}
func (DirectStatus) sealed() {}
func (GenericEvent) sealed() {}
func (Unrecognized) sealed() {}

// Classify parses a webhook body and picks its shape. Checkout completion is tried
// first, then direct status, then the generic envelope.
func Classify(body []byte) Payload {
	var m map[string]interface{}
	if err := json.Unmarshal(body, &m); err != nil {
		return Unrecognized{Reason: fmt.Sprintf("body is not a JSON object: %v", err)}
	}

	_, hasStatus := present(m, "status")
	_, hasPaymentStatus := present(m, "paymentStatus")
	isPaid, hasIsPaid := present(m, "isPaid")

	switch {
	case hasStatus && hasPaymentStatus && !hasIsPaid:
		return CheckoutCompletion{
			ID:                     str(m, "id"),
			Status:                 str(m, "status"),
			PaymentStatus:          str(m, "paymentStatus"),
			RequestReferenceNumber: str(m, "requestReferenceNumber"),
			Body:                   m,
		}
	case hasStatus && hasIsPaid:
		return DirectStatus{
			ID:     str(m, "id"),
			Status: str(m, "status"),
			IsPaid: truthy(isPaid),
			Body:   m,
		}
	}

	id, idOK := m["id"].(string)
	typ, typeOK := m["type"].(string)
	data, dataOK := m["data"].(map[string]interface{})
	if idOK && id != "" && typeOK && typ != "" && dataOK {
		return GenericEvent{ID: id, Type: typ, Data: data}
	}
	return Unrecognized{Reason: "missing id, type or data"}
}

type IntentKind int

const (
	IntentIgnore IntentKind = iota
	IntentSuccess
	IntentFailure
	IntentCancel
	IntentPending
)

func (k IntentKind) String() string {
	switch k {
	case IntentSuccess:
		return "success"
	case IntentFailure:
		return "failure"
	case IntentCancel:
		return "cancel"
	case IntentPending:
		return "pending"
	}
	return "ignore"
}

// Lookup says how to find the order: by checkout id first, then by order number.
type Lookup struct {
	CheckoutID  string
	OrderNumber string
}

func (l Lookup) Empty() bool { return l.CheckoutID == "" && l.OrderNumber == "" }

type BuyerInfo struct {
	Email string
	Name  string
}

type FailureInfo struct {
	Code    string
	Message string
}

// Intent is what the reconciler acts on, whatever shape it arrived in.
type Intent struct {
	Kind      IntentKind
	Shape     string
	Lookup    Lookup
	PaymentID string
	Buyer     BuyerInfo
	Failure   FailureInfo
	// Detail describes an ignored payload for the log.
	Detail string
}

func (p CheckoutCompletion) Intent() Intent {
	in := Intent{
		Shape:     ShapeCheckoutCompletion,
		Lookup:    Lookup{OrderNumber: p.RequestReferenceNumber},
		PaymentID: p.ID,
		Buyer:     buyerFrom(p.Body),
		Failure:   failureFrom(p.Body),
	}
	switch {
	case p.PaymentStatus == "PAYMENT_SUCCESS" && (p.Status == "COMPLETED" || p.Status == "PAYMENT_SUCCESS"):
		in.Kind = IntentSuccess
	case p.PaymentStatus == "PAYMENT_EXPIRED" || p.Status == "EXPIRED":
		in.Kind = IntentCancel
	case p.PaymentStatus == "PAYMENT_FAILED":
		in.Kind = IntentFailure
	default:
		in.Detail = fmt.Sprintf("unhandled checkout status %s/%s", p.Status, p.PaymentStatus)
	}
	return in
}

func (p DirectStatus) Intent() Intent {
	in := intentFromData(ShapeDirectStatus, p.Body)
	switch {
	case p.IsPaid && p.Status == "PAYMENT_SUCCESS":
		in.Kind = IntentSuccess
	case p.Status == "PAYMENT_FAILED":
		in.Kind = IntentFailure
	case p.Status == "PAYMENT_CANCELLED" || p.Status == "PAYMENT_CANCELED":
		in.Kind = IntentCancel
	case p.Status == "PAYMENT_PENDING":
		in.Kind = IntentPending
	default:
		in.Detail = fmt.Sprintf("unhandled payment status %s (isPaid=%t)", p.Status, p.IsPaid)
	}
	return in
}

func (p GenericEvent) Intent() Intent {
	in := intentFromData(ShapeGenericEvent, p.Data)
	switch p.Type {
	case "payment.success", "payment.paid":
		in.Kind = IntentSuccess
	case "payment.failed":
		in.Kind = IntentFailure
	case "payment.cancelled", "payment.canceled":
		in.Kind = IntentCancel
	case "payment.pending":
		in.Kind = IntentPending
	default:
		in.Detail = fmt.Sprintf("unhandled event type %s", p.Type)
	}
	return in
}

func (p Unrecognized) Intent() Intent {
	return Intent{Kind: IntentIgnore, Shape: ShapeUnrecognized, Detail: p.Reason}
}

func intentFromData(shape string, data map[string]interface{}) Intent {
	paymentID := str(data, "id")
	if paymentID == "" {
		paymentID = str(data, "paymentId")
	}
	return Intent{
		Shape: shape,
		Lookup: Lookup{
			CheckoutID:  str(data, "checkoutId"),
			OrderNumber: str(data, "requestReferenceNumber"),
		},
		PaymentID: paymentID,
		Buyer:     buyerFrom(data),
		Failure:   failureFrom(data),
	}
}

func buyerFrom(data map[string]interface{}) BuyerInfo {
	buyer, _ := data["buyer"].(map[string]interface{})
	customer, _ := data["customer"].(map[string]interface{})
	contact, _ := buyer["contact"].(map[string]interface{})

	info := BuyerInfo{
		Email: firstNonEmpty(str(contact, "email"), str(customer, "email"), str(data, "email")),
	}
	if first := str(buyer, "firstName"); first != "" {
		info.Name = strings.TrimSpace(first + " " + str(buyer, "lastName"))
	} else {
		info.Name = firstNonEmpty(str(customer, "name"), str(data, "name"))
	}
	return info
}

func failureFrom(data map[string]interface{}) FailureInfo {
	msg := firstNonEmpty(str(data, "errorMessage"), str(data, "failureReason"))
	if msg == "" {
		msg = "Payment failed"
	}
	return FailureInfo{Code: str(data, "errorCode"), Message: msg}
}

// present reports a key that exists with a non-null value.
func present(m map[string]interface{}, key string) (interface{}, bool) {
	v, ok := m[key]
	return v, ok && v != nil
}

func str(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", v), "0"), ".")
	default:
		return fmt.Sprint(v)
	}
}

func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != "" && t != "0"
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
