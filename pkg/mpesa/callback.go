package mpesa

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Result codes the orchestrator distinguishes.
const (
	ResultSuccess       = 0
	ResultStillPending  = 1
	ResultUserCancelled = 1032
)

var (
	ErrMalformedCallback = errors.New("malformed stk callback")
)

// Callback is the parsed Body.stkCallback payload.
type Callback struct {
	MerchantRequestID string
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
	Receipt           string
	Amount            string
	PhoneNumber       string
	TransactionDate   string
}

// Ack is the body Daraja expects back from the callback URL.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var (
	AckAccepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}
	AckRejected = Ack{ResultCode: 1, ResultDesc: "Rejected"}
)

// ParseCallback extracts the STK result. It fails only when the payload is not
// JSON or lacks CheckoutRequestID / ResultCode.
func ParseCallback(raw []byte) (Callback, error) {
	if !gjson.ValidBytes(raw) {
		return Callback{}, ErrMalformedCallback
	}
	cb := gjson.GetBytes(raw, "Body.stkCallback")
	checkout := cb.Get("CheckoutRequestID")
	code := cb.Get("ResultCode")
	if !checkout.Exists() || strings.TrimSpace(checkout.String()) == "" || !code.Exists() {
		return Callback{}, ErrMalformedCallback
	}
	resultCode, ok := parseResultCode(code)
	if !ok {
		return Callback{}, ErrMalformedCallback
	}

	out := Callback{
		MerchantRequestID: cb.Get("MerchantRequestID").String(),
		CheckoutRequestID: strings.TrimSpace(checkout.String()),
		ResultCode:        resultCode,
		ResultDesc:        cb.Get("ResultDesc").String(),
	}
	cb.Get("CallbackMetadata.Item").ForEach(func(_, item gjson.Result) bool {
		value := item.Get("Value")
		switch item.Get("Name").String() {
		case "MpesaReceiptNumber":
			out.Receipt = value.String()
		case "Amount":
			out.Amount = value.String()
		case "PhoneNumber":
			out.PhoneNumber = value.String()
		case "TransactionDate":
			out.TransactionDate = value.String()
		}
		return true
	})
	return out, nil
}

// parseResultCode accepts a whole JSON number or a numeric string. Anything
// else must not read as ResultSuccess.
func parseResultCode(code gjson.Result) (int, bool) {
	switch code.Type {
	case gjson.Number:
		if code.Num != math.Trunc(code.Num) || math.Abs(code.Num) > math.MaxInt32 {
			return 0, false
		}
		return int(code.Num), true
	case gjson.String:
		n, err := strconv.Atoi(strings.TrimSpace(code.Str))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
