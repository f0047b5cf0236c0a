package mpesa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCallbackSuccess(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{
		"MerchantRequestID":"29115-34620561-1",
		"CheckoutRequestID":"ws_CO_191220191020363925",
		"ResultCode":0,
		"ResultDesc":"The service request is processed successfully.",
		"CallbackMetadata":{"Item":[
			{"Name":"Amount","Value":1500.00},
			{"Name":"MpesaReceiptNumber","Value":"NLJ7RT61SV"},
			{"Name":"TransactionDate","Value":20191219102115},
			{"Name":"PhoneNumber","Value":254708374149}
		]}}}}`)

	cb, err := ParseCallback(body)
	require.NoError(t, err)
	require.Equal(t, "ws_CO_191220191020363925", cb.CheckoutRequestID)
	require.Equal(t, ResultSuccess, cb.ResultCode)
	require.Equal(t, "NLJ7RT61SV", cb.Receipt)
	require.Equal(t, "254708374149", cb.PhoneNumber)
	require.Equal(t, "20191219102115", cb.TransactionDate)
}

func TestParseCallbackCancelledWithoutMetadata(t *testing.T) {
	body := []byte(`{"Body":{"stkCallback":{"MerchantRequestID":"m","CheckoutRequestID":"ws_CO_2","ResultCode":1032,"ResultDesc":"Request cancelled by user"}}}`)
	cb, err := ParseCallback(body)
	require.NoError(t, err)
	require.Equal(t, ResultUserCancelled, cb.ResultCode)
	require.Empty(t, cb.Receipt)
}

func TestParseCallbackMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":         `{"Body":`,
		"missing callback": `{"Body":{}}`,
		"missing checkout": `{"Body":{"stkCallback":{"ResultCode":0}}}`,
		"missing result":   `{"Body":{"stkCallback":{"CheckoutRequestID":"ws"}}}`,
		"object result":    `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":{}}}}`,
		"word result":      `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":"garbage"}}}`,
		"empty result":     `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":""}}}`,
		"fraction result":  `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":0.5}}}`,
		"null result":      `{"Body":{"stkCallback":{"CheckoutRequestID":"ws","ResultCode":null}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseCallback([]byte(body))
			require.ErrorIs(t, err, ErrMalformedCallback)
		})
	}
}

func TestParseCallbackNumericStringCode(t *testing.T) {
	cb, err := ParseCallback([]byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_3","ResultCode":" 1032 "}}}`))
	require.NoError(t, err)
	require.Equal(t, ResultUserCancelled, cb.ResultCode)
}
