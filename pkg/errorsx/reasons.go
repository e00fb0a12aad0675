package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonConfig ReasonCode = "config"

	ReasonRealtimeConnect ReasonCode = "realtime_connect"
	ReasonRealtimeSend    ReasonCode = "realtime_send"
	ReasonRealtimeDecode  ReasonCode = "realtime_decode"

	ReasonTelephonySend   ReasonCode = "telephony_send"
	ReasonTelephonyDecode ReasonCode = "telephony_decode"

	ReasonClassify            ReasonCode = "classify"
	ReasonClassifyCircuitOpen ReasonCode = "classify_circuit_open"
	ReasonTicketStore         ReasonCode = "ticket_store"

	ReasonTransportInvalidSignature ReasonCode = "webhook_invalid_signature"
)
