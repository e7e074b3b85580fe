package router

// Request is one client→provider exchange, addressed by service id and
// tracked by a globally unique request id. PayloadEncrypted and Signature
// are reserved fields: they round-trip on the wire but nothing produces or
// validates them yet.
type Request struct {
	SenderID         string            `json:"sender_id"`
	RequestID        string            `json:"request_id"`
	ServiceID        string            `json:"service_id"`
	Endpoint         string            `json:"endpoint,omitempty"`
	RequestType      string            `json:"request_type"`
	Method           string            `json:"method"`
	Payload          string            `json:"payload"`
	Headers          map[string]string `json:"headers"`
	PayloadEncrypted bool              `json:"payload_encrypted"`
	Signature        string            `json:"signature,omitempty"`
}

// Response carries one reply, or one chunk of a streamed reply, back to the
// client that issued the request id. A response with StreamDone set
// terminates the stream.
type Response struct {
	RequestID     string            `json:"request_id"`
	StatusCode    uint16            `json:"status_code"`
	ContentType   string            `json:"content_type"`
	Payload       string            `json:"payload"`
	Headers       map[string]string `json:"headers"`
	IsStreamChunk bool              `json:"is_stream_chunk"`
	StreamDone    bool              `json:"stream_done"`
}
