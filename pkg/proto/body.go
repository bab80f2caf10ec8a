package proto

// Keys of the error body shared by the file-transfer and port-forward
// sub-protocols.
const (
	keyErr     = "err"
	keyErrType = "msgtype"
	keyErrID   = "msgid"
)

// ErrorBody is the body of an "error" message.
type ErrorBody struct {
	Err     string
	MsgType string // type of the message that failed, optional
	MsgID   string // optional
}

// Encode serializes the error body. Empty optional fields are omitted.
func (e ErrorBody) Encode() ([]byte, error) {
	b := NewMapBuilder().String(keyErr, e.Err)
	if e.MsgType != "" {
		b.String(keyErrType, e.MsgType)
	}
	if e.MsgID != "" {
		b.String(keyErrID, e.MsgID)
	}
	return b.Encode()
}

// DecodeErrorBody parses the body of an "error" message.
func DecodeErrorBody(body []byte) (ErrorBody, error) {
	m, err := DecodeMap(body)
	if err != nil {
		return ErrorBody{}, err
	}

	var out ErrorBody
	out.Err, _ = m.String(keyErr)
	out.MsgType, _ = m.String(keyErrType)
	out.MsgID, _ = m.String(keyErrID)
	return out, nil
}

// NewErrorReply builds an "error" reply to req describing err. The failed
// message type is included when includeType is set.
func NewErrorReply(req *Message, err error, includeType bool) (*Message, error) {
	body := ErrorBody{Err: err.Error()}
	if includeType {
		body.MsgType = req.MsgType()
	}

	data, encErr := body.Encode()
	if encErr != nil {
		return nil, encErr
	}

	reply := NewReply(req, MsgTypeError)
	reply.Body = data
	return reply, nil
}

// MsgTypeError is the message type of error replies in every sub-protocol.
const MsgTypeError = "error"
