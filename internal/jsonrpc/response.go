package jsonrpc

import "encoding/json"

// nullID is the literal JSON "null", used whenever an error reply
// carries no usable request id.
var nullID = json.RawMessage("null")

// resultResponse and errorResponse mirror the two wire shapes:
// {"result": ..., "id": ...} or {"error": {...}, "id": ...}.
type resultResponse struct {
	Result *string         `json:"result"`
	ID     json.RawMessage `json:"id"`
}

type errorResponse struct {
	Error *ErrorObject    `json:"error"`
	ID    json.RawMessage `json:"id"`
}

// EncodeResult builds the wire bytes for a successful reply. A nil
// result encodes as a JSON null: a probe failure is reported as a
// null result, not an error.
func EncodeResult(result *string, id json.RawMessage) ([]byte, error) {
	return json.Marshal(resultResponse{Result: result, ID: idOrNull(id)})
}

// EncodeError builds the wire bytes for an error reply.
func EncodeError(code int, message string, id json.RawMessage) ([]byte, error) {
	return json.Marshal(errorResponse{
		Error: &ErrorObject{Code: code, Message: message},
		ID:    idOrNull(id),
	})
}

func idOrNull(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// ParseErrorReply is the fixed reply for bytes that can never extend
// to a valid JSON value.
func ParseErrorReply() ([]byte, error) {
	return EncodeError(CodeParseError, "Parse error. Invalid JSON was received by the server.", nil)
}

// InvalidRequestReply is the fixed reply for a value that is not a
// well-formed request object.
func InvalidRequestReply() ([]byte, error) {
	return EncodeError(CodeInvalidRequest, "The JSON sent is not a valid Request object.", nil)
}

// MethodNotFoundReply echoes the copied id for a method missing from
// the registry.
func MethodNotFoundReply(id json.RawMessage) ([]byte, error) {
	return EncodeError(CodeMethodNotFound, "Method not found.", id)
}

// InternalErrorReply echoes the copied id for a handler that returned
// a genuine error instead of a nil-result probe failure.
func InternalErrorReply(id json.RawMessage) ([]byte, error) {
	return EncodeError(CodeInternalError, "Internal error.", id)
}
