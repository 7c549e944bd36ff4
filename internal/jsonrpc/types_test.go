package jsonrpc

import (
	"encoding/json"
	"testing"
)

func TestParseRequest_Valid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"full", `{"jsonrpc":"2.0","method":"SayHello","params":[],"id":1}`},
		{"no params", `{"method":"SayHello","id":"a"}`},
		{"no id", `{"method":"SayHello"}`},
		{"object params", `{"method":"SayHello","params":{"x":1},"id":2}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := ParseRequest(json.RawMessage(tc.raw))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if req.Method != "SayHello" {
				t.Errorf("expected method SayHello, got %q", req.Method)
			}
		})
	}
}

func TestParseRequest_ParamsAbsentEquivalentToEmptyArray(t *testing.T) {
	withEmpty, err := ParseRequest(json.RawMessage(`{"method":"X","params":[]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	without, err := ParseRequest(json.RawMessage(`{"method":"X"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withEmpty.Method != without.Method {
		t.Fatalf("expected both requests to resolve the same method")
	}
}

func TestParseRequest_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"missing method", `{"id":1}`},
		{"method not string", `{"method":42}`},
		{"params not array or object", `{"method":"X","params":"oops"}`},
		{"id not string or number", `{"method":"X","id":true}`},
		{"id is object", `{"method":"X","id":{}}`},
		{"not an object", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseRequest(json.RawMessage(tc.raw)); err == nil {
				t.Fatalf("expected shape error")
			}
		})
	}
}

func TestEncodeResult(t *testing.T) {
	s := "Hello!lepdendstring"
	b, err := EncodeResult(&s, json.RawMessage("1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	if got["result"] != s {
		t.Errorf("expected result %q, got %v", s, got["result"])
	}
	if got["id"].(float64) != 1 {
		t.Errorf("expected id 1, got %v", got["id"])
	}
}

func TestEncodeResult_NullResult(t *testing.T) {
	b, err := EncodeResult(nil, json.RawMessage(`"x"`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	if got["result"] != nil {
		t.Errorf("expected null result, got %v", got["result"])
	}
}

func TestMethodNotFoundReply(t *testing.T) {
	b, err := MethodNotFoundReply(json.RawMessage("7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	errObj := got["error"].(map[string]interface{})
	if errObj["code"].(float64) != CodeMethodNotFound {
		t.Errorf("expected code %d, got %v", CodeMethodNotFound, errObj["code"])
	}
	if got["id"].(float64) != 7 {
		t.Errorf("expected id 7, got %v", got["id"])
	}
}

func TestInvalidRequestReply_IDIsNull(t *testing.T) {
	b, err := InvalidRequestReply()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	if got["id"] != nil {
		t.Errorf("expected id null, got %v", got["id"])
	}
}

func TestParseErrorReply_CodeAndMessage(t *testing.T) {
	b, err := ParseErrorReply()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}
	errObj := got["error"].(map[string]interface{})
	if errObj["code"].(float64) != CodeParseError {
		t.Errorf("expected code %d, got %v", CodeParseError, errObj["code"])
	}
}
