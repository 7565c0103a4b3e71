package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantErr    error
		wantMethod string
		wantID     string
		wantNotif  bool
	}{
		{
			name:       "call with positional params",
			input:      `{"jsonrpc":"2.0","id":1,"method":"sum","params":[1,2]}`,
			wantMethod: "sum",
			wantID:     "1",
		},
		{
			name:       "call with string id",
			input:      `{"jsonrpc":"2.0","id":"abc-123","method":"echo"}`,
			wantMethod: "echo",
			wantID:     `"abc-123"`,
		},
		{
			name:       "null id is still a call",
			input:      `{"jsonrpc":"2.0","id":null,"method":"echo"}`,
			wantMethod: "echo",
			wantID:     "null",
		},
		{
			name:       "notification",
			input:      `{"jsonrpc":"2.0","method":"log","params":["hi"]}`,
			wantMethod: "log",
			wantNotif:  true,
		},
		{
			name:    "malformed JSON",
			input:   `{"jsonrpc":"2.0",`,
			wantErr: ErrParse,
		},
		{
			name:    "batch array",
			input:   `[{"jsonrpc":"2.0","id":1,"method":"a"}]`,
			wantErr: ErrInvalidRequest,
		},
		{
			name:    "mistyped method",
			input:   `{"jsonrpc":"2.0","id":7,"method":12}`,
			wantErr: ErrInvalidRequest,
			wantID:  "7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.input))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseRequest() error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantID != "" && (req == nil || string(req.ID) != tt.wantID) {
					t.Errorf("recovered id = %v, want %s", req, tt.wantID)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRequest() error = %v", err)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", req.Method, tt.wantMethod)
			}
			if req.IsNotification() != tt.wantNotif {
				t.Errorf("IsNotification() = %v, want %v", req.IsNotification(), tt.wantNotif)
			}
			if !tt.wantNotif && string(req.ID) != tt.wantID {
				t.Errorf("ID = %s, want %s", req.ID, tt.wantID)
			}
		})
	}
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"valid", Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "m"}, false},
		{"valid notification", Request{JSONRPC: "2.0", Method: "m"}, false},
		{"null params", Request{JSONRPC: "2.0", Method: "m", Params: json.RawMessage(`null`)}, false},
		{"wrong version", Request{JSONRPC: "1.0", ID: json.RawMessage(`1`), Method: "m"}, true},
		{"missing version", Request{ID: json.RawMessage(`1`), Method: "m"}, true},
		{"empty method", Request{JSONRPC: "2.0", ID: json.RawMessage(`1`)}, true},
		{"object id", Request{JSONRPC: "2.0", ID: json.RawMessage(`{}`), Method: "m"}, true},
		{"bool id", Request{JSONRPC: "2.0", ID: json.RawMessage(`true`), Method: "m"}, true},
		{"named params", Request{JSONRPC: "2.0", Method: "m", Params: json.RawMessage(`{"a":1}`)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error = %v, want wrapped ErrInvalidRequest", err)
			}
		})
	}
}

func TestResponse_MarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		resp *Response
		want string
	}{
		{
			name: "result",
			resp: NewResponse(json.RawMessage(`1`), 3),
			want: `{"jsonrpc":"2.0","id":1,"result":3}`,
		},
		{
			name: "null result is kept",
			resp: NewResponse(json.RawMessage(`"a"`), nil),
			want: `{"jsonrpc":"2.0","id":"a","result":null}`,
		},
		{
			name: "error with absent id",
			resp: NewErrorResponse(nil, &Error{Code: -32700, Message: "Parse error"}),
			want: `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
		},
		{
			name: "error wins over result",
			resp: &Response{ID: json.RawMessage(`2`), Result: "x", Error: &Error{Code: 1, Message: "m"}},
			want: `{"jsonrpc":"2.0","id":2,"error":{"code":1,"message":"m"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.resp)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}
		})
	}
}

func TestResponse_UnmarshalJSON(t *testing.T) {
	var resp Response
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":4,"result":{"a":1}}`), &resp); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	raw, ok := resp.Result.(json.RawMessage)
	if !ok {
		t.Fatalf("Result type = %T, want json.RawMessage", resp.Result)
	}
	if string(raw) != `{"a":1}` {
		t.Errorf("Result = %s, want %s", raw, `{"a":1}`)
	}

	var bad Response
	err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":4,"result":1,"error":{"code":1,"message":"x"}}`), &bad)
	if err == nil {
		t.Error("Unmarshal() should reject a response carrying both result and error")
	}
}

func TestNewNotification(t *testing.T) {
	n, err := NewNotification("progress", 50, "half")
	if err != nil {
		t.Fatalf("NewNotification() error = %v", err)
	}
	data, err := json.Marshal(n)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"jsonrpc":"2.0","method":"progress","params":[50,"half"]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}
