package protocol

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// CallRequest is the inbound payload of one frame. Params stays untyped
// here; the dispatcher validates it against the target method's schema.
type CallRequest struct {
	ModuleID         string         `cbor:"module_id"`
	Method           string         `cbor:"method"`
	UnifiedMsgOrigin string         `cbor:"unified_msg_origin"`
	Params           map[string]any `cbor:"params"`
}

// CallResponse is the outbound payload. Data is omitted entirely on
// failure, UnifiedMsgOrigin is always echoed from the request.
type CallResponse struct {
	OK               bool           `cbor:"ok"`
	UnifiedMsgOrigin string         `cbor:"unified_msg_origin"`
	Data             map[string]any `cbor:"data,omitempty"`
	ErrorMessage     string         `cbor:"error_message"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dm, err := cbor.DecOptions{
		// Nested maps inside Params decode as map[string]any, integers
		// as int64, so schema checks see one shape regardless of depth.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	encMode, decMode = em, dm
}

func EncodeCallRequest(req *CallRequest) ([]byte, error) {
	return encMode.Marshal(req)
}

func DecodeCallRequest(data []byte) (*CallRequest, error) {
	var req CallRequest
	if err := decMode.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode call request: %w", err)
	}
	return &req, nil
}

func EncodeCallResponse(resp *CallResponse) ([]byte, error) {
	return encMode.Marshal(resp)
}

func DecodeCallResponse(data []byte) (*CallResponse, error) {
	var resp CallResponse
	if err := decMode.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode call response: %w", err)
	}
	return &resp, nil
}
