// Package codec centralizes the JSON encoding used for record interchange.
//
// The textual form of a record is a documented interop format (message
// queues, file export), so codec selection is a compatibility boundary:
// whatever encodes a record must produce bytes the decoding side accepts.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used for record interchange.
var Default Codec = GoJSON{}
